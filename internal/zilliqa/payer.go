package zilliqa

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/Zilliqa/gozilliqa-sdk/keytools"
	"github.com/Zilliqa/gozilliqa-sdk/util"
	"go.uber.org/zap"
)

var ErrInvalidAmount = errors.New("payment amount must be positive")

const paymentGasLimit = "50"

// Payer moves ZIL in and out of the marketplace account. Buyers pay with a
// plain transfer to that account and hand its transaction id over as the
// receipt. Withdrawn proceeds leave as plain transfers signed by the marketplace.
type Payer struct {
	signer *Signer
}

func NewPayer(signer *Signer) *Payer {
	return &Payer{signer: signer}
}

// Collect returns the amount of the confirmed transfer receipt when buyer
// signed it and it credited the marketplace account.
func (p *Payer) Collect(ctx context.Context, buyer, receipt string) (*big.Int, error) {
	tx, err := p.signer.provider.GetTransaction(ctx, rpcAddress(strings.TrimSpace(receipt)))
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return nil, fmt.Errorf("%w: %s: %s", entity.ErrPaymentRejected, receipt, rpcErr.Message)
		}
		return nil, err
	}

	if !tx.Receipt.Success {
		return nil, fmt.Errorf("%w: %s did not succeed", entity.ErrPaymentRejected, receipt)
	}
	if tx.Data != "" {
		return nil, fmt.Errorf("%w: %s is a contract call", entity.ErrPaymentRejected, receipt)
	}
	if rpcAddress(tx.ToAddr) != rpcAddress(p.signer.Address()) {
		return nil, fmt.Errorf("%w: %s was not sent to the marketplace", entity.ErrPaymentRejected, receipt)
	}
	if sender := senderAddress(tx.SenderPubKey); sender == "" || sender != entity.CanonicalAddress(buyer) {
		return nil, fmt.Errorf("%w: %s was not signed by %s", entity.ErrPaymentRejected, receipt, buyer)
	}

	amount, ok := new(big.Int).SetString(tx.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s carries no ZIL", entity.ErrPaymentRejected, receipt)
	}

	zap.L().With(zap.String("buyer", buyer), zap.String("amount", amount.String()), zap.String("txId", tx.ID)).Info("Zilliqa: Payment collected")

	return amount, nil
}

func (p *Payer) Pay(ctx context.Context, recipient string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	tx, err := p.signer.Send(ctx, recipient, amount, "", paymentGasLimit)
	if err != nil {
		return err
	}

	zap.L().With(zap.String("recipient", recipient), zap.String("amount", amount.String()), zap.String("txId", tx.ID)).Info("Zilliqa: Proceeds paid")

	return nil
}

func senderAddress(pubKey string) string {
	key := rpcAddress(strings.TrimSpace(pubKey))
	if key == "" {
		return ""
	}
	return entity.CanonicalAddress(keytools.GetAddressFromPublic(util.DecodeHex(key)))
}
