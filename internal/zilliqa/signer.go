package zilliqa

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Zilliqa/gozilliqa-sdk/account"
	"github.com/Zilliqa/gozilliqa-sdk/core"
	"github.com/Zilliqa/gozilliqa-sdk/keytools"
	provider2 "github.com/Zilliqa/gozilliqa-sdk/provider"
	"github.com/Zilliqa/gozilliqa-sdk/transaction"
	"github.com/Zilliqa/gozilliqa-sdk/util"
	"go.uber.org/zap"
)

var (
	ErrInvalidPrivateKey = errors.New("invalid private key")
	ErrTransactionFailed = errors.New("transaction failed")
	ErrNotConfirmed      = errors.New("transaction not confirmed")
)

const msgVersion = 1

type SignerConfig struct {
	ChainId         int
	PrivateKey      string
	GasPrice        string
	ConfirmAttempts int
	ConfirmInterval time.Duration
}

// Signer signs transactions with the marketplace key, submits them and waits
// for them to be confirmed. Transactions from one signer are sent one at a
// time so nonces never collide.
type Signer struct {
	provider    *Provider
	sdkProvider *provider2.Provider
	wallet      *account.Wallet
	address     string
	cfg         SignerConfig

	mu sync.Mutex
}

type callData struct {
	Tag    string               `json:"_tag"`
	Params []core.ContractValue `json:"params"`
}

func NewSigner(provider *Provider, cfg SignerConfig) (*Signer, error) {
	key := strings.TrimPrefix(strings.ToLower(cfg.PrivateKey), "0x")
	if raw, err := hex.DecodeString(key); err != nil || len(raw) != 32 {
		return nil, ErrInvalidPrivateKey
	}

	if cfg.ConfirmAttempts <= 0 {
		cfg.ConfirmAttempts = 30
	}
	if cfg.ConfirmInterval <= 0 {
		cfg.ConfirmInterval = 3 * time.Second
	}

	wallet := account.NewWallet()
	wallet.AddByPrivateKey(key)

	publicKey := keytools.GetPublicKeyFromPrivateKey(util.DecodeHex(key), true)
	address := "0x" + strings.ToLower(keytools.GetAddressFromPublic(publicKey))

	return &Signer{
		provider:    provider,
		sdkProvider: provider2.NewProvider(provider.Url()),
		wallet:      wallet,
		address:     address,
		cfg:         cfg,
	}, nil
}

func (s *Signer) Address() string {
	return s.address
}

// Send moves amount Qa to toAddr, optionally invoking a transition when data is set.
func (s *Signer) Send(ctx context.Context, toAddr string, amount *big.Int, data string, gasLimit string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, err := s.provider.GetBalance(ctx, s.address)
	if err != nil {
		return nil, err
	}

	gasPrice := s.cfg.GasPrice
	if gasPrice == "" {
		if gasPrice, err = s.provider.GetMinimumGasPrice(ctx); err != nil {
			return nil, err
		}
	}

	tx := &transaction.Transaction{
		Version:  strconv.FormatInt(int64(util.Pack(s.cfg.ChainId, msgVersion)), 10),
		Nonce:    strconv.FormatInt(balance.Nonce+1, 10),
		ToAddr:   rpcAddress(toAddr),
		Amount:   amount.String(),
		GasPrice: gasPrice,
		GasLimit: gasLimit,
		Data:     data,
		Priority: false,
	}

	if err := s.wallet.Sign(tx, *s.sdkProvider); err != nil {
		return nil, err
	}

	result, err := s.provider.CreateTransaction(ctx, tx.ToTransactionPayload())
	if err != nil {
		return nil, err
	}

	zap.L().With(
		zap.String("txId", result.TranID),
		zap.String("to", toAddr),
		zap.String("amount", amount.String()),
	).Info("Zilliqa: Transaction submitted")

	return s.confirm(ctx, result.TranID)
}

// Call invokes transition on contract with no ZIL attached.
func (s *Signer) Call(ctx context.Context, contract, transition string, params []core.ContractValue, gasLimit string) (*Transaction, error) {
	data, err := json.Marshal(callData{Tag: transition, Params: params})
	if err != nil {
		return nil, err
	}

	return s.Send(ctx, contract, new(big.Int), string(data), gasLimit)
}

func (s *Signer) confirm(ctx context.Context, txId string) (*Transaction, error) {
	for attempt := 1; attempt <= s.cfg.ConfirmAttempts; attempt++ {
		tx, err := s.provider.GetTransaction(ctx, txId)
		if err == nil {
			if !tx.Receipt.Success {
				return tx, fmt.Errorf("%w: %s %s", ErrTransactionFailed, txId, exceptionMessages(tx.Receipt))
			}
			zap.L().With(zap.String("txId", txId), zap.String("epoch", tx.Receipt.EpochNum)).Info("Zilliqa: Transaction confirmed")
			return tx, nil
		}

		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			return nil, err
		}
		zap.L().With(zap.String("txId", txId), zap.Int("attempt", attempt)).Debug("Zilliqa: Transaction pending")

		timer := time.NewTimer(s.cfg.ConfirmInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotConfirmed, txId)
}

func exceptionMessages(receipt TransactionReceipt) string {
	messages := make([]string, 0, len(receipt.Exceptions))
	for _, e := range receipt.Exceptions {
		messages = append(messages, e.Message)
	}
	return strings.Join(messages, "; ")
}
