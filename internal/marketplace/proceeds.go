package marketplace

import (
	"context"
	"math/big"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"go.uber.org/zap"
)

// WithdrawProceeds pays out the caller's whole balance. The balance is zeroed
// before the payment is attempted and restored if the payment fails.
func (m *marketplace) WithdrawProceeds(ctx context.Context, caller string) (*big.Int, error) {
	var withdrawn *big.Int
	caller = entity.CanonicalAddress(caller)

	err := m.transact(ctx, opWithdrawProceeds, nil, func(ctx context.Context, tx *txn) error {
		balance, err := tx.state.GetProceeds(ctx, caller)
		if err != nil {
			return internalError(opWithdrawProceeds, nil, err)
		}
		if !isPositive(balance) {
			return newError(opWithdrawProceeds, KindValidation, nil, ErrNoProceeds)
		}
		amount := new(big.Int).Set(balance)

		if err := tx.setProceeds(ctx, caller, new(big.Int)); err != nil {
			return internalError(opWithdrawProceeds, nil, err)
		}
		tx.emit(event.ProceedsWithdrawnEvent, entity.MarketplaceAction{
			Action: entity.WithdrawalAction,
			Seller: caller,
			Paid:   amount,
		})

		if err := m.payments.Pay(ctx, caller, amount); err != nil {
			return collaboratorError(opWithdrawProceeds, nil, ErrWithdrawFailed, err)
		}

		zap.L().With(zap.String("owner", caller), zap.String("amount", amount.String())).Info("Marketplace: Proceeds withdrawn")
		withdrawn = amount

		return nil
	})

	m.logRejected(opWithdrawProceeds, nil, caller, err)
	if err != nil {
		return nil, err
	}

	return withdrawn, nil
}
