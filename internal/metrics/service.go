package metrics

import (
	"context"
	"math/big"
	"time"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/marketplace"
)

type instrumentedService struct {
	marketplace.Service
	metrics Metrics
}

// NewInstrumentedService counts and times every state changing call made through svc.
func NewInstrumentedService(svc marketplace.Service, metrics Metrics) marketplace.Service {
	return instrumentedService{Service: svc, metrics: metrics}
}

func (s instrumentedService) ListItem(ctx context.Context, contract string, tokenId uint64, price *big.Int, caller string) error {
	return s.timed("listItem", func() error {
		return s.Service.ListItem(ctx, contract, tokenId, price, caller)
	})
}

func (s instrumentedService) UpdateListing(ctx context.Context, contract string, tokenId uint64, newPrice *big.Int, caller string) error {
	return s.timed("updateListing", func() error {
		return s.Service.UpdateListing(ctx, contract, tokenId, newPrice, caller)
	})
}

func (s instrumentedService) CancelItem(ctx context.Context, contract string, tokenId uint64, caller string) error {
	return s.timed("cancelItem", func() error {
		return s.Service.CancelItem(ctx, contract, tokenId, caller)
	})
}

func (s instrumentedService) BuyItem(ctx context.Context, contract string, tokenId uint64, receipt string, buyer string) error {
	return s.timed("buyItem", func() error {
		return s.Service.BuyItem(ctx, contract, tokenId, receipt, buyer)
	})
}

func (s instrumentedService) WithdrawProceeds(ctx context.Context, caller string) (amount *big.Int, err error) {
	err = s.timed("withdrawProceeds", func() error {
		amount, err = s.Service.WithdrawProceeds(ctx, caller)
		return err
	})
	return amount, err
}

func (s instrumentedService) timed(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.metrics.ObserveOperation(operation, time.Since(start).Seconds(), err)

	return err
}
