package marketplace

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"go.uber.org/zap"
)

var errSellerNoLongerOwns = errors.New("seller no longer owns the asset")

// sale is a purchase whose effects are already applied to the stores and which
// only waits for the asset to move.
type sale struct {
	listing entity.Listing
	buyer   string
	paid    *big.Int
}

// BuyItem pays for a listed asset with the funds proven by receipt. Only the
// amount the payment channel actually received is credited to the seller,
// and a receipt pays for at most one purchase.
func (m *marketplace) BuyItem(ctx context.Context, contract string, tokenId uint64, receipt string, buyer string) error {
	contract, buyer = entity.CanonicalAddress(contract), entity.CanonicalAddress(buyer)
	receipt = canonicalReceipt(receipt)
	key := &entity.ListingKey{Contract: contract, TokenId: tokenId}

	err := m.transact(ctx, opBuyItem, key, func(ctx context.Context, tx *txn) error {
		listing, listed, err := tx.state.GetListing(ctx, *key)
		if err != nil {
			return internalError(opBuyItem, key, err)
		}
		if !listed {
			return newError(opBuyItem, KindValidation, key, ErrNotListed)
		}

		paid, err := m.collectPayment(ctx, tx, key, buyer, receipt)
		if err != nil {
			return err
		}
		if paid.Cmp(listing.Price) < 0 {
			return newError(opBuyItem, KindValidation, key, ErrPriceNotMet)
		}

		owner, err := m.registry.OwnerOf(ctx, contract, tokenId)
		if err != nil {
			return collaboratorError(opBuyItem, key, ErrAssetRegistry, err)
		}
		if !sameIdentity(owner, listing.Seller) {
			return collaboratorError(opBuyItem, key, ErrTransferFailed, errSellerNoLongerOwns)
		}

		s, err := m.applySale(ctx, tx, listing.Copy(), buyer, receipt, paid)
		if err != nil {
			return internalError(opBuyItem, key, err)
		}

		return m.deliverAsset(ctx, s)
	})

	m.logRejected(opBuyItem, key, buyer, err)
	return err
}

// collectPayment returns what receipt paid into custody. A missing receipt
// pays nothing.
func (m *marketplace) collectPayment(ctx context.Context, tx *txn, key *entity.ListingKey, buyer, receipt string) (*big.Int, error) {
	if receipt == "" {
		return new(big.Int), nil
	}

	spent, err := tx.state.HasReceipt(ctx, receipt)
	if err != nil {
		return nil, internalError(opBuyItem, key, err)
	}
	if spent {
		return nil, newError(opBuyItem, KindValidation, key, ErrReceiptAlreadyUsed)
	}

	paid, err := m.payments.Collect(ctx, buyer, receipt)
	if errors.Is(err, entity.ErrPaymentRejected) {
		return nil, newError(opBuyItem, KindValidation, key, fmt.Errorf("%w: %w", ErrPaymentNotReceived, err))
	}
	if err != nil {
		return nil, collaboratorError(opBuyItem, key, ErrPaymentNotReceived, err)
	}
	if paid == nil {
		return new(big.Int), nil
	}

	return new(big.Int).Set(paid), nil
}

// applySale removes the listing and credits the seller before anything leaves
// the marketplace, so a re-entrant call during the transfer sees the item gone.
func (m *marketplace) applySale(ctx context.Context, tx *txn, listing entity.Listing, buyer, receipt string, paid *big.Int) (sale, error) {
	if err := tx.spendReceipt(ctx, receipt); err != nil {
		return sale{}, err
	}
	if err := tx.deleteListing(ctx, listing.Key()); err != nil {
		return sale{}, err
	}
	if err := tx.credit(ctx, listing.Seller, paid); err != nil {
		return sale{}, err
	}

	if paid.Cmp(listing.Price) > 0 {
		zap.L().With(
			zap.String("contract", listing.Contract),
			zap.Uint64("tokenId", listing.TokenId),
			zap.String("price", listing.Price.String()),
			zap.String("paid", paid.String()),
		).Warn("Marketplace: Overpayment credited to seller")
	}

	tx.emit(event.ItemBoughtEvent, entity.MarketplaceAction{
		Action:   entity.SaleAction,
		Contract: listing.Contract,
		TokenId:  listing.TokenId,
		Seller:   listing.Seller,
		Buyer:    buyer,
		Price:    listing.Price,
		Paid:     paid,
	})

	return sale{listing: listing, buyer: buyer, paid: paid}, nil
}

func (m *marketplace) deliverAsset(ctx context.Context, s sale) error {
	key := s.listing.Key()

	if err := m.registry.Transfer(ctx, key.Contract, key.TokenId, s.listing.Seller, s.buyer); err != nil {
		return collaboratorError(opBuyItem, &key, ErrTransferFailed, err)
	}

	zap.L().With(
		zap.String("contract", key.Contract),
		zap.Uint64("tokenId", key.TokenId),
		zap.String("from", s.listing.Seller),
		zap.String("to", s.buyer),
		zap.String("paid", s.paid.String()),
	).Info("Marketplace: Item bought")

	return nil
}
