package marketplace

import (
	"context"
	"math/big"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"go.uber.org/zap"
)

func (m *marketplace) ListItem(ctx context.Context, contract string, tokenId uint64, price *big.Int, caller string) error {
	contract, caller = entity.CanonicalAddress(contract), entity.CanonicalAddress(caller)
	key := &entity.ListingKey{Contract: contract, TokenId: tokenId}

	err := m.transact(ctx, opListItem, key, func(ctx context.Context, tx *txn) error {
		_, listed, err := tx.state.GetListing(ctx, *key)
		if err != nil {
			return internalError(opListItem, key, err)
		}
		if listed {
			return newError(opListItem, KindValidation, key, ErrAlreadyListed)
		}

		owner, err := m.registry.OwnerOf(ctx, contract, tokenId)
		if err != nil {
			return collaboratorError(opListItem, key, ErrAssetRegistry, err)
		}
		if !sameIdentity(owner, caller) {
			return newError(opListItem, KindAuthorization, key, ErrNotOwner)
		}
		if !isPositive(price) {
			return newError(opListItem, KindValidation, key, ErrPriceMustBePositive)
		}

		approved, err := m.registry.IsApprovedForMarketplace(ctx, contract, tokenId, m.address)
		if err != nil {
			return collaboratorError(opListItem, key, ErrAssetRegistry, err)
		}
		if !approved {
			return newError(opListItem, KindAuthorization, key, ErrNotApprovedForMarketplace)
		}

		listing := entity.Listing{Contract: contract, TokenId: tokenId, Seller: caller, Price: new(big.Int).Set(price)}
		if err := tx.putListing(ctx, listing); err != nil {
			return internalError(opListItem, key, err)
		}
		tx.emit(event.ItemListedEvent, entity.MarketplaceAction{
			Action:   entity.ListingAction,
			Contract: contract,
			TokenId:  tokenId,
			Seller:   caller,
			Price:    listing.Price,
		})

		zap.L().With(
			zap.String("contract", contract),
			zap.Uint64("tokenId", tokenId),
			zap.String("seller", caller),
			zap.String("price", price.String()),
		).Info("Marketplace: Item listed")

		return nil
	})

	m.logRejected(opListItem, key, caller, err)
	return err
}

func (m *marketplace) UpdateListing(ctx context.Context, contract string, tokenId uint64, newPrice *big.Int, caller string) error {
	contract, caller = entity.CanonicalAddress(contract), entity.CanonicalAddress(caller)
	key := &entity.ListingKey{Contract: contract, TokenId: tokenId}

	err := m.transact(ctx, opUpdateListing, key, func(ctx context.Context, tx *txn) error {
		listing, err := sellersListing(ctx, tx, opUpdateListing, key, caller)
		if err != nil {
			return err
		}
		if !isPositive(newPrice) {
			return newError(opUpdateListing, KindValidation, key, ErrPriceMustBePositive)
		}

		listing.Price = new(big.Int).Set(newPrice)
		if err := tx.putListing(ctx, listing); err != nil {
			return internalError(opUpdateListing, key, err)
		}
		tx.emit(event.ListingUpdatedEvent, entity.MarketplaceAction{
			Action:   entity.UpdateAction,
			Contract: contract,
			TokenId:  tokenId,
			Seller:   caller,
			Price:    listing.Price,
		})

		zap.L().With(
			zap.String("contract", contract),
			zap.Uint64("tokenId", tokenId),
			zap.String("price", newPrice.String()),
		).Info("Marketplace: Listing updated")

		return nil
	})

	m.logRejected(opUpdateListing, key, caller, err)
	return err
}

func (m *marketplace) CancelItem(ctx context.Context, contract string, tokenId uint64, caller string) error {
	contract, caller = entity.CanonicalAddress(contract), entity.CanonicalAddress(caller)
	key := &entity.ListingKey{Contract: contract, TokenId: tokenId}

	err := m.transact(ctx, opCancelItem, key, func(ctx context.Context, tx *txn) error {
		listing, err := sellersListing(ctx, tx, opCancelItem, key, caller)
		if err != nil {
			return err
		}

		if err := tx.deleteListing(ctx, *key); err != nil {
			return internalError(opCancelItem, key, err)
		}
		tx.emit(event.ItemCanceledEvent, entity.MarketplaceAction{
			Action:   entity.DelistingAction,
			Contract: contract,
			TokenId:  tokenId,
			Seller:   caller,
			Price:    listing.Price,
		})

		zap.L().With(zap.String("contract", contract), zap.Uint64("tokenId", tokenId)).Info("Marketplace: Item canceled")

		return nil
	})

	m.logRejected(opCancelItem, key, caller, err)
	return err
}

// sellersListing returns the listing for key when caller is the seller who created it.
func sellersListing(ctx context.Context, tx *txn, op string, key *entity.ListingKey, caller string) (entity.Listing, error) {
	listing, listed, err := tx.state.GetListing(ctx, *key)
	if err != nil {
		return entity.Listing{}, internalError(op, key, err)
	}
	if !listed {
		return entity.Listing{}, newError(op, KindValidation, key, ErrNotListed)
	}
	if !sameIdentity(listing.Seller, caller) {
		return entity.Listing{}, newError(op, KindAuthorization, key, ErrNotOwner)
	}

	return listing.Copy(), nil
}
