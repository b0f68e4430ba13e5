// Package storetest holds the behaviour every marketplace store backend must share.
package storetest

import (
	"context"
	"math/big"
	"testing"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/storage"
	"github.com/stretchr/testify/require"
)

const (
	ContractA = "0x1111111111111111111111111111111111111111"
	ContractB = "0x2222222222222222222222222222222222222222"
	Seller    = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	Buyer     = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func RunListingStore(t *testing.T, s storage.Store) {
	ctx := context.Background()
	key := entity.ListingKey{Contract: ContractA, TokenId: 1}

	_, found, err := s.GetListing(ctx, key)
	require.NoError(t, err)
	require.False(t, found)

	listing := entity.Listing{Contract: ContractA, TokenId: 1, Seller: Seller, Price: big.NewInt(100)}
	require.NoError(t, s.PutListing(ctx, listing))

	got, found, err := s.GetListing(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, Seller, got.Seller)
	require.Equal(t, "100", got.Price.String())

	// the store must not alias the caller's price
	got.Price.SetInt64(1)
	again, _, err := s.GetListing(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "100", again.Price.String())

	// put replaces in place
	listing.Price = big.NewInt(250)
	require.NoError(t, s.PutListing(ctx, listing))
	got, _, err = s.GetListing(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "250", got.Price.String())

	huge, ok := new(big.Int).SetString("18446744073709551616000", 10)
	require.True(t, ok)
	require.NoError(t, s.PutListing(ctx, entity.Listing{Contract: ContractB, TokenId: ^uint64(0), Seller: Buyer, Price: huge}))
	require.NoError(t, s.PutListing(ctx, entity.Listing{Contract: ContractA, TokenId: 2, Seller: Seller, Price: big.NewInt(5)}))

	all, err := s.AllListings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, uint64(1), all[0].TokenId)
	require.Equal(t, uint64(2), all[1].TokenId)
	require.Equal(t, ^uint64(0), all[2].TokenId)
	require.Equal(t, huge.String(), all[2].Price.String())

	require.NoError(t, s.DeleteListing(ctx, key))
	_, found, err = s.GetListing(ctx, key)
	require.NoError(t, err)
	require.False(t, found)

	// deleting an absent listing is not an error
	require.NoError(t, s.DeleteListing(ctx, key))
}

func RunProceedsStore(t *testing.T, s storage.Store) {
	ctx := context.Background()

	balance, err := s.GetProceeds(ctx, Seller)
	require.NoError(t, err)
	require.Equal(t, 0, balance.Sign())

	require.NoError(t, s.SetProceeds(ctx, Seller, big.NewInt(100)))
	require.NoError(t, s.SetProceeds(ctx, Buyer, big.NewInt(7)))

	balance, err = s.GetProceeds(ctx, Seller)
	require.NoError(t, err)
	require.Equal(t, "100", balance.String())

	balance.SetInt64(0)
	balance, err = s.GetProceeds(ctx, Seller)
	require.NoError(t, err)
	require.Equal(t, "100", balance.String())

	accounts, err := s.AllProceeds(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	require.Equal(t, Seller, accounts[0].Owner)
	require.Equal(t, Buyer, accounts[1].Owner)

	require.NoError(t, s.SetProceeds(ctx, Seller, new(big.Int)))
	balance, err = s.GetProceeds(ctx, Seller)
	require.NoError(t, err)
	require.Equal(t, 0, balance.Sign())

	accounts, err = s.AllProceeds(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
}

func RunReceiptStore(t *testing.T, s storage.Store) {
	ctx := context.Background()

	spent, err := s.HasReceipt(ctx, "receipt-1")
	require.NoError(t, err)
	require.False(t, spent)

	require.NoError(t, s.PutReceipt(ctx, "receipt-1"))
	require.NoError(t, s.PutReceipt(ctx, "receipt-1"))

	spent, err = s.HasReceipt(ctx, "receipt-1")
	require.NoError(t, err)
	require.True(t, spent)

	require.NoError(t, s.DeleteReceipt(ctx, "receipt-1"))
	spent, err = s.HasReceipt(ctx, "receipt-1")
	require.NoError(t, err)
	require.False(t, spent)
}

// RunTransactions never reads through the store while a transaction is open,
// since a single connection backend would wait on itself.
func RunTransactions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	kept := entity.Listing{Contract: ContractA, TokenId: 1, Seller: Seller, Price: big.NewInt(100)}
	require.NoError(t, s.PutListing(ctx, kept))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.DeleteListing(ctx, kept.Key()))
	require.NoError(t, tx.PutListing(ctx, entity.Listing{Contract: ContractB, TokenId: 2, Seller: Buyer, Price: big.NewInt(7)}))
	require.NoError(t, tx.SetProceeds(ctx, Seller, big.NewInt(100)))
	require.NoError(t, tx.PutReceipt(ctx, "receipt-1"))

	// a transaction reads its own writes
	_, found, err := tx.GetListing(ctx, kept.Key())
	require.NoError(t, err)
	require.False(t, found)
	listings, err := tx.AllListings(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.Equal(t, ContractB, listings[0].Contract)
	balance, err := tx.GetProceeds(ctx, Seller)
	require.NoError(t, err)
	require.Equal(t, "100", balance.String())
	spent, err := tx.HasReceipt(ctx, "receipt-1")
	require.NoError(t, err)
	require.True(t, spent)

	require.NoError(t, tx.Rollback())
	require.ErrorIs(t, tx.Commit(), storage.ErrTxDone)

	_, found, err = s.GetListing(ctx, kept.Key())
	require.NoError(t, err)
	require.True(t, found)
	_, found, err = s.GetListing(ctx, entity.ListingKey{Contract: ContractB, TokenId: 2})
	require.NoError(t, err)
	require.False(t, found)
	balance, err = s.GetProceeds(ctx, Seller)
	require.NoError(t, err)
	require.Equal(t, 0, balance.Sign())
	spent, err = s.HasReceipt(ctx, "receipt-1")
	require.NoError(t, err)
	require.False(t, spent)

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteListing(ctx, kept.Key()))
	require.NoError(t, tx.SetProceeds(ctx, Seller, big.NewInt(100)))
	require.NoError(t, tx.PutReceipt(ctx, "receipt-1"))
	require.NoError(t, tx.Commit())
	require.ErrorIs(t, tx.Rollback(), storage.ErrTxDone)

	_, found, err = s.GetListing(ctx, kept.Key())
	require.NoError(t, err)
	require.False(t, found)
	balance, err = s.GetProceeds(ctx, Seller)
	require.NoError(t, err)
	require.Equal(t, "100", balance.String())
	spent, err = s.HasReceipt(ctx, "receipt-1")
	require.NoError(t, err)
	require.True(t, spent)
}
