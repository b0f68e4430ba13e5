// Package storage declares the state a marketplace keeps and how backends
// group writes into transactions. Implementations live in the sub packages.
package storage

import (
	"context"
	"errors"
	"math/big"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
)

var ErrTxDone = errors.New("transaction already committed or rolled back")

type ListingStore interface {
	GetListing(ctx context.Context, key entity.ListingKey) (entity.Listing, bool, error)
	PutListing(ctx context.Context, listing entity.Listing) error
	DeleteListing(ctx context.Context, key entity.ListingKey) error
	AllListings(ctx context.Context) ([]entity.Listing, error)
}

// ProceedsStore returns a zero balance for unknown owners. Setting a zero
// balance may remove the entry.
type ProceedsStore interface {
	GetProceeds(ctx context.Context, owner string) (*big.Int, error)
	SetProceeds(ctx context.Context, owner string, balance *big.Int) error
	AllProceeds(ctx context.Context) ([]entity.ProceedsAccount, error)
}

// ReceiptStore remembers payment receipts that already paid for a purchase.
type ReceiptStore interface {
	HasReceipt(ctx context.Context, receipt string) (bool, error)
	PutReceipt(ctx context.Context, receipt string) error
	DeleteReceipt(ctx context.Context, receipt string) error
}

type State interface {
	ListingStore
	ProceedsStore
	ReceiptStore
}

// Store is durable marketplace state. Every state changing operation runs
// inside one backend transaction opened with Begin.
type Store interface {
	State
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a backend transaction. Its writes are only visible through the
// transaction itself until Commit. Rollback discards them.
type Tx interface {
	State
	Commit() error
	Rollback() error
}
