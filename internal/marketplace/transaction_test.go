package marketplace

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/storage"
	storagememory "github.com/ZilDuck/zilliqa-nft-marketplace/internal/storage/memory"
	"github.com/stretchr/testify/require"
)

// faultyStore lets a test break the backend partway through an operation.
type faultyStore struct {
	*storagememory.Store
	rollbackErr    error
	setProceedsErr error
}

func (s *faultyStore) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyTx{Tx: tx, store: s}, nil
}

type faultyTx struct {
	storage.Tx
	store *faultyStore
}

func (tx *faultyTx) SetProceeds(ctx context.Context, owner string, balance *big.Int) error {
	if tx.store.setProceedsErr != nil {
		return tx.store.setProceedsErr
	}
	return tx.Tx.SetProceeds(ctx, owner, balance)
}

func (tx *faultyTx) Rollback() error {
	err := tx.Tx.Rollback()
	if tx.store.rollbackErr != nil {
		return tx.store.rollbackErr
	}
	return err
}

func withFaultyStore(f *fixture) *faultyStore {
	faulty := &faultyStore{Store: f.store}
	f.svc = NewMarketplace(engineAddr, faulty, f.registry, f.ledger, f.events)
	return faulty
}

func TestReentrantBuyDuringTransferSeesListingGone(t *testing.T) {
	f := newFixture(t)
	f.listed(t, 1, 100)

	var nestedBuy error
	var nestedListingGone bool
	var nestedProceeds *big.Int

	f.registry.OnTransfer(func(ctx context.Context, contract string, tokenId uint64, from, to string) error {
		nestedBuy = f.svc.BuyItem(ctx, contract, tokenId, f.pay(t, stranger, 100), stranger)

		listing, err := f.svc.GetListing(ctx, contract, tokenId)
		require.NoError(t, err)
		nestedListingGone = listing == nil

		nestedProceeds, err = f.svc.GetProceeds(ctx, from)
		require.NoError(t, err)
		return nil
	})

	require.NoError(t, f.svc.BuyItem(f.ctx, nftAddr, 1, f.pay(t, buyer, 100), buyer))

	require.ErrorIs(t, nestedBuy, ErrNotListed)
	require.True(t, nestedListingGone)
	require.Equal(t, "100", nestedProceeds.String())

	f.requireOwner(t, 1, buyer)
	f.requireProceeds(t, seller, 100)
}

func TestReentrantWithdrawDuringPaymentSeesZeroBalance(t *testing.T) {
	f := newFixture(t)
	f.listed(t, 1, 100)
	require.NoError(t, f.svc.BuyItem(f.ctx, nftAddr, 1, f.pay(t, buyer, 100), buyer))

	var nested error
	calls := 0
	f.ledger.OnPay(func(ctx context.Context, recipient string, amount *big.Int) error {
		calls++
		if calls == 1 {
			_, nested = f.svc.WithdrawProceeds(ctx, recipient)
		}
		return nil
	})

	withdrawn, err := f.svc.WithdrawProceeds(f.ctx, seller)
	require.NoError(t, err)
	require.Equal(t, "100", withdrawn.String())

	require.ErrorIs(t, nested, ErrNoProceeds)
	require.Equal(t, 1, calls)
	require.Equal(t, "100", f.ledger.Paid(seller).String())
	f.requireProceeds(t, seller, 0)
}

func TestFailedNestedOperationOnlyRollsBackItself(t *testing.T) {
	f := newFixture(t)
	f.listed(t, 1, 100)
	f.mintApproved(t, 2, buyer)

	var nested error
	f.registry.OnTransfer(func(ctx context.Context, contract string, tokenId uint64, from, to string) error {
		// the buyer tries to list with a bad price while receiving the token
		nested = f.svc.ListItem(ctx, contract, 2, big.NewInt(0), to)
		return nil
	})

	require.NoError(t, f.svc.BuyItem(f.ctx, nftAddr, 1, f.pay(t, buyer, 100), buyer))
	require.ErrorIs(t, nested, ErrPriceMustBePositive)

	f.requireNotListed(t, 1)
	f.requireNotListed(t, 2)
	f.requireProceeds(t, seller, 100)
}

func TestOuterFailureRollsBackNestedWrites(t *testing.T) {
	f := newFixture(t)
	f.listed(t, 1, 100)
	f.mintApproved(t, 2, buyer)

	rejected := errors.New("receiver rejected token")
	var nested error
	f.registry.OnTransfer(func(ctx context.Context, contract string, tokenId uint64, from, to string) error {
		nested = f.svc.ListItem(ctx, contract, 2, big.NewInt(5), to)
		return rejected
	})

	err := f.svc.BuyItem(f.ctx, nftAddr, 1, f.pay(t, buyer, 100), buyer)
	require.ErrorIs(t, err, ErrTransferFailed)
	require.ErrorIs(t, err, rejected)
	require.NoError(t, nested)

	f.requireListing(t, 1, seller, 100)
	f.requireNotListed(t, 2)
	f.requireProceeds(t, seller, 0)
	f.requireOwner(t, 1, seller)

	// only the original listing was ever published
	require.Equal(t, []event.Type{event.ItemListedEvent}, f.events.types())
}

func TestNestedEventsShareTheOuterTransaction(t *testing.T) {
	f := newFixture(t)
	f.listed(t, 1, 100)
	f.mintApproved(t, 2, buyer)

	f.registry.OnTransfer(func(ctx context.Context, contract string, tokenId uint64, from, to string) error {
		return f.svc.ListItem(ctx, contract, 2, big.NewInt(5), to)
	})

	require.NoError(t, f.svc.BuyItem(f.ctx, nftAddr, 1, f.pay(t, buyer, 100), buyer))
	f.requireListing(t, 2, buyer, 5)

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	require.Len(t, f.events.events, 3)

	bought, listed := f.events.events[1], f.events.events[2]
	require.Equal(t, event.ItemBoughtEvent, bought.eventType)
	require.Equal(t, event.ItemListedEvent, listed.eventType)
	require.NotEmpty(t, bought.action.TxID)
	require.Equal(t, bought.action.TxID, listed.action.TxID)
	require.NotEqual(t, f.events.events[0].action.TxID, bought.action.TxID)
}

func TestTransactionFromAnotherMarketplaceIsNotJoined(t *testing.T) {
	f := newFixture(t)
	other := newFixture(t)
	f.listed(t, 1, 100)
	other.listed(t, 1, 100)

	f.registry.OnTransfer(func(ctx context.Context, contract string, tokenId uint64, from, to string) error {
		// a different engine must not treat f's transaction as its own
		require.Nil(t, other.svc.(*marketplace).activeTxn(ctx))
		return nil
	})

	require.NoError(t, f.svc.BuyItem(f.ctx, nftAddr, 1, f.pay(t, buyer, 100), buyer))
	other.requireListing(t, 1, seller, 100)
}

func TestFailedRollbackIsReported(t *testing.T) {
	f := newFixture(t)
	faulty := withFaultyStore(f)
	f.listed(t, 1, 100)

	diskGone := errors.New("disk gone")
	faulty.rollbackErr = diskGone
	f.registry.FailTransfers(errors.New("receiver rejected token"))

	err := f.svc.BuyItem(f.ctx, nftAddr, 1, f.pay(t, buyer, 100), buyer)
	require.ErrorIs(t, err, ErrTransferFailed)
	require.ErrorIs(t, err, diskGone)
	require.Equal(t, KindCollaborator, KindOf(err))

	f.requireListing(t, 1, seller, 100)
	f.requireProceeds(t, seller, 0)
}

func TestIncompleteNestedRollbackAbortsTheOuterOperation(t *testing.T) {
	f := newFixture(t)
	faulty := withFaultyStore(f)
	f.listed(t, 1, 100)
	f.listed(t, 2, 100)

	undoFailed := errors.New("write failed")
	var nested error
	f.registry.OnTransfer(func(ctx context.Context, contract string, tokenId uint64, from, to string) error {
		if tokenId == 1 {
			nested = f.svc.BuyItem(ctx, contract, 2, f.pay(t, stranger, 100), stranger)
			return nil
		}
		// the nested purchase fails after crediting the seller, and undoing
		// that credit fails too
		faulty.setProceedsErr = undoFailed
		return errors.New("receiver rejected token")
	})

	err := f.svc.BuyItem(f.ctx, nftAddr, 1, f.pay(t, buyer, 100), buyer)
	require.ErrorIs(t, err, undoFailed)
	require.Equal(t, KindInternal, KindOf(err))

	require.ErrorIs(t, nested, ErrTransferFailed)
	require.ErrorIs(t, nested, undoFailed)

	faulty.setProceedsErr = nil
	f.requireListing(t, 1, seller, 100)
	f.requireListing(t, 2, seller, 100)
	f.requireProceeds(t, seller, 0)
	require.Equal(t, []event.Type{event.ItemListedEvent, event.ItemListedEvent}, f.events.types())
}
