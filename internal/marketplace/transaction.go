package marketplace

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/storage"
	"github.com/nu7hatch/gouuid"
	"go.uber.org/zap"
)

type txnKey struct{}

// txn is one top-level operation and every operation that re-enters through a
// collaborator while it runs. All of them write through the same backend
// transaction. The undo journal only serves nested operations that fail on
// their own, and events are held back until the backend transaction commits.
type txn struct {
	m      *marketplace
	id     string
	state  storage.Tx
	undo   []func(ctx context.Context) error
	events []pendingEvent
	// broken is set when a nested rollback could not be completed
	broken error
}

type pendingEvent struct {
	eventType event.Type
	action    entity.MarketplaceAction
}

type savepoint struct {
	undo   int
	events int
}

func (m *marketplace) activeTxn(ctx context.Context) *txn {
	tx, ok := ctx.Value(txnKey{}).(*txn)
	if ok && tx.m == m {
		return tx
	}
	return nil
}

// transact runs fn with all-or-nothing semantics. A call carrying an active
// transaction in ctx joins it and on failure only rolls back its own writes.
// Collaborators must pass the ctx they were given back into the marketplace
// when they re-enter it.
func (m *marketplace) transact(ctx context.Context, op string, key *entity.ListingKey, fn func(ctx context.Context, tx *txn) error) error {
	if tx := m.activeTxn(ctx); tx != nil {
		sp := tx.savepoint()
		if err := fn(ctx, tx); err != nil {
			return tx.rollbackTo(ctx, sp, err)
		}
		return nil
	}

	events, err := m.commit(ctx, op, key, fn)
	if err != nil {
		return err
	}
	defer m.emitMu.Unlock()

	for _, e := range events {
		m.events.EmitEvent(e.eventType, e.action)
	}

	return nil
}

// commit runs fn under the exclusive lock and commits the backend transaction
// after every external call made by fn has returned. On success it returns
// holding emitMu, which the caller releases after publishing the events.
func (m *marketplace) commit(ctx context.Context, op string, key *entity.ListingKey, fn func(ctx context.Context, tx *txn) error) ([]pendingEvent, error) {
	committed := false

	m.mu.Lock()
	defer func() {
		if committed {
			m.emitMu.Lock()
		}
		m.mu.Unlock()
	}()

	state, err := m.store.Begin(ctx)
	if err != nil {
		return nil, internalError(op, key, fmt.Errorf("begin: %w", err))
	}

	tx := &txn{m: m, id: newTxID(), state: state}
	ctx = context.WithValue(ctx, txnKey{}, tx)

	if err := fn(ctx, tx); err != nil {
		return nil, tx.abort(err)
	}
	if tx.broken != nil {
		return nil, tx.abort(internalError(op, key, tx.broken))
	}
	if err := state.Commit(); err != nil {
		zap.L().With(zap.String("txId", tx.id), zap.String("operation", op), zap.Error(err)).Error("Marketplace: Failed to commit")
		return nil, internalError(op, key, fmt.Errorf("commit: %w", err))
	}

	committed = true
	return tx.events, nil
}

// abort discards the backend transaction. A failed rollback is reported
// alongside err.
func (tx *txn) abort(err error) error {
	if rbErr := tx.state.Rollback(); rbErr != nil {
		zap.L().With(zap.String("txId", tx.id), zap.Error(rbErr)).Error("Marketplace: Failed to roll back")
		return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
	}

	zap.L().With(zap.String("txId", tx.id)).Debug("Marketplace: Rolled back")
	return err
}

func (tx *txn) savepoint() savepoint {
	return savepoint{undo: len(tx.undo), events: len(tx.events)}
}

// rollbackTo undoes the writes made since sp inside the still open backend
// transaction. If any of them cannot be undone the whole transaction is
// marked broken so the top-level operation will not commit.
func (tx *txn) rollbackTo(ctx context.Context, sp savepoint, cause error) error {
	ctx = context.WithoutCancel(ctx)

	var failed []error
	for i := len(tx.undo) - 1; i >= sp.undo; i-- {
		if err := tx.undo[i](ctx); err != nil {
			failed = append(failed, err)
		}
	}
	tx.undo = tx.undo[:sp.undo]
	tx.events = tx.events[:sp.events]

	if len(failed) == 0 {
		zap.L().With(zap.String("txId", tx.id)).Debug("Marketplace: Rolled back to savepoint")
		return cause
	}

	undoErr := errors.Join(failed...)
	tx.broken = errors.Join(tx.broken, undoErr)
	zap.L().With(zap.String("txId", tx.id), zap.Error(undoErr)).Error("Marketplace: Failed to roll back to savepoint")

	return errors.Join(cause, fmt.Errorf("rollback: %w", undoErr))
}

func (tx *txn) putListing(ctx context.Context, listing entity.Listing) error {
	state := tx.state
	key := listing.Key()

	prev, found, err := state.GetListing(ctx, key)
	if err != nil {
		return err
	}
	if err := state.PutListing(ctx, listing.Copy()); err != nil {
		return err
	}

	tx.undo = append(tx.undo, func(ctx context.Context) error {
		if found {
			return state.PutListing(ctx, prev)
		}
		return state.DeleteListing(ctx, key)
	})

	return nil
}

func (tx *txn) deleteListing(ctx context.Context, key entity.ListingKey) error {
	state := tx.state

	prev, found, err := state.GetListing(ctx, key)
	if err != nil || !found {
		return err
	}
	if err := state.DeleteListing(ctx, key); err != nil {
		return err
	}

	tx.undo = append(tx.undo, func(ctx context.Context) error {
		return state.PutListing(ctx, prev)
	})

	return nil
}

func (tx *txn) setProceeds(ctx context.Context, owner string, balance *big.Int) error {
	state := tx.state

	prev, err := state.GetProceeds(ctx, owner)
	if err != nil {
		return err
	}
	if prev == nil {
		prev = new(big.Int)
	}
	prev = new(big.Int).Set(prev)

	if err := state.SetProceeds(ctx, owner, new(big.Int).Set(balance)); err != nil {
		return err
	}

	tx.undo = append(tx.undo, func(ctx context.Context) error {
		return state.SetProceeds(ctx, owner, prev)
	})

	return nil
}

func (tx *txn) credit(ctx context.Context, owner string, amount *big.Int) error {
	balance, err := tx.state.GetProceeds(ctx, owner)
	if err != nil {
		return err
	}
	if balance == nil {
		balance = new(big.Int)
	}

	return tx.setProceeds(ctx, owner, new(big.Int).Add(balance, amount))
}

func (tx *txn) spendReceipt(ctx context.Context, receipt string) error {
	state := tx.state

	if err := state.PutReceipt(ctx, receipt); err != nil {
		return err
	}

	tx.undo = append(tx.undo, func(ctx context.Context) error {
		return state.DeleteReceipt(ctx, receipt)
	})

	return nil
}

func (tx *txn) emit(eventType event.Type, action entity.MarketplaceAction) {
	action.TxID = tx.id
	action.Time = tx.m.clock()
	tx.events = append(tx.events, pendingEvent{eventType, action})
}

func newTxID() string {
	u, err := uuid.NewV4()
	if err != nil {
		return ""
	}
	return u.String()
}
