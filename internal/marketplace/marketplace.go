package marketplace

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/storage"
	"go.uber.org/zap"
)

const (
	opListItem         = "listItem"
	opUpdateListing    = "updateListing"
	opCancelItem       = "cancelItem"
	opBuyItem          = "buyItem"
	opWithdrawProceeds = "withdrawProceeds"
)

type Service interface {
	Address() string

	ListItem(ctx context.Context, contract string, tokenId uint64, price *big.Int, caller string) error
	UpdateListing(ctx context.Context, contract string, tokenId uint64, newPrice *big.Int, caller string) error
	CancelItem(ctx context.Context, contract string, tokenId uint64, caller string) error
	BuyItem(ctx context.Context, contract string, tokenId uint64, receipt string, buyer string) error
	WithdrawProceeds(ctx context.Context, caller string) (*big.Int, error)

	GetListing(ctx context.Context, contract string, tokenId uint64) (*entity.Listing, error)
	GetProceeds(ctx context.Context, owner string) (*big.Int, error)
	Listings(ctx context.Context) ([]entity.Listing, error)
}

// AssetRegistry is the system of record for asset ownership. The marketplace
// never caches what it returns.
type AssetRegistry interface {
	OwnerOf(ctx context.Context, contract string, tokenId uint64) (string, error)
	IsApprovedForMarketplace(ctx context.Context, contract string, tokenId uint64, operator string) (bool, error)
	Transfer(ctx context.Context, contract string, tokenId uint64, from, to string) error
}

// PaymentChannel moves funds into and out of marketplace custody.
type PaymentChannel interface {
	// Collect checks that receipt proves a payment from buyer to the
	// marketplace and returns the amount received. Receipts the channel
	// cannot accept are reported with entity.ErrPaymentRejected. Collect does
	// not remember receipts; spent receipts are kept in the store.
	Collect(ctx context.Context, buyer, receipt string) (*big.Int, error)
	Pay(ctx context.Context, recipient string, amount *big.Int) error
}

type Emitter interface {
	EmitEvent(eventType event.Type, msg interface{})
}

type marketplace struct {
	address  string
	store    storage.Store
	registry AssetRegistry
	payments PaymentChannel
	events   Emitter
	clock    func() time.Time

	mu sync.RWMutex
	// emitMu keeps events in commit order once mu is released
	emitMu sync.Mutex
}

func NewMarketplace(
	address string,
	store storage.Store,
	registry AssetRegistry,
	payments PaymentChannel,
	events Emitter,
) Service {
	if events == nil {
		events = noopEmitter{}
	}

	return &marketplace{
		address:  address,
		store:    store,
		registry: registry,
		payments: payments,
		events:   events,
		clock:    time.Now,
	}
}

func (m *marketplace) Address() string {
	return m.address
}

func (m *marketplace) GetListing(ctx context.Context, contract string, tokenId uint64) (*entity.Listing, error) {
	state, release := m.read(ctx)
	defer release()

	key := entity.ListingKey{Contract: entity.CanonicalAddress(contract), TokenId: tokenId}
	listing, found, err := state.GetListing(ctx, key)
	if err != nil || !found {
		return nil, err
	}

	listing = listing.Copy()
	return &listing, nil
}

func (m *marketplace) GetProceeds(ctx context.Context, owner string) (*big.Int, error) {
	state, release := m.read(ctx)
	defer release()

	balance, err := state.GetProceeds(ctx, entity.CanonicalAddress(owner))
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return new(big.Int), nil
	}

	return new(big.Int).Set(balance), nil
}

func (m *marketplace) Listings(ctx context.Context) ([]entity.Listing, error) {
	state, release := m.read(ctx)
	defer release()

	return state.AllListings(ctx)
}

// read takes the shared lock unless ctx already carries this marketplace's
// transaction. A re-entering caller is already serialised and reads through
// that transaction so it sees the writes made so far.
func (m *marketplace) read(ctx context.Context) (storage.State, func()) {
	if tx := m.activeTxn(ctx); tx != nil {
		return tx.state, func() {}
	}

	m.mu.RLock()
	return m.store, m.mu.RUnlock
}

func (m *marketplace) logRejected(op string, key *entity.ListingKey, caller string, err error) {
	if err == nil {
		return
	}

	logger := zap.L().With(zap.String("operation", op), zap.String("caller", caller), zap.Error(err))
	if key != nil {
		logger = logger.With(zap.String("contract", key.Contract), zap.Uint64("tokenId", key.TokenId))
	}

	switch KindOf(err) {
	case KindValidation, KindAuthorization:
		logger.Warn("Marketplace: Operation rejected")
	default:
		logger.Error("Marketplace: Operation failed")
	}
}

func isPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

func sameIdentity(a, b string) bool {
	return entity.CanonicalAddress(a) == entity.CanonicalAddress(b)
}

func canonicalReceipt(receipt string) string {
	return strings.ToLower(strings.TrimSpace(receipt))
}

type noopEmitter struct{}

func (noopEmitter) EmitEvent(event.Type, interface{}) {}
