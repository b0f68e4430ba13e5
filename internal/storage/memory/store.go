package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/storage"
	"github.com/patrickmn/go-cache"
)

// Store keeps listings, proceeds and spent receipts in non-expiring caches.
// State is lost when the process exits.
type Store struct {
	listings *cache.Cache
	proceeds *cache.Cache
	receipts *cache.Cache

	// commit guards applying a transaction so readers never see half of one
	commit sync.RWMutex
}

func NewStore() *Store {
	return &Store{
		listings: cache.New(cache.NoExpiration, 0),
		proceeds: cache.New(cache.NoExpiration, 0),
		receipts: cache.New(cache.NoExpiration, 0),
	}
}

func (s *Store) GetListing(_ context.Context, key entity.ListingKey) (entity.Listing, bool, error) {
	s.commit.RLock()
	defer s.commit.RUnlock()

	return s.getListing(key)
}

func (s *Store) getListing(key entity.ListingKey) (entity.Listing, bool, error) {
	cached, found := s.listings.Get(key.String())
	if !found {
		return entity.Listing{}, false, nil
	}

	return cached.(entity.Listing).Copy(), true, nil
}

func (s *Store) PutListing(_ context.Context, listing entity.Listing) error {
	s.commit.RLock()
	defer s.commit.RUnlock()

	s.listings.SetDefault(listing.Key().String(), listing.Copy())
	return nil
}

func (s *Store) DeleteListing(_ context.Context, key entity.ListingKey) error {
	s.commit.RLock()
	defer s.commit.RUnlock()

	s.listings.Delete(key.String())
	return nil
}

func (s *Store) AllListings(_ context.Context) ([]entity.Listing, error) {
	s.commit.RLock()
	defer s.commit.RUnlock()

	return sortedListings(s.listingMap()), nil
}

func (s *Store) listingMap() map[string]entity.Listing {
	items := s.listings.Items()

	listings := make(map[string]entity.Listing, len(items))
	for k, item := range items {
		listings[k] = item.Object.(entity.Listing).Copy()
	}
	return listings
}

func (s *Store) GetProceeds(_ context.Context, owner string) (*big.Int, error) {
	s.commit.RLock()
	defer s.commit.RUnlock()

	return s.getProceeds(owner), nil
}

func (s *Store) getProceeds(owner string) *big.Int {
	cached, found := s.proceeds.Get(owner)
	if !found {
		return new(big.Int)
	}

	return new(big.Int).Set(cached.(*big.Int))
}

func (s *Store) SetProceeds(_ context.Context, owner string, balance *big.Int) error {
	s.commit.RLock()
	defer s.commit.RUnlock()

	s.setProceeds(owner, balance)
	return nil
}

func (s *Store) setProceeds(owner string, balance *big.Int) {
	if balance == nil || balance.Sign() == 0 {
		s.proceeds.Delete(owner)
		return
	}

	s.proceeds.SetDefault(owner, new(big.Int).Set(balance))
}

func (s *Store) AllProceeds(_ context.Context) ([]entity.ProceedsAccount, error) {
	s.commit.RLock()
	defer s.commit.RUnlock()

	return sortedAccounts(s.proceedsMap()), nil
}

func (s *Store) proceedsMap() map[string]*big.Int {
	items := s.proceeds.Items()

	balances := make(map[string]*big.Int, len(items))
	for owner, item := range items {
		balances[owner] = new(big.Int).Set(item.Object.(*big.Int))
	}
	return balances
}

func (s *Store) HasReceipt(_ context.Context, receipt string) (bool, error) {
	_, found := s.receipts.Get(receipt)
	return found, nil
}

func (s *Store) PutReceipt(_ context.Context, receipt string) error {
	s.receipts.SetDefault(receipt, true)
	return nil
}

func (s *Store) DeleteReceipt(_ context.Context, receipt string) error {
	s.receipts.Delete(receipt)
	return nil
}

// Begin starts a transaction that buffers its writes until Commit.
func (s *Store) Begin(_ context.Context) (storage.Tx, error) {
	return &Tx{
		store:    s,
		listings: make(map[string]*entity.Listing),
		proceeds: make(map[string]*big.Int),
		receipts: make(map[string]bool),
	}, nil
}

// Tx overlays pending writes on the store. A nil listing or a false receipt
// marks a delete.
type Tx struct {
	store    *Store
	listings map[string]*entity.Listing
	proceeds map[string]*big.Int
	receipts map[string]bool
	done     bool
}

func (tx *Tx) GetListing(_ context.Context, key entity.ListingKey) (entity.Listing, bool, error) {
	if pending, ok := tx.listings[key.String()]; ok {
		if pending == nil {
			return entity.Listing{}, false, nil
		}
		return pending.Copy(), true, nil
	}

	return tx.store.GetListing(context.Background(), key)
}

func (tx *Tx) PutListing(_ context.Context, listing entity.Listing) error {
	if tx.done {
		return storage.ErrTxDone
	}

	c := listing.Copy()
	tx.listings[listing.Key().String()] = &c
	return nil
}

func (tx *Tx) DeleteListing(_ context.Context, key entity.ListingKey) error {
	if tx.done {
		return storage.ErrTxDone
	}

	tx.listings[key.String()] = nil
	return nil
}

func (tx *Tx) AllListings(_ context.Context) ([]entity.Listing, error) {
	tx.store.commit.RLock()
	listings := tx.store.listingMap()
	tx.store.commit.RUnlock()

	for k, pending := range tx.listings {
		if pending == nil {
			delete(listings, k)
			continue
		}
		listings[k] = pending.Copy()
	}

	return sortedListings(listings), nil
}

func (tx *Tx) GetProceeds(_ context.Context, owner string) (*big.Int, error) {
	if pending, ok := tx.proceeds[owner]; ok {
		return new(big.Int).Set(pending), nil
	}

	return tx.store.GetProceeds(context.Background(), owner)
}

func (tx *Tx) SetProceeds(_ context.Context, owner string, balance *big.Int) error {
	if tx.done {
		return storage.ErrTxDone
	}

	if balance == nil {
		balance = new(big.Int)
	}
	tx.proceeds[owner] = new(big.Int).Set(balance)
	return nil
}

func (tx *Tx) AllProceeds(_ context.Context) ([]entity.ProceedsAccount, error) {
	tx.store.commit.RLock()
	balances := tx.store.proceedsMap()
	tx.store.commit.RUnlock()

	for owner, pending := range tx.proceeds {
		if pending.Sign() == 0 {
			delete(balances, owner)
			continue
		}
		balances[owner] = new(big.Int).Set(pending)
	}

	return sortedAccounts(balances), nil
}

func (tx *Tx) HasReceipt(ctx context.Context, receipt string) (bool, error) {
	if pending, ok := tx.receipts[receipt]; ok {
		return pending, nil
	}

	return tx.store.HasReceipt(ctx, receipt)
}

func (tx *Tx) PutReceipt(_ context.Context, receipt string) error {
	if tx.done {
		return storage.ErrTxDone
	}

	tx.receipts[receipt] = true
	return nil
}

func (tx *Tx) DeleteReceipt(_ context.Context, receipt string) error {
	if tx.done {
		return storage.ErrTxDone
	}

	tx.receipts[receipt] = false
	return nil
}

func (tx *Tx) Commit() error {
	if tx.done {
		return storage.ErrTxDone
	}
	tx.done = true

	s := tx.store
	s.commit.Lock()
	defer s.commit.Unlock()

	for k, pending := range tx.listings {
		if pending == nil {
			s.listings.Delete(k)
			continue
		}
		s.listings.SetDefault(k, pending.Copy())
	}
	for owner, balance := range tx.proceeds {
		s.setProceeds(owner, balance)
	}
	for receipt, spent := range tx.receipts {
		if spent {
			s.receipts.SetDefault(receipt, true)
			continue
		}
		s.receipts.Delete(receipt)
	}

	return nil
}

func (tx *Tx) Rollback() error {
	if tx.done {
		return storage.ErrTxDone
	}
	tx.done = true

	return nil
}

func sortedListings(byKey map[string]entity.Listing) []entity.Listing {
	listings := make([]entity.Listing, 0, len(byKey))
	for _, listing := range byKey {
		listings = append(listings, listing)
	}
	sort.Slice(listings, func(i, j int) bool {
		if listings[i].Contract != listings[j].Contract {
			return listings[i].Contract < listings[j].Contract
		}
		return listings[i].TokenId < listings[j].TokenId
	})

	return listings
}

func sortedAccounts(balances map[string]*big.Int) []entity.ProceedsAccount {
	accounts := make([]entity.ProceedsAccount, 0, len(balances))
	for owner, balance := range balances {
		accounts = append(accounts, entity.ProceedsAccount{Owner: owner, Balance: balance})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Owner < accounts[j].Owner })

	return accounts
}
