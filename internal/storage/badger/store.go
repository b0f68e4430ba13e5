package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/storage"
	"github.com/dgraph-io/badger/v2"
	"go.uber.org/zap"
)

const (
	listingPrefix  = "listing/"
	proceedsPrefix = "proceeds/"
	receiptPrefix  = "receipt/"
)

// Store persists listings, proceeds and spent receipts in a badger database.
// Listings and proceeds are JSON values.
type Store struct {
	db *badger.DB
}

// Open opens the database at path. An empty path keeps everything in memory.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = &badgerLogger{zap.S().Named("badger")}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func listingKey(key entity.ListingKey) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", listingPrefix, key.Contract, key.TokenId))
}

func proceedsKey(owner string) []byte {
	return []byte(proceedsPrefix + owner)
}

func receiptKey(receipt string) []byte {
	return []byte(receiptPrefix + receipt)
}

func (s *Store) GetListing(_ context.Context, key entity.ListingKey) (listing entity.Listing, found bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		listing, found, err = getListing(txn, key)
		return err
	})
	return listing, found, err
}

func (s *Store) PutListing(_ context.Context, listing entity.Listing) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return putListing(txn, listing)
	})
}

func (s *Store) DeleteListing(_ context.Context, key entity.ListingKey) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(listingKey(key))
	})
}

func (s *Store) AllListings(_ context.Context) (listings []entity.Listing, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		listings, err = allListings(txn)
		return err
	})
	return listings, err
}

func (s *Store) GetProceeds(_ context.Context, owner string) (balance *big.Int, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		balance, err = getProceeds(txn, owner)
		return err
	})
	return balance, err
}

func (s *Store) SetProceeds(_ context.Context, owner string, balance *big.Int) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setProceeds(txn, owner, balance)
	})
}

func (s *Store) AllProceeds(_ context.Context) (accounts []entity.ProceedsAccount, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		accounts, err = allProceeds(txn)
		return err
	})
	return accounts, err
}

func (s *Store) HasReceipt(_ context.Context, receipt string) (found bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		found, err = hasKey(txn, receiptKey(receipt))
		return err
	})
	return found, err
}

func (s *Store) PutReceipt(_ context.Context, receipt string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(receiptKey(receipt), []byte{1})
	})
}

func (s *Store) DeleteReceipt(_ context.Context, receipt string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(receiptKey(receipt))
	})
}

// Begin opens a read-write badger transaction.
func (s *Store) Begin(_ context.Context) (storage.Tx, error) {
	return &Tx{txn: s.db.NewTransaction(true)}, nil
}

// Tx reads its own writes and makes them durable in one badger commit.
type Tx struct {
	txn  *badger.Txn
	done bool
}

func (tx *Tx) GetListing(_ context.Context, key entity.ListingKey) (entity.Listing, bool, error) {
	return getListing(tx.txn, key)
}

func (tx *Tx) PutListing(_ context.Context, listing entity.Listing) error {
	return putListing(tx.txn, listing)
}

func (tx *Tx) DeleteListing(_ context.Context, key entity.ListingKey) error {
	return tx.txn.Delete(listingKey(key))
}

func (tx *Tx) AllListings(_ context.Context) ([]entity.Listing, error) {
	return allListings(tx.txn)
}

func (tx *Tx) GetProceeds(_ context.Context, owner string) (*big.Int, error) {
	return getProceeds(tx.txn, owner)
}

func (tx *Tx) SetProceeds(_ context.Context, owner string, balance *big.Int) error {
	return setProceeds(tx.txn, owner, balance)
}

func (tx *Tx) AllProceeds(_ context.Context) ([]entity.ProceedsAccount, error) {
	return allProceeds(tx.txn)
}

func (tx *Tx) HasReceipt(_ context.Context, receipt string) (bool, error) {
	return hasKey(tx.txn, receiptKey(receipt))
}

func (tx *Tx) PutReceipt(_ context.Context, receipt string) error {
	return tx.txn.Set(receiptKey(receipt), []byte{1})
}

func (tx *Tx) DeleteReceipt(_ context.Context, receipt string) error {
	return tx.txn.Delete(receiptKey(receipt))
}

func (tx *Tx) Commit() error {
	if tx.done {
		return storage.ErrTxDone
	}
	tx.done = true

	return tx.txn.Commit()
}

func (tx *Tx) Rollback() error {
	if tx.done {
		return storage.ErrTxDone
	}
	tx.done = true

	tx.txn.Discard()
	return nil
}

func getListing(txn *badger.Txn, key entity.ListingKey) (entity.Listing, bool, error) {
	var listing entity.Listing

	item, err := txn.Get(listingKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return listing, false, nil
	}
	if err != nil {
		return listing, false, err
	}

	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &listing)
	})
	return listing, err == nil, err
}

func putListing(txn *badger.Txn, listing entity.Listing) error {
	val, err := json.Marshal(listing)
	if err != nil {
		return err
	}

	return txn.Set(listingKey(listing.Key()), val)
}

func allListings(txn *badger.Txn) ([]entity.Listing, error) {
	listings := make([]entity.Listing, 0)

	err := scan(txn, []byte(listingPrefix), func(val []byte) error {
		var listing entity.Listing
		if err := json.Unmarshal(val, &listing); err != nil {
			return err
		}
		listings = append(listings, listing)
		return nil
	})

	return listings, err
}

func getProceeds(txn *badger.Txn, owner string) (*big.Int, error) {
	account := entity.ProceedsAccount{Owner: owner, Balance: new(big.Int)}

	item, err := txn.Get(proceedsKey(owner))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return account.Balance, nil
	}
	if err != nil {
		return nil, err
	}

	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &account)
	})
	return account.Balance, err
}

func setProceeds(txn *badger.Txn, owner string, balance *big.Int) error {
	if balance == nil || balance.Sign() == 0 {
		return txn.Delete(proceedsKey(owner))
	}

	val, err := json.Marshal(entity.ProceedsAccount{Owner: owner, Balance: balance})
	if err != nil {
		return err
	}

	return txn.Set(proceedsKey(owner), val)
}

func allProceeds(txn *badger.Txn) ([]entity.ProceedsAccount, error) {
	accounts := make([]entity.ProceedsAccount, 0)

	err := scan(txn, []byte(proceedsPrefix), func(val []byte) error {
		var account entity.ProceedsAccount
		if err := json.Unmarshal(val, &account); err != nil {
			return err
		}
		accounts = append(accounts, account)
		return nil
	})

	return accounts, err
}

func hasKey(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func scan(txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

type badgerLogger struct {
	*zap.SugaredLogger
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}
