// Package sqlite persists marketplace listings, proceeds and spent receipts in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/storage"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS listings (
	contract TEXT NOT NULL,
	token_id TEXT NOT NULL,
	seller   TEXT NOT NULL,
	price    TEXT NOT NULL,
	PRIMARY KEY (contract, token_id)
);
CREATE TABLE IF NOT EXISTS proceeds (
	owner   TEXT NOT NULL PRIMARY KEY,
	balance TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS receipts (
	receipt TEXT NOT NULL PRIMARY KEY
);`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Store struct {
	sqlDB *sql.DB
	state
}

// state implements every read and write against one queryer.
type state struct {
	q queryer
}

// Open opens or creates the database at path. ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one connection keeps ":memory:" a single database
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{sqlDB: sqlDB, state: state{q: sqlDB}}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s state) GetListing(ctx context.Context, key entity.ListingKey) (entity.Listing, bool, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT seller, price FROM listings WHERE contract = ? AND token_id = ?`,
		key.Contract, formatTokenId(key.TokenId),
	)

	var seller, price string
	if err := row.Scan(&seller, &price); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Listing{}, false, nil
		}
		return entity.Listing{}, false, fmt.Errorf("get listing: %w", err)
	}

	p, err := entity.ParseAmount(price)
	if err != nil {
		return entity.Listing{}, false, fmt.Errorf("get listing: %w", err)
	}

	return entity.Listing{Contract: key.Contract, TokenId: key.TokenId, Seller: seller, Price: p}, true, nil
}

func (s state) PutListing(ctx context.Context, listing entity.Listing) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO listings (contract, token_id, seller, price) VALUES (?, ?, ?, ?)
		 ON CONFLICT (contract, token_id) DO UPDATE SET seller = excluded.seller, price = excluded.price`,
		listing.Contract, formatTokenId(listing.TokenId), listing.Seller, listing.Price.String(),
	)
	if err != nil {
		return fmt.Errorf("put listing: %w", err)
	}
	return nil
}

func (s state) DeleteListing(ctx context.Context, key entity.ListingKey) error {
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM listings WHERE contract = ? AND token_id = ?`,
		key.Contract, formatTokenId(key.TokenId),
	)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	return nil
}

func (s state) AllListings(ctx context.Context) ([]entity.Listing, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT contract, token_id, seller, price FROM listings ORDER BY contract, token_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	listings := make([]entity.Listing, 0)
	for rows.Next() {
		var contract, tokenId, seller, price string
		if err := rows.Scan(&contract, &tokenId, &seller, &price); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}

		id, err := strconv.ParseUint(tokenId, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		p, err := entity.ParseAmount(price)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}

		listings = append(listings, entity.Listing{Contract: contract, TokenId: id, Seller: seller, Price: p})
	}

	return listings, rows.Err()
}

func (s state) GetProceeds(ctx context.Context, owner string) (*big.Int, error) {
	var balance string
	err := s.q.QueryRowContext(ctx, `SELECT balance FROM proceeds WHERE owner = ?`, owner).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get proceeds: %w", err)
	}

	return entity.ParseAmount(balance)
}

func (s state) SetProceeds(ctx context.Context, owner string, balance *big.Int) error {
	var err error
	if balance == nil || balance.Sign() == 0 {
		_, err = s.q.ExecContext(ctx, `DELETE FROM proceeds WHERE owner = ?`, owner)
	} else {
		_, err = s.q.ExecContext(ctx,
			`INSERT INTO proceeds (owner, balance) VALUES (?, ?)
			 ON CONFLICT (owner) DO UPDATE SET balance = excluded.balance`,
			owner, balance.String(),
		)
	}
	if err != nil {
		return fmt.Errorf("set proceeds: %w", err)
	}
	return nil
}

func (s state) AllProceeds(ctx context.Context) ([]entity.ProceedsAccount, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT owner, balance FROM proceeds ORDER BY owner`)
	if err != nil {
		return nil, fmt.Errorf("list proceeds: %w", err)
	}
	defer rows.Close()

	accounts := make([]entity.ProceedsAccount, 0)
	for rows.Next() {
		var owner, balance string
		if err := rows.Scan(&owner, &balance); err != nil {
			return nil, fmt.Errorf("scan proceeds: %w", err)
		}
		b, err := entity.ParseAmount(balance)
		if err != nil {
			return nil, fmt.Errorf("scan proceeds: %w", err)
		}
		accounts = append(accounts, entity.ProceedsAccount{Owner: owner, Balance: b})
	}

	return accounts, rows.Err()
}

func (s state) HasReceipt(ctx context.Context, receipt string) (bool, error) {
	var found int
	err := s.q.QueryRowContext(ctx, `SELECT 1 FROM receipts WHERE receipt = ?`, receipt).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get receipt: %w", err)
	}
	return true, nil
}

func (s state) PutReceipt(ctx context.Context, receipt string) error {
	if _, err := s.q.ExecContext(ctx, `INSERT OR IGNORE INTO receipts (receipt) VALUES (?)`, receipt); err != nil {
		return fmt.Errorf("put receipt: %w", err)
	}
	return nil
}

func (s state) DeleteReceipt(ctx context.Context, receipt string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM receipts WHERE receipt = ?`, receipt); err != nil {
		return fmt.Errorf("delete receipt: %w", err)
	}
	return nil
}

// Begin starts a database transaction. The store holds a single connection,
// so nothing else can use the store until the transaction ends.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}

	return &Tx{sqlTx: sqlTx, state: state{q: sqlTx}}, nil
}

type Tx struct {
	sqlTx *sql.Tx
	state
}

func (tx *Tx) Commit() error {
	if err := tx.sqlTx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return storage.ErrTxDone
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (tx *Tx) Rollback() error {
	if err := tx.sqlTx.Rollback(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return storage.ErrTxDone
		}
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// formatTokenId zero pads so that text ordering matches numeric ordering.
func formatTokenId(tokenId uint64) string {
	return fmt.Sprintf("%020d", tokenId)
}
