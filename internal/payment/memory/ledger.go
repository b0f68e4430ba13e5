// Package memory keeps account balances and marketplace custody in process
// instead of moving real funds.
package memory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/nu7hatch/gouuid"
)

var (
	ErrInvalidPayment      = errors.New("invalid payment amount")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientCustody = errors.New("marketplace custody cannot cover payment")
)

// PayHook runs after a payment is recorded. Returning an error reverts it.
type PayHook func(ctx context.Context, recipient string, amount *big.Int) error

type deposit struct {
	from   string
	amount *big.Int
}

// Ledger holds spendable account balances and the funds deposited with the
// marketplace. A deposit is identified by the receipt Deposit returns and
// payouts can never exceed what was deposited.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]*big.Int
	deposits map[string]deposit
	custody  *big.Int
	paid     map[string]*big.Int
	rejected map[string]error
	hook     PayHook
}

func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[string]*big.Int),
		deposits: make(map[string]deposit),
		custody:  new(big.Int),
		paid:     make(map[string]*big.Int),
		rejected: make(map[string]error),
	}
}

// Fund adds amount to the spendable balance of account.
func (l *Ledger) Fund(account string, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	add(l.balances, entity.CanonicalAddress(account), amount)
}

// Deposit moves amount from the balance of from into marketplace custody and
// returns the receipt that proves it.
func (l *Ledger) Deposit(from string, amount *big.Int) (string, error) {
	if amount == nil || amount.Sign() <= 0 {
		return "", ErrInvalidPayment
	}
	from = entity.CanonicalAddress(from)

	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if balanceOf(l.balances, from).Cmp(amount) < 0 {
		return "", ErrInsufficientFunds
	}
	add(l.balances, from, new(big.Int).Neg(amount))
	l.custody.Add(l.custody, amount)

	receipt := id.String()
	l.deposits[receipt] = deposit{from: from, amount: new(big.Int).Set(amount)}

	return receipt, nil
}

// Collect returns the amount of the deposit behind receipt when buyer made it.
func (l *Ledger) Collect(_ context.Context, buyer, receipt string) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	d, ok := l.deposits[strings.ToLower(strings.TrimSpace(receipt))]
	if !ok {
		return nil, fmt.Errorf("%w: unknown receipt %s", entity.ErrPaymentRejected, receipt)
	}
	if d.from != entity.CanonicalAddress(buyer) {
		return nil, fmt.Errorf("%w: receipt %s was paid by %s", entity.ErrPaymentRejected, receipt, d.from)
	}

	return new(big.Int).Set(d.amount), nil
}

// Reject makes every payment to recipient fail with err; nil accepts payments again.
func (l *Ledger) Reject(recipient string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err == nil {
		delete(l.rejected, entity.CanonicalAddress(recipient))
		return
	}
	l.rejected[entity.CanonicalAddress(recipient)] = err
}

func (l *Ledger) OnPay(hook PayHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hook = hook
}

// Pay moves amount out of custody to recipient.
func (l *Ledger) Pay(ctx context.Context, recipient string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidPayment
	}
	recipient = entity.CanonicalAddress(recipient)

	l.mu.Lock()
	if err, rejected := l.rejected[recipient]; rejected {
		l.mu.Unlock()
		return err
	}
	if l.custody.Cmp(amount) < 0 {
		l.mu.Unlock()
		return ErrInsufficientCustody
	}
	l.transfer(recipient, amount)
	hook := l.hook
	l.mu.Unlock()

	if hook == nil {
		return nil
	}
	if err := hook(ctx, recipient, amount); err != nil {
		l.mu.Lock()
		l.transfer(recipient, new(big.Int).Neg(amount))
		l.mu.Unlock()
		return err
	}

	return nil
}

// Paid returns the total delivered to recipient so far.
func (l *Ledger) Paid(recipient string) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return balanceOf(l.paid, entity.CanonicalAddress(recipient))
}

// Balance returns what account can still deposit.
func (l *Ledger) Balance(account string) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return balanceOf(l.balances, entity.CanonicalAddress(account))
}

// Custody returns the deposited funds not yet paid out.
func (l *Ledger) Custody() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return new(big.Int).Set(l.custody)
}

func (l *Ledger) transfer(recipient string, amount *big.Int) {
	l.custody.Sub(l.custody, amount)
	add(l.paid, recipient, amount)
	add(l.balances, recipient, amount)
}

func add(totals map[string]*big.Int, account string, amount *big.Int) {
	total, ok := totals[account]
	if !ok {
		total = new(big.Int)
		totals[account] = total
	}
	total.Add(total, amount)
}

func balanceOf(totals map[string]*big.Int, account string) *big.Int {
	if total, ok := totals[account]; ok {
		return new(big.Int).Set(total)
	}
	return new(big.Int)
}
