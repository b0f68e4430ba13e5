// Package memory is an in-process asset registry with ZRC6 style ownership,
// per-token spenders and per-owner operators.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
)

var (
	ErrTokenNotFound   = errors.New("token not found")
	ErrTokenExists     = errors.New("token already exists")
	ErrNotTokenOwner   = errors.New("from is not the token owner")
	ErrNotAuthorized   = errors.New("not authorized to move token")
	ErrInvalidReceiver = errors.New("invalid receiver")
)

// TransferHook runs after a token has moved. Returning an error reverts the move.
type TransferHook func(ctx context.Context, contract string, tokenId uint64, from, to string) error

type Registry struct {
	operator string

	mu        sync.RWMutex
	owners    map[entity.ListingKey]string
	spenders  map[entity.ListingKey]string
	operators map[string]map[string]bool
	failWith  error
	hook      TransferHook
}

// NewRegistry creates a registry that only lets operator move tokens it has
// been approved for. An empty operator disables that check.
func NewRegistry(operator string) *Registry {
	return &Registry{
		operator:  strings.ToLower(operator),
		owners:    make(map[entity.ListingKey]string),
		spenders:  make(map[entity.ListingKey]string),
		operators: make(map[string]map[string]bool),
	}
}

func (r *Registry) Mint(contract string, tokenId uint64, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := entity.ListingKey{Contract: contract, TokenId: tokenId}
	if _, exists := r.owners[key]; exists {
		return ErrTokenExists
	}
	r.owners[key] = strings.ToLower(owner)

	return nil
}

// Approve lets spender move one token. caller must own the token or be one of the owner's operators.
func (r *Registry) Approve(contract string, tokenId uint64, caller, spender string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := entity.ListingKey{Contract: contract, TokenId: tokenId}
	owner, exists := r.owners[key]
	if !exists {
		return ErrTokenNotFound
	}
	caller = strings.ToLower(caller)
	if caller != owner && !r.operators[owner][caller] {
		return ErrNotAuthorized
	}
	r.spenders[key] = strings.ToLower(spender)

	return nil
}

func (r *Registry) SetApprovalForAll(owner, operator string, approved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner = strings.ToLower(owner)
	if r.operators[owner] == nil {
		r.operators[owner] = make(map[string]bool)
	}
	r.operators[owner][strings.ToLower(operator)] = approved
}

// FailTransfers makes every following transfer fail with err; nil restores normal behaviour.
func (r *Registry) FailTransfers(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith = err
}

func (r *Registry) OnTransfer(hook TransferHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = hook
}

func (r *Registry) OwnerOf(_ context.Context, contract string, tokenId uint64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owner, exists := r.owners[entity.ListingKey{Contract: contract, TokenId: tokenId}]
	if !exists {
		return "", ErrTokenNotFound
	}
	return owner, nil
}

func (r *Registry) IsApprovedForMarketplace(_ context.Context, contract string, tokenId uint64, operator string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := entity.ListingKey{Contract: contract, TokenId: tokenId}
	owner, exists := r.owners[key]
	if !exists {
		return false, ErrTokenNotFound
	}

	return r.isApproved(key, owner, strings.ToLower(operator)), nil
}

func (r *Registry) Transfer(ctx context.Context, contract string, tokenId uint64, from, to string) error {
	key := entity.ListingKey{Contract: contract, TokenId: tokenId}
	from, to = strings.ToLower(from), strings.ToLower(to)

	r.mu.Lock()
	if r.failWith != nil {
		err := r.failWith
		r.mu.Unlock()
		return err
	}
	owner, exists := r.owners[key]
	switch {
	case !exists:
		r.mu.Unlock()
		return ErrTokenNotFound
	case owner != from:
		r.mu.Unlock()
		return ErrNotTokenOwner
	case to == "":
		r.mu.Unlock()
		return ErrInvalidReceiver
	case r.operator != "" && !r.isApproved(key, owner, r.operator):
		r.mu.Unlock()
		return ErrNotAuthorized
	}

	spender, hadSpender := r.spenders[key]
	r.owners[key] = to
	delete(r.spenders, key)
	hook := r.hook
	r.mu.Unlock()

	if hook == nil {
		return nil
	}
	if err := hook(ctx, contract, tokenId, from, to); err != nil {
		r.mu.Lock()
		r.owners[key] = owner
		if hadSpender {
			r.spenders[key] = spender
		}
		r.mu.Unlock()
		return err
	}

	return nil
}

func (r *Registry) isApproved(key entity.ListingKey, owner, operator string) bool {
	return r.spenders[key] == operator || r.operators[owner][operator]
}
