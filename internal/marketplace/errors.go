package marketplace

import (
	"errors"
	"fmt"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
)

var (
	ErrPriceMustBePositive       = errors.New("price must be above zero")
	ErrAlreadyListed             = errors.New("already listed")
	ErrNotListed                 = errors.New("not listed")
	ErrNotOwner                  = errors.New("not owner")
	ErrNotApprovedForMarketplace = errors.New("not approved for marketplace")
	ErrPriceNotMet               = errors.New("price not met")
	ErrPaymentNotReceived        = errors.New("payment not received")
	ErrReceiptAlreadyUsed        = errors.New("payment receipt already used")
	ErrNoProceeds                = errors.New("no proceeds")
	ErrTransferFailed            = errors.New("transfer failed")
	ErrWithdrawFailed            = errors.New("withdraw failed")
	ErrAssetRegistry             = errors.New("asset registry unavailable")
)

// Kind classifies who can fix a rejected operation.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindCollaborator  Kind = "collaborator"
	KindInternal      Kind = "internal"
)

// Error is returned by every state changing operation. It wraps one of the
// sentinel errors above so callers can use errors.Is.
type Error struct {
	Op   string
	Kind Kind
	Key  *entity.ListingKey
	Err  error
}

func (e *Error) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("marketplace: %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("marketplace: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a marketplace error, or KindInternal for anything else.
func KindOf(err error) Kind {
	var mErr *Error
	if errors.As(err, &mErr) {
		return mErr.Kind
	}
	return KindInternal
}

func newError(op string, kind Kind, key *entity.ListingKey, err error) *Error {
	return &Error{Op: op, Kind: kind, Key: key, Err: err}
}

func collaboratorError(op string, key *entity.ListingKey, sentinel, cause error) *Error {
	return newError(op, KindCollaborator, key, fmt.Errorf("%w: %w", sentinel, cause))
}

func internalError(op string, key *entity.ListingKey, cause error) *Error {
	return newError(op, KindInternal, key, cause)
}
