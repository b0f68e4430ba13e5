package entity

import "errors"

// ErrPaymentRejected is wrapped by payment channels when a receipt does not
// prove that the buyer paid the marketplace.
var ErrPaymentRejected = errors.New("payment rejected")
