package newsletter

import (
	"errors"
	"fmt"
)

// Sentinel errors for the subscription workflow. Handlers discriminate on
// these with errors.Is and map them to HTTP statuses; internal causes are
// never reflected to clients.
var (
	// ErrInvalidArgument reports malformed input, rejected before any mutation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadySubscribed reports a subscribe request for a confirmed address.
	ErrAlreadySubscribed = errors.New("already subscribed")

	// ErrUnknownToken reports a thumbprint that does not resolve to a pending
	// link. A token that never existed and a token that was already redeemed
	// are indistinguishable on purpose.
	ErrUnknownToken = errors.New("unknown token")

	// ErrDuplicateKey reports a storage uniqueness violation. Ledgers recover
	// from it internally where a race lost gracefully is part of the contract.
	ErrDuplicateKey = errors.New("duplicate key")
)

// DeliveryError reports a failed email handoff to the transport.
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivering to %s: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
