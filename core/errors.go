package core

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientFee   = errors.New("auction: insufficient fee")
	ErrInvalidDuration   = errors.New("auction: duration must be positive")
	ErrAuctionNotFound   = errors.New("auction: not found")
	ErrAuctionNotActive  = errors.New("auction: not active")
	ErrAlreadyFinalized  = errors.New("auction: already finalized")
	ErrUnauthorized      = errors.New("auction: caller is not authorized")
	ErrNoBidsYet         = errors.New("auction: cannot end early without bids")
	ErrInvalidCiphertext = errors.New("auction: invalid ciphertext handle")
	ErrBidNotFound       = errors.New("auction: bid not found")
	ErrNotResolved       = errors.New("auction: not resolved")

	// ErrCreatorBid is returned when the creator bids on their own auction and
	// the registry policy forbids it.
	ErrCreatorBid = fmt.Errorf("%w: creator cannot bid on own auction", ErrUnauthorized)
)

// CapabilityError wraps a failure reported by the ciphertext capability. The
// enclosing operation is aborted without any state change.
type CapabilityError struct {
	Op  string
	Err error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability %s failed: %v", e.Op, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

func capabilityErr(op string, err error) error {
	return &CapabilityError{Op: op, Err: err}
}
