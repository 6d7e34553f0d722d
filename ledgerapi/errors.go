package ledgerapi

import (
	"errors"
	"fmt"

	"github.com/cloudx-io/sealedauction/core"
)

// ErrPermissionDenied is returned by the gateway when a principal asks to
// decrypt a handle it was never granted.
var ErrPermissionDenied = errors.New("gateway: decrypt permission denied")

// ErrBadRequest marks requests that could not be decoded or are missing fields.
var ErrBadRequest = errors.New("bad request")

// Code is a stable, transport-independent error identifier.
type Code string

const (
	CodeInsufficientFee   Code = "INSUFFICIENT_FEE"
	CodeInvalidDuration   Code = "INVALID_DURATION"
	CodeNotFound          Code = "NOT_FOUND"
	CodeNotActive         Code = "NOT_ACTIVE"
	CodeAlreadyFinalized  Code = "ALREADY_FINALIZED"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeNoBidsYet         Code = "NO_BIDS_YET"
	CodeNotResolved       Code = "NOT_RESOLVED"
	CodeInvalidCiphertext Code = "INVALID_CIPHERTEXT"
	CodePermissionDenied  Code = "PERMISSION_DENIED"
	CodeBadRequest        Code = "BAD_REQUEST"
	CodeInternal          Code = "INTERNAL"
)

var codeErrors = []struct {
	code Code
	err  error
}{
	{CodeInsufficientFee, core.ErrInsufficientFee},
	{CodeInvalidDuration, core.ErrInvalidDuration},
	{CodeNotFound, core.ErrAuctionNotFound},
	{CodeNotFound, core.ErrBidNotFound},
	{CodeNotActive, core.ErrAuctionNotActive},
	{CodeAlreadyFinalized, core.ErrAlreadyFinalized},
	{CodeUnauthorized, core.ErrUnauthorized},
	{CodeNoBidsYet, core.ErrNoBidsYet},
	{CodeNotResolved, core.ErrNotResolved},
	{CodeInvalidCiphertext, core.ErrInvalidCiphertext},
	{CodePermissionDenied, ErrPermissionDenied},
	{CodeBadRequest, ErrBadRequest},
}

// CodeFor maps an error returned by the registry or gateway to its Code.
// Anything unrecognized is CodeInternal.
func CodeFor(err error) Code {
	for _, ce := range codeErrors {
		if errors.Is(err, ce.err) {
			return ce.code
		}
	}
	return CodeInternal
}

// ErrorResponse is returned in place of a typed response when a request fails.
type ErrorResponse struct {
	Type    string `json:"type"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// NewErrorResponse builds the response for err. Internal errors keep their
// message out of the response.
func NewErrorResponse(err error) ErrorResponse {
	code := CodeFor(err)
	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}
	return ErrorResponse{Type: "error", Code: code, Message: msg}
}

func (e ErrorResponse) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap lets clients match a decoded ErrorResponse against the registry's
// sentinel errors with errors.Is.
func (e ErrorResponse) Unwrap() error {
	for _, ce := range codeErrors {
		if ce.code == e.Code {
			return ce.err
		}
	}
	return nil
}
