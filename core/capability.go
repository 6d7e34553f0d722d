package core

import "context"

// Capability is the ciphertext service the registry evaluates bids with.
// Implementations never expose plaintext through GreaterThan or Select; the
// returned handles are as opaque as their inputs.
type Capability interface {
	// Verify checks that h refers to a valid encrypted integer that submitter
	// is allowed to use as an input.
	Verify(ctx context.Context, h Handle, submitter Principal) error

	// TrivialEncrypt wraps a public value as a ciphertext handle.
	TrivialEncrypt(ctx context.Context, v uint64) (Handle, error)

	// GreaterThan returns an encrypted boolean for a > b (strict).
	GreaterThan(ctx context.Context, a, b Handle) (Handle, error)

	// Select returns a handle equal to ifTrue when cond decrypts to true and
	// ifFalse otherwise.
	Select(ctx context.Context, cond, ifTrue, ifFalse Handle) (Handle, error)

	// Allow grants p permission to decrypt h.
	Allow(ctx context.Context, h Handle, p Principal) error

	// Reveal publishes h and returns its plaintext. Only used for values that
	// are public by protocol, such as the winning bid index.
	Reveal(ctx context.Context, h Handle) (uint64, error)
}

// HandleChecker is implemented by capabilities that can tell whether a handle
// still refers to a live ciphertext. Restore refuses persisted state whose
// handles the capability no longer holds.
type HandleChecker interface {
	Check(ctx context.Context, h Handle) error
}

// Releaser is implemented by capabilities that can discard ciphertexts the
// ledger no longer references.
type Releaser interface {
	Release(ctx context.Context, h Handle) error
}
