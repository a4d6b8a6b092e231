// Package common defines shared sentinel errors and small helpers used
// across HashFS components. Callers should use errors.Is to match the
// sentinel values; operations wrap them with filename/version context.
package common

import "errors"

var (
	// Session / key derivation errors.
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrPassphraseTooShort = errors.New("passphrase too short")
	ErrKdfFailure         = errors.New("key derivation failed")

	// Lookup errors.
	ErrNotFound        = errors.New("not found")
	ErrVersionNotFound = errors.New("version not found")

	// Integrity errors. FileCorrupt means no version of the file
	// survives; VersionCorrupt means one historical version failed its
	// checks; ChainCorrupt means the chain object itself is bad.
	ErrFileCorrupt      = errors.New("file corrupt")
	ErrVersionCorrupt   = errors.New("version corrupt")
	ErrChainCorrupt     = errors.New("chain corrupt")
	ErrHashMismatch     = errors.New("content hash mismatch")
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrDecryptFailure   = errors.New("decrypt failed")

	// Rename validation errors.
	ErrRenameConflict = errors.New("rename target already exists")
	ErrRenameInvalid  = errors.New("rename name invalid")

	// Backing store errors. Transactions aborted by the store surface
	// this kind; the caller may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)
