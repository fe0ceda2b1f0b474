package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency. Callers match them
// with errors.Is; the API layer maps each to one stable status and message.

var (
	// Ledger errors
	ErrInvalidIdentity     = errors.New("invalid phone identity")
	ErrInvalidAmount       = errors.New("amount must be a positive number")
	ErrInvalidKind         = errors.New("transaction kind must be give or receive")
	ErrInvalidDisplayName  = errors.New("customer name must not be empty")
	ErrAlreadyExists       = errors.New("customer already exists")
	ErrNotFound            = errors.New("not found")
	ErrNoOpIdentity        = errors.New("new identity equals the old identity")
	ErrTransactionNotFound = errors.New("transaction not found")

	// Store errors
	ErrVersionConflict  = errors.New("record modified concurrently")
	ErrStoreUnavailable = errors.New("ledger store unavailable")

	// Account errors
	ErrWrongPassword    = errors.New("wrong password")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrResetCodeInvalid = errors.New("reset code invalid")
)
