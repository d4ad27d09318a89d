// Package errors provides structured error handling for Verso.
// It defines sentinel errors, exit codes, and helpers for adding
// context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes.
const (
	ExitSuccess    = 0 // Successful execution
	ExitGeneral    = 1 // General/unknown error
	ExitInput      = 2 // Invalid input
	ExitAuth       = 3 // Authentication failed
	ExitNotFound   = 4 // Resource not found
	ExitPermission = 5 // Permission denied or insufficient funds
)

// WalletError is the structured error type for Verso.
type WalletError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *WalletError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *WalletError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for WalletError.
func (e *WalletError) Is(target error) bool {
	var t *WalletError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &WalletError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	// ErrValidation indicates bad input shape or range. User-correctable,
	// returned immediately, never retried.
	ErrValidation = &WalletError{
		Code:     "VALIDATION_ERROR",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	// ErrInvalidAmount indicates a non-positive or non-integral amount.
	ErrInvalidAmount = &WalletError{
		Code:     "INVALID_AMOUNT",
		Message:  "invalid amount",
		ExitCode: ExitInput,
	}

	// ErrInvalidAddress indicates an address failed validation.
	ErrInvalidAddress = &WalletError{
		Code:     "INVALID_ADDRESS",
		Message:  "invalid address format",
		ExitCode: ExitInput,
	}

	// ErrInsufficientFunds indicates UTXO selection was exhausted.
	// User-correctable by reducing the amount.
	ErrInsufficientFunds = &WalletError{
		Code:     "INSUFFICIENT_FUNDS",
		Message:  "insufficient funds for transaction",
		ExitCode: ExitPermission,
	}

	// ErrNoUTXOs indicates the address has no spendable outputs at all.
	ErrNoUTXOs = &WalletError{
		Code:     "NO_UTXOS",
		Message:  "no UTXOs available",
		ExitCode: ExitPermission,
	}

	// ErrNetwork indicates an upstream fetch, timeout, or non-2xx status.
	// Retried at the adapter level via mirror failover.
	ErrNetwork = &WalletError{
		Code:     "NETWORK_ERROR",
		Message:  "network communication failed",
		ExitCode: ExitGeneral,
	}

	// ErrDecode indicates an upstream response failed structural
	// validation. Never coerced - proceeding on unvalidated data risks
	// building an incorrect transaction.
	ErrDecode = &WalletError{
		Code:     "DECODE_ERROR",
		Message:  "malformed upstream response",
		ExitCode: ExitGeneral,
	}

	// ErrTxVerification indicates the post-build self-check of a
	// constructed transaction did not match the request. Fatal; the
	// transaction is discarded and never broadcast.
	ErrTxVerification = &WalletError{
		Code:     "TX_VERIFICATION_FAILED",
		Message:  "built transaction failed self-verification",
		ExitCode: ExitGeneral,
	}

	// ErrAuthentication covers incorrect vault password, unauthorized
	// sender, and expired or missing session.
	ErrAuthentication = &WalletError{
		Code:     "AUTHENTICATION_FAILED",
		Message:  "authentication failed",
		ExitCode: ExitAuth,
	}

	// ErrIncorrectPassword indicates vault decryption failed its
	// authentication tag check.
	ErrIncorrectPassword = &WalletError{
		Code:     "INCORRECT_PASSWORD",
		Message:  "incorrect password",
		ExitCode: ExitAuth,
	}

	// ErrSignatureUnverified indicates an identity challenge signature
	// did not validate. Hard-blocks approval; not merely a warning.
	ErrSignatureUnverified = &WalletError{
		Code:     "SIGNATURE_UNVERIFIED",
		Message:  "identity signature could not be verified",
		ExitCode: ExitAuth,
	}

	// ErrRateLimited indicates a lockout or cooldown is in effect.
	ErrRateLimited = &WalletError{
		Code:     "RATE_LIMITED",
		Message:  "too many attempts",
		ExitCode: ExitPermission,
	}

	ErrNotFound = &WalletError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	// ErrVaultExists indicates a vault is already present.
	ErrVaultExists = &WalletError{
		Code:     "VAULT_EXISTS",
		Message:  "a wallet vault already exists",
		ExitCode: ExitInput,
	}

	// ErrVaultNotFound indicates no vault has been created yet.
	ErrVaultNotFound = &WalletError{
		Code:     "VAULT_NOT_FOUND",
		Message:  "wallet vault not found",
		ExitCode: ExitNotFound,
	}

	// ErrInvalidMnemonic indicates the mnemonic failed BIP39 validation.
	ErrInvalidMnemonic = &WalletError{
		Code:     "INVALID_MNEMONIC",
		Message:  "invalid mnemonic phrase",
		ExitCode: ExitInput,
	}

	// ErrWalletLocked indicates there is no active session.
	ErrWalletLocked = &WalletError{
		Code:     "WALLET_LOCKED",
		Message:  "wallet is locked",
		ExitCode: ExitAuth,
	}

	// ErrTxRejected indicates broadcast was refused by the network.
	ErrTxRejected = &WalletError{
		Code:     "TX_REJECTED",
		Message:  "transaction rejected by network",
		ExitCode: ExitGeneral,
	}
)

// New creates a new WalletError with the given code and message.
func New(code, message string) *WalletError {
	return &WalletError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var we *WalletError
	if errors.As(err, &we) {
		return &WalletError{
			Code:       we.Code,
			Message:    fmt.Sprintf("%s: %s", msg, we.Message),
			Details:    we.Details,
			Suggestion: we.Suggestion,
			Cause:      err,
			ExitCode:   we.ExitCode,
		}
	}

	return &WalletError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var we *WalletError
	if errors.As(err, &we) {
		return &WalletError{
			Code:       we.Code,
			Message:    we.Message,
			Details:    details,
			Suggestion: we.Suggestion,
			Cause:      we.Cause,
			ExitCode:   we.ExitCode,
		}
	}

	return &WalletError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var we *WalletError
	if errors.As(err, &we) {
		return &WalletError{
			Code:       we.Code,
			Message:    we.Message,
			Details:    we.Details,
			Suggestion: suggestion,
			Cause:      we.Cause,
			ExitCode:   we.ExitCode,
		}
	}

	return &WalletError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var we *WalletError
	if errors.As(err, &we) {
		return we.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var we *WalletError
	if errors.As(err, &we) {
		return we.Code
	}
	return "GENERAL_ERROR"
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
