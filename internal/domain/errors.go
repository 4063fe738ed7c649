package domain

import (
	"errors"
	"net/http"
)

// ─── Error Codes ────────────────────────────────────────────────────────────
// Expected business failures are values, not panics. Each code has a stable
// machine-readable string, a human message, and an HTTP status.

// ErrorCode is a stable machine-readable failure kind.
type ErrorCode string

const (
	CodeAddressNotFound      ErrorCode = "address_not_found"
	CodeNameNotFound         ErrorCode = "name_not_found"
	CodeNameTaken            ErrorCode = "name_taken"
	CodeNotNameOwner         ErrorCode = "not_name_owner"
	CodeInsufficientFunds    ErrorCode = "insufficient_funds"
	CodeInvalidAmount        ErrorCode = "invalid_amount"
	CodeInvalidParameter     ErrorCode = "invalid_parameter"
	CodeAuthenticationFailed ErrorCode = "authentication_failed"
	CodeSameWalletTransfer   ErrorCode = "same_wallet_transfer"
	CodeTransactionNotFound  ErrorCode = "transaction_not_found"
	CodeAddressLocked        ErrorCode = "address_locked"
	CodeInvalidWebsocket     ErrorCode = "invalid_websocket_token"
	CodeInternal             ErrorCode = "internal_server_error"
)

var codeInfo = map[ErrorCode]struct {
	message string
	status  int
}{
	CodeAddressNotFound:      {"The address could not be found", http.StatusNotFound},
	CodeNameNotFound:         {"The name could not be found", http.StatusNotFound},
	CodeNameTaken:            {"The name is already taken", http.StatusConflict},
	CodeNotNameOwner:         {"Invalid name ownership", http.StatusForbidden},
	CodeInsufficientFunds:    {"Insufficient funds", http.StatusForbidden},
	CodeInvalidAmount:        {"Invalid amount number", http.StatusBadRequest},
	CodeInvalidParameter:     {"Invalid request parameter", http.StatusBadRequest},
	CodeAuthenticationFailed: {"Authentication failed", http.StatusUnauthorized},
	CodeSameWalletTransfer:   {"You cannot send to yourself", http.StatusBadRequest},
	CodeTransactionNotFound:  {"Transaction not found", http.StatusNotFound},
	CodeAddressLocked:        {"The address is locked", http.StatusForbidden},
	CodeInvalidWebsocket:     {"Invalid websocket token", http.StatusForbidden},
	CodeInternal:             {"Internal server error", http.StatusInternalServerError},
}

// Message returns the human readable description of the code.
func (c ErrorCode) Message() string {
	if info, ok := codeInfo[c]; ok {
		return info.message
	}
	return codeInfo[CodeInternal].message
}

// Status returns the HTTP status that the code maps to.
func (c ErrorCode) Status() int {
	if info, ok := codeInfo[c]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Error is a recoverable business failure.
type Error struct {
	Code      ErrorCode
	Parameter string // offending field for CodeInvalidParameter
	Err       error  // optional cause, never shown to clients
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Parameter != "" {
		msg += " (" + e.Parameter + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && (t.Parameter == "" || t.Parameter == e.Parameter)
}

// ─── Sentinel Errors ────────────────────────────────────────────────────────

var (
	ErrAddressNotFound      = &Error{Code: CodeAddressNotFound}
	ErrNameNotFound         = &Error{Code: CodeNameNotFound}
	ErrNameTaken            = &Error{Code: CodeNameTaken}
	ErrNotNameOwner         = &Error{Code: CodeNotNameOwner}
	ErrInsufficientFunds    = &Error{Code: CodeInsufficientFunds}
	ErrInvalidAmount        = &Error{Code: CodeInvalidAmount}
	ErrInvalidParameter     = &Error{Code: CodeInvalidParameter}
	ErrAuthenticationFailed = &Error{Code: CodeAuthenticationFailed}
	ErrSameWalletTransfer   = &Error{Code: CodeSameWalletTransfer}
	ErrTransactionNotFound  = &Error{Code: CodeTransactionNotFound}
	ErrAddressLocked        = &Error{Code: CodeAddressLocked}
	ErrInvalidWebsocket     = &Error{Code: CodeInvalidWebsocket}

	// ErrKeyGenerationExhausted is fatal: generated keys kept colliding with
	// existing addresses, which only a defect can cause.
	ErrKeyGenerationExhausted = errors.New("wallet key generation retry cap exceeded")
)

// ParameterError reports a malformed or missing request field.
func ParameterError(param string) *Error {
	return &Error{Code: CodeInvalidParameter, Parameter: param}
}

// AsError extracts a business error from err. ok is false for unexpected
// failures, which callers must surface as CodeInternal.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
