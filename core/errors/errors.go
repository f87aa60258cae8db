package errors

import stderrors "errors"

// Code is the stable numeric identifier of a contract error. Codes are part of
// the external interface and must never be renumbered.
type Code uint32

const (
	CodeNotAuthorized             Code = 1
	CodeAlreadyInitialized        Code = 2
	CodeNotInitialized            Code = 3
	CodeReentrancy                Code = 4
	CodeMerchantAlreadyRegistered Code = 5
	CodeMerchantNotFound          Code = 6
	CodeInvalidAmount             Code = 7
	CodeInvoiceNotFound           Code = 8
	CodeContractPaused            Code = 9
	CodeContractNotPaused         Code = 10
	CodeMerchantKeyNotFound       Code = 11
)

// Error is a contract-declared failure. Every mutating operation either
// commits all of its writes or fails with exactly one of these values.
type Error struct {
	code Code
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Code returns the stable numeric identifier.
func (e *Error) Code() Code { return e.code }

var (
	ErrNotAuthorized             = &Error{code: CodeNotAuthorized, msg: "not authorized"}
	ErrAlreadyInitialized        = &Error{code: CodeAlreadyInitialized, msg: "already initialized"}
	ErrNotInitialized            = &Error{code: CodeNotInitialized, msg: "not initialized"}
	ErrReentrancy                = &Error{code: CodeReentrancy, msg: "reentrant call"}
	ErrMerchantAlreadyRegistered = &Error{code: CodeMerchantAlreadyRegistered, msg: "merchant already registered"}
	ErrMerchantNotFound          = &Error{code: CodeMerchantNotFound, msg: "merchant not found"}
	ErrInvalidAmount             = &Error{code: CodeInvalidAmount, msg: "invalid amount"}
	ErrInvoiceNotFound           = &Error{code: CodeInvoiceNotFound, msg: "invoice not found"}
	ErrContractPaused            = &Error{code: CodeContractPaused, msg: "contract paused"}
	ErrContractNotPaused         = &Error{code: CodeContractNotPaused, msg: "contract not paused"}
	ErrMerchantKeyNotFound       = &Error{code: CodeMerchantKeyNotFound, msg: "merchant key not found"}
)

// CodeOf extracts the contract error code from err, unwrapping as needed. The
// boolean is false for host-level failures that carry no contract code.
func CodeOf(err error) (Code, bool) {
	var cerr *Error
	if stderrors.As(err, &cerr) {
		return cerr.code, true
	}
	return 0, false
}

// Is reports whether err is (or wraps) the given contract error.
func Is(err, target error) bool { return stderrors.Is(err, target) }
