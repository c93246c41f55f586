// Package swaperr defines the typed errors surfaced by the swap engine.
// Every failed SwapResult carries one of these so callers can tell a bad
// request from an on-chain revert from a flaky RPC without string matching.
package swaperr

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Kind classifies an engine error.
type Kind string

const (
	// KindValidation - malformed or out-of-range request. No I/O was performed.
	KindValidation Kind = "VALIDATION"
	// KindInsufficientFunds - pre-flight balance check failed.
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	// KindApproval - approval submission, revert, or timeout.
	KindApproval Kind = "APPROVAL"
	// KindQuoteUnavailable - rate source failed and no fallback is configured.
	KindQuoteUnavailable Kind = "QUOTE_UNAVAILABLE"
	// KindReverted - on-chain execution failure. Never retried automatically;
	// the transaction may revert for a structural reason a retry cannot fix.
	KindReverted Kind = "TX_REVERTED"
	// KindTimeout - transaction still non-terminal after the poll budget.
	// The transaction is left outstanding, not cancelled.
	KindTimeout Kind = "TX_TIMEOUT"
	// KindTransport - RPC/network failure, distinct from on-chain failure.
	// Reads may be retried freely; submissions must not be retried blindly.
	KindTransport Kind = "TRANSPORT"
)

// Error is the engine's error type. TxHash and Receipt are set when the
// failure is tied to a submitted transaction, so callers can inspect the
// chain before deciding what to do next.
type Error struct {
	kind    Kind
	msg     string
	cause   error
	TxHash  *common.Hash
	Receipt *types.Receipt
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

// WithTx returns the error annotated with the transaction it concerns.
func (e *Error) WithTx(hash common.Hash) *Error {
	e.TxHash = &hash
	return e
}

// WithReceipt attaches the receipt of a reverted transaction.
func (e *Error) WithReceipt(receipt *types.Receipt) *Error {
	e.Receipt = receipt
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind {
	if e == nil {
		return ""
	}
	return e.kind
}

// Message returns the message without the kind prefix or cause chain.
func (e *Error) Message() string {
	return e.msg
}

// KindOf extracts the kind from any error, walking the wrap chain.
// Unclassified errors report KindTransport: everything the engine produces
// itself is typed, so an untyped error came from the RPC boundary.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind()
	}
	return KindTransport
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
