package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service error for transport mapping.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindUpstream     Kind = "upstream"
	KindUnauthorized Kind = "unauthorized"
	KindInternal     Kind = "internal"
)

// Error is the error type returned by every service operation.  Message is
// safe to show to API callers; Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Business-rule sentinels.  Compare with errors.Is.
var (
	ErrAlreadyHasPass          = &Error{Kind: KindConflict, Message: "You already have a pass. Only one pass per user is allowed."}
	ErrAlreadyProcessed        = &Error{Kind: KindConflict, Message: "This payment has already been processed"}
	ErrPaymentNotCompleted     = &Error{Kind: KindValidation, Message: "Payment verification failed - payment not completed"}
	ErrRefundOwed              = &Error{Kind: KindConflict, Message: "You already have a pass. This payment has been flagged for refund."}
	ErrCompletedNotCancellable = &Error{Kind: KindValidation, Message: "Cannot cancel completed transactions. Request a refund instead."}
	ErrMissingOrderRef         = &Error{Kind: KindValidation, Message: "KonfHub order ID not found"}
	ErrUserSync                = &Error{Kind: KindNotFound, Message: "User not found"}
	ErrTransactionNotFound     = &Error{Kind: KindNotFound, Message: "Transaction not found"}
	ErrPassNotFound            = &Error{Kind: KindNotFound, Message: "Pass not found"}
	ErrClaimNotFound           = &Error{Kind: KindNotFound, Message: "Pass claim not found"}
	ErrClaimNotPending         = &Error{Kind: KindConflict, Message: "Pass claim is no longer pending"}
)

func validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

func upstream(msg string, err error) error { return &Error{Kind: KindUpstream, Message: msg, Err: err} }

func internal(msg string, err error) error { return &Error{Kind: KindInternal, Message: msg, Err: err} }

// KindOf reports the Kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message of err.
func MessageOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return "internal server error"
}
