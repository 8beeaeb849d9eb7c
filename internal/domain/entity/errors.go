package entity

import "errors"

var (
	// ErrInvalidScope is returned when no owner or tenant context can be resolved
	ErrInvalidScope = errors.New("invalid scope")

	// ErrAllocationExhausted is returned when every numbering attempt lost a race
	ErrAllocationExhausted = errors.New("invoice number allocation exhausted")

	// ErrIllegalTransition is returned for a status change outside the lifecycle table
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrInvoiceProtected is returned when an approved or issued invoice would be cancelled or deleted
	ErrInvoiceProtected = errors.New("invoice is protected")

	// ErrNotFound is returned when no active invoice has the given id
	ErrNotFound = errors.New("invoice not found")

	// ErrForbidden is returned when the actor lacks the capability for an operation
	ErrForbidden = errors.New("operation not permitted")
)

// ErrConcurrentUpdate is returned when an invoice kept changing while a transition was applied
var ErrConcurrentUpdate = errors.New("invoice changed concurrently")
