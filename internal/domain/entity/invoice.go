package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle status of an invoice
type InvoiceStatus string

const (
	StatusDraft           InvoiceStatus = "draft"
	StatusPendingApproval InvoiceStatus = "pending_approval"
	StatusApproved        InvoiceStatus = "approved"
	StatusIssued          InvoiceStatus = "issued"
	StatusCancelled       InvoiceStatus = "cancelled"
)

// PendingStatuses make up the pending work queue
var PendingStatuses = []InvoiceStatus{StatusDraft, StatusPendingApproval}

// HistoryStatuses make up the issued/cancelled history
var HistoryStatuses = []InvoiceStatus{StatusApproved, StatusIssued, StatusCancelled}

// String returns the string representation of the status
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a known lifecycle status
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusPendingApproval, StatusApproved, StatusIssued, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsProtected reports whether the status bars deletion and cancellation
func (s InvoiceStatus) IsProtected() bool {
	return s == StatusApproved || s == StatusIssued
}

// Invoice is a numbered invoice owned by a user or a company
type Invoice struct {
	ID            uuid.UUID       `json:"id"`
	Seq           int64           `json:"-"`
	OwnerID       uuid.UUID       `json:"owner_id"`
	CompanyID     *uuid.UUID      `json:"company_id,omitempty"`
	ScopeKey      string          `json:"scope_key"`
	InvoiceNumber string          `json:"invoice_number"`
	Status        InvoiceStatus   `json:"status"`
	ClientName    string          `json:"client_name"`
	Description   string          `json:"description"`
	Currency      string          `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	IssueDate     *time.Time      `json:"issue_date,omitempty"`
	RequestKey    *string         `json:"request_key,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	ApprovedAt    *time.Time      `json:"approved_at,omitempty"`
	IssuedAt      *time.Time      `json:"issued_at,omitempty"`
	DeletedAt     *time.Time      `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the invoice has been soft-deleted.
// Deleted invoices take no part in numbering, listings, or transitions.
func (i *Invoice) IsDeleted() bool {
	return i.DeletedAt != nil
}

// IsProtected reports whether the invoice is approved or issued
func (i *Invoice) IsProtected() bool {
	return i.Status.IsProtected()
}

// Clone returns a copy that shares no pointers with the receiver
func (i *Invoice) Clone() *Invoice {
	c := *i
	c.CompanyID = clonePtr(i.CompanyID)
	c.IssueDate = clonePtr(i.IssueDate)
	c.RequestKey = clonePtr(i.RequestKey)
	c.ApprovedAt = clonePtr(i.ApprovedAt)
	c.IssuedAt = clonePtr(i.IssuedAt)
	c.DeletedAt = clonePtr(i.DeletedAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// InvoicePayload carries the caller-supplied fields of a new invoice
type InvoicePayload struct {
	ClientName  string          `json:"client_name"`
	Description string          `json:"description"`
	Currency    string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	IssueDate   *time.Time      `json:"issue_date,omitempty"`
	RequestKey  string          `json:"-"`
}
