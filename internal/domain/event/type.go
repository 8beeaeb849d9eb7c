package event

// Type identifies the type of domain event
type Type string

const (
	TypeInvoiceCreated      Type = "invoice.created"
	TypeInvoiceTransitioned Type = "invoice.transitioned"
	TypeInvoiceDeleted      Type = "invoice.deleted"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInvoiceCreated,
		TypeInvoiceTransitioned,
		TypeInvoiceDeleted:
		return true
	default:
		return false
	}
}
