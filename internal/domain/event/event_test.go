package event

import (
	"testing"

	"github.com/google/uuid"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{name: "invoice created", eventType: TypeInvoiceCreated, want: true},
		{name: "invoice transitioned", eventType: TypeInvoiceTransitioned, want: true},
		{name: "invoice deleted", eventType: TypeInvoiceDeleted, want: true},
		{name: "unknown type", eventType: Type("unknown.type"), want: false},
		{name: "empty string", eventType: Type(""), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEvent(t *testing.T) {
	id := uuid.New()
	evt := NewEvent(TypeInvoiceCreated, id, "owner:abc", nil)

	if evt.ID == "" {
		t.Error("expected generated ID")
	}
	if evt.InvoiceID != id {
		t.Errorf("InvoiceID = %v, want %v", evt.InvoiceID, id)
	}
	if evt.Payload == nil {
		t.Error("expected non-nil payload")
	}
	if evt.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}

	other := NewEvent(TypeInvoiceCreated, id, "owner:abc", nil)
	if evt.ID == other.ID {
		t.Error("expected unique event IDs")
	}
}

func TestEvent_WithPayload(t *testing.T) {
	evt := NewEvent(TypeInvoiceTransitioned, uuid.New(), "owner:abc", map[string]interface{}{
		KeyFromStatus: "draft",
	})

	next := evt.WithPayload(KeyToStatus, "pending_approval")

	if _, ok := evt.Payload[KeyToStatus]; ok {
		t.Error("original payload must not be modified")
	}
	if got := next.GetPayloadString(KeyToStatus); got != "pending_approval" {
		t.Errorf("GetPayloadString() = %q, want pending_approval", got)
	}
	if got := next.GetPayloadString(KeyFromStatus); got != "draft" {
		t.Errorf("GetPayloadString() = %q, want draft", got)
	}
	if next.ID != evt.ID {
		t.Error("WithPayload must keep the event ID")
	}
}

func TestEvent_GetPayloadString(t *testing.T) {
	id := uuid.New()
	evt := NewEvent(TypeInvoiceCreated, uuid.New(), "", map[string]interface{}{
		"str":      "value",
		"stringer": id,
		"number":   42,
	})

	tests := []struct {
		key  string
		want string
	}{
		{"str", "value"},
		{"stringer", id.String()},
		{"number", ""},
		{"missing", ""},
	}

	for _, tt := range tests {
		if got := evt.GetPayloadString(tt.key); got != tt.want {
			t.Errorf("GetPayloadString(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
