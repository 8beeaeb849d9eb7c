package port

import (
	"context"
	"io"
	"iter"

	"github.com/garyjia/invoice-ledger/internal/domain/entity"
)

// MessageSender delivers plain-text notifications to a chat or user
type MessageSender interface {
	SendText(ctx context.Context, receiveID string, text string) error
}

// ListingExporter writes an invoice listing as a spreadsheet
type ListingExporter interface {
	Export(ctx context.Context, title string, rows iter.Seq2[*entity.Invoice, error], w io.Writer) (int, error)
}
