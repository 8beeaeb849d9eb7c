package service

import (
	"context"
	"io"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/invoice-ledger/internal/application/dispatcher"
	"github.com/garyjia/invoice-ledger/internal/application/port"
	"github.com/garyjia/invoice-ledger/internal/application/scope"
	"github.com/garyjia/invoice-ledger/internal/application/workflow"
	"github.com/garyjia/invoice-ledger/internal/domain/entity"
	"github.com/garyjia/invoice-ledger/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// InvoiceService allocates invoice numbers and drives the invoice lifecycle
type InvoiceService interface {
	// AllocateAndCreate numbers and stores a new draft invoice in the scope
	AllocateAndCreate(ctx context.Context, sc scope.Scope, payload entity.InvoicePayload) (*entity.Invoice, error)

	// Get returns an active invoice visible to the actor
	Get(ctx context.Context, actor *scope.Actor, id uuid.UUID) (*entity.Invoice, error)

	// Transition moves an invoice to the target status. When the lifecycle rejects the
	// change, the unchanged invoice is returned with the error.
	Transition(ctx context.Context, actor *scope.Actor, id uuid.UUID, target entity.InvoiceStatus) (*entity.Invoice, error)

	// SoftDelete marks an unprotected invoice as deleted. A rejected delete returns the
	// unchanged invoice with the error.
	SoftDelete(ctx context.Context, actor *scope.Actor, id uuid.UUID) (*entity.Invoice, error)

	// ListPending yields active draft and pending_approval invoices, newest first
	ListPending(ctx context.Context, scopeKey string) iter.Seq2[*entity.Invoice, error]

	// ListHistory yields active approved, issued and cancelled invoices, newest first
	ListHistory(ctx context.Context, scopeKey string) iter.Seq2[*entity.Invoice, error]

	// ExportHistory writes the history view as a spreadsheet and returns the row count
	ExportHistory(ctx context.Context, scopeKey string, w io.Writer) (int, error)
}

// Config tunes allocation retries and listing pages
type Config struct {
	// MaxAttempts bounds numbering attempts that lose a uniqueness race
	MaxAttempts int

	// StoreRetries bounds extra attempts after a store-unavailable error
	StoreRetries int

	// Backoff is the first delay between store retries; it doubles each time
	Backoff time.Duration

	// PageSize is the number of rows fetched per listing round trip
	PageSize int
}

const (
	defaultMaxAttempts = 5
	defaultPageSize    = 50

	// transitionAttempts bounds re-evaluation after a lost compare-and-set
	transitionAttempts = 3
)

type invoiceServiceImpl struct {
	repo       port.InvoiceRepository
	engine     workflow.LifecycleEngine
	dispatcher dispatcher.Dispatcher
	exporter   port.ListingExporter
	cfg        Config
	logger     Logger
	now        func() time.Time
}

// Option configures the invoice service
type Option func(*invoiceServiceImpl)

// WithDispatcher publishes lifecycle events to d
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(s *invoiceServiceImpl) {
		s.dispatcher = d
	}
}

// WithExporter enables ExportHistory
func WithExporter(e port.ListingExporter) Option {
	return func(s *invoiceServiceImpl) {
		s.exporter = e
	}
}

// WithClock replaces the clock used for lifecycle timestamps
func WithClock(now func() time.Time) Option {
	return func(s *invoiceServiceImpl) {
		s.now = now
	}
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	repo port.InvoiceRepository,
	engine workflow.LifecycleEngine,
	cfg Config,
	logger Logger,
	opts ...Option,
) InvoiceService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.StoreRetries < 0 {
		cfg.StoreRetries = 0
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}

	s := &invoiceServiceImpl{
		repo:   repo,
		engine: engine,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// publish hands the event to async handlers. The caller's cancellation does not reach them.
func (s *invoiceServiceImpl) publish(ctx context.Context, t event.Type, inv *entity.Invoice, payload map[string]interface{}) {
	if s.dispatcher == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload[event.KeyInvoiceNumber] = inv.InvoiceNumber
	s.dispatcher.DispatchAsync(context.WithoutCancel(ctx), event.NewEvent(t, inv.ID, inv.ScopeKey, payload))
}
