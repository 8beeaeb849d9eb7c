package http

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/invoice-ledger/internal/application/scope"
	"github.com/garyjia/invoice-ledger/internal/application/service"
	"github.com/garyjia/invoice-ledger/internal/domain/entity"
	"github.com/garyjia/invoice-ledger/pkg/utils"
)

const (
	dateLayout       = "2006-01-02"
	defaultListLimit = 100
	maxListLimit     = 1000
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	invoices service.InvoiceService
	resolver *scope.Resolver
	health   HealthChecker
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(invoices service.InvoiceService, resolver *scope.Resolver, health HealthChecker, logger Logger) *Handlers {
	return &Handlers{
		invoices: invoices,
		resolver: resolver,
		health:   health,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store"`
	Timestamp string `json:"timestamp"`
}

// PayloadRequest carries the caller-supplied invoice fields
type PayloadRequest struct {
	ClientName  string          `json:"client_name"`
	Description string          `json:"description"`
	Currency    string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	IssueDate   string          `json:"issue_date"`
}

// CreateInvoiceRequest is the body of POST /api/v1/invoices
type CreateInvoiceRequest struct {
	CompanyID     *uuid.UUID     `json:"company_id"`
	Series        string         `json:"series"`
	ReferenceDate string         `json:"reference_date"`
	Payload       PayloadRequest `json:"payload"`
}

// TransitionRequest is the body of POST /api/v1/invoices/:id/transition
type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
}

// ListRequest represents query parameters for the views
type ListRequest struct {
	CompanyID string `form:"company_id"`
	Limit     int    `form:"limit"`
}

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	ID            string  `json:"id"`
	InvoiceNumber string  `json:"invoice_number"`
	Status        string  `json:"status"`
	OwnerID       string  `json:"owner_id"`
	CompanyID     *string `json:"company_id,omitempty"`
	ClientName    string  `json:"client_name"`
	Description   string  `json:"description,omitempty"`
	Currency      string  `json:"currency"`
	Amount        string  `json:"amount"`
	IssueDate     *string `json:"issue_date,omitempty"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
	ApprovedAt    *string `json:"approved_at,omitempty"`
	IssuedAt      *string `json:"issued_at,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Store:     "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.health.Ping(c.Request.Context()); err != nil {
		h.logger.Error("Health check failed", "error", err)
		response.Status = "unhealthy"
		response.Store = "unreachable"
		c.JSON(http.StatusServiceUnavailable, Response{
			Success: false,
			Data:    response,
			Error:   "invoice store unreachable",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// CreateInvoice handles POST /api/v1/invoices
func (h *Handlers) CreateInvoice(c *gin.Context) {
	actor := requestActor(c)
	if !actor.Can(scope.CapCreate) {
		h.respondError(c, "create", entity.ErrForbidden)
		return
	}

	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	var ref time.Time
	if req.ReferenceDate != "" {
		t, err := time.Parse(dateLayout, req.ReferenceDate)
		if err != nil {
			badRequest(c, "reference_date must be YYYY-MM-DD")
			return
		}
		ref = t
	}

	payload, err := toPayload(req.Payload)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	payload.RequestKey = strings.TrimSpace(c.GetHeader("Idempotency-Key"))

	sc, err := h.resolver.Resolve(actor, req.CompanyID, ref, req.Series)
	if err != nil {
		h.respondError(c, "create", err)
		return
	}

	inv, err := h.invoices.AllocateAndCreate(c.Request.Context(), sc, payload)
	if err != nil {
		h.respondError(c, "create", err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    toInvoiceResponse(inv),
	})
}

// GetInvoice handles GET /api/v1/invoices/:id
func (h *Handlers) GetInvoice(c *gin.Context) {
	id, ok := invoiceID(c)
	if !ok {
		return
	}

	inv, err := h.invoices.Get(c.Request.Context(), requestActor(c), id)
	if err != nil {
		h.respondError(c, "get", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toInvoiceResponse(inv),
	})
}

// TransitionInvoice handles POST /api/v1/invoices/:id/transition
func (h *Handlers) TransitionInvoice(c *gin.Context) {
	id, ok := invoiceID(c)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}

	target := entity.InvoiceStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !target.IsValid() {
		badRequest(c, fmt.Sprintf("unknown status %q", req.Status))
		return
	}

	inv, err := h.invoices.Transition(c.Request.Context(), requestActor(c), id, target)
	if err != nil {
		h.respondError(c, "transition", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toInvoiceResponse(inv),
	})
}

// DeleteInvoice handles DELETE /api/v1/invoices/:id
func (h *Handlers) DeleteInvoice(c *gin.Context) {
	id, ok := invoiceID(c)
	if !ok {
		return
	}

	inv, err := h.invoices.SoftDelete(c.Request.Context(), requestActor(c), id)
	if err != nil {
		h.respondError(c, "delete", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toInvoiceResponse(inv),
	})
}

// ListPending handles GET /api/v1/invoices/pending
func (h *Handlers) ListPending(c *gin.Context) {
	h.list(c, "pending", h.invoices.ListPending)
}

// ListHistory handles GET /api/v1/invoices/history
func (h *Handlers) ListHistory(c *gin.Context) {
	h.list(c, "history", h.invoices.ListHistory)
}

func (h *Handlers) list(c *gin.Context, op string, view func(ctx context.Context, scopeKey string) iter.Seq2[*entity.Invoice, error]) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	scopeKey, ok := h.viewScope(c, op, req.CompanyID)
	if !ok {
		return
	}

	items := make([]InvoiceResponse, 0)
	for inv, err := range view(c.Request.Context(), scopeKey) {
		if err != nil {
			h.respondError(c, op, err)
			return
		}
		items = append(items, toInvoiceResponse(inv))
		if len(items) == limit {
			break
		}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    items,
	})
}

// ExportHistory handles GET /api/v1/invoices/history/export
func (h *Handlers) ExportHistory(c *gin.Context) {
	scopeKey, ok := h.viewScope(c, "export", c.Query("company_id"))
	if !ok {
		return
	}

	// The exporter writes nothing until every row has been read, so errors still get a JSON body
	c.Header("Content-Type", xlsxContentType)
	c.Header("Content-Disposition", `attachment; filename="invoice-history.xlsx"`)

	n, err := h.invoices.ExportHistory(c.Request.Context(), scopeKey, c.Writer)
	if err != nil {
		c.Header("Content-Type", "")
		c.Header("Content-Disposition", "")
		h.respondError(c, "export", err)
		return
	}

	h.logger.Info("History export sent", "scope", scopeKey, "rows", n)
}

// viewScope checks the view capability and resolves the listing scope key
func (h *Handlers) viewScope(c *gin.Context, op, company string) (string, bool) {
	actor := requestActor(c)
	if !actor.Can(scope.CapView) {
		h.respondError(c, op, entity.ErrForbidden)
		return "", false
	}

	var companyID *uuid.UUID
	if company != "" {
		id, err := uuid.Parse(company)
		if err != nil {
			badRequest(c, "invalid company_id")
			return "", false
		}
		companyID = &id
	}

	key, err := h.resolver.Key(actor, companyID)
	if err != nil {
		h.respondError(c, op, err)
		return "", false
	}
	return key, true
}

func invoiceID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid invoice ID")
		return uuid.Nil, false
	}
	return id, true
}

func toPayload(req PayloadRequest) (entity.InvoicePayload, error) {
	p := entity.InvoicePayload{
		ClientName:  utils.SanitizeString(req.ClientName),
		Description: utils.SanitizeString(req.Description),
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		Amount:      req.Amount,
	}

	if p.ClientName == "" {
		return p, fmt.Errorf("client_name is required")
	}
	if err := utils.ValidateText("client_name", p.ClientName); err != nil {
		return p, err
	}
	if err := utils.ValidateText("description", p.Description); err != nil {
		return p, err
	}
	if err := utils.ValidateCurrency(p.Currency); err != nil {
		return p, err
	}
	if err := utils.ValidateAmount(p.Amount); err != nil {
		return p, err
	}

	if req.IssueDate != "" {
		t, err := time.Parse(dateLayout, req.IssueDate)
		if err != nil {
			return p, fmt.Errorf("issue_date must be YYYY-MM-DD")
		}
		p.IssueDate = &t
	}

	return p, nil
}

func toInvoiceResponse(inv *entity.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:            inv.ID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		Status:        inv.Status.String(),
		OwnerID:       inv.OwnerID.String(),
		ClientName:    inv.ClientName,
		Description:   inv.Description,
		Currency:      inv.Currency,
		Amount:        inv.Amount.StringFixed(2),
		CreatedAt:     inv.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     inv.UpdatedAt.UTC().Format(time.RFC3339),
	}

	if inv.CompanyID != nil {
		s := inv.CompanyID.String()
		resp.CompanyID = &s
	}
	if inv.IssueDate != nil {
		s := inv.IssueDate.Format(dateLayout)
		resp.IssueDate = &s
	}
	resp.ApprovedAt = formatTime(inv.ApprovedAt)
	resp.IssuedAt = formatTime(inv.IssuedAt)

	return resp
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
