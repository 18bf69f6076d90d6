package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/textile/backend/internal/application/invoicing"
	"github.com/textile/backend/internal/domain/sales"
	"github.com/textile/backend/internal/interfaces/http/dto"
	"github.com/textile/backend/internal/interfaces/http/middleware"
)

// InvoiceHandler handles invoice endpoints of every workflow
type InvoiceHandler struct {
	BaseHandler
	service   *invoicing.Service
	logger    *zap.Logger
	heartbeat time.Duration
}

// InvoiceHandlerOption is a functional option for configuring the handler
type InvoiceHandlerOption func(*InvoiceHandler)

// WithInvoiceLogger sets the logger for the handler
func WithInvoiceLogger(logger *zap.Logger) InvoiceHandlerOption {
	return func(h *InvoiceHandler) {
		h.logger = logger
	}
}

// WithWatchHeartbeat sets the keep-alive interval of invoice streams
func WithWatchHeartbeat(interval time.Duration) InvoiceHandlerOption {
	return func(h *InvoiceHandler) {
		h.heartbeat = interval
	}
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(service *invoicing.Service, opts ...InvoiceHandlerOption) *InvoiceHandler {
	h := &InvoiceHandler{
		service:   service,
		logger:    zap.NewNop(),
		heartbeat: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Create godoc
//
//	@Summary	Consolidate a customer's eligible orders into one invoice
//	@Tags		invoices
//	@Param		workflow	path	string	true	"Invoicing workflow"
//	@Success	201	{object}	dto.CreateInvoiceResponse
//	@Success	200	{object}	dto.CreateInvoiceResponse	"nothing to do"
//	@Success	207	{object}	dto.PartialCompletionResponse
//	@Failure	409	{object}	dto.Response
//	@Router		/workflows/{workflow}/invoices [post]
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req dto.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.service.CreateInvoice(c.Request.Context(), req.ToCommand(c.Param("workflow")))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.Created() {
		h.Created(c, dto.FromCreateResult(result))
		return
	}
	h.Success(c, dto.FromCreateResult(result))
}

// List returns every invoice of the workflow
func (h *InvoiceHandler) List(c *gin.Context) {
	invoices, err := h.service.ListInvoices(c.Request.Context(), c.Param("workflow"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, dto.FromInvoices(invoices), len(invoices))
}

// Get returns one invoice
func (h *InvoiceHandler) Get(c *gin.Context) {
	number, ok := parseNumber(c)
	if !ok {
		h.BadRequest(c, "Invalid invoice number")
		return
	}
	inv, err := h.service.GetInvoice(c.Request.Context(), c.Param("workflow"), number)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.FromInvoice(inv))
}

// PDF godoc
//
//	@Summary	Print an invoice
//	@Tags		invoices
//	@Produce	application/pdf
//	@Success	200
//	@Failure	422	{object}	dto.Response	"required invoice fields missing"
//	@Failure	503	{object}	dto.Response	"renderer not configured"
//	@Router		/workflows/{workflow}/invoices/{number}/pdf [get]
func (h *InvoiceHandler) PDF(c *gin.Context) {
	number, ok := parseNumber(c)
	if !ok {
		h.BadRequest(c, "Invalid invoice number")
		return
	}
	rendered, err := h.service.RenderInvoice(c.Request.Context(), c.Param("workflow"), number)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, rendered.Filename()))
	if rendered.URL != "" {
		c.Header("X-Archive-URL", rendered.URL)
	}
	c.Data(http.StatusOK, "application/pdf", rendered.PDF)
}

// UpdateStatus moves an invoice to a new payment status
func (h *InvoiceHandler) UpdateStatus(c *gin.Context) {
	number, ok := parseNumber(c)
	if !ok {
		h.BadRequest(c, "Invalid invoice number")
		return
	}
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	inv, err := h.service.UpdatePaymentStatus(c.Request.Context(), c.Param("workflow"), number, sales.InvoiceStatus(req.Status))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.FromInvoice(inv))
}

// Relink links the invoice's orders left unlinked by a partial completion
func (h *InvoiceHandler) Relink(c *gin.Context) {
	number, ok := parseNumber(c)
	if !ok {
		h.BadRequest(c, "Invalid invoice number")
		return
	}
	result, err := h.service.RelinkOrders(c.Request.Context(), c.Param("workflow"), number)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.RelinkResponse{
		Invoice: dto.FromInvoice(result.Invoice),
		Linked:  nonNil(result.Linked),
	})
}

// Delete removes an invoice and releases its orders
func (h *InvoiceHandler) Delete(c *gin.Context) {
	number, ok := parseNumber(c)
	if !ok {
		h.BadRequest(c, "Invalid invoice number")
		return
	}
	detached, err := h.service.DeleteInvoice(c.Request.Context(), c.Param("workflow"), number)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.logger.Info("Invoice deleted by user",
		zap.String("user_id", middleware.GetJWTUserID(c)),
		zap.Int64("invoice_number", number))
	h.Success(c, dto.DeleteInvoiceResponse{Number: number, Detached: nonNil(detached)})
}

// Watch streams invoice changes of the workflow as server-sent events
// until the client goes away.
func (h *InvoiceHandler) Watch(c *gin.Context) {
	ctx := c.Request.Context()
	workflow := c.Param("workflow")
	events, err := h.service.WatchInvoices(ctx, workflow)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	log := h.logger.With(zap.String("workflow", workflow), zap.String("user_id", middleware.GetJWTUserID(c)))
	log.Info("Invoice watcher connected")
	defer log.Info("Invoice watcher disconnected")

	writeEvent(c.Writer, "connected", fmt.Sprintf(`{"workflow":%q}`, workflow))
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeEvent(c.Writer, "heartbeat", fmt.Sprintf(`{"timestamp":%d}`, time.Now().Unix()))
			c.Writer.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(dto.FromInvoiceEvent(ev))
			if err != nil {
				log.Error("Failed to marshal invoice event", zap.Error(err))
				continue
			}
			name := "invoice"
			if ev.Deleted {
				name = "invoice_deleted"
			}
			writeEvent(c.Writer, name, string(data), strconv.FormatInt(ev.Number, 10))
			c.Writer.Flush()
		}
	}
}

// writeEvent writes one SSE frame
func writeEvent(w io.Writer, event, data string, id ...string) {
	fmt.Fprintf(w, "event: %s\n", event)
	if len(id) > 0 && id[0] != "" {
		fmt.Fprintf(w, "id: %s\n", id[0])
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
