package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/textile/backend/internal/application/invoicing"
	"github.com/textile/backend/internal/domain/sales"
	"github.com/textile/backend/internal/interfaces/http/dto"
)

// CounterHandler hands out values of the shared number sequences
type CounterHandler struct {
	BaseHandler
	service *invoicing.Service
}

// NewCounterHandler creates a new CounterHandler
func NewCounterHandler(service *invoicing.Service) *CounterHandler {
	return &CounterHandler{service: service}
}

// Reserve godoc
//
//	@Summary	Reserve the next value of a counter
//	@Tags		counters
//	@Param		namespace	path	string	true	"Counter namespace"	Enums(invoiceCounter, salesInvoiceCounter, salesOrderCounter, orderNumberCounter)
//	@Success	200	{object}	dto.ReserveNumberResponse
//	@Failure	400	{object}	dto.Response	"unknown namespace"
//	@Router		/counters/{namespace}/reserve [post]
func (h *CounterHandler) Reserve(c *gin.Context) {
	ns := sales.CounterNamespace(c.Param("namespace"))
	value, err := h.service.ReserveNumber(c.Request.Context(), ns)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ReserveNumberResponse{Namespace: ns.String(), Value: value})
}
