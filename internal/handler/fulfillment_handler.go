package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/metrolink/fulfillment/internal/approval"
	"github.com/metrolink/fulfillment/internal/client"
	"github.com/metrolink/fulfillment/internal/domain"
	"github.com/metrolink/fulfillment/internal/repository"
	"github.com/metrolink/fulfillment/internal/saga"
	"github.com/metrolink/fulfillment/pkg/response"
)

// FulfillmentHandler exposes the fulfillment saga over HTTP
type FulfillmentHandler struct {
	orchestrator *saga.Orchestrator
	bookings     client.BookingAPI
	outcomes     repository.OutcomeRepository
}

// NewFulfillmentHandler creates a new FulfillmentHandler
func NewFulfillmentHandler(orchestrator *saga.Orchestrator, bookings client.BookingAPI, outcomes repository.OutcomeRepository) *FulfillmentHandler {
	return &FulfillmentHandler{
		orchestrator: orchestrator,
		bookings:     bookings,
		outcomes:     outcomes,
	}
}

// fulfillRequest is the POST body for starting a fulfillment run
type fulfillRequest struct {
	PaymentMethod string        `json:"payment_method" binding:"required"`
	UPIID         string        `json:"upi_id"`
	Route         *domain.Route `json:"route" binding:"required"`
	Approval      *struct {
		Action  string `json:"action"`
		AfterMs int    `json:"after_ms"`
	} `json:"approval"`
}

// fulfillResponse is the terminal result rendered to the caller
type fulfillResponse struct {
	Status           string           `json:"status"`
	BookingID        string           `json:"booking_id"`
	PaymentID        string           `json:"payment_id,omitempty"`
	TransactionRef   string           `json:"transaction_ref,omitempty"`
	BookingConfirmed bool             `json:"booking_confirmed"`
	Tickets          []*domain.Ticket `json:"tickets,omitempty"`
	TicketsFailed    int              `json:"tickets_failed,omitempty"`
	FinishedAt       time.Time        `json:"finished_at"`
}

func fromResult(res *saga.Result) *fulfillResponse {
	return &fulfillResponse{
		Status:           string(res.Kind),
		BookingID:        res.BookingID,
		PaymentID:        res.PaymentID,
		TransactionRef:   res.TransactionRef,
		BookingConfirmed: res.BookingConfirmed,
		Tickets:          res.Tickets,
		TicketsFailed:    res.TicketsFailed(),
		FinishedAt:       res.FinishedAt,
	}
}

// Fulfill handles POST /bookings/:id/fulfillment
// Runs the whole saga and replies with its terminal result. A degraded
// completion is still a 200; only approval aborts and payment rejections
// surface as errors.
func (h *FulfillmentHandler) Fulfill(c *gin.Context) {
	bookingID := c.Param("id")
	if bookingID == "" {
		response.BadRequest(c, "booking id is required")
		return
	}

	var req fulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	method := domain.PaymentMethod(req.PaymentMethod)
	if !method.Valid() {
		response.BadRequest(c, "unsupported payment method: "+req.PaymentMethod)
		return
	}
	if method == domain.PaymentMethodUPI && req.UPIID == "" {
		response.BadRequest(c, "upi_id is required for upi payments")
		return
	}

	booking, err := h.bookings.Get(c.Request.Context(), bookingID)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			response.NotFound(c, "booking not found")
			return
		}
		response.Error(c, http.StatusBadGateway, "BOOKING_LOOKUP_FAILED", "could not load booking", err.Error())
		return
	}

	// No interactive customer on this path: default to approving as soon
	// as the approval screen opens.
	script := approval.Script{Action: approval.ActionApprove}
	if req.Approval != nil && req.Approval.Action != "" {
		script.Action = approval.Action(req.Approval.Action)
		script.After = time.Duration(req.Approval.AfterMs) * time.Millisecond
	}

	res, err := h.orchestrator.Run(c.Request.Context(), &saga.RunRequest{
		Booking:  booking,
		Route:    req.Route,
		Method:   method,
		UPIID:    req.UPIID,
		Approval: script,
	})
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFulfillable) {
			response.Conflict(c, "booking cannot be fulfilled in its current status")
			return
		}
		response.Error(c, http.StatusInternalServerError, "FULFILLMENT_FAILED", "fulfillment run failed to start", err.Error())
		return
	}

	switch res.Kind {
	case saga.ResultDuplicate:
		// The first run is already progressing; nothing to do here.
		response.Success(c, gin.H{"status": "in_progress", "booking_id": res.BookingID})
	case saga.ResultAborted:
		response.UnprocessableEntity(c, "APPROVAL_NOT_GRANTED", res.Reason)
	case saga.ResultPaymentFailed:
		response.UnprocessableEntity(c, "PAYMENT_FAILED", res.Reason)
	default:
		if warnings := res.Warnings(); len(warnings) > 0 {
			response.SuccessWithWarnings(c, fromResult(res), warnings)
			return
		}
		response.Success(c, fromResult(res))
	}
}

// GetOutcomes handles GET /bookings/:id/fulfillment
// Returns the recorded outcome history for the booking, newest first
func (h *FulfillmentHandler) GetOutcomes(c *gin.Context) {
	bookingID := c.Param("id")
	if bookingID == "" {
		response.BadRequest(c, "booking id is required")
		return
	}

	outcomes, err := h.outcomes.GetByBookingID(c.Request.Context(), bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrOutcomeNotFound) {
			response.NotFound(c, "no fulfillment outcome recorded for this booking")
			return
		}
		response.Error(c, http.StatusInternalServerError, "OUTCOME_LOOKUP_FAILED", "could not load outcomes", err.Error())
		return
	}

	response.Success(c, gin.H{"outcomes": outcomes, "total": len(outcomes)})
}

// ListDegraded handles GET /fulfillment/degraded
// Lists degraded outcomes, oldest first, for the reconciliation job
func (h *FulfillmentHandler) ListDegraded(c *gin.Context) {
	limit := 100
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	outcomes, err := h.outcomes.ListDegraded(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "OUTCOME_LOOKUP_FAILED", "could not list degraded outcomes", err.Error())
		return
	}

	response.Success(c, gin.H{"outcomes": outcomes, "total": len(outcomes)})
}

// RegisterRoutes mounts the fulfillment endpoints on the router group
func (h *FulfillmentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/bookings/:id/fulfillment", h.Fulfill)
	rg.GET("/bookings/:id/fulfillment", h.GetOutcomes)
	rg.GET("/fulfillment/degraded", h.ListDegraded)
}
