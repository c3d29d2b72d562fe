package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrolink/fulfillment/internal/approval"
	"github.com/metrolink/fulfillment/internal/client"
	"github.com/metrolink/fulfillment/internal/domain"
	"github.com/metrolink/fulfillment/internal/events"
	"github.com/metrolink/fulfillment/internal/repository"
	"github.com/metrolink/fulfillment/internal/saga"
	"github.com/metrolink/fulfillment/pkg/response"
	"github.com/metrolink/fulfillment/pkg/singleflight"
)

type stubPayments struct {
	processErr error
}

func (s *stubPayments) Create(ctx context.Context, req *client.CreatePaymentRequest) (*domain.PaymentAttempt, error) {
	return &domain.PaymentAttempt{ID: req.PaymentID, BookingID: req.BookingID, Status: domain.PaymentStatusCreated}, nil
}

func (s *stubPayments) Process(ctx context.Context, req *client.ProcessPaymentRequest) (*domain.PaymentAttempt, error) {
	if s.processErr != nil {
		return nil, s.processErr
	}
	return &domain.PaymentAttempt{ID: req.PaymentID, Status: domain.PaymentStatusSucceeded, TransactionID: req.TransactionID}, nil
}

type stubBookings struct {
	booking    *domain.Booking
	confirmErr error
}

func (s *stubBookings) Get(ctx context.Context, bookingID string) (*domain.Booking, error) {
	if s.booking == nil || s.booking.ID != bookingID {
		return nil, domain.ErrBookingNotFound
	}
	return s.booking, nil
}

func (s *stubBookings) Confirm(ctx context.Context, bookingID, paymentID string) (*domain.Booking, error) {
	if s.confirmErr != nil {
		return nil, s.confirmErr
	}
	return &domain.Booking{ID: bookingID, Status: domain.BookingStatusConfirmed}, nil
}

type stubTickets struct{}

func (s *stubTickets) Create(ctx context.Context, req *client.CreateTicketRequest) (*domain.Ticket, error) {
	return &domain.Ticket{ID: "tkt-" + req.PassengerName, PassengerName: req.PassengerName}, nil
}

type instantApprover struct {
	outcome approval.Outcome
}

func (a *instantApprover) RequestApproval(ctx context.Context, booking *domain.Booking, script approval.Script) approval.Outcome {
	return a.outcome
}

type handlerFixture struct {
	payments *stubPayments
	bookings *stubBookings
	approver *instantApprover
	guard    singleflight.Guard
	outcomes *repository.MemoryOutcomeRepository
	router   *gin.Engine
}

func newHandlerFixture() *handlerFixture {
	gin.SetMode(gin.TestMode)

	f := &handlerFixture{
		payments: &stubPayments{},
		bookings: &stubBookings{booking: &domain.Booking{
			ID:            "bk-1",
			BookingNumber: "MTL-2025-0001",
			Passengers: []domain.Passenger{
				{FirstName: "Asha", LastName: "Rao", Type: domain.PassengerTypeAdult, Fare: 30},
				{FirstName: "Vikram", LastName: "Rao", Type: domain.PassengerTypeAdult, Fare: 30},
			},
			TotalAmount: 60,
			Currency:    "INR",
			Status:      domain.BookingStatusPaymentPending,
		}},
		approver: &instantApprover{outcome: approval.Outcome{
			Decision:       approval.DecisionApproved,
			TransactionRef: "UPI42",
		}},
		guard:    singleflight.NewMemoryGuard(),
		outcomes: repository.NewMemoryOutcomeRepository(),
	}

	orchestrator := saga.NewOrchestrator(
		f.guard,
		f.approver,
		saga.NewPaymentStep(f.payments, nil),
		saga.NewBookingConfirmStep(f.bookings, nil),
		saga.NewTicketIssuanceStep(&stubTickets{}, time.Hour, nil),
		f.outcomes,
		events.NoopPublisher{},
		&saga.Config{StepTimeout: time.Second, RunTimeout: 5 * time.Second},
		nil,
	)

	h := NewFulfillmentHandler(orchestrator, f.bookings, f.outcomes)
	f.router = gin.New()
	h.RegisterRoutes(f.router.Group("/api/v1"))
	return f
}

func fulfillBody(t *testing.T, overrides map[string]interface{}) []byte {
	t.Helper()
	body := map[string]interface{}{
		"payment_method": "upi",
		"upi_id":         "rider@upi",
		"route": map[string]interface{}{
			"id":                  "rt-1",
			"source_station":      map[string]string{"id": "st-1", "name": "Central", "code": "CTL"},
			"destination_station": map[string]string{"id": "st-9", "name": "Airport", "code": "APT"},
			"transfer_count":      0,
		},
	}
	for k, v := range overrides {
		body[k] = v
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw
}

func doFulfill(f *handlerFixture, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/bk-1/fulfillment", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) *response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return &resp
}

func TestFulfill_Completed(t *testing.T) {
	f := newHandlerFixture()

	rec := doFulfill(f, fulfillBody(t, nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Warnings)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "completed", data["status"])
	assert.Equal(t, "UPI42", data["transaction_ref"])
	assert.Equal(t, true, data["booking_confirmed"])
	assert.Len(t, data["tickets"], 2)
}

func TestFulfill_DegradedConfirmIsStillSuccess(t *testing.T) {
	f := newHandlerFixture()
	f.bookings.confirmErr = errors.New("booking service down")

	rec := doFulfill(f, fulfillBody(t, nil))

	require.Equal(t, http.StatusOK, rec.Code, "a charged customer must never get an error status")
	resp := decode(t, rec)
	assert.True(t, resp.Success)
	require.NotEmpty(t, resp.Warnings)
	assert.Contains(t, resp.Warnings[0], "confirmation")

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, false, data["booking_confirmed"])
	assert.Len(t, data["tickets"], 2)
}

func TestFulfill_ApprovalDeclined(t *testing.T) {
	f := newHandlerFixture()
	f.approver.outcome = approval.Outcome{Decision: approval.DecisionDeclined, Reason: "declined by customer"}

	rec := doFulfill(f, fulfillBody(t, nil))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "APPROVAL_NOT_GRANTED", resp.Error.Code)
}

func TestFulfill_PaymentFailed(t *testing.T) {
	f := newHandlerFixture()
	f.payments.processErr = errors.New("gateway timeout")

	rec := doFulfill(f, fulfillBody(t, nil))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "PAYMENT_FAILED", resp.Error.Code)
}

func TestFulfill_DuplicateRunInProgress(t *testing.T) {
	f := newHandlerFixture()

	// Simulate an in-flight run holding the guard.
	ok, err := f.guard.TryAcquire(context.Background(), "bk-1")
	require.NoError(t, err)
	require.True(t, ok)

	rec := doFulfill(f, fulfillBody(t, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "in_progress", data["status"])
}

func TestFulfill_UnknownBooking(t *testing.T) {
	f := newHandlerFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/missing/fulfillment", bytes.NewReader(fulfillBody(t, nil)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFulfill_ValidationErrors(t *testing.T) {
	f := newHandlerFixture()

	tests := []struct {
		name string
		body []byte
	}{
		{"unsupported method", fulfillBody(t, map[string]interface{}{"payment_method": "cheque"})},
		{"upi without upi_id", fulfillBody(t, map[string]interface{}{"upi_id": ""})},
		{"missing route", []byte(`{"payment_method":"upi","upi_id":"rider@upi"}`)},
		{"not json", []byte(`{`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doFulfill(f, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestFulfill_UnfulfillableBookingConflicts(t *testing.T) {
	f := newHandlerFixture()
	f.bookings.booking.Status = domain.BookingStatusConfirmed

	rec := doFulfill(f, fulfillBody(t, nil))

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetOutcomes(t *testing.T) {
	f := newHandlerFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/bk-1/fulfillment", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code, "no outcome recorded yet")

	doFulfill(f, fulfillBody(t, nil))

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/bookings/bk-1/fulfillment", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["total"])
}

func TestListDegraded(t *testing.T) {
	f := newHandlerFixture()
	f.bookings.confirmErr = errors.New("booking service down")

	doFulfill(f, fulfillBody(t, nil))

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/fulfillment/degraded", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["total"])
}
