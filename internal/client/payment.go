package client

import (
	"context"
	"net/http"
	"time"

	"github.com/metrolink/fulfillment/internal/domain"
)

// PaymentAPI is the payment collaborator contract the saga consumes.
// Both calls are idempotent-safe to retry with the same attempt id; the
// payment service owns duplicate-charge rejection per booking.
type PaymentAPI interface {
	Create(ctx context.Context, req *CreatePaymentRequest) (*domain.PaymentAttempt, error)
	Process(ctx context.Context, req *ProcessPaymentRequest) (*domain.PaymentAttempt, error)
}

// CreatePaymentRequest asks the payment service to create a payment record
type CreatePaymentRequest struct {
	PaymentID     string               `json:"payment_id"`
	BookingID     string               `json:"booking_id"`
	BookingNumber string               `json:"booking_number"`
	Amount        float64              `json:"amount"`
	Currency      string               `json:"currency"`
	Method        domain.PaymentMethod `json:"method"`
	CustomerEmail string               `json:"customer_email"`
	CustomerPhone string               `json:"customer_phone"`
	UPIID         string               `json:"upi_id,omitempty"`
	Notes         string               `json:"notes,omitempty"`
}

// ProcessPaymentRequest asks the payment service to confirm the charge
type ProcessPaymentRequest struct {
	PaymentID        string            `json:"payment_id"`
	GatewayPaymentID string            `json:"gateway_payment_id"`
	TransactionID    string            `json:"transaction_id"`
	GatewayResponse  map[string]string `json:"gateway_response,omitempty"`
}

// PaymentClient talks to the payment service over HTTP
type PaymentClient struct {
	baseClient
}

// NewPaymentClient creates a payment collaborator client
func NewPaymentClient(baseURL string, timeout time.Duration) *PaymentClient {
	return &PaymentClient{baseClient: newBaseClient("payment-service", baseURL, timeout)}
}

// Create creates a payment record for the booking
func (c *PaymentClient) Create(ctx context.Context, req *CreatePaymentRequest) (*domain.PaymentAttempt, error) {
	var attempt domain.PaymentAttempt
	if err := c.do(ctx, http.MethodPost, "/api/v1/payments", req, &attempt); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// Process submits the gateway reference and confirms the charge
func (c *PaymentClient) Process(ctx context.Context, req *ProcessPaymentRequest) (*domain.PaymentAttempt, error) {
	var attempt domain.PaymentAttempt
	if err := c.do(ctx, http.MethodPost, "/api/v1/payments/"+req.PaymentID+"/process", req, &attempt); err != nil {
		return nil, err
	}
	return &attempt, nil
}
