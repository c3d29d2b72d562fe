package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the status of a payment attempt
type PaymentStatus string

const (
	PaymentStatusCreated    PaymentStatus = "created"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// PaymentMethod represents the method chosen by the customer
type PaymentMethod string

const (
	PaymentMethodUPI        PaymentMethod = "upi"
	PaymentMethodCard       PaymentMethod = "card"
	PaymentMethodNetBanking PaymentMethod = "netbanking"
	PaymentMethodWallet     PaymentMethod = "wallet"
)

// Valid reports whether the method is one the saga knows how to process
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodUPI, PaymentMethodCard, PaymentMethodNetBanking, PaymentMethodWallet:
		return true
	}
	return false
}

// RequiresApproval reports whether the method needs an external,
// human-mediated approval step before the payment can be processed.
func (m PaymentMethod) RequiresApproval() bool {
	return m == PaymentMethodUPI
}

// PaymentAttempt is one attempt to charge a booking. The single-flight
// guard guarantees at most one attempt is created per saga run; a new run
// always gets a fresh attempt id.
type PaymentAttempt struct {
	ID               string        `json:"id"`
	BookingID        string        `json:"booking_id"`
	BookingNumber    string        `json:"booking_number"`
	Amount           float64       `json:"amount"`
	Currency         string        `json:"currency"`
	Method           PaymentMethod `json:"method"`
	Status           PaymentStatus `json:"status"`
	GatewayPaymentID string        `json:"gateway_payment_id,omitempty"`
	TransactionID    string        `json:"transaction_id,omitempty"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	ProcessedAt      *time.Time    `json:"processed_at,omitempty"`
}

// NewPaymentAttempt creates a payment attempt in the created state
func NewPaymentAttempt(booking *Booking, method PaymentMethod) (*PaymentAttempt, error) {
	if booking == nil || booking.ID == "" {
		return nil, errors.New("booking is required")
	}
	if booking.TotalAmount <= 0 {
		return nil, errors.New("amount must be positive")
	}
	currency := booking.Currency
	if currency == "" {
		currency = "INR"
	}
	return &PaymentAttempt{
		ID:            uuid.New().String(),
		BookingID:     booking.ID,
		BookingNumber: booking.BookingNumber,
		Amount:        booking.TotalAmount,
		Currency:      currency,
		Method:        method,
		Status:        PaymentStatusCreated,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// MarkProcessing moves the attempt from created to processing
func (p *PaymentAttempt) MarkProcessing() error {
	if p.Status != PaymentStatusCreated {
		return errors.New("payment must be created to start processing")
	}
	p.Status = PaymentStatusProcessing
	return nil
}

// Complete marks the attempt as succeeded with the gateway reference
func (p *PaymentAttempt) Complete(gatewayPaymentID, transactionID string) error {
	if p.Status != PaymentStatusCreated && p.Status != PaymentStatusProcessing {
		return errors.New("payment must be created or processing to complete")
	}
	now := time.Now().UTC()
	p.Status = PaymentStatusSucceeded
	p.GatewayPaymentID = gatewayPaymentID
	p.TransactionID = transactionID
	p.ProcessedAt = &now
	return nil
}

// Fail marks the attempt as failed
func (p *PaymentAttempt) Fail(message string) error {
	if p.Status == PaymentStatusSucceeded || p.Status == PaymentStatusFailed {
		return errors.New("payment is already final")
	}
	now := time.Now().UTC()
	p.Status = PaymentStatusFailed
	p.ErrorMessage = message
	p.ProcessedAt = &now
	return nil
}

// IsSuccessful reports whether the attempt succeeded
func (p *PaymentAttempt) IsSuccessful() bool {
	return p.Status == PaymentStatusSucceeded
}
