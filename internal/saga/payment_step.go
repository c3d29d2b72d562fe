package saga

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/metrolink/fulfillment/internal/approval"
	"github.com/metrolink/fulfillment/internal/client"
	"github.com/metrolink/fulfillment/internal/domain"
)

// PaymentStep creates a payment record and, once approval is known-good,
// marks it processed. It performs no retries of its own: both collaborator
// calls are idempotent-safe under the same attempt id, and retrying is an
// orchestration-level decision.
type PaymentStep struct {
	payments client.PaymentAPI
	logger   *zap.Logger
}

// NewPaymentStep creates the payment step
func NewPaymentStep(payments client.PaymentAPI, logger *zap.Logger) *PaymentStep {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentStep{payments: payments, logger: logger}
}

// CreateAndProcess runs both payment calls for one saga run. Creation
// failure is terminal (no partial payment exists to reconcile). The
// process call is only made for an approved outcome; any other outcome
// short-circuits to ErrPaymentProcessFailed without touching the
// collaborator.
func (s *PaymentStep) CreateAndProcess(
	ctx context.Context,
	booking *domain.Booking,
	method domain.PaymentMethod,
	upiID string,
	outcome approval.Outcome,
) (*domain.PaymentAttempt, error) {
	attempt, err := domain.NewPaymentAttempt(booking, method)
	if err != nil {
		return nil, fmt.Errorf("payment step: booking %s: %w: %v", booking.ID, domain.ErrPaymentCreateFailed, err)
	}

	createReq := &client.CreatePaymentRequest{
		PaymentID:     attempt.ID,
		BookingID:     booking.ID,
		BookingNumber: booking.BookingNumber,
		Amount:        booking.TotalAmount,
		Currency:      attempt.Currency,
		Method:        method,
		CustomerEmail: booking.ContactEmail,
		CustomerPhone: booking.ContactPhone,
		UPIID:         upiID,
		Notes:         fmt.Sprintf("Payment for booking %s", booking.BookingNumber),
	}

	created, err := s.payments.Create(ctx, createReq)
	if err != nil {
		return nil, fmt.Errorf("payment step: booking %s: %w: %v", booking.ID, domain.ErrPaymentCreateFailed, err)
	}
	s.logger.Info("payment created",
		zap.String("booking_id", booking.ID),
		zap.String("payment_id", created.ID),
		zap.String("method", string(method)))

	if !outcome.Approved() {
		// The collaborator record stays in its created state; a fresh
		// attempt id is used if the customer retries the whole saga.
		return created, fmt.Errorf("payment step: booking %s: %w: %v (%s)",
			booking.ID, domain.ErrPaymentProcessFailed, domain.ErrApprovalNotGranted, outcome.Reason)
	}

	gatewayPaymentID, transactionID := gatewayReferences(outcome.TransactionRef)
	processReq := &client.ProcessPaymentRequest{
		PaymentID:        created.ID,
		GatewayPaymentID: gatewayPaymentID,
		TransactionID:    transactionID,
		GatewayResponse: map[string]string{
			"status":    "success",
			"message":   "Payment completed successfully",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}

	processed, err := s.payments.Process(ctx, processReq)
	if err != nil {
		return created, fmt.Errorf("payment step: booking %s: %w: %v", booking.ID, domain.ErrPaymentProcessFailed, err)
	}
	if !processed.IsSuccessful() {
		return processed, fmt.Errorf("payment step: booking %s: %w: gateway reported %s",
			booking.ID, domain.ErrPaymentProcessFailed, processed.Status)
	}

	s.logger.Info("payment processed",
		zap.String("booking_id", booking.ID),
		zap.String("payment_id", processed.ID),
		zap.String("transaction_id", transactionID))
	return processed, nil
}

// gatewayReferences returns the gateway payment id and transaction id,
// synthesizing both when the approval flow supplied no reference.
func gatewayReferences(transactionRef string) (string, string) {
	if transactionRef != "" {
		return transactionRef, transactionRef
	}
	now := time.Now().UnixMilli()
	return fmt.Sprintf("gateway_%d", now), fmt.Sprintf("txn_%d_%04d", now, rand.Intn(10000))
}
