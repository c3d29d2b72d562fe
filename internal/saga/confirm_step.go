package saga

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/metrolink/fulfillment/internal/client"
)

// BookingConfirmStep moves a booking to confirmed once its payment is
// known-successful. A failure here is non-fatal to the saga: the customer
// has already been charged, so the orchestrator proceeds to ticket
// issuance and surfaces a warning instead of aborting.
type BookingConfirmStep struct {
	bookings client.BookingAPI
	logger   *zap.Logger
}

// NewBookingConfirmStep creates the confirm step
func NewBookingConfirmStep(bookings client.BookingAPI, logger *zap.Logger) *BookingConfirmStep {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingConfirmStep{bookings: bookings, logger: logger}
}

// Confirm confirms the booking against the booking collaborator
func (s *BookingConfirmStep) Confirm(ctx context.Context, bookingID, paymentID string) error {
	if _, err := s.bookings.Confirm(ctx, bookingID, paymentID); err != nil {
		return fmt.Errorf("confirm step: booking %s: %w", bookingID, err)
	}
	s.logger.Info("booking confirmed",
		zap.String("booking_id", bookingID),
		zap.String("payment_id", paymentID))
	return nil
}
