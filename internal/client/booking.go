package client

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/metrolink/fulfillment/internal/domain"
)

// BookingAPI is the booking collaborator contract the saga consumes
type BookingAPI interface {
	Get(ctx context.Context, bookingID string) (*domain.Booking, error)
	Confirm(ctx context.Context, bookingID, paymentID string) (*domain.Booking, error)
}

// confirmBookingRequest carries the payment reference to the booking service
type confirmBookingRequest struct {
	PaymentID string `json:"payment_id"`
}

// BookingClient talks to the booking service over HTTP
type BookingClient struct {
	baseClient
}

// NewBookingClient creates a booking collaborator client
func NewBookingClient(baseURL string, timeout time.Duration) *BookingClient {
	return &BookingClient{baseClient: newBaseClient("booking-service", baseURL, timeout)}
}

// Get loads a booking by id
func (c *BookingClient) Get(ctx context.Context, bookingID string) (*domain.Booking, error) {
	var booking domain.Booking
	if err := c.do(ctx, http.MethodGet, "/api/v1/bookings/"+bookingID, nil, &booking); err != nil {
		if strings.Contains(err.Error(), "NOT_FOUND") {
			return nil, domain.ErrBookingNotFound
		}
		return nil, err
	}
	return &booking, nil
}

// Confirm moves the booking to confirmed once its payment is known-successful
func (c *BookingClient) Confirm(ctx context.Context, bookingID, paymentID string) (*domain.Booking, error) {
	var booking domain.Booking
	req := &confirmBookingRequest{PaymentID: paymentID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/bookings/"+bookingID+"/confirm", req, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}
