package client

import (
	"context"
	"net/http"
	"time"

	"github.com/metrolink/fulfillment/internal/domain"
)

// TicketAPI is the ticketing collaborator contract; Create is called once
// per passenger.
type TicketAPI interface {
	Create(ctx context.Context, req *CreateTicketRequest) (*domain.Ticket, error)
}

// CreateTicketRequest asks the ticket service to issue one ticket
type CreateTicketRequest struct {
	BookingID      string         `json:"booking_id"`
	BookingNumber  string         `json:"booking_number"`
	PaymentID      string         `json:"payment_id"`
	PassengerName  string         `json:"passenger_name"`
	PassengerType  string         `json:"passenger_type"`
	PassengerPhone string         `json:"passenger_phone,omitempty"`
	PassengerEmail string         `json:"passenger_email,omitempty"`
	SourceStation  domain.Station `json:"source_station"`
	DestStation    domain.Station `json:"destination_station"`
	RouteID        string         `json:"route_id"`
	RouteName      string         `json:"route_name,omitempty"`
	RouteCode      string         `json:"route_code,omitempty"`
	TransportMode  string         `json:"transport_mode,omitempty"`
	Fare           float64        `json:"fare"`
	Currency       string         `json:"currency"`
	ValidFrom      time.Time      `json:"valid_from"`
	ValidUntil     time.Time      `json:"valid_until"`
	MaxUsageCount  int            `json:"max_usage_count"`
	AllowsTransfer bool           `json:"allows_transfer"`
	MaxTransfers   int            `json:"max_transfers"`
}

// TicketClient talks to the ticket service over HTTP
type TicketClient struct {
	baseClient
}

// NewTicketClient creates a ticketing collaborator client
func NewTicketClient(baseURL string, timeout time.Duration) *TicketClient {
	return &TicketClient{baseClient: newBaseClient("ticket-service", baseURL, timeout)}
}

// Create issues one ticket
func (c *TicketClient) Create(ctx context.Context, req *CreateTicketRequest) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := c.do(ctx, http.MethodPost, "/api/v1/tickets", req, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}
