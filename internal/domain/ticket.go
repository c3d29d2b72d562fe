package domain

import "time"

// TicketStatus represents the lifecycle status of an issued ticket
type TicketStatus string

const (
	TicketStatusGenerated TicketStatus = "generated"
	TicketStatusActive    TicketStatus = "active"
	TicketStatusUsed      TicketStatus = "used"
	TicketStatusExpired   TicketStatus = "expired"
	TicketStatusCancelled TicketStatus = "cancelled"
)

// Ticket is one issued ticket. Exactly one ticket is requested per
// passenger; a booking may legitimately end up with fewer tickets than
// passengers when some issuance calls fail, and that shortfall is always
// surfaced, never hidden.
type Ticket struct {
	ID             string       `json:"id"`
	TicketNumber   string       `json:"ticket_number"`
	BookingID      string       `json:"booking_id"`
	PaymentID      string       `json:"payment_id"`
	Status         TicketStatus `json:"status"`
	PassengerName  string       `json:"passenger_name"`
	PassengerType  string       `json:"passenger_type,omitempty"`
	SourceStation  Station      `json:"source_station"`
	DestStation    Station      `json:"destination_station"`
	RouteID        string       `json:"route_id"`
	Fare           float64      `json:"fare"`
	Currency       string       `json:"currency"`
	ValidFrom      time.Time    `json:"valid_from"`
	ValidUntil     time.Time    `json:"valid_until"`
	MaxUsageCount  int          `json:"max_usage_count"`
	UsageCount     int          `json:"usage_count"`
	AllowsTransfer bool         `json:"allows_transfer"`
	MaxTransfers   int          `json:"max_transfers"`
	CreatedAt      time.Time    `json:"created_at"`
}

// IsValidAt reports whether the ticket's validity window [ValidFrom,
// ValidUntil) covers the given instant.
func (t *Ticket) IsValidAt(at time.Time) bool {
	return !at.Before(t.ValidFrom) && at.Before(t.ValidUntil)
}
