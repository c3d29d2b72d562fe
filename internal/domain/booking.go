package domain

import (
	"errors"
	"time"
)

// BookingStatus represents the lifecycle status of a booking
type BookingStatus string

const (
	BookingStatusPending        BookingStatus = "pending"
	BookingStatusPaymentPending BookingStatus = "payment_pending"
	BookingStatusConfirmed      BookingStatus = "confirmed"
	BookingStatusFailed         BookingStatus = "failed"
	BookingStatusCancelled      BookingStatus = "cancelled"
)

// PassengerType categorizes a passenger for fare purposes
type PassengerType string

const (
	PassengerTypeAdult    PassengerType = "adult"
	PassengerTypeChild    PassengerType = "child"
	PassengerTypeSenior   PassengerType = "senior"
	PassengerTypeStudent  PassengerType = "student"
	PassengerTypeDisabled PassengerType = "disabled"
)

// Passenger is immutable once attached to a booking
type Passenger struct {
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Age       int           `json:"age,omitempty"`
	Type      PassengerType `json:"type"`
	Fare      float64       `json:"fare"`
}

// FullName returns the passenger's display name
func (p *Passenger) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Booking represents a booking created by the upstream booking flow.
// The fulfillment saga only moves it from pending/payment_pending to
// confirmed; it never mutates a confirmed booking.
type Booking struct {
	ID            string        `json:"id"`
	BookingNumber string        `json:"booking_number"`
	RouteID       string        `json:"route_id"`
	Passengers    []Passenger   `json:"passengers"`
	ContactEmail  string        `json:"contact_email"`
	ContactPhone  string        `json:"contact_phone"`
	TotalAmount   float64       `json:"total_amount"`
	Currency      string        `json:"currency"`
	Status        BookingStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// CanFulfill reports whether the booking is in a state the saga may act on
func (b *Booking) CanFulfill() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusPaymentPending
}

// Validate checks the booking has everything the saga needs
func (b *Booking) Validate() error {
	if b.ID == "" {
		return errors.New("booking id is required")
	}
	if len(b.Passengers) == 0 {
		return errors.New("booking has no passengers")
	}
	if b.TotalAmount <= 0 {
		return errors.New("booking amount must be positive")
	}
	return nil
}
