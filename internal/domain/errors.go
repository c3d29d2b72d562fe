package domain

import "errors"

var (
	// ErrBookingNotFound is returned when the booking collaborator has no such booking
	ErrBookingNotFound = errors.New("booking not found")
	// ErrBookingNotFulfillable is returned when the booking is not in a fulfillable state
	ErrBookingNotFulfillable = errors.New("booking cannot be fulfilled in its current state")
	// ErrPaymentCreateFailed is returned when the payment collaborator rejects creation
	ErrPaymentCreateFailed = errors.New("payment creation failed")
	// ErrPaymentProcessFailed is returned when processing fails or approval was not granted
	ErrPaymentProcessFailed = errors.New("payment processing failed")
	// ErrApprovalNotGranted is returned when the approval flow ended without approval
	ErrApprovalNotGranted = errors.New("payment approval was not granted")
)
