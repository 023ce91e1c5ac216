package status

import "errors"

var (
	ErrMissingData      = errors.New("payment: missing callback data")
	ErrInvalidSignature = errors.New("payment: invalid signature")
	ErrTicketNotFound   = errors.New("ticket: ticket not found")
	ErrPaymentNotFound  = errors.New("payment: payment not found")
	ErrAlreadySettled   = errors.New("payment: already in a terminal state")
	ErrEventNotFound    = errors.New("event: event not found")
	ErrTypeNotFound     = errors.New("ticket type: ticket type not found")
)
