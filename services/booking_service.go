package services

import (
	"context"
	"log/slog"

	"event-ticketing/internal/status"
	"event-ticketing/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BookingStore is the subset of the record store booking touches.
type BookingStore interface {
	EventExists(ctx context.Context, eventID string) bool
	FindEventTitle(ctx context.Context, eventID string) string
	FindTicketTypePrice(ctx context.Context, typeID string) (decimal.Decimal, error)
	CreateTicketWithPayment(ctx context.Context, t *models.Ticket, p *models.Payment) (*models.Ticket, *models.Payment, error)
	ListUserTickets(ctx context.Context, userID string) ([]*models.Ticket, error)
}

type BookingService struct {
	store BookingStore
}

func NewBookingService(store BookingStore) *BookingService {
	return &BookingService{store: store}
}

type BookTicketRequest struct {
	EventID string               `json:"event_id"`
	TypeID  string               `json:"ticket_type_id"`
	Method  models.PaymentMethod `json:"payment_method"`
}

type BookTicketResponse struct {
	Ticket  *models.Ticket  `json:"ticket"`
	Payment *models.Payment `json:"payment"`
}

// BookTicket creates a VALID ticket and its PENDING payment together. The
// payment is settled later by the gateway callback.
func (s *BookingService) BookTicket(ctx context.Context, userID string, req BookTicketRequest) (*BookTicketResponse, error) {
	if req.EventID == "" || req.TypeID == "" {
		return nil, status.ErrMissingData
	}

	method := req.Method
	if method == "" {
		method = models.MethodEsewa
	}
	if !method.Valid() {
		return nil, status.ErrMissingData
	}

	if !s.store.EventExists(ctx, req.EventID) {
		return nil, status.ErrEventNotFound
	}

	price, err := s.store.FindTicketTypePrice(ctx, req.TypeID)
	if err != nil {
		return nil, err
	}

	ticket, payment, err := s.store.CreateTicketWithPayment(ctx,
		&models.Ticket{
			EventID: req.EventID,
			UserID:  userID,
			TypeID:  req.TypeID,
			QRCode:  uuid.NewString(),
			Status:  models.TicketValid,
		},
		&models.Payment{
			UserID: userID,
			Amount: price,
			Method: method,
			Status: models.PaymentPending,
		},
	)
	if err != nil {
		return nil, err
	}

	slog.Info("ticket booked",
		"ticket_id", ticket.ID,
		"event_id", ticket.EventID,
		"payment_id", payment.ID,
	)

	return &BookTicketResponse{Ticket: ticket, Payment: payment}, nil
}

// BookedTicket is a ticket joined with its event title for listings.
type BookedTicket struct {
	*models.Ticket
	EventTitle string `json:"event_title"`
}

func (s *BookingService) ListBooked(ctx context.Context, userID string) ([]*BookedTicket, error) {
	tickets, err := s.store.ListUserTickets(ctx, userID)
	if err != nil {
		return nil, err
	}

	booked := make([]*BookedTicket, 0, len(tickets))
	for _, t := range tickets {
		booked = append(booked, &BookedTicket{
			Ticket:     t,
			EventTitle: s.store.FindEventTitle(ctx, t.EventID),
		})
	}
	return booked, nil
}
