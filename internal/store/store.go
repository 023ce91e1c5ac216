// Package store is the persistence layer over the PocketBase collections
// (payments, tickets, events, ticket_types, users).
package store

import (
	"context"
	"fmt"
	"time"

	"event-ticketing/internal/status"
	"event-ticketing/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"
)

type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

func (s *Store) FindTicket(_ context.Context, id string) (*models.Ticket, error) {
	record, err := s.app.FindRecordById("tickets", id)
	if err != nil {
		return nil, status.ErrTicketNotFound
	}
	return models.TicketFromRecord(record), nil
}

func (s *Store) FindPayment(_ context.Context, id string) (*models.Payment, error) {
	record, err := s.app.FindRecordById("payments", id)
	if err != nil {
		return nil, status.ErrPaymentNotFound
	}
	return models.PaymentFromRecord(record), nil
}

func (s *Store) FindPaymentByTransactionUUID(_ context.Context, transactionUUID string) (*models.Payment, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"payments",
		"transaction_uuid = {:uuid}",
		dbx.Params{"uuid": transactionUUID},
	)
	if err != nil {
		return nil, status.ErrPaymentNotFound
	}
	return models.PaymentFromRecord(record), nil
}

// UpsertPayment creates the Payment for a ticket, or overwrites the existing
// one back to PENDING with fresh amount/method/uuid/signature. The unique
// index on ticket_id guarantees at most one row per ticket.
func (s *Store) UpsertPayment(_ context.Context, p *models.Payment) (*models.Payment, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"payments",
		"ticket_id = {:ticketId}",
		dbx.Params{"ticketId": p.TicketID},
	)
	if err != nil {
		collection, err := s.app.FindCollectionByNameOrId("payments")
		if err != nil {
			return nil, fmt.Errorf("store: payments collection: %w", err)
		}
		record = core.NewRecord(collection)
		record.Set("ticket_id", p.TicketID)
		record.Set("user_id", p.UserID)
	}

	record.Set("amount", p.Amount.InexactFloat64())
	record.Set("payment_method", string(p.Method))
	record.Set("payment_status", string(models.PaymentPending))
	record.Set("transaction_uuid", p.TransactionUUID)
	record.Set("signature", p.Signature)

	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("store: save payment: %w", err)
	}

	return models.PaymentFromRecord(record), nil
}

// SettlePayment applies the one permitted transition PENDING -> terminal as a
// single conditional update. It reports false when no row changed, which
// means the payment was already terminal (a replayed callback) and no side
// effects may be re-run by the caller.
func (s *Store) SettlePayment(ctx context.Context, transactionUUID string, newStatus models.PaymentStatus, amount decimal.Decimal, paidAt time.Time) (bool, error) {
	if !newStatus.Terminal() {
		return false, fmt.Errorf("store: %q is not a terminal payment status", newStatus)
	}

	result, err := s.app.NonconcurrentDB().NewQuery(
		`UPDATE payments
		 SET payment_status = {:status}, amount = {:amount}, payment_date = {:paidAt}
		 WHERE transaction_uuid = {:uuid} AND payment_status = {:pending}`,
	).Bind(dbx.Params{
		"status":  string(newStatus),
		"amount":  amount.InexactFloat64(),
		"paidAt":  paidAt.UTC().Format(types.DefaultDateLayout),
		"uuid":    transactionUUID,
		"pending": string(models.PaymentPending),
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("store: settle payment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: settle payment rows: %w", err)
	}

	return affected == 1, nil
}

func (s *Store) MarkTicketPurchased(_ context.Context, ticketID string) error {
	record, err := s.app.FindRecordById("tickets", ticketID)
	if err != nil {
		return status.ErrTicketNotFound
	}

	record.Set("is_purchased", true)

	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("store: mark ticket purchased: %w", err)
	}
	return nil
}

// CreateTicketWithPayment books a ticket and its PENDING payment in one
// transaction so a crash never leaves a ticket without a payment row.
func (s *Store) CreateTicketWithPayment(_ context.Context, t *models.Ticket, p *models.Payment) (*models.Ticket, *models.Payment, error) {
	var ticket *models.Ticket
	var payment *models.Payment

	err := s.app.RunInTransaction(func(txApp core.App) error {
		tickets, err := txApp.FindCollectionByNameOrId("tickets")
		if err != nil {
			return fmt.Errorf("tickets collection: %w", err)
		}

		ticketRecord := core.NewRecord(tickets)
		ticketRecord.Set("event_id", t.EventID)
		ticketRecord.Set("user_id", t.UserID)
		ticketRecord.Set("type_id", t.TypeID)
		ticketRecord.Set("qr_code", t.QRCode)
		ticketRecord.Set("status", string(models.TicketValid))
		ticketRecord.Set("is_purchased", false)

		if err := txApp.Save(ticketRecord); err != nil {
			return fmt.Errorf("save ticket: %w", err)
		}

		payments, err := txApp.FindCollectionByNameOrId("payments")
		if err != nil {
			return fmt.Errorf("payments collection: %w", err)
		}

		paymentRecord := core.NewRecord(payments)
		paymentRecord.Set("ticket_id", ticketRecord.Id)
		paymentRecord.Set("user_id", p.UserID)
		paymentRecord.Set("amount", p.Amount.InexactFloat64())
		paymentRecord.Set("payment_method", string(p.Method))
		paymentRecord.Set("payment_status", string(models.PaymentPending))

		if err := txApp.Save(paymentRecord); err != nil {
			return fmt.Errorf("save payment: %w", err)
		}

		ticket = models.TicketFromRecord(ticketRecord)
		payment = models.PaymentFromRecord(paymentRecord)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("store: book ticket: %w", err)
	}

	return ticket, payment, nil
}

func (s *Store) FindEventTitle(_ context.Context, eventID string) string {
	record, err := s.app.FindRecordById("events", eventID)
	if err != nil {
		return ""
	}
	return record.GetString("title")
}

func (s *Store) EventExists(_ context.Context, eventID string) bool {
	_, err := s.app.FindRecordById("events", eventID)
	return err == nil
}

func (s *Store) FindTicketTypePrice(_ context.Context, typeID string) (decimal.Decimal, error) {
	record, err := s.app.FindRecordById("ticket_types", typeID)
	if err != nil {
		return decimal.Zero, status.ErrTypeNotFound
	}
	return decimal.NewFromFloat(record.GetFloat("price")), nil
}

// TicketSummary assembles the client display payload for a settled payment.
func (s *Store) TicketSummary(_ context.Context, p *models.Payment) (*models.TicketSummary, error) {
	summary := &models.TicketSummary{
		TicketID:        p.TicketID,
		TransactionUUID: p.TransactionUUID,
		Amount:          p.Amount.String(),
	}

	ticket, err := s.app.FindRecordById("tickets", p.TicketID)
	if err != nil {
		return summary, nil
	}

	if event, err := s.app.FindRecordById("events", ticket.GetString("event_id")); err == nil {
		summary.EventTitle = event.GetString("title")
	}
	if typ, err := s.app.FindRecordById("ticket_types", ticket.GetString("type_id")); err == nil {
		summary.TicketType = typ.GetString("name")
	}
	if user, err := s.app.FindRecordById("users", ticket.GetString("user_id")); err == nil {
		summary.CustomerEmail = user.Email()
	}

	return summary, nil
}

func (s *Store) ListUserTickets(_ context.Context, userID string) ([]*models.Ticket, error) {
	records, err := s.app.FindRecordsByFilter(
		"tickets",
		"user_id = {:userId}",
		"-created",
		50,
		0,
		dbx.Params{"userId": userID},
	)
	if err != nil {
		return nil, fmt.Errorf("store: list tickets: %w", err)
	}

	tickets := make([]*models.Ticket, 0, len(records))
	for _, record := range records {
		tickets = append(tickets, models.TicketFromRecord(record))
	}
	return tickets, nil
}

func (s *Store) PendingPayments(_ context.Context, limit int) ([]*models.Payment, error) {
	if limit <= 0 {
		limit = 100
	}

	records, err := s.app.FindRecordsByFilter(
		"payments",
		"payment_status = {:pending}",
		"-created",
		limit,
		0,
		dbx.Params{"pending": string(models.PaymentPending)},
	)
	if err != nil {
		return nil, fmt.Errorf("store: list pending payments: %w", err)
	}

	payments := make([]*models.Payment, 0, len(records))
	for _, record := range records {
		payments = append(payments, models.PaymentFromRecord(record))
	}
	return payments, nil
}
