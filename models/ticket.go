package models

import (
	"time"

	"github.com/pocketbase/pocketbase/core"
)

type TicketStatus string

const (
	TicketValid     TicketStatus = "VALID"
	TicketCancelled TicketStatus = "CANCELLED"
)

type Ticket struct {
	ID          string       `json:"id"`
	EventID     string       `json:"event_id"`
	UserID      string       `json:"user_id"`
	TypeID      string       `json:"type_id"`
	QRCode      string       `json:"qr_code"`
	Status      TicketStatus `json:"status"`
	IsPurchased bool         `json:"is_purchased"`
	CreatedAt   time.Time    `json:"created_at"`
}

// TicketFromRecord maps a tickets collection record to the domain struct.
func TicketFromRecord(record *core.Record) *Ticket {
	return &Ticket{
		ID:          record.Id,
		EventID:     record.GetString("event_id"),
		UserID:      record.GetString("user_id"),
		TypeID:      record.GetString("type_id"),
		QRCode:      record.GetString("qr_code"),
		Status:      TicketStatus(record.GetString("status")),
		IsPurchased: record.GetBool("is_purchased"),
		CreatedAt:   record.GetDateTime("created").Time(),
	}
}

// TicketSummary is the display payload returned by the posted
// verification endpoint.
type TicketSummary struct {
	TicketID        string `json:"ticketId"`
	TransactionUUID string `json:"transaction_uuid"`
	Amount          string `json:"amount"`
	EventTitle      string `json:"eventTitle,omitempty"`
	TicketType      string `json:"ticketType,omitempty"`
	CustomerEmail   string `json:"customerEmail,omitempty"`
}
