package models

import (
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

// Terminal reports whether the status permits no further transitions.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentSuccess || s == PaymentFailed
}

type PaymentMethod string

const (
	MethodEsewa   PaymentMethod = "ESEWA"
	MethodKhalti  PaymentMethod = "KHALTI"
	MethodCard    PaymentMethod = "CARD"
	MethodFonepay PaymentMethod = "FONEPAY"
	MethodCash    PaymentMethod = "CASH"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodEsewa, MethodKhalti, MethodCard, MethodFonepay, MethodCash:
		return true
	}
	return false
}

type Payment struct {
	ID              string          `json:"payment_id"`
	TicketID        string          `json:"ticket_id"`
	UserID          string          `json:"user_id"`
	Amount          decimal.Decimal `json:"amount"`
	Method          PaymentMethod   `json:"payment_method"`
	Status          PaymentStatus   `json:"payment_status"`
	TransactionUUID string          `json:"transaction_uuid"`
	Signature       string          `json:"signature"`
	PaymentDate     *time.Time      `json:"payment_date,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// PaymentFromRecord maps a payments collection record to the domain struct.
func PaymentFromRecord(record *core.Record) *Payment {
	p := &Payment{
		ID:              record.Id,
		TicketID:        record.GetString("ticket_id"),
		UserID:          record.GetString("user_id"),
		Amount:          decimal.NewFromFloat(record.GetFloat("amount")),
		Method:          PaymentMethod(record.GetString("payment_method")),
		Status:          PaymentStatus(record.GetString("payment_status")),
		TransactionUUID: record.GetString("transaction_uuid"),
		Signature:       record.GetString("signature"),
		CreatedAt:       record.GetDateTime("created").Time(),
	}

	if d := record.GetDateTime("payment_date"); !d.IsZero() {
		t := d.Time()
		p.PaymentDate = &t
	}

	return p
}

type PaymentNotification struct {
	PaymentID       string    `json:"payment_id"`
	TicketID        string    `json:"ticket_id"`
	TransactionUUID string    `json:"transaction_uuid"`
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
}
