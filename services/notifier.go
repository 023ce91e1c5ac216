package services

import (
	"context"
	"log/slog"
	"time"

	"event-ticketing/models"

	pubnub "github.com/pubnub/go"
)

// Notifier pushes payment results to the paying user's client.
type Notifier interface {
	PaymentSucceeded(ctx context.Context, userID string, n *models.PaymentNotification)
}

type PubNubNotifier struct {
	pn *pubnub.PubNub
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return &PubNubNotifier{pn: pn}
}

func (s *PubNubNotifier) PaymentSucceeded(_ context.Context, userID string, n *models.PaymentNotification) {
	if s.pn == nil {
		return
	}

	channel := "user-" + userID
	_, _, err := s.pn.Publish().
		Channel(channel).
		Message(map[string]any{
			"type":             "payment_success",
			"payment_id":       n.PaymentID,
			"ticket_id":        n.TicketID,
			"transaction_uuid": n.TransactionUUID,
			"status":           n.Status,
			"timestamp":        n.Timestamp.Format(time.RFC3339),
		}).
		Execute()
	if err != nil {
		slog.Error("publish payment notification", "channel", channel, "error", err)
	}
}
