package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"event-ticketing/config"
	"event-ticketing/internal/gateway/esewa"
	"event-ticketing/internal/status"
	"event-ticketing/models"
	"event-ticketing/monitoring"
	"event-ticketing/utils"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// transactionUUIDDelimiter separates the ticket id from the random suffix in
// a transaction UUID.
const transactionUUIDDelimiter = "__"

// PaymentStore is the subset of the record store the payment flow touches.
type PaymentStore interface {
	FindTicket(ctx context.Context, id string) (*models.Ticket, error)
	FindPayment(ctx context.Context, id string) (*models.Payment, error)
	FindPaymentByTransactionUUID(ctx context.Context, transactionUUID string) (*models.Payment, error)
	UpsertPayment(ctx context.Context, p *models.Payment) (*models.Payment, error)
	SettlePayment(ctx context.Context, transactionUUID string, newStatus models.PaymentStatus, amount decimal.Decimal, paidAt time.Time) (bool, error)
	MarkTicketPurchased(ctx context.Context, ticketID string) error
	TicketSummary(ctx context.Context, p *models.Payment) (*models.TicketSummary, error)
	PendingPayments(ctx context.Context, limit int) ([]*models.Payment, error)
}

// GatewayClient re-checks a transaction's status against the gateway.
type GatewayClient interface {
	CheckTransaction(ctx context.Context, totalAmount decimal.Decimal, transactionUUID string) (*esewa.TransactionStatus, error)
}

type PaymentService struct {
	Redis    *redis.Client
	store    PaymentStore
	notifier Notifier
	gateway  GatewayClient
	cfg      *config.Config
}

func NewPaymentService(redisClient *redis.Client, store PaymentStore, notifier Notifier, gateway GatewayClient, cfg *config.Config) *PaymentService {
	return &PaymentService{
		Redis:    redisClient,
		store:    store,
		notifier: notifier,
		gateway:  gateway,
		cfg:      cfg,
	}
}

type InitiateRequest struct {
	Amount   decimal.Decimal      `json:"amount"`
	TicketID string               `json:"ticketId"`
	UserID   string               `json:"userId"`
	Method   models.PaymentMethod `json:"payment_method"`
}

type InitiateResponse struct {
	GatewayURL string            `json:"gatewayUrl"`
	PaymentID  string            `json:"paymentId"`
	Payload    esewa.FormPayload `json:"payload"`
}

// Initiate prepares the signed gateway form for a ticket and persists its
// PENDING payment, overwriting any previous attempt for the same ticket.
func (s *PaymentService) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	if req.TicketID == "" || req.UserID == "" || !req.Amount.IsPositive() {
		return nil, status.ErrMissingData
	}

	method := req.Method
	if method == "" {
		method = models.MethodEsewa
	}
	if method != models.MethodEsewa {
		return nil, fmt.Errorf("%w: unsupported gateway %q", status.ErrMissingData, method)
	}

	if _, err := s.store.FindTicket(ctx, req.TicketID); err != nil {
		return nil, err
	}

	suffix, err := utils.GenerateCode(6)
	if err != nil {
		return nil, fmt.Errorf("generate transaction uuid: %w", err)
	}
	transactionUUID := req.TicketID + transactionUUIDDelimiter + suffix

	totalAmount := req.Amount.String()
	message, err := esewa.BuildMessage(
		strings.Split(esewa.SignedFieldNames, ","),
		map[string]string{
			"total_amount":     totalAmount,
			"transaction_uuid": transactionUUID,
			"product_code":     s.cfg.Esewa.ProductCode,
		},
	)
	if err != nil {
		return nil, err
	}
	signature := esewa.Sign(s.cfg.Esewa.SecretKey, message)

	payment, err := s.store.UpsertPayment(ctx, &models.Payment{
		TicketID:        req.TicketID,
		UserID:          req.UserID,
		Amount:          req.Amount,
		Method:          method,
		TransactionUUID: transactionUUID,
		Signature:       signature,
	})
	if err != nil {
		return nil, err
	}

	s.cacheSession(ctx, payment)
	monitoring.TrackInitiation(string(method))

	slog.Info("payment initiated",
		"payment_id", payment.ID,
		"ticket_id", payment.TicketID,
		"transaction_uuid", transactionUUID,
	)

	return &InitiateResponse{
		GatewayURL: s.cfg.Esewa.GatewayURL,
		PaymentID:  payment.ID,
		Payload: esewa.FormPayload{
			Amount:                totalAmount,
			TaxAmount:             "0",
			TotalAmount:           totalAmount,
			TransactionUUID:       transactionUUID,
			ProductCode:           s.cfg.Esewa.ProductCode,
			ProductServiceCharge:  "0",
			ProductDeliveryCharge: "0",
			SuccessURL:            s.cfg.Esewa.SuccessURL,
			FailureURL:            s.cfg.Esewa.FailureURL,
			SignedFieldNames:      esewa.SignedFieldNames,
			Signature:             signature,
		},
	}, nil
}

// ReconcileRedirect handles the redirect-style callback: the base64 blob from
// the gateway's ?data= query parameter. It returns the payment in its final
// state; replays come back unchanged.
func (s *PaymentService) ReconcileRedirect(ctx context.Context, rawData string) (*models.Payment, error) {
	started := time.Now()
	defer func() { monitoring.TrackReconcileDuration(time.Since(started)) }()

	cb, err := s.verifiedCallback(rawData)
	if err != nil {
		return nil, err
	}

	payment, _, err := s.applyCallback(ctx, cb)
	return payment, err
}

// VerifyPosted handles the posted-verification callback shape and returns the
// display summary for the client.
func (s *PaymentService) VerifyPosted(ctx context.Context, rawData string) (*models.TicketSummary, error) {
	started := time.Now()
	defer func() { monitoring.TrackReconcileDuration(time.Since(started)) }()

	cb, err := s.verifiedCallback(rawData)
	if err != nil {
		return nil, err
	}

	payment, _, err := s.applyCallback(ctx, cb)
	if err != nil {
		return nil, err
	}

	return s.store.TicketSummary(ctx, payment)
}

func (s *PaymentService) verifiedCallback(rawData string) (*esewa.Callback, error) {
	cb, err := esewa.DecodeCallback(rawData)
	if err != nil {
		return nil, err
	}

	if err := cb.VerifySignature(s.cfg.Esewa.SecretKey); err != nil {
		monitoring.TrackSignatureFailure()
		slog.Warn("callback signature rejected", "transaction_uuid", cb.TransactionUUID)
		return nil, err
	}

	return cb, nil
}

// applyCallback is the single settle primitive behind both callback shapes.
// The bool result reports whether this call performed the transition.
func (s *PaymentService) applyCallback(ctx context.Context, cb *esewa.Callback) (*models.Payment, bool, error) {
	payment, err := s.store.FindPaymentByTransactionUUID(ctx, cb.TransactionUUID)
	if err != nil {
		return nil, false, err
	}

	if payment.Status.Terminal() {
		monitoring.TrackCallbackReplay()
		slog.Info("callback replay ignored",
			"transaction_uuid", cb.TransactionUUID,
			"status", payment.Status,
		)
		return payment, false, nil
	}

	amount, err := cb.Amount()
	if err != nil {
		amount = payment.Amount
	}

	return s.settle(ctx, payment, cb.Status, amount)
}

func (s *PaymentService) settle(ctx context.Context, payment *models.Payment, gatewayStatus string, amount decimal.Decimal) (*models.Payment, bool, error) {
	newStatus := models.PaymentFailed
	if gatewayStatus == esewa.StatusComplete {
		newStatus = models.PaymentSuccess
	}

	now := time.Now()
	applied, err := s.store.SettlePayment(ctx, payment.TransactionUUID, newStatus, amount, now)
	if err != nil {
		return nil, false, err
	}

	if !applied {
		// Lost the race against a concurrent callback. Whoever won already
		// performed the side effects.
		monitoring.TrackCallbackReplay()
		current, err := s.store.FindPaymentByTransactionUUID(ctx, payment.TransactionUUID)
		if err != nil {
			return nil, false, err
		}
		return current, false, nil
	}

	payment.Status = newStatus
	payment.Amount = amount
	payment.PaymentDate = &now

	if newStatus == models.PaymentSuccess {
		if err := s.store.MarkTicketPurchased(ctx, payment.TicketID); err != nil {
			slog.Error("mark ticket purchased", "ticket_id", payment.TicketID, "error", err)
		}

		s.notifier.PaymentSucceeded(ctx, payment.UserID, &models.PaymentNotification{
			PaymentID:       payment.ID,
			TicketID:        payment.TicketID,
			TransactionUUID: payment.TransactionUUID,
			Status:          string(newStatus),
			Timestamp:       now,
		})
	}

	s.updateSessionStatus(ctx, payment.ID, newStatus)
	monitoring.TrackSettlement(string(newStatus))

	slog.Info("payment settled",
		"payment_id", payment.ID,
		"transaction_uuid", payment.TransactionUUID,
		"status", newStatus,
	)

	return payment, true, nil
}

// CheckStatus reads a payment's status, preferring the Redis session over a
// store round trip. The caller must own the payment.
func (s *PaymentService) CheckStatus(ctx context.Context, paymentID, userID string) (models.PaymentStatus, error) {
	data, err := s.Redis.HGetAll(ctx, sessionKey(paymentID)).Result()
	if err == nil && len(data) > 0 {
		if data["user_id"] != userID {
			return "", status.ErrPaymentNotFound
		}
		return models.PaymentStatus(data["status"]), nil
	}

	// Session expired; fall back to the store.
	payment, err := s.store.FindPayment(ctx, paymentID)
	if err != nil {
		return "", err
	}
	if payment.UserID != userID {
		return "", status.ErrPaymentNotFound
	}

	return payment.Status, nil
}

// Recheck asks the gateway for the authoritative transaction status and
// settles a payment whose callback never arrived. Terminal payments are
// returned as-is.
func (s *PaymentService) Recheck(ctx context.Context, transactionUUID string) (*models.Payment, error) {
	payment, err := s.store.FindPaymentByTransactionUUID(ctx, transactionUUID)
	if err != nil {
		return nil, err
	}

	if payment.Status.Terminal() {
		return payment, status.ErrAlreadySettled
	}

	tx, err := s.gateway.CheckTransaction(ctx, payment.Amount, transactionUUID)
	if err != nil {
		return nil, fmt.Errorf("gateway status check: %w", err)
	}

	settled, _, err := s.settle(ctx, payment, tx.Status, payment.Amount)
	return settled, err
}

func (s *PaymentService) PendingPayments(ctx context.Context, limit int) ([]*models.Payment, error) {
	return s.store.PendingPayments(ctx, limit)
}

// TicketIDFromTransactionUUID recovers the ticket id embedded in a composite
// transaction UUID. Empty when the value has no delimiter.
func TicketIDFromTransactionUUID(transactionUUID string) string {
	if !strings.Contains(transactionUUID, transactionUUIDDelimiter) {
		return ""
	}
	return strings.SplitN(transactionUUID, transactionUUIDDelimiter, 2)[0]
}

func sessionKey(paymentID string) string {
	return fmt.Sprintf("payment:%s", paymentID)
}

func (s *PaymentService) cacheSession(ctx context.Context, payment *models.Payment) {
	key := sessionKey(payment.ID)

	sessionData := map[string]any{
		"payment_id":       payment.ID,
		"ticket_id":        payment.TicketID,
		"user_id":          payment.UserID,
		"amount":           payment.Amount.String(),
		"status":           string(payment.Status),
		"transaction_uuid": payment.TransactionUUID,
		"created_at":       time.Now().Unix(),
	}
	for k, v := range sessionData {
		s.Redis.HSet(ctx, key, k, v)
	}

	s.Redis.Expire(ctx, key, s.cfg.PaymentTimeout)
}

func (s *PaymentService) updateSessionStatus(ctx context.Context, paymentID string, newStatus models.PaymentStatus) {
	s.Redis.HSet(ctx, sessionKey(paymentID), "status", string(newStatus))
}
