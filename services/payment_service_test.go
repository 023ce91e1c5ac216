package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"event-ticketing/config"
	"event-ticketing/internal/gateway/esewa"
	"event-ticketing/internal/status"
	"event-ticketing/models"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key"

type MockPaymentStore struct {
	mock.Mock
}

func (m *MockPaymentStore) FindTicket(ctx context.Context, id string) (*models.Ticket, error) {
	args := m.Called(ctx, id)
	if t, ok := args.Get(0).(*models.Ticket); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPaymentStore) FindPayment(ctx context.Context, id string) (*models.Payment, error) {
	args := m.Called(ctx, id)
	if p, ok := args.Get(0).(*models.Payment); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPaymentStore) FindPaymentByTransactionUUID(ctx context.Context, transactionUUID string) (*models.Payment, error) {
	args := m.Called(ctx, transactionUUID)
	if p, ok := args.Get(0).(*models.Payment); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPaymentStore) UpsertPayment(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	args := m.Called(ctx, p)
	if saved, ok := args.Get(0).(*models.Payment); ok {
		return saved, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPaymentStore) SettlePayment(ctx context.Context, transactionUUID string, newStatus models.PaymentStatus, amount decimal.Decimal, paidAt time.Time) (bool, error) {
	args := m.Called(ctx, transactionUUID, newStatus, amount, paidAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentStore) MarkTicketPurchased(ctx context.Context, ticketID string) error {
	args := m.Called(ctx, ticketID)
	return args.Error(0)
}

func (m *MockPaymentStore) TicketSummary(ctx context.Context, p *models.Payment) (*models.TicketSummary, error) {
	args := m.Called(ctx, p)
	if s, ok := args.Get(0).(*models.TicketSummary); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPaymentStore) PendingPayments(ctx context.Context, limit int) ([]*models.Payment, error) {
	args := m.Called(ctx, limit)
	if p, ok := args.Get(0).([]*models.Payment); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) PaymentSucceeded(ctx context.Context, userID string, n *models.PaymentNotification) {
	m.Called(ctx, userID, n)
}

type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) CheckTransaction(ctx context.Context, totalAmount decimal.Decimal, transactionUUID string) (*esewa.TransactionStatus, error) {
	args := m.Called(ctx, totalAmount, transactionUUID)
	if tx, ok := args.Get(0).(*esewa.TransactionStatus); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

func setupTestPaymentService() (*PaymentService, *MockPaymentStore, *MockNotifier, *MockGatewayClient) {
	db, _ := redismock.NewClientMock()
	mockStore := &MockPaymentStore{}
	mockNotifier := &MockNotifier{}
	mockGateway := &MockGatewayClient{}

	cfg := &config.Config{
		FrontendBaseURL: "http://localhost:3000",
		PaymentTimeout:  10 * time.Minute,
		Esewa: config.EsewaConfig{
			SecretKey:   testSecret,
			ProductCode: "EPAYTEST",
			GatewayURL:  "https://rc-epay.esewa.com.np/api/epay/main/v2/form",
			SuccessURL:  "http://localhost:8090/api/v1/payment/esewa/success",
			FailureURL:  "http://localhost:8090/api/v1/payment/esewa/failure",
		},
	}

	service := NewPaymentService(db, mockStore, mockNotifier, mockGateway, cfg)
	return service, mockStore, mockNotifier, mockGateway
}

// callbackBlob builds a base64 callback payload signed with the test secret.
func callbackBlob(t *testing.T, values map[string]string, tamperSignature bool) string {
	t.Helper()

	fields := []string{"total_amount", "transaction_uuid", "product_code"}
	message, err := esewa.BuildMessage(fields, values)
	require.NoError(t, err)

	signature := esewa.Sign(testSecret, message)
	if tamperSignature {
		flipped := "X"
		if signature[0] == 'X' {
			flipped = "Y"
		}
		signature = flipped + signature[1:]
	}

	body := map[string]any{}
	for k, v := range values {
		body[k] = v
	}
	body["signed_field_names"] = strings.Join(fields, ",")
	body["signature"] = signature

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func pendingPayment(transactionUUID string) *models.Payment {
	return &models.Payment{
		ID:              "pay1",
		TicketID:        "t1",
		UserID:          "u1",
		Amount:          decimal.NewFromInt(500),
		Method:          models.MethodEsewa,
		Status:          models.PaymentPending,
		TransactionUUID: transactionUUID,
	}
}

func TestInitiate_Success(t *testing.T) {
	service, mockStore, _, _ := setupTestPaymentService()
	ctx := context.Background()

	saved := pendingPayment("")
	mockStore.On("FindTicket", ctx, "t1").Return(&models.Ticket{ID: "t1"}, nil)
	mockStore.On("UpsertPayment", ctx, mock.AnythingOfType("*models.Payment")).
		Run(func(args mock.Arguments) {
			saved.TransactionUUID = args.Get(1).(*models.Payment).TransactionUUID
		}).
		Return(saved, nil)

	resp, err := service.Initiate(ctx, InitiateRequest{
		Amount:   decimal.NewFromInt(500),
		TicketID: "t1",
		UserID:   "u1",
	})
	require.NoError(t, err)

	assert.Equal(t, "pay1", resp.PaymentID)
	assert.Equal(t, service.cfg.Esewa.GatewayURL, resp.GatewayURL)
	assert.Equal(t, "500", resp.Payload.TotalAmount)
	assert.Equal(t, esewa.SignedFieldNames, resp.Payload.SignedFieldNames)
	assert.True(t, strings.HasPrefix(resp.Payload.TransactionUUID, "t1__"))

	// The returned signature must verify against the canonical message.
	message, err := esewa.BuildMessage(
		strings.Split(esewa.SignedFieldNames, ","),
		map[string]string{
			"total_amount":     resp.Payload.TotalAmount,
			"transaction_uuid": resp.Payload.TransactionUUID,
			"product_code":     resp.Payload.ProductCode,
		},
	)
	require.NoError(t, err)
	assert.True(t, esewa.Verify(testSecret, message, resp.Payload.Signature))

	mockStore.AssertExpectations(t)
}

func TestInitiate_MissingInput(t *testing.T) {
	service, mockStore, _, _ := setupTestPaymentService()
	ctx := context.Background()

	_, err := service.Initiate(ctx, InitiateRequest{TicketID: "t1"})
	assert.ErrorIs(t, err, status.ErrMissingData)

	_, err = service.Initiate(ctx, InitiateRequest{Amount: decimal.NewFromInt(500), UserID: "u1"})
	assert.ErrorIs(t, err, status.ErrMissingData)

	mockStore.AssertNotCalled(t, "UpsertPayment", mock.Anything, mock.Anything)
}

func TestInitiate_TicketNotFound(t *testing.T) {
	service, mockStore, _, _ := setupTestPaymentService()
	ctx := context.Background()

	mockStore.On("FindTicket", ctx, "missing").Return(nil, status.ErrTicketNotFound)

	_, err := service.Initiate(ctx, InitiateRequest{
		Amount:   decimal.NewFromInt(500),
		TicketID: "missing",
		UserID:   "u1",
	})
	assert.ErrorIs(t, err, status.ErrTicketNotFound)
	mockStore.AssertNotCalled(t, "UpsertPayment", mock.Anything, mock.Anything)
}

func TestInitiate_RetryGetsFreshTransactionUUID(t *testing.T) {
	service, mockStore, _, _ := setupTestPaymentService()
	ctx := context.Background()

	mockStore.On("FindTicket", ctx, "t1").Return(&models.Ticket{ID: "t1"}, nil)

	var uuids []string
	mockStore.On("UpsertPayment", ctx, mock.AnythingOfType("*models.Payment")).
		Run(func(args mock.Arguments) {
			uuids = append(uuids, args.Get(1).(*models.Payment).TransactionUUID)
		}).
		Return(pendingPayment("ignored"), nil)

	for i := 0; i < 2; i++ {
		_, err := service.Initiate(ctx, InitiateRequest{
			Amount:   decimal.NewFromInt(500),
			TicketID: "t1",
			UserID:   "u1",
		})
		require.NoError(t, err)
	}

	require.Len(t, uuids, 2)
	assert.NotEqual(t, uuids[0], uuids[1])
}

func TestReconcileRedirect_Complete(t *testing.T) {
	service, mockStore, mockNotifier, _ := setupTestPaymentService()
	ctx := context.Background()

	blob := callbackBlob(t, map[string]string{
		"total_amount":     "500",
		"transaction_uuid": "t1__AB12CD",
		"product_code":     "EPAYTEST",
		"status":           "COMPLETE",
	}, false)

	mockStore.On("FindPaymentByTransactionUUID", ctx, "t1__AB12CD").
		Return(pendingPayment("t1__AB12CD"), nil)
	mockStore.On("SettlePayment", ctx, "t1__AB12CD", models.PaymentSuccess,
		mock.Anything, mock.Anything).Return(true, nil)
	mockStore.On("MarkTicketPurchased", ctx, "t1").Return(nil)
	mockNotifier.On("PaymentSucceeded", ctx, "u1",
		mock.AnythingOfType("*models.PaymentNotification")).Return()

	payment, err := service.ReconcileRedirect(ctx, blob)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentSuccess, payment.Status)
	assert.NotNil(t, payment.PaymentDate)
	mockStore.AssertExpectations(t)
	mockNotifier.AssertExpectations(t)
}

func TestReconcileRedirect_GatewayFailedStatus(t *testing.T) {
	service, mockStore, mockNotifier, _ := setupTestPaymentService()
	ctx := context.Background()

	blob := callbackBlob(t, map[string]string{
		"total_amount":     "500",
		"transaction_uuid": "t1__AB12CD",
		"product_code":     "EPAYTEST",
		"status":           "FAILED",
	}, false)

	mockStore.On("FindPaymentByTransactionUUID", ctx, "t1__AB12CD").
		Return(pendingPayment("t1__AB12CD"), nil)
	mockStore.On("SettlePayment", ctx, "t1__AB12CD", models.PaymentFailed,
		mock.Anything, mock.Anything).Return(true, nil)

	payment, err := service.ReconcileRedirect(ctx, blob)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentFailed, payment.Status)
	mockStore.AssertNotCalled(t, "MarkTicketPurchased", mock.Anything, mock.Anything)
	mockNotifier.AssertNotCalled(t, "PaymentSucceeded", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileRedirect_TamperedSignature(t *testing.T) {
	service, mockStore, _, _ := setupTestPaymentService()
	ctx := context.Background()

	blob := callbackBlob(t, map[string]string{
		"total_amount":     "500",
		"transaction_uuid": "t1__AB12CD",
		"product_code":     "EPAYTEST",
		"status":           "COMPLETE",
	}, true)

	_, err := service.ReconcileRedirect(ctx, blob)
	assert.ErrorIs(t, err, status.ErrInvalidSignature)

	// The payment must stay untouched.
	mockStore.AssertNotCalled(t, "FindPaymentByTransactionUUID", mock.Anything, mock.Anything)
	mockStore.AssertNotCalled(t, "SettlePayment",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileRedirect_MissingData(t *testing.T) {
	service, _, _, _ := setupTestPaymentService()

	_, err := service.ReconcileRedirect(context.Background(), "")
	assert.ErrorIs(t, err, status.ErrMissingData)
}

func TestReconcileRedirect_UnknownTransaction(t *testing.T) {
	service, mockStore, _, _ := setupTestPaymentService()
	ctx := context.Background()

	blob := callbackBlob(t, map[string]string{
		"total_amount":     "500",
		"transaction_uuid": "ghost__000000",
		"product_code":     "EPAYTEST",
		"status":           "COMPLETE",
	}, false)

	mockStore.On("FindPaymentByTransactionUUID", ctx, "ghost__000000").
		Return(nil, status.ErrPaymentNotFound)

	_, err := service.ReconcileRedirect(ctx, blob)
	assert.ErrorIs(t, err, status.ErrPaymentNotFound)
	mockStore.AssertNotCalled(t, "SettlePayment",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileRedirect_ReplayIsNoOp(t *testing.T) {
	service, mockStore, mockNotifier, _ := setupTestPaymentService()
	ctx := context.Background()

	blob := callbackBlob(t, map[string]string{
		"total_amount":     "500",
		"transaction_uuid": "t1__AB12CD",
		"product_code":     "EPAYTEST",
		"status":           "COMPLETE",
	}, false)

	settled := pendingPayment("t1__AB12CD")
	settled.Status = models.PaymentSuccess

	mockStore.On("FindPaymentByTransactionUUID", ctx, "t1__AB12CD").
		Return(settled, nil)

	payment, err := service.ReconcileRedirect(ctx, blob)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentSuccess, payment.Status)
	mockStore.AssertNotCalled(t, "SettlePayment",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockStore.AssertNotCalled(t, "MarkTicketPurchased", mock.Anything, mock.Anything)
	mockNotifier.AssertNotCalled(t, "PaymentSucceeded", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileRedirect_LostRaceIsNoOp(t *testing.T) {
	service, mockStore, mockNotifier, _ := setupTestPaymentService()
	ctx := context.Background()

	blob := callbackBlob(t, map[string]string{
		"total_amount":     "500",
		"transaction_uuid": "t1__AB12CD",
		"product_code":     "EPAYTEST",
		"status":           "COMPLETE",
	}, false)

	winner := pendingPayment("t1__AB12CD")
	winner.Status = models.PaymentSuccess

	// Both callbacks read PENDING; this one loses the conditional update.
	mockStore.On("FindPaymentByTransactionUUID", ctx, "t1__AB12CD").
		Return(pendingPayment("t1__AB12CD"), nil).Once()
	mockStore.On("SettlePayment", ctx, "t1__AB12CD", models.PaymentSuccess,
		mock.Anything, mock.Anything).Return(false, nil)
	mockStore.On("FindPaymentByTransactionUUID", ctx, "t1__AB12CD").
		Return(winner, nil).Once()

	payment, err := service.ReconcileRedirect(ctx, blob)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentSuccess, payment.Status)
	mockStore.AssertNotCalled(t, "MarkTicketPurchased", mock.Anything, mock.Anything)
	mockNotifier.AssertNotCalled(t, "PaymentSucceeded", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyPosted_ReturnsSummary(t *testing.T) {
	service, mockStore, mockNotifier, _ := setupTestPaymentService()
	ctx := context.Background()

	blob := callbackBlob(t, map[string]string{
		"total_amount":     "500",
		"transaction_uuid": "t1__AB12CD",
		"product_code":     "EPAYTEST",
		"status":           "COMPLETE",
	}, false)

	mockStore.On("FindPaymentByTransactionUUID", ctx, "t1__AB12CD").
		Return(pendingPayment("t1__AB12CD"), nil)
	mockStore.On("SettlePayment", ctx, "t1__AB12CD", models.PaymentSuccess,
		mock.Anything, mock.Anything).Return(true, nil)
	mockStore.On("MarkTicketPurchased", ctx, "t1").Return(nil)
	mockNotifier.On("PaymentSucceeded", ctx, "u1", mock.Anything).Return()
	mockStore.On("TicketSummary", ctx, mock.AnythingOfType("*models.Payment")).
		Return(&models.TicketSummary{
			TicketID:        "t1",
			TransactionUUID: "t1__AB12CD",
			Amount:          "500",
			EventTitle:      "Main Event",
			TicketType:      "VIP",
			CustomerEmail:   "u1@example.com",
		}, nil)

	summary, err := service.VerifyPosted(ctx, blob)
	require.NoError(t, err)

	assert.Equal(t, "t1", summary.TicketID)
	assert.Equal(t, "Main Event", summary.EventTitle)
	mockStore.AssertExpectations(t)
}

func TestCheckStatus_SessionHit(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	mockStore := &MockPaymentStore{}
	service := NewPaymentService(db, mockStore, &MockNotifier{}, &MockGatewayClient{}, &config.Config{})

	redisMock.ExpectHGetAll("payment:pay1").SetVal(map[string]string{
		"user_id": "u1",
		"status":  "SUCCESS",
	})

	got, err := service.CheckStatus(context.Background(), "pay1", "u1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, got)

	mockStore.AssertNotCalled(t, "FindPayment", mock.Anything, mock.Anything)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestCheckStatus_WrongUser(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	service := NewPaymentService(db, &MockPaymentStore{}, &MockNotifier{}, &MockGatewayClient{}, &config.Config{})

	redisMock.ExpectHGetAll("payment:pay1").SetVal(map[string]string{
		"user_id": "u1",
		"status":  "PENDING",
	})

	_, err := service.CheckStatus(context.Background(), "pay1", "intruder")
	assert.ErrorIs(t, err, status.ErrPaymentNotFound)
}

func TestCheckStatus_SessionExpiredFallsBackToStore(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	mockStore := &MockPaymentStore{}
	service := NewPaymentService(db, mockStore, &MockNotifier{}, &MockGatewayClient{}, &config.Config{})

	redisMock.ExpectHGetAll("payment:pay1").SetVal(map[string]string{})
	mockStore.On("FindPayment", mock.Anything, "pay1").
		Return(pendingPayment("t1__AB12CD"), nil)

	got, err := service.CheckStatus(context.Background(), "pay1", "u1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, got)
}

func TestRecheck_AlreadySettled(t *testing.T) {
	service, mockStore, _, mockGateway := setupTestPaymentService()
	ctx := context.Background()

	settled := pendingPayment("t1__AB12CD")
	settled.Status = models.PaymentFailed

	mockStore.On("FindPaymentByTransactionUUID", ctx, "t1__AB12CD").
		Return(settled, nil)

	payment, err := service.Recheck(ctx, "t1__AB12CD")
	assert.ErrorIs(t, err, status.ErrAlreadySettled)
	assert.Equal(t, models.PaymentFailed, payment.Status)
	mockGateway.AssertNotCalled(t, "CheckTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecheck_SettlesFromGatewayStatus(t *testing.T) {
	service, mockStore, mockNotifier, mockGateway := setupTestPaymentService()
	ctx := context.Background()

	pending := pendingPayment("t1__AB12CD")

	mockStore.On("FindPaymentByTransactionUUID", ctx, "t1__AB12CD").
		Return(pending, nil)
	mockGateway.On("CheckTransaction", ctx, pending.Amount, "t1__AB12CD").
		Return(&esewa.TransactionStatus{
			TransactionUUID: "t1__AB12CD",
			Status:          "COMPLETE",
			RefID:           "REF123",
		}, nil)
	mockStore.On("SettlePayment", ctx, "t1__AB12CD", models.PaymentSuccess,
		mock.Anything, mock.Anything).Return(true, nil)
	mockStore.On("MarkTicketPurchased", ctx, "t1").Return(nil)
	mockNotifier.On("PaymentSucceeded", ctx, "u1", mock.Anything).Return()

	payment, err := service.Recheck(ctx, "t1__AB12CD")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, payment.Status)
	mockStore.AssertExpectations(t)
}

func TestTicketIDFromTransactionUUID(t *testing.T) {
	assert.Equal(t, "t1", TicketIDFromTransactionUUID("t1__AB12CD"))
	assert.Equal(t, "t1", TicketIDFromTransactionUUID("t1__AB__12"))
	assert.Equal(t, "", TicketIDFromTransactionUUID("1748851494000"))
}
