package esewa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"event-ticketing/utils"

	"github.com/shopspring/decimal"
)

type ClientConfig struct {
	// StatusURL is the transaction status API endpoint.
	StatusURL string

	// ProductCode is the merchant code sent with every status query.
	ProductCode string

	Timeout time.Duration
}

// Client queries the gateway's transaction status API. Used by the admin
// re-check flow when a callback was lost or looks suspicious.
type Client struct {
	statusURL   string
	productCode string

	hc *http.Client
	cb *utils.CircuitBreaker
}

func NewClient(cfg *ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		statusURL:   cfg.StatusURL,
		productCode: cfg.ProductCode,
		hc:          &http.Client{Timeout: timeout},
		cb:          utils.NewCircuitBreaker("esewa-status"),
	}
}

// TransactionStatus is the gateway's status API reply.
type TransactionStatus struct {
	ProductCode     string          `json:"product_code"`
	TransactionUUID string          `json:"transaction_uuid"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          string          `json:"status"`
	RefID           string          `json:"ref_id"`
}

// CheckTransaction asks the gateway for the authoritative status of a
// transaction. No signing material is involved: the status API is keyed by
// product code, amount and transaction UUID.
func (c *Client) CheckTransaction(ctx context.Context, totalAmount decimal.Decimal, transactionUUID string) (*TransactionStatus, error) {
	result, err := c.cb.Execute(ctx, func() (any, error) {
		return c.checkTransaction(ctx, totalAmount, transactionUUID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*TransactionStatus), nil
}

func (c *Client) checkTransaction(ctx context.Context, totalAmount decimal.Decimal, transactionUUID string) (*TransactionStatus, error) {
	base, err := url.Parse(c.statusURL)
	if err != nil {
		return nil, fmt.Errorf("checkTransaction: parse status url: %w", err)
	}

	q := base.Query()
	q.Set("product_code", c.productCode)
	q.Set("total_amount", totalAmount.String())
	q.Set("transaction_uuid", transactionUUID)
	base.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("checkTransaction: http.NewReq: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checkTransaction: http.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("checkTransaction: unexpected status code %d", resp.StatusCode)
	}

	var reply TransactionStatus
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("checkTransaction: json.Decode: %w", err)
	}
	if reply.TransactionUUID != transactionUUID {
		return nil, fmt.Errorf("checkTransaction: reply for transaction %q, want %q", reply.TransactionUUID, transactionUUID)
	}

	return &reply, nil
}
