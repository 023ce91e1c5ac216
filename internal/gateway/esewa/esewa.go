// Package esewa implements the signed-form protocol of the eSewa payment
// gateway: canonical message construction, HMAC-SHA256 signing and the
// decoding/verification of asynchronous callbacks.
package esewa

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"event-ticketing/internal/status"

	"github.com/shopspring/decimal"
)

// SignedFieldNames is the field list this service signs on initiation.
// Callbacks carry their own signed_field_names value chosen by the gateway.
const SignedFieldNames = "total_amount,transaction_uuid,product_code"

// StatusComplete is the gateway's sentinel for a settled transaction.
const StatusComplete = "COMPLETE"

// BuildMessage produces the canonical "f1=v1,f2=v2" message in the exact
// order of fieldNames. A field named but absent from values invalidates the
// whole message: the gateway signed something we cannot reconstruct.
func BuildMessage(fieldNames []string, values map[string]string) (string, error) {
	parts := make([]string, 0, len(fieldNames))
	for _, name := range fieldNames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		value, ok := values[name]
		if !ok {
			return "", fmt.Errorf("esewa: signed field %q missing from payload", name)
		}
		parts = append(parts, fmt.Sprintf("%s=%s", name, value))
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("esewa: empty signed field list")
	}
	return strings.Join(parts, ","), nil
}

// Sign computes base64(HMAC-SHA256(message)) with the shared secret.
func Sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature and compares in constant time.
func Verify(secret, message, candidate string) bool {
	expected := Sign(secret, message)
	return hmac.Equal([]byte(expected), []byte(candidate))
}

// Callback is a decoded gateway callback blob.
type Callback struct {
	TransactionUUID  string
	TotalAmount      string
	Status           string
	SignedFieldNames string
	Signature        string

	// fields holds every decoded value, keyed by field name, so the
	// signature can be rebuilt from whatever list the gateway signed.
	fields map[string]string
}

// DecodeCallback decodes the base64-encoded JSON blob eSewa sends on both
// the redirect and the posted-verification paths.
func DecodeCallback(raw string) (*Callback, error) {
	if raw == "" {
		return nil, status.ErrMissingData
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		// Some gateway redirects arrive URL-safe encoded.
		decoded, err = base64.URLEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("esewa: decode callback: %w", status.ErrMissingData)
		}
	}

	dec := json.NewDecoder(strings.NewReader(string(decoded)))
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("esewa: parse callback: %w", status.ErrMissingData)
	}

	fields := make(map[string]string, len(body))
	for k, v := range body {
		switch value := v.(type) {
		case string:
			fields[k] = value
		case json.Number:
			fields[k] = value.String()
		case bool:
			fields[k] = fmt.Sprintf("%t", value)
		}
	}

	cb := &Callback{
		TransactionUUID:  fields["transaction_uuid"],
		TotalAmount:      fields["total_amount"],
		Status:           fields["status"],
		SignedFieldNames: fields["signed_field_names"],
		Signature:        fields["signature"],
		fields:           fields,
	}

	if cb.Signature == "" || cb.SignedFieldNames == "" {
		return nil, status.ErrMissingData
	}

	return cb, nil
}

// VerifySignature rebuilds the canonical message from the gateway-supplied
// signed_field_names and checks the callback's signature against it. A
// missing signed field fails closed as an invalid signature.
func (c *Callback) VerifySignature(secret string) error {
	message, err := BuildMessage(strings.Split(c.SignedFieldNames, ","), c.fields)
	if err != nil {
		return status.ErrInvalidSignature
	}
	if !Verify(secret, message, c.Signature) {
		return status.ErrInvalidSignature
	}
	return nil
}

// Amount parses the callback's total_amount. eSewa formats amounts with
// thousand separators ("1,000.0") on some paths.
func (c *Callback) Amount() (decimal.Decimal, error) {
	raw := strings.ReplaceAll(c.TotalAmount, ",", "")
	if raw == "" {
		return decimal.Zero, fmt.Errorf("esewa: callback has no total_amount")
	}
	return decimal.NewFromString(raw)
}
