package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/genfoo/backend/internal/models"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>[,v1=...]".
const SignatureHeader = "Stripe-Signature"

// WebhookVerifier authenticates payment-provider callbacks against the
// endpoint's signing secret.
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	return &WebhookVerifier{
		secret:    []byte(strings.TrimSpace(secret)),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify checks header against the raw request body. The body must be
// exactly the bytes received; re-encoded JSON will not verify.
func (v *WebhookVerifier) Verify(payload []byte, header string) error {
	header = strings.TrimSpace(header)
	if header == "" || len(v.secret) == 0 {
		return ErrInvalidSignature
	}

	ts, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if v.tolerance > 0 {
		age := v.now().Sub(time.Unix(unix, 0))
		if age > v.tolerance || age < -v.tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
		}
	}

	expected := sign(v.secret, ts, payload)
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// SignatureFor builds a header value for payload; used by tests and local
// tooling that replays events.
func (v *WebhookVerifier) SignatureFor(payload []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + sign(v.secret, ts, payload)
}

func sign(secret []byte, ts string, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (string, []string, error) {
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			timestamp = strings.TrimSpace(value)
		case "v1":
			signatures = append(signatures, strings.TrimSpace(value))
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, ErrInvalidSignature
	}
	return timestamp, signatures, nil
}

type event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSession struct {
	ID            string            `json:"id"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

// ParseEvent decodes a verified payload. Events that can never grant
// credits return ErrEventIgnored.
func ParseEvent(payload []byte) (models.PurchaseEvent, error) {
	var evt event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return models.PurchaseEvent{}, ErrInvalidPayload
	}
	if strings.TrimSpace(evt.ID) == "" {
		return models.PurchaseEvent{}, ErrInvalidPayload
	}

	switch evt.Type {
	case models.PaymentEventCheckoutCompleted, models.PaymentEventCheckoutAsyncPaymentSucceeded:
	default:
		return models.PurchaseEvent{EventID: evt.ID, EventType: evt.Type}, ErrEventIgnored
	}

	var session checkoutSession
	if err := json.Unmarshal(evt.Data.Object, &session); err != nil {
		return models.PurchaseEvent{}, ErrInvalidPayload
	}

	return models.PurchaseEvent{
		EventID:       evt.ID,
		EventType:     evt.Type,
		SessionID:     session.ID,
		Identity:      strings.TrimSpace(session.Metadata["userId"]),
		ProductID:     strings.TrimSpace(session.Metadata["priceId"]),
		PaymentStatus: session.PaymentStatus,
	}, nil
}
