package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/genfoo/backend/internal/models"
)

var (
	ErrMissingHeaders   = errors.New("identity: missing webhook signature headers")
	ErrInvalidSignature = errors.New("identity: invalid webhook signature")
	ErrMalformedEvent   = errors.New("identity: malformed event payload")
	ErrInvalidSecret    = errors.New("identity: invalid webhook secret")
)

const secretPrefix = "whsec_"

// Headers are the svix delivery headers sent with every callback.
type Headers struct {
	ID        string
	Timestamp string
	Signature string
}

// HeadersFrom reads svix-* headers, falling back to the unbranded webhook-*
// names.
func HeadersFrom(h http.Header) Headers {
	get := func(name string) string {
		if v := h.Get("svix-" + name); v != "" {
			return v
		}
		return h.Get("webhook-" + name)
	}
	return Headers{
		ID:        strings.TrimSpace(get("id")),
		Timestamp: strings.TrimSpace(get("timestamp")),
		Signature: strings.TrimSpace(get("signature")),
	}
}

// Verifier checks identity-provider callbacks signed with a base64 secret.
type Verifier struct {
	key       []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(strings.TrimSpace(secret), secretPrefix))
	if err != nil || len(key) == 0 {
		return nil, ErrInvalidSecret
	}
	return &Verifier{key: key, tolerance: tolerance, now: time.Now}, nil
}

func (v *Verifier) Verify(payload []byte, h Headers) error {
	if h.ID == "" || h.Timestamp == "" || h.Signature == "" {
		return ErrMissingHeaders
	}

	unix, err := strconv.ParseInt(h.Timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if v.tolerance > 0 {
		age := v.now().Sub(time.Unix(unix, 0))
		if age > v.tolerance || age < -v.tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
		}
	}

	expected := v.sign(h.ID, h.Timestamp, payload)
	// Space-separated "v1,<base64>" entries; other versions are skipped.
	for _, entry := range strings.Fields(h.Signature) {
		version, signature, ok := strings.Cut(entry, ",")
		if !ok || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign returns a signature header value for payload.
func (v *Verifier) Sign(id string, at time.Time, payload []byte) Headers {
	ts := strconv.FormatInt(at.Unix(), 10)
	return Headers{ID: id, Timestamp: ts, Signature: "v1," + v.sign(id, ts, payload)}
}

func (v *Verifier) sign(id, ts string, payload []byte) string {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(id + "." + ts + "."))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type userEvent struct {
	Type string `json:"type"`
	Data struct {
		ID                    string `json:"id"`
		PrimaryEmailAddressID string `json:"primary_email_address_id"`
		EmailAddresses        []struct {
			ID           string `json:"id"`
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	} `json:"data"`
}

// ParseEvent decodes a verified payload. Identity is empty when the
// payload carries no user id; the caller decides whether that matters.
func ParseEvent(messageID string, payload []byte) (models.IdentityCreatedEvent, error) {
	var evt userEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return models.IdentityCreatedEvent{}, ErrMalformedEvent
	}
	if evt.Type == "" {
		return models.IdentityCreatedEvent{}, ErrMalformedEvent
	}

	email := ""
	for i, addr := range evt.Data.EmailAddresses {
		primary := addr.ID != "" && addr.ID == evt.Data.PrimaryEmailAddressID
		if i == 0 || primary {
			email = addr.EmailAddress
		}
		if primary {
			break
		}
	}

	return models.IdentityCreatedEvent{
		MessageID: messageID,
		EventType: evt.Type,
		Identity:  strings.TrimSpace(evt.Data.ID),
		Email:     strings.TrimSpace(email),
	}, nil
}
