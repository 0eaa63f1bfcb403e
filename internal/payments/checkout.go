package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CheckoutParams describes one hosted checkout session for a single price.
type CheckoutParams struct {
	PriceID        string
	Identity       string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// CheckoutSession is the subset of the provider's response the caller needs.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type providerErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CheckoutClient creates hosted checkout sessions over the provider's
// form-encoded REST API.
type CheckoutClient struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewCheckoutClient(baseURL, secretKey string, client *http.Client) *CheckoutClient {
	if client == nil {
		client = &http.Client{Timeout: 12 * time.Second}
	}
	return &CheckoutClient{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		secretKey: strings.TrimSpace(secretKey),
		client:    client,
	}
}

// CreateSession opens a one-off payment session. Identity and PriceID are
// written to session metadata so the completion webhook can recover them.
func (c *CheckoutClient) CreateSession(ctx context.Context, params CheckoutParams) (CheckoutSession, error) {
	if c.secretKey == "" || c.baseURL == "" {
		return CheckoutSession{}, ErrInvalidConfig
	}
	if params.PriceID == "" || params.Identity == "" {
		return CheckoutSession{}, errors.New("payments: price id and identity are required")
	}

	values := url.Values{}
	values.Set("mode", "payment")
	values.Set("line_items[0][price]", params.PriceID)
	values.Set("line_items[0][quantity]", "1")
	values.Set("success_url", params.SuccessURL)
	values.Set("cancel_url", params.CancelURL)
	values.Set("client_reference_id", params.Identity)
	values.Set("metadata[userId]", params.Identity)
	values.Set("metadata[priceId]", params.PriceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", strings.NewReader(values.Encode()))
	if err != nil {
		return CheckoutSession{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if params.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", params.IdempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("payments: create checkout session: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("payments: read checkout response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var providerErr providerErrorBody
		message := "checkout request failed"
		if json.Unmarshal(body, &providerErr) == nil && strings.TrimSpace(providerErr.Error.Message) != "" {
			message = strings.TrimSpace(providerErr.Error.Message)
		}
		return CheckoutSession{}, &ProviderError{Status: resp.StatusCode, Message: message}
	}

	var session CheckoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return CheckoutSession{}, fmt.Errorf("payments: decode checkout response: %w", err)
	}
	if session.URL == "" {
		return CheckoutSession{}, errors.New("payments: checkout response has no url")
	}
	return session, nil
}
