package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/genfoo/backend/internal/identity"
	"github.com/genfoo/backend/internal/payments"
	"github.com/genfoo/backend/internal/services"
)

type IdentityWebhook interface {
	HandleWebhook(ctx context.Context, payload []byte, headers identity.Headers) error
}

type PaymentWebhook interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type WebhookHandler struct {
	identity IdentityWebhook
	payments PaymentWebhook
}

func NewWebhookHandler(identityHook IdentityWebhook, paymentHook PaymentWebhook) *WebhookHandler {
	return &WebhookHandler{identity: identityHook, payments: paymentHook}
}

type webhookAck struct {
	Received bool `json:"received"`
}

// Identity receives identity-provider events
// @Summary Identity provider webhook
// @Description Signed user lifecycle events. user.created opens a ledger account with the starting balance; redeliveries are no-ops.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param svix-id header string true "Message id"
// @Param svix-timestamp header string true "Unix timestamp"
// @Param svix-signature header string true "Signatures"
// @Success 200 {object} object{received=bool}
// @Failure 400 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /webhooks/identity [post]
func (h *WebhookHandler) Identity(w http.ResponseWriter, r *http.Request) {
	payload, ok := readRawBody(w, r)
	if !ok {
		return
	}
	if err := h.identity.HandleWebhook(r.Context(), payload, identity.HeadersFrom(r.Header)); err != nil {
		services.WriteError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, webhookAck{Received: true})
}

// Payments receives payment-provider events
// @Summary Payment provider webhook
// @Description Signed checkout events. Completed, paid sessions credit the catalog amount for their price once per event id.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "t=timestamp,v1=signature"
// @Success 200 {object} object{received=bool}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /webhooks/payments [post]
func (h *WebhookHandler) Payments(w http.ResponseWriter, r *http.Request) {
	payload, ok := readRawBody(w, r)
	if !ok {
		return
	}
	if err := h.payments.HandleWebhook(r.Context(), payload, r.Header.Get(payments.SignatureHeader)); err != nil {
		services.WriteError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, webhookAck{Received: true})
}

// readRawBody keeps the exact bytes; signatures are computed over them.
func readRawBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, services.MaxBodyBytes))
	if err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return nil, false
	}
	return payload, true
}
