package services

import (
	"errors"
	"net/http"

	"github.com/genfoo/backend/internal/completion"
	"github.com/genfoo/backend/internal/identity"
	"github.com/genfoo/backend/internal/ledger"
	"github.com/genfoo/backend/internal/payments"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrMalformedEvent  = errors.New("malformed event")
	ErrMissingIdentity = errors.New("payment event has no identity metadata")
	ErrUnknownProduct  = errors.New("unknown product")
	ErrNoCredits       = errors.New("insufficient credits")
	ErrRateLimited     = errors.New("rate limit exceeded")
)

type errorClass struct {
	status  int
	message string
	matches func(error) bool
}

func is(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

// Checked in order; the first match wins.
var errorClasses = []errorClass{
	{http.StatusUnauthorized, "Unauthorized", is(ErrUnauthenticated)},
	{http.StatusPaymentRequired, "Insufficient credits", is(ErrNoCredits, ledger.ErrInsufficientFunds)},
	{http.StatusTooManyRequests, "Too many requests", is(ErrRateLimited)},
	{http.StatusBadRequest, "Unsupported model", is(completion.ErrUnsupportedModel)},
	{http.StatusBadRequest, "Unknown product", is(ErrUnknownProduct)},
	{http.StatusBadRequest, "Missing webhook headers", is(identity.ErrMissingHeaders)},
	{http.StatusBadRequest, "Invalid signature", is(identity.ErrInvalidSignature, payments.ErrInvalidSignature)},
	{http.StatusBadRequest, "Missing identity", is(ErrMissingIdentity)},
	{http.StatusBadRequest, "Malformed event", is(ErrMalformedEvent, identity.ErrMalformedEvent, payments.ErrInvalidPayload)},
	{http.StatusBadRequest, "Invalid request body", is(ErrInvalidBody, ledger.ErrInvalidIdentity, ledger.ErrInvalidAmount)},
	{http.StatusNotFound, "Account not found", is(ledger.ErrNotFound)},
	{http.StatusBadGateway, "Upstream unavailable", func(err error) bool {
		var providerErr *payments.ProviderError
		return errors.As(err, &providerErr) || errors.Is(err, completion.ErrUpstreamUnavailable)
	}},
}

// StatusFor maps an error from any layer to its HTTP status.
func StatusFor(err error) int {
	status, _ := classify(err)
	return status
}

func classify(err error) (int, string) {
	if err == nil {
		return http.StatusOK, ""
	}
	for _, class := range errorClasses {
		if class.matches(err) {
			return class.status, class.message
		}
	}
	return http.StatusInternalServerError, "Internal server error"
}

// WriteError writes err as an ErrorResponse. Internal details are never
// exposed; the message is fixed per error class.
func WriteError(w http.ResponseWriter, err error) {
	status, message := classify(err)
	SendErrorResponse(w, message, status, nil)
}
