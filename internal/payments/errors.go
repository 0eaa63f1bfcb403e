package payments

import (
	"errors"
	"net/http"
	"strconv"
)

var (
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	ErrInvalidPayload   = errors.New("payments: invalid webhook payload")
	ErrEventIgnored     = errors.New("payments: event type does not grant credits")
	ErrInvalidConfig    = errors.New("payments: provider is not configured")
)

// ProviderError is a non-2xx answer from the payment provider's API.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	status := strconv.Itoa(e.Status)
	if text := http.StatusText(e.Status); text != "" {
		status += " " + text
	}
	return "payments: provider returned " + status + ": " + e.Message
}
