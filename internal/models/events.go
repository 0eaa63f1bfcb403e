package models

// Identity provider event types.
const (
	IdentityEventUserCreated = "user.created"
)

// Payment provider event types that can grant credits.
const (
	PaymentEventCheckoutCompleted             = "checkout.session.completed"
	PaymentEventCheckoutAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

// Checkout session payment statuses.
const (
	PaymentStatusPaid              = "paid"
	PaymentStatusNoPaymentRequired = "no_payment_required"
	PaymentStatusUnpaid            = "unpaid"
)

// IdentityCreatedEvent is a verified identity-provider notification.
type IdentityCreatedEvent struct {
	MessageID string
	EventType string
	Identity  string
	Email     string
}

// PurchaseEvent is a verified payment-provider notification about a
// checkout session. Identity and ProductID come from the session metadata
// written at checkout time.
type PurchaseEvent struct {
	EventID       string
	EventType     string
	SessionID     string
	Identity      string
	ProductID     string
	PaymentStatus string
}

// Settled reports whether the session's funds have been captured.
func (e PurchaseEvent) Settled() bool {
	return e.PaymentStatus == PaymentStatusPaid || e.PaymentStatus == PaymentStatusNoPaymentRequired
}

// ChatMessage is one role-tagged turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

// ChatRequest is the body of the chat endpoint. Provider is accepted as an
// alias for Model.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Model    string        `json:"model,omitempty"`
	Provider string        `json:"provider,omitempty"`
}

// CheckoutRequest is the body of the checkout endpoint.
type CheckoutRequest struct {
	PriceID string `json:"priceId" validate:"required"`
}

// CheckoutResponse carries the hosted checkout page URL.
type CheckoutResponse struct {
	URL string `json:"url"`
}
