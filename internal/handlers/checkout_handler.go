package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/genfoo/backend/internal/logger"
	mw "github.com/genfoo/backend/internal/middleware"
	"github.com/genfoo/backend/internal/models"
	"github.com/genfoo/backend/internal/payments"
	"github.com/genfoo/backend/internal/services"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionCreator opens hosted checkout sessions.
type SessionCreator interface {
	CreateSession(ctx context.Context, params payments.CheckoutParams) (payments.CheckoutSession, error)
}

type CheckoutHandler struct {
	sessions       SessionCreator
	catalog        *services.Catalog
	publicURL      string
	allowedOrigins []string
	validator      *services.ValidationHelper
	log            *zap.Logger
}

func NewCheckoutHandler(sessions SessionCreator, catalog *services.Catalog, publicURL string, allowedOrigins []string, log *zap.Logger) *CheckoutHandler {
	if log == nil {
		log = zap.NewNop()
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins = append(origins, strings.TrimRight(o, "/"))
	}
	return &CheckoutHandler{
		sessions:       sessions,
		catalog:        catalog,
		publicURL:      strings.TrimRight(publicURL, "/"),
		allowedOrigins: origins,
		validator:      services.NewValidationHelper(),
		log:            log.Named("checkout"),
	}
}

// CreateCheckoutSession starts a credit purchase
// @Summary Create checkout session
// @Description Open a hosted checkout session for a catalog price. The caller's identity and the price id travel as session metadata.
// @Tags Checkout
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CheckoutRequest true "Price to purchase"
// @Success 200 {object} models.CheckoutResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /checkout [post]
func (h *CheckoutHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := mw.IdentityFromContext(ctx)
	if !ok {
		services.WriteError(w, services.ErrUnauthenticated)
		return
	}

	var req models.CheckoutRequest
	if err := services.DecodeJSON(w, r, &req, true); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if !h.catalog.Has(req.PriceID) {
		services.WriteError(w, services.ErrUnknownProduct)
		return
	}

	origin := h.redirectOrigin(r.Header.Get("Origin"))
	if origin == "" {
		services.SendErrorResponse(w, "Origin header required", http.StatusBadRequest, nil)
		return
	}

	session, err := h.sessions.CreateSession(ctx, payments.CheckoutParams{
		PriceID:        req.PriceID,
		Identity:       identity,
		SuccessURL:     origin + "/order/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:      origin + "/buycredits",
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		logger.FromContext(ctx, h.log).Error("checkout session creation failed",
			zap.String("identity", identity), zap.String("price_id", req.PriceID), zap.Error(err))
		services.WriteError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, models.CheckoutResponse{URL: session.URL})
}

// redirectOrigin picks the base for post-checkout redirects. The Origin
// header is honoured only when an allowed-origin entry names its host.
func (h *CheckoutHandler) redirectOrigin(header string) string {
	header = strings.TrimRight(strings.TrimSpace(header), "/")
	if header != "" && h.originAllowed(header) {
		return header
	}
	return h.publicURL
}

// originAllowed matches exact origins or a single "*" wildcard that still
// pins the host, such as "https://*.example.com". Patterns that match any
// host ("*", "https://*") are skipped.
func (h *CheckoutHandler) originAllowed(origin string) bool {
	for _, pattern := range h.allowedOrigins {
		if pattern == origin {
			return true
		}
		prefix, suffix, found := strings.Cut(pattern, "*")
		if !found || !strings.HasPrefix(suffix, ".") {
			continue
		}
		if len(origin) > len(prefix)+len(suffix) &&
			strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}
