package handlers

import (
	"net/http"

	"github.com/genfoo/backend/internal/ledger"
	"github.com/genfoo/backend/internal/logger"
	mw "github.com/genfoo/backend/internal/middleware"
	"github.com/genfoo/backend/internal/models"
	"github.com/genfoo/backend/internal/services"
	"go.uber.org/zap"
)

type CreditsHandler struct {
	store ledger.Store
	log   *zap.Logger
}

func NewCreditsHandler(store ledger.Store, log *zap.Logger) *CreditsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CreditsHandler{store: store, log: log.Named("credits")}
}

// GetCredits returns the caller's balance
// @Summary Get credit balance
// @Description Current credit balance and the time it last changed
// @Tags Credits
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.BalanceResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /credits [get]
func (h *CreditsHandler) GetCredits(w http.ResponseWriter, r *http.Request) {
	identity, ok := mw.IdentityFromContext(r.Context())
	if !ok {
		services.WriteError(w, services.ErrUnauthenticated)
		return
	}

	entry, err := h.store.Read(r.Context(), identity)
	if err != nil {
		if services.StatusFor(err) >= http.StatusInternalServerError {
			logger.FromContext(r.Context(), h.log).Error("balance read failed", zap.String("identity", identity), zap.Error(err))
		}
		services.WriteError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, models.BalanceResponse{
		Credits:   entry.Balance,
		UpdatedAt: entry.UpdatedAt,
	})
}
