package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/genfoo/backend/internal/completion"
	"github.com/genfoo/backend/internal/logger"
	"github.com/genfoo/backend/internal/metrics"
	mw "github.com/genfoo/backend/internal/middleware"
	"github.com/genfoo/backend/internal/models"
	"github.com/genfoo/backend/internal/services"
	"go.uber.org/zap"
)

// CreditGate charges and refunds chat turns.
type CreditGate interface {
	Admit(ctx context.Context, identity string) (models.LedgerEntry, error)
	Refund(ctx context.Context, identity string) error
}

// CompletionStreamer relays a completion to the client.
type CompletionStreamer interface {
	Stream(ctx context.Context, model string, messages []models.ChatMessage, w http.ResponseWriter) (int64, error)
}

type ChatHandler struct {
	gate      CreditGate
	streamer  CompletionStreamer
	models    *completion.ModelSet
	validator *services.ValidationHelper
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewChatHandler(gate CreditGate, streamer CompletionStreamer, modelSet *completion.ModelSet, m *metrics.Metrics, log *zap.Logger) *ChatHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatHandler{
		gate:      gate,
		streamer:  streamer,
		models:    modelSet,
		validator: services.NewValidationHelper(),
		metrics:   m,
		log:       log.Named("chat"),
	}
}

// Chat streams one completion turn, paid for with one credit
// @Summary Chat completion
// @Description Charge one credit and stream the completion for the given transcript. Unknown message fields are dropped; the model must be in the allow-list.
// @Tags Chat
// @Accept json
// @Produce text/event-stream
// @Security BearerAuth
// @Param request body models.ChatRequest true "Chat transcript"
// @Success 200 {string} string "Server-sent event stream from the completion API"
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 402 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /chat [post]
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx, h.log)

	identity, ok := mw.IdentityFromContext(ctx)
	if !ok {
		services.WriteError(w, services.ErrUnauthenticated)
		return
	}

	var req models.ChatRequest
	if err := services.DecodeJSON(w, r, &req, false); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	requested := req.Model
	if requested == "" {
		requested = req.Provider
	}
	model, err := h.models.Resolve(requested)
	if err != nil {
		log.Info("rejected unsupported model", zap.String("model", requested))
		h.metrics.ChatTurn("unsupported", "rejected")
		services.WriteError(w, err)
		return
	}

	if _, err := h.gate.Admit(ctx, identity); err != nil {
		h.metrics.ChatTurn(model, "refused")
		services.WriteError(w, err)
		return
	}

	start := time.Now()
	_, err = h.streamer.Stream(ctx, model, req.Messages, w)
	h.metrics.ObserveUpstream(model, time.Since(start))

	switch {
	case err == nil:
		h.metrics.ChatTurn(model, "ok")
		return
	case errors.Is(err, completion.ErrStreamInterrupted):
		// Headers are gone; the turn is spent.
		log.Warn("completion stream interrupted", zap.String("model", model), zap.Error(err))
		h.metrics.ChatTurn(model, "interrupted")
		return
	}

	// Nothing reached the client, so the turn was never delivered.
	if refundErr := h.gate.Refund(context.WithoutCancel(ctx), identity); refundErr != nil {
		log.Error("could not refund failed chat turn", zap.String("identity", identity), zap.Error(refundErr))
	}
	h.metrics.ChatTurn(model, "upstream_error")

	var upstreamErr *completion.UpstreamError
	if errors.As(err, &upstreamErr) {
		log.Warn("completion upstream rejected request", zap.String("model", model), zap.Int("status", upstreamErr.Status))
		contentType := upstreamErr.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(upstreamErr.Status)
		w.Write(upstreamErr.Body)
		return
	}

	log.Error("completion request failed", zap.String("model", model), zap.Error(err))
	services.WriteError(w, err)
}
