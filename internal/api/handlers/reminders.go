// Package handlers contains the HTTP handler implementations for the
// reminder API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"calwatch/internal/core"
	"calwatch/internal/types"
)

// ReminderService defines the interactive reminder operations the handler
// depends on. Defined locally to avoid coupling to the concrete service and
// to enable test mocking.
type ReminderService interface {
	Due(ctx context.Context, now time.Time, partnerID int64) ([]types.ReminderPayload, error)
	Ack(ctx context.Context, now time.Time, partnerID int64) error
}

// AckResponse confirms an acknowledgement and echoes the new watermark.
type AckResponse struct {
	AckedAt time.Time `json:"acked_at"`
}

// ReminderHandler serves the interactive notification feed: clients poll for
// due reminders and acknowledge them to advance their personal watermark.
type ReminderHandler struct {
	service ReminderService
	now     func() time.Time
	logger  *slog.Logger
}

// NewReminderHandler creates a ReminderHandler. If now is nil, time.Now is
// used; tests inject a fixed clock.
func NewReminderHandler(service ReminderService, now func() time.Time, l *slog.Logger) *ReminderHandler {
	if now == nil {
		now = time.Now
	}
	if l == nil {
		l = slog.Default()
	}
	return &ReminderHandler{
		service: service,
		now:     now,
		logger:  l,
	}
}

// RegisterRoutes mounts reminder routes onto the provided router.
func (h *ReminderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/next", h.Next)
	r.Post("/ack", h.Ack)
}

// Next handles GET /v1/reminders/next.
// Returns every notification-mode reminder currently due for the
// authenticated partner, oldest first. An empty list is a normal response,
// not an error.
func (h *ReminderHandler) Next(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthTokenMissing,
			"authentication required",
			nil,
		))
		return
	}

	payloads, err := h.service.Due(r.Context(), h.now().UTC(), actor.PartnerID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if payloads == nil {
		payloads = []types.ReminderPayload{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: payloads})
}

// Ack handles POST /v1/reminders/ack.
// Advances the partner's acknowledgement watermark to the current time, so
// reminders delivered up to now are not returned again. The operation is
// idempotent; acknowledging with nothing due is a no-op.
func (h *ReminderHandler) Ack(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthTokenMissing,
			"authentication required",
			nil,
		))
		return
	}

	now := h.now().UTC()
	if err := h.service.Ack(r.Context(), now, actor.PartnerID); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.Info("reminders acknowledged",
		"partner_id", actor.PartnerID,
		"acked_at", now,
	)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: AckResponse{AckedAt: now}})
}
