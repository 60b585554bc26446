// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/crmlens/crmlens/internal/config"
	"github.com/crmlens/crmlens/internal/database"
	"github.com/crmlens/crmlens/internal/logging"
	"github.com/crmlens/crmlens/internal/models"
)

// SyncController is the sync-control surface the handlers drive.
// Implemented by sync.Engine.
type SyncController interface {
	Start(ctx context.Context) (bool, error)
	Reset(ctx context.Context) error
	Running() bool
}

// MirrorReader is the read surface over the mirror store.
// Implemented by database.DB.
type MirrorReader interface {
	SyncReport(ctx context.Context) (*models.SyncReport, error)
	ListContacts(ctx context.Context, after string, limit int) ([]models.Contact, error)
	ListDeals(ctx context.Context, after string, limit int) ([]models.Deal, error)
	GetContact(ctx context.Context, id string) (*models.Contact, error)
	SetContactHealthScore(ctx context.Context, id string, score float64) error
	MirrorStats(ctx context.Context) (*database.MirrorStats, error)
	Ping(ctx context.Context) error
}

// Handler holds the HTTP handlers and their dependencies.
type Handler struct {
	controller SyncController
	store      MirrorReader
	cfg        *config.APIConfig
}

// NewHandler creates the API handler set.
func NewHandler(controller SyncController, store MirrorReader, cfg *config.APIConfig) *Handler {
	return &Handler{
		controller: controller,
		store:      store,
		cfg:        cfg,
	}
}

// SyncStart handles POST /api/v1/sync. The pipeline runs asynchronously; the
// response only acknowledges the trigger. Starting while a run is active is
// a safe no-op.
func (h *Handler) SyncStart(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	started, err := h.controller.Start(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Sync start failed")
		rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, "failed to start sync")
		return
	}

	if !started {
		rw.Success(map[string]string{"message": "sync already in progress"})
		return
	}
	rw.Accepted(map[string]string{"message": "sync started"})
}

// SyncStatus handles GET /api/v1/sync/status. This endpoint is polled by
// dashboards and degrades gracefully: an unreachable store yields a
// structured 503, distinct from "zero rows, sync never run".
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	report, err := h.store.SyncReport(r.Context())
	if err != nil {
		if database.IsStoreUnavailable(err) {
			rw.ServiceUnavailable("mirror store unavailable")
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Msg("Sync status read failed")
		rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, "failed to read sync status")
		return
	}
	rw.Success(report)
}

// SyncReset handles POST /api/v1/sync/reset: the manual recovery path that
// forces a stuck persisted status back to idle.
func (h *Handler) SyncReset(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if err := h.controller.Reset(r.Context()); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Sync status reset failed")
		rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, "failed to reset sync status")
		return
	}

	logging.Ctx(r.Context()).Info().Msg("Sync status reset to idle")
	rw.Success(map[string]string{"message": "sync status reset"})
}

// Contacts handles GET /api/v1/contacts with cursor pagination
// (?after=<id>&limit=<n>).
func (h *Handler) Contacts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	after, limit, ok := h.pageParams(rw, r)
	if !ok {
		return
	}

	contacts, err := h.store.ListContacts(r.Context(), after, limit)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Contact list failed")
		rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, "failed to list contacts")
		return
	}

	next := ""
	if len(contacts) == limit {
		next = contacts[len(contacts)-1].ID
	}
	rw.Success(map[string]any{
		"contacts":    contacts,
		"count":       len(contacts),
		"next_cursor": next,
	})
}

// Contact handles GET /api/v1/contacts/{id}.
func (h *Handler) Contact(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id := chi.URLParam(r, "id")
	contact, err := h.store.GetContact(r.Context(), id)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("id", id).Msg("Contact read failed")
		rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, "failed to read contact")
		return
	}
	if contact == nil {
		rw.NotFound("contact not found")
		return
	}
	rw.Success(contact)
}

// Deals handles GET /api/v1/deals with cursor pagination.
func (h *Handler) Deals(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	after, limit, ok := h.pageParams(rw, r)
	if !ok {
		return
	}

	deals, err := h.store.ListDeals(r.Context(), after, limit)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Deal list failed")
		rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, "failed to list deals")
		return
	}

	next := ""
	if len(deals) == limit {
		next = deals[len(deals)-1].ID
	}
	rw.Success(map[string]any{
		"deals":       deals,
		"count":       len(deals),
		"next_cursor": next,
	})
}

// Stats handles GET /api/v1/stats: aggregate mirror analytics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	stats, err := h.store.MirrorStats(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Mirror stats failed")
		rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, "failed to compute stats")
		return
	}
	rw.Success(stats)
}

// healthScoreRequest is the body for PUT /api/v1/contacts/{id}/health-score.
type healthScoreRequest struct {
	HealthScore float64 `json:"health_score"`
}

// ContactHealthScore handles PUT /api/v1/contacts/{id}/health-score. The
// score is external enrichment: sync upserts never touch it.
func (h *Handler) ContactHealthScore(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id := chi.URLParam(r, "id")
	if id == "" {
		rw.BadRequest("contact id is required")
		return
	}

	var req healthScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid request body")
		return
	}
	if req.HealthScore < 0 || req.HealthScore > 100 {
		rw.BadRequest("health_score must be between 0 and 100")
		return
	}

	err := h.store.SetContactHealthScore(r.Context(), id, req.HealthScore)
	if err != nil {
		if database.IsNotFound(err) {
			rw.NotFound("contact not found")
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Msg("Health score update failed")
		rw.Error(http.StatusInternalServerError, ErrCodeDatabaseError, "failed to update health score")
		return
	}

	rw.Success(map[string]any{
		"id":           id,
		"health_score": req.HealthScore,
	})
}

// HealthLive handles GET /api/v1/health/live: process liveness only.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(map[string]string{"status": "alive"})
}

// HealthReady handles GET /api/v1/health/ready: liveness plus store
// reachability.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if err := h.store.Ping(r.Context()); err != nil {
		rw.ServiceUnavailable("mirror store unavailable")
		return
	}
	rw.Success(map[string]any{
		"status":  "ready",
		"syncing": h.controller.Running(),
	})
}

// pageParams parses the after/limit query parameters, writing a 400 and
// returning ok=false on invalid input.
func (h *Handler) pageParams(rw *ResponseWriter, r *http.Request) (after string, limit int, ok bool) {
	after = r.URL.Query().Get("after")
	limit = h.cfg.DefaultPageSize

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			rw.BadRequest("limit must be a positive integer")
			return "", 0, false
		}
		if parsed > h.cfg.MaxPageSize {
			parsed = h.cfg.MaxPageSize
		}
		limit = parsed
	}
	return after, limit, true
}
