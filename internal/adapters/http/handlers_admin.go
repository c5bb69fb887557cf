package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/millbrook/orderdesk/internal/application"
	"github.com/millbrook/orderdesk/internal/domain"
)

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	report := h.service.Health(r.Context())
	if report.Status == domain.HealthUnhealthy {
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", "service unhealthy")
		return
	}
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) cacheHealth(w http.ResponseWriter, r *http.Request) {
	report := h.service.Health(r.Context())
	status := http.StatusOK
	if report.Status == domain.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeSuccess(w, status, report)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, h.service.Stats(r.Context()))
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, h.service.Snapshot(r.Context()))
}

func (h *Handler) resetMetrics(w http.ResponseWriter, r *http.Request) {
	h.service.ResetMetrics()
	httpLogger().InfoContext(r.Context(), "metrics reset",
		"operation", "reset_metrics",
		"outcome", "success",
		"request_id", requestIDFromContext(r.Context()),
	)
	writeMessage(w, http.StatusOK, "metrics reset")
}

func (h *Handler) clearCache(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ClearCache(r.Context(), actorFromRequest(r))
	if err != nil {
		status, code, msg := mapDomainError(err)
		logHTTPOperationError(r.Context(), "clear_cache", status, code, msg, err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

type invalidatePatternRequest struct {
	Pattern string `json:"pattern"`
}

func (h *Handler) invalidatePattern(w http.ResponseWriter, r *http.Request) {
	var req invalidatePatternRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	result, err := h.service.InvalidatePattern(r.Context(), actorFromRequest(r), req.Pattern)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (h *Handler) invalidateTag(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")

	result, err := h.service.InvalidateTag(r.Context(), actorFromRequest(r), tag)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

type invalidateEntityRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

func (h *Handler) invalidateEntity(w http.ResponseWriter, r *http.Request) {
	var req invalidateEntityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	if err := h.service.InvalidateEntity(r.Context(), actorFromRequest(r), req.EntityType, req.EntityID); err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeMessage(w, http.StatusAccepted, "invalidation dispatched")
}

func (h *Handler) runWarmup(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RunWarmup(r.Context()); err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeMessage(w, http.StatusOK, "warmup completed")
}

func (h *Handler) runWarmupJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.service.RunWarmupJob(r.Context(), name); err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeMessage(w, http.StatusOK, "warmup job completed")
}

type loadTestRequest struct {
	Operations int `json:"operations"`
}

func (h *Handler) runLoadTest(w http.ResponseWriter, r *http.Request) {
	req := loadTestRequest{Operations: 1000}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
	}

	report, err := h.service.RunLoadTest(r.Context(), req.Operations)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, report)
}

// actorFromRequest binds the verified claims and request headers into the
// application-layer actor.
func actorFromRequest(r *http.Request) application.Actor {
	actor := application.Actor{
		RequestID:      requestIDFromContext(r.Context()),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}
	if claims, ok := claimsFromContext(r.Context()); ok {
		actor.SubjectID = claims.SubjectID
		actor.Role = claims.Role
	}
	return actor
}

func decodeBody(r *http.Request, dst any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	return nil
}
