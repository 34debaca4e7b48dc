package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/threattrace/threattrace/internal/middleware"
	"github.com/threattrace/threattrace/internal/model"
	"github.com/threattrace/threattrace/internal/repository"
	"github.com/threattrace/threattrace/internal/service"
)

// --- Audit trail ---

// GetAuditTrail returns a filtered, paginated view of the security audit trail
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.ListFilter{
		Action:  q.Get("action"),
		Status:  q.Get("status"),
		UserID:  q.Get("user_id"),
		IP:      q.Get("ip"),
		Page:    safeInt(q.Get("page"), 1),
		PerPage: safeInt(q.Get("per_page"), 50),
	}
	if from, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		filter.From = &from
	}
	if to, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		filter.To = &to
	}

	events, total, err := h.auditSvc.List(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list audit trail")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list audit trail")
		return
	}

	if filter.PerPage < 1 || filter.PerPage > 200 {
		filter.PerPage = 50
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"pagination": map[string]interface{}{
			"page":     filter.Page,
			"per_page": filter.PerPage,
			"total":    total,
			"pages":    (total + filter.PerPage - 1) / filter.PerPage,
		},
	})
}

// VerifyAuditTrail recomputes the whole hash chain and reports the first
// entry that fails verification
func (h *Handler) VerifyAuditTrail(w http.ResponseWriter, r *http.Request) {
	result, err := h.auditSvc.VerifyChain(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to verify audit chain")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to verify audit chain")
		return
	}

	status := model.StatusSuccess
	severity := model.SeverityInfo
	if !result.OK {
		status = model.StatusFailed
		severity = model.SeverityCritical
	}
	h.recordAdminAction(r, model.ActionVerifyAuditChain, status, severity, "audit_events", map[string]interface{}{
		"checked": result.Checked,
		"ok":      result.OK,
	})

	writeJSON(w, http.StatusOK, result)
}

// --- Blocked IPs ---

// blockedIPView decorates a containment block with whether it still holds at
// the time of the listing. Useful when expired blocks are included.
type blockedIPView struct {
	model.BlockedIP
	Active bool `json:"active"`
}

// ListBlockedIPs returns containment blocks, by default only active ones
func (h *Handler) ListBlockedIPs(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") != "false"
	now := time.Now().UTC()

	blocks, err := h.blockRepo.List(r.Context(), activeOnly, now)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list blocked IPs")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list blocked IPs")
		return
	}

	views := make([]blockedIPView, len(blocks))
	for i, b := range blocks {
		views[i] = blockedIPView{BlockedIP: b, Active: b.Active(now)}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"blockedIps": views})
}

// UnblockIP removes a containment block
func (h *Handler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")
	if ip == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "IP is required")
		return
	}

	if err := h.blockRepo.Delete(r.Context(), ip); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "IP not found")
			return
		}
		h.log.Error().Err(err).Str("ip", ip).Msg("failed to unblock IP")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to unblock IP")
		return
	}

	h.recordAdminAction(r, model.ActionUnblockIP, model.StatusSuccess, model.SeverityInfo, "blocked_ips", map[string]interface{}{
		"ip": ip,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "IP " + ip + " unblocked"})
}

// --- Quarantined users ---

// ListQuarantinedUsers returns users whose containment lock is still active
func (h *Handler) ListQuarantinedUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userRepo.ListQuarantined(r.Context(), time.Now().UTC())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list quarantined users")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list quarantined users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// ReleaseQuarantinedUser clears a user's containment lock
func (h *Handler) ReleaseQuarantinedUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "User ID is required")
		return
	}

	if err := h.userRepo.ReleaseQuarantine(r.Context(), userID, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "User not found")
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to release quarantine")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to release quarantine")
		return
	}

	h.recordAdminAction(r, model.ActionReleaseQuarantine, model.StatusSuccess, model.SeverityInfo, "users", map[string]interface{}{
		"user_id": userID,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "User quarantine released"})
}

// --- Alerts ---

// ListAlerts returns recent system alerts, newest first
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alertRepo.ListRecent(r.Context(), safeInt(r.URL.Query().Get("limit"), 100))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list alerts")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list alerts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

// StreamAlerts pushes alerts to the caller as server-sent events, fed by the
// realtime Redis channel. The stream stays open until the client disconnects.
func (h *Handler) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "Streaming is not supported on this connection")
		return
	}

	alerts, cleanup, err := h.alertSvc.Subscribe(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to open alert stream")
		writeError(w, http.StatusServiceUnavailable, "stream_unavailable", "Realtime alerts are not available")
		return
	}
	defer cleanup()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case alert, open := <-alerts:
			if !open {
				return
			}
			data, err := json.Marshal(alert)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// recordAdminAction writes the admin's own operation into the ledger
func (h *Handler) recordAdminAction(r *http.Request, action, status, severity, target string, details map[string]interface{}) {
	userID, _ := r.Context().Value(middleware.UserIDKey).(string)
	role, _ := r.Context().Value(middleware.RoleKey).(string)

	h.auditSvc.Record(r.Context(), service.EventInput{
		Action:   action,
		Status:   status,
		Severity: severity,
		Source:   "security_api",
		Target:   target,
		UserID:   userID,
		Role:     role,
		Details:  details,
	})
}

func safeInt(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
