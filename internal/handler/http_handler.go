package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pesio-ai/be-ap-approver-selection/internal/api"
	"github.com/pesio-ai/be-ap-approver-selection/internal/platform/errors"
	"github.com/pesio-ai/be-ap-approver-selection/internal/platform/logger"
	"github.com/pesio-ai/be-ap-approver-selection/internal/repository"
	"github.com/pesio-ai/be-ap-approver-selection/internal/selection"
)

// SelectionService is the service surface the handlers need.
type SelectionService interface {
	SelectApprover(ctx context.Context, req api.SelectApproverRequest) (selection.Result, error)
	GetWorkloadStats(ctx context.Context) ([]*repository.ApproverWorkloadStats, error)
	GetSelectionHistory(ctx context.Context, level, limit int) ([]*selection.AuditRecord, error)
	GetApproverSelectionHistory(ctx context.Context, approverID string, limit int) ([]*selection.AuditRecord, error)
	SummarizeSelections(ctx context.Context, window time.Duration) (time.Time, map[selection.Method]int, error)
	ListApprovalLevels(ctx context.Context) ([]*repository.ApprovalLevel, error)
	GetApprovalLevel(ctx context.Context, level int) (*repository.ApprovalLevel, error)
	GetApproverConfig(ctx context.Context, userID string, level int) (*repository.ApproverConfiguration, error)
	ConfigureApprover(ctx context.Context, req api.ApproverConfigRequest) (*repository.ApproverConfiguration, error)
	RemoveApproverConfig(ctx context.Context, userID string, level int) error
}

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	service SelectionService
	log     *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(service SelectionService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		service: service,
		log:     log,
	}
}

// Register mounts the approver routes on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/api/v1/approvers/select", h.SelectApprover)
	mux.HandleFunc("/api/v1/approvers/workload", h.GetWorkloadStats)
	mux.HandleFunc("/api/v1/approvers/selections", h.GetSelectionHistory)
	mux.HandleFunc("/api/v1/approvers/selections/summary", h.SummarizeSelections)
	mux.HandleFunc("/api/v1/approvers/levels", h.GetApprovalLevels)
	mux.HandleFunc("/api/v1/approvers/config", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetApproverConfig(w, r)
		case http.MethodPut:
			h.ConfigureApprover(w, r)
		case http.MethodDelete:
			h.RemoveApproverConfig(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})
}

// Health reports liveness.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// SelectApprover handles approver selection HTTP requests
func (h *HTTPHandler) SelectApprover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req api.SelectApproverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.service.SelectApprover(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.FromResult(res))
}

// GetWorkloadStats handles workload statistics HTTP requests
func (h *HTTPHandler) GetWorkloadStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats, err := h.service.GetWorkloadStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.FromWorkloadStats(stats))
}

// GetSelectionHistory handles selection log HTTP requests. approver_id
// selects one approver's history, otherwise level is required.
func (h *HTTPHandler) GetSelectionHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	var (
		records []*selection.AuditRecord
		err     error
	)
	if approverID := q.Get("approver_id"); approverID != "" {
		records, err = h.service.GetApproverSelectionHistory(r.Context(), approverID, limit)
	} else {
		level, convErr := strconv.Atoi(q.Get("level"))
		if convErr != nil {
			writeError(w, http.StatusBadRequest, "level or approver_id is required")
			return
		}
		records, err = h.service.GetSelectionHistory(r.Context(), level, limit)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"selections": api.FromAuditRecords(records),
	})
}

// SummarizeSelections handles per-method selection counts over ?window=
// (a duration such as 1h; default 24h).
func (h *HTTPHandler) SummarizeSelections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var window time.Duration
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "window must be a positive duration")
			return
		}
		window = d
	}

	since, counts, err := h.service.SummarizeSelections(r.Context(), window)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.FromMethodCounts(since, counts))
}

// GetApprovalLevels lists the configured tiers, or one tier with ?level=.
func (h *HTTPHandler) GetApprovalLevels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var (
		levels []*repository.ApprovalLevel
		err    error
	)
	if raw := r.URL.Query().Get("level"); raw != "" {
		level, convErr := strconv.Atoi(raw)
		if convErr != nil {
			writeError(w, http.StatusBadRequest, "level must be an integer")
			return
		}
		var l *repository.ApprovalLevel
		if l, err = h.service.GetApprovalLevel(r.Context(), level); err == nil {
			levels = []*repository.ApprovalLevel{l}
		}
	} else {
		levels, err = h.service.ListApprovalLevels(r.Context())
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"levels": api.FromApprovalLevels(levels),
	})
}

// GetApproverConfig handles reads of one approver's policy at a level
func (h *HTTPHandler) GetApproverConfig(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	level, err := strconv.Atoi(r.URL.Query().Get("level"))
	if userID == "" || err != nil {
		writeError(w, http.StatusBadRequest, "user_id and level are required")
		return
	}

	cfg, err := h.service.GetApproverConfig(r.Context(), userID, level)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.FromApproverConfig(cfg))
}

// ConfigureApprover handles approver configuration upserts
func (h *HTTPHandler) ConfigureApprover(w http.ResponseWriter, r *http.Request) {
	var req api.ApproverConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cfg, err := h.service.ConfigureApprover(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.FromApproverConfig(cfg))
}

// RemoveApproverConfig handles approver configuration deletes
func (h *HTTPHandler) RemoveApproverConfig(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	level, err := strconv.Atoi(r.URL.Query().Get("level"))
	if userID == "" || err != nil {
		writeError(w, http.StatusBadRequest, "user_id and level are required")
		return
	}

	if err := h.service.RemoveApproverConfig(r.Context(), userID, level); err != nil {
		h.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeError(w, status, errorMessage(err))
}

// errorMessage returns the client-facing message for err.
func errorMessage(err error) string {
	var e *errors.Error
	if errors.As(err, &e) {
		if e.Code == errors.ErrCodeInternal {
			return "internal error"
		}
		return e.Message
	}
	return "internal error"
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
