package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tokenmeter/internal/export"
	"tokenmeter/internal/meter"
	"tokenmeter/internal/model"
)

// Handler holds dependencies for the HTTP API.
type Handler struct {
	svc    *meter.Service
	logger *zap.Logger
}

// New creates a new Handler.
func New(svc *meter.Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type errorResponse struct {
	Error     string `json:"error"`
	Stage     string `json:"stage,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// TrackUsage handles POST /api/usage.
func (h *Handler) TrackUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var raw model.RawUsage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if raw.RequestID == "" {
		raw.RequestID = uuid.NewString()
	}

	rec, err := h.svc.TrackUsage(r.Context(), raw)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// GetUsage handles GET /api/usage.
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	start, end, ok := parseWindow(w, r)
	if !ok {
		return
	}

	records, err := h.svc.GetUsage(r.Context(), userID, start, end)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if records == nil {
		records = []model.UsageRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

// GetAnalytics handles GET /api/analytics.
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	days := intQuery(r, "days", meter.DefaultWindowDays)

	summary, err := h.svc.GetAnalytics(r.Context(), userID, days)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// GetRecommendations handles GET /api/recommendations.
func (h *Handler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	recs, err := h.svc.GetRecommendations(r.Context(), userID, nil)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if recs == nil {
		recs = []model.Recommendation{}
	}

	writeJSON(w, http.StatusOK, recs)
}

// GetProjection handles GET /api/projection.
func (h *Handler) GetProjection(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	horizon := intQuery(r, "days", meter.DefaultHorizonDays)

	projection, err := h.svc.GetCostProjection(r.Context(), userID, horizon)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, projection)
}

// ExportUsage handles GET /api/export.
func (h *Handler) ExportUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	start, end, ok := parseWindow(w, r)
	if !ok {
		return
	}

	format := export.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = export.FormatJSON
	}

	out, err := h.svc.ExportUsage(r.Context(), userID, start, end, format)
	if err != nil {
		h.writeError(w, err)
		return
	}

	switch format {
	case export.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="usage.csv"`)
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.Write([]byte(out))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var invalid *meter.InvalidUsageError
	if errors.As(err, &invalid) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:     invalid.Error(),
			RequestID: invalid.RequestID,
			UserID:    invalid.UserID,
		})
		return
	}

	var stor *meter.StorageError
	if errors.As(err, &stor) {
		h.logger.Error("storage failure",
			zap.String("stage", stor.Stage),
			zap.String("request_id", stor.RequestID),
			zap.String("user_id", stor.UserID),
			zap.Error(stor.Err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:     "storage failure",
			Stage:     stor.Stage,
			RequestID: stor.RequestID,
			UserID:    stor.UserID,
		})
		return
	}

	h.logger.Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing user parameter"})
		return "", false
	}
	return userID, true
}

// parseWindow reads since/until date parameters (YYYY-MM-DD, inclusive),
// defaulting to the trailing 30 days.
func parseWindow(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -30)
	end := now

	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse("2006-01-02", since)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid since date, use YYYY-MM-DD"})
			return time.Time{}, time.Time{}, false
		}
		start = t
	}
	if until := r.URL.Query().Get("until"); until != "" {
		t, err := time.Parse("2006-01-02", until)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid until date, use YYYY-MM-DD"})
			return time.Time{}, time.Time{}, false
		}
		// Include the entire day
		end = t.Add(24*time.Hour - time.Second)
	}

	return start, end, true
}

func intQuery(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
