package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/benvon/flowstate/internal/database"
	logpkg "github.com/benvon/flowstate/internal/logger"
	"github.com/benvon/flowstate/internal/tracker"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	// DefaultTimeframeDays is the tag analytics window when none is requested
	DefaultTimeframeDays = 30
	// MaxTimeframeDays caps the tag analytics window
	MaxTimeframeDays = 3650

	dateLayout = "2006-01-02"
)

// AnalyticsHandler serves the read-only views over a user's tracker
type AnalyticsHandler struct {
	registry *tracker.Registry
	tagStats TagStatisticsStore
	logger   *zap.Logger
}

// NewAnalyticsHandler creates a new analytics handler. tagStats may be nil, in which
// case the stored rollup endpoint reports 404.
func NewAnalyticsHandler(registry *tracker.Registry, tagStats TagStatisticsStore, logger *zap.Logger) *AnalyticsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsHandler{registry: registry, tagStats: tagStats, logger: logger}
}

// RegisterRoutes registers analytics routes on a user-scoped router
func (h *AnalyticsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/summary/daily", h.DailySummary).Methods(http.MethodGet)
	r.HandleFunc("/tags", h.UserTags).Methods(http.MethodGet)
	r.HandleFunc("/tags/analytics", h.TagAnalytics).Methods(http.MethodGet)
	r.HandleFunc("/tags/statistics", h.TagStatistics).Methods(http.MethodGet)
	r.HandleFunc("/estimation-accuracy", h.EstimationAccuracy).Methods(http.MethodGet)
}

// DailySummary aggregates completed entries for ?date=YYYY-MM-DD (default: today).
// ?tz= names the IANA zone the day is evaluated in; UTC by default.
func (h *AnalyticsHandler) DailySummary(w http.ResponseWriter, r *http.Request) {
	t, ok := resolveTracker(w, r, h.registry, h.logger)
	if !ok {
		return
	}

	loc := time.UTC
	if tz := r.URL.Query().Get("tz"); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid tz")
			return
		}
		loc = parsed
	}

	date := t.Now().In(loc)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation(dateLayout, raw, loc)
		if err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "date must be formatted YYYY-MM-DD")
			return
		}
		date = parsed
	}

	respondJSON(w, http.StatusOK, t.Analytics.DailySummary(date))
}

// TagAnalytics aggregates the last ?timeframe_days= days by tag
func (h *AnalyticsHandler) TagAnalytics(w http.ResponseWriter, r *http.Request) {
	t, ok := resolveTracker(w, r, h.registry, h.logger)
	if !ok {
		return
	}

	days := DefaultTimeframeDays
	if raw := r.URL.Query().Get("timeframe_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "timeframe_days must be an integer")
			return
		}
		if parsed > MaxTimeframeDays {
			parsed = MaxTimeframeDays
		}
		days = parsed
	}

	analytics, err := t.Analytics.TagAnalytics(t.Now(), days)
	if err != nil {
		respondTrackerError(w, h.logger, r, err, "compute_tag_analytics")
		return
	}
	respondJSON(w, http.StatusOK, analytics)
}

// TagStatistics returns the rollup last stored by the worker
func (h *AnalyticsHandler) TagStatistics(w http.ResponseWriter, r *http.Request) {
	userID, ok := scopedUserID(w, r)
	if !ok {
		return
	}
	if h.tagStats == nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Tag statistics are not available")
		return
	}

	stats, err := h.tagStats.GetByUserID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, database.ErrTagStatisticsNotFound) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Tag statistics have not been computed yet")
			return
		}
		h.logger.Error("failed_to_get_tag_statistics",
			zap.String("user_id", logpkg.SanitizeUserID(userID)),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to retrieve tag statistics")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// EstimationAccuracy compares estimates with recorded durations
func (h *AnalyticsHandler) EstimationAccuracy(w http.ResponseWriter, r *http.Request) {
	t, ok := resolveTracker(w, r, h.registry, h.logger)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, t.Analytics.EstimationAccuracy())
}

// UserTags lists every main tag the user has used
func (h *AnalyticsHandler) UserTags(w http.ResponseWriter, r *http.Request) {
	t, ok := resolveTracker(w, r, h.registry, h.logger)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"tags": t.Analytics.UserTags()})
}
