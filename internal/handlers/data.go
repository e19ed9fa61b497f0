package handlers

import (
	"net/http"

	logpkg "github.com/benvon/flowstate/internal/logger"
	"github.com/benvon/flowstate/internal/models"
	"github.com/benvon/flowstate/internal/tracker"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DataHandler moves a user's whole tracker state in and out
type DataHandler struct {
	registry *tracker.Registry
	sync     *StateSync
	logger   *zap.Logger
}

// NewDataHandler creates a new data handler
func NewDataHandler(registry *tracker.Registry, sync *StateSync, logger *zap.Logger) *DataHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataHandler{registry: registry, sync: sync, logger: logger}
}

// RegisterRoutes registers export, import and clear routes on a user-scoped router
func (h *DataHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/export", h.Export).Methods(http.MethodGet)
	r.HandleFunc("/import", h.Import).Methods(http.MethodPost)
	r.HandleFunc("", h.Clear).Methods(http.MethodDelete)
}

// Export returns the full tracker state. ?format=yaml renders a bare YAML document
// instead of the JSON envelope.
func (h *DataHandler) Export(w http.ResponseWriter, r *http.Request) {
	t, ok := resolveTracker(w, r, h.registry, h.logger)
	if !ok {
		return
	}

	payload := t.Export()
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		respondJSON(w, http.StatusOK, payload)
	case "yaml":
		out, err := yaml.Marshal(payload)
		if err != nil {
			h.logger.Error("failed_to_marshal_export_yaml", zap.Error(err))
			respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to export data")
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.Header().Set("Content-Disposition", `attachment; filename="flowstate-export.yaml"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
	default:
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "format must be json or yaml")
	}
}

// Import replaces the tracker state with a JSON or YAML export payload
func (h *DataHandler) Import(w http.ResponseWriter, r *http.Request) {
	t, ok := resolveTracker(w, r, h.registry, h.logger)
	if !ok {
		return
	}

	var payload models.ExportPayload
	if !decodeRequest(w, r, &payload, false) {
		return
	}

	if err := t.Store.Import(payload); err != nil {
		respondTrackerError(w, h.logger, r, err, "import_data")
		return
	}

	h.sync.Persist(r.Context(), t)
	integrity := t.Export().DataIntegrity
	h.logger.Info("data_imported",
		zap.String("user_id", logpkg.SanitizeUserID(t.UserID)),
		zap.Int("entries", integrity.TotalEntries),
		zap.Int("active_sessions", integrity.ActiveSessions),
	)
	respondJSON(w, http.StatusOK, integrity)
}

// Clear wipes the user's tracker state and everything persisted for it
func (h *DataHandler) Clear(w http.ResponseWriter, r *http.Request) {
	t, ok := resolveTracker(w, r, h.registry, h.logger)
	if !ok {
		return
	}

	if err := h.sync.Forget(r.Context(), t.UserID, t.Sessions.Clear); err != nil {
		h.logger.Error("failed_to_delete_persisted_data",
			zap.String("user_id", logpkg.SanitizeUserID(t.UserID)),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to clear data")
		return
	}

	h.logger.Info("data_cleared", zap.String("user_id", logpkg.SanitizeUserID(t.UserID)))
	respondJSON(w, http.StatusOK, map[string]any{"cleared": true})
}
