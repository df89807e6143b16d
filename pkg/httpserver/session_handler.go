package httpserver

import (
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-boxspread/internal/session"
	"go.uber.org/zap"
)

// SessionSource returns the status of the running market session, if any.
type SessionSource interface {
	SessionStatus() (session.Status, bool)
}

// SessionHandler serves the state of the active session.
type SessionHandler struct {
	source SessionSource
	logger *zap.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(source SessionSource, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{source: source, logger: logger}
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleSession handles GET /api/session.
func (h *SessionHandler) HandleSession(w http.ResponseWriter, _ *http.Request) {
	status, ok := h.source.SessionStatus()
	if !ok {
		h.write(w, http.StatusNotFound, ErrorResponse{Error: "no active session"})
		return
	}
	h.write(w, http.StatusOK, status)
}

func (h *SessionHandler) write(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}
