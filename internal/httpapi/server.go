// Package httpapi exposes the assistant over REST: a chat endpoint for
// dashboards and integrations that do not speak Matrix, plus health and
// device listing.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/atrium-labs/atrium/internal/inferrix"
)

// ChatService answers one user message within a conversation.
type ChatService interface {
	Answer(ctx context.Context, conversationID, message string) (string, error)
}

// DeviceDirectory lists known devices.
type DeviceDirectory interface {
	Snapshot(ctx context.Context) []inferrix.Device
}

// Handler carries the dependencies for all HTTP endpoints.
type Handler struct {
	chat    ChatService
	devices DeviceDirectory
	name    string
}

// NewHandler creates the endpoint handler. name identifies the service in
// health responses.
func NewHandler(name string, chat ChatService, devices DeviceDirectory) *Handler {
	return &Handler{chat: chat, devices: devices, name: name}
}

// NewRouter builds the HTTP router. An empty jwtSecret leaves the API open;
// deployments behind a gateway may prefer that.
func NewRouter(h *Handler, jwtSecret string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		if jwtSecret != "" {
			r.Use(JWTAuthMiddleware([]byte(jwtSecret)))
		}
		r.Post("/v1/chat", h.Chat)
		r.Get("/v1/devices", h.ListDevices)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": h.name,
	})
}

// ChatRequest is the POST /v1/chat body. ConversationID is optional; a new
// one is minted when absent so the caller can thread follow-ups.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

// ChatResponse is the POST /v1/chat reply.
type ChatResponse struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	reply, err := h.chat.Answer(ctx, req.ConversationID, req.Message)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		ConversationID: req.ConversationID,
		Reply:          reply,
	})
}

func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	if h.devices == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "device directory not configured")
		return
	}

	devices := h.devices.Snapshot(r.Context())

	typeFilter := strings.TrimSpace(r.URL.Query().Get("type"))
	if typeFilter != "" {
		filtered := devices[:0:0]
		for _, d := range devices {
			if strings.EqualFold(d.Type, typeFilter) {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"devices": devices})
}
