// Package httpapi exposes the conversation driver over a small JSON API.
package httpapi

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/spigell/cv-wizard/internal/fields"
	"github.com/spigell/cv-wizard/internal/wizard"
)

// Handler handles HTTP requests.
type Handler struct {
	driver  *wizard.Driver
	schemas map[fields.Channel]*fields.Schema
	newID   func() string
	logger  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

// sessionEntry guards a session so only one turn is in flight at a time.
type sessionEntry struct {
	turn    sync.Mutex
	session *wizard.Session
}

// NewHandler creates a handler. Schemas are derived once per channel from
// questions and shared by every session of that channel.
func NewHandler(driver *wizard.Driver, questions []fields.Question, newID func() string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		driver: driver,
		schemas: map[fields.Channel]*fields.Schema{
			fields.ChannelChat:  fields.DeriveSchema(questions, fields.ChannelChat),
			fields.ChannelVoice: fields.DeriveSchema(questions, fields.ChannelVoice),
		},
		newID:    newID,
		logger:   logger,
		sessions: make(map[string]*sessionEntry),
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/sessions", h.CreateSession)
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.POST("/v1/sessions/:session_id/turns", h.SubmitTurn)
	e.GET("/v1/schema", h.GetSchema)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) schema(channel fields.Channel) *fields.Schema {
	return h.schemas[channel]
}

func (h *Handler) lookup(sessionID string) (*sessionEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entry, ok := h.sessions[sessionID]
	return entry, ok
}

func (h *Handler) register(session *wizard.Session) *sessionEntry {
	entry := &sessionEntry{session: session}
	h.mu.Lock()
	h.sessions[session.ID] = entry
	h.mu.Unlock()
	return entry
}
