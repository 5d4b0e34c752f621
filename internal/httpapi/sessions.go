package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/spigell/cv-wizard/internal/fields"
	"github.com/spigell/cv-wizard/internal/logger"
	"github.com/spigell/cv-wizard/internal/reply"
	"github.com/spigell/cv-wizard/internal/wizard"
)

type createSessionRequest struct {
	Channel string `json:"channel"`
}

type submitTurnRequest struct {
	Text string `json:"text"`
}

type turnResponse struct {
	SessionID string       `json:"session_id"`
	Reply     *reply.Reply `json:"reply"`
	Finished  bool         `json:"finished"`
	Filled    int          `json:"filled"`
	Total     int          `json:"total"`
	SaveError string       `json:"save_error,omitempty"`
	Warning   string       `json:"warning,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// CreateSession starts a session and returns the opening question.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	channel := fields.ParseChannel(req.Channel)
	session := wizard.NewSession(h.newID(), channel, h.schema(channel))
	entry := h.register(session)

	h.logger.Info("session created", logger.SessionFields(session.ID, string(channel))...)

	return h.advance(c, entry, "", http.StatusCreated)
}

// SubmitTurn sends the user's answer and returns the next reply.
// POST /v1/sessions/:session_id/turns
func (h *Handler) SubmitTurn(c echo.Context) error {
	entry, ok := h.lookup(c.Param("session_id"))
	if !ok {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "session not found"})
	}

	var req submitTurnRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	return h.advance(c, entry, req.Text, http.StatusOK)
}

// GetSession returns the current session state.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	entry, ok := h.lookup(c.Param("session_id"))
	if !ok {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "session not found"})
	}
	if !entry.turn.TryLock() {
		return c.JSON(http.StatusConflict, errorResponse{Error: "turn_in_flight", SessionID: entry.session.ID})
	}
	defer entry.turn.Unlock()

	return c.JSON(http.StatusOK, entry.session)
}

func (h *Handler) advance(c echo.Context, entry *sessionEntry, text string, status int) error {
	if !entry.turn.TryLock() {
		return c.JSON(http.StatusConflict, errorResponse{Error: "turn_in_flight", SessionID: entry.session.ID})
	}
	defer entry.turn.Unlock()

	session := entry.session
	res, err := h.driver.AdvanceTurn(c.Request().Context(), session, text)
	if err != nil {
		return writeTurnError(c, session.ID, err)
	}

	filled, total := session.Progress()
	resp := turnResponse{
		SessionID: session.ID,
		Reply:     res.Reply,
		Finished:  res.Finished,
		Filled:    filled,
		Total:     total,
		Warning:   res.Warning,
	}
	if res.SaveErr != nil {
		resp.SaveError = "could not save your answer; the conversation can continue"
	}
	return c.JSON(status, resp)
}

func writeTurnError(c echo.Context, sessionID string, err error) error {
	resp := errorResponse{Error: err.Error(), SessionID: sessionID}

	var turnErr *wizard.TurnError
	if !errors.As(err, &turnErr) {
		return c.JSON(http.StatusInternalServerError, resp)
	}

	resp.Kind = string(turnErr.Kind)
	resp.Reason = turnErr.Reason
	resp.Retryable = turnErr.Retryable()

	switch turnErr.Kind {
	case wizard.KindSessionTerminated:
		resp.Error = "session already finished"
		return c.JSON(http.StatusConflict, resp)
	case wizard.KindUpstreamUnavailable:
		resp.Error = "assistant is unavailable, please try again"
		return c.JSON(http.StatusServiceUnavailable, resp)
	case wizard.KindExtractionFailed, wizard.KindContractViolation:
		resp.Error = "assistant produced unusable output"
		return c.JSON(http.StatusBadGateway, resp)
	default:
		return c.JSON(http.StatusInternalServerError, resp)
	}
}

type schemaResponse struct {
	Channel     fields.Channel    `json:"channel"`
	AllowedKeys []string          `json:"allowed_keys"`
	Rules       []fields.Rule     `json:"rules"`
	Hints       map[string]string `json:"hints"`
}

// GetSchema returns the field schema of a channel.
// GET /v1/schema?channel=chat
func (h *Handler) GetSchema(c echo.Context) error {
	channel := fields.ParseChannel(c.QueryParam("channel"))
	schema := h.schema(channel)

	allowed := schema.AllowedKeys()
	if allowed == nil {
		allowed = []string{}
	}
	rules := schema.Rules()
	if rules == nil {
		rules = []fields.Rule{}
	}

	h.logger.Debug("schema requested", zap.String(logger.FieldChannel, string(channel)), zap.Int("fields", schema.Len()))

	return c.JSON(http.StatusOK, schemaResponse{
		Channel:     channel,
		AllowedKeys: allowed,
		Rules:       rules,
		Hints:       schema.Hints(),
	})
}
