package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/dhruvbuilds/strategia-connect/internal/middleware"
	"github.com/dhruvbuilds/strategia-connect/internal/models"
	"github.com/dhruvbuilds/strategia-connect/internal/session"
	"github.com/dhruvbuilds/strategia-connect/internal/verify"
)

const (
	streamPingInterval = 30 * time.Second
	streamWriteWait    = 10 * time.Second
)

type SessionHandler struct {
	sessions      *session.Manager
	registry      *verify.Registry
	jwtSecret     string
	jwtExpiration time.Duration
	upgrader      websocket.Upgrader
}

func NewSessionHandler(sessions *session.Manager, registry *verify.Registry, jwtSecret string, jwtExpiration time.Duration, allowedOrigins []string) *SessionHandler {
	return &SessionHandler{
		sessions:      sessions,
		registry:      registry,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

type sessionResponse struct {
	Token string        `json:"token"`
	State session.State `json:"state"`
}

// CreateSession opens a fresh session and returns the token that names it.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	c, err := h.sessions.Create()
	if err != nil {
		writeError(w, "CreateSession", err)
		return
	}
	token, err := middleware.IssueToken(h.jwtSecret, c.ID(), h.jwtExpiration)
	if err != nil {
		log.Printf("[CreateSession] session=%s sign error=%v", c.ID(), err)
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to create session"))
		return
	}
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(sessionResponse{Token: token, State: c.State()}))
}

func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(c.State()))
}

// EndSession closes the session and forgets its cache.
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	sid := middleware.GetSessionID(r.Context())
	if _, ok := currentSession(w, r, h.sessions); !ok {
		return
	}
	if err := h.sessions.Drop(sid); err != nil {
		writeError(w, "EndSession", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]string{"message": "Session ended"}))
}

type navigateBody struct {
	View session.View `json:"view"`
}

func (h *SessionHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	var req navigateBody
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := c.Navigate(req.View); err != nil {
		writeError(w, "Navigate", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(c.State()))
}

type registryResponse struct {
	Interests []string                          `json:"interests"`
	Goals     []string                          `json:"goals"`
	Years     []string                          `json:"years"`
	Events    map[string]models.EventQuestions `json:"events"`
}

// GetRegistry returns the vocabularies the signup and feedback forms offer.
func (h *SessionHandler) GetRegistry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(registryResponse{
		Interests: h.registry.Interests,
		Goals:     h.registry.Goals,
		Years:     h.registry.Years,
		Events:    h.registry.Events,
	}))
}

func (h *SessionHandler) ListCommands(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(c.Commands()))
}

func (h *SessionHandler) RetryCommand(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	cmd, err := c.Retry(chi.URLParam(r, "commandId"))
	if err != nil {
		if err == session.ErrNotFound {
			writeError(w, "RetryCommand", err)
			return
		}
		writeJSON(w, http.StatusConflict, models.NewErrorResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusAccepted, models.NewSuccessResponse(cmd))
}

type streamMessage struct {
	Topic string         `json:"topic"`
	State *session.State `json:"state,omitempty"`
}

// Stream pushes a message per state change over a WebSocket. Clients refetch
// the topic they care about; session changes carry the new state inline.
func (h *SessionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Stream] session=%s upgrade error=%v", c.ID(), err)
		return
	}
	defer conn.Close()

	events, unsubscribe := c.Subscribe()
	defer unsubscribe()

	// Reads only serve to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(msg streamMessage) error {
		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		return conn.WriteJSON(msg)
	}

	st := c.State()
	if err := send(streamMessage{Topic: session.TopicSession, State: &st}); err != nil {
		return
	}

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(streamWriteWait))
				return
			}
			msg := streamMessage{Topic: ev.Topic}
			if ev.Topic == session.TopicSession {
				st := c.State()
				msg.State = &st
			}
			if err := send(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := map[string]bool{}
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
