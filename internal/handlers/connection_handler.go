package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dhruvbuilds/strategia-connect/internal/models"
	"github.com/dhruvbuilds/strategia-connect/internal/session"
)

type ConnectionHandler struct {
	sessions *session.Manager
}

func NewConnectionHandler(sessions *session.Manager) *ConnectionHandler {
	return &ConnectionHandler{sessions: sessions}
}

func (h *ConnectionHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	edges, err := c.Connections()
	if err != nil {
		writeError(w, "ListConnections", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(edges))
}

func (h *ConnectionHandler) ListSent(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	edges, err := c.SentRequests()
	if err != nil {
		writeError(w, "ListSent", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(edges))
}

func (h *ConnectionHandler) ListReceived(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	edges, err := c.ReceivedRequests()
	if err != nil {
		writeError(w, "ListReceived", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(edges))
}

type ledgerAction func(*session.Controller, string) (session.LedgerResult, error)

// Request, Accept, Decline and Cancel answer 202 when a write was issued and
// 200 when the relationship was not in the required state.
func (h *ConnectionHandler) Request(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "SendRequest", (*session.Controller).SendRequest)
}

func (h *ConnectionHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "AcceptRequest", (*session.Controller).AcceptRequest)
}

func (h *ConnectionHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "DeclineRequest", (*session.Controller).DeclineRequest)
}

func (h *ConnectionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "CancelRequest", (*session.Controller).CancelRequest)
}

func (h *ConnectionHandler) apply(w http.ResponseWriter, r *http.Request, tag string, action ledgerAction) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	res, err := action(c, chi.URLParam(r, "profileId"))
	if err != nil {
		writeError(w, tag, err)
		return
	}
	status := http.StatusOK
	if res.Issued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, models.NewSuccessResponse(res))
}
