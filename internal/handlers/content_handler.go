package handlers

import (
	"net/http"

	"github.com/dhruvbuilds/strategia-connect/internal/models"
	"github.com/dhruvbuilds/strategia-connect/internal/session"
	"github.com/dhruvbuilds/strategia-connect/internal/verify"
)

// ContentHandler serves announcements and takes event feedback.
type ContentHandler struct {
	sessions *session.Manager
	registry *verify.Registry
}

func NewContentHandler(sessions *session.Manager, registry *verify.Registry) *ContentHandler {
	return &ContentHandler{sessions: sessions, registry: registry}
}

func (h *ContentHandler) ListAnnouncements(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(c.Announcements()))
}

func (h *ContentHandler) FeedbackStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]bool{
		"submitted": c.HasSubmittedFeedback(),
	}))
}

type feedbackResponse struct {
	Accepted bool        `json:"accepted"`
	Command  interface{} `json:"command,omitempty"`
}

func (h *ContentHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	var req models.SubmitFeedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(h.registry.Events); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}

	cmd, err := c.SubmitFeedback(req)
	if err != nil {
		writeError(w, "SubmitFeedback", err)
		return
	}
	if cmd == nil {
		writeJSON(w, http.StatusOK, models.NewSuccessResponse(feedbackResponse{Accepted: false}))
		return
	}
	writeJSON(w, http.StatusAccepted, models.NewSuccessResponse(feedbackResponse{Accepted: true, Command: cmd}))
}
