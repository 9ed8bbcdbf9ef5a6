package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dhruvbuilds/strategia-connect/internal/models"
	"github.com/dhruvbuilds/strategia-connect/internal/session"
)

// AdminHandler is the organizer dashboard: moderation, announcements and
// feedback. Every call requires admin rights on the session.
type AdminHandler struct {
	sessions *session.Manager
}

func NewAdminHandler(sessions *session.Manager) *AdminHandler {
	return &AdminHandler{sessions: sessions}
}

func (h *AdminHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	profiles, err := c.Profiles()
	if err != nil {
		writeError(w, "AdminListProfiles", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(profiles))
}

func (h *AdminHandler) ListFlagged(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	profiles, err := c.Flagged()
	if err != nil {
		writeError(w, "AdminListFlagged", err)
		return
	}
	if profiles == nil {
		profiles = []models.Profile{}
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(profiles))
}

func (h *AdminHandler) Unflag(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	cmd, err := c.Unflag(chi.URLParam(r, "profileId"))
	if err != nil {
		writeError(w, "AdminUnflag", err)
		return
	}
	writeJSON(w, http.StatusAccepted, models.NewSuccessResponse(cmd))
}

func (h *AdminHandler) RemoveProfile(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	cmd, err := c.Remove(chi.URLParam(r, "profileId"))
	if err != nil {
		writeError(w, "AdminRemoveProfile", err)
		return
	}
	writeJSON(w, http.StatusAccepted, models.NewSuccessResponse(cmd))
}

func (h *AdminHandler) PostAnnouncement(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	var req models.PostAnnouncementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}
	a, cmd, err := c.PostAnnouncement(req.Message)
	if err != nil {
		writeError(w, "AdminPostAnnouncement", err)
		return
	}
	writeJSON(w, http.StatusAccepted, models.NewSuccessResponse(map[string]interface{}{
		"announcement": a,
		"command":      cmd,
	}))
}

func (h *AdminHandler) DeleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	cmd, err := c.DeleteAnnouncement(chi.URLParam(r, "announcementId"))
	if err != nil {
		writeError(w, "AdminDeleteAnnouncement", err)
		return
	}
	writeJSON(w, http.StatusAccepted, models.NewSuccessResponse(cmd))
}

func (h *AdminHandler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	fbs, err := c.Feedbacks()
	if err != nil {
		writeError(w, "AdminListFeedback", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(fbs))
}
