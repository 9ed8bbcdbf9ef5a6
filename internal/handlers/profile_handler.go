package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dhruvbuilds/strategia-connect/internal/models"
	"github.com/dhruvbuilds/strategia-connect/internal/session"
)

type ProfileHandler struct {
	sessions *session.Manager
}

func NewProfileHandler(sessions *session.Manager) *ProfileHandler {
	return &ProfileHandler{sessions: sessions}
}

// Discover lists profiles. Query: filter (all, core, mutual or an interest),
// q (search), page, pageSize.
func (h *ProfileHandler) Discover(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	query := r.URL.Query()
	q := session.DiscoverQuery{
		Filter: query.Get("filter"),
		Search: query.Get("q"),
	}
	if v := query.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Page = n
		}
	}
	if v := query.Get("pageSize"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n <= session.MaxPageSize {
			q.PageSize = n
		}
	}

	page, err := c.Discover(q)
	if err != nil {
		writeError(w, "Discover", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(page))
}

func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	card, err := c.Profile(chi.URLParam(r, "profileId"))
	if err != nil {
		writeError(w, "GetProfile", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(card))
}

func (h *ProfileHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	var req models.UpdateSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cmd, err := c.UpdateSettings(req)
	if err != nil {
		writeError(w, "UpdateSettings", err)
		return
	}
	writeJSON(w, http.StatusAccepted, models.NewSuccessResponse(cmd))
}

type flagBody struct {
	Reason string `json:"reason"`
}

func (h *ProfileHandler) Flag(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	var req flagBody
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Reason) > 500 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(map[string]string{"reason": "Reason is too long"}))
		return
	}
	cmd, err := c.Flag(chi.URLParam(r, "profileId"), req.Reason)
	if err != nil {
		writeError(w, "Flag", err)
		return
	}
	writeJSON(w, http.StatusAccepted, models.NewSuccessResponse(cmd))
}
