package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/dhruvbuilds/strategia-connect/internal/middleware"
	"github.com/dhruvbuilds/strategia-connect/internal/models"
	"github.com/dhruvbuilds/strategia-connect/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return false
	}
	return true
}

// writeError maps session errors onto HTTP statuses.
func writeError(w http.ResponseWriter, tag string, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Not found"))
	case errors.Is(err, session.ErrNotSignedIn):
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Sign in required"))
	case errors.Is(err, session.ErrNotAdmin):
		writeJSON(w, http.StatusForbidden, models.NewErrorResponse("Admin access required"))
	case errors.Is(err, session.ErrNotVerified):
		writeJSON(w, http.StatusForbidden, models.NewErrorResponse("Verify your registration first"))
	case errors.Is(err, session.ErrInvalidAdminCode):
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Invalid admin code"))
	case errors.Is(err, session.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse(err.Error()))
	case errors.Is(err, session.ErrClosed):
		writeJSON(w, http.StatusGone, models.NewErrorResponse("Session has ended"))
	default:
		log.Printf("[%s] error=%v", tag, err)
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Internal error"))
	}
}

// currentSession resolves the caller's session from the token in context.
func currentSession(w http.ResponseWriter, r *http.Request, sessions *session.Manager) (*session.Controller, bool) {
	sid := middleware.GetSessionID(r.Context())
	if sid == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return nil, false
	}
	c, err := sessions.Get(sid)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Session expired"))
			return nil, false
		}
		writeError(w, "Session", err)
		return nil, false
	}
	return c, true
}
