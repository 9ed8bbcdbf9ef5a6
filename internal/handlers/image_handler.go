package handlers

import (
	"log"
	"net/http"

	"github.com/dhruvbuilds/strategia-connect/internal/models"
	"github.com/dhruvbuilds/strategia-connect/internal/services"
	"github.com/dhruvbuilds/strategia-connect/internal/session"
)

// ImageHandler accepts avatar photos. They land in the moderation queue and
// only replace the avatar once approved.
type ImageHandler struct {
	sessions  *session.Manager
	avatars   *services.AvatarService
	maxSizeMB int64
}

func NewImageHandler(sessions *session.Manager, avatars *services.AvatarService, maxSizeMB int64) *ImageHandler {
	return &ImageHandler{
		sessions:  sessions,
		avatars:   avatars,
		maxSizeMB: maxSizeMB,
	}
}

func (h *ImageHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	c, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	user := c.State().User
	if user == nil {
		writeError(w, "UploadAvatar", session.ErrNotSignedIn)
		return
	}
	if h.avatars == nil {
		writeJSON(w, http.StatusServiceUnavailable, models.NewErrorResponse("Photo uploads are not enabled"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxSizeMB*1024*1024)
	if err := r.ParseMultipartForm(h.maxSizeMB * 1024 * 1024); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("File too large or invalid form data"))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("No image file provided"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !services.IsValidImageType(contentType) {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid image type. Allowed: JPEG, PNG, GIF, WebP"))
		return
	}

	resp, err := h.avatars.Upload(r.Context(), user.ID, header.Filename, contentType, file)
	if err != nil {
		log.Printf("[UploadAvatar] profile=%s error=%v", user.ID, err)
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to upload image"))
		return
	}
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(resp))
}
