package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/dhruvbuilds/strategia-connect/internal/models"
)

var ErrInvalidImage = errors.New("invalid image file")

const (
	PendingPrefix = "pending/"
	avatarType    = "avatar"
)

var avatarTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// IsValidImageType reports whether contentType is an accepted avatar format.
func IsValidImageType(contentType string) bool {
	_, ok := avatarTypes[contentType]
	return ok
}

// AvatarService stores uploaded avatars under pending/ until the moderation
// worker approves them.
type AvatarService struct {
	objects ObjectStore
}

func NewAvatarService(objects ObjectStore) *AvatarService {
	return &AvatarService{objects: objects}
}

func (s *AvatarService) Upload(ctx context.Context, profileID, filename, contentType string, file io.Reader) (*models.AvatarUploadResponse, error) {
	if profileID == "" || !IsValidImageType(contentType) {
		return nil, ErrInvalidImage
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = avatarTypes[contentType]
	}
	id := uuid.New().String()
	name := fmt.Sprintf("%savatars/%s/%s%s", PendingPrefix, profileID, id, ext)

	metadata := map[string]string{
		"profileId":  profileID,
		"type":       avatarType,
		"moderation": "pending",
	}
	if err := s.objects.Write(ctx, name, contentType, metadata, file); err != nil {
		log.Printf("[avatars] upload failed profile=%s error=%v", profileID, err)
		return nil, err
	}

	log.Printf("[avatars] uploaded profile=%s object=%s", profileID, name)
	return &models.AvatarUploadResponse{
		ID:         id,
		Path:       name,
		Filename:   filename,
		Moderation: "pending",
	}, nil
}
