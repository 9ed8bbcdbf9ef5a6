package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ErrImageRejected is returned when SafeSearch flags an image as unsafe.
var ErrImageRejected = errors.New("image rejected: violates community guidelines")

// ModerationResult holds the outcome of a moderation pass.
type ModerationResult struct {
	ProfileID   string
	Skipped     bool
	ApprovedURL string
}

// ModerationService runs SafeSearch on pending avatars. Safe ones are promoted
// out of pending/ and set on the profile; unsafe ones are deleted and the
// profile is flagged.
type ModerationService struct {
	detector SafeSearchDetector
	objects  ObjectStore
	actions  *ModerationActions
}

func NewModerationService(detector SafeSearchDetector, objects ObjectStore, actions *ModerationActions) *ModerationService {
	return &ModerationService{detector: detector, objects: objects, actions: actions}
}

// Moderate handles one finalized object. metadata may be nil, in which case it
// is read from the object itself.
func (m *ModerationService) Moderate(ctx context.Context, name string, metadata map[string]string) (*ModerationResult, error) {
	if !strings.HasPrefix(name, PendingPrefix) {
		log.Printf("[moderation] skipping non-pending object: name=%s", name)
		return &ModerationResult{Skipped: true}, nil
	}

	if metadata["profileId"] == "" {
		fetched, err := m.objects.Metadata(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("moderation: metadata: %w", err)
		}
		metadata = fetched
	}
	profileID := metadata["profileId"]
	if profileID == "" || metadata["type"] != avatarType {
		log.Printf("[moderation] skipping object without avatar metadata: name=%s metadata=%v", name, metadata)
		return &ModerationResult{Skipped: true}, nil
	}

	gcsURI := fmt.Sprintf("gs://%s/%s", m.objects.Bucket(), name)
	ss, err := m.detector.Detect(ctx, gcsURI)
	if err != nil {
		log.Printf("[moderation] SafeSearch error name=%s err=%v", name, err)
		return nil, fmt.Errorf("moderation: safesearch: %w", err)
	}
	log.Printf("[moderation] SafeSearch result name=%s adult=%s violence=%s racy=%s isUnsafe=%v",
		name, ss.Adult, ss.Violence, ss.Racy, ss.IsUnsafe())

	if ss.IsUnsafe() {
		if err := m.objects.Delete(ctx, name); err != nil {
			return nil, fmt.Errorf("moderation: delete: %w", err)
		}
		if err := m.actions.RejectAvatar(ctx, profileID); err != nil {
			log.Printf("[moderation] flag failed profile=%s err=%v", profileID, err)
		}
		return &ModerationResult{ProfileID: profileID}, ErrImageRejected
	}

	finalName := strings.TrimPrefix(name, PendingPrefix)
	token := uuid.New().String()
	approvedURL := firebaseDownloadURL(m.objects.Bucket(), finalName, token)

	md := map[string]string{
		"moderation":                    "approved",
		"firebaseStorageDownloadTokens": token,
	}
	if err := m.objects.Promote(ctx, name, finalName, md); err != nil {
		return nil, fmt.Errorf("moderation: promote: %w", err)
	}
	if err := m.actions.ApproveAvatar(ctx, profileID, approvedURL); err != nil {
		return nil, fmt.Errorf("moderation: apply avatar: %w", err)
	}

	log.Printf("[moderation] approved profile=%s url=%s", profileID, approvedURL)
	return &ModerationResult{ProfileID: profileID, ApprovedURL: approvedURL}, nil
}

func firebaseDownloadURL(bucket, objectName, token string) string {
	return fmt.Sprintf(
		"https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket,
		url.PathEscape(objectName),
		url.QueryEscape(token),
	)
}
