package services

import (
	"context"
	"errors"
	"log"

	"github.com/dhruvbuilds/strategia-connect/internal/docstore"
	"github.com/dhruvbuilds/strategia-connect/internal/models"
)

const AvatarRejectedReason = "Avatar rejected by automated moderation"

// ModerationActions applies moderation outcomes to profile documents.
type ModerationActions struct {
	Store docstore.Store
}

// ApproveAvatar points the profile at its approved avatar.
func (m *ModerationActions) ApproveAvatar(ctx context.Context, profileID, url string) error {
	err := m.Store.Update(ctx, models.ProfilesCollection, profileID, docstore.Data{"avatar": url})
	if errors.Is(err, docstore.ErrNotFound) {
		log.Printf("[moderation] profile gone, avatar not applied profile=%s", profileID)
		return nil
	}
	return err
}

// RejectAvatar flags the profile for the organizers to review. The current
// avatar is left as it was.
func (m *ModerationActions) RejectAvatar(ctx context.Context, profileID string) error {
	err := m.Store.Update(ctx, models.ProfilesCollection, profileID, docstore.Data{
		"flagged": true,
		"reason":  AvatarRejectedReason,
	})
	if errors.Is(err, docstore.ErrNotFound) {
		log.Printf("[moderation] profile gone, nothing to flag profile=%s", profileID)
		return nil
	}
	return err
}
