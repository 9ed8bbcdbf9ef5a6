package session

import (
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dhruvbuilds/strategia-connect/internal/docstore"
	"github.com/dhruvbuilds/strategia-connect/internal/models"
	"github.com/dhruvbuilds/strategia-connect/internal/outbox"
)

// AdminLogin grants admin rights when code matches the configured hash.
func (c *Controller) AdminLogin(code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if len(c.deps.AdminCodeHash) == 0 || bcrypt.CompareHashAndPassword(c.deps.AdminCodeHash, []byte(code)) != nil {
		log.Printf("[session] admin login rejected session=%s", c.id)
		return ErrInvalidAdminCode
	}

	c.isAdmin = true
	c.cache.Set(keyIsAdmin, true)
	c.setViewLocked(ViewAdmin)
	log.Printf("[session] admin login session=%s", c.id)
	return nil
}

// AdminLogout drops admin rights and returns to the landing screen.
func (c *Controller) AdminLogout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isAdmin = false
	c.cache.Set(keyIsAdmin, false)
	c.setViewLocked(ViewLanding)
}

// Profiles lists every profile, flagged ones included.
func (c *Controller) Profiles() ([]models.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireAdminLocked(); err != nil {
		return nil, err
	}
	return c.profiles.List(), nil
}

func (c *Controller) Flagged() ([]models.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireAdminLocked(); err != nil {
		return nil, err
	}
	var out []models.Profile
	for _, p := range c.profiles.List() {
		if p.Flagged {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *Controller) Unflag(profileID string) (outbox.Command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireAdminLocked(); err != nil {
		return outbox.Command{}, err
	}
	p, ok := c.profiles.Get(profileID)
	if !ok {
		return outbox.Command{}, ErrNotFound
	}

	p.Flagged = false
	p.Reason = nil
	return c.out.Issue("unflagProfile", p.ID,
		[]docstore.Write{docstore.UpdateWrite(models.ProfilesCollection, p.ID, docstore.Data{"flagged": false, "reason": nil})},
		outbox.Put(c.profiles, p),
	), nil
}

// Remove deletes a profile. Ledger edges that reference it are left alone.
func (c *Controller) Remove(profileID string) (outbox.Command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireAdminLocked(); err != nil {
		return outbox.Command{}, err
	}
	if !c.profiles.Has(profileID) {
		return outbox.Command{}, ErrNotFound
	}

	log.Printf("[session] profile removed session=%s profile=%s", c.id, profileID)
	return c.out.Issue("removeProfile", profileID,
		[]docstore.Write{docstore.DeleteWrite(models.ProfilesCollection, profileID)},
		outbox.Remove(c.profiles, profileID),
	), nil
}

func (c *Controller) PostAnnouncement(message string) (models.Announcement, outbox.Command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireAdminLocked(); err != nil {
		return models.Announcement{}, outbox.Command{}, err
	}
	req := models.PostAnnouncementRequest{Message: message}
	if errs := req.Validate(); len(errs) > 0 {
		return models.Announcement{}, outbox.Command{}, fmt.Errorf("%w: %s", ErrInvalidInput, errs["message"])
	}

	a := models.Announcement{
		ID:        uuid.New().String(),
		Message:   strings.TrimSpace(message),
		Timestamp: c.deps.Now(),
	}
	cmd := c.out.Issue("postAnnouncement", a.ID,
		[]docstore.Write{docstore.PutWrite(models.AnnouncementsCollection, a.ID, withoutID(docstore.MustEncode(a)))},
		outbox.Put(c.announcements, a),
	)
	return a, cmd, nil
}

func (c *Controller) DeleteAnnouncement(id string) (outbox.Command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireAdminLocked(); err != nil {
		return outbox.Command{}, err
	}
	if !c.announcements.Has(id) {
		return outbox.Command{}, ErrNotFound
	}
	return c.out.Issue("deleteAnnouncement", id,
		[]docstore.Write{docstore.DeleteWrite(models.AnnouncementsCollection, id)},
		outbox.Remove(c.announcements, id),
	), nil
}

// Announcements is readable by everyone, newest first.
func (c *Controller) Announcements() []models.Announcement {
	return c.announcements.List()
}

// Feedbacks lists submitted feedback, newest first.
func (c *Controller) Feedbacks() ([]models.Feedback, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireAdminLocked(); err != nil {
		return nil, err
	}
	return c.feedbacks.List(), nil
}

// HasSubmittedFeedback reports whether the user already gave feedback.
func (c *Controller) HasSubmittedFeedback() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return false
	}
	_, dup := c.feedbackByLocked(c.user.Email)
	return dup
}
