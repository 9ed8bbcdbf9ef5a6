package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dhruvbuilds/strategia-connect/internal/docstore"
	"github.com/dhruvbuilds/strategia-connect/internal/models"
	"github.com/dhruvbuilds/strategia-connect/internal/outbox"
	"github.com/dhruvbuilds/strategia-connect/internal/verify"
)

const defaultAvatar = "👤"

// Verify checks a local phone number and email against the allowlist. A match
// is remembered so that Signup can proceed.
func (c *Controller) Verify(ctx context.Context, email, phone string) (verify.Result, error) {
	res, err := c.deps.Verifier.Verify(ctx, email, verify.ApplyCountryCode(c.deps.Registry.CountryCode, phone))
	if err != nil {
		return res, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if res.Verified() {
		c.verified = res.Entry
	} else {
		c.verified = nil
	}
	c.events.publish(TopicSession)
	return res, nil
}

type SignupResult struct {
	View    View            `json:"view"`
	Profile *models.Profile `json:"profile,omitempty"`
	Command *outbox.Command `json:"command,omitempty"`
	// Existing is set when the email already has a profile and the session
	// was sent to the login screen instead.
	Existing bool `json:"existing"`
}

// Signup creates a profile for the verified identity and signs it in.
func (c *Controller) Signup(req models.SignupRequest) (SignupResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return SignupResult{}, ErrClosed
	}

	entry := c.verified
	phone := verify.ApplyCountryCode(c.deps.Registry.CountryCode, req.Phone)
	if entry == nil ||
		verify.NormalizeEmail(entry.Email) != verify.NormalizeEmail(req.Email) ||
		verify.NormalizePhone(entry.Phone) != verify.NormalizePhone(phone) {
		return SignupResult{}, ErrNotVerified
	}

	if _, ok := c.profileByEmail(req.Email); ok {
		log.Printf("[session] signup redirected to login session=%s email=%s", c.id, verify.NormalizeEmail(req.Email))
		c.setViewLocked(ViewLogin)
		return SignupResult{View: ViewLogin, Existing: true}, nil
	}

	visible := req.Visible
	if visible == "" {
		visible = models.VisibleAll
	}
	avatar := req.Avatar
	if avatar == "" {
		avatar = defaultAvatar
	}
	p := models.Profile{
		ID:         uuid.New().String(),
		Kind:       models.KindAttendee,
		Name:       entry.Name,
		Email:      strings.TrimSpace(req.Email),
		Phone:      phone,
		College:    strings.TrimSpace(req.College),
		Year:       req.Year,
		Bio:        strings.TrimSpace(req.Bio),
		LinkedIn:   strings.TrimSpace(req.LinkedIn),
		Avatar:     avatar,
		Interests:  req.Interests,
		LookingFor: req.LookingFor,
		Visible:    visible,
		Verified:   true,
		CreatedAt:  c.deps.Now(),
	}

	cmd := c.out.Issue("createProfile", p.ID,
		[]docstore.Write{docstore.PutWrite(models.ProfilesCollection, p.ID, profileData(p))},
		outbox.Put(c.profiles, p),
	)

	c.verified = nil
	c.signInLocked(p)
	c.setViewLocked(ViewApp)
	log.Printf("[session] profile created session=%s user=%s", c.id, p.ID)
	return SignupResult{View: ViewApp, Profile: &p, Command: &cmd}, nil
}

const (
	LoginSignedIn  = "signed-in"
	LoginFailed    = "failed"
	LoginNoAccount = "no-account"
)

type LoginResult struct {
	Status  string          `json:"status"`
	Reason  string          `json:"reason,omitempty"`
	Profile *models.Profile `json:"profile,omitempty"`
}

// Login verifies the identity and signs in its existing profile.
func (c *Controller) Login(ctx context.Context, email, phone string) (LoginResult, error) {
	res, err := c.Verify(ctx, email, phone)
	if err != nil {
		return LoginResult{}, err
	}
	if !res.Verified() {
		return LoginResult{Status: LoginFailed, Reason: res.Reason}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return LoginResult{}, ErrClosed
	}

	p, ok := c.profileByEmail(email)
	if !ok {
		return LoginResult{Status: LoginNoAccount}, nil
	}
	c.verified = nil
	c.signInLocked(p)
	c.setViewLocked(ViewApp)
	return LoginResult{Status: LoginSignedIn, Profile: &p}, nil
}

// Logout ends the signed-in session. Shared data (feedback and announcements)
// stays cached.
func (c *Controller) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signOutLocked()
}

// UpdateSettings changes the editable parts of the user's own profile.
func (c *Controller) UpdateSettings(req models.UpdateSettingsRequest) (outbox.Command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireUserLocked(); err != nil {
		return outbox.Command{}, err
	}

	p := *c.user
	if live, ok := c.profiles.Get(p.ID); ok {
		p = live
	}
	fields := docstore.Data{}
	if req.Visible != nil {
		if *req.Visible != models.VisibleAll && *req.Visible != models.VisibleConnections {
			return outbox.Command{}, fmt.Errorf("%w: visible", ErrInvalidInput)
		}
		p.Visible = *req.Visible
		fields["visible"] = p.Visible
	}
	if req.Bio != nil {
		p.Bio = strings.TrimSpace(*req.Bio)
		fields["bio"] = p.Bio
	}
	if req.LinkedIn != nil {
		p.LinkedIn = strings.TrimSpace(*req.LinkedIn)
		fields["linkedin"] = p.LinkedIn
	}
	if req.Avatar != nil {
		p.Avatar = *req.Avatar
		fields["avatar"] = p.Avatar
	}
	if len(fields) == 0 {
		return outbox.Command{}, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}

	// Organizer profiles come from the registry and may not exist remotely yet.
	write := docstore.UpdateWrite(models.ProfilesCollection, p.ID, fields)
	if p.IsCore() {
		write = docstore.PutWrite(models.ProfilesCollection, p.ID, profileData(p))
	}
	cmd := c.out.Issue("updateSettings", p.ID, []docstore.Write{write}, outbox.Put(c.profiles, p))

	c.user = &p
	c.ledger.SetMe(p)
	c.cache.Set(keyUser, p)
	c.events.publish(TopicSession)
	return cmd, nil
}

// Flag reports a profile to the organizers.
func (c *Controller) Flag(profileID, reason string) (outbox.Command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireUserLocked(); err != nil {
		return outbox.Command{}, err
	}
	if profileID == c.user.ID {
		return outbox.Command{}, fmt.Errorf("%w: cannot report yourself", ErrInvalidInput)
	}
	p, ok := c.profiles.Get(profileID)
	if !ok {
		return outbox.Command{}, ErrNotFound
	}
	// Organizer profiles come from the registry and cannot be moderated.
	if p.IsCore() {
		return outbox.Command{}, fmt.Errorf("%w: organizers cannot be reported", ErrInvalidInput)
	}

	reason = strings.TrimSpace(reason)
	p.Flagged = true
	p.Reason = &reason
	cmd := c.out.Issue("flagProfile", p.ID,
		[]docstore.Write{docstore.UpdateWrite(models.ProfilesCollection, p.ID, docstore.Data{"flagged": true, "reason": reason})},
		outbox.Put(c.profiles, p),
	)
	log.Printf("[session] profile flagged session=%s by=%s profile=%s", c.id, c.user.ID, p.ID)

	if c.deps.Alerter != nil {
		go func(p models.Profile) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.deps.Alerter.ProfileFlagged(ctx, p, reason); err != nil {
				log.Printf("[session] flag alert failed profile=%s error=%v", p.ID, err)
			}
		}(p)
	}
	return cmd, nil
}

// SubmitFeedback records the user's event feedback. A second submission from
// the same email is ignored and reported as not accepted.
func (c *Controller) SubmitFeedback(req models.SubmitFeedbackRequest) (*outbox.Command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireUserLocked(); err != nil {
		return nil, err
	}
	q, ok := c.deps.Registry.Events[req.Event]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event", ErrInvalidInput)
	}

	if _, dup := c.feedbackByLocked(c.user.Email); dup {
		log.Printf("[session] duplicate feedback ignored session=%s user=%s", c.id, c.user.ID)
		return nil, nil
	}

	fb := req.Build(c.user, q)
	fb.ID = uuid.New().String()
	fb.Timestamp = c.deps.Now()
	cmd := c.out.Issue("submitFeedback", fb.ID,
		[]docstore.Write{docstore.PutWrite(models.FeedbacksCollection, fb.ID, withoutID(docstore.MustEncode(fb)))},
		outbox.Put(c.feedbacks, fb),
	)
	return &cmd, nil
}

func (c *Controller) feedbackByLocked(email string) (models.Feedback, bool) {
	want := verify.NormalizeEmail(email)
	for _, f := range c.feedbacks.List() {
		if verify.NormalizeEmail(f.UserEmail) == want {
			return f, true
		}
	}
	return models.Feedback{}, false
}

func (c *Controller) profileByEmail(email string) (models.Profile, bool) {
	want := verify.NormalizeEmail(email)
	for _, p := range c.profiles.List() {
		if verify.NormalizeEmail(p.Email) == want {
			return p, true
		}
	}
	return models.Profile{}, false
}

func profileData(p models.Profile) docstore.Data {
	return withoutID(docstore.MustEncode(p))
}

func withoutID(d docstore.Data) docstore.Data {
	delete(d, "id")
	return d
}
