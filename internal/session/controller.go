package session

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dhruvbuilds/strategia-connect/internal/docstore"
	"github.com/dhruvbuilds/strategia-connect/internal/feed"
	"github.com/dhruvbuilds/strategia-connect/internal/ledger"
	"github.com/dhruvbuilds/strategia-connect/internal/models"
	"github.com/dhruvbuilds/strategia-connect/internal/outbox"
	"github.com/dhruvbuilds/strategia-connect/internal/storage"
	"github.com/dhruvbuilds/strategia-connect/internal/verify"
)

type View string

const (
	ViewLanding    View = "landing"
	ViewSignup     View = "signup"
	ViewLogin      View = "login"
	ViewApp        View = "app"
	ViewAdminLogin View = "adminLogin"
	ViewAdmin      View = "admin"
	ViewPrivacy    View = "privacy"
	ViewTerms      View = "terms"
	ViewAbout      View = "about"
)

func (v View) Valid() bool {
	switch v {
	case ViewLanding, ViewSignup, ViewLogin, ViewApp, ViewAdminLogin, ViewAdmin, ViewPrivacy, ViewTerms, ViewAbout:
		return true
	}
	return false
}

// Cache keys. Sign-out clears the user, the view and the ledger sets.
const (
	keyView             = "view"
	keyUser             = "user"
	keyIsAdmin          = "isAdmin"
	keyConnections      = "connections"
	keySentRequests     = "sentRequests"
	keyReceivedRequests = "receivedRequests"
	keyFeedbacks        = "feedbacks"
	keyAnnouncements    = "announcements"
)

// FlagAlerter is told when a profile gets reported.
type FlagAlerter interface {
	ProfileFlagged(ctx context.Context, p models.Profile, reason string) error
}

// Deps are shared by every session.
type Deps struct {
	Store         docstore.Store
	Registry      *verify.Registry
	Verifier      *verify.Verifier
	AdminCodeHash []byte
	WriteTimeout  time.Duration
	Alerter       FlagAlerter
	Now           func() time.Time
}

// Controller is one client session: which screen it is on, who is signed in,
// the live feeds it watches and the local cache it persists to.
type Controller struct {
	id     string
	deps   Deps
	cache  *storage.Cache
	engine *feed.Engine
	out    *outbox.Dispatcher
	events *broadcaster

	profiles      *feed.View[models.Profile]
	announcements *feed.View[models.Announcement]
	feedbacks     *feed.View[models.Feedback]

	mu         sync.Mutex
	view       View
	user       *models.Profile
	isAdmin    bool
	verified   *models.AllowlistEntry
	ledger     *ledger.Ledger
	stopGlobal func()
	stopLedger func()
	closed     bool

	// gen changes on every sign-in and sign-out so callbacks from a previous
	// user's feeds are ignored.
	gen atomic.Int64
}

func newController(id string, deps Deps, cache *storage.Cache) *Controller {
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	out := outbox.NewDispatcher(deps.Store, deps.WriteTimeout)
	out.SetClock(deps.Now)

	c := &Controller{
		id:     id,
		deps:   deps,
		cache:  cache,
		engine: feed.NewEngine(deps.Store),
		out:    out,
		events: newBroadcaster(),
		view:   ViewLanding,
		profiles: feed.NewView[models.Profile](models.ProfilesCollection,
			func(p models.Profile) string { return p.ID }, profileOrder),
		announcements: feed.NewView[models.Announcement](models.AnnouncementsCollection,
			func(a models.Announcement) string { return a.ID },
			func(a, b models.Announcement) bool { return a.Timestamp.After(b.Timestamp) }),
		feedbacks: feed.NewView[models.Feedback](models.FeedbacksCollection,
			func(f models.Feedback) string { return f.ID },
			func(a, b models.Feedback) bool { return a.Timestamp.After(b.Timestamp) }),
	}
	if deps.Registry != nil {
		c.profiles.Seed(deps.Registry.CoreProfiles())
	}
	out.OnSettle(func(cmd outbox.Command) { c.events.publish(TopicCommands) })
	return c
}

// profileOrder lists organizers first, then attendees by join time.
func profileOrder(a, b models.Profile) bool {
	if a.IsCore() != b.IsCore() {
		return a.IsCore()
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (c *Controller) ID() string {
	return c.id
}

// start hydrates from the cache and opens the global feeds.
func (c *Controller) start() {
	c.profiles.OnChange(func() { c.events.publish(TopicProfiles) })
	c.announcements.OnChange(func() {
		c.cache.Set(keyAnnouncements, c.announcements.List())
		c.events.publish(TopicAnnouncements)
	})
	c.feedbacks.OnChange(func() {
		c.cache.Set(keyFeedbacks, c.feedbacks.List())
		c.events.publish(TopicFeedbacks)
	})

	c.mu.Lock()
	c.hydrateLocked()
	c.mu.Unlock()

	c.stopGlobal = c.engine.Start(context.Background(), c.profiles, c.announcements, c.feedbacks)
}

func (c *Controller) hydrateLocked() {
	var anns []models.Announcement
	if c.cache.Get(keyAnnouncements, &anns) {
		c.announcements.Load(anns)
	}
	var fbs []models.Feedback
	if c.cache.Get(keyFeedbacks, &fbs) {
		c.feedbacks.Load(fbs)
	}

	c.cache.Get(keyIsAdmin, &c.isAdmin)

	var user models.Profile
	if c.cache.Get(keyUser, &user) && user.ID != "" {
		c.signInLocked(user)
	}

	var view View
	if c.cache.Get(keyView, &view) && view.Valid() {
		c.view = view
	}
	if c.view == ViewApp && c.user == nil {
		c.view = ViewLanding
	}
	if c.view == ViewAdmin && !c.isAdmin {
		c.view = ViewAdminLogin
	}
}

// Close stops every feed and waits for in-flight writes. The cache is kept
// so the session can be resumed.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	stopLedger := c.stopLedger
	c.stopLedger = nil
	stopGlobal := c.stopGlobal
	c.mu.Unlock()

	if stopLedger != nil {
		stopLedger()
	}
	if stopGlobal != nil {
		stopGlobal()
	}
	c.out.Wait()
	c.events.closeAll()
}

// Subscribe returns a stream of change events and a function that ends it.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	return c.events.subscribe()
}

// State is what a client needs to render its current screen.
type State struct {
	ID               string                 `json:"id"`
	View             View                   `json:"view"`
	User             *models.Profile        `json:"user"`
	IsAdmin          bool                   `json:"isAdmin"`
	Verified         *models.AllowlistEntry `json:"verified,omitempty"`
	ConnectionCount  int                    `json:"connectionCount"`
	PendingRequests  int                    `json:"pendingRequests"`
	IncomingRequests int                    `json:"incomingRequests"`
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{ID: c.id, View: c.view, IsAdmin: c.isAdmin, Verified: c.verified}
	if c.user != nil {
		u := *c.user
		// The feed may carry newer moderation or avatar changes.
		if live, ok := c.profiles.Get(u.ID); ok {
			u = live
		}
		st.User = &u
	}
	if c.ledger != nil {
		v := c.ledger.Views()
		st.ConnectionCount = v.Connections.Len()
		st.PendingRequests = v.Sent.Len()
		st.IncomingRequests = v.Received.Len()
	}
	return st
}

// Navigate switches screens. The app requires a user and the admin screen
// requires admin rights.
func (c *Controller) Navigate(v View) error {
	if !v.Valid() {
		return ErrInvalidInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case v == ViewApp && c.user == nil:
		return ErrNotSignedIn
	case v == ViewAdmin && !c.isAdmin:
		return ErrNotAdmin
	}
	c.setViewLocked(v)
	return nil
}

func (c *Controller) setViewLocked(v View) {
	c.view = v
	c.cache.Set(keyView, v)
	c.events.publish(TopicSession)
}

// signInLocked makes p the current user and opens their ledger feeds. The
// cached ledger sets are only used when they belong to p.
func (c *Controller) signInLocked(p models.Profile) {
	if c.stopLedger != nil {
		c.stopLedger()
		c.stopLedger = nil
	}
	gen := c.gen.Add(1)

	views := ledger.NewViews(p.ID)
	var cached models.Profile
	if c.cache.Get(keyUser, &cached) && cached.ID == p.ID {
		var sent, received []models.RequestEdge
		var conns []models.ConnectionEdge
		if c.cache.Get(keySentRequests, &sent) {
			views.Sent.Load(sent)
		}
		if c.cache.Get(keyReceivedRequests, &received) {
			views.Received.Load(received)
		}
		if c.cache.Get(keyConnections, &conns) {
			views.Connections.Load(conns)
		}
	} else {
		c.cache.Delete(keyConnections, keySentRequests, keyReceivedRequests)
	}

	l := ledger.New(p, views, c.out)
	l.SetClock(c.deps.Now)

	live := func() bool { return c.gen.Load() == gen }
	views.Sent.OnChange(func() {
		if live() {
			c.cache.Set(keySentRequests, views.Sent.List())
			c.events.publish(TopicSentRequests)
		}
	})
	views.Received.OnChange(func() {
		if live() {
			c.cache.Set(keyReceivedRequests, views.Received.List())
			c.events.publish(TopicReceivedRequests)
		}
	})
	views.Connections.OnChange(func() {
		if live() {
			l.Reconcile()
			c.cache.Set(keyConnections, views.Connections.List())
			c.events.publish(TopicConnections)
		}
	})

	c.user = &p
	c.ledger = l
	c.cache.Set(keyUser, p)
	c.stopLedger = c.engine.Start(context.Background(), views.Sent, views.Received, views.Connections)
	log.Printf("[session] signed in session=%s user=%s", c.id, p.ID)
}

func (c *Controller) signOutLocked() {
	c.gen.Add(1)
	if c.stopLedger != nil {
		c.stopLedger()
		c.stopLedger = nil
	}
	if c.user != nil {
		log.Printf("[session] signed out session=%s user=%s", c.id, c.user.ID)
	}
	c.user = nil
	c.ledger = nil
	c.verified = nil
	c.view = ViewLanding
	c.cache.Delete(keyUser, keyView, keyConnections, keySentRequests, keyReceivedRequests)
	c.events.publish(TopicSession)
}

func (c *Controller) requireUserLocked() error {
	if c.closed {
		return ErrClosed
	}
	if c.user == nil || c.ledger == nil {
		return ErrNotSignedIn
	}
	return nil
}

func (c *Controller) requireAdminLocked() error {
	if c.closed {
		return ErrClosed
	}
	if !c.isAdmin {
		return ErrNotAdmin
	}
	return nil
}

// Commands lists this session's recent mutations with their status.
func (c *Controller) Commands() []outbox.Command {
	return c.out.List()
}

// Retry re-sends a failed mutation.
func (c *Controller) Retry(id string) (outbox.Command, error) {
	cmd, err := c.out.Retry(id)
	if err == outbox.ErrUnknownCommand {
		return cmd, ErrNotFound
	}
	return cmd, err
}

// Wait blocks until every issued write has settled. Used by tests and shutdown.
func (c *Controller) Wait() {
	c.out.Wait()
}
