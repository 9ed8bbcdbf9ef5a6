package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dhruvbuilds/strategia-connect/internal/docstore"
	"github.com/dhruvbuilds/strategia-connect/internal/ledger"
	"github.com/dhruvbuilds/strategia-connect/internal/models"
	"github.com/dhruvbuilds/strategia-connect/internal/verify"
)

const testRegistry = `
countryCode: "+91"
registrants:
  - {email: demo@test.com, phone: "+911234567890", name: Demo User}
  - {email: priya@test.com, phone: "+919876543210", name: Priya Sharma}
  - {email: arjun@test.com, phone: "+919876543211", name: Arjun Menon}
coreTeam:
  - {id: core1, name: Arun Kumar, email: arun@strategia.com, phone: "+919876500001", role: Event Head, interests: [Finance]}
interests: [Fintech, EdTech, AI/ML, D2C, SaaS, Marketing, Finance]
goals: [Friends, Networking]
events:
  VentureX: {description: Pitching, q1: a, q2: b, q3: c}
`

const adminCode = "letmein"

type harness struct {
	store   *docstore.MemoryStore
	manager *Manager
	dir     string
	deps    Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg, err := verify.ParseRegistry([]byte(testRegistry))
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte(adminCode), bcrypt.MinCost)
	require.NoError(t, err)

	store := docstore.NewMemoryStore()
	deps := Deps{
		Store:         store,
		Registry:      reg,
		Verifier:      reg.Verifier(0),
		AdminCodeHash: hash,
		WriteTimeout:  time.Second,
	}
	dir := t.TempDir()
	m := NewManager(deps, dir)
	t.Cleanup(m.Close)
	return &harness{store: store, manager: m, dir: dir, deps: deps}
}

func (h *harness) session(t *testing.T) *Controller {
	t.Helper()
	c, err := h.manager.Create()
	require.NoError(t, err)
	return c
}

func signupRequest(email, phone string, interests ...string) models.SignupRequest {
	return models.SignupRequest{
		Email:      email,
		Phone:      phone,
		College:    "IIT Madras",
		Year:       "3rd Year",
		Interests:  interests,
		LookingFor: []string{"Networking"},
		Consent:    true,
	}
}

// signup verifies and creates a profile, waiting until the session's own
// feed has echoed it.
func (h *harness) signup(t *testing.T, c *Controller, email, phone string, interests ...string) models.Profile {
	t.Helper()
	res, err := c.Verify(context.Background(), email, phone)
	require.NoError(t, err)
	require.True(t, res.Verified(), res.Reason)

	out, err := c.Signup(signupRequest(email, phone, interests...))
	require.NoError(t, err)
	require.Equal(t, ViewApp, out.View)
	c.Wait()
	require.Eventually(t, func() bool { return c.profiles.Confirmed(out.Profile.ID) }, time.Second, 5*time.Millisecond)
	return *out.Profile
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestSignup_CreatesProfileAndSignsIn(t *testing.T) {
	h := newHarness(t)
	c := h.session(t)

	p := h.signup(t, c, "DEMO@test.com ", "1234567890", "AI/ML")
	assert.Equal(t, "Demo User", p.Name)
	assert.Equal(t, "+911234567890", p.Phone)
	assert.Equal(t, models.VisibleAll, p.Visible)
	assert.Equal(t, models.KindAttendee, p.Kind)

	st := c.State()
	assert.Equal(t, ViewApp, st.View)
	require.NotNil(t, st.User)
	assert.Equal(t, p.ID, st.User.ID)

	d, ok := h.store.Get(models.ProfilesCollection, p.ID)
	require.True(t, ok)
	assert.Equal(t, "Demo User", d["name"])
	assert.NotContains(t, d, "id")
}

func TestSignup_RequiresVerification(t *testing.T) {
	h := newHarness(t)
	c := h.session(t)

	_, err := c.Signup(signupRequest("demo@test.com", "1234567890", "SaaS"))
	assert.ErrorIs(t, err, ErrNotVerified)

	res, err := c.Verify(context.Background(), "demo@test.com", "1234567891")
	require.NoError(t, err)
	assert.Equal(t, verify.ReasonPhoneMismatch, res.Reason)
	_, err = c.Signup(signupRequest("demo@test.com", "1234567890", "SaaS"))
	assert.ErrorIs(t, err, ErrNotVerified)
}

func TestSignup_DuplicateEmailGoesToLogin(t *testing.T) {
	h := newHarness(t)
	h.signup(t, h.session(t), "demo@test.com", "1234567890", "SaaS")

	other := h.session(t)
	waitFor(t, func() bool { _, ok := other.profileByEmail("demo@test.com"); return ok })
	_, err := other.Verify(context.Background(), "demo@test.com", "1234567890")
	require.NoError(t, err)

	out, err := other.Signup(signupRequest("demo@test.com", "1234567890", "SaaS"))
	require.NoError(t, err)
	assert.True(t, out.Existing)
	assert.Equal(t, ViewLogin, out.View)
	assert.Equal(t, ViewLogin, other.State().View)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	c := h.session(t)

	res, err := c.Login(context.Background(), "demo@test.com", "1234567890")
	require.NoError(t, err)
	assert.Equal(t, LoginNoAccount, res.Status)

	res, err = c.Login(context.Background(), "nobody@test.com", "1234567890")
	require.NoError(t, err)
	assert.Equal(t, LoginFailed, res.Status)
	assert.Equal(t, verify.ReasonEmailMismatch, res.Reason)

	p := h.signup(t, h.session(t), "demo@test.com", "1234567890", "SaaS")
	waitFor(t, func() bool { return c.profiles.Has(p.ID) })

	res, err = c.Login(context.Background(), "demo@test.com", "1234567890")
	require.NoError(t, err)
	assert.Equal(t, LoginSignedIn, res.Status)
	assert.Equal(t, ViewApp, c.State().View)
}

func TestLogin_Organizer(t *testing.T) {
	h := newHarness(t)
	c := h.session(t)

	res, err := c.Login(context.Background(), "arun@strategia.com", "9876500001")
	require.NoError(t, err)
	require.Equal(t, LoginSignedIn, res.Status)
	assert.True(t, res.Profile.IsCore())
	assert.Equal(t, "Event Head", res.Profile.Core.Role)
}

func TestConnectionFlow_EndToEnd(t *testing.T) {
	h := newHarness(t)
	a := h.session(t)
	b := h.session(t)
	pa := h.signup(t, a, "demo@test.com", "1234567890", "AI/ML", "Fintech")
	pb := h.signup(t, b, "priya@test.com", "9876543210", "Fintech", "D2C")
	waitFor(t, func() bool { return a.profiles.Has(pb.ID) && b.profiles.Has(pa.ID) })

	res, err := a.SendRequest(pb.ID)
	require.NoError(t, err)
	assert.True(t, res.Issued)
	assert.Equal(t, ledger.StateRequestSent, res.State)
	assert.True(t, a.IsPending(pb.ID))

	again, err := a.SendRequest(pb.ID)
	require.NoError(t, err)
	assert.False(t, again.Issued)
	a.Wait()

	waitFor(t, func() bool { return b.HasIncomingRequest(pa.ID) })
	card, err := b.Profile(pa.ID)
	require.NoError(t, err)
	assert.Empty(t, card.Phone, "contact details hidden before connecting")

	res, err = b.AcceptRequest(pa.ID)
	require.NoError(t, err)
	require.True(t, res.Issued)
	assert.True(t, b.IsConnected(pa.ID))
	b.Wait()

	waitFor(t, func() bool { return a.IsConnected(pb.ID) })
	conns, err := a.Connections()
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, pb.Phone, conns[0].Phone)

	card, err = a.Profile(pb.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateConnected, card.State)
	assert.Equal(t, pb.Phone, card.Phone)
	assert.Equal(t, []string{"Fintech"}, card.MutualInterests)

	waitFor(t, func() bool {
		sent, err := a.SentRequests()
		return err == nil && len(sent) == 0
	})
	assert.Equal(t, 1, a.State().ConnectionCount)
}

func TestMutualInterests_UserOrder(t *testing.T) {
	h := newHarness(t)
	c := h.session(t)
	h.signup(t, c, "demo@test.com", "1234567890", "AI/ML", "Fintech")

	got := c.MutualInterests(models.Profile{Interests: []string{"Fintech", "D2C"}})
	assert.Equal(t, []string{"Fintech"}, got)
	assert.Empty(t, c.MutualInterests(models.Profile{Interests: []string{"D2C"}}))
}

func putProfile(t *testing.T, store docstore.Store, p models.Profile) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), models.ProfilesCollection, p.ID, profileData(p)))
}

func TestDiscover_FiltersAndVisibility(t *testing.T) {
	h := newHarness(t)
	now := time.Now().UTC()
	putProfile(t, h.store, models.Profile{ID: "p1", Kind: models.KindAttendee, Name: "Sneha Patel", College: "SRCC", Interests: []string{"D2C"}, Visible: models.VisibleAll, Phone: "+91111", CreatedAt: now})
	putProfile(t, h.store, models.Profile{ID: "p2", Kind: models.KindAttendee, Name: "Rahul K", College: "IIMB", Interests: []string{"Fintech"}, Visible: models.VisibleAll, CreatedAt: now.Add(time.Second)})
	putProfile(t, h.store, models.Profile{ID: "p3", Kind: models.KindAttendee, Name: "Hidden", Visible: models.VisibleConnections, CreatedAt: now})
	putProfile(t, h.store, models.Profile{ID: "p4", Kind: models.KindAttendee, Name: "Flagged", Flagged: true, Visible: models.VisibleAll, CreatedAt: now})

	c := h.session(t)
	me := h.signup(t, c, "demo@test.com", "1234567890", "Fintech")
	waitFor(t, func() bool { return c.profiles.Has("p4") })

	page, err := c.Discover(DiscoverQuery{})
	require.NoError(t, err)
	var ids []string
	for _, card := range page.Cards {
		ids = append(ids, card.ID)
		assert.NotEqual(t, me.ID, card.ID)
		assert.Empty(t, card.Phone)
	}
	assert.Equal(t, []string{"core1", "p1", "p2"}, ids)

	page, err = c.Discover(DiscoverQuery{Filter: FilterCore})
	require.NoError(t, err)
	require.Len(t, page.Cards, 1)
	assert.Equal(t, "core1", page.Cards[0].ID)

	page, err = c.Discover(DiscoverQuery{Filter: FilterMutual})
	require.NoError(t, err)
	require.Len(t, page.Cards, 1)
	assert.Equal(t, "p2", page.Cards[0].ID)

	page, err = c.Discover(DiscoverQuery{Filter: "D2C"})
	require.NoError(t, err)
	require.Len(t, page.Cards, 1)
	assert.Equal(t, "p1", page.Cards[0].ID)

	page, err = c.Discover(DiscoverQuery{Search: "snha"})
	require.NoError(t, err)
	require.Len(t, page.Cards, 1)
	assert.Equal(t, "p1", page.Cards[0].ID)

	page, err = c.Discover(DiscoverQuery{PageSize: 2, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Cards, 1)
	assert.False(t, page.HasMore)

	_, err = c.Profile("p3")
	assert.ErrorIs(t, err, ErrNotFound)

	page, err = c.Discover(DiscoverQuery{Page: 1 << 62, PageSize: 100})
	require.NoError(t, err)
	assert.Empty(t, page.Cards)
	assert.Equal(t, 3, page.Total)

	page, err = c.Discover(DiscoverQuery{Page: 2, PageSize: 1 << 62})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, page.PageSize)
	assert.Empty(t, page.Cards)
}

// gatedStore refuses ledger subscriptions under one user's namespace.
type gatedStore struct {
	*docstore.MemoryStore
	blocked string
}

func (s *gatedStore) Subscribe(ctx context.Context, collectionPath string) (<-chan docstore.Snapshot, error) {
	if strings.HasPrefix(collectionPath, s.blocked) {
		return nil, docstore.ErrUnavailable
	}
	return s.MemoryStore.Subscribe(ctx, collectionPath)
}

func TestLogin_SwitchingUserDropsPreviousLedger(t *testing.T) {
	h := newHarness(t)
	other := h.session(t)
	arjun := h.signup(t, h.session(t), "arjun@test.com", "9876543211", "SaaS")
	priya := h.signup(t, other, "priya@test.com", "9876543210", "Fintech")

	deps := h.deps
	deps.Store = &gatedStore{MemoryStore: h.store, blocked: "users/" + arjun.ID + "/"}
	m := NewManager(deps, t.TempDir())
	t.Cleanup(m.Close)
	c, err := m.Create()
	require.NoError(t, err)

	h.signup(t, c, "demo@test.com", "1234567890", "Fintech")
	waitFor(t, func() bool { return c.profiles.Has(priya.ID) && c.profiles.Has(arjun.ID) })
	_, err = c.SendRequest(priya.ID)
	require.NoError(t, err)
	c.Wait()
	waitFor(t, func() bool { return other.HasIncomingRequest(c.State().User.ID) })
	_, err = other.AcceptRequest(c.State().User.ID)
	require.NoError(t, err)
	other.Wait()
	waitFor(t, func() bool { return c.IsConnected(priya.ID) })

	res, err := c.Login(context.Background(), "arjun@test.com", "9876543211")
	require.NoError(t, err)
	require.Equal(t, LoginSignedIn, res.Status)
	assert.Equal(t, arjun.ID, c.State().User.ID)

	assert.False(t, c.IsConnected(priya.ID))
	assert.Equal(t, ledger.StateNone, c.StateOf(priya.ID))
	conns, err := c.Connections()
	require.NoError(t, err)
	assert.Empty(t, conns)
	card, err := c.Profile(priya.ID)
	require.NoError(t, err)
	assert.Empty(t, card.Phone)
	assert.Zero(t, c.State().ConnectionCount)
}

func TestLogout_KeepsSharedCache(t *testing.T) {
	h := newHarness(t)
	c := h.session(t)
	h.signup(t, c, "demo@test.com", "1234567890", "SaaS")
	require.NoError(t, h.store.Put(context.Background(), models.AnnouncementsCollection, "a1",
		docstore.Data{"message": "Lunch at 1", "timestamp": time.Now().UTC().Format(time.RFC3339)}))
	waitFor(t, func() bool { return len(c.Announcements()) == 1 })

	c.Logout()

	st := c.State()
	assert.Equal(t, ViewLanding, st.View)
	assert.Nil(t, st.User)
	keys := c.cache.Keys()
	assert.Contains(t, keys, keyAnnouncements)
	assert.NotContains(t, keys, keyUser)
	assert.NotContains(t, keys, keyConnections)
	assert.NotContains(t, keys, keySentRequests)

	_, err := c.SendRequest("core1")
	assert.ErrorIs(t, err, ErrNotSignedIn)
	assert.Equal(t, ledger.StateNone, c.StateOf("core1"))
}

func TestSession_ResumesFromCache(t *testing.T) {
	h := newHarness(t)
	c := h.session(t)
	p := h.signup(t, c, "demo@test.com", "1234567890", "SaaS")
	_, err := c.SendRequest("core1")
	require.NoError(t, err)
	c.Wait()
	waitFor(t, func() bool { return c.ledger.Views().Sent.Confirmed("core1") })
	id := c.ID()
	h.manager.Close()

	m2 := NewManager(h.deps, h.dir)
	defer m2.Close()
	resumed, err := m2.Get(id)
	require.NoError(t, err)

	st := resumed.State()
	assert.Equal(t, ViewApp, st.View)
	require.NotNil(t, st.User)
	assert.Equal(t, p.ID, st.User.ID)
	assert.True(t, resumed.IsPending("core1"))

	_, err = m2.Get("00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m2.Get("../../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFeedback_OnePerUser(t *testing.T) {
	h := newHarness(t)
	c := h.session(t)
	h.signup(t, c, "demo@test.com", "1234567890", "SaaS")

	req := models.SubmitFeedbackRequest{Event: "VentureX", EventRating: 5, JudgesRating: 4, VolunteersRating: 4, Q1Rating: 3, Q2Rating: 5, Q3Rating: 4}
	cmd, err := c.SubmitFeedback(req)
	require.NoError(t, err)
	require.NotNil(t, cmd)
	c.Wait()
	assert.True(t, c.HasSubmittedFeedback())

	cmd, err = c.SubmitFeedback(req)
	require.NoError(t, err)
	assert.Nil(t, cmd, "second submission ignored")

	require.NoError(t, c.AdminLogin(adminCode))
	fbs, err := c.Feedbacks()
	require.NoError(t, err)
	require.Len(t, fbs, 1)
	assert.Equal(t, 4, fbs[0].Rating)
	assert.Equal(t, "b", fbs[0].Q2)
}

func TestAdmin_Guards(t *testing.T) {
	h := newHarness(t)
	c := h.session(t)

	_, err := c.Flagged()
	assert.ErrorIs(t, err, ErrNotAdmin)
	_, _, err = c.PostAnnouncement("hi")
	assert.ErrorIs(t, err, ErrNotAdmin)
	assert.ErrorIs(t, c.Navigate(ViewAdmin), ErrNotAdmin)
	assert.ErrorIs(t, c.AdminLogin("wrong"), ErrInvalidAdminCode)

	require.NoError(t, c.AdminLogin(adminCode))
	assert.Equal(t, ViewAdmin, c.State().View)

	c.AdminLogout()
	assert.False(t, c.State().IsAdmin)
}

func TestAdmin_ModerationAndAnnouncements(t *testing.T) {
	h := newHarness(t)
	putProfile(t, h.store, models.Profile{ID: "p1", Kind: models.KindAttendee, Name: "Spam", Visible: models.VisibleAll})

	user := h.session(t)
	h.signup(t, user, "demo@test.com", "1234567890", "SaaS")
	waitFor(t, func() bool { return user.profiles.Has("p1") })
	_, err := user.Flag("core1", "spam")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = user.Flag("p1", "spam")
	require.NoError(t, err)
	user.Wait()

	admin := h.session(t)
	require.NoError(t, admin.AdminLogin(adminCode))
	waitFor(t, func() bool { f, _ := admin.Flagged(); return len(f) == 1 })
	flagged, _ := admin.Flagged()
	require.NotNil(t, flagged[0].Reason)
	assert.Equal(t, "spam", *flagged[0].Reason)

	_, err = admin.Unflag("p1")
	require.NoError(t, err)
	f, _ := admin.Flagged()
	assert.Empty(t, f, "unflag is visible immediately")
	admin.Wait()

	_, err = admin.Remove("p1")
	require.NoError(t, err)
	admin.Wait()
	_, ok := h.store.Get(models.ProfilesCollection, "p1")
	assert.False(t, ok)

	long := make([]byte, models.MaxAnnouncementLength+1)
	for i := range long {
		long[i] = 'x'
	}
	_, _, err = admin.PostAnnouncement(string(long))
	assert.ErrorIs(t, err, ErrInvalidInput)

	a, _, err := admin.PostAnnouncement("  Keynote moved to Hall B ")
	require.NoError(t, err)
	assert.Equal(t, "Keynote moved to Hall B", a.Message)
	admin.Wait()
	waitFor(t, func() bool { return len(user.Announcements()) == 1 })

	_, err = admin.DeleteAnnouncement(a.ID)
	require.NoError(t, err)
	admin.Wait()
	waitFor(t, func() bool { return len(user.Announcements()) == 0 })
}

func TestNavigate(t *testing.T) {
	h := newHarness(t)
	c := h.session(t)

	assert.ErrorIs(t, c.Navigate(ViewApp), ErrNotSignedIn)
	assert.ErrorIs(t, c.Navigate(View("nowhere")), ErrInvalidInput)
	require.NoError(t, c.Navigate(ViewPrivacy))
	assert.Equal(t, ViewPrivacy, c.State().View)
}

func TestUpdateSettings(t *testing.T) {
	h := newHarness(t)
	c := h.session(t)
	p := h.signup(t, c, "demo@test.com", "1234567890", "SaaS")

	vis := models.VisibleConnections
	bio := " Building things "
	_, err := c.UpdateSettings(models.UpdateSettingsRequest{Visible: &vis, Bio: &bio})
	require.NoError(t, err)
	c.Wait()

	d, ok := h.store.Get(models.ProfilesCollection, p.ID)
	require.True(t, ok)
	assert.Equal(t, models.VisibleConnections, d["visible"])
	assert.Equal(t, "Building things", d["bio"])

	bad := "friends"
	_, err = c.UpdateSettings(models.UpdateSettingsRequest{Visible: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEvents_PublishedOnChange(t *testing.T) {
	h := newHarness(t)
	c := h.session(t)
	events, cancel := c.Subscribe()
	defer cancel()

	require.NoError(t, c.Navigate(ViewTerms))
	select {
	case ev := <-events:
		assert.NotEmpty(t, ev.Topic)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
}
