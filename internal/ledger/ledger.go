package ledger

import (
	"log"
	"time"

	"github.com/dhruvbuilds/strategia-connect/internal/docstore"
	"github.com/dhruvbuilds/strategia-connect/internal/feed"
	"github.com/dhruvbuilds/strategia-connect/internal/models"
	"github.com/dhruvbuilds/strategia-connect/internal/outbox"
)

// State is the relationship between the signed-in user and another profile,
// seen from the user's side.
type State string

const (
	StateNone            State = "NONE"
	StateRequestSent     State = "REQUEST_SENT"
	StateRequestReceived State = "REQUEST_RECEIVED"
	StateConnected       State = "CONNECTED"
)

// Views are the three per-user collections the ledger reads and stages into.
type Views struct {
	Sent        *feed.View[models.RequestEdge]
	Received    *feed.View[models.RequestEdge]
	Connections *feed.View[models.ConnectionEdge]
}

func NewViews(uid string) Views {
	return Views{
		Sent:        feed.NewView[models.RequestEdge](models.LedgerPath(uid, models.SentRequests), requestKey, requestNewest),
		Received:    feed.NewView[models.RequestEdge](models.LedgerPath(uid, models.ReceivedRequests), requestKey, requestNewest),
		Connections: feed.NewView[models.ConnectionEdge](models.LedgerPath(uid, models.Connections), connectionKey, connectionNewest),
	}
}

func requestKey(e models.RequestEdge) string       { return e.ID }
func connectionKey(e models.ConnectionEdge) string { return e.ID }

func requestNewest(a, b models.RequestEdge) bool {
	return a.Timestamp.After(b.Timestamp)
}

func connectionNewest(a, b models.ConnectionEdge) bool {
	return a.ConnectedAt.After(b.ConnectedAt)
}

// Ledger runs the request/accept state machine for one signed-in user.
// Every transition writes both mirrors in one batch through the outbox and
// stages the user's own side locally. Transitions whose precondition does not
// hold are logged and skipped.
type Ledger struct {
	me    models.Profile
	views Views
	out   *outbox.Dispatcher
	now   func() time.Time
}

func New(me models.Profile, views Views, out *outbox.Dispatcher) *Ledger {
	return &Ledger{
		me:    me,
		views: views,
		out:   out,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for timestamps.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// SetMe refreshes the snapshot of the signed-in user written into new edges.
func (l *Ledger) SetMe(me models.Profile) {
	l.me = me
}

func (l *Ledger) Views() Views {
	return l.views
}

// State derives exactly one state for peerID. CONNECTED beats REQUEST_SENT
// beats REQUEST_RECEIVED.
func (l *Ledger) State(peerID string) State {
	switch {
	case l.views.Connections.Has(peerID):
		return StateConnected
	case l.views.Sent.Has(peerID):
		return StateRequestSent
	case l.views.Received.Has(peerID):
		return StateRequestReceived
	}
	return StateNone
}

// Send asks peer to connect.
func (l *Ledger) Send(peer models.Profile) (outbox.Command, bool) {
	if !l.allowed("send", peer, StateNone) {
		return outbox.Command{}, false
	}

	ts := l.now()
	mine := models.RequestEdge{Profile: peer.Redacted(), Timestamp: ts}
	theirs := models.RequestEdge{Profile: l.me.Redacted(), Timestamp: ts}

	writes := []docstore.Write{
		docstore.PutWrite(models.LedgerPath(l.me.ID, models.SentRequests), peer.ID, edgeData(mine)),
		docstore.PutWrite(models.LedgerPath(peer.ID, models.ReceivedRequests), l.me.ID, edgeData(theirs)),
	}
	return l.out.Issue("sendRequest", peer.ID, writes,
		outbox.Put(l.views.Sent, mine),
	), true
}

// Accept turns a received request into a connection on both sides. Both
// mirrors carry the same connectedAt.
func (l *Ledger) Accept(peer models.Profile) (outbox.Command, bool) {
	if !l.allowed("accept", peer, StateRequestReceived) {
		return outbox.Command{}, false
	}

	at := l.now()
	mine := models.ConnectionEdge{Profile: peer, ConnectedAt: at}
	theirs := models.ConnectionEdge{Profile: l.me, ConnectedAt: at}

	writes := []docstore.Write{
		docstore.PutWrite(models.LedgerPath(l.me.ID, models.Connections), peer.ID, edgeData(mine)),
		docstore.PutWrite(models.LedgerPath(peer.ID, models.Connections), l.me.ID, edgeData(theirs)),
		docstore.DeleteWrite(models.LedgerPath(l.me.ID, models.ReceivedRequests), peer.ID),
		docstore.DeleteWrite(models.LedgerPath(peer.ID, models.SentRequests), l.me.ID),
	}
	return l.out.Issue("acceptRequest", peer.ID, writes,
		outbox.Put(l.views.Connections, mine),
		outbox.Remove(l.views.Received, peer.ID),
	), true
}

func (l *Ledger) Decline(peer models.Profile) (outbox.Command, bool) {
	if !l.allowed("decline", peer, StateRequestReceived) {
		return outbox.Command{}, false
	}

	writes := []docstore.Write{
		docstore.DeleteWrite(models.LedgerPath(l.me.ID, models.ReceivedRequests), peer.ID),
		docstore.DeleteWrite(models.LedgerPath(peer.ID, models.SentRequests), l.me.ID),
	}
	return l.out.Issue("declineRequest", peer.ID, writes,
		outbox.Remove(l.views.Received, peer.ID),
	), true
}

func (l *Ledger) Cancel(peer models.Profile) (outbox.Command, bool) {
	if !l.allowed("cancel", peer, StateRequestSent) {
		return outbox.Command{}, false
	}

	writes := []docstore.Write{
		docstore.DeleteWrite(models.LedgerPath(l.me.ID, models.SentRequests), peer.ID),
		docstore.DeleteWrite(models.LedgerPath(peer.ID, models.ReceivedRequests), l.me.ID),
	}
	return l.out.Issue("cancelRequest", peer.ID, writes,
		outbox.Remove(l.views.Sent, peer.ID),
	), true
}

// Reconcile drops local request overlays for anyone the feed already reports
// as a connection.
func (l *Ledger) Reconcile() {
	for _, id := range l.views.Connections.IDs() {
		if !l.views.Connections.Confirmed(id) {
			continue
		}
		l.views.Sent.Discard(id)
		l.views.Received.Discard(id)
	}
}

func (l *Ledger) allowed(op string, peer models.Profile, want State) bool {
	if l.me.ID == "" || peer.ID == "" {
		log.Printf("[ledger] %s skipped: missing identity user=%q peer=%q", op, l.me.ID, peer.ID)
		return false
	}
	if peer.ID == l.me.ID {
		log.Printf("[ledger] %s skipped: self user=%s", op, l.me.ID)
		return false
	}
	if got := l.State(peer.ID); got != want {
		log.Printf("[ledger] %s skipped: user=%s peer=%s state=%s", op, l.me.ID, peer.ID, got)
		return false
	}
	return true
}

func edgeData(v interface{}) docstore.Data {
	d := docstore.MustEncode(v)
	delete(d, "id")
	return d
}
