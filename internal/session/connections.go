package session

import (
	"github.com/dhruvbuilds/strategia-connect/internal/ledger"
	"github.com/dhruvbuilds/strategia-connect/internal/models"
	"github.com/dhruvbuilds/strategia-connect/internal/outbox"
)

// LedgerResult reports what a connection operation did. Issued is false when
// the relationship was not in the required state and nothing happened.
type LedgerResult struct {
	Issued  bool            `json:"issued"`
	State   ledger.State    `json:"state"`
	Command *outbox.Command `json:"command,omitempty"`
}

func (c *Controller) SendRequest(profileID string) (LedgerResult, error) {
	return c.ledgerOp(profileID, (*ledger.Ledger).Send)
}

func (c *Controller) AcceptRequest(profileID string) (LedgerResult, error) {
	return c.ledgerOp(profileID, (*ledger.Ledger).Accept)
}

func (c *Controller) DeclineRequest(profileID string) (LedgerResult, error) {
	return c.ledgerOp(profileID, (*ledger.Ledger).Decline)
}

func (c *Controller) CancelRequest(profileID string) (LedgerResult, error) {
	return c.ledgerOp(profileID, (*ledger.Ledger).Cancel)
}

func (c *Controller) ledgerOp(profileID string, op func(*ledger.Ledger, models.Profile) (outbox.Command, bool)) (LedgerResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireUserLocked(); err != nil {
		return LedgerResult{}, err
	}

	peer, ok := c.peerLocked(profileID)
	if !ok {
		return LedgerResult{}, ErrNotFound
	}
	cmd, issued := op(c.ledger, peer)
	res := LedgerResult{Issued: issued, State: c.ledger.State(profileID)}
	if issued {
		res.Command = &cmd
	}
	return res, nil
}

// peerLocked finds a counterpart in the profile feed, falling back to the
// snapshot held on a ledger edge for profiles that have since been removed.
func (c *Controller) peerLocked(id string) (models.Profile, bool) {
	if p, ok := c.profiles.Get(id); ok {
		return p, true
	}
	v := c.ledger.Views()
	if e, ok := v.Received.Get(id); ok {
		return e.Profile, true
	}
	if e, ok := v.Sent.Get(id); ok {
		return e.Profile, true
	}
	if e, ok := v.Connections.Get(id); ok {
		return e.Profile, true
	}
	return models.Profile{}, false
}

func (c *Controller) IsConnected(profileID string) bool {
	return c.StateOf(profileID) == ledger.StateConnected
}

func (c *Controller) IsPending(profileID string) bool {
	return c.StateOf(profileID) == ledger.StateRequestSent
}

func (c *Controller) HasIncomingRequest(profileID string) bool {
	return c.StateOf(profileID) == ledger.StateRequestReceived
}

// StateOf is the relationship with profileID, NONE when signed out.
func (c *Controller) StateOf(profileID string) ledger.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ledger == nil {
		return ledger.StateNone
	}
	return c.ledger.State(profileID)
}

// Connections lists accepted connections, newest first, with contact details.
func (c *Controller) Connections() ([]models.ConnectionEdge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireUserLocked(); err != nil {
		return nil, err
	}
	return c.ledger.Views().Connections.List(), nil
}

// SentRequests lists outgoing requests, newest first.
func (c *Controller) SentRequests() ([]models.RequestEdge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireUserLocked(); err != nil {
		return nil, err
	}
	return redactEdges(c.ledger.Views().Sent.List()), nil
}

// ReceivedRequests lists incoming requests, newest first.
func (c *Controller) ReceivedRequests() ([]models.RequestEdge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireUserLocked(); err != nil {
		return nil, err
	}
	return redactEdges(c.ledger.Views().Received.List()), nil
}

func redactEdges(edges []models.RequestEdge) []models.RequestEdge {
	for i := range edges {
		edges[i].Profile = edges[i].Profile.Redacted()
	}
	return edges
}
