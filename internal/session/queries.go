package session

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/dhruvbuilds/strategia-connect/internal/ledger"
	"github.com/dhruvbuilds/strategia-connect/internal/models"
)

const (
	FilterAll    = "all"
	FilterCore   = "core"
	FilterMutual = "mutual"

	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Card is a profile as another attendee sees it.
type Card struct {
	models.Profile
	State           ledger.State `json:"state"`
	MutualInterests []string     `json:"mutualInterests"`
}

type DiscoverQuery struct {
	// Filter is "all", "core", "mutual" or an interest tag.
	Filter   string
	Search   string
	Page     int
	PageSize int
}

type DiscoverPage struct {
	Cards    []Card `json:"cards"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
	HasMore  bool   `json:"hasMore"`
}

// MutualInterests returns the user's interests that p shares, in the user's
// own order.
func (c *Controller) MutualInterests(p models.Profile) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mutualLocked(p)
}

func (c *Controller) mutualLocked(p models.Profile) []string {
	out := []string{}
	if c.user == nil {
		return out
	}
	for _, i := range c.user.Interests {
		if p.HasInterest(i) {
			out = append(out, i)
		}
	}
	return out
}

// Discover lists other attendees. Flagged profiles are hidden, profiles shown
// only to connections are hidden from everyone else, and contact details are
// removed unless the viewer is connected.
func (c *Controller) Discover(q DiscoverQuery) (DiscoverPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireUserLocked(); err != nil {
		return DiscoverPage{}, err
	}

	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	search := strings.TrimSpace(q.Search)

	type ranked struct {
		card Card
		rank int
	}
	var matches []ranked
	for _, p := range c.profiles.List() {
		if p.ID == c.user.ID || p.Flagged {
			continue
		}
		card := c.cardLocked(p)
		if !c.visibleLocked(card) {
			continue
		}
		if !matchesFilter(card, q.Filter) {
			continue
		}
		rank := 0
		if search != "" {
			rank = searchRank(search, p)
			if rank < 0 {
				continue
			}
		}
		matches = append(matches, ranked{card: card, rank: rank})
	}
	if search != "" {
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].rank < matches[j].rank })
	}

	page := DiscoverPage{Total: len(matches), Page: q.Page, PageSize: q.PageSize, Cards: []Card{}}
	pages := (len(matches) + q.PageSize - 1) / q.PageSize
	if q.Page <= pages {
		start := (q.Page - 1) * q.PageSize
		end := start + q.PageSize
		if end > len(matches) {
			end = len(matches)
		}
		for _, m := range matches[start:end] {
			page.Cards = append(page.Cards, m.card)
		}
		page.HasMore = end < len(matches)
	}
	return page, nil
}

// Profile returns one profile as the user sees it.
func (c *Controller) Profile(id string) (Card, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireUserLocked(); err != nil {
		return Card{}, err
	}

	if id == c.user.ID {
		p, ok := c.profiles.Get(id)
		if !ok {
			p = *c.user
		}
		return Card{Profile: p, State: ledger.StateNone, MutualInterests: []string{}}, nil
	}
	p, ok := c.profiles.Get(id)
	if !ok {
		return Card{}, ErrNotFound
	}
	card := c.cardLocked(p)
	if !c.visibleLocked(card) {
		return Card{}, ErrNotFound
	}
	return card, nil
}

func (c *Controller) cardLocked(p models.Profile) Card {
	state := c.ledger.State(p.ID)
	if state != ledger.StateConnected {
		p = p.Redacted()
	}
	return Card{Profile: p, State: state, MutualInterests: c.mutualLocked(p)}
}

// visibleLocked hides connection-only profiles from non-connections. Anyone
// with a pending request either way can still see the profile.
func (c *Controller) visibleLocked(card Card) bool {
	if card.Visible != models.VisibleConnections || card.IsCore() {
		return true
	}
	return card.State != ledger.StateNone
}

func matchesFilter(card Card, filter string) bool {
	switch filter {
	case "", FilterAll:
		return true
	case FilterCore:
		return card.IsCore()
	case FilterMutual:
		return len(card.MutualInterests) > 0
	default:
		return card.HasInterest(filter)
	}
}

// searchRank is the best fuzzy distance of search against the name, college
// and interests, or -1 when nothing matches.
func searchRank(search string, p models.Profile) int {
	best := -1
	targets := append([]string{p.Name, p.College}, p.Interests...)
	for _, t := range targets {
		if d := fuzzy.RankMatchFold(search, t); d >= 0 && (best < 0 || d < best) {
			best = d
		}
	}
	return best
}
