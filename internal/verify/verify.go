package verify

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/dhruvbuilds/strategia-connect/internal/models"
)

// Failure reasons reported when no allowlist row matches.
const (
	ReasonPhoneMismatch = "email matched, phone did not"
	ReasonEmailMismatch = "phone matched, email did not"
	ReasonNotListed     = "not in participant list"
)

type Status string

const (
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
)

type Result struct {
	Status Status                 `json:"status"`
	Reason string                 `json:"reason,omitempty"`
	Entry  *models.AllowlistEntry `json:"entry,omitempty"`
}

func (r Result) Verified() bool {
	return r.Status == StatusVerified
}

var phoneNoise = regexp.MustCompile(`[\s\-()]`)

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone strips whitespace, dashes and parentheses, then leading zeros.
func NormalizePhone(phone string) string {
	return strings.TrimLeft(phoneNoise.ReplaceAllString(phone, ""), "0")
}

// ApplyCountryCode prefixes a local number with code unless it already
// carries an international prefix.
func ApplyCountryCode(code, phone string) string {
	phone = strings.TrimSpace(phone)
	if code == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	return code + phone
}

// Verifier checks identities against an immutable allowlist.
type Verifier struct {
	entries []models.AllowlistEntry
	byEmail map[string]struct{}
	byPhone map[string]struct{}
	delay   time.Duration
}

func NewVerifier(entries []models.AllowlistEntry, delay time.Duration) *Verifier {
	v := &Verifier{
		entries: append([]models.AllowlistEntry(nil), entries...),
		byEmail: make(map[string]struct{}, len(entries)),
		byPhone: make(map[string]struct{}, len(entries)),
		delay:   delay,
	}
	for _, e := range entries {
		v.byEmail[NormalizeEmail(e.Email)] = struct{}{}
		v.byPhone[NormalizePhone(e.Phone)] = struct{}{}
	}
	return v
}

// Verify matches when both normalized fields equal the same row. The phone
// must already carry its country code.
func (v *Verifier) Verify(ctx context.Context, email, phone string) (Result, error) {
	if v.delay > 0 {
		select {
		case <-time.After(v.delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	ne, np := NormalizeEmail(email), NormalizePhone(phone)
	for i := range v.entries {
		e := v.entries[i]
		if NormalizeEmail(e.Email) == ne && NormalizePhone(e.Phone) == np {
			return Result{Status: StatusVerified, Entry: &e}, nil
		}
	}

	_, emailKnown := v.byEmail[ne]
	_, phoneKnown := v.byPhone[np]
	reason := ReasonNotListed
	switch {
	case emailKnown && !phoneKnown:
		reason = ReasonPhoneMismatch
	case phoneKnown && !emailKnown:
		reason = ReasonEmailMismatch
	}
	return Result{Status: StatusFailed, Reason: reason}, nil
}

// Len reports the number of allowlist rows.
func (v *Verifier) Len() int {
	return len(v.entries)
}
