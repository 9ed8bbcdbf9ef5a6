package models

import (
	"strings"
	"time"
)

type ProfileKind string

const (
	KindAttendee ProfileKind = "attendee"
	KindCore     ProfileKind = "core"
)

// Audience scopes who may discover a profile.
const (
	VisibleAll         = "all"
	VisibleConnections = "connections"
)

// CoreInfo carries the fields only organizers have.
type CoreInfo struct {
	Role string `json:"role"`
}

// Profile is one attendee (or organizer) record, stored at profiles/{id}.
type Profile struct {
	ID              string      `json:"id"`
	Kind            ProfileKind `json:"kind"`
	Name            string      `json:"name"`
	Email           string      `json:"email"`
	Phone           string      `json:"phone"`
	College         string      `json:"college"`
	Year            string      `json:"year"`
	Bio             string      `json:"bio"`
	LinkedIn        string      `json:"linkedin"`
	Avatar          string      `json:"avatar"`
	Interests       []string    `json:"interests"`
	LookingFor      []string    `json:"lookingFor"`
	Flagged         bool        `json:"flagged"`
	Reason          *string     `json:"reason"`
	ConnectionCount int         `json:"connectionCount"`
	Visible         string      `json:"visible"`
	Verified        bool        `json:"verified"`
	Core            *CoreInfo   `json:"core,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}

func (p *Profile) IsCore() bool {
	return p.Kind == KindCore
}

// Redacted returns a copy with contact details removed. Phone and LinkedIn are
// only revealed to mutual connections.
func (p Profile) Redacted() Profile {
	p.Phone = ""
	p.LinkedIn = ""
	return p
}

// HasInterest reports whether tag is one of the profile's interests.
func (p *Profile) HasInterest(tag string) bool {
	for _, i := range p.Interests {
		if i == tag {
			return true
		}
	}
	return false
}

type SignupRequest struct {
	Email      string   `json:"email"`
	Phone      string   `json:"phone"`
	College    string   `json:"college"`
	Year       string   `json:"year"`
	Interests  []string `json:"interests"`
	LookingFor []string `json:"lookingFor"`
	Bio        string   `json:"bio"`
	LinkedIn   string   `json:"linkedin"`
	Avatar     string   `json:"avatar"`
	Visible    string   `json:"visible"`
	Consent    bool     `json:"consent"`
}

// Validate checks the form against the registry vocabularies.
func (r *SignupRequest) Validate(interests, goals []string) map[string]string {
	errors := make(map[string]string)

	if strings.TrimSpace(r.Email) == "" {
		errors["email"] = "Email is required"
	}
	if strings.TrimSpace(r.Phone) == "" {
		errors["phone"] = "Phone is required"
	}
	if strings.TrimSpace(r.College) == "" {
		errors["college"] = "College is required"
	}
	if r.Year == "" {
		errors["year"] = "Year is required"
	}
	if len(r.Interests) == 0 {
		errors["interests"] = "Pick at least one interest"
	} else if bad := firstUnknown(r.Interests, interests); bad != "" {
		errors["interests"] = "Unknown interest: " + bad
	}
	if len(r.LookingFor) == 0 {
		errors["lookingFor"] = "Pick at least one goal"
	} else if bad := firstUnknown(r.LookingFor, goals); bad != "" {
		errors["lookingFor"] = "Unknown goal: " + bad
	}
	if r.Visible != "" && r.Visible != VisibleAll && r.Visible != VisibleConnections {
		errors["visible"] = "Visibility must be all or connections"
	}
	if !r.Consent {
		errors["consent"] = "Consent is required"
	}

	return errors
}

type UpdateSettingsRequest struct {
	Visible  *string `json:"visible"`
	Bio      *string `json:"bio"`
	LinkedIn *string `json:"linkedin"`
	Avatar   *string `json:"avatar"`
}

func firstUnknown(tags, vocabulary []string) string {
	allowed := make(map[string]struct{}, len(vocabulary))
	for _, v := range vocabulary {
		allowed[v] = struct{}{}
	}
	for _, t := range tags {
		if _, ok := allowed[t]; !ok {
			return t
		}
	}
	return ""
}
