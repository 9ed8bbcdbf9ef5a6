package verify

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dhruvbuilds/strategia-connect/internal/models"
)

// CoreMember is an organizer seeded into the profile list and the allowlist.
type CoreMember struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Email      string   `yaml:"email"`
	Phone      string   `yaml:"phone"`
	Role       string   `yaml:"role"`
	College    string   `yaml:"college"`
	Bio        string   `yaml:"bio"`
	Avatar     string   `yaml:"avatar"`
	LinkedIn   string   `yaml:"linkedin"`
	Interests  []string `yaml:"interests"`
	LookingFor []string `yaml:"lookingFor"`
}

func (c CoreMember) Profile() models.Profile {
	return models.Profile{
		ID:         c.ID,
		Kind:       models.KindCore,
		Name:       c.Name,
		Email:      c.Email,
		Phone:      c.Phone,
		College:    c.College,
		Year:       "Core Team",
		Bio:        c.Bio,
		LinkedIn:   c.LinkedIn,
		Avatar:     c.Avatar,
		Interests:  c.Interests,
		LookingFor: c.LookingFor,
		Visible:    models.VisibleAll,
		Verified:   true,
		Core:       &models.CoreInfo{Role: c.Role},
	}
}

// Registry is the per-event data loaded at startup: who may join, the
// organizers, tag vocabularies and feedback questions.
type Registry struct {
	CountryCode string                           `yaml:"countryCode"`
	Registrants []models.AllowlistEntry          `yaml:"registrants"`
	CoreTeam    []CoreMember                     `yaml:"coreTeam"`
	Interests   []string                         `yaml:"interests"`
	Goals       []string                         `yaml:"goals"`
	Years       []string                         `yaml:"years"`
	Events      map[string]models.EventQuestions `yaml:"events"`
}

func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}
	return ParseRegistry(data)
}

func ParseRegistry(data []byte) (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse registry file: %w", err)
	}
	if reg.CountryCode == "" {
		reg.CountryCode = "+91"
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Validate checks that the registry is usable.
func (r *Registry) Validate() error {
	if len(r.Registrants)+len(r.CoreTeam) == 0 {
		return fmt.Errorf("registry has no registrants")
	}
	for i, e := range r.Registrants {
		if e.Email == "" || e.Phone == "" {
			return fmt.Errorf("registrant %d: email and phone are required", i)
		}
	}
	seen := make(map[string]struct{}, len(r.CoreTeam))
	for _, c := range r.CoreTeam {
		if c.ID == "" {
			return fmt.Errorf("core member %q: id is required", c.Name)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("core member %q: duplicate id", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	if len(r.Interests) == 0 || len(r.Goals) == 0 {
		return fmt.Errorf("interests and goals are required")
	}
	return nil
}

// Allowlist returns registrants followed by the organizers.
func (r *Registry) Allowlist() []models.AllowlistEntry {
	out := make([]models.AllowlistEntry, 0, len(r.Registrants)+len(r.CoreTeam))
	out = append(out, r.Registrants...)
	for _, c := range r.CoreTeam {
		out = append(out, models.AllowlistEntry{Email: c.Email, Phone: c.Phone, Name: c.Name})
	}
	return out
}

func (r *Registry) CoreProfiles() []models.Profile {
	out := make([]models.Profile, 0, len(r.CoreTeam))
	for _, c := range r.CoreTeam {
		out = append(out, c.Profile())
	}
	return out
}

func (r *Registry) Verifier(delay time.Duration) *Verifier {
	return NewVerifier(r.Allowlist(), delay)
}
