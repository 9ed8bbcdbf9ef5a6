package models

import "regexp"

var (
	emailPattern      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	localPhonePattern = regexp.MustCompile(`^\d{10}$`)
)

// AllowlistEntry is a pre-registered participant.
type AllowlistEntry struct {
	Email string `json:"email" yaml:"email"`
	Phone string `json:"phone" yaml:"phone"`
	Name  string `json:"name" yaml:"name"`
}

type VerifyRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Validate applies the form rules: both fields present, a plausible email and a
// ten digit local number (the country code is added server side).
func (r *VerifyRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if !emailPattern.MatchString(r.Email) {
		errors["email"] = "Invalid email"
	}
	if r.Phone == "" {
		errors["phone"] = "Phone is required"
	} else if !localPhonePattern.MatchString(r.Phone) {
		errors["phone"] = "Enter 10-digit mobile number"
	}

	return errors
}

type AdminLoginRequest struct {
	Code string `json:"code"`
}
