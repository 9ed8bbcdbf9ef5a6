package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

const MaxAnnouncementLength = 280

type Announcement struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type PostAnnouncementRequest struct {
	Message string `json:"message"`
}

func (r *PostAnnouncementRequest) Validate() map[string]string {
	errors := make(map[string]string)

	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		errors["message"] = "Message is required"
	} else if utf8.RuneCountInString(msg) > MaxAnnouncementLength {
		errors["message"] = "Message is too long"
	}

	return errors
}
