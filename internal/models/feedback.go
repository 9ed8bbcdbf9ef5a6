package models

import (
	"math"
	"strings"
	"time"
)

type Feedback struct {
	ID               string    `json:"id"`
	UserEmail        string    `json:"userEmail"`
	UserName         string    `json:"userName"`
	Event            string    `json:"event"`
	EventRating      int       `json:"eventRating"`
	JudgesRating     int       `json:"judgesRating"`
	VolunteersRating int       `json:"volunteersRating"`
	Q1               string    `json:"q1"`
	Q1Rating         int       `json:"q1Rating"`
	Q2               string    `json:"q2"`
	Q2Rating         int       `json:"q2Rating"`
	Q3               string    `json:"q3"`
	Q3Rating         int       `json:"q3Rating"`
	Improvement      string    `json:"improvement"`
	Rating           int       `json:"rating"`
	Timestamp        time.Time `json:"timestamp"`
}

// EventQuestions are the three event-specific prompts shown with a feedback form.
type EventQuestions struct {
	Description string `json:"description" yaml:"description"`
	Q1          string `json:"q1" yaml:"q1"`
	Q2          string `json:"q2" yaml:"q2"`
	Q3          string `json:"q3" yaml:"q3"`
}

type SubmitFeedbackRequest struct {
	Event            string `json:"event"`
	EventRating      int    `json:"eventRating"`
	JudgesRating     int    `json:"judgesRating"`
	VolunteersRating int    `json:"volunteersRating"`
	Q1Rating         int    `json:"q1Rating"`
	Q2Rating         int    `json:"q2Rating"`
	Q3Rating         int    `json:"q3Rating"`
	Improvement      string `json:"improvement"`
}

func (r *SubmitFeedbackRequest) Validate(events map[string]EventQuestions) map[string]string {
	errors := make(map[string]string)

	if _, ok := events[r.Event]; !ok {
		errors["event"] = "Unknown event"
	}
	ratings := map[string]int{
		"eventRating":      r.EventRating,
		"judgesRating":     r.JudgesRating,
		"volunteersRating": r.VolunteersRating,
		"q1Rating":         r.Q1Rating,
		"q2Rating":         r.Q2Rating,
		"q3Rating":         r.Q3Rating,
	}
	for field, v := range ratings {
		if v < 1 || v > 5 {
			errors[field] = "Rating must be between 1 and 5"
		}
	}

	return errors
}

// Build fills in the questions and the derived overall rating.
func (r *SubmitFeedbackRequest) Build(user *Profile, q EventQuestions) Feedback {
	sum := r.EventRating + r.JudgesRating + r.VolunteersRating + r.Q1Rating + r.Q2Rating + r.Q3Rating
	return Feedback{
		UserEmail:        user.Email,
		UserName:         user.Name,
		Event:            r.Event,
		EventRating:      r.EventRating,
		JudgesRating:     r.JudgesRating,
		VolunteersRating: r.VolunteersRating,
		Q1:               q.Q1,
		Q1Rating:         r.Q1Rating,
		Q2:               q.Q2,
		Q2Rating:         r.Q2Rating,
		Q3:               q.Q3,
		Q3Rating:         r.Q3Rating,
		Improvement:      strings.TrimSpace(r.Improvement),
		Rating:           int(math.Round(float64(sum) / 6)),
	}
}
