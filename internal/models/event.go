package models

import "time"

// Event is a trek or outing that expenses and registrations are scoped to.
type Event struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Location  string    `json:"location" db:"location"`
	StartDate time.Time `json:"start_date" db:"start_date"`
	// Capacity of 0 means unlimited.
	Capacity  int       `json:"capacity" db:"capacity"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// ParticipantCount is derived from registrations, not stored on the row.
	ParticipantCount int `json:"participant_count"`
}

// Registration links a user to an event. One row per (event, user).
type Registration struct {
	ID        string    `json:"id" db:"id"`
	EventID   string    `json:"event_id" db:"event_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
