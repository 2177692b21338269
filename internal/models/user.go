package models

import "time"

// User is a registered participant. This subsystem looks users up for display
// names and UPI handles; it never mutates them outside registration.
type User struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	UPIID     string    `json:"upi_id,omitempty" db:"upi_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
