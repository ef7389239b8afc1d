// internal/model/message.go
package model

import (
	"time"
)

// ContactMessage is one stored contact-form submission. Records are
// append-only: nothing in the service updates or deletes them.
type ContactMessage struct {
	ID          string    `json:"id" db:"id" bson:"_id"`
	Name        string    `json:"name" db:"name" bson:"name,omitempty"`
	Email       string    `json:"email" db:"email" bson:"email,omitempty"`
	Message     string    `json:"message" db:"message" bson:"message,omitempty"`
	SubmittedAt time.Time `json:"submitted_at" db:"submitted_at" bson:"date"`
}
