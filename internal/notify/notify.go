// Package notify delivers the operator email for a stored contact message.
package notify

import (
	"errors"
	"fmt"

	"contact-service/internal/model"
)

// ErrDelivery is wrapped by every Send failure: bad credentials, network
// trouble, or the provider refusing the message.
var ErrDelivery = errors.New("notification delivery failed")

// Email is a plain-text message to the operator.
type Email struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Compose renders the notification for m. Fields are copied verbatim, so an
// empty submission still produces an email.
func Compose(from, to string, m *model.ContactMessage) Email {
	return Email{
		From:    from,
		To:      to,
		Subject: fmt.Sprintf("New Message from %s", m.Name),
		Body:    fmt.Sprintf("Name: %s\nEmail: %s\nMessage: %s", m.Name, m.Email, m.Message),
	}
}

func deliveryError(err error) error {
	return fmt.Errorf("%w: %w", ErrDelivery, err)
}
