package notify

import (
	"context"
	"encoding/json"
	"time"

	"contact-service/internal/config"
	"contact-service/internal/model"
)

// Publisher hands a payload to a broker queue and returns once the broker
// has accepted or refused it.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// RelayNotifier hands the composed email to a mail-relay queue instead of
// talking SMTP itself. A confirmed publish counts as delivered.
type RelayNotifier struct {
	pub   Publisher
	queue string
	from  string
	to    string
}

// relayEnvelope is the JSON body published for each submission.
type relayEnvelope struct {
	Email
	MessageID   string    `json:"message_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func NewRelayNotifier(pub Publisher, cfg config.MailConfig) *RelayNotifier {
	return &RelayNotifier{
		pub:   pub,
		queue: cfg.RelayQueue,
		from:  cfg.User,
		to:    cfg.Recipient,
	}
}

func (n *RelayNotifier) Send(ctx context.Context, m *model.ContactMessage) error {
	body, err := json.Marshal(relayEnvelope{
		Email:       Compose(n.from, n.to, m),
		MessageID:   m.ID,
		SubmittedAt: m.SubmittedAt,
	})
	if err != nil {
		return deliveryError(err)
	}
	if err := n.pub.Publish(ctx, n.queue, body); err != nil {
		return deliveryError(err)
	}
	return nil
}
