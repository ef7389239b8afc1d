package notify

import (
	"context"
	"errors"

	"github.com/wneessen/go-mail"

	"contact-service/internal/config"
	"contact-service/internal/model"
)

// SMTPNotifier sends through the operator's own mailbox (Gmail by
// default) using STARTTLS and PLAIN auth.
type SMTPNotifier struct {
	cfg config.MailConfig
}

func NewSMTPNotifier(cfg config.MailConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

// Send makes one delivery attempt for m. The SMTP session lives only for
// this call; the account settings are shared by all calls.
func (n *SMTPNotifier) Send(ctx context.Context, m *model.ContactMessage) error {
	msg, err := n.message(Compose(n.cfg.User, n.cfg.Recipient, m))
	if err != nil {
		return deliveryError(err)
	}

	client, err := n.client()
	if err != nil {
		return deliveryError(err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return deliveryError(err)
	}
	return nil
}

func (n *SMTPNotifier) message(e Email) (*mail.Msg, error) {
	if e.From == "" {
		return nil, errors.New("no sender account configured")
	}
	msg := mail.NewMsg()
	if err := msg.From(e.From); err != nil {
		return nil, err
	}
	if err := msg.To(e.To); err != nil {
		return nil, err
	}
	msg.Subject(e.Subject)
	msg.SetBodyString(mail.TypeTextPlain, e.Body)
	return msg, nil
}

func (n *SMTPNotifier) client() (*mail.Client, error) {
	opts := []mail.Option{mail.WithTLSPolicy(mail.TLSMandatory)}
	if n.cfg.Port > 0 {
		opts = append(opts, mail.WithPort(n.cfg.Port))
	}
	if n.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(n.cfg.Timeout))
	}
	if n.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.cfg.User),
			mail.WithPassword(n.cfg.Password),
		)
	}
	return mail.NewClient(n.cfg.Host, opts...)
}
