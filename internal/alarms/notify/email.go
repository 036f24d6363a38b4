package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/wneessen/go-mail"

	alarms "solar-dashboard/internal/alarms/domain"
)

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// To is used when a message names no recipients.
	To []string
}

// EmailChannel delivers messages over SMTP.
type EmailChannel struct {
	cfg    EmailConfig
	client *mail.Client
}

// NewEmailChannel constructs an SMTP channel. Port 465 uses implicit TLS,
// other ports upgrade with STARTTLS when offered.
func NewEmailChannel(cfg EmailConfig) (*EmailChannel, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("email channel: empty host")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.From == "" {
		return nil, errors.New("email channel: empty sender")
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password))
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, err
	}
	return &EmailChannel{cfg: cfg, client: client}, nil
}

// Name implements Channel.
func (e *EmailChannel) Name() string { return "email" }

// Send implements Channel.
func (e *EmailChannel) Send(ctx context.Context, msg alarms.Message) error {
	m, err := e.compose(msg)
	if err != nil {
		return err
	}
	return e.client.DialAndSendWithContext(ctx, m)
}

func (e *EmailChannel) compose(msg alarms.Message) (*mail.Msg, error) {
	to := msg.To
	if len(to) == 0 {
		to = e.cfg.To
	}
	if len(to) == 0 {
		return nil, errors.New("email channel: no recipients")
	}
	m := mail.NewMsg()
	if err := m.From(e.cfg.From); err != nil {
		return nil, err
	}
	if err := m.To(to...); err != nil {
		return nil, err
	}
	m.Subject(msg.Subject)
	switch {
	case msg.HTML != "" && msg.Text != "":
		m.SetBodyString(mail.TypeTextPlain, msg.Text)
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	default:
		m.SetBodyString(mail.TypeTextPlain, msg.Text)
	}
	return m, nil
}
