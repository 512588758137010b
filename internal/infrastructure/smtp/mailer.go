package smtp

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-equity-auth/internal/config"
	"github.com/go-equity-auth/internal/domain"
	"github.com/go-equity-auth/internal/metrics"
	"github.com/go-equity-auth/internal/pkg/id"
	"gopkg.in/gomail.v2"
)

const provider = "smtp"

// Body carries the two renditions of a message. At least one must be set.
type Body struct {
	HTML string
	Text string
}

type Message struct {
	To      []string
	CC      []string
	Subject string
	Body    Body
}

// Delivery identifies an accepted message.
type Delivery struct {
	Provider  string `json:"provider"`
	MessageID string `json:"message_id"`
}

// Settings is the relay configuration. Missing fields surface on Send.
type Settings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	}
}

// SendFunc hands a composed message to the relay.
type SendFunc func(s Settings, m *gomail.Message) error

func dialAndSend(s Settings, m *gomail.Message) error {
	return gomail.NewDialer(s.Host, s.Port, s.Username, s.Password).DialAndSend(m)
}

// Mailer sends one message per call through an authenticated SMTP relay.
// There is no queue and no retry.
type Mailer struct {
	settings Settings
	send     SendFunc
}

type Option func(*Mailer)

// WithSendFunc replaces the relay call, e.g. in tests.
func WithSendFunc(f SendFunc) Option {
	return func(m *Mailer) { m.send = f }
}

func NewMailer(s Settings, opts ...Option) *Mailer {
	m := &Mailer{settings: s, send: dialAndSend}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Configured reports whether every relay setting is present.
func (m *Mailer) Configured() bool {
	return m.missing() == nil
}

func (m *Mailer) missing() []string {
	var out []string
	if m.settings.Host == "" {
		out = append(out, "SMTP_HOST")
	}
	if m.settings.Port == 0 {
		out = append(out, "SMTP_PORT")
	}
	if m.settings.Username == "" {
		out = append(out, "SMTP_USERNAME")
	}
	if m.settings.Password == "" {
		out = append(out, "SMTP_PASSWORD")
	}
	return out
}

func (m *Mailer) Send(ctx context.Context, msg Message) (*Delivery, error) {
	if missing := m.missing(); missing != nil {
		return nil, fmt.Errorf("%w: smtp relay not configured: missing %s", domain.ErrConfig, strings.Join(missing, ", "))
	}
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("%w: message has no recipients", domain.ErrBadRequest)
	}
	if msg.Body.HTML == "" && msg.Body.Text == "" {
		return nil, fmt.Errorf("%w: message has no body", domain.ErrBadRequest)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messageID := fmt.Sprintf("<%s@%s>", id.New(), senderDomain(m.settings.From, m.settings.Host))

	gm := gomail.NewMessage()
	gm.SetAddressHeader("From", m.settings.From, m.settings.FromName)
	gm.SetHeader("To", msg.To...)
	if len(msg.CC) > 0 {
		gm.SetHeader("Cc", msg.CC...)
	}
	gm.SetHeader("Subject", msg.Subject)
	gm.SetHeader("Message-ID", messageID)
	switch {
	case msg.Body.Text != "" && msg.Body.HTML != "":
		gm.SetBody("text/plain", msg.Body.Text)
		gm.AddAlternative("text/html", msg.Body.HTML)
	case msg.Body.HTML != "":
		gm.SetBody("text/html", msg.Body.HTML)
	default:
		gm.SetBody("text/plain", msg.Body.Text)
	}

	if err := m.send(m.settings, gm); err != nil {
		metrics.MailSendTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: smtp send: %v", domain.ErrUpstream, err)
	}
	metrics.MailSendTotal.WithLabelValues("sent").Inc()
	return &Delivery{Provider: provider, MessageID: messageID}, nil
}

func senderDomain(from, host string) string {
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		return from[i+1:]
	}
	return host
}
