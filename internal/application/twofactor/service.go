package twofactor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-equity-auth/internal/domain"
	"github.com/go-equity-auth/internal/infrastructure/smtp"
	"github.com/go-equity-auth/internal/metrics"
	"github.com/go-equity-auth/internal/pkg/otp"
	"go.uber.org/zap"
)

const emailSubject = "Your verification code"

// CodeStore holds at most one pending record per normalized email.
type CodeStore interface {
	// Set overwrites any existing record unconditionally.
	Set(ctx context.Context, email string, rec domain.VerificationRecord) error
	// Get returns domain.ErrNotFound when no record exists.
	Get(ctx context.Context, email string) (*domain.VerificationRecord, error)
	Delete(ctx context.Context, email string) error
	// ResetAttempts is a no-op when no record exists.
	ResetAttempts(ctx context.Context, email string) error
	// RecordAttempt atomically increments the counter and returns the new
	// value, but only while the record still holds code. Otherwise it returns
	// domain.ErrNotFound.
	RecordAttempt(ctx context.Context, email, code string) (int, error)
	// CompareAndDelete deletes the record only if it still holds code.
	CompareAndDelete(ctx context.Context, email, code string) (bool, error)
}

type Mailer interface {
	Send(ctx context.Context, msg smtp.Message) (*smtp.Delivery, error)
}

type Renderer interface {
	Render(ctx context.Context, name string, data any) (smtp.Body, error)
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) (string, error)
}

// Settings tune code issuance.
type Settings struct {
	TTL            time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration
	SenderName     string
	SMSEnabled     bool
}

// ServiceDeps holds all dependencies for the two-factor service.
type ServiceDeps struct {
	Store    CodeStore
	Mailer   Mailer
	Renderer Renderer
	SMS      SMSSender // optional
	Settings Settings
	Logger   *zap.Logger
	Now      func() time.Time // defaults to time.Now
}

// CodeRequest asks for a fresh code for Email. Phone is used only when
// Channel is sms and SMS delivery is enabled.
type CodeRequest struct {
	Email   string
	Name    string
	Phone   *string
	Channel string
}

// Issued describes a delivered code. The code itself is never returned.
type Issued struct {
	Channel   string    `json:"channel"`
	ExpiresAt time.Time `json:"expires_at"`
	MessageID string    `json:"message_id,omitempty"`
}

type Service interface {
	RequestCode(ctx context.Context, req CodeRequest) (*Issued, error)
	VerifyCode(ctx context.Context, email, code string) error
	Invalidate(ctx context.Context, email string) error
	ResetAttempts(ctx context.Context, email string) error
	Status(ctx context.Context, email string) (domain.CodeState, error)
}

type service struct {
	store    CodeStore
	mailer   Mailer
	renderer Renderer
	sms      SMSSender
	settings Settings
	log      *zap.Logger
	now      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		store:    deps.Store,
		mailer:   deps.Mailer,
		renderer: deps.Renderer,
		sms:      deps.SMS,
		settings: deps.Settings,
		log:      deps.Logger,
		now:      deps.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// RequestCode replaces any pending code for the email with a new one and
// delivers it. A request inside the resend cooldown fails with
// domain.ErrResendThrottled. If delivery fails the new record is removed.
func (s *service) RequestCode(ctx context.Context, req CodeRequest) (*Issued, error) {
	email := domain.NormalizeEmail(req.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", domain.ErrBadRequest)
	}
	now := s.now()

	if s.settings.ResendCooldown > 0 {
		prev, err := s.store.Get(ctx, email)
		switch {
		case err == nil && now.Before(prev.IssuedAt.Add(s.settings.ResendCooldown)):
			return nil, domain.ErrResendThrottled
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return nil, storeErr("get", err)
		}
	}

	code, err := otp.NewCode()
	if err != nil {
		return nil, err
	}
	channel := s.channelFor(req)
	rec := domain.VerificationRecord{
		Email:       email,
		Code:        code,
		ExpiresAt:   now.Add(s.settings.TTL),
		MaxAttempts: s.settings.MaxAttempts,
		IssuedAt:    now,
		Channel:     channel,
	}
	if err := s.store.Set(ctx, email, rec); err != nil {
		return nil, storeErr("set", err)
	}

	messageID, err := s.deliver(ctx, req, rec)
	if err != nil {
		if delErr := s.store.Delete(ctx, email); delErr != nil {
			s.log.Error("drop undelivered code", zap.String("email", email), zap.Error(delErr))
		}
		return nil, err
	}

	metrics.CodesIssuedTotal.WithLabelValues(channel).Inc()
	s.log.Info("verification code issued",
		zap.String("email", email),
		zap.String("channel", channel),
		zap.Time("expires_at", rec.ExpiresAt),
	)
	return &Issued{Channel: channel, ExpiresAt: rec.ExpiresAt, MessageID: messageID}, nil
}

func (s *service) channelFor(req CodeRequest) string {
	if req.Channel == domain.ChannelSMS && s.settings.SMSEnabled && s.sms != nil && req.Phone != nil && *req.Phone != "" {
		return domain.ChannelSMS
	}
	return domain.ChannelEmail
}

func (s *service) deliver(ctx context.Context, req CodeRequest, rec domain.VerificationRecord) (string, error) {
	expiresIn := humanDuration(s.settings.TTL)
	if rec.Channel == domain.ChannelSMS {
		msg := fmt.Sprintf("%s verification code: %s. It expires in %s.", s.settings.SenderName, rec.Code, expiresIn)
		return s.sms.SendSMS(ctx, *req.Phone, msg)
	}

	body, err := s.renderer.Render(ctx, smtp.TemplateTwoFactorCode, smtp.CodeEmail{
		Name:      req.Name,
		Code:      rec.Code,
		ExpiresIn: expiresIn,
		Sender:    s.settings.SenderName,
	})
	if err != nil {
		return "", fmt.Errorf("render code email: %w", err)
	}
	d, err := s.mailer.Send(ctx, smtp.Message{
		To:      []string{rec.Email},
		Subject: emailSubject,
		Body:    body,
	})
	if err != nil {
		return "", err
	}
	return d.MessageID, nil
}

// VerifyCode checks code against the pending record. The checks run in a
// fixed order: absent, expired, exhausted, then the comparison. Every
// comparison consumes one attempt, counted atomically by the store against
// the record that was read, so a concurrent re-issue starts clean.
func (s *service) VerifyCode(ctx context.Context, email, code string) error {
	email = domain.NormalizeEmail(email)
	err := s.verify(ctx, email, code)
	metrics.VerifyTotal.WithLabelValues(verifyLabel(err)).Inc()
	if err != nil {
		s.log.Info("verification failed", zap.String("email", email), zap.Error(err))
	}
	return err
}

func (s *service) verify(ctx context.Context, email, code string) error {
	rec, err := s.store.Get(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrCodeNotIssued
	}
	if err != nil {
		return storeErr("get", err)
	}

	switch rec.State(s.now()) {
	case domain.StateExpired:
		return domain.ErrCodeExpired
	case domain.StateAttemptsExhausted:
		return domain.ErrAttemptsExhausted
	}

	n, err := s.store.RecordAttempt(ctx, email, rec.Code)
	if errors.Is(err, domain.ErrNotFound) {
		// Re-issued, consumed or invalidated since the read. The comparison
		// above was against a record that no longer exists.
		return domain.ErrCodeInvalid
	}
	if err != nil {
		return storeErr("record attempt", err)
	}
	if n > rec.MaxAttempts {
		return domain.ErrAttemptsExhausted
	}

	if otp.Equal(rec.Code, code) {
		ok, err := s.store.CompareAndDelete(ctx, email, rec.Code)
		if err != nil {
			return storeErr("compare and delete", err)
		}
		if ok {
			return nil
		}
		// Re-issued or consumed concurrently.
		return domain.ErrCodeInvalid
	}

	if n >= rec.MaxAttempts {
		return domain.ErrAttemptsExhausted
	}
	return domain.ErrCodeInvalid
}

func (s *service) Invalidate(ctx context.Context, email string) error {
	if err := s.store.Delete(ctx, domain.NormalizeEmail(email)); err != nil {
		return storeErr("delete", err)
	}
	return nil
}

func (s *service) ResetAttempts(ctx context.Context, email string) error {
	if err := s.store.ResetAttempts(ctx, domain.NormalizeEmail(email)); err != nil {
		return storeErr("reset attempts", err)
	}
	return nil
}

func (s *service) Status(ctx context.Context, email string) (domain.CodeState, error) {
	rec, err := s.store.Get(ctx, domain.NormalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.StateNoCode, nil
	}
	if err != nil {
		return "", storeErr("get", err)
	}
	return rec.State(s.now()), nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: code store %s: %v", domain.ErrUpstream, op, err)
}

func verifyLabel(err error) string {
	switch {
	case err == nil:
		return "verified"
	case errors.Is(err, domain.ErrCodeInvalid):
		return "invalid"
	case errors.Is(err, domain.ErrCodeExpired):
		return "expired"
	case errors.Is(err, domain.ErrAttemptsExhausted):
		return "exhausted"
	case errors.Is(err, domain.ErrCodeNotIssued):
		return "not_issued"
	default:
		return "error"
	}
}

// humanDuration renders whole minutes where possible, e.g. "10 minutes".
func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Minute && d%time.Minute == 0:
		if m := int(d / time.Minute); m != 1 {
			return fmt.Sprintf("%d minutes", m)
		}
		return "1 minute"
	default:
		return d.String()
	}
}
