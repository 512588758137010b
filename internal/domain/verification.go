package domain

import (
	"strings"
	"time"
)

// Delivery channels for verification codes.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// VerificationRecord is the pending two-factor code for one email address.
// PK: email. Attempts counts verification calls against this code.
type VerificationRecord struct {
	Email       string    `json:"email" dynamodbav:"email"`
	Code        string    `json:"-" dynamodbav:"code"`
	ExpiresAt   time.Time `json:"expires_at" dynamodbav:"expires_at"`
	Attempts    int       `json:"attempts" dynamodbav:"attempts"`
	MaxAttempts int       `json:"max_attempts" dynamodbav:"max_attempts"`
	IssuedAt    time.Time `json:"issued_at" dynamodbav:"issued_at"`
	Channel     string    `json:"channel" dynamodbav:"channel"`
}

// CodeState is the position of a record in the two-factor state machine.
type CodeState string

const (
	StateNoCode            CodeState = "no_code"
	StateCodeIssued        CodeState = "code_issued"
	StateExpired           CodeState = "expired"
	StateAttemptsExhausted CodeState = "attempts_exhausted"
)

// State evaluates the record at now. A nil record is StateNoCode.
func (v *VerificationRecord) State(now time.Time) CodeState {
	switch {
	case v == nil:
		return StateNoCode
	case !now.Before(v.ExpiresAt):
		return StateExpired
	case v.Attempts >= v.MaxAttempts:
		return StateAttemptsExhausted
	default:
		return StateCodeIssued
	}
}

// NormalizeEmail is the key form used by every code store.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
