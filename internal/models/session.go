package models

import (
	"strings"
	"time"
	"unicode"
)

// Role identifies which registration flow owns a WhatsApp session.
type Role string

const (
	RoleUnknown  Role = "unknown"
	RoleFarmer   Role = "farmer"
	RoleProvider Role = "provider"
)

// StepWelcome is the initial and re-entrant step of every session.
const StepWelcome = "welcome"

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUnknown, RoleFarmer, RoleProvider:
		return true
	default:
		return false
	}
}

// SessionFields holds the registration answers collected so far, keyed by
// the column name they will be written to.
type SessionFields map[string]any

// Session is the persisted conversation state for one WhatsApp phone number.
type Session struct {
	Phone     string        `json:"wa_phone"`
	Role      Role          `json:"user_type"`
	Step      string        `json:"step"`
	Fields    SessionFields `json:"data"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// SessionUpdate is a partial session update. Nil members leave the stored
// value unchanged; a non-nil Fields replaces the stored mapping entirely.
type SessionUpdate struct {
	Role   *Role
	Step   *string
	Fields SessionFields
}

// Identity is a registered farmer or provider matched by phone number.
type Identity struct {
	Kind Role   `json:"kind"`
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// NormalizePhone converts a transport sender id such as "whatsapp:+237 675..."
// into the canonical session key: a leading '+' followed by digits only.
func NormalizePhone(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= len("whatsapp:") && strings.EqualFold(s[:len("whatsapp:")], "whatsapp:") {
		s = s[len("whatsapp:"):]
	}
	digits := PhoneDigits(s)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// PhoneDigits strips every non-digit character from phone.
func PhoneDigits(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r <= unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
