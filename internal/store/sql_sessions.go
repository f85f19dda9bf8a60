package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DigiLync/digilync/internal/models"
)

// ErrInvalidPhone is returned when a session key has no digits.
var ErrInvalidPhone = errors.New("phone number has no digits")

const sessionColumns = `wa_phone, user_type, step, data, created_at, updated_at`

// GetSession retrieves the session for phone, or nil if none exists.
func (s *sqlStore) GetSession(ctx context.Context, phone string) (*models.Session, error) {
	key := models.NormalizePhone(phone)
	if key == "" {
		return nil, ErrInvalidPhone
	}
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+sessionColumns+` FROM whatsapp_sessions WHERE wa_phone = ?`), key)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("sqlStore.GetSession failed", "dialect", s.d.name, "phone", key, "error", err)
		return nil, fmt.Errorf("failed to get session for %s: %w", key, err)
	}
	return sess, nil
}

// GetOrCreateSession returns the persisted session for phone, creating a
// welcome session first if necessary. The insert is a no-op when a concurrent
// request created the row; the row is always re-read afterwards.
func (s *sqlStore) GetOrCreateSession(ctx context.Context, phone string) (*models.Session, error) {
	sess, err := s.GetSession(ctx, phone)
	if err != nil || sess != nil {
		return sess, err
	}

	key := models.NormalizePhone(phone)
	ts := now()
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO whatsapp_sessions (wa_phone, user_type, step, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (wa_phone) DO NOTHING`),
		key, string(models.RoleUnknown), models.StepWelcome, "{}", ts, ts)
	if err != nil {
		slog.Error("sqlStore.GetOrCreateSession insert failed", "dialect", s.d.name, "phone", key, "error", err)
		return nil, fmt.Errorf("failed to create session for %s: %w", key, err)
	}

	sess, err = s.GetSession(ctx, key)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("session for %s missing after insert", key)
	}
	slog.Debug("sqlStore.GetOrCreateSession created session", "dialect", s.d.name, "phone", key)
	return sess, nil
}

// UpdateSession coalesces each provided member onto the stored row.
func (s *sqlStore) UpdateSession(ctx context.Context, phone string, update models.SessionUpdate) error {
	key := models.NormalizePhone(phone)
	if key == "" {
		return ErrInvalidPhone
	}

	var role, step, data interface{}
	if update.Role != nil {
		role = string(*update.Role)
	}
	if update.Step != nil {
		step = *update.Step
	}
	if update.Fields != nil {
		encoded, err := json.Marshal(update.Fields)
		if err != nil {
			return fmt.Errorf("failed to encode session fields: %w", err)
		}
		data = string(encoded)
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE whatsapp_sessions
		SET user_type = COALESCE(?, user_type),
			step = COALESCE(?, step),
			data = COALESCE(?, data),
			updated_at = ?
		WHERE wa_phone = ?`),
		role, step, data, now(), key)
	if err != nil {
		slog.Error("sqlStore.UpdateSession failed", "dialect", s.d.name, "phone", key, "error", err)
		return fmt.Errorf("failed to update session for %s: %w", key, err)
	}
	slog.Debug("sqlStore.UpdateSession succeeded", "dialect", s.d.name, "phone", key, "role", role, "step", step)
	return nil
}

func scanSession(row *sql.Row) (*models.Session, error) {
	var sess models.Session
	var role, step sql.NullString
	var data []byte
	if err := row.Scan(&sess.Phone, &role, &step, &data, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	sess.Role = models.Role(role.String)
	if !role.Valid {
		sess.Role = models.RoleUnknown
	}
	sess.Step = step.String
	sess.Fields = decodeFields(data, sess.Phone)
	return &sess, nil
}

// decodeFields parses the stored JSON answers. A corrupt document yields an
// empty mapping rather than failing the request.
func decodeFields(data []byte, phone string) models.SessionFields {
	fields := models.SessionFields{}
	if len(data) == 0 {
		return fields
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		slog.Error("store.decodeFields: session data unmarshal failed", "phone", phone, "error", err)
		return models.SessionFields{}
	}
	if fields == nil {
		fields = models.SessionFields{}
	}
	return fields
}

// FindFarmerByPhoneDigits returns the farmer whose phone has the given digits.
func (s *sqlStore) FindFarmerByPhoneDigits(ctx context.Context, digits string) (*models.Identity, error) {
	return s.findIdentity(ctx, "farmers", models.RoleFarmer, digits)
}

// FindProviderByPhoneDigits returns the provider whose phone has the given digits.
func (s *sqlStore) FindProviderByPhoneDigits(ctx context.Context, digits string) (*models.Identity, error) {
	return s.findIdentity(ctx, "providers", models.RoleProvider, digits)
}

func (s *sqlStore) findIdentity(ctx context.Context, table string, kind models.Role, digits string) (*models.Identity, error) {
	if digits == "" {
		return nil, nil
	}
	id := models.Identity{Kind: kind}
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT id, full_name FROM `+table+` WHERE phone_digits = ? ORDER BY id LIMIT 1`), digits,
	).Scan(&id.ID, &id.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("sqlStore.findIdentity failed", "dialect", s.d.name, "table", table, "error", err)
		return nil, fmt.Errorf("failed to look up %s by phone: %w", kind, err)
	}
	return &id, nil
}
