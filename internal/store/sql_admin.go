package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"

	"github.com/DigiLync/digilync/internal/models"
)

// UpsertAdminRating inserts r, or replaces the rating the same admin already
// gave the same ratee.
func (s *sqlStore) UpsertAdminRating(ctx context.Context, r *models.AdminRating) error {
	ts := now()
	err := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO admin_ratings (admin_id, ratee_type, ratee_id, rating, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (ratee_type, ratee_id, admin_id)
		DO UPDATE SET rating = excluded.rating, notes = excluded.notes, created_at = excluded.created_at
		RETURNING id`),
		r.AdminID, string(r.RateeType), r.RateeID, r.Rating, r.Notes, ts,
	).Scan(&r.ID)
	if err != nil {
		slog.Error("sqlStore.UpsertAdminRating failed", "dialect", s.d.name, "ratee_type", r.RateeType, "ratee_id", r.RateeID, "error", err)
		return fmt.Errorf("failed to save admin rating: %w", err)
	}
	r.CreatedAt = ts
	return nil
}

// ListAdminRatings returns the ratings of one farmer or provider, newest first.
func (s *sqlStore) ListAdminRatings(ctx context.Context, rateeType models.Role, rateeID int64) ([]models.AdminRating, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT `+ratingColumns+` FROM admin_ratings
		WHERE ratee_type = ? AND ratee_id = ?
		ORDER BY created_at DESC, id DESC`), string(rateeType), rateeID)
	if err != nil {
		slog.Error("sqlStore.ListAdminRatings failed", "dialect", s.d.name, "error", err)
		return nil, fmt.Errorf("failed to list admin ratings: %w", err)
	}
	defer rows.Close()

	ratings := []models.AdminRating{}
	for rows.Next() {
		r, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		ratings = append(ratings, r)
	}
	return ratings, rows.Err()
}

// ComputePublicMetrics aggregates the landing page counters. Only the farmer
// count is mandatory; every other aggregate degrades to zero or nil when its
// query fails.
func (s *sqlStore) ComputePublicMetrics(ctx context.Context) (models.PublicMetrics, error) {
	var m models.PublicMetrics
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM farmers`).Scan(&m.FarmsOnboarded); err != nil {
		slog.Error("sqlStore.ComputePublicMetrics: farmer count failed", "dialect", s.d.name, "error", err)
		return m, fmt.Errorf("failed to count farmers: %w", err)
	}

	s.countInto(ctx, &m.ServiceProvidersRegistered, "providers", `SELECT COUNT(*) FROM providers`)
	s.countInto(ctx, &m.ServiceRequestsSubmitted, "bookings", `SELECT COUNT(*) FROM bookings`)
	s.countInto(ctx, &m.CompletedServices, "completed", `SELECT COUNT(*) FROM bookings WHERE status = 'completed'`)
	s.countInto(ctx, &m.ActiveRegions, "regions", `
		SELECT COUNT(DISTINCT COALESCE(district, division, region, village))
		FROM farmers
		WHERE COALESCE(district, division, region, village) IS NOT NULL
			AND TRIM(COALESCE(district, division, region, village)) != ''`)

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT AVG(rating) FROM admin_ratings`).Scan(&avg); err != nil {
		slog.Warn("sqlStore.ComputePublicMetrics: average rating unavailable", "dialect", s.d.name, "error", err)
	} else if avg.Valid {
		rounded := math.Round(avg.Float64*10) / 10
		m.AverageServiceRating = &rounded
	}

	m.OnTimeCompletionRatePercent = completionRate(m.CompletedServices, m.ServiceRequestsSubmitted)
	m.ComputedAt = now()
	return m, nil
}

func (s *sqlStore) countInto(ctx context.Context, dst *int, name, query string) {
	if err := s.db.QueryRowContext(ctx, query).Scan(dst); err != nil {
		slog.Warn("sqlStore.ComputePublicMetrics: aggregate unavailable", "dialect", s.d.name, "aggregate", name, "error", err)
		*dst = 0
	}
}

// completionRate is completed/total as a rounded percentage, or nil when
// either side is zero.
func completionRate(completed, total int) *int {
	if completed <= 0 || total <= 0 {
		return nil
	}
	pct := int(math.Round(float64(completed) / float64(total) * 100))
	return &pct
}

// RecordInbound records an inbound message id. Returns false only when the
// id was already processed; an unprocessed row is a transport retry of a
// failed attempt and is claimed again.
func (s *sqlStore) RecordInbound(ctx context.Context, messageID, phone string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO inbound_dedup (message_id, wa_phone, received_at)
		VALUES (?, ?, ?)
		ON CONFLICT (message_id) DO UPDATE SET received_at = excluded.received_at
		WHERE inbound_dedup.processed_at IS NULL`),
		messageID, phone, now())
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected check failed: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed stamps processed_at for messageID.
func (s *sqlStore) MarkProcessed(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`), now(), messageID)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

// AddReceipt stores a delivery status callback.
func (s *sqlStore) AddReceipt(ctx context.Context, r models.Receipt) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO message_receipts (message_id, recipient, status, error_code, time)
		VALUES (?, ?, ?, ?, ?)`),
		r.MessageID, r.To, string(r.Status), nilIfEmpty(r.ErrorCode), r.Time)
	if err != nil {
		slog.Error("sqlStore.AddReceipt failed", "dialect", s.d.name, "message_id", r.MessageID, "error", err)
		return fmt.Errorf("failed to add receipt: %w", err)
	}
	return nil
}

// GetReceipts returns the receipts recorded for messageID in arrival order.
func (s *sqlStore) GetReceipts(ctx context.Context, messageID string) ([]models.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT message_id, recipient, status, error_code, time
		FROM message_receipts WHERE message_id = ? ORDER BY id`), messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipts: %w", err)
	}
	defer rows.Close()

	receipts := []models.Receipt{}
	for rows.Next() {
		var r models.Receipt
		var status string
		var errorCode sql.NullString
		if err := rows.Scan(&r.MessageID, &r.To, &status, &errorCode, &r.Time); err != nil {
			return nil, fmt.Errorf("scan receipt failed: %w", err)
		}
		r.Status = models.MessageStatus(status)
		r.ErrorCode = errorCode.String
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}
