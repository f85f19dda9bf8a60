package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DigiLync/digilync/internal/models"
)

// CreateBooking inserts b and fills its id and timestamps.
func (s *sqlStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	ts := now()
	err := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO bookings (farmer_id, provider_id, service_type, scheduled_date, scheduled_time,
			farm_produce_type, farm_size_ha, price, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		b.FarmerID, b.ProviderID, b.ServiceType, b.ScheduledDate, b.ScheduledTime,
		b.FarmProduceType, b.FarmSizeHa, b.Price, string(b.Status), b.Notes, ts, ts,
	).Scan(&b.ID)
	if err != nil {
		slog.Error("sqlStore.CreateBooking failed", "dialect", s.d.name, "farmer_id", b.FarmerID, "provider_id", b.ProviderID, "error", err)
		return fmt.Errorf("failed to create booking: %w", err)
	}
	b.CreatedAt, b.UpdatedAt = ts, ts
	return nil
}

// GetBooking returns the booking with id, or ErrNotFound.
func (s *sqlStore) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`), id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking %d: %w", id, err)
	}
	return b, nil
}

// ListBookings returns bookings matching filter, newest first.
func (s *sqlStore) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	var w whereClause
	if filter.Status != "" {
		w.add(`status = ?`, string(filter.Status))
	}
	if filter.FarmerID > 0 {
		w.add(`farmer_id = ?`, filter.FarmerID)
	}
	if filter.ProviderID > 0 {
		w.add(`provider_id = ?`, filter.ProviderID)
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings` + w.String() + ` ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, s.q(query), w.args...)
	if err != nil {
		slog.Error("sqlStore.ListBookings failed", "dialect", s.d.name, "error", err)
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := []models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking failed: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// UpdateBooking replaces every column of the booking identified by b.ID.
func (s *sqlStore) UpdateBooking(ctx context.Context, b *models.Booking) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE bookings SET farmer_id = ?, provider_id = ?, service_type = ?, scheduled_date = ?,
			scheduled_time = ?, farm_produce_type = ?, farm_size_ha = ?, price = ?, status = ?, notes = ?,
			updated_at = ?
		WHERE id = ?`),
		b.FarmerID, b.ProviderID, b.ServiceType, b.ScheduledDate,
		b.ScheduledTime, b.FarmProduceType, b.FarmSizeHa, b.Price, string(b.Status), b.Notes,
		now(), b.ID,
	)
	if err != nil {
		slog.Error("sqlStore.UpdateBooking failed", "dialect", s.d.name, "id", b.ID, "error", err)
		return fmt.Errorf("failed to update booking %d: %w", b.ID, err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return err
	}
	updated, err := s.GetBooking(ctx, b.ID)
	if err != nil {
		return err
	}
	*b = *updated
	return nil
}

// UpdateBookingStatus moves a booking to status.
func (s *sqlStore) UpdateBookingStatus(ctx context.Context, id int64, status models.BookingStatus) error {
	if !models.IsValidBookingStatus(status) {
		return models.ErrInvalidBookingState
	}
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`), string(status), now(), id)
	if err != nil {
		slog.Error("sqlStore.UpdateBookingStatus failed", "dialect", s.d.name, "id", id, "status", status, "error", err)
		return fmt.Errorf("failed to update booking %d status: %w", id, err)
	}
	return affectedOrNotFound(res)
}

// DeleteBooking removes the booking with id.
func (s *sqlStore) DeleteBooking(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM bookings WHERE id = ?`), id)
	if err != nil {
		slog.Error("sqlStore.DeleteBooking failed", "dialect", s.d.name, "id", id, "error", err)
		return fmt.Errorf("failed to delete booking %d: %w", id, err)
	}
	return affectedOrNotFound(res)
}
