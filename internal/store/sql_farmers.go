package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DigiLync/digilync/internal/models"
)

// CreateFarmer inserts f and fills its id and timestamps.
func (s *sqlStore) CreateFarmer(ctx context.Context, f *models.Farmer) error {
	ts := now()
	err := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO farmers (full_name, phone, phone_digits, country, region, division, subdivision, district,
			village, location, gps_lat, gps_lng, farm_size_ha, crop_type, service_needs, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		f.FullName, f.Phone, models.PhoneDigits(f.Phone), f.Country, f.Region, f.Division, f.Subdivision, f.District,
		f.Village, f.Location, f.GPSLat, f.GPSLng, f.FarmSizeHa, f.CropType, s.d.listValue(f.ServiceNeeds), f.Notes, ts, ts,
	).Scan(&f.ID)
	if err != nil {
		slog.Error("sqlStore.CreateFarmer failed", "dialect", s.d.name, "error", err)
		return fmt.Errorf("failed to create farmer: %w", err)
	}
	f.CreatedAt, f.UpdatedAt = ts, ts
	slog.Debug("sqlStore.CreateFarmer succeeded", "dialect", s.d.name, "id", f.ID)
	return nil
}

// GetFarmer returns the farmer with id, or ErrNotFound.
func (s *sqlStore) GetFarmer(ctx context.Context, id int64) (*models.Farmer, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+farmerColumns+` FROM farmers WHERE id = ?`), id)
	f, err := s.scanFarmer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get farmer %d: %w", id, err)
	}
	return f, nil
}

// ListFarmers returns farmers matching filter, newest first.
func (s *sqlStore) ListFarmers(ctx context.Context, filter models.FarmerFilter) ([]models.Farmer, error) {
	var w whereClause
	like := s.d.likeOp
	if filter.Search != "" {
		pat := likePattern(filter.Search)
		w.add(`(full_name `+like+` ? OR phone `+like+` ? OR village `+like+` ? OR crop_type `+like+` ?
			OR region `+like+` ? OR district `+like+` ? OR location `+like+` ?)`,
			pat, pat, pat, pat, pat, pat, pat)
	}
	if filter.Village != "" {
		w.add(`village `+like+` ?`, likePattern(filter.Village))
	}
	if filter.Crop != "" {
		w.add(`crop_type `+like+` ?`, likePattern(filter.Crop))
	}
	if filter.Region != "" {
		w.add(`region `+like+` ?`, likePattern(filter.Region))
	}
	if filter.District != "" {
		w.add(`district `+like+` ?`, likePattern(filter.District))
	}

	query := `SELECT ` + farmerColumns + ` FROM farmers` + w.String() + ` ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, s.q(query), w.args...)
	if err != nil {
		slog.Error("sqlStore.ListFarmers failed", "dialect", s.d.name, "error", err)
		return nil, fmt.Errorf("failed to list farmers: %w", err)
	}
	defer rows.Close()

	farmers := []models.Farmer{}
	for rows.Next() {
		f, err := s.scanFarmer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan farmer failed: %w", err)
		}
		farmers = append(farmers, *f)
	}
	return farmers, rows.Err()
}

// UpdateFarmer replaces every column of the farmer identified by f.ID.
func (s *sqlStore) UpdateFarmer(ctx context.Context, f *models.Farmer) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE farmers SET full_name = ?, phone = ?, phone_digits = ?, country = ?, region = ?, division = ?,
			subdivision = ?, district = ?, village = ?, location = ?, gps_lat = ?, gps_lng = ?, farm_size_ha = ?,
			crop_type = ?, service_needs = ?, notes = ?, updated_at = ?
		WHERE id = ?`),
		f.FullName, f.Phone, models.PhoneDigits(f.Phone), f.Country, f.Region, f.Division,
		f.Subdivision, f.District, f.Village, f.Location, f.GPSLat, f.GPSLng, f.FarmSizeHa,
		f.CropType, s.d.listValue(f.ServiceNeeds), f.Notes, now(), f.ID,
	)
	if err != nil {
		slog.Error("sqlStore.UpdateFarmer failed", "dialect", s.d.name, "id", f.ID, "error", err)
		return fmt.Errorf("failed to update farmer %d: %w", f.ID, err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return err
	}
	updated, err := s.GetFarmer(ctx, f.ID)
	if err != nil {
		return err
	}
	*f = *updated
	return nil
}

// DeleteFarmer removes the farmer and, by cascade, their bookings.
func (s *sqlStore) DeleteFarmer(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM farmers WHERE id = ?`), id)
	if err != nil {
		slog.Error("sqlStore.DeleteFarmer failed", "dialect", s.d.name, "id", id, "error", err)
		return fmt.Errorf("failed to delete farmer %d: %w", id, err)
	}
	return affectedOrNotFound(res)
}
