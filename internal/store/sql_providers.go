package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DigiLync/digilync/internal/models"
)

// CreateProvider inserts p together with its service lines and equipment in
// a single transaction.
func (s *sqlStore) CreateProvider(ctx context.Context, p *models.Provider) error {
	ts := now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, s.q(`
			INSERT INTO providers (full_name, phone, phone_digits, services_offered, work_capacity_ha_per_hour,
				base_price_per_ha, equipment_type, service_radius_km, notes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			p.FullName, p.Phone, models.PhoneDigits(p.Phone), p.ServicesOffered, p.WorkCapacityHaPerHour,
			p.BasePricePerHa, p.EquipmentType, p.ServiceRadiusKm, p.Notes, ts, ts,
		).Scan(&p.ID)
		if err != nil {
			return fmt.Errorf("failed to insert provider: %w", err)
		}
		return s.insertServices(ctx, tx, p.ID, p.Services, ts)
	})
	if err != nil {
		slog.Error("sqlStore.CreateProvider failed", "dialect", s.d.name, "error", err)
		return err
	}
	p.CreatedAt, p.UpdatedAt = ts, ts
	slog.Debug("sqlStore.CreateProvider succeeded", "dialect", s.d.name, "id", p.ID, "services", len(p.Services))
	return nil
}

// insertServices writes service lines for providerID, filling their ids.
func (s *sqlStore) insertServices(ctx context.Context, q queryer, providerID int64, services []models.ProviderService, ts time.Time) error {
	for i := range services {
		svc := &services[i]
		svc.ProviderID = providerID
		svc.CreatedAt = ts
		err := q.QueryRowContext(ctx, s.q(`
			INSERT INTO provider_services (provider_id, service_name, work_capacity_ha_per_hour, base_price_per_ha,
				country, region, division, subdivision, district, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			providerID, svc.ServiceName, svc.WorkCapacityHaPerHour, svc.BasePricePerHa,
			svc.Country, svc.Region, svc.Division, svc.Subdivision, svc.District, ts,
		).Scan(&svc.ID)
		if err != nil {
			return fmt.Errorf("failed to insert provider service %q: %w", svc.ServiceName, err)
		}
		if svc.Equipment == nil {
			svc.Equipment = []models.Equipment{}
		}
		for j := range svc.Equipment {
			eq := &svc.Equipment[j]
			err := q.QueryRowContext(ctx, s.q(`
				INSERT INTO provider_service_equipment (provider_service_id, equipment_name, created_at)
				VALUES (?, ?, ?)
				RETURNING id`),
				svc.ID, eq.EquipmentName, ts,
			).Scan(&eq.ID)
			if err != nil {
				return fmt.Errorf("failed to insert equipment %q: %w", eq.EquipmentName, err)
			}
		}
	}
	return nil
}

// GetProvider returns the provider with its service lines, or ErrNotFound.
func (s *sqlStore) GetProvider(ctx context.Context, id int64) (*models.Provider, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+providerColumns+` FROM providers WHERE id = ?`), id)
	p, err := scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider %d: %w", id, err)
	}
	p.Services, err = s.loadServices(ctx, id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *sqlStore) loadServices(ctx context.Context, providerID int64) ([]models.ProviderService, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+serviceColumns+` FROM provider_services WHERE provider_id = ? ORDER BY id`), providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load services for provider %d: %w", providerID, err)
	}
	services := []models.ProviderService{}
	index := map[int64]int{}
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[svc.ID] = len(services)
		services = append(services, svc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return services, nil
	}

	eqRows, err := s.db.QueryContext(ctx, s.q(`
		SELECT e.id, e.provider_service_id, e.equipment_name
		FROM provider_service_equipment e
		JOIN provider_services ps ON ps.id = e.provider_service_id
		WHERE ps.provider_id = ?
		ORDER BY e.id`), providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load equipment for provider %d: %w", providerID, err)
	}
	defer eqRows.Close()
	for eqRows.Next() {
		var eq models.Equipment
		var serviceID int64
		if err := eqRows.Scan(&eq.ID, &serviceID, &eq.EquipmentName); err != nil {
			return nil, fmt.Errorf("scan equipment failed: %w", err)
		}
		if i, ok := index[serviceID]; ok {
			services[i].Equipment = append(services[i].Equipment, eq)
		}
	}
	return services, eqRows.Err()
}

// ListProviders returns providers matching filter, newest first. Service
// lines are not loaded.
func (s *sqlStore) ListProviders(ctx context.Context, filter models.ProviderFilter) ([]models.Provider, error) {
	var w whereClause
	if filter.Search != "" {
		like := s.d.likeOp
		pat := likePattern(filter.Search)
		w.add(`(full_name `+like+` ? OR phone `+like+` ? OR services_offered `+like+` ? OR equipment_type `+like+` ?)`,
			pat, pat, pat, pat)
	}
	query := `SELECT ` + providerColumns + ` FROM providers` + w.String() + ` ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, s.q(query), w.args...)
	if err != nil {
		slog.Error("sqlStore.ListProviders failed", "dialect", s.d.name, "error", err)
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	providers := []models.Provider{}
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider failed: %w", err)
		}
		providers = append(providers, *p)
	}
	return providers, rows.Err()
}

// UpdateProvider replaces the provider row and optionally its service lines.
func (s *sqlStore) UpdateProvider(ctx context.Context, p *models.Provider, replaceServices bool) error {
	ts := now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`
			UPDATE providers SET full_name = ?, phone = ?, phone_digits = ?, services_offered = ?,
				work_capacity_ha_per_hour = ?, base_price_per_ha = ?, equipment_type = ?, service_radius_km = ?,
				notes = ?, updated_at = ?
			WHERE id = ?`),
			p.FullName, p.Phone, models.PhoneDigits(p.Phone), p.ServicesOffered,
			p.WorkCapacityHaPerHour, p.BasePricePerHa, p.EquipmentType, p.ServiceRadiusKm,
			p.Notes, ts, p.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update provider %d: %w", p.ID, err)
		}
		if err := affectedOrNotFound(res); err != nil {
			return err
		}
		if !replaceServices {
			return nil
		}
		if _, err := tx.ExecContext(ctx, s.q(`
			DELETE FROM provider_service_equipment
			WHERE provider_service_id IN (SELECT id FROM provider_services WHERE provider_id = ?)`), p.ID); err != nil {
			return fmt.Errorf("failed to clear equipment for provider %d: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM provider_services WHERE provider_id = ?`), p.ID); err != nil {
			return fmt.Errorf("failed to clear services for provider %d: %w", p.ID, err)
		}
		return s.insertServices(ctx, tx, p.ID, p.Services, ts)
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Error("sqlStore.UpdateProvider failed", "dialect", s.d.name, "id", p.ID, "error", err)
		}
		return err
	}
	updated, err := s.GetProvider(ctx, p.ID)
	if err != nil {
		return err
	}
	*p = *updated
	return nil
}

// DeleteProvider removes the provider, its service lines and its bookings.
func (s *sqlStore) DeleteProvider(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`
			DELETE FROM provider_service_equipment
			WHERE provider_service_id IN (SELECT id FROM provider_services WHERE provider_id = ?)`), id); err != nil {
			return fmt.Errorf("failed to delete equipment for provider %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM provider_services WHERE provider_id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete services for provider %d: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM providers WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("failed to delete provider %d: %w", id, err)
		}
		return affectedOrNotFound(res)
	})
}
