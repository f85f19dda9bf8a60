package store

import (
	"fmt"
	"strings"

	"github.com/DigiLync/digilync/internal/models"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// likePattern wraps term for a substring match.
func likePattern(term string) string {
	return "%" + strings.TrimSpace(term) + "%"
}

// whereClause accumulates AND-ed conditions and their arguments.
type whereClause struct {
	conds []string
	args  []interface{}
}

func (w *whereClause) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

const farmerColumns = `id, full_name, phone, country, region, division, subdivision, district, village,
	location, gps_lat, gps_lng, farm_size_ha, crop_type, service_needs, notes, created_at, updated_at`

func (s *sqlStore) scanFarmer(row rowScanner) (*models.Farmer, error) {
	var f models.Farmer
	err := row.Scan(
		&f.ID, &f.FullName, &f.Phone, &f.Country, &f.Region, &f.Division, &f.Subdivision, &f.District, &f.Village,
		&f.Location, &f.GPSLat, &f.GPSLng, &f.FarmSizeHa, &f.CropType, s.d.listScanner(&f.ServiceNeeds), &f.Notes,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(f.ServiceNeeds) == 0 {
		f.ServiceNeeds = nil
	}
	return &f, nil
}

const providerColumns = `id, full_name, phone, services_offered, work_capacity_ha_per_hour, base_price_per_ha,
	equipment_type, service_radius_km, notes, created_at, updated_at`

func scanProvider(row rowScanner) (*models.Provider, error) {
	var p models.Provider
	err := row.Scan(
		&p.ID, &p.FullName, &p.Phone, &p.ServicesOffered, &p.WorkCapacityHaPerHour, &p.BasePricePerHa,
		&p.EquipmentType, &p.ServiceRadiusKm, &p.Notes, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const serviceColumns = `id, provider_id, service_name, work_capacity_ha_per_hour, base_price_per_ha,
	country, region, division, subdivision, district, created_at`

func scanService(row rowScanner) (models.ProviderService, error) {
	var svc models.ProviderService
	err := row.Scan(
		&svc.ID, &svc.ProviderID, &svc.ServiceName, &svc.WorkCapacityHaPerHour, &svc.BasePricePerHa,
		&svc.Country, &svc.Region, &svc.Division, &svc.Subdivision, &svc.District, &svc.CreatedAt,
	)
	if err != nil {
		return svc, fmt.Errorf("scan provider service failed: %w", err)
	}
	svc.Equipment = []models.Equipment{}
	return svc, nil
}

const bookingColumns = `id, farmer_id, provider_id, service_type, scheduled_date, scheduled_time,
	farm_produce_type, farm_size_ha, price, status, notes, created_at, updated_at`

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var status string
	err := row.Scan(
		&b.ID, &b.FarmerID, &b.ProviderID, &b.ServiceType, &b.ScheduledDate, &b.ScheduledTime,
		&b.FarmProduceType, &b.FarmSizeHa, &b.Price, &status, &b.Notes, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = models.BookingStatus(status)
	return &b, nil
}

const ratingColumns = `id, admin_id, ratee_type, ratee_id, rating, notes, created_at`

func scanRating(row rowScanner) (models.AdminRating, error) {
	var r models.AdminRating
	var rateeType string
	err := row.Scan(&r.ID, &r.AdminID, &rateeType, &r.RateeID, &r.Rating, &r.Notes, &r.CreatedAt)
	if err != nil {
		return r, fmt.Errorf("scan admin rating failed: %w", err)
	}
	r.RateeType = models.Role(rateeType)
	return r, nil
}
