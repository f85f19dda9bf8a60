package models

import (
	"strings"
	"time"
)

// Farmer is a registered farmer.
type Farmer struct {
	ID           int64     `json:"id"`
	FullName     string    `json:"full_name"`
	Phone        string    `json:"phone"`
	Country      *string   `json:"country"`
	Region       *string   `json:"region"`
	Division     *string   `json:"division"`
	Subdivision  *string   `json:"subdivision"`
	District     *string   `json:"district"`
	Village      *string   `json:"village"`
	Location     *string   `json:"location"`
	GPSLat       *float64  `json:"gps_lat"`
	GPSLng       *float64  `json:"gps_lng"`
	FarmSizeHa   *float64  `json:"farm_size_ha"`
	CropType     *string   `json:"crop_type"`
	ServiceNeeds []string  `json:"service_needs"`
	Notes        *string   `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Normalize trims text fields and turns blank optional strings into nil.
func (f *Farmer) Normalize() {
	f.FullName = strings.TrimSpace(f.FullName)
	f.Phone = strings.TrimSpace(f.Phone)
	for _, p := range []**string{&f.Country, &f.Region, &f.Division, &f.Subdivision, &f.District, &f.Village, &f.Location, &f.CropType, &f.Notes} {
		*p = trimOrNil(*p)
	}
	if len(f.ServiceNeeds) == 0 {
		f.ServiceNeeds = nil
	}
}

// Validate checks the fields required to persist a farmer.
func (f *Farmer) Validate() error {
	if f.FullName == "" {
		return ErrMissingFullName
	}
	if f.Phone == "" {
		return ErrMissingPhone
	}
	if len(f.FullName) > MaxNameLength {
		return ErrNameTooLong
	}
	if f.Notes != nil && len(*f.Notes) > MaxNotesLength {
		return ErrNotesTooLong
	}
	if isNegative(f.FarmSizeHa) {
		return ErrNegativeValue
	}
	return nil
}

// FarmerFilter narrows a farmer listing. Every non-empty member is a
// case-insensitive substring match; Search matches any text column.
type FarmerFilter struct {
	Search   string
	Village  string
	Crop     string
	Region   string
	District string
}

// Provider is a registered farm service provider.
type Provider struct {
	ID                    int64             `json:"id"`
	FullName              string            `json:"full_name"`
	Phone                 string            `json:"phone"`
	ServicesOffered       *string           `json:"services_offered"`
	WorkCapacityHaPerHour *float64          `json:"work_capacity_ha_per_hour"`
	BasePricePerHa        *float64          `json:"base_price_per_ha"`
	EquipmentType         *string           `json:"equipment_type"`
	ServiceRadiusKm       *float64          `json:"service_radius_km"`
	Notes                 *string           `json:"notes"`
	Services              []ProviderService `json:"services,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// ProviderService is one service line offered by a provider.
type ProviderService struct {
	ID                    int64       `json:"id"`
	ProviderID            int64       `json:"provider_id"`
	ServiceName           string      `json:"service_name"`
	WorkCapacityHaPerHour *float64    `json:"work_capacity_ha_per_hour"`
	BasePricePerHa        *float64    `json:"base_price_per_ha"`
	Country               *string     `json:"country"`
	Region                *string     `json:"region"`
	Division              *string     `json:"division"`
	Subdivision           *string     `json:"subdivision"`
	District              *string     `json:"district"`
	Equipment             []Equipment `json:"equipment"`
	CreatedAt             time.Time   `json:"created_at"`
}

// Equipment is a piece of equipment attached to a provider service.
type Equipment struct {
	ID            int64  `json:"id"`
	EquipmentName string `json:"equipment_name"`
}

// Normalize trims text fields, turns blank optional strings into nil and
// drops service lines without a name and equipment without a name.
func (p *Provider) Normalize() {
	p.FullName = strings.TrimSpace(p.FullName)
	p.Phone = strings.TrimSpace(p.Phone)
	p.ServicesOffered = trimOrNil(p.ServicesOffered)
	p.EquipmentType = trimOrNil(p.EquipmentType)
	p.Notes = trimOrNil(p.Notes)

	services := p.Services[:0]
	for _, svc := range p.Services {
		svc.ServiceName = strings.TrimSpace(svc.ServiceName)
		if svc.ServiceName == "" {
			continue
		}
		for _, ptr := range []**string{&svc.Country, &svc.Region, &svc.Division, &svc.Subdivision, &svc.District} {
			*ptr = trimOrNil(*ptr)
		}
		equipment := make([]Equipment, 0, len(svc.Equipment))
		for _, eq := range svc.Equipment {
			eq.EquipmentName = strings.TrimSpace(eq.EquipmentName)
			if eq.EquipmentName != "" {
				equipment = append(equipment, eq)
			}
		}
		svc.Equipment = equipment
		services = append(services, svc)
	}
	p.Services = services
}

// Validate checks the fields required to persist a provider.
func (p *Provider) Validate() error {
	if p.FullName == "" {
		return ErrMissingFullName
	}
	if p.Phone == "" {
		return ErrMissingPhone
	}
	if len(p.FullName) > MaxNameLength {
		return ErrNameTooLong
	}
	if p.Notes != nil && len(*p.Notes) > MaxNotesLength {
		return ErrNotesTooLong
	}
	if isNegative(p.WorkCapacityHaPerHour) || isNegative(p.BasePricePerHa) || isNegative(p.ServiceRadiusKm) {
		return ErrNegativeValue
	}
	for _, svc := range p.Services {
		if isNegative(svc.WorkCapacityHaPerHour) || isNegative(svc.BasePricePerHa) {
			return ErrNegativeValue
		}
	}
	return nil
}

// ProviderFilter narrows a provider listing.
type ProviderFilter struct {
	Search string
}

// BookingStatus is the lifecycle state of a service booking.
type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
)

// IsValidBookingStatus checks if the given booking status is supported.
func IsValidBookingStatus(s BookingStatus) bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingInProgress, BookingCompleted, BookingCancelled:
		return true
	default:
		return false
	}
}

// Booking is a farm service requested by a farmer from a provider.
type Booking struct {
	ID              int64         `json:"id"`
	FarmerID        int64         `json:"farmer_id"`
	ProviderID      int64         `json:"provider_id"`
	ServiceType     string        `json:"service_type"`
	ScheduledDate   *string       `json:"scheduled_date"` // YYYY-MM-DD
	ScheduledTime   *string       `json:"scheduled_time"` // HH:MM
	FarmProduceType *string       `json:"farm_produce_type"`
	FarmSizeHa      *float64      `json:"farm_size_ha"`
	Price           *float64      `json:"price"`
	Status          BookingStatus `json:"status"`
	Notes           *string       `json:"notes"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Normalize trims text fields and defaults the status to pending.
func (b *Booking) Normalize() {
	b.ServiceType = strings.TrimSpace(b.ServiceType)
	b.ScheduledDate = trimOrNil(b.ScheduledDate)
	b.ScheduledTime = trimOrNil(b.ScheduledTime)
	b.FarmProduceType = trimOrNil(b.FarmProduceType)
	b.Notes = trimOrNil(b.Notes)
	if b.Status == "" {
		b.Status = BookingPending
	}
}

// Validate checks the fields required to persist a booking.
func (b *Booking) Validate() error {
	if b.FarmerID <= 0 || b.ProviderID <= 0 {
		return ErrMissingBookingParty
	}
	if b.ServiceType == "" {
		return ErrMissingServiceType
	}
	if !IsValidBookingStatus(b.Status) {
		return ErrInvalidBookingState
	}
	if b.ScheduledDate != nil {
		if _, err := time.Parse("2006-01-02", *b.ScheduledDate); err != nil {
			return ErrInvalidDate
		}
	}
	if b.ScheduledTime != nil {
		if _, err := time.Parse("15:04", *b.ScheduledTime); err != nil {
			return ErrInvalidTime
		}
	}
	if isNegative(b.FarmSizeHa) || isNegative(b.Price) {
		return ErrNegativeValue
	}
	if b.Notes != nil && len(*b.Notes) > MaxNotesLength {
		return ErrNotesTooLong
	}
	return nil
}

// BookingFilter narrows a booking listing; zero members are ignored.
type BookingFilter struct {
	Status     BookingStatus
	FarmerID   int64
	ProviderID int64
}

// AdminRating is an administrator's rating of a farmer or provider.
type AdminRating struct {
	ID        int64     `json:"id"`
	AdminID   int64     `json:"admin_id"`
	RateeType Role      `json:"ratee_type"`
	RateeID   int64     `json:"ratee_id"`
	Rating    float64   `json:"rating"`
	Notes     *string   `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the rating target and range, and defaults the admin id.
func (r *AdminRating) Validate() error {
	if r.RateeType == "" || r.RateeID <= 0 {
		return ErrMissingRatee
	}
	if r.RateeType != RoleFarmer && r.RateeType != RoleProvider {
		return ErrInvalidRateeType
	}
	if r.Rating < MinRating || r.Rating > MaxRating {
		return ErrRatingOutOfRange
	}
	if r.AdminID <= 0 {
		r.AdminID = DefaultAdminID
	}
	r.Notes = trimOrNil(r.Notes)
	return nil
}

// PublicMetrics are the aggregate platform counters shown on the landing page.
type PublicMetrics struct {
	FarmsOnboarded              int       `json:"farmsOnboarded"`
	ServiceProvidersRegistered  int       `json:"serviceProvidersRegistered"`
	ServiceRequestsSubmitted    int       `json:"serviceRequestsSubmitted"`
	CompletedServices           int       `json:"completedServices"`
	ActiveRegions               int       `json:"activeRegions"`
	AverageServiceRating        *float64  `json:"averageServiceRating"`
	OnTimeCompletionRatePercent *int      `json:"onTimeCompletionRatePercent"`
	ComputedAt                  time.Time `json:"computedAt"`
}

func trimOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func isNegative(v *float64) bool {
	return v != nil && *v < 0
}
