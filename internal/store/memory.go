package store

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DigiLync/digilync/internal/models"
)

// InMemoryStore is a mutex-guarded Store used in tests and when no database
// is configured. It mirrors the SQL stores' semantics, including cascading
// deletes and the admin rating upsert key.
type InMemoryStore struct {
	mu sync.RWMutex

	sessions  map[string]models.Session
	farmers   map[int64]models.Farmer
	providers map[int64]models.Provider
	bookings  map[int64]models.Booking
	ratings   []models.AdminRating
	inbound   map[string]bool // message id -> processed
	receipts  []models.Receipt

	nextFarmerID    int64
	nextProviderID  int64
	nextServiceID   int64
	nextEquipmentID int64
	nextBookingID   int64
	nextRatingID    int64
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions:  make(map[string]models.Session),
		farmers:   make(map[int64]models.Farmer),
		providers: make(map[int64]models.Provider),
		bookings:  make(map[int64]models.Booking),
		inbound:   make(map[string]bool),
	}
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

func cloneSession(sess models.Session) *models.Session {
	fields := make(models.SessionFields, len(sess.Fields))
	for k, v := range sess.Fields {
		fields[k] = v
	}
	sess.Fields = fields
	return &sess
}

// GetSession returns a copy of the session for phone, or nil.
func (s *InMemoryStore) GetSession(ctx context.Context, phone string) (*models.Session, error) {
	key := models.NormalizePhone(phone)
	if key == "" {
		return nil, ErrInvalidPhone
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	if !ok {
		return nil, nil
	}
	return cloneSession(sess), nil
}

// GetOrCreateSession returns the session for phone, creating it if absent.
func (s *InMemoryStore) GetOrCreateSession(ctx context.Context, phone string) (*models.Session, error) {
	key := models.NormalizePhone(phone)
	if key == "" {
		return nil, ErrInvalidPhone
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		ts := now()
		sess = models.Session{
			Phone:     key,
			Role:      models.RoleUnknown,
			Step:      models.StepWelcome,
			Fields:    models.SessionFields{},
			CreatedAt: ts,
			UpdatedAt: ts,
		}
		s.sessions[key] = sess
	}
	return cloneSession(sess), nil
}

// UpdateSession coalesces update onto the stored session. Updating a phone
// without a session is a no-op, as with the SQL stores.
func (s *InMemoryStore) UpdateSession(ctx context.Context, phone string, update models.SessionUpdate) error {
	key := models.NormalizePhone(phone)
	if key == "" {
		return ErrInvalidPhone
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return nil
	}
	if update.Role != nil {
		sess.Role = *update.Role
	}
	if update.Step != nil {
		sess.Step = *update.Step
	}
	if update.Fields != nil {
		sess.Fields = cloneSession(models.Session{Fields: update.Fields}).Fields
	}
	sess.UpdatedAt = now()
	s.sessions[key] = sess
	return nil
}

// FindFarmerByPhoneDigits returns the lowest-id farmer whose phone digits match.
func (s *InMemoryStore) FindFarmerByPhoneDigits(ctx context.Context, digits string) (*models.Identity, error) {
	if digits == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Identity
	for _, f := range s.farmers {
		if models.PhoneDigits(f.Phone) == digits && (found == nil || f.ID < found.ID) {
			found = &models.Identity{Kind: models.RoleFarmer, ID: f.ID, Name: f.FullName}
		}
	}
	return found, nil
}

// FindProviderByPhoneDigits returns the lowest-id provider whose phone digits match.
func (s *InMemoryStore) FindProviderByPhoneDigits(ctx context.Context, digits string) (*models.Identity, error) {
	if digits == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Identity
	for _, p := range s.providers {
		if models.PhoneDigits(p.Phone) == digits && (found == nil || p.ID < found.ID) {
			found = &models.Identity{Kind: models.RoleProvider, ID: p.ID, Name: p.FullName}
		}
	}
	return found, nil
}

// containsFold reports whether field contains term, ignoring case.
func containsFold(field *string, term string) bool {
	if field == nil {
		return false
	}
	return strings.Contains(strings.ToLower(*field), strings.ToLower(strings.TrimSpace(term)))
}

func (s *InMemoryStore) CreateFarmer(ctx context.Context, f *models.Farmer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFarmerID++
	ts := now()
	f.ID = s.nextFarmerID
	f.CreatedAt, f.UpdatedAt = ts, ts
	s.farmers[f.ID] = cloneFarmer(*f)
	return nil
}

func (s *InMemoryStore) GetFarmer(ctx context.Context, id int64) (*models.Farmer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.farmers[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneFarmer(f)
	return &out, nil
}

func (s *InMemoryStore) ListFarmers(ctx context.Context, filter models.FarmerFilter) ([]models.Farmer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	farmers := []models.Farmer{}
	for _, f := range s.farmers {
		if filter.Search != "" {
			name, phone := f.FullName, f.Phone
			if !containsFold(&name, filter.Search) && !containsFold(&phone, filter.Search) &&
				!containsFold(f.Village, filter.Search) && !containsFold(f.CropType, filter.Search) &&
				!containsFold(f.Region, filter.Search) && !containsFold(f.District, filter.Search) &&
				!containsFold(f.Location, filter.Search) {
				continue
			}
		}
		if filter.Village != "" && !containsFold(f.Village, filter.Village) {
			continue
		}
		if filter.Crop != "" && !containsFold(f.CropType, filter.Crop) {
			continue
		}
		if filter.Region != "" && !containsFold(f.Region, filter.Region) {
			continue
		}
		if filter.District != "" && !containsFold(f.District, filter.District) {
			continue
		}
		farmers = append(farmers, cloneFarmer(f))
	}
	sort.Slice(farmers, func(i, j int) bool { return farmers[i].ID > farmers[j].ID })
	return farmers, nil
}

func (s *InMemoryStore) UpdateFarmer(ctx context.Context, f *models.Farmer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.farmers[f.ID]
	if !ok {
		return ErrNotFound
	}
	f.CreatedAt = existing.CreatedAt
	f.UpdatedAt = now()
	s.farmers[f.ID] = cloneFarmer(*f)
	return nil
}

func (s *InMemoryStore) DeleteFarmer(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.farmers[id]; !ok {
		return ErrNotFound
	}
	delete(s.farmers, id)
	for bid, b := range s.bookings {
		if b.FarmerID == id {
			delete(s.bookings, bid)
		}
	}
	return nil
}

func cloneFarmer(f models.Farmer) models.Farmer {
	if f.ServiceNeeds != nil {
		f.ServiceNeeds = append([]string(nil), f.ServiceNeeds...)
	}
	return f
}

func cloneProvider(p models.Provider) models.Provider {
	if p.Services == nil {
		return p
	}
	services := make([]models.ProviderService, len(p.Services))
	for i, svc := range p.Services {
		svc.Equipment = append([]models.Equipment{}, svc.Equipment...)
		services[i] = svc
	}
	p.Services = services
	return p
}

// assignServiceIDs numbers new service lines and equipment.
func (s *InMemoryStore) assignServiceIDs(p *models.Provider, ts time.Time) {
	for i := range p.Services {
		svc := &p.Services[i]
		s.nextServiceID++
		svc.ID = s.nextServiceID
		svc.ProviderID = p.ID
		svc.CreatedAt = ts
		if svc.Equipment == nil {
			svc.Equipment = []models.Equipment{}
		}
		for j := range svc.Equipment {
			s.nextEquipmentID++
			svc.Equipment[j].ID = s.nextEquipmentID
		}
	}
}

func (s *InMemoryStore) CreateProvider(ctx context.Context, p *models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextProviderID++
	ts := now()
	p.ID = s.nextProviderID
	p.CreatedAt, p.UpdatedAt = ts, ts
	s.assignServiceIDs(p, ts)
	if p.Services == nil {
		p.Services = []models.ProviderService{}
	}
	s.providers[p.ID] = cloneProvider(*p)
	return nil
}

func (s *InMemoryStore) GetProvider(ctx context.Context, id int64) (*models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneProvider(p)
	return &out, nil
}

func (s *InMemoryStore) ListProviders(ctx context.Context, filter models.ProviderFilter) ([]models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	providers := []models.Provider{}
	for _, p := range s.providers {
		if filter.Search != "" {
			name, phone := p.FullName, p.Phone
			if !containsFold(&name, filter.Search) && !containsFold(&phone, filter.Search) &&
				!containsFold(p.ServicesOffered, filter.Search) && !containsFold(p.EquipmentType, filter.Search) {
				continue
			}
		}
		p.Services = nil
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].ID > providers[j].ID })
	return providers, nil
}

func (s *InMemoryStore) UpdateProvider(ctx context.Context, p *models.Provider, replaceServices bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.providers[p.ID]
	if !ok {
		return ErrNotFound
	}
	ts := now()
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = ts
	if replaceServices {
		s.assignServiceIDs(p, ts)
		if p.Services == nil {
			p.Services = []models.ProviderService{}
		}
	} else {
		p.Services = cloneProvider(existing).Services
	}
	s.providers[p.ID] = cloneProvider(*p)
	return nil
}

func (s *InMemoryStore) DeleteProvider(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[id]; !ok {
		return ErrNotFound
	}
	delete(s.providers, id)
	for bid, b := range s.bookings {
		if b.ProviderID == id {
			delete(s.bookings, bid)
		}
	}
	return nil
}

func (s *InMemoryStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBookingID++
	ts := now()
	b.ID = s.nextBookingID
	b.CreatedAt, b.UpdatedAt = ts, ts
	s.bookings[b.ID] = *b
	return nil
}

func (s *InMemoryStore) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s *InMemoryStore) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bookings := []models.Booking{}
	for _, b := range s.bookings {
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.FarmerID > 0 && b.FarmerID != filter.FarmerID {
			continue
		}
		if filter.ProviderID > 0 && b.ProviderID != filter.ProviderID {
			continue
		}
		bookings = append(bookings, b)
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].ID > bookings[j].ID })
	return bookings, nil
}

func (s *InMemoryStore) UpdateBooking(ctx context.Context, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.bookings[b.ID]
	if !ok {
		return ErrNotFound
	}
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = now()
	s.bookings[b.ID] = *b
	return nil
}

func (s *InMemoryStore) UpdateBookingStatus(ctx context.Context, id int64, status models.BookingStatus) error {
	if !models.IsValidBookingStatus(status) {
		return models.ErrInvalidBookingState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = now()
	s.bookings[id] = b
	return nil
}

func (s *InMemoryStore) DeleteBooking(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[id]; !ok {
		return ErrNotFound
	}
	delete(s.bookings, id)
	return nil
}

func (s *InMemoryStore) UpsertAdminRating(ctx context.Context, r *models.AdminRating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.CreatedAt = now()
	for i, existing := range s.ratings {
		if existing.RateeType == r.RateeType && existing.RateeID == r.RateeID && existing.AdminID == r.AdminID {
			r.ID = existing.ID
			s.ratings[i] = *r
			return nil
		}
	}
	s.nextRatingID++
	r.ID = s.nextRatingID
	s.ratings = append(s.ratings, *r)
	return nil
}

func (s *InMemoryStore) ListAdminRatings(ctx context.Context, rateeType models.Role, rateeID int64) ([]models.AdminRating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ratings := []models.AdminRating{}
	for _, r := range s.ratings {
		if r.RateeType == rateeType && r.RateeID == rateeID {
			ratings = append(ratings, r)
		}
	}
	sort.Slice(ratings, func(i, j int) bool {
		if !ratings[i].CreatedAt.Equal(ratings[j].CreatedAt) {
			return ratings[i].CreatedAt.After(ratings[j].CreatedAt)
		}
		return ratings[i].ID > ratings[j].ID
	})
	return ratings, nil
}

func (s *InMemoryStore) ComputePublicMetrics(ctx context.Context) (models.PublicMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := models.PublicMetrics{
		FarmsOnboarded:             len(s.farmers),
		ServiceProvidersRegistered: len(s.providers),
		ServiceRequestsSubmitted:   len(s.bookings),
	}
	for _, b := range s.bookings {
		if b.Status == models.BookingCompleted {
			m.CompletedServices++
		}
	}

	regions := map[string]struct{}{}
	for _, f := range s.farmers {
		for _, area := range []*string{f.District, f.Division, f.Region, f.Village} {
			if area == nil {
				continue
			}
			if strings.TrimSpace(*area) != "" {
				regions[*area] = struct{}{}
			}
			break
		}
	}
	m.ActiveRegions = len(regions)

	if len(s.ratings) > 0 {
		var sum float64
		for _, r := range s.ratings {
			sum += r.Rating
		}
		avg := math.Round(sum/float64(len(s.ratings))*10) / 10
		m.AverageServiceRating = &avg
	}
	m.OnTimeCompletionRatePercent = completionRate(m.CompletedServices, m.ServiceRequestsSubmitted)
	m.ComputedAt = now()
	return m, nil
}

func (s *InMemoryStore) RecordInbound(ctx context.Context, messageID, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if processed := s.inbound[messageID]; processed {
		return false, nil
	}
	s.inbound[messageID] = false
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.inbound[messageID]; seen {
		s.inbound[messageID] = true
	}
	return nil
}

func (s *InMemoryStore) AddReceipt(ctx context.Context, r models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

func (s *InMemoryStore) GetReceipts(ctx context.Context, messageID string) ([]models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	receipts := []models.Receipt{}
	for _, r := range s.receipts {
		if r.MessageID == messageID {
			receipts = append(receipts, r)
		}
	}
	return receipts, nil
}
