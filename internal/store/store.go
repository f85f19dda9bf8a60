// Package store provides storage backends for DigiLync.
//
// It includes an in-memory store for tests and development, and SQL stores
// backed by PostgreSQL (production) or SQLite (single-node deployments).
package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/DigiLync/digilync/internal/models"
)

// ErrNotFound is returned when a record addressed by id does not exist.
var ErrNotFound = errors.New("record not found")

// SessionStore persists one WhatsApp conversation session per phone number.
type SessionStore interface {
	// GetOrCreateSession returns the session for phone, inserting a fresh
	// welcome session if none exists. Concurrent first contacts resolve to
	// the same persisted row.
	GetOrCreateSession(ctx context.Context, phone string) (*models.Session, error)

	// UpdateSession applies a partial update and stamps updated_at.
	UpdateSession(ctx context.Context, phone string, update models.SessionUpdate) error

	// GetSession returns the session for phone, or nil if none exists.
	GetSession(ctx context.Context, phone string) (*models.Session, error)
}

// IdentityStore looks up registered users by the digits of their phone number.
type IdentityStore interface {
	FindFarmerByPhoneDigits(ctx context.Context, digits string) (*models.Identity, error)
	FindProviderByPhoneDigits(ctx context.Context, digits string) (*models.Identity, error)
}

// FarmerStore manages farmer records.
type FarmerStore interface {
	CreateFarmer(ctx context.Context, f *models.Farmer) error
	GetFarmer(ctx context.Context, id int64) (*models.Farmer, error)
	ListFarmers(ctx context.Context, filter models.FarmerFilter) ([]models.Farmer, error)
	UpdateFarmer(ctx context.Context, f *models.Farmer) error
	DeleteFarmer(ctx context.Context, id int64) error
}

// ProviderStore manages provider records together with their service lines.
type ProviderStore interface {
	CreateProvider(ctx context.Context, p *models.Provider) error
	GetProvider(ctx context.Context, id int64) (*models.Provider, error)
	ListProviders(ctx context.Context, filter models.ProviderFilter) ([]models.Provider, error)
	// UpdateProvider replaces the provider row. When replaceServices is true the
	// service lines are replaced by p.Services in the same transaction.
	UpdateProvider(ctx context.Context, p *models.Provider, replaceServices bool) error
	DeleteProvider(ctx context.Context, id int64) error
}

// BookingStore manages service bookings.
type BookingStore interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	UpdateBooking(ctx context.Context, b *models.Booking) error
	UpdateBookingStatus(ctx context.Context, id int64, status models.BookingStatus) error
	DeleteBooking(ctx context.Context, id int64) error
}

// RatingStore manages admin ratings of farmers and providers.
type RatingStore interface {
	// UpsertAdminRating inserts a rating or replaces the one an admin already
	// gave the same ratee.
	UpsertAdminRating(ctx context.Context, r *models.AdminRating) error
	ListAdminRatings(ctx context.Context, rateeType models.Role, rateeID int64) ([]models.AdminRating, error)
}

// MetricsStore computes the public platform counters.
type MetricsStore interface {
	ComputePublicMetrics(ctx context.Context) (models.PublicMetrics, error)
}

// DedupRepo defines the interface for inbound message deduplication.
type DedupRepo interface {
	// RecordInbound claims an inbound message id. Returns false if the message
	// was already processed (duplicate); a recorded but unprocessed id is
	// claimed again so a transport retry after a failure is handled.
	RecordInbound(ctx context.Context, messageID, phone string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for a message.
	MarkProcessed(ctx context.Context, messageID string) error
}

// ReceiptStore records delivery status callbacks.
type ReceiptStore interface {
	AddReceipt(ctx context.Context, r models.Receipt) error
	GetReceipts(ctx context.Context, messageID string) ([]models.Receipt, error)
}

// Store is the full persistence surface used by the application.
type Store interface {
	SessionStore
	IdentityStore
	FarmerStore
	ProviderStore
	BookingStore
	RatingStore
	MetricsStore
	DedupRepo
	ReceiptStore
	Close() error
}

// Opts holds configuration options for SQL stores.
type Opts struct {
	DSN string // database connection string or SQLite file path
}

// Option defines a configuration option for SQL stores.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and
// "sqlite3" for anything else (treated as a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// Open returns the store matching dsn: PostgreSQL, SQLite, or an in-memory
// store when dsn is empty.
func Open(dsn string) (Store, error) {
	switch {
	case dsn == "":
		slog.Warn("No database DSN provided, using in-memory store; data will not survive restarts")
		return NewInMemoryStore(), nil
	case DetectDSNType(dsn) == "postgres":
		return NewPostgresStore(WithPostgresDSN(dsn))
	default:
		return NewSQLiteStore(WithSQLiteDSN(dsn))
	}
}
