package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"

	"github.com/DigiLync/digilync/internal/models"
	"github.com/google/go-cmp/cmp"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "digilync_store_test_")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	dbPath := filepath.Join(tempDir, "nested", "test.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// forEachStore runs fn against every backend that needs no external service.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) { fn(t, NewInMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestSQLiteStore(t)) })
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func TestGetOrCreateSession_IsIdempotentAndNormalizesPhone(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		first, err := s.GetOrCreateSession(ctx, "whatsapp:+237 675-000-111")
		if err != nil {
			t.Fatalf("GetOrCreateSession failed: %v", err)
		}
		if first.Phone != "+237675000111" {
			t.Errorf("Expected normalized phone +237675000111, got %q", first.Phone)
		}
		if first.Role != models.RoleUnknown || first.Step != models.StepWelcome || len(first.Fields) != 0 {
			t.Errorf("Unexpected fresh session: %+v", first)
		}

		second, err := s.GetOrCreateSession(ctx, "+237675000111")
		if err != nil {
			t.Fatalf("second GetOrCreateSession failed: %v", err)
		}
		if second.Phone != first.Phone || !second.CreatedAt.Equal(first.CreatedAt) {
			t.Errorf("Expected the same session row, got %+v vs %+v", second, first)
		}
	})
}

func TestGetOrCreateSession_RejectsPhoneWithoutDigits(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		if _, err := s.GetOrCreateSession(context.Background(), "whatsapp:"); !errors.Is(err, ErrInvalidPhone) {
			t.Errorf("Expected ErrInvalidPhone, got %v", err)
		}
	})
}

func TestGetOrCreateSession_ConcurrentFirstContact(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sess, err := s.GetOrCreateSession(ctx, "+237600000001")
				if err != nil {
					errs <- err
					return
				}
				if sess.Phone != "+237600000001" {
					errs <- errors.New("unexpected phone " + sess.Phone)
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Errorf("concurrent GetOrCreateSession: %v", err)
		}
	})
}

func TestUpdateSession_CoalescesMembers(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		phone := "+237611111111"
		if _, err := s.GetOrCreateSession(ctx, phone); err != nil {
			t.Fatalf("GetOrCreateSession failed: %v", err)
		}

		role := models.RoleFarmer
		step := "farmer_name"
		if err := s.UpdateSession(ctx, phone, models.SessionUpdate{Role: &role, Step: &step, Fields: models.SessionFields{}}); err != nil {
			t.Fatalf("UpdateSession failed: %v", err)
		}

		next := "farmer_village"
		fields := models.SessionFields{"full_name": "Amara"}
		if err := s.UpdateSession(ctx, phone, models.SessionUpdate{Step: &next, Fields: fields}); err != nil {
			t.Fatalf("UpdateSession failed: %v", err)
		}

		got, err := s.GetSession(ctx, phone)
		if err != nil || got == nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got.Role != models.RoleFarmer {
			t.Errorf("Expected role to be kept as farmer, got %q", got.Role)
		}
		if got.Step != next {
			t.Errorf("Expected step %q, got %q", next, got.Step)
		}
		if diff := cmp.Diff(fields, got.Fields); diff != "" {
			t.Errorf("Fields mismatch (-want +got):\n%s", diff)
		}

		// Step only: fields untouched.
		last := "farmer_farm_size"
		if err := s.UpdateSession(ctx, phone, models.SessionUpdate{Step: &last}); err != nil {
			t.Fatalf("UpdateSession failed: %v", err)
		}
		got, _ = s.GetSession(ctx, phone)
		if got.Fields["full_name"] != "Amara" {
			t.Errorf("Expected fields to survive a step-only update, got %v", got.Fields)
		}
		if got.UpdatedAt.Before(got.CreatedAt) {
			t.Errorf("updated_at %v precedes created_at %v", got.UpdatedAt, got.CreatedAt)
		}
	})
}

func TestGetSession_Missing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		got, err := s.GetSession(context.Background(), "+1555")
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got != nil {
			t.Errorf("Expected nil session, got %+v", got)
		}
	})
}

func TestIdentityLookupByDigits(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		farmer := &models.Farmer{FullName: "Amara", Phone: "+237 675 000 111"}
		if err := s.CreateFarmer(ctx, farmer); err != nil {
			t.Fatalf("CreateFarmer failed: %v", err)
		}
		provider := &models.Provider{FullName: "Tractor Co", Phone: "237-699-000-222"}
		if err := s.CreateProvider(ctx, provider); err != nil {
			t.Fatalf("CreateProvider failed: %v", err)
		}

		got, err := s.FindFarmerByPhoneDigits(ctx, "237675000111")
		if err != nil {
			t.Fatalf("FindFarmerByPhoneDigits failed: %v", err)
		}
		want := &models.Identity{Kind: models.RoleFarmer, ID: farmer.ID, Name: "Amara"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("farmer identity mismatch (-want +got):\n%s", diff)
		}

		gotProvider, err := s.FindProviderByPhoneDigits(ctx, "237699000222")
		if err != nil {
			t.Fatalf("FindProviderByPhoneDigits failed: %v", err)
		}
		if gotProvider == nil || gotProvider.ID != provider.ID || gotProvider.Kind != models.RoleProvider {
			t.Errorf("Unexpected provider identity: %+v", gotProvider)
		}

		none, err := s.FindFarmerByPhoneDigits(ctx, "237699000222")
		if err != nil || none != nil {
			t.Errorf("Expected no farmer for provider phone, got %+v, %v", none, err)
		}
	})
}

func TestFarmerCRUDAndFilters(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := &models.Farmer{FullName: "Amara Nkemelu", Phone: "+237600000010", Village: strPtr("Bafut"),
			CropType: strPtr("Maize"), Region: strPtr("North West"), FarmSizeHa: floatPtr(2.5),
			ServiceNeeds: []string{"plowing", "harvesting"}}
		b := &models.Farmer{FullName: "Bello Sani", Phone: "+237600000011", Village: strPtr("Garoua"), CropType: strPtr("cotton")}
		for _, f := range []*models.Farmer{a, b} {
			if err := s.CreateFarmer(ctx, f); err != nil {
				t.Fatalf("CreateFarmer failed: %v", err)
			}
		}

		got, err := s.GetFarmer(ctx, a.ID)
		if err != nil {
			t.Fatalf("GetFarmer failed: %v", err)
		}
		if diff := cmp.Diff([]string{"plowing", "harvesting"}, got.ServiceNeeds); diff != "" {
			t.Errorf("service needs mismatch (-want +got):\n%s", diff)
		}
		if got.FarmSizeHa == nil || *got.FarmSizeHa != 2.5 {
			t.Errorf("Expected farm size 2.5, got %v", got.FarmSizeHa)
		}
		if got.Country != nil {
			t.Errorf("Expected nil country, got %q", *got.Country)
		}

		all, err := s.ListFarmers(ctx, models.FarmerFilter{})
		if err != nil {
			t.Fatalf("ListFarmers failed: %v", err)
		}
		if len(all) != 2 || all[0].ID != b.ID {
			t.Errorf("Expected newest farmer first, got %d farmers", len(all))
		}

		cases := []struct {
			name   string
			filter models.FarmerFilter
			want   int64
		}{
			{"search is case-insensitive", models.FarmerFilter{Search: "amara"}, a.ID},
			{"village", models.FarmerFilter{Village: "garou"}, b.ID},
			{"crop", models.FarmerFilter{Crop: "MAIZE"}, a.ID},
			{"region", models.FarmerFilter{Region: "west"}, a.ID},
		}
		for _, tc := range cases {
			farmers, err := s.ListFarmers(ctx, tc.filter)
			if err != nil {
				t.Fatalf("%s: ListFarmers failed: %v", tc.name, err)
			}
			if len(farmers) != 1 || farmers[0].ID != tc.want {
				t.Errorf("%s: expected farmer %d, got %+v", tc.name, tc.want, farmers)
			}
		}

		b.CropType = strPtr("sorghum")
		b.Phone = "+237600000099"
		if err := s.UpdateFarmer(ctx, b); err != nil {
			t.Fatalf("UpdateFarmer failed: %v", err)
		}
		if b.CropType == nil || *b.CropType != "sorghum" {
			t.Errorf("Expected updated crop, got %v", b.CropType)
		}
		id, _ := s.FindFarmerByPhoneDigits(ctx, "237600000099")
		if id == nil || id.ID != b.ID {
			t.Errorf("Expected identity lookup to follow phone update, got %+v", id)
		}

		if err := s.DeleteFarmer(ctx, b.ID); err != nil {
			t.Fatalf("DeleteFarmer failed: %v", err)
		}
		if _, err := s.GetFarmer(ctx, b.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}
		if err := s.DeleteFarmer(ctx, b.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
		}
		if err := s.UpdateFarmer(ctx, &models.Farmer{ID: 999, FullName: "x", Phone: "1"}); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound updating missing farmer, got %v", err)
		}
	})
}

func TestProviderServicesLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		p := &models.Provider{
			FullName:        "Tractor Co",
			Phone:           "+237699000222",
			ServicesOffered: strPtr("plowing"),
			Services: []models.ProviderService{
				{ServiceName: "plowing", BasePricePerHa: floatPtr(15000), Equipment: []models.Equipment{{EquipmentName: "tractor"}}},
				{ServiceName: "spraying"},
			},
		}
		if err := s.CreateProvider(ctx, p); err != nil {
			t.Fatalf("CreateProvider failed: %v", err)
		}

		got, err := s.GetProvider(ctx, p.ID)
		if err != nil {
			t.Fatalf("GetProvider failed: %v", err)
		}
		if len(got.Services) != 2 {
			t.Fatalf("Expected 2 services, got %d", len(got.Services))
		}
		if got.Services[0].ServiceName != "plowing" || len(got.Services[0].Equipment) != 1 ||
			got.Services[0].Equipment[0].EquipmentName != "tractor" {
			t.Errorf("Unexpected first service: %+v", got.Services[0])
		}
		if got.Services[1].Equipment == nil {
			t.Error("Expected empty equipment slice, got nil")
		}

		p.Services = []models.ProviderService{{ServiceName: "harvesting"}}
		if err := s.UpdateProvider(ctx, p, true); err != nil {
			t.Fatalf("UpdateProvider failed: %v", err)
		}
		if len(p.Services) != 1 || p.Services[0].ServiceName != "harvesting" {
			t.Errorf("Expected services replaced, got %+v", p.Services)
		}

		p.ServicesOffered = strPtr("harvesting")
		p.Services = nil
		if err := s.UpdateProvider(ctx, p, false); err != nil {
			t.Fatalf("UpdateProvider failed: %v", err)
		}
		if len(p.Services) != 1 {
			t.Errorf("Expected services kept when not replacing, got %+v", p.Services)
		}

		list, err := s.ListProviders(ctx, models.ProviderFilter{Search: "HARVEST"})
		if err != nil {
			t.Fatalf("ListProviders failed: %v", err)
		}
		if len(list) != 1 || list[0].ID != p.ID {
			t.Errorf("Expected provider in search results, got %+v", list)
		}

		if err := s.DeleteProvider(ctx, p.ID); err != nil {
			t.Fatalf("DeleteProvider failed: %v", err)
		}
		if _, err := s.GetProvider(ctx, p.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestBookingsAndCascade(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		f := &models.Farmer{FullName: "Amara", Phone: "+237600000020"}
		p := &models.Provider{FullName: "Tractor Co", Phone: "+237600000021"}
		if err := s.CreateFarmer(ctx, f); err != nil {
			t.Fatalf("CreateFarmer failed: %v", err)
		}
		if err := s.CreateProvider(ctx, p); err != nil {
			t.Fatalf("CreateProvider failed: %v", err)
		}

		b := &models.Booking{FarmerID: f.ID, ProviderID: p.ID, ServiceType: "plowing",
			ScheduledDate: strPtr("2025-03-01"), ScheduledTime: strPtr("08:30"), Status: models.BookingPending}
		if err := s.CreateBooking(ctx, b); err != nil {
			t.Fatalf("CreateBooking failed: %v", err)
		}

		if err := s.UpdateBookingStatus(ctx, b.ID, models.BookingCompleted); err != nil {
			t.Fatalf("UpdateBookingStatus failed: %v", err)
		}
		if err := s.UpdateBookingStatus(ctx, b.ID, "archived"); !errors.Is(err, models.ErrInvalidBookingState) {
			t.Errorf("Expected ErrInvalidBookingState, got %v", err)
		}
		got, err := s.GetBooking(ctx, b.ID)
		if err != nil {
			t.Fatalf("GetBooking failed: %v", err)
		}
		if got.Status != models.BookingCompleted || *got.ScheduledTime != "08:30" {
			t.Errorf("Unexpected booking: %+v", got)
		}

		completed, err := s.ListBookings(ctx, models.BookingFilter{Status: models.BookingCompleted, FarmerID: f.ID})
		if err != nil {
			t.Fatalf("ListBookings failed: %v", err)
		}
		if len(completed) != 1 {
			t.Errorf("Expected one completed booking, got %d", len(completed))
		}

		if err := s.DeleteFarmer(ctx, f.ID); err != nil {
			t.Fatalf("DeleteFarmer failed: %v", err)
		}
		if _, err := s.GetBooking(ctx, b.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected booking removed with its farmer, got %v", err)
		}
	})
}

func TestAdminRatingUpsert(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		r := &models.AdminRating{AdminID: 1, RateeType: models.RoleFarmer, RateeID: 7, Rating: 3}
		if err := s.UpsertAdminRating(ctx, r); err != nil {
			t.Fatalf("UpsertAdminRating failed: %v", err)
		}
		again := &models.AdminRating{AdminID: 1, RateeType: models.RoleFarmer, RateeID: 7, Rating: 4.5, Notes: strPtr("reliable")}
		if err := s.UpsertAdminRating(ctx, again); err != nil {
			t.Fatalf("UpsertAdminRating failed: %v", err)
		}
		other := &models.AdminRating{AdminID: 2, RateeType: models.RoleFarmer, RateeID: 7, Rating: 5}
		if err := s.UpsertAdminRating(ctx, other); err != nil {
			t.Fatalf("UpsertAdminRating failed: %v", err)
		}

		ratings, err := s.ListAdminRatings(ctx, models.RoleFarmer, 7)
		if err != nil {
			t.Fatalf("ListAdminRatings failed: %v", err)
		}
		if len(ratings) != 2 {
			t.Fatalf("Expected 2 ratings after upsert, got %d", len(ratings))
		}
		for _, got := range ratings {
			if got.AdminID == 1 && (got.Rating != 4.5 || got.Notes == nil || *got.Notes != "reliable") {
				t.Errorf("Expected admin 1 rating replaced, got %+v", got)
			}
		}

		none, err := s.ListAdminRatings(ctx, models.RoleProvider, 7)
		if err != nil || len(none) != 0 {
			t.Errorf("Expected no provider ratings, got %v, %v", none, err)
		}
	})
}

func TestComputePublicMetrics(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		empty, err := s.ComputePublicMetrics(ctx)
		if err != nil {
			t.Fatalf("ComputePublicMetrics failed: %v", err)
		}
		if empty.FarmsOnboarded != 0 || empty.AverageServiceRating != nil || empty.OnTimeCompletionRatePercent != nil {
			t.Errorf("Unexpected metrics for empty store: %+v", empty)
		}

		f1 := &models.Farmer{FullName: "A", Phone: "1", District: strPtr("Mezam")}
		f2 := &models.Farmer{FullName: "B", Phone: "2", Village: strPtr("Bafut")}
		f3 := &models.Farmer{FullName: "C", Phone: "3", District: strPtr("Mezam")}
		f4 := &models.Farmer{FullName: "D", Phone: "4"}
		for _, f := range []*models.Farmer{f1, f2, f3, f4} {
			if err := s.CreateFarmer(ctx, f); err != nil {
				t.Fatalf("CreateFarmer failed: %v", err)
			}
		}
		p := &models.Provider{FullName: "P", Phone: "5"}
		if err := s.CreateProvider(ctx, p); err != nil {
			t.Fatalf("CreateProvider failed: %v", err)
		}
		statuses := []models.BookingStatus{models.BookingCompleted, models.BookingPending, models.BookingPending}
		for _, st := range statuses {
			if err := s.CreateBooking(ctx, &models.Booking{FarmerID: f1.ID, ProviderID: p.ID, ServiceType: "plowing", Status: st}); err != nil {
				t.Fatalf("CreateBooking failed: %v", err)
			}
		}
		for i, rating := range []float64{4, 5, 4} {
			r := &models.AdminRating{AdminID: int64(i + 1), RateeType: models.RoleProvider, RateeID: p.ID, Rating: rating}
			if err := s.UpsertAdminRating(ctx, r); err != nil {
				t.Fatalf("UpsertAdminRating failed: %v", err)
			}
		}

		m, err := s.ComputePublicMetrics(ctx)
		if err != nil {
			t.Fatalf("ComputePublicMetrics failed: %v", err)
		}
		if m.FarmsOnboarded != 4 || m.ServiceProvidersRegistered != 1 || m.ServiceRequestsSubmitted != 3 || m.CompletedServices != 1 {
			t.Errorf("Unexpected counts: %+v", m)
		}
		if m.ActiveRegions != 2 {
			t.Errorf("Expected 2 active regions, got %d", m.ActiveRegions)
		}
		if m.AverageServiceRating == nil || *m.AverageServiceRating != 4.3 {
			t.Errorf("Expected average rating 4.3, got %v", m.AverageServiceRating)
		}
		if m.OnTimeCompletionRatePercent == nil || *m.OnTimeCompletionRatePercent != 33 {
			t.Errorf("Expected completion rate 33, got %v", m.OnTimeCompletionRatePercent)
		}
	})
}

func TestDedupRepo(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		isNew, err := s.RecordInbound(ctx, "SM1", "+237600000001")
		if err != nil {
			t.Fatalf("RecordInbound failed: %v", err)
		}
		if !isNew {
			t.Error("Expected isNew=true for first record")
		}
		// A retry before the first attempt finished processing is claimed again.
		isNew, err = s.RecordInbound(ctx, "SM1", "+237600000001")
		if err != nil {
			t.Fatalf("RecordInbound retry failed: %v", err)
		}
		if !isNew {
			t.Error("Expected isNew=true for an unprocessed retry")
		}
		if err := s.MarkProcessed(ctx, "SM1"); err != nil {
			t.Fatalf("MarkProcessed failed: %v", err)
		}
		isNew, err = s.RecordInbound(ctx, "SM1", "+237600000001")
		if err != nil {
			t.Fatalf("RecordInbound duplicate failed: %v", err)
		}
		if isNew {
			t.Error("Expected isNew=false once processed")
		}
	})
}

func TestReceipts(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, st := range []models.MessageStatus{models.MessageStatusSent, models.MessageStatusDelivered} {
			if err := s.AddReceipt(ctx, models.Receipt{MessageID: "SM9", To: "+237600000001", Status: st, Time: 1}); err != nil {
				t.Fatalf("AddReceipt failed: %v", err)
			}
		}
		receipts, err := s.GetReceipts(ctx, "SM9")
		if err != nil {
			t.Fatalf("GetReceipts failed: %v", err)
		}
		if len(receipts) != 2 || receipts[1].Status != models.MessageStatusDelivered {
			t.Errorf("Unexpected receipts: %+v", receipts)
		}
	})
}

func TestRebind(t *testing.T) {
	got := rebind(`SELECT a FROM t WHERE b = ? AND c IN (?, ?)`)
	want := `SELECT a FROM t WHERE b = $1 AND c IN ($2, $3)`
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}
}

func TestDetectDSNType(t *testing.T) {
	cases := map[string]string{
		"postgres://user@localhost/db":     "postgres",
		"postgresql://user@localhost/db":   "postgres",
		"host=localhost dbname=digilync":   "postgres",
		"/var/lib/digilync/digilync.db":    "sqlite3",
		"file:digilync.db?_busy_timeout=5": "sqlite3",
	}
	for dsn, want := range cases {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestWithSQLiteParams(t *testing.T) {
	if got := withSQLiteParams("a.db"); got != "a.db?"+sqliteParams {
		t.Errorf("unexpected dsn %q", got)
	}
	if got := withSQLiteParams("file:a.db?cache=shared"); got != "file:a.db?cache=shared&"+sqliteParams {
		t.Errorf("unexpected dsn %q", got)
	}
	if got := withSQLiteParams("a.db?_foreign_keys=off"); got != "a.db?_foreign_keys=off" {
		t.Errorf("expected caller params kept, got %q", got)
	}
}

func TestOpen_EmptyDSNUsesMemory(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*InMemoryStore); !ok {
		t.Errorf("Expected *InMemoryStore, got %T", s)
	}
}

func TestPostgresStore(t *testing.T) {
	// Requires a running PostgreSQL instance; set DATABASE_URL to enable.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	pgStore, err := NewPostgresStore(WithPostgresDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer pgStore.Close()
	ctx := context.Background()
	phone := "+19990001234"
	pgStore.db.Exec("DELETE FROM whatsapp_sessions WHERE wa_phone = $1", phone)

	sess, err := pgStore.GetOrCreateSession(ctx, phone)
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	step := "provider_name"
	if err := pgStore.UpdateSession(ctx, phone, models.SessionUpdate{Step: &step}); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	got, err := pgStore.GetSession(ctx, phone)
	if err != nil || got == nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Step != step || got.Role != sess.Role {
		t.Errorf("Unexpected session after update: %+v", got)
	}
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}
