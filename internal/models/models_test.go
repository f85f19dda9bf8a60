package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw, want string
	}{
		{"whatsapp:+237675000111", "+237675000111"},
		{"WhatsApp:+237 675 000 111", "+237675000111"},
		{"  +237-675-000-111 ", "+237675000111"},
		{"237675000111", "+237675000111"},
		{"whatsapp:", ""},
		{"", ""},
		{"abc", ""},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.raw); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestPhoneDigits(t *testing.T) {
	if got := PhoneDigits("+237 (675) 000-111"); got != "237675000111" {
		t.Errorf("PhoneDigits = %q", got)
	}
	// Non-ASCII digits are not phone digits.
	if got := PhoneDigits("٢٣٧"); got != "" {
		t.Errorf("expected no ASCII digits, got %q", got)
	}
}

func TestRoleIsValid(t *testing.T) {
	for _, r := range []Role{RoleUnknown, RoleFarmer, RoleProvider} {
		if !r.IsValid() {
			t.Errorf("expected %q to be valid", r)
		}
	}
	if Role("admin").IsValid() || Role("").IsValid() {
		t.Error("unexpected valid role")
	}
}

func TestFarmerNormalizeAndValidate(t *testing.T) {
	f := Farmer{
		FullName:     "  Amara Ngu ",
		Phone:        " +237675000111 ",
		Village:      ptr("  Bamenda "),
		Region:       ptr("   "),
		ServiceNeeds: []string{},
	}
	f.Normalize()
	if f.FullName != "Amara Ngu" || f.Phone != "+237675000111" {
		t.Errorf("text not trimmed: %+v", f)
	}
	if f.Village == nil || *f.Village != "Bamenda" {
		t.Errorf("village = %v", f.Village)
	}
	if f.Region != nil {
		t.Errorf("blank region should become nil, got %q", *f.Region)
	}
	if f.ServiceNeeds != nil {
		t.Error("empty service needs should become nil")
	}
	if err := f.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		farmer Farmer
		want   error
	}{
		{"missing name", Farmer{Phone: "1"}, ErrMissingFullName},
		{"missing phone", Farmer{FullName: "A"}, ErrMissingPhone},
		{"long name", Farmer{FullName: strings.Repeat("a", MaxNameLength+1), Phone: "1"}, ErrNameTooLong},
		{"long notes", Farmer{FullName: "A", Phone: "1", Notes: ptr(strings.Repeat("n", MaxNotesLength+1))}, ErrNotesTooLong},
		{"negative size", Farmer{FullName: "A", Phone: "1", FarmSizeHa: ptr(-0.5)}, ErrNegativeValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.farmer.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestProviderNormalizeDropsUnnamedLines(t *testing.T) {
	p := Provider{
		FullName: "Tractor Co",
		Phone:    "+237699000222",
		Services: []ProviderService{
			{ServiceName: " Plowing ", Region: ptr(" "), Equipment: []Equipment{{EquipmentName: "Tractor"}, {EquipmentName: "  "}}},
			{ServiceName: "   "},
			{ServiceName: "Spraying"},
		},
	}
	p.Normalize()
	if len(p.Services) != 2 {
		t.Fatalf("expected 2 named services, got %d", len(p.Services))
	}
	plow := p.Services[0]
	if plow.ServiceName != "Plowing" || plow.Region != nil || len(plow.Equipment) != 1 {
		t.Errorf("unexpected normalized service: %+v", plow)
	}
	if p.Services[1].Equipment == nil {
		t.Error("equipment should be an empty list, not nil")
	}

	p.Services[1].BasePricePerHa = ptr(-1.0)
	if err := p.Validate(); !errors.Is(err, ErrNegativeValue) {
		t.Errorf("expected negative service price rejected, got %v", err)
	}
}

func TestBookingValidate(t *testing.T) {
	valid := func() Booking {
		return Booking{FarmerID: 1, ProviderID: 2, ServiceType: "plowing"}
	}
	b := valid()
	b.Normalize()
	if b.Status != BookingPending {
		t.Errorf("expected default status pending, got %q", b.Status)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Booking)
		want   error
	}{
		{"no farmer", func(b *Booking) { b.FarmerID = 0 }, ErrMissingBookingParty},
		{"no service", func(b *Booking) { b.ServiceType = "" }, ErrMissingServiceType},
		{"bad status", func(b *Booking) { b.Status = "done" }, ErrInvalidBookingState},
		{"bad date", func(b *Booking) { b.ScheduledDate = ptr("2026-13-01") }, ErrInvalidDate},
		{"bad time", func(b *Booking) { b.ScheduledTime = ptr("25:00") }, ErrInvalidTime},
		{"negative price", func(b *Booking) { b.Price = ptr(-10.0) }, ErrNegativeValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid()
			b.Status = BookingPending
			tt.mutate(&b)
			if err := b.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAdminRatingValidate(t *testing.T) {
	r := AdminRating{RateeType: RoleProvider, RateeID: 3, Rating: 4.5, Notes: ptr("  ")}
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.AdminID != DefaultAdminID || r.Notes != nil {
		t.Errorf("expected defaults applied, got %+v", r)
	}

	tests := []struct {
		rating AdminRating
		want   error
	}{
		{AdminRating{RateeID: 1, Rating: 3}, ErrMissingRatee},
		{AdminRating{RateeType: RoleUnknown, RateeID: 1, Rating: 3}, ErrInvalidRateeType},
		{AdminRating{RateeType: RoleFarmer, RateeID: 1, Rating: 0.5}, ErrRatingOutOfRange},
		{AdminRating{RateeType: RoleFarmer, RateeID: 1, Rating: 5.5}, ErrRatingOutOfRange},
	}
	for _, tt := range tests {
		if err := tt.rating.Validate(); !errors.Is(err, tt.want) {
			t.Errorf("Validate(%+v) = %v, want %v", tt.rating, err, tt.want)
		}
	}
}

func TestAPIResponseEnvelope(t *testing.T) {
	data, err := json.Marshal(Error("boom"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"status":"error","message":"boom"}` {
		t.Errorf("unexpected error envelope: %s", data)
	}

	data, _ = json.Marshal(SuccessWithMessage("created", map[string]int{"id": 7}))
	if string(data) != `{"status":"ok","message":"created","result":{"id":7}}` {
		t.Errorf("unexpected success envelope: %s", data)
	}
}

func TestInboundMessageHasLocation(t *testing.T) {
	lat := 5.96
	if (InboundMessage{Latitude: &lat}).HasLocation() {
		t.Error("a single coordinate is not a location")
	}
	if !(InboundMessage{Latitude: &lat, Longitude: &lat}).HasLocation() {
		t.Error("expected location")
	}
}
