package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DigiLync/digilync/internal/models"
	"github.com/DigiLync/digilync/internal/store"
)

// ErrMissingSender is returned for an inbound message without a usable phone.
var ErrMissingSender = errors.New("inbound message has no sender phone")

// Store is the persistence the engine needs: sessions, identity lookup and
// the two registration inserts.
type Store interface {
	store.SessionStore
	store.IdentityStore
	CreateFarmer(ctx context.Context, f *models.Farmer) error
	CreateProvider(ctx context.Context, p *models.Provider) error
}

// Engine processes inbound WhatsApp messages. Each call is independent: the
// session is read once, the next state is computed in memory, and the result
// is written back in a single update.
type Engine struct {
	store    Store
	resolver *Resolver
}

// NewEngine creates an Engine backed by st.
func NewEngine(st Store) *Engine {
	slog.Debug("Creating conversation engine")
	return &Engine{store: st, resolver: NewResolver(st)}
}

// HandleIncoming processes msg and returns the reply to send. An empty reply
// means nothing should be sent.
func (e *Engine) HandleIncoming(ctx context.Context, msg models.InboundMessage) (string, error) {
	phone := models.NormalizePhone(msg.From)
	if phone == "" {
		return "", ErrMissingSender
	}
	in := NewInput(msg)

	identity, err := e.resolver.Resolve(ctx, phone)
	if err != nil {
		return "", fmt.Errorf("resolve identity: %w", err)
	}
	if identity != nil {
		slog.Debug("Engine.HandleIncoming: registered user, showing main menu", "phone", phone, "kind", identity.Kind, "id", identity.ID)
		return MainMenu(*identity, in.Keyword()), nil
	}

	sess, err := e.store.GetOrCreateSession(ctx, phone)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}

	state, valid := DecodeState(sess.Role, sess.Step, sess.Fields)
	if !valid {
		slog.Warn("Engine.HandleIncoming: resetting invalid session", "phone", phone, "role", sess.Role, "step", sess.Step)
	}

	t := Step(state, in)

	if t.Register != nil {
		if err := e.register(ctx, phone, t.Register); err != nil {
			// Keep the session at the confirmation step so the user can retry.
			slog.Error("Engine.HandleIncoming: registration failed", "phone", phone, "step", sess.Step, "error", err)
			return MsgRegistrationFailed, nil
		}
	}

	if t.Persist || !valid {
		role, step, fields := EncodeState(t.Next)
		if err := e.store.UpdateSession(ctx, phone, models.SessionUpdate{Role: &role, Step: &step, Fields: fields}); err != nil {
			return "", fmt.Errorf("update session: %w", err)
		}
		slog.Debug("Engine.HandleIncoming: session advanced", "phone", phone, "from", sess.Step, "to", step)
	}

	return t.Reply, nil
}

func (e *Engine) register(ctx context.Context, phone string, r *Registration) error {
	switch {
	case r.Farmer != nil:
		f := farmerRecord(phone, *r.Farmer)
		if err := e.store.CreateFarmer(ctx, f); err != nil {
			return err
		}
		slog.Info("Farmer registered via WhatsApp", "phone", phone, "farmer_id", f.ID)
	case r.Provider != nil:
		p := providerRecord(phone, *r.Provider)
		if err := e.store.CreateProvider(ctx, p); err != nil {
			return err
		}
		slog.Info("Provider registered via WhatsApp", "phone", phone, "provider_id", p.ID)
	default:
		return errors.New("empty registration")
	}
	return nil
}

// farmerRecord maps a confirmed draft onto a farmer row. The village doubles
// as the free-text location.
func farmerRecord(phone string, d FarmerDraft) *models.Farmer {
	f := &models.Farmer{
		FullName:   d.FullName,
		Phone:      phone,
		Village:    optionalText(d.Village),
		Location:   optionalText(d.Village),
		FarmSizeHa: &d.FarmSizeHa,
		CropType:   optionalText(d.CropType),
	}
	if d.Location != nil {
		lat, lng := d.Location.Lat, d.Location.Lng
		f.GPSLat, f.GPSLng = &lat, &lng
	}
	return f
}

func providerRecord(phone string, d ProviderDraft) *models.Provider {
	return &models.Provider{
		FullName:              d.FullName,
		Phone:                 phone,
		ServicesOffered:       optionalText(d.ServicesOffered),
		WorkCapacityHaPerHour: &d.WorkCapacityHaPerHour,
		BasePricePerHa:        &d.BasePricePerHa,
		EquipmentType:         optionalText(d.EquipmentType),
		ServiceRadiusKm:       &d.ServiceRadiusKm,
	}
}

func optionalText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
