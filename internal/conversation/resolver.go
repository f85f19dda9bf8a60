package conversation

import (
	"context"
	"fmt"

	"github.com/DigiLync/digilync/internal/models"
	"github.com/DigiLync/digilync/internal/store"
)

// Resolver finds the registered farmer or provider behind a phone number.
type Resolver struct {
	identities store.IdentityStore
}

// NewResolver creates a Resolver over the given identity store.
func NewResolver(identities store.IdentityStore) *Resolver {
	return &Resolver{identities: identities}
}

// Resolve matches phone against farmers, then providers, by digits only, so
// "+237 675-000-111" and "237675000111" are the same number. A farmer match
// wins if both tables contain the number. Returns nil when nobody matches.
func (r *Resolver) Resolve(ctx context.Context, phone string) (*models.Identity, error) {
	digits := models.PhoneDigits(models.NormalizePhone(phone))
	if digits == "" {
		return nil, nil
	}

	farmer, err := r.identities.FindFarmerByPhoneDigits(ctx, digits)
	if err != nil {
		return nil, fmt.Errorf("farmer lookup: %w", err)
	}
	if farmer != nil {
		return farmer, nil
	}

	provider, err := r.identities.FindProviderByPhoneDigits(ctx, digits)
	if err != nil {
		return nil, fmt.Errorf("provider lookup: %w", err)
	}
	return provider, nil
}
