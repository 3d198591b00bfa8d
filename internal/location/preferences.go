package location

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/couchcryptid/spray-advisory/internal/store"
)

// Preferences holds the user's saved default location. Until one is saved it
// reports the seed location.
type Preferences struct {
	kv   domain.KeyValueStore
	seed domain.Place

	mu    sync.RWMutex
	saved *domain.Place
}

// OpenPreferences loads the saved location from kv.
func OpenPreferences(ctx context.Context, kv domain.KeyValueStore, seed domain.Place) (*Preferences, error) {
	p := &Preferences{kv: kv, seed: seed}
	var saved domain.Place
	ok, err := store.LoadJSON(ctx, kv, domain.KeyPreferredPlace, &saved)
	if err != nil {
		return nil, err
	}
	if ok {
		p.saved = &saved
	}
	return p, nil
}

// Location returns the saved location or the seed.
func (p *Preferences) Location() domain.Place {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.saved != nil {
		return *p.saved
	}
	return p.seed
}

// IsSeed reports whether no location has been saved yet.
func (p *Preferences) IsSeed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.saved == nil
}

// Save stores place as the default location.
func (p *Preferences) Save(ctx context.Context, place domain.Place) error {
	place.PlaceText = strings.TrimSpace(place.PlaceText)
	if place.PlaceText == "" {
		return fmt.Errorf("save location: %w: place label is required", domain.ErrInvalidLocation)
	}
	if place.Latitude < -90 || place.Latitude > 90 || place.Longitude < -180 || place.Longitude > 180 {
		return fmt.Errorf("save location: %w: coordinates out of range", domain.ErrInvalidLocation)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := store.SaveJSON(ctx, p.kv, domain.KeyPreferredPlace, place); err != nil {
		return err
	}
	p.saved = &place
	return nil
}

// Reset forgets the saved location so the seed applies again.
func (p *Preferences) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.kv.Delete(ctx, domain.KeyPreferredPlace); err != nil {
		return fmt.Errorf("reset location: %w", err)
	}
	p.saved = nil
	return nil
}
