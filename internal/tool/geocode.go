package tool

import (
	"context"
	"strings"

	"github.com/voltquery/voltquery/internal/resilience"
	"github.com/voltquery/voltquery/pkg/nrel"
)

// Guard pairs the shared retry policy with one provider's circuit
// breaker. Every live provider call in the tool layer goes through one.
type Guard struct {
	Breaker *resilience.Breaker
	Retry   resilience.RetryConfig
}

// guarded runs fn as retry(breaker(fn)): the breaker sees every attempt,
// and an open circuit rejects immediately because ErrCircuitOpen is not
// transient.
func guarded[T any](ctx context.Context, g Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	return resilience.DoVal(ctx, g.Retry, func(ctx context.Context) (T, error) {
		return resilience.ExecuteVal(ctx, g.Breaker, fn)
	})
}

// Coordinates is a resolved site position.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Geocoder resolves free-form locations to coordinates, shared by every
// tool that needs a site position. Results are effectively immutable, so
// they sit in a long-TTL cache in front of the guarded provider call and
// cached locations keep resolving while the circuit is open.
type Geocoder struct {
	client nrel.Client
	cache  *resilience.Cache[Coordinates]
	guard  Guard
}

// NewGeocoder builds the shared geocoding layer.
func NewGeocoder(client nrel.Client, cache *resilience.Cache[Coordinates], guard Guard) *Geocoder {
	return &Geocoder{client: client, cache: cache, guard: guard}
}

// Locate resolves a zip code, "City, ST" pair, or free-form place name.
func (g *Geocoder) Locate(ctx context.Context, location string) (Coordinates, error) {
	key := "geocode:" + strings.ToLower(strings.TrimSpace(location))
	return g.cache.GetOrFetch(ctx, key, func(ctx context.Context) (Coordinates, error) {
		return guarded(ctx, g.guard, func(ctx context.Context) (Coordinates, error) {
			lat, lon, err := g.client.GeocodeLocation(ctx, location)
			if err != nil {
				return Coordinates{}, err
			}
			return Coordinates{Lat: lat, Lon: lon}, nil
		})
	})
}
