// Package extract turns a streamed assistant reply into displayable prose and
// a validated batch of locations.
package extract

import (
	"math/rand/v2"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/lookup"
	"github.com/FACorreiaa/loci-chatmap/internal/app/models"
)

// PlaceLookup is the coordinate/description collaborator.
type PlaceLookup interface {
	Find(name string) (lookup.Place, bool)
	Coordinates(name string) (models.Position, bool)
	Description(name string) string
	Mentions(text string) []lookup.Place
}

// Random supplies the jitter used for fallback ratings and review counts.
type Random interface {
	Float64() float64
	IntN(n int) int
}

type lockedRandom struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRandom returns a goroutine-safe Random. A zero seed draws a random seed.
func NewRandom(seed uint64) Random {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &lockedRandom{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (l *lockedRandom) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRandom) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// Option configures the normalizer, the text extractor and the Extractor.
type Option func(*deps)

type deps struct {
	random Random
	clock  clockwork.Clock
	logger *zap.Logger
}

func newDeps(opts []Option) deps {
	d := deps{}
	for _, opt := range opts {
		opt(&d)
	}
	if d.random == nil {
		d.random = NewRandom(0)
	}
	if d.clock == nil {
		d.clock = clockwork.NewRealClock()
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	return d
}

// WithRandom injects the random source; tests pass a seeded one.
func WithRandom(r Random) Option {
	return func(d *deps) { d.random = r }
}

// WithClock injects the time source used for location ids.
func WithClock(c clockwork.Clock) Option {
	return func(d *deps) { d.clock = c }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *deps) { d.logger = l }
}

func fallbackReviews(r Random) int {
	return models.MinFallbackReviews + r.IntN(models.MaxFallbackReviews-models.MinFallbackReviews)
}
