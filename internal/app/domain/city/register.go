package city

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultSeedCities is used when no seed list is configured.
var DefaultSeedCities = []string{"Paris", "London", "Rome", "New York", "Tokyo", "Barcelona", "Lisbon"}

// Picker chooses the seed city.
type Picker interface {
	IntN(n int) int
}

// Register holds the current city. Last write wins.
type Register struct {
	mu      sync.RWMutex
	current string
}

// NewRegister seeds the register with a random pick from seeds.
// An empty seed list falls back to DefaultSeedCities.
func NewRegister(seeds []string, pick Picker) *Register {
	var clean []string
	for _, s := range seeds {
		if s = normalizeCity(s); s != "" {
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		clean = DefaultSeedCities
	}

	r := &Register{}
	if pick != nil {
		r.current = clean[pick.IntN(len(clean))]
	} else {
		r.current = clean[0]
	}
	return r
}

// Get returns the current city, possibly "".
func (r *Register) Get() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Set overwrites the current city and returns the stored value.
// Blank names are ignored.
func (r *Register) Set(name string) string {
	name = normalizeCity(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if name != "" {
		r.current = name
	}
	return r.current
}

// normalizeCity collapses whitespace and title-cases all-lower or all-upper
// input. Mixed case is kept as given ("McAllen", "Saint-Germain-des-Pres").
func normalizeCity(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	if s == strings.ToLower(s) || s == strings.ToUpper(s) {
		s = cases.Title(language.Und).String(s)
	}
	return s
}
