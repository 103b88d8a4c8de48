// Package lookup holds the static table of known places used when the model
// answers in prose only, plus the image URL collaborator.
package lookup

import (
	_ "embed"
	"fmt"
	"math"
	"strings"
	"sync"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
	"gopkg.in/yaml.v3"

	"github.com/FACorreiaa/loci-chatmap/internal/app/models"
)

//go:embed places.yaml
var placesYAML []byte

const (
	KindCity     = "city"
	KindLandmark = "landmark"
)

const earthRadiusKm = 6371.0

// Place is one row of the lookup table.
type Place struct {
	Name        string   `yaml:"name"`
	Aliases     []string `yaml:"aliases"`
	Kind        string   `yaml:"kind"`
	Lat         float64  `yaml:"lat"`
	Lng         float64  `yaml:"lng"`
	Description string   `yaml:"description"`
	City        string   `yaml:"city"`
	Country     string   `yaml:"country"`
}

// Position returns the place coordinates.
func (p Place) Position() models.Position {
	return models.Position{Lat: p.Lat, Lng: p.Lng}
}

// CityName is the city the place belongs to; cities are their own city.
func (p Place) CityName() string {
	if p.Kind == KindCity {
		return p.Name
	}
	return p.City
}

type placesFile struct {
	Places []Place `yaml:"places"`
}

// Table answers coordinate and description queries by place name.
type Table struct {
	places []Place
	byName map[string]int

	// landmarks matches landmark names/aliases inside longer names.
	landmarks        ahocorasick.AhoCorasick
	landmarkPatterns []int

	// mentions matches any known name inside free text.
	mentions        ahocorasick.AhoCorasick
	mentionPatterns []int
}

var (
	defaultTable *Table
	defaultOnce  sync.Once
)

// Default returns the table built from the embedded places.yaml.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Load(placesYAML)
		if err != nil {
			panic(fmt.Sprintf("lookup: embedded places table is invalid: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// Load parses a YAML places document and builds a Table.
func Load(data []byte) (*Table, error) {
	var f placesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse places: %w", err)
	}
	return New(f.Places)
}

// New builds a Table from places. Names and aliases must be unique case-insensitively.
func New(places []Place) (*Table, error) {
	t := &Table{
		places: places,
		byName: make(map[string]int, len(places)*2),
	}

	var landmarkNames, mentionNames []string
	for i, p := range places {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("place %d has no name", i)
		}
		if !models.ValidCoordinates(p.Lat, p.Lng) {
			return nil, fmt.Errorf("place %q: %w", p.Name, &models.InvalidCoordinatesError{Name: p.Name, Coordinates: []float64{p.Lat, p.Lng}})
		}
		for _, n := range append([]string{p.Name}, p.Aliases...) {
			key := normalizeKey(n)
			if _, dup := t.byName[key]; dup {
				return nil, fmt.Errorf("duplicate place name %q", n)
			}
			t.byName[key] = i

			mentionNames = append(mentionNames, n)
			t.mentionPatterns = append(t.mentionPatterns, i)
			if p.Kind != KindCity {
				landmarkNames = append(landmarkNames, n)
				t.landmarkPatterns = append(t.landmarkPatterns, i)
			}
		}
	}

	t.landmarks = newMatcher(landmarkNames)
	t.mentions = newMatcher(mentionNames)
	return t, nil
}

func newMatcher(patterns []string) ahocorasick.AhoCorasick {
	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  true,
		MatchKind:            ahocorasick.LeftMostLongestMatch,
		DFA:                  true,
	})
	return builder.Build(patterns)
}

// Find resolves a name: exact case-insensitive name or alias first, then the
// longest known landmark contained in the name as whole words.
// City entries only match exactly so a landmark we do not know is never
// silently placed at a city centre.
func (t *Table) Find(name string) (Place, bool) {
	key := normalizeKey(name)
	if key == "" {
		return Place{}, false
	}
	if i, ok := t.byName[key]; ok {
		return t.places[i], true
	}

	best, bestLen := -1, 0
	for _, m := range t.landmarks.FindAll(name) {
		if l := m.End() - m.Start(); l > bestLen {
			best, bestLen = t.landmarkPatterns[m.Pattern()], l
		}
	}
	if best < 0 {
		return Place{}, false
	}
	return t.places[best], true
}

// Coordinates returns approximate coordinates for name. ok is false for unknown names.
func (t *Table) Coordinates(name string) (models.Position, bool) {
	p, ok := t.Find(name)
	if !ok {
		return models.Position{}, false
	}
	return p.Position(), true
}

// Description returns the short description for name, or "" when unknown.
func (t *Table) Description(name string) string {
	p, ok := t.Find(name)
	if !ok {
		return ""
	}
	return p.Description
}

// Mentions lists known places named in text, in order of first appearance, without duplicates.
func (t *Table) Mentions(text string) []Place {
	if text == "" {
		return nil
	}
	seen := make(map[int]bool)
	var out []Place
	for _, m := range t.mentions.FindAll(text) {
		i := t.mentionPatterns[m.Pattern()]
		if seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, t.places[i])
	}
	return out
}

// NearestCity returns the closest city entry within maxKm of pos.
func (t *Table) NearestCity(pos models.Position, maxKm float64) (Place, bool) {
	best, bestDist := -1, math.MaxFloat64
	for i, p := range t.places {
		if p.Kind != KindCity {
			continue
		}
		if d := Haversine(pos, p.Position()); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 || bestDist > maxKm {
		return Place{}, false
	}
	return t.places[best], true
}

// Cities returns the names of every city entry.
func (t *Table) Cities() []string {
	var out []string
	for _, p := range t.places {
		if p.Kind == KindCity {
			out = append(out, p.Name)
		}
	}
	return out
}

// Haversine returns the great-circle distance between a and b in kilometres.
func Haversine(a, b models.Position) float64 {
	lat1, lat2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
