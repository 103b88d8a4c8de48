package extract

import (
	"context"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/lookup"
	"github.com/FACorreiaa/loci-chatmap/internal/app/models"
)

const (
	minNameLen = 2
	maxNameLen = 80
)

var (
	reNumberedItem = regexp.MustCompile(`^\s*\d+\.\s+(.+)$`)
	reEmphasis     = regexp.MustCompile(`\*\*|__|\*|` + "`")
	itemSeparators = []string{" - ", " – ", " — ", ": "}
)

// TextExtractor is the fallback used when a reply has no JSON block: it reads
// numbered list items ("1. Eiffel Tower - iconic tower.") and resolves each name
// through the lookup table.
type TextExtractor struct {
	places PlaceLookup
	images lookup.ImageResolver
	deps
}

// NewTextExtractor builds a TextExtractor.
func NewTextExtractor(places PlaceLookup, images lookup.ImageResolver, opts ...Option) *TextExtractor {
	return &TextExtractor{
		places: places,
		images: images,
		deps:   newDeps(opts),
	}
}

type listItem struct {
	name        string
	description string
}

// Extract never fails; candidates that cannot be turned into a location are skipped.
// Names the lookup table does not know come back with Unresolved set and a zero
// Position.
func (x *TextExtractor) Extract(_ context.Context, text string) []models.Location {
	items := parseListItems(text)
	out := make([]models.Location, 0, len(items))
	seen := make(map[string]bool, len(items))
	stamp := x.clock.Now().UnixMilli()

	for _, item := range items {
		key := strings.ToLower(item.name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, x.buildLocation(item, locationID(stamp, len(out))))
	}

	if len(out) > 0 {
		x.logger.Debug("Extracted locations from list prose", zap.Int("count", len(out)))
	}
	return out
}

func (x *TextExtractor) buildLocation(item listItem, id string) models.Location {
	loc := models.Location{
		ID:          id,
		Name:        item.name,
		Rating:      math.Round((models.DefaultRating+x.random.Float64()*0.5)*10) / 10,
		Reviews:     fallbackReviews(x.random),
		Description: item.description,
	}

	var place lookup.Place
	found := false
	if x.places != nil {
		place, found = x.places.Find(item.name)
	}
	if found {
		loc.Position = place.Position()
		loc.City = place.CityName()
		loc.Country = place.Country
		if loc.Description == "" {
			loc.Description = place.Description
		}
	} else {
		loc.Unresolved = true
		x.logger.Debug("List item not in lookup table", zap.String("name", item.name))
	}

	if loc.Description == "" {
		loc.Description = "Visit " + item.name
	}
	if x.images != nil {
		loc.ImageURL = x.images.URLFor(item.name)
	}
	return loc
}

func parseListItems(text string) []listItem {
	var items []listItem
	for _, line := range strings.Split(text, "\n") {
		m := reNumberedItem.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if item, ok := parseListItem(m[1]); ok {
			items = append(items, item)
		}
	}
	return items
}

func parseListItem(rest string) (listItem, bool) {
	rest = strings.TrimSpace(reEmphasis.ReplaceAllString(rest, ""))

	name, desc := rest, ""
	if at, sep := firstSeparator(rest); at >= 0 {
		name, desc = rest[:at], rest[at+len(sep):]
	} else {
		name = firstSentence(rest)
	}

	name = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(name), ".!?,;:"))
	n := utf8.RuneCountInString(name)
	if n < minNameLen || n > maxNameLen {
		return listItem{}, false
	}

	desc = strings.TrimSpace(strings.TrimRight(firstSentence(desc), ".!? "))
	return listItem{name: name, description: desc}, true
}

func firstSeparator(s string) (int, string) {
	at, sep := -1, ""
	for _, candidate := range itemSeparators {
		if i := strings.Index(s, candidate); i >= 0 && (at < 0 || i < at) {
			at, sep = i, candidate
		}
	}
	return at, sep
}

// firstSentence cuts s at the first '.', '!' or '?' followed by a space.
func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			if s[i+1] == ' ' {
				return s[:i+1]
			}
		}
	}
	return s
}
