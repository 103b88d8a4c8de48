package extract

import (
	"regexp"
	"strings"
)

// Phrases that introduce a place name; the name itself is cut by placeEnd.
var weatherPhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:I should|I'll|I will|let me|I'm going to|I am going to)\s+(?:quickly\s+)?check\s+(?:the\s+)?(?:current\s+)?weather\s+(?:in|for|at)\s+`),
	regexp.MustCompile(`(?i)\bchecking\s+(?:the\s+)?(?:current\s+)?weather\s+(?:in|for|at)\s+`),
}

var reWeatherTag = regexp.MustCompile(`(?i)\[\s*weather\s*:\s*([^\]\n]+?)\s*\]`)

var reWeatherTimeSuffix = regexp.MustCompile(`(?i)\s+(?:today|tonight|tomorrow|right now|now|first|this (?:week|weekend|morning|afternoon|evening))$`)

// Short words whose trailing '.' is part of the name ("St. Louis", "Mt. Fuji").
var placeAbbreviations = map[string]bool{
	"st": true, "ste": true, "mt": true, "ft": true, "pt": true, "sta": true,
	"dr": true, "jr": true, "sr": true, "mr": true, "mrs": true,
}

// findWeatherMarker returns the place named by the earliest weather marker in text
// and the offset where the marker begins. Markers only match once the place name
// is terminated, so a partial stream never reports "Par" on the way to "Paris".
func findWeatherMarker(text string) (place string, at int, ok bool) {
	at = -1
	consider := func(start int, name string) {
		if name = cleanWeatherPlace(name); name == "" {
			return
		}
		if at < 0 || start < at {
			place, at = name, start
		}
	}

	for _, re := range weatherPhrases {
		for _, m := range re.FindAllStringIndex(text, -1) {
			if end, ok := placeEnd(text, m[1]); ok {
				consider(m[0], text[m[1]:end])
				break
			}
		}
	}
	if m := reWeatherTag.FindStringSubmatchIndex(text); m != nil {
		consider(m[0], text[m[2]:m[3]])
	}
	return place, at, at >= 0
}

// placeEnd finds where a place name starting at start ends. ',', ';', ':', '!',
// '?', a newline or a bracket always end it. A '.' ends it only when followed by
// whitespace or the end of text and not closing an abbreviation or an initial.
func placeEnd(text string, start int) (int, bool) {
	for i := start; i < len(text); i++ {
		switch text[i] {
		case ',', ';', ':', '!', '?', '\n', '(', ')', '[', ']':
			return i, true
		case '.':
			if i+1 < len(text) && !strings.ContainsRune(" \t\r\n", rune(text[i+1])) {
				continue
			}
			if isAbbreviation(text[start:i]) {
				continue
			}
			return i, true
		}
	}
	return len(text), false
}

func isAbbreviation(name string) bool {
	word := name
	if i := strings.LastIndexAny(name, " \t."); i >= 0 {
		word = name[i+1:]
	}
	if len(word) == 1 && word[0] >= 'A' && word[0] <= 'Z' {
		return true
	}
	return placeAbbreviations[strings.ToLower(word)]
}

func cleanWeatherPlace(s string) string {
	s = strings.TrimSpace(s)
	for {
		trimmed := reWeatherTimeSuffix.ReplaceAllString(s, "")
		if trimmed == s {
			break
		}
		s = trimmed
	}
	s = strings.Trim(s, `"'*_ `)
	return strings.Join(strings.Fields(s), " ")
}
