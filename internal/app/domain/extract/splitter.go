package extract

import (
	"regexp"
	"strings"

	"github.com/FACorreiaa/loci-chatmap/internal/app/models"
)

var (
	reTrailingFence = regexp.MustCompile("(?:```|~~~)[A-Za-z]*[ \t]*$")
	reSpaceRuns     = regexp.MustCompile(`[ \t]{2,}`)
	reLineEndSpace  = regexp.MustCompile(`[ \t]+\n`)
	reNewlineRuns   = regexp.MustCompile(`\n{3,}`)
)

// Split classifies the accumulated text of a (possibly unfinished) reply.
//
// A weather-intent marker wins over a JSON block. Otherwise the first JSON object
// that starts a line or follows sentence punctuation is located with a depth
// counting scan; while it is still unbalanced JSONContent stays empty but the
// prose is already cut before it so raw JSON is never displayed.
//
// Calling Split on a growing prefix of the same reply never retracts a
// classification it already reported.
func Split(text string) models.StreamParseResult {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	jsonStart, jsonEnd, status := locateJSON(text)
	proseEnd := len(text)
	if jsonStart >= 0 {
		proseEnd = jsonStart
	}

	if place, at, ok := findWeatherMarker(text[:proseEnd]); ok {
		return models.StreamParseResult{
			TextContent:     normalizeProse(text[:at]),
			WeatherLocation: place,
		}
	}

	result := models.StreamParseResult{TextContent: normalizeProse(text[:proseEnd])}
	if status == scanBalanced {
		result.JSONContent = text[jsonStart:jsonEnd]
	}
	return result
}

// locateJSON finds the first plausible JSON start. Candidates whose scan turns out
// invalid are skipped; an incomplete candidate stops the search since more of the
// stream is needed to decide.
func locateJSON(text string) (start, end int, status scanStatus) {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' || !isJSONStart(text, i) {
			continue
		}
		end, status := scanObject(text, i)
		switch status {
		case scanBalanced, scanIncomplete:
			return i, end, status
		}
	}
	return -1, -1, scanInvalid
}

// isJSONStart reports whether the '{' at i begins a line, follows sentence
// punctuation or a code fence, and opens an object ("{" followed by a key, "}"
// or nothing yet).
func isJSONStart(text string, i int) bool {
	j := i - 1
	for j >= 0 && (text[j] == ' ' || text[j] == '\t') {
		j--
	}

	boundary := false
	switch {
	case j < 0:
		boundary = true
	case text[j] == '\n':
		boundary = true
	case strings.ContainsRune(".!?:", rune(text[j])):
		boundary = true
	case reTrailingFence.MatchString(text[:j+1]):
		boundary = true
	}
	if !boundary {
		return false
	}

	return opensObject(text, i)
}

// normalizeProse drops a dangling code-fence opener and collapses whitespace:
// runs of spaces to one, three or more newlines to two, trimmed ends.
func normalizeProse(s string) string {
	s = strings.TrimRight(s, " \t\n")
	s = reTrailingFence.ReplaceAllString(s, "")
	s = reSpaceRuns.ReplaceAllString(s, " ")
	s = reLineEndSpace.ReplaceAllString(s, "\n")
	s = reNewlineRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
