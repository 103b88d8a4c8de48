package extract

import "encoding/json"

type scanStatus int

const (
	scanIncomplete scanStatus = iota
	scanBalanced
	scanInvalid
)

// scanObject walks text from the '{' at start, pushing on '{' / '[' and popping on
// the matching closer. Bytes inside string literals are ignored, escapes included.
// end is exclusive and only meaningful for scanBalanced.
func scanObject(text string, start int) (end int, status scanStatus) {
	if start >= len(text) || text[start] != '{' {
		return start, scanInvalid
	}

	stack := make([]byte, 0, 16)
	inString, escaped := false, false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return i, scanInvalid
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i + 1, scanBalanced
			}
		}
	}
	return len(text), scanIncomplete
}

// firstJSONObject returns the first balanced object in text that decodes as JSON.
// Balanced candidates that do not decode are skipped whole, so braces in prose
// never shadow the payload after them. When nothing decodes, the first candidate
// that opens like an object ("{" then a key or "}") is returned so the caller can
// report it as malformed.
func firstJSONObject(text string) (string, bool) {
	fallback := ""
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end, status := scanObject(text, i)
		if status != scanBalanced {
			continue
		}
		block := text[i:end]
		if json.Valid([]byte(block)) {
			return block, true
		}
		if fallback == "" && opensObject(text, i) {
			fallback = block
		}
		i = end - 1
	}
	return fallback, fallback != ""
}

// opensObject reports whether the '{' at i is followed by a key, '}' or nothing yet.
func opensObject(text string, i int) bool {
	for k := i + 1; k < len(text); k++ {
		switch text[k] {
		case ' ', '\t', '\n', '\r':
			continue
		case '"', '}':
			return true
		default:
			return false
		}
	}
	return true
}
