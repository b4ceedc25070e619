package observability

import (
	"strings"
	"unicode"
)

const defaultScrubLimit = 256

// scrubString strips control characters and caps length. Every
// request-derived value passes through here before it reaches a log field.
func scrubString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultScrubLimit
	}
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, value)
	runes := []rune(cleaned)
	if len(runes) > limit {
		runes = runes[:limit]
	}
	return string(runes)
}

// SanitizeRoute scrubs a route pattern for logging.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return scrubString(route, 180)
}

// SanitizeMethod scrubs an HTTP method for logging.
func SanitizeMethod(method string) string {
	return scrubString(method, 10)
}

// SanitizeUserID caps customer identifiers before they land in logs.
func SanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return scrubString(uid, 64)
}
