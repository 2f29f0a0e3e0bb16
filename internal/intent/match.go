package intent

import (
	"regexp"
	"strings"
)

// MatchesPatterns reports whether the message matches any of the intent
// patterns. A pattern containing regex metacharacters is tried as a
// case-insensitive regular expression first; anything else, or a pattern
// that fails to compile, falls back to substring matching.
func MatchesPatterns(message string, patterns []string) bool {
	lower := strings.ToLower(message)
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if looksLikeRegexp(p) {
			if re, err := regexp.Compile("(?i)" + p); err == nil {
				if re.MatchString(lower) {
					return true
				}
				continue
			}
		}
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func looksLikeRegexp(p string) bool {
	if strings.HasPrefix(p, "^") || strings.HasSuffix(p, "$") {
		return true
	}
	return strings.ContainsAny(p, `*?[]()|\`)
}
