package classifier

import "strings"

// matchesAnyGlob reports whether path matches any pattern in patterns,
// each supporting a single leading and/or trailing '*' wildcard.
func matchesAnyGlob(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchesGlob(path, pattern) {
			return true
		}
	}
	return false
}

// matchesGlob is path-case-sensitive, unlike a hostname or header match,
// since URL paths on most backends are case sensitive. It supports a
// leading and/or trailing '*' and, for patterns with exactly one interior
// '*' (e.g. "/api/*/admin"), a single middle wildcard spanning any run of
// characters including further path separators.
func matchesGlob(s, pattern string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") && len(pattern) > 1:
		core := strings.Trim(pattern, "*")
		return core != "" && strings.Contains(s, core)
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(s, strings.TrimPrefix(pattern, "*"))
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(s, strings.TrimSuffix(pattern, "*"))
	case strings.Count(pattern, "*") == 1:
		i := strings.IndexByte(pattern, '*')
		prefix, suffix := pattern[:i], pattern[i+1:]
		return len(s) >= len(prefix)+len(suffix) && strings.HasPrefix(s, prefix) && strings.HasSuffix(s, suffix)
	default:
		return s == pattern
	}
}
