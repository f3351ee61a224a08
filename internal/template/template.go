// Package template implements the ${name} variable expansion and RFC-6901
// JSON-pointer subset used to build requests and extract cursors (spec.md
// §4.7).
package template

import (
	"os"
	"strings"
)

const (
	placeholderStart = "${"
	placeholderEnd   = "}"
	envPrefix        = "env:"
)

// Expand scans s for ${name} placeholders and substitutes from vars. The
// ${offset} and any chaining variables are expected to already be present in
// vars by the caller (internal/engine); ${env:NAME} is resolved here
// directly from the process environment. Unknown variables expand to the
// empty string. Expansion happens before URL parsing so that special
// characters inside variable values never confuse URL decomposition.
func Expand(s string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(s))

	for {
		start := strings.Index(s, placeholderStart)
		if start < 0 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start:], placeholderEnd)
		if end < 0 {
			b.WriteString(s)
			break
		}
		end += start

		b.WriteString(s[:start])
		name := s[start+len(placeholderStart) : end]
		b.WriteString(resolve(name, vars))
		s = s[end+len(placeholderEnd):]
	}

	return b.String()
}

func resolve(name string, vars map[string]string) string {
	if strings.HasPrefix(name, envPrefix) {
		return os.Getenv(strings.TrimPrefix(name, envPrefix))
	}
	if v, ok := vars[name]; ok {
		return v
	}
	return ""
}

// ParseSeparated splits a "key=value<sep>key2=value2" string into an
// ordered slice of pairs, used for the header and parameter templates of
// spec.md §6 (http.request.headers / http.request.parameters), whose
// separators are independently configurable (default "|" and "&").
func ParseSeparated(expanded, sep string) []KeyValue {
	if expanded == "" {
		return nil
	}
	entries := strings.Split(expanded, sep)
	pairs := make([]KeyValue, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idx := strings.Index(entry, "=")
		if idx < 0 {
			pairs = append(pairs, KeyValue{Key: entry})
			continue
		}
		pairs = append(pairs, KeyValue{Key: entry[:idx], Value: entry[idx+1:]})
	}
	return pairs
}

// KeyValue is one resolved header or query parameter.
type KeyValue struct {
	Key   string
	Value string
}
