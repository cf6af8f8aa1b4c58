package materialize

import (
	"strconv"
	"strings"
	"unicode"
)

// PlaceholderField replaces names that clean down to nothing.
const PlaceholderField = "unknown_field"

// CleanFieldName turns an arbitrary column name into an identifier-safe
// field name:
//   - lower-cased
//   - every run of characters other than letters and digits becomes one "_"
//   - leading/trailing "_" trimmed
//   - a leading digit gets a "field_" prefix
//   - an empty result becomes PlaceholderField
//
// The mapping is stable and idempotent: cleaning a clean name returns it
// unchanged.
func CleanFieldName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	clean := b.String()
	if clean == "" {
		return PlaceholderField
	}
	if r := []rune(clean)[0]; unicode.IsDigit(r) {
		clean = "field_" + clean
	}
	return clean
}

// uniqueNames cleans every name and de-duplicates collisions with _2, _3, ...
// suffixes in input order.
func uniqueNames(names []string, clean func(string) string) []string {
	out := make([]string, len(names))
	taken := make(map[string]bool, len(names))
	for i, n := range names {
		base := clean(n)
		candidate := base
		for k := 2; taken[candidate]; k++ {
			candidate = base + "_" + strconv.Itoa(k)
		}
		taken[candidate] = true
		out[i] = candidate
	}
	return out
}

// snakeCase converts a Go identifier to snake_case ("UserID" -> "user_id",
// "HTTPServer" -> "http_server") and cleans the result.
func snakeCase(ident string) string {
	rs := []rune(ident)
	var b strings.Builder
	for i, r := range rs {
		if unicode.IsUpper(r) && i > 0 {
			prev := rs[i-1]
			nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return CleanFieldName(b.String())
}
