package sink

import (
	"strconv"
	"strings"
	"unicode"
)

// PlaceholderColumn replaces column names that clean down to nothing.
const PlaceholderColumn = "unknown_column"

var reservedWords = map[string]bool{
	"order": true, "group": true, "where": true, "select": true, "insert": true,
	"update": true, "delete": true, "from": true, "table": true,
}

// primaryKeyNames are the column names picked as primary key when none is
// configured, compared case-insensitively.
var primaryKeyNames = []string{"id", "identifier", "key", "pk", "primary_key", "uid", "uuid"}

// CleanColumnName makes a source column name safe as an SQL column name.
// Case is kept; runs of other characters than letters, digits and "_"
// collapse to one "_"; a leading digit gets a "col_" prefix; reserved words
// get a "_field" suffix.
func CleanColumnName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingSep := false
	for _, r := range name {
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
		return PlaceholderColumn
	}
	if unicode.IsDigit([]rune(clean)[0]) {
		clean = "col_" + clean
	}
	if reservedWords[strings.ToLower(clean)] {
		clean += "_field"
	}
	return clean
}

// cleanColumns cleans every name, de-duplicating collisions case-insensitively
// with _2, _3, ... suffixes (SQL identifiers compare without case).
func cleanColumns(names []string) []string {
	out := make([]string, len(names))
	taken := make(map[string]bool, len(names))
	for i, n := range names {
		base := CleanColumnName(n)
		candidate := base
		for k := 2; taken[strings.ToLower(candidate)]; k++ {
			candidate = base + "_" + strconv.Itoa(k)
		}
		taken[strings.ToLower(candidate)] = true
		out[i] = candidate
	}
	return out
}

// DetectPrimaryKey returns the index of the primary key among columns (the
// source column names), or -1.
//
// An explicit field wins and is matched by source name or cleaned name. Without
// one, the first column whose cleaned name is a common identifier name is
// used.
func DetectPrimaryKey(columns []string, explicit string) int {
	if explicit != "" {
		want := CleanColumnName(explicit)
		for i, c := range columns {
			if c == explicit || strings.EqualFold(CleanColumnName(c), want) {
				return i
			}
		}
		return -1
	}
	for i, c := range columns {
		clean := strings.ToLower(CleanColumnName(c))
		for _, p := range primaryKeyNames {
			if clean == p {
				return i
			}
		}
	}
	return -1
}
