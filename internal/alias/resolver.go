// Package alias resolves canonical target field names to source columns.
//
// Source files rarely use the names a caller wants ("Cat" for "category",
// "E-Mail" for "email"). The Resolver builds an alias set per target field from
// the field name, a curated bucket table and mechanical spelling variants,
// then assigns columns greedily: exact case-insensitive alias hits win
// outright, otherwise the best fuzzy similarity above the acceptance threshold.
package alias

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultThreshold is the similarity a fuzzy match must exceed.
const DefaultThreshold = 0.6

// Mapping maps a target field to the chosen source column. A column appears
// at most once as a value; unmapped targets are absent.
type Mapping map[string]string

// Targets returns the mapped target fields in sorted order.
func (m Mapping) Targets() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Reverse returns column -> target.
func (m Mapping) Reverse() map[string]string {
	out := make(map[string]string, len(m))
	for target, col := range m {
		out[col] = target
	}
	return out
}

// Match describes how one target field was resolved.
type Match struct {
	Target string  `json:"target"`
	Column string  `json:"column,omitempty"`
	Score  float64 `json:"score"`
	Exact  bool    `json:"exact"`
}

// Matched reports whether a column was assigned.
func (m Match) Matched() bool { return m.Column != "" }

// Resolver assigns source columns to target fields.
//
// The zero value uses DefaultBuckets and DefaultThreshold.
type Resolver struct {
	// Buckets overrides the curated alias table when non-nil.
	Buckets []Bucket
	// Threshold overrides DefaultThreshold when > 0.
	Threshold float64
}

func (r Resolver) buckets() []Bucket {
	if r.Buckets != nil {
		return r.Buckets
	}
	return DefaultBuckets
}

func (r Resolver) threshold() float64 {
	if r.Threshold > 0 {
		return r.Threshold
	}
	return DefaultThreshold
}

// Aliases returns the candidate names for field: the name itself and its
// lower-case form, every bucket whose key overlaps the lower-cased field name,
// and spelling variants. Duplicates are removed, first occurrence wins.
func (r Resolver) Aliases(field string) []string {
	lower := strings.ToLower(field)
	out := []string{field, lower}
	for _, b := range r.buckets() {
		if strings.Contains(lower, b.Key) || strings.Contains(b.Key, lower) {
			out = append(out, b.Aliases...)
		}
	}
	out = append(out, Variations(field)...)
	return dedupe(out)
}

var titleCaser = cases.Title(language.Und)

// Variations returns mechanical respellings of a snake_case field name:
// space separated, Title Cased, camelCase (only for multi-part names),
// hyphenated and dotted.
func Variations(field string) []string {
	spaced := strings.ReplaceAll(field, "_", " ")
	out := []string{spaced, titleCaser.String(spaced)}

	if parts := strings.Split(field, "_"); len(parts) > 1 {
		var b strings.Builder
		b.WriteString(parts[0])
		for _, p := range parts[1:] {
			b.WriteString(titleCaser.String(p))
		}
		out = append(out, b.String())
	}

	out = append(out,
		strings.ReplaceAll(field, "_", "-"),
		strings.ReplaceAll(field, "_", "."),
	)
	return out
}

// Resolve assigns columns to targets. Targets are processed in the given
// order and an assigned column is no longer available to later targets, so
// the result is deterministic but order sensitive.
func (r Resolver) Resolve(targets, columns []string) Mapping {
	m := make(Mapping, len(targets))
	for _, match := range r.Explain(targets, columns) {
		if match.Matched() {
			m[match.Target] = match.Column
		}
	}
	return m
}

// Explain is Resolve with per-target details. Every target gets a Match; an
// unmatched target carries the best rejected score and an empty Column.
func (r Resolver) Explain(targets, columns []string) []Match {
	used := make(map[string]bool, len(columns))
	out := make([]Match, 0, len(targets))
	threshold := r.threshold()

	for _, target := range targets {
		aliases := lowerAll(r.Aliases(target))
		exact := make(map[string]bool, len(aliases))
		for _, a := range aliases {
			exact[a] = true
		}

		best := Match{Target: target}
		var bestCol string
		for _, col := range columns {
			if used[col] {
				continue
			}
			lc := strings.ToLower(col)
			if exact[lc] {
				bestCol, best.Score, best.Exact = col, 1.0, true
				break
			}
			for _, a := range aliases {
				if s := Similarity(lc, a); s > best.Score {
					bestCol, best.Score = col, s
				}
			}
		}

		if best.Exact || best.Score > threshold {
			best.Column = bestCol
			used[bestCol] = true
		}
		out = append(out, best)
	}
	return out
}

// Similarity is the normalized edit similarity of a and b in [0,1]:
// 2*M/T where M is the number of matched runes and T the total rune count.
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	return difflib.NewMatcher(runes(a), runes(b)).Ratio()
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
