package alias

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariations(t *testing.T) {
	t.Parallel()

	got := Variations("first_name")
	want := []string{"first name", "First Name", "firstName", "first-name", "first.name"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Variations(first_name) = %q, want %q", got, want)
	}

	// No camelCase form for single-part names.
	got = Variations("email")
	want = []string{"email", "Email", "email", "email"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Variations(email) = %q, want %q", got, want)
	}
}

func TestAliases_PullsOverlappingBuckets(t *testing.T) {
	t.Parallel()

	aliases := Resolver{}.Aliases("sub_category")
	assert.Contains(t, aliases, "sub_category")
	assert.Contains(t, aliases, "cat", "category bucket should apply to sub_category")
	assert.Contains(t, aliases, "subCategory")

	aliases = Resolver{}.Aliases("Category")
	assert.Equal(t, "Category", aliases[0])
	assert.Equal(t, "category", aliases[1])

	seen := map[string]bool{}
	for _, a := range aliases {
		require.False(t, seen[a], "duplicate alias %q", a)
		seen[a] = true
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want float64
	}{
		{"abc", "abc", 1},
		{"abc", "xyz", 0},
		{"", "", 1},
		{"phone_no", "phone", 10.0 / 13.0},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); got != tt.want {
			t.Fatalf("Similarity(%q,%q)=%v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestResolve_CategoryToCat(t *testing.T) {
	t.Parallel()

	m := Resolver{}.Resolve([]string{"category"}, []string{"Q", "Cat"})
	assert.Equal(t, Mapping{"category": "Cat"}, m)
}

func TestResolve_ExactBeatsFuzzy(t *testing.T) {
	t.Parallel()

	// "emial" is a close fuzzy hit but the later exact alias wins.
	matches := Resolver{}.Explain([]string{"email"}, []string{"emial", "E_Mail"})
	require.Len(t, matches, 1)
	assert.Equal(t, "E_Mail", matches[0].Column)
	assert.True(t, matches[0].Exact)
	assert.Equal(t, 1.0, matches[0].Score)
}

func TestResolve_FuzzyAboveThreshold(t *testing.T) {
	t.Parallel()

	matches := Resolver{}.Explain([]string{"phone"}, []string{"phone_no"})
	require.Len(t, matches, 1)
	assert.Equal(t, "phone_no", matches[0].Column)
	assert.False(t, matches[0].Exact)
	assert.Greater(t, matches[0].Score, DefaultThreshold)
}

func TestResolve_UnmatchedTargetAbsent(t *testing.T) {
	t.Parallel()

	m := Resolver{}.Resolve([]string{"category", "price"}, []string{"zzz", "cost"})
	assert.Equal(t, Mapping{"price": "cost"}, m)

	matches := Resolver{}.Explain([]string{"category"}, []string{"zzz"})
	assert.False(t, matches[0].Matched())
}

func TestResolve_NoColumnUsedTwice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		targets []string
		columns []string
	}{
		{"shared alias", []string{"name", "title", "label"}, []string{"title"}},
		{"overlapping buckets", []string{"score", "price", "value"}, []string{"value", "Value ", "amount"}},
		{"greedy order", []string{"answer", "answers", "text"}, []string{"answer", "Answers", "question", "response"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := Resolver{}.Resolve(tt.targets, tt.columns)
			seen := map[string]string{}
			for target, col := range m {
				if prev, ok := seen[col]; ok {
					t.Fatalf("column %q assigned to both %q and %q", col, prev, target)
				}
				seen[col] = target
			}
		})
	}
}

func TestResolve_FirstComeFirstServed(t *testing.T) {
	t.Parallel()

	// "name" claims "title" first, leaving nothing for "title".
	m := Resolver{}.Resolve([]string{"name", "title"}, []string{"title"})
	assert.Equal(t, Mapping{"name": "title"}, m)
}

func TestMappingReverse(t *testing.T) {
	t.Parallel()

	m := Mapping{"category": "Cat", "text": "Q"}
	assert.Equal(t, map[string]string{"Cat": "category", "Q": "text"}, m.Reverse())
	assert.Equal(t, []string{"category", "text"}, m.Targets())
}
