package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"dataload/internal/config"
	"dataload/internal/materialize"
	"dataload/internal/transformer"
	"dataload/pkg/records"
)

// Category is a category name and the keywords that select it.
type Category struct {
	Name     string
	Keywords []string
}

// DefaultCategories are used when the categories option is absent. Matching
// walks them in order; the keyword-less fallback comes last.
var DefaultCategories = []Category{
	{Name: "science", Keywords: []string{"physics", "chemistry", "biology", "math"}},
	{Name: "history", Keywords: []string{"war", "ancient", "civilization"}},
	{Name: "general"},
}

// AutoCategorize fills an empty category field from keywords found in a text
// field. Records that already have a category are left alone.
//
// The first category with a matching keyword wins. Without a match the
// record gets default_category ("general"). By default a keyword matches
// anywhere in the text, case-insensitively; strict_mode only matches whole
// words.
type AutoCategorize struct {
	Logger *slog.Logger
}

// Describe implements pipeline.Transformer.
func (a *AutoCategorize) Describe() string {
	return "fill empty categories from keywords in the record text"
}

// Configs lists the options Transform understands.
func (a *AutoCategorize) Configs() map[string]string {
	return map[string]string{
		"text_field":       "string: field searched for keywords (default: text)",
		"category_field":   "string: field to fill (default: category)",
		"categories":       "map or list: category -> keywords, tried in order (list) or by name (map)",
		"default_category": "string: category when nothing matches (default: general)",
		"strict_mode":      "bool: match whole words only (default: false)",
		"skip_errors":      "bool: drop failing rows instead of failing (default: false)",
	}
}

type matcher struct {
	name     string
	keywords []string
	words    []*regexp.Regexp
}

// Transform implements pipeline.Transformer.
func (a *AutoCategorize) Transform(ctx context.Context, in []records.Record, opts config.Options) ([]records.Record, error) {
	cats, err := parseCategories(opts.Any("categories"))
	if err != nil {
		return nil, fmt.Errorf("auto_categorize: %w", err)
	}
	textField := opts.String("text_field", "text")
	catField := opts.String("category_field", "category")
	fallback := opts.String("default_category", "general")
	strict := transformer.ParseOptions(opts).StrictMode

	matchers := make([]matcher, 0, len(cats))
	for _, c := range cats {
		m := matcher{name: c.Name}
		for _, kw := range c.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			m.keywords = append(m.keywords, kw)
			if strict {
				m.words = append(m.words, regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)+`\b`))
			}
		}
		matchers = append(matchers, m)
	}

	return transformer.Map(ctx, "auto_categorize", in, opts, a.Logger, func(_ int, r records.Record) (records.Record, error) {
		if !records.IsEmpty(r[catField]) {
			return r, nil
		}
		text := strings.ToLower(materialize.Stringify(r[textField]))
		r[catField] = categorize(text, matchers, strict, fallback)
		return r, nil
	})
}

func categorize(text string, matchers []matcher, strict bool, fallback string) string {
	for _, m := range matchers {
		if strict {
			for _, re := range m.words {
				if re.MatchString(text) {
					return m.name
				}
			}
			continue
		}
		for _, kw := range m.keywords {
			if strings.Contains(text, kw) {
				return m.name
			}
		}
	}
	return fallback
}

// parseCategories accepts a map of name -> keywords (tried in name order) or
// a list of {"name": ..., "keywords": [...]} objects (tried in list order).
func parseCategories(raw any) ([]Category, error) {
	switch v := raw.(type) {
	case nil:
		return DefaultCategories, nil
	case map[string]any:
		names := make([]string, 0, len(v))
		for k := range v {
			names = append(names, k)
		}
		sort.Strings(names)
		out := make([]Category, 0, len(v))
		for _, name := range names {
			out = append(out, Category{Name: name, Keywords: config.Options{"k": v[name]}.StringSlice("k")})
		}
		return out, nil
	case map[string][]string:
		names := make([]string, 0, len(v))
		for k := range v {
			names = append(names, k)
		}
		sort.Strings(names)
		out := make([]Category, 0, len(v))
		for _, name := range names {
			out = append(out, Category{Name: name, Keywords: v[name]})
		}
		return out, nil
	case []any:
		out := make([]Category, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("categories[%d]: want an object, got %T", i, item)
			}
			c := config.Options(m)
			name := c.String("name", "")
			if name == "" {
				return nil, fmt.Errorf("categories[%d]: name is required", i)
			}
			out = append(out, Category{Name: name, Keywords: c.StringSlice("keywords")})
		}
		return out, nil
	case []Category:
		return v, nil
	default:
		return nil, fmt.Errorf("categories: unsupported type %T", raw)
	}
}
