package classify

import "strings"

// DefaultCatchAll receives values outside the closed taxonomy.
const DefaultCatchAll = "sonstiges"

// Taxonomy is the closed set of categories (AKs) and topic tags.
type Taxonomy struct {
	Categories []string
	Tags       []string
	CatchAll   string
}

func (t Taxonomy) catchAll() string {
	if t.CatchAll == "" {
		return DefaultCatchAll
	}
	return t.CatchAll
}

// Category resolves a suggested category. Unknown values map to the catch-all
// and are returned as suggestion so the original text is never lost. With no
// configured categories any value is accepted.
func (t Taxonomy) Category(value string) (category, suggestion string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ""
	}
	if len(t.Categories) == 0 {
		return value, ""
	}
	if canonical, ok := lookup(t.Categories, value); ok {
		return canonical, ""
	}
	return t.catchAll(), value
}

// FilterTags keeps known tags in canonical spelling. Unknown tags are returned
// as suggestions and replaced by a single catch-all tag.
func (t Taxonomy) FilterTags(tags []string) (known, suggestions []string) {
	seen := map[string]struct{}{}
	add := func(tag string) {
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		known = append(known, tag)
	}

	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if len(t.Tags) == 0 {
			add(tag)
			continue
		}
		if canonical, ok := lookup(t.Tags, tag); ok {
			add(canonical)
			continue
		}
		suggestions = append(suggestions, tag)
	}
	if len(suggestions) > 0 {
		add(t.catchAll())
	}
	return known, suggestions
}

func lookup(values []string, v string) (string, bool) {
	for _, candidate := range values {
		if strings.EqualFold(candidate, v) {
			return candidate, true
		}
	}
	return "", false
}
