package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaxonomyCategory(t *testing.T) {
	t.Parallel()

	tax := Taxonomy{Categories: []string{"Finanzen", "Bildung"}, CatchAll: "sonstiges"}

	cat, hint := tax.Category("finanzen")
	assert.Equal(t, "Finanzen", cat)
	assert.Empty(t, hint)

	cat, hint = tax.Category("Raumfahrt")
	assert.Equal(t, "sonstiges", cat)
	assert.Equal(t, "Raumfahrt", hint)

	cat, hint = tax.Category("  ")
	assert.Empty(t, cat)
	assert.Empty(t, hint)

	open := Taxonomy{}
	cat, _ = open.Category("Anything")
	assert.Equal(t, "Anything", cat)
}

func TestTaxonomyFilterTags(t *testing.T) {
	t.Parallel()

	tax := Taxonomy{Tags: []string{"haushalt", "schule"}}
	known, hints := tax.FilterTags([]string{"Haushalt", "mond", "schule", "haushalt", ""})
	assert.Equal(t, []string{"haushalt", "schule", DefaultCatchAll}, known)
	assert.Equal(t, []string{"mond"}, hints)

	known, hints = tax.FilterTags(nil)
	assert.Empty(t, known)
	assert.Empty(t, hints)
}
