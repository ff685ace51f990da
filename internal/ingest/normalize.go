package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	tagExpr        = regexp.MustCompile(`<[^>]*>`)
	whitespaceExpr = regexp.MustCompile(`\s+`)

	// Single pass, so "&amp;lt;" decodes to "&lt;" and not to "<".
	entityReplacer = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	)
)

// NormalizeText strips markup tags, decodes the five common HTML entities and
// collapses whitespace runs to single spaces.
func NormalizeText(s string) string {
	s = tagExpr.ReplaceAllString(s, " ")
	s = entityReplacer.Replace(s)
	s = whitespaceExpr.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ContentHash is the hex SHA-256 of the normalized body. Link-only records with
// an empty body are hashed over title and URL instead.
func ContentHash(body, title, url string) string {
	input := body
	if input == "" {
		input = title + "\n" + url
	}
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
