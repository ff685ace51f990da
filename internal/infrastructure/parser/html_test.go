package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingPage = `
<html><body>
  <article class="teaser">
    <h2><a href="/news/1">Bundesnetzagentur  erlässt
      neue Regeln</a></h2>
    <p class="lead">Kurztext eins.</p>
    <time datetime="2024-05-01T08:00:00Z">1. Mai</time>
  </article>
  <article class="teaser">
    <h2><a href="https://other.example/news/2">Zweite Meldung</a></h2>
    <span class="date">02.05.2024</span>
  </article>
  <article class="teaser">
    <p class="lead">ohne Titel</p>
  </article>
</body></html>`

func TestHTMLConnectorFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listingPage))
	}))
	defer server.Close()

	now := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
	conn := NewHTMLConnector(server.Client(), "")
	conn.now = func() time.Time { return now }

	items, err := conn.Fetch(context.Background(), map[string]string{
		"url":         server.URL + "/news",
		"item":        "article.teaser",
		"title":       "h2",
		"body":        ".lead",
		"date":        "time, .date",
		"date_layout": "02.01.2006",
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Bundesnetzagentur erlässt neue Regeln", items[0].Title)
	assert.Equal(t, server.URL+"/news/1", items[0].URL)
	assert.Equal(t, items[0].URL, items[0].ExternalID)
	assert.Equal(t, "Kurztext eins.", items[0].Content)
	assert.True(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC).Equal(items[0].PublishedAt))

	assert.Equal(t, "https://other.example/news/2", items[1].URL)
	assert.True(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC).Equal(items[1].PublishedAt))
}

func TestHTMLConnectorUnparsableDateFallsBackToNow(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listingPage))
	}))
	defer server.Close()

	now := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
	conn := NewHTMLConnector(server.Client(), "")
	conn.now = func() time.Time { return now }

	items, err := conn.Fetch(context.Background(), map[string]string{
		"url":   server.URL,
		"item":  "article.teaser",
		"title": "h2",
		"date":  ".date",
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, now.Equal(items[1].PublishedAt))
}

func TestHTMLConnectorValidate(t *testing.T) {
	t.Parallel()

	conn := NewHTMLConnector(nil, "")
	ok, _ := conn.Validate(map[string]string{"url": "https://example.org", "item": "li", "title": "a"})
	assert.True(t, ok)

	ok, msg := conn.Validate(map[string]string{"url": "https://example.org", "item": "li"})
	assert.False(t, ok)
	assert.Contains(t, msg, "title")

	ok, _ = conn.Validate(map[string]string{"url": "ftp://example.org", "item": "li", "title": "a"})
	assert.False(t, ok)

	_, err := conn.Fetch(context.Background(), map[string]string{})
	assert.Error(t, err)
}
