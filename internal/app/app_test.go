package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"NewsRadar/internal/config"
)

const memoryConfig = `
database:
  driver: memory
events:
  sink: none
coordination:
  backend: memory
server:
  addr: "127.0.0.1:0"
sources:
  - id: bnetza
    type: html
    fetchIntervalMinutes: 60
    config:
      url: https://example.org/news
      item: article
      title: h2
rules:
  - name: budget
    type: keyword
    pattern: haushalt
    priorityBoost: 30
    targetPriority: high
`

func TestApplicationLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(memoryConfig), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	application, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
