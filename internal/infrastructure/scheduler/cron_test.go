package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCronSchedulerRejectsInvalidSpec(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler(time.UTC, quietLogger())
	assert.Error(t, s.AddJob("bad", "every now and then", func(context.Context) {}))
	assert.Error(t, s.AddJob("nil", "@every 1m", nil))
	require.NoError(t, s.AddJob("cleanup", "30 3 * * *", func(context.Context) {}))
	assert.Equal(t, []string{"cleanup"}, s.Jobs())
}

func TestCronSchedulerRunsAndStops(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler(time.UTC, quietLogger())
	var runs atomic.Int32
	var sawCancel atomic.Bool
	require.NoError(t, s.AddJob("tick", "@every 1s", func(ctx context.Context) {
		runs.Add(1)
		if ctx.Err() != nil {
			sawCancel.Store(true)
		}
	}))

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	require.NoError(t, s.Stop(stopCtx), "second stop is a no-op")
	assert.False(t, sawCancel.Load())
}
