package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"NewsRadar/internal/domain"
	"NewsRadar/internal/ports"
)

// SchedulerConfig holds the periodic job schedules.
type SchedulerConfig struct {
	DueScanCron      string
	CleanupCron      string
	ProxyRefreshCron string
	Parallelism      int
	Retention        time.Duration
}

// SchedulerDeps wires the cron driver and the jobs it triggers.
type SchedulerDeps struct {
	Driver   ports.Scheduler
	Pipeline *Pipeline
	Sources  ports.SourceRepository
	Items    ports.ItemRepository
	Pool     ports.PoolRefresher
	Metrics  FetchRecorder
	Logger   *slog.Logger
}

// ErrSchedulerStopped is returned for manual fetches requested after Stop.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// ScanResult summarizes one due-scan.
type ScanResult struct {
	// Skipped is set when another scan was still running; nothing was fetched.
	Skipped bool
	Due     int
	Failed  int
	Results []FetchResult
}

// Scheduler decides when sources are fetched and runs maintenance jobs.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	sources  ports.SourceRepository
	items    ports.ItemRepository
	pool     ports.PoolRefresher
	metrics  FetchRecorder
	cfg      SchedulerConfig
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	inProgress bool
	stopped    bool

	// jobs parents manual fetches; Stop cancels it once the grace period ends.
	jobs       context.Context
	cancelJobs context.CancelFunc
	manual     sync.WaitGroup
}

// NewScheduler returns the fetch scheduler.
func NewScheduler(cfg SchedulerConfig, deps SchedulerDeps) *Scheduler {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	jobs, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		driver:     deps.Driver,
		pipeline:   deps.Pipeline,
		sources:    deps.Sources,
		items:      deps.Items,
		pool:       deps.Pool,
		metrics:    deps.Metrics,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		jobs:       jobs,
		cancelJobs: cancel,
	}
}

// Start registers the periodic jobs with the driver and starts it.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	jobs := []struct {
		name string
		spec string
		run  func(context.Context)
	}{
		{"due-scan", s.cfg.DueScanCron, func(ctx context.Context) { s.RunDueScan(ctx) }},
		{"retention-cleanup", s.cfg.CleanupCron, func(ctx context.Context) {
			if _, err := s.RunCleanup(ctx); err != nil {
				s.logger.Error("retention cleanup failed", "error", err)
			}
		}},
		{"proxy-refresh", s.cfg.ProxyRefreshCron, func(ctx context.Context) {
			if err := s.RefreshPool(ctx); err != nil {
				s.logger.Warn("proxy refresh failed", "error", err)
			}
		}},
	}
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		if job.name == "proxy-refresh" && s.pool == nil {
			continue
		}
		if err := s.driver.AddJob(job.name, job.spec, job.run); err != nil {
			return fmt.Errorf("schedule %s: %w", job.name, err)
		}
	}

	return s.driver.Start(ctx)
}

// Stop tears down the driver and waits for manual fetches to finish. When ctx
// ends first, the remaining fetches are cancelled and Stop still waits for
// them to return so nothing touches the store afterwards.
func (s *Scheduler) Stop(ctx context.Context) error {
	var err error
	if s.driver != nil {
		err = s.driver.Stop(ctx)
	}
	defer s.cancelJobs()

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.manual.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.cancelJobs()
		<-done
		if err == nil {
			err = fmt.Errorf("wait for manual fetches: %w", ctx.Err())
		}
	}
	return err
}

// RunDueScan fetches every due source, oldest last fetch first. A scan that
// starts while another is running returns immediately with Skipped set.
func (s *Scheduler) RunDueScan(ctx context.Context) ScanResult {
	if !s.tryBegin() {
		s.logger.Info("due scan skipped, previous scan still running")
		if s.metrics != nil {
			s.metrics.ScanSkipped()
		}
		return ScanResult{Skipped: true}
	}
	defer s.end()

	enabled, err := s.sources.ListEnabled(ctx)
	if err != nil {
		s.logger.Error("list sources", "error", err)
		return ScanResult{}
	}

	due := DueSources(enabled, s.now())
	result := ScanResult{Due: len(due), Results: make([]FetchResult, len(due))}
	if len(due) == 0 {
		return result
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for i, source := range due {
		g.Go(func() error {
			result.Results[i] = s.pipeline.FetchSource(gctx, source)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range result.Results {
		if r.Err != nil {
			result.Failed++
		}
	}
	s.logger.Info("due scan finished", "due", result.Due, "failed", result.Failed)
	return result
}

func (s *Scheduler) tryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inProgress {
		return false
	}
	s.inProgress = true
	return true
}

func (s *Scheduler) end() {
	s.mu.Lock()
	s.inProgress = false
	s.mu.Unlock()
}

// DueSources returns the sources due at now: never-fetched first, then by
// ascending last fetch, ties broken by id.
func DueSources(sources []domain.Source, now time.Time) []domain.Source {
	due := make([]domain.Source, 0, len(sources))
	for _, src := range sources {
		if src.IsDue(now) {
			due = append(due, src)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i].LastFetchAt, due[j].LastFetchAt
		switch {
		case a == nil && b == nil:
			return due[i].ID < due[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		case !a.Equal(*b):
			return a.Before(*b)
		default:
			return due[i].ID < due[j].ID
		}
	})
	return due
}

// FetchNow runs a one-off fetch of a single source. It ignores the due-scan
// overlap guard.
func (s *Scheduler) FetchNow(ctx context.Context, sourceID string) (FetchResult, error) {
	return s.pipeline.FetchByID(ctx, sourceID)
}

// TriggerFetch validates that the source exists and starts FetchNow as a
// background job that outlives the caller's ctx but not Stop. Acceptance does
// not imply success.
func (s *Scheduler) TriggerFetch(ctx context.Context, sourceID string) error {
	source, err := s.sources.Get(ctx, sourceID)
	if err != nil {
		return err
	}
	if !source.Enabled {
		return fmt.Errorf("source %s: %w", sourceID, ErrSourceDisabled)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("fetch %s: %w", sourceID, ErrSchedulerStopped)
	}
	s.manual.Add(1)
	go func() {
		defer s.manual.Done()
		s.pipeline.FetchSource(s.jobs, source)
	}()
	return nil
}

// RunCleanup deletes unstarred items fetched before the retention horizon.
func (s *Scheduler) RunCleanup(ctx context.Context) (int64, error) {
	if s.cfg.Retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().Add(-s.cfg.Retention)
	deleted, err := s.items.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete items before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	s.logger.Info("retention cleanup", "deleted", deleted, "cutoff", cutoff)
	return deleted, nil
}

// RefreshPool reloads the connectors' outbound proxy pool.
func (s *Scheduler) RefreshPool(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Refresh(ctx)
}
