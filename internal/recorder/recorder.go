package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voicescribe/voicescribe/internal/activity"
	"github.com/voicescribe/voicescribe/internal/metrics"
)

// Capture abstracts the voice-session provider's segment capture. Start
// opens a new capture writing into the staging directory.
type Capture interface {
	Start(ctx context.Context, dir string) (Recording, error)
}

// Recording is one in-flight capture segment. Stop finalizes the segment,
// blocks until the file is durably flushed, and returns its path.
type Recording interface {
	Stop() (string, error)
}

// Activity is the read side of the voice-activity tracker.
type Activity interface {
	Snapshot() activity.State
}

// Config contains the segment recorder tunables.
type Config struct {
	StagingDir   string
	BaseDuration time.Duration // minimum segment length
	Grace        time.Duration // extension past ongoing speech
	SilenceHold  time.Duration // silence required before a stop
	TickInterval time.Duration
	Backoff      time.Duration // delay after a failed capture cycle
}

// Stats represents recorder statistics for monitoring.
type Stats struct {
	CyclesStarted   uint64 `json:"cycles_started"`
	CyclesCompleted uint64 `json:"cycles_completed"`
	CycleErrors     uint64 `json:"cycle_errors"`
}

// Recorder owns the lifecycle of capture segments for one session. At most
// one segment is active at a time.
type Recorder struct {
	cfg     Config
	capture Capture
	tracker Activity
	logger  *slog.Logger
	metrics *metrics.Metrics // may be nil

	nowFunc func() time.Time

	cyclesStarted   uint64
	cyclesCompleted uint64
	cycleErrors     uint64
	mu              sync.RWMutex
}

// New creates a segment recorder. The metrics argument may be nil.
func New(cfg Config, capture Capture, tracker Activity, logger *slog.Logger, m *metrics.Metrics) *Recorder {
	return &Recorder{
		cfg:     cfg,
		capture: capture,
		tracker: tracker,
		logger:  logger,
		metrics: m,
		nowFunc: time.Now,
	}
}

// Run executes capture cycles until the context is cancelled. A failed
// cycle is logged and retried after a backoff; it never terminates the
// loop. On cancellation the current capture is finalized before returning.
func (r *Recorder) Run(ctx context.Context) {
	r.logger.Debug("segment recorder started",
		slog.String("staging_dir", r.cfg.StagingDir),
		slog.Duration("base_duration", r.cfg.BaseDuration),
		slog.Duration("tick_interval", r.cfg.TickInterval),
	)

	for {
		if ctx.Err() != nil {
			r.logger.Debug("segment recorder stopping")
			return
		}

		if err := r.cycle(ctx); err != nil {
			r.mu.Lock()
			r.cycleErrors++
			r.mu.Unlock()
			if r.metrics != nil {
				r.metrics.RecorderCycleErrors.Inc()
			}

			r.logger.Error("recording cycle failed",
				slog.String("error", err.Error()),
				slog.Duration("backoff", r.cfg.Backoff),
			)

			select {
			case <-time.After(r.cfg.Backoff):
			case <-ctx.Done():
			}
		}
	}
}

// cycle runs one capture segment from start to finalized file.
func (r *Recorder) cycle(ctx context.Context) error {
	rec, err := r.capture.Start(ctx, r.cfg.StagingDir)
	if err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	r.mu.Lock()
	r.cyclesStarted++
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.SegmentsStarted.Inc()
	}

	start := r.nowFunc()
	target := r.cfg.BaseDuration

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

poll:
	for {
		select {
		case <-ctx.Done():
			break poll
		case <-ticker.C:
			snap := r.tracker.Snapshot()
			elapsed := r.nowFunc().Sub(start)

			target = nextTarget(target, elapsed, r.cfg.Grace, snap.Speaking)

			if shouldStop(snap, elapsed, target, r.cfg.SilenceHold) {
				break poll
			}
		}
	}

	path, err := rec.Stop()
	if err != nil {
		return fmt.Errorf("failed to finalize capture: %w", err)
	}

	elapsed := r.nowFunc().Sub(start)

	r.mu.Lock()
	r.cyclesCompleted++
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.SegmentsFinalized.Inc()
		r.metrics.SegmentDuration.Observe(elapsed.Seconds())
	}

	r.logger.Info("segment finalized",
		slog.String("path", path),
		slog.Duration("elapsed", elapsed),
		slog.Duration("target_duration", target),
	)

	return nil
}

// Stats returns current recorder statistics.
func (r *Recorder) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		CyclesStarted:   r.cyclesStarted,
		CyclesCompleted: r.cyclesCompleted,
		CycleErrors:     r.cycleErrors,
	}
}

// nextTarget extends the target duration while speech is in progress so a
// segment never cuts off mid-utterance.
func nextTarget(target, elapsed, grace time.Duration, speaking bool) time.Duration {
	if !speaking {
		return target
	}

	if extended := elapsed + grace; extended > target {
		return extended
	}

	return target
}

// shouldStop reports whether a segment may end: only in silence, only after
// the silence hold, and never before the target duration has elapsed.
func shouldStop(snap activity.State, elapsed, target, hold time.Duration) bool {
	if snap.Speaking {
		return false
	}

	return snap.SinceLastSpeech >= hold && elapsed >= target
}
