package sweeper

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/voicescribe/voicescribe/internal/activity"
	"github.com/voicescribe/voicescribe/internal/metrics"
	"github.com/voicescribe/voicescribe/internal/staging"
)

// Engine is the opaque transcription engine: audio file in, text out.
type Engine interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Resolver maps a participant identifier to a display name. It must not
// fail; implementations fall back to a placeholder name.
type Resolver interface {
	Resolve(ctx context.Context, participantID string) string
}

// Sink receives attributed transcript events. Emit is fire-and-forget.
type Sink interface {
	Emit(event TranscriptEvent)
}

// Activity is the read side of the voice-activity tracker.
type Activity interface {
	Snapshot() activity.State
}

// TranscriptEvent is one attributed piece of recognized speech. It is
// ephemeral: emitted once and never persisted by the pipeline.
type TranscriptEvent struct {
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	Text          string    `json:"text"`
	Timestamp     time.Time `json:"timestamp"`
}

// Config contains the sweeper tunables.
type Config struct {
	StagingDir    string
	Interval      time.Duration // delay between sweep passes
	SettleAge     time.Duration // minimum file age before it is read
	MinBytes      int64         // size floor below which files are silence
	EngineTimeout time.Duration // per-file transcription deadline
}

// Stats represents sweeper statistics for monitoring.
type Stats struct {
	SweepsCompleted uint64 `json:"sweeps_completed"`
	FilesObserved   uint64 `json:"files_observed"`
	FilesDeleted    uint64 `json:"files_deleted"`
	EventsEmitted   uint64 `json:"events_emitted"`
}

// Sweeper consumes finalized segment files from the staging directory.
type Sweeper struct {
	cfg      Config
	engine   Engine
	resolver Resolver
	sink     Sink
	tracker  Activity
	logger   *slog.Logger
	metrics  *metrics.Metrics // may be nil

	nowFunc func() time.Time

	sweepsCompleted uint64
	filesObserved   uint64
	filesDeleted    uint64
	eventsEmitted   uint64
	mu              sync.RWMutex
}

// New creates a sweeper. The metrics argument may be nil.
func New(cfg Config, engine Engine, resolver Resolver, sink Sink, tracker Activity, logger *slog.Logger, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		cfg:      cfg,
		engine:   engine,
		resolver: resolver,
		sink:     sink,
		tracker:  tracker,
		logger:   logger,
		metrics:  m,
		nowFunc:  time.Now,
	}
}

// Run sweeps the staging directory on a fixed interval until the context is
// cancelled. No per-file failure ever terminates the loop.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Debug("transcription sweeper started",
		slog.String("staging_dir", s.cfg.StagingDir),
		slog.Duration("interval", s.cfg.Interval),
		slog.Duration("settle_age", s.cfg.SettleAge),
		slog.Int64("min_bytes", s.cfg.MinBytes),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("transcription sweeper stopping")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep performs one pass over the staging directory. Each file is handled
// independently; errors are logged and the pass continues.
func (s *Sweeper) sweep(ctx context.Context) {
	entries, err := os.ReadDir(s.cfg.StagingDir)
	if err != nil {
		s.logger.Error("failed to list staging directory",
			slog.String("dir", s.cfg.StagingDir),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if entry.IsDir() {
			continue
		}
		s.sweepFile(ctx, entry)
	}

	s.mu.Lock()
	s.sweepsCompleted++
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SweepTicks.Inc()
	}
}

// sweepFile examines one staging file: skip if it may still be written,
// transcribe if it plausibly contains speech, and delete it afterward
// regardless of the outcome.
func (s *Sweeper) sweepFile(ctx context.Context, entry fs.DirEntry) {
	path := filepath.Join(s.cfg.StagingDir, entry.Name())

	info, err := entry.Info()
	if err != nil {
		// File vanished between listing and stat, nothing to clean up.
		s.logger.Debug("staging file disappeared before stat",
			slog.String("path", path),
		)
		return
	}

	s.mu.Lock()
	s.filesObserved++
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.FilesObserved.Inc()
	}

	age := s.nowFunc().Sub(info.ModTime())
	if age < s.cfg.SettleAge || s.tracker.Snapshot().Speaking {
		// Possibly still being appended to. Leave it for the next pass.
		if s.metrics != nil {
			s.metrics.FilesSettling.Inc()
		}
		return
	}

	if info.Size() > s.cfg.MinBytes {
		s.transcribeFile(ctx, path, entry.Name(), info.Size(), age)
	} else {
		s.logger.Debug("discarding undersized segment",
			slog.String("path", path),
			slog.Int64("size", info.Size()),
		)
		if s.metrics != nil {
			s.metrics.FilesUndersized.Inc()
		}
	}

	s.deleteFile(path)
}

// transcribeFile runs the engine on a settled file and emits an attributed
// transcript event if any text was recognized. Errors are logged only; the
// caller deletes the file either way.
func (s *Sweeper) transcribeFile(ctx context.Context, path, name string, size int64, age time.Duration) {
	participantID, segmentID, err := staging.Parse(name)
	if err != nil {
		s.logger.Warn("unparseable staging filename",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		if s.metrics != nil {
			s.metrics.FilesMalformed.Inc()
		}
		return
	}

	s.logger.Info("transcribing segment",
		slog.String("segment_id", segmentID),
		slog.String("participant_id", participantID),
		slog.Int64("size", size),
		slog.Float64("age_seconds", age.Seconds()),
	)

	engineCtx := ctx
	if s.cfg.EngineTimeout > 0 {
		var cancel context.CancelFunc
		engineCtx, cancel = context.WithTimeout(ctx, s.cfg.EngineTimeout)
		defer cancel()
	}

	startTime := s.nowFunc()
	text, err := s.engine.Transcribe(engineCtx, path)
	if s.metrics != nil {
		s.metrics.TranscriptionRequests.Inc()
		s.metrics.TranscriptionDuration.Observe(time.Since(startTime).Seconds())
	}

	if err != nil {
		// The segment is permanently lost; no retry queue exists.
		s.logger.Error("transcription failed, segment dropped",
			slog.String("segment_id", segmentID),
			slog.String("error", err.Error()),
		)
		if s.metrics != nil {
			s.metrics.TranscriptionFailures.Inc()
		}
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		if s.metrics != nil {
			s.metrics.EmptyTranscripts.Inc()
		}
		return
	}

	displayName := s.resolver.Resolve(ctx, participantID)

	s.sink.Emit(TranscriptEvent{
		ParticipantID: participantID,
		DisplayName:   displayName,
		Text:          text,
		Timestamp:     s.nowFunc(),
	})

	s.mu.Lock()
	s.eventsEmitted++
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.TranscriptEvents.Inc()
	}
}

// deleteFile removes a processed staging file. Deletion failure is logged,
// not fatal; the file will be reexamined on the next pass.
func (s *Sweeper) deleteFile(path string) {
	if err := os.Remove(path); err != nil {
		s.logger.Error("failed to delete staging file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		if s.metrics != nil {
			s.metrics.FileDeleteErrors.Inc()
		}
		return
	}

	s.mu.Lock()
	s.filesDeleted++
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.FilesDeleted.Inc()
	}
}

// Stats returns current sweeper statistics.
func (s *Sweeper) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		SweepsCompleted: s.sweepsCompleted,
		FilesObserved:   s.filesObserved,
		FilesDeleted:    s.filesDeleted,
		EventsEmitted:   s.eventsEmitted,
	}
}
