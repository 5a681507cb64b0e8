package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voicescribe/voicescribe/internal/activity"
	"github.com/voicescribe/voicescribe/internal/metrics"
	"github.com/voicescribe/voicescribe/internal/recorder"
	"github.com/voicescribe/voicescribe/internal/sweeper"
)

// Config contains the session controller configuration. The staging
// directory is shared by both loops and owned by the controller.
type Config struct {
	StagingDir string
	Settle     time.Duration // wait between stopping and restarting loops
	Recorder   recorder.Config
	Sweeper    sweeper.Config
}

// Info is a session snapshot for the monitoring API.
type Info struct {
	SessionID  string                 `json:"session_id,omitempty"`
	Active     bool                   `json:"active"`
	StartTime  time.Time              `json:"start_time,omitempty"`
	Uptime     time.Duration          `json:"uptime,omitempty"`
	StagingDir string                 `json:"staging_dir"`
	Recorder   recorder.Stats         `json:"recorder"`
	Sweeper    sweeper.Stats          `json:"sweeper"`
	Activity   activity.TrackerStats  `json:"activity"`
}

// Controller orchestrates one session: at most one recorder/sweeper pair
// runs at a time, and a restart waits for the previous pair to exit.
type Controller struct {
	cfg     Config
	tracker *activity.Tracker
	rec     *recorder.Recorder
	sw      *sweeper.Sweeper
	logger  *slog.Logger
	metrics *metrics.Metrics // may be nil

	id        uuid.UUID
	startTime time.Time
	active    bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
}

// NewController wires a session controller. It creates the staging
// directory; failure to do so aborts construction rather than surfacing
// later inside the loops.
func NewController(cfg Config, capture recorder.Capture, tracker *activity.Tracker,
	engine sweeper.Engine, resolver sweeper.Resolver, sink sweeper.Sink,
	logger *slog.Logger, m *metrics.Metrics) (*Controller, error) {

	if cfg.StagingDir == "" {
		return nil, fmt.Errorf("staging directory cannot be empty")
	}

	if err := os.MkdirAll(cfg.StagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	cfg.Recorder.StagingDir = cfg.StagingDir
	cfg.Sweeper.StagingDir = cfg.StagingDir

	return &Controller{
		cfg:     cfg,
		tracker: tracker,
		rec:     recorder.New(cfg.Recorder, capture, tracker, logger, m),
		sw:      sweeper.New(cfg.Sweeper, engine, resolver, sink, tracker, logger, m),
		logger:  logger,
		metrics: m,
	}, nil
}

// Start launches the recorder and sweeper loops. If a session is already
// active it is stopped first, and the controller waits one settle period
// so the previous loops have fully exited before new ones share the
// staging directory.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		c.logger.Info("session already active, restarting",
			slog.String("session_id", c.id.String()),
		)
		c.stopLocked()
		time.Sleep(c.cfg.Settle)
	}

	if ctx.Err() != nil {
		return fmt.Errorf("cannot start session: %w", ctx.Err())
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.active = true
	c.id = uuid.New()
	c.startTime = time.Now()

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.rec.Run(sessionCtx)
	}()
	go func() {
		defer c.wg.Done()
		c.sw.Run(sessionCtx)
	}()

	if c.metrics != nil {
		c.metrics.SessionsStarted.Inc()
	}

	c.logger.Info("session started",
		slog.String("session_id", c.id.String()),
		slog.String("staging_dir", c.cfg.StagingDir),
	)

	return nil
}

// Stop deactivates the session and waits for both loops to exit. The
// recorder finalizes its current capture on the way out.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return
	}

	c.stopLocked()
}

// stopLocked cancels the session context and waits for the loop pair.
// Callers must hold c.mu.
func (c *Controller) stopLocked() {
	c.cancel()
	c.wg.Wait()
	c.active = false

	if c.metrics != nil {
		c.metrics.SessionsStopped.Inc()
	}

	c.logger.Info("session stopped",
		slog.String("session_id", c.id.String()),
		slog.Duration("duration", time.Since(c.startTime)),
	)
}

// Active reports whether a session is currently running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Info returns a session snapshot for monitoring.
func (c *Controller) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := Info{
		Active:     c.active,
		StagingDir: c.cfg.StagingDir,
		Recorder:   c.rec.Stats(),
		Sweeper:    c.sw.Stats(),
		Activity:   c.tracker.Stats(),
	}

	if c.active {
		info.SessionID = c.id.String()
		info.StartTime = c.startTime
		info.Uptime = time.Since(c.startTime)
	}

	return info
}
