package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/voicescribe/voicescribe/internal/activity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedActivity returns snapshots computed from the time elapsed since
// the test started.
type scriptedActivity struct {
	start    time.Time
	snapshot func(elapsed time.Duration) activity.State
}

func (s *scriptedActivity) Snapshot() activity.State {
	return s.snapshot(time.Since(s.start))
}

type fakeRecording struct {
	stopped   time.Time
	stopErr   error
	stopCount int
	mu        sync.Mutex
}

func (f *fakeRecording) Stop() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCount++
	f.stopped = time.Now()
	return "/tmp/fake.wav", f.stopErr
}

type fakeCapture struct {
	startErr   error
	recordings []*fakeRecording
	mu         sync.Mutex
}

func (f *fakeCapture) Start(ctx context.Context, dir string) (Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	rec := &fakeRecording{}
	f.recordings = append(f.recordings, rec)
	return rec, nil
}

func (f *fakeCapture) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recordings)
}

func testConfig() Config {
	return Config{
		StagingDir:   "/tmp/staging",
		BaseDuration: 100 * time.Millisecond,
		Grace:        40 * time.Millisecond,
		SilenceHold:  20 * time.Millisecond,
		TickInterval: 5 * time.Millisecond,
		Backoff:      10 * time.Millisecond,
	}
}

func TestNextTarget(t *testing.T) {
	tests := []struct {
		name     string
		target   time.Duration
		elapsed  time.Duration
		speaking bool
		expected time.Duration
	}{
		{"silent keeps target", 20 * time.Second, 5 * time.Second, false, 20 * time.Second},
		{"speaking early keeps base", 20 * time.Second, 3 * time.Second, true, 20 * time.Second},
		{"speaking near end extends", 20 * time.Second, 19 * time.Second, true, 21 * time.Second},
		{"speaking past end extends", 25 * time.Second, 25 * time.Second, true, 27 * time.Second},
		{"never shrinks", 30 * time.Second, 10 * time.Second, true, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextTarget(tt.target, tt.elapsed, 2*time.Second, tt.speaking)
			if got != tt.expected {
				t.Errorf("Expected target %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestShouldStop(t *testing.T) {
	hold := time.Second
	target := 20 * time.Second

	tests := []struct {
		name     string
		snap     activity.State
		elapsed  time.Duration
		expected bool
	}{
		{"speaking never stops", activity.State{Speaking: true, SinceLastSpeech: 0}, 30 * time.Second, false},
		{"silence before target", activity.State{Speaking: false, SinceLastSpeech: 5 * time.Second}, 10 * time.Second, false},
		{"brief pause inside utterance", activity.State{Speaking: false, SinceLastSpeech: 300 * time.Millisecond}, 25 * time.Second, false},
		{"held silence after target", activity.State{Speaking: false, SinceLastSpeech: time.Second}, 20 * time.Second, true},
		{"held silence exactly at target", activity.State{Speaking: false, SinceLastSpeech: 2 * time.Second}, 20 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := shouldStop(tt.snap, tt.elapsed, target, hold)
			if got != tt.expected {
				t.Errorf("Expected shouldStop=%v, got %v", tt.expected, got)
			}
		})
	}
}

// The two-utterance scenario from the source behavior: brief speech at the
// start of a segment does not extend it past the base duration, and silence
// alone does not end it early.
func TestSegmentStopsAtBaseDurationAfterShortSpeech(t *testing.T) {
	cfg := testConfig()
	script := &scriptedActivity{start: time.Now()}
	script.snapshot = func(elapsed time.Duration) activity.State {
		speechEnd := 30 * time.Millisecond
		if elapsed < speechEnd {
			return activity.State{Speaking: true, SinceLastSpeech: 0}
		}
		return activity.State{Speaking: false, SinceLastSpeech: elapsed - speechEnd}
	}

	capture := &fakeCapture{}
	r := New(cfg, capture, script, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()

	done := make(chan struct{})
	go func() {
		_ = r.cycle(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("cycle did not complete")
	}
	cancel()

	elapsed := time.Since(start)
	if elapsed < cfg.BaseDuration {
		t.Errorf("Segment stopped before base duration: %v < %v", elapsed, cfg.BaseDuration)
	}
	if elapsed > cfg.BaseDuration+20*cfg.TickInterval {
		t.Errorf("Segment ran far past base duration: %v", elapsed)
	}
}

// Continuous speech must extend the segment beyond the base duration by at
// least the grace period.
func TestContinuousSpeechExtendsSegment(t *testing.T) {
	cfg := testConfig()
	speechFor := cfg.BaseDuration + 50*time.Millisecond

	script := &scriptedActivity{start: time.Now()}
	script.snapshot = func(elapsed time.Duration) activity.State {
		if elapsed < speechFor {
			return activity.State{Speaking: true, SinceLastSpeech: 0}
		}
		return activity.State{Speaking: false, SinceLastSpeech: elapsed - speechFor}
	}

	capture := &fakeCapture{}
	r := New(cfg, capture, script, testLogger(), nil)

	start := time.Now()
	if err := r.cycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	elapsed := time.Since(start)
	if elapsed < speechFor+cfg.Grace {
		t.Errorf("Expected segment to extend to at least %v, stopped after %v", speechFor+cfg.Grace, elapsed)
	}
}

func TestCaptureStartErrorRetriesWithBackoff(t *testing.T) {
	cfg := testConfig()
	capture := &fakeCapture{startErr: fmt.Errorf("no capture device")}
	script := &scriptedActivity{start: time.Now()}
	script.snapshot = func(time.Duration) activity.State {
		return activity.State{Speaking: false, SinceLastSpeech: time.Hour}
	}

	r := New(cfg, capture, script, testLogger(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	r.Run(ctx)

	stats := r.Stats()
	if stats.CycleErrors < 2 {
		t.Errorf("Expected repeated retries after capture errors, got %d", stats.CycleErrors)
	}
	if stats.CyclesStarted != 0 {
		t.Errorf("Expected no cycles started, got %d", stats.CyclesStarted)
	}
}

func TestCancellationFinalizesCurrentCapture(t *testing.T) {
	cfg := testConfig()
	cfg.BaseDuration = time.Hour // never stops on its own

	capture := &fakeCapture{}
	script := &scriptedActivity{start: time.Now()}
	script.snapshot = func(time.Duration) activity.State {
		return activity.State{Speaking: false, SinceLastSpeech: time.Hour}
	}

	r := New(cfg, capture, script, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	// Let the cycle start, then cancel.
	deadline := time.Now().Add(time.Second)
	for capture.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not exit after cancellation")
	}

	if capture.count() != 1 {
		t.Fatalf("Expected exactly one capture, got %d", capture.count())
	}
	if capture.recordings[0].stopCount != 1 {
		t.Errorf("Expected capture to be finalized exactly once, got %d", capture.recordings[0].stopCount)
	}
}

func TestConsecutiveCycles(t *testing.T) {
	cfg := testConfig()
	cfg.BaseDuration = 20 * time.Millisecond
	cfg.SilenceHold = 5 * time.Millisecond

	capture := &fakeCapture{}
	script := &scriptedActivity{start: time.Now()}
	script.snapshot = func(time.Duration) activity.State {
		return activity.State{Speaking: false, SinceLastSpeech: time.Hour}
	}

	r := New(cfg, capture, script, testLogger(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	r.Run(ctx)

	if capture.count() < 2 {
		t.Errorf("Expected multiple consecutive capture cycles, got %d", capture.count())
	}

	stats := r.Stats()
	if stats.CyclesCompleted < 2 {
		t.Errorf("Expected at least 2 completed cycles, got %d", stats.CyclesCompleted)
	}
}
