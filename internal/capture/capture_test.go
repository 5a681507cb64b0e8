package capture

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voicescribe/voicescribe/internal/audio"
	"github.com/voicescribe/voicescribe/internal/staging"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewProviderValidation(t *testing.T) {
	if _, err := NewProvider(nil, 48000, testLogger()); err == nil {
		t.Error("Expected error for nil source")
	}

	if _, err := NewProvider(NewChanSource(8), 0, testLogger()); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestStartRequiresStagingDirectory(t *testing.T) {
	provider, err := NewProvider(NewChanSource(8), 48000, testLogger())
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	if _, err := provider.Start(context.Background(), "/nonexistent/staging"); err == nil {
		t.Error("Expected error for missing staging directory")
	}
}

func TestCaptureWritesParseableWAVSegment(t *testing.T) {
	dir := t.TempDir()
	source := NewChanSource(8)

	provider, err := NewProvider(source, 48000, testLogger())
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	rec, err := provider.Start(context.Background(), dir)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	samples := []int16{100, -100, 200, -200, 300, -300}
	if !source.Push(Frame{ParticipantID: "42", Samples: samples[:3]}) {
		t.Fatal("Push rejected frame")
	}
	if !source.Push(Frame{ParticipantID: "42", Samples: samples[3:]}) {
		t.Fatal("Push rejected frame")
	}

	// Let the drain goroutine pick the frames up.
	time.Sleep(50 * time.Millisecond)

	path, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	participantID, _, err := staging.Parse(filepath.Base(path))
	if err != nil {
		t.Fatalf("Segment filename not parseable: %v", err)
	}
	if participantID != "42" {
		t.Errorf("Expected participant '42', got '%s'", participantID)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read segment file: %v", err)
	}

	decoded, sampleRate, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("Segment is not valid WAV: %v", err)
	}
	if sampleRate != 48000 {
		t.Errorf("Expected sample rate 48000, got %d", sampleRate)
	}
	if len(decoded) != len(samples) {
		t.Errorf("Expected %d samples, got %d", len(samples), len(decoded))
	}
}

func TestSilentCaptureProducesEmptyFile(t *testing.T) {
	dir := t.TempDir()
	provider, err := NewProvider(NewChanSource(8), 48000, testLogger())
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	rec, err := provider.Start(context.Background(), dir)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	path, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Segment file missing: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("Expected empty file for silent capture, got %d bytes", info.Size())
	}

	participantID, _, err := staging.Parse(filepath.Base(path))
	if err != nil {
		t.Fatalf("Segment filename not parseable: %v", err)
	}
	if participantID != "unknown" {
		t.Errorf("Expected participant 'unknown', got '%s'", participantID)
	}
}

func TestChanSourceDropsWhenFull(t *testing.T) {
	source := NewChanSource(1)

	if !source.Push(Frame{ParticipantID: "1"}) {
		t.Error("Expected first push to be accepted")
	}
	if source.Push(Frame{ParticipantID: "2"}) {
		t.Error("Expected second push to be dropped")
	}
}

func TestChanSourceReadFrameCancellation(t *testing.T) {
	source := NewChanSource(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := source.ReadFrame(ctx); err == nil {
		t.Error("Expected error after context cancellation")
	}
}
