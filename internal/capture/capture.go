package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/voicescribe/voicescribe/internal/audio"
	"github.com/voicescribe/voicescribe/internal/recorder"
	"github.com/voicescribe/voicescribe/internal/staging"
)

// Frame is one delivery of PCM-16 samples attributed to a participant.
type Frame struct {
	ParticipantID string
	Samples       []int16
}

// Source delivers voice frames from the session provider. ReadFrame blocks
// until a frame is available or the context is cancelled.
type Source interface {
	ReadFrame(ctx context.Context) (Frame, error)
}

// Provider implements segment capture over a frame source.
type Provider struct {
	source     Source
	sampleRate int
	logger     *slog.Logger
}

// NewProvider creates a capture provider. A missing source is a
// configuration error and surfaces at session start.
func NewProvider(source Source, sampleRate int, logger *slog.Logger) (*Provider, error) {
	if source == nil {
		return nil, fmt.Errorf("no voice frame source configured")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	return &Provider{
		source:     source,
		sampleRate: sampleRate,
		logger:     logger,
	}, nil
}

// Start opens a new capture segment writing into dir. Frames are drained
// from the source until Stop is called.
func (p *Provider) Start(ctx context.Context, dir string) (recorder.Recording, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("staging directory unavailable: %w", err)
	}

	drainCtx, cancel := context.WithCancel(ctx)
	rec := &fileRecording{
		dir:        dir,
		sampleRate: p.sampleRate,
		logger:     p.logger,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	go rec.drain(drainCtx, p.source)

	return rec, nil
}

// fileRecording accumulates one segment's frames in memory and flushes
// them to a staging file on Stop.
type fileRecording struct {
	dir        string
	sampleRate int
	logger     *slog.Logger
	cancel     context.CancelFunc
	done       chan struct{}

	samples       []int16
	participantID string
	mu            sync.Mutex
}

// drain consumes frames until the recording is stopped. The participant of
// the first frame names the segment file.
func (r *fileRecording) drain(ctx context.Context, source Source) {
	defer close(r.done)

	for {
		frame, err := source.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Warn("frame source failed during capture",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		r.mu.Lock()
		if r.participantID == "" && frame.ParticipantID != "" {
			r.participantID = frame.ParticipantID
		}
		r.samples = append(r.samples, frame.Samples...)
		r.mu.Unlock()
	}
}

// Stop finalizes the segment: it stops draining, encodes the collected
// samples as WAV, and durably flushes the staging file before returning
// its path. A segment with no frames produces an empty file, which the
// sweeper discards under its size floor.
func (r *fileRecording) Stop() (string, error) {
	r.cancel()
	<-r.done

	r.mu.Lock()
	samples := r.samples
	participantID := r.participantID
	r.mu.Unlock()

	if participantID == "" {
		participantID = "unknown"
	}

	name, err := staging.Encode(participantID)
	if err != nil {
		return "", fmt.Errorf("failed to build staging name: %w", err)
	}
	path := filepath.Join(r.dir, name)

	var data []byte
	if len(samples) > 0 {
		data, err = audio.EncodeWAV(samples, r.sampleRate)
		if err != nil {
			return "", fmt.Errorf("failed to encode segment: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create staging file: %w", err)
	}

	if len(data) > 0 {
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to write staging file: %w", err)
		}
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to flush staging file: %w", err)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close staging file: %w", err)
	}

	return path, nil
}
