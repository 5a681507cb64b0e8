package capture

import "context"

// ChanSource is a channel-backed frame source. The platform glue pushes
// frames into it from its own delivery callbacks; a full buffer drops the
// newest frame rather than blocking the caller.
type ChanSource struct {
	frames chan Frame
}

// NewChanSource creates a channel source with the given buffer depth.
func NewChanSource(buffer int) *ChanSource {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChanSource{frames: make(chan Frame, buffer)}
}

// Push delivers a frame. It never blocks; it reports whether the frame was
// accepted.
func (s *ChanSource) Push(frame Frame) bool {
	select {
	case s.frames <- frame:
		return true
	default:
		return false
	}
}

// ReadFrame blocks until a frame is available or the context is cancelled.
func (s *ChanSource) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case frame := <-s.frames:
		return frame, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}
