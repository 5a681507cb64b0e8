package activity

import (
	"sync"
	"time"
)

// State is a consistent snapshot of the tracker's speaking state.
type State struct {
	Speaking        bool          `json:"speaking"`
	SinceLastSpeech time.Duration `json:"since_last_speech"`
}

// TrackerStats represents tracker statistics for monitoring.
type TrackerStats struct {
	EventsObserved      uint64    `json:"events_observed"`
	SpeakingTransitions uint64    `json:"speaking_transitions"`
	LastParticipant     string    `json:"last_participant,omitempty"`
	LastSpeechTime      time.Time `json:"last_speech_time"`
}

// Tracker holds the current speaking/silence state of a session.
// It is a single-writer/multi-reader cell: every event overwrites the
// previous state, so missed intermediate transitions are acceptable.
type Tracker struct {
	speaking        bool
	lastSpeech      time.Time
	lastParticipant string

	// Statistics
	eventsObserved      uint64
	speakingTransitions uint64

	nowFunc func() time.Time

	mu sync.RWMutex
}

// NewTracker creates a tracker. The last-speech timestamp starts at the
// creation time so that SinceLastSpeech is well-defined before the first
// event arrives.
func NewTracker() *Tracker {
	t := &Tracker{nowFunc: time.Now}
	t.lastSpeech = t.nowFunc()
	return t
}

// Observe records a voice-activity event. While the participant is
// speaking the last-speech timestamp is refreshed on every event.
func (t *Tracker) Observe(participantID string, speaking bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.eventsObserved++
	if speaking != t.speaking {
		t.speakingTransitions++
	}

	t.speaking = speaking
	t.lastParticipant = participantID
	if speaking {
		t.lastSpeech = t.nowFunc()
	}
}

// Snapshot returns the current speaking state together with the time
// elapsed since speech was last observed.
func (t *Tracker) Snapshot() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return State{
		Speaking:        t.speaking,
		SinceLastSpeech: t.nowFunc().Sub(t.lastSpeech),
	}
}

// Stats returns current tracker statistics.
func (t *Tracker) Stats() TrackerStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return TrackerStats{
		EventsObserved:      t.eventsObserved,
		SpeakingTransitions: t.speakingTransitions,
		LastParticipant:     t.lastParticipant,
		LastSpeechTime:      t.lastSpeech,
	}
}

// Reset clears the tracker state and statistics.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.speaking = false
	t.lastSpeech = t.nowFunc()
	t.lastParticipant = ""
	t.eventsObserved = 0
	t.speakingTransitions = 0
}
