package staging

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// Prefix marks files managed by this service inside the staging directory.
	Prefix = "seg_"

	// Ext is the container extension produced by the capture provider.
	Ext = ".wav"
)

// Encode builds a staging filename for a segment belonging to the given
// participant. The format is "seg_<participantID>_<segmentID>.wav" with a
// UUID segment ID, so names never collide across concurrent sessions.
func Encode(participantID string) (string, error) {
	if err := ValidateParticipantID(participantID); err != nil {
		return "", err
	}

	return Prefix + participantID + "_" + uuid.NewString() + Ext, nil
}

// Parse extracts the participant and segment identifiers from a staging
// filename. Names that do not strictly match the encoded format are
// rejected rather than best-effort split.
func Parse(name string) (participantID, segmentID string, err error) {
	if !strings.HasPrefix(name, Prefix) {
		return "", "", fmt.Errorf("staging name %q: missing %q prefix", name, Prefix)
	}

	if !strings.HasSuffix(name, Ext) {
		return "", "", fmt.Errorf("staging name %q: missing %q extension", name, Ext)
	}

	body := name[len(Prefix) : len(name)-len(Ext)]

	// The participant ID cannot contain the delimiter, so the segment ID is
	// everything after the last underscore.
	idx := strings.LastIndex(body, "_")
	if idx <= 0 || idx == len(body)-1 {
		return "", "", fmt.Errorf("staging name %q: missing participant/segment delimiter", name)
	}

	participantID = body[:idx]
	segmentID = body[idx+1:]

	if err := ValidateParticipantID(participantID); err != nil {
		return "", "", fmt.Errorf("staging name %q: %w", name, err)
	}

	if _, err := uuid.Parse(segmentID); err != nil {
		return "", "", fmt.Errorf("staging name %q: invalid segment ID: %w", name, err)
	}

	return participantID, segmentID, nil
}

// ValidateParticipantID checks that a participant identifier can be embedded
// in a staging filename. The underscore is reserved as the field delimiter.
func ValidateParticipantID(id string) error {
	if id == "" {
		return fmt.Errorf("participant ID cannot be empty")
	}

	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '-':
		default:
			return fmt.Errorf("participant ID %q contains unsupported character %q", id, r)
		}
	}

	return nil
}
