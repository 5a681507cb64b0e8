// Package capture provides the default segment capture implementation: it
// drains PCM-16 frames from a voice-session source while a segment is open
// and finalizes them into a WAV file in the staging directory, named so the
// sweeper can recover the participant identifier.
package capture
