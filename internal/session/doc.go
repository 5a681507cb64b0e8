// Package session owns the lifecycle of one recording/transcription
// session. It runs the segment recorder and the transcription sweeper as
// two independent loops sharing the staging directory and a cancellable
// session context.
package session
