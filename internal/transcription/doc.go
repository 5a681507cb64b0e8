// Package transcription implements the HTTP client for the speech-to-text
// engine. It uploads finalized segment files as multipart form data with a
// fixed, deterministic set of decoding options and returns the recognized
// text.
package transcription
