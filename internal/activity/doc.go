// Package activity tracks the current speaking state of a voice session.
// It maintains a single most-recent-wins state cell fed by asynchronous
// voice-activity events and read by the recording and sweeping loops.
package activity
