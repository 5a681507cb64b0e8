// Package recorder runs the adaptive segment-capture loop. It decides on a
// fixed tick when to extend, stop, or roll over a capture segment based on
// the session's voice-activity state, and finalizes each segment into the
// staging directory before starting the next one.
package recorder
