// Package audio provides WAV encoding and inspection for PCM-16 mono
// segment files written to the staging directory.
package audio
