// Package sweeper implements the staging-directory consumer loop. It polls
// for finalized segment files, filters out files still settling or too
// small to contain speech, transcribes the rest, emits attributed
// transcript events, and deletes every file it has examined.
package sweeper
