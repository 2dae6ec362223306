package main

import "time"

// watchdogInterval is the poll cadence inside the session tick loop.
const watchdogInterval = 100 * time.Millisecond

// silenceWatchdog auto-stops a session after a tunable stretch of
// silence. It fires at most once, and never before the session has
// produced any transcript text.
type silenceWatchdog struct {
	lastSpeechAt time.Time
	lastPoll     time.Time
	fired        bool
}

func newSilenceWatchdog(start time.Time) *silenceWatchdog {
	return &silenceWatchdog{lastSpeechAt: start, lastPoll: start}
}

// Observe records speech activity. Older timestamps are ignored.
func (w *silenceWatchdog) Observe(t time.Time) {
	if t.After(w.lastSpeechAt) {
		w.lastSpeechAt = t
	}
}

// Due reports whether a poll is owed this tick.
func (w *silenceWatchdog) Due(now time.Time) bool {
	return now.Sub(w.lastPoll) >= watchdogInterval
}

// Poll returns true when the session should auto-stop. hasTranscript
// suppresses firing until at least some transcript text exists, so a
// session where the speaker never said anything keeps listening.
func (w *silenceWatchdog) Poll(now time.Time, timeout time.Duration, hasTranscript bool) bool {
	w.lastPoll = now
	if w.fired || !hasTranscript {
		return false
	}
	if now.Sub(w.lastSpeechAt) > timeout {
		w.fired = true
		return true
	}
	return false
}
