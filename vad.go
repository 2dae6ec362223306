package main

import (
	"time"

	"medivox/config"
)

// speechHang is how long the classifier stays in Speaking after the
// last loud tick before flipping back to Silent.
const speechHang = 300 * time.Millisecond

type speechState int

const (
	stateSilent speechState = iota
	stateSpeaking
)

func (s speechState) String() string {
	if s == stateSpeaking {
		return "speaking"
	}
	return "silent"
}

type vadDecision struct {
	State    speechState
	Changed  bool
	SpeechAt time.Time // most recent loud tick, zero if none yet
}

// speechClassifier is a pure step function over per-tick levels. A tick
// is loud when the average exceeds the threshold or the peak exceeds
// twice the threshold. Silent to Speaking flips immediately on a loud
// tick; Speaking to Silent only after speechHang with no loud tick.
type speechClassifier struct {
	state      speechState
	lastSpeech time.Time
}

func (c *speechClassifier) Step(level audioLevel, th config.Thresholds, now time.Time) vadDecision {
	loud := level.Average > th.AudioThreshold || level.Peak > 2*th.AudioThreshold

	changed := false
	if loud {
		c.lastSpeech = now
		if c.state == stateSilent {
			c.state = stateSpeaking
			changed = true
		}
	} else if c.state == stateSpeaking && now.Sub(c.lastSpeech) > speechHang {
		c.state = stateSilent
		changed = true
	}

	return vadDecision{State: c.state, Changed: changed, SpeechAt: c.lastSpeech}
}
