// Package engine wraps speech-to-text backends behind a stream of
// transcript events. A Stream accepts raw PCM and delivers interim and
// final transcripts, an end-of-stream notification, or an engine fault
// over a single ordered channel.
package engine

import (
	"context"
	"fmt"
	"os"
	"time"
)

type Config struct {
	SampleRate int
	Channels   int
	Language   string
}

// Event is exactly one of: a transcript (Text, possibly Final), an
// engine fault (Err), or end-of-stream (Ended). Ended is only delivered
// when the backend terminates the stream on its own; a manual Stop just
// closes the events channel.
type Event struct {
	Text       string
	Final      bool
	ReceivedAt time.Time

	Err   error
	Ended bool
}

type Engine interface {
	Name() string
	Open(ctx context.Context, cfg Config) (Stream, error)
}

type Stream interface {
	// Feed accepts raw 16-bit mono PCM. Safe to call from the capture
	// callback; data is copied before Feed returns.
	Feed(pcm []byte)
	// Events delivers transcript events in arrival order. The channel is
	// closed after Stop, Abort, or a terminal event.
	Events() <-chan Event
	// Stop flushes buffered audio, waits for remaining finals, and
	// closes the stream. Idempotent.
	Stop()
	// Abort tears the stream down without flushing. Idempotent.
	Abort()
}

// EngineError reports a fault in the transcription backend.
type EngineError struct {
	Code string
	Err  error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("transcription engine: %s: %v", e.Code, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// New picks a backend from the environment, streaming preferred.
func New() (Engine, error) {
	if key := os.Getenv("DEEPGRAM_API_KEY"); key != "" {
		return NewDeepgram(key), nil
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		return NewWhisper(key), nil
	}
	return nil, fmt.Errorf("set DEEPGRAM_API_KEY or GROQ_API_KEY environment variable")
}
