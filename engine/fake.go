package engine

import (
	"context"
	"sync"
)

// FakeEngine is a scriptable in-memory backend for tests.
type FakeEngine struct {
	mu      sync.Mutex
	openErr error
	last    *FakeStream
}

func NewFake() *FakeEngine { return &FakeEngine{} }

func (f *FakeEngine) Name() string { return "fake" }

// FailNextOpen makes the next Open call return err.
func (f *FakeEngine) FailNextOpen(err error) {
	f.mu.Lock()
	f.openErr = err
	f.mu.Unlock()
}

// Last returns the most recently opened stream, or nil.
func (f *FakeEngine) Last() *FakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *FakeEngine) Open(_ context.Context, _ Config) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		err := f.openErr
		f.openErr = nil
		return nil, err
	}
	s := &FakeStream{events: make(chan Event, 64)}
	f.last = s
	return s, nil
}

type FakeStream struct {
	mu       sync.Mutex
	fedBytes int
	stopped  bool
	aborted  bool
	closed   bool

	events chan Event
}

func (s *FakeStream) Events() <-chan Event { return s.events }

func (s *FakeStream) Feed(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.aborted {
		return
	}
	s.fedBytes += len(pcm)
}

// Emit injects an event as if it came from the backend. Dropped if the
// stream has already been closed.
func (s *FakeStream) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

func (s *FakeStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

func (s *FakeStream) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

func (s *FakeStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *FakeStream) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

func (s *FakeStream) FedBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fedBytes
}
