package main

import (
	"sync"
	"time"
)

// dispatchQuiet is the trailing-edge debounce window: a submission is
// dispatched once no newer submission has arrived for this long.
const dispatchQuiet = 1000 * time.Millisecond

// dispatcher debounces transcript submissions into the downstream send
// function. Only the latest pending text survives, and at most one
// send runs at a time; a submission whose quiet period expires while a
// send is in flight is dispatched right after that send returns.
type dispatcher struct {
	quiet time.Duration
	send  func(text string)

	mu       sync.Mutex
	timer    *time.Timer
	pending  string
	inFlight bool
	held     bool
}

func newDispatcher(quiet time.Duration, send func(text string)) *dispatcher {
	return &dispatcher{quiet: quiet, send: send}
}

// Submit registers text for dispatch after the quiet period, replacing
// any not-yet-dispatched submission.
func (d *dispatcher) Submit(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = text
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, d.fire)
}

// Flush dispatches any pending text immediately.
func (d *dispatcher) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.fire()
}

// Cancel drops any pending text without dispatching it.
func (d *dispatcher) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = ""
	d.held = false
}

func (d *dispatcher) fire() {
	for {
		d.mu.Lock()
		if d.inFlight {
			d.held = true
			d.mu.Unlock()
			return
		}
		text := d.pending
		if text == "" {
			d.mu.Unlock()
			return
		}
		d.pending = ""
		d.inFlight = true
		d.mu.Unlock()

		d.send(text)

		d.mu.Lock()
		d.inFlight = false
		again := d.held
		d.held = false
		d.mu.Unlock()
		if !again {
			return
		}
	}
}
