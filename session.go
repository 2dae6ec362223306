package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"medivox/audio"
	"medivox/config"
	"medivox/engine"
	"medivox/log"
	"medivox/seal"
)

const tickInterval = 16 * time.Millisecond // ~60Hz sampling

type sessionState int

const (
	stateIdle sessionState = iota
	stateAcquiring
	stateListening
	stateStopping
)

func (s sessionState) String() string {
	switch s {
	case stateAcquiring:
		return "acquiring"
	case stateListening:
		return "listening"
	case stateStopping:
		return "stopping"
	default:
		return "idle"
	}
}

type stopReason string

const (
	stopUser        stopReason = "user"
	stopSilence     stopReason = "silence"
	stopEngineEnded stopReason = "engine-ended"
	stopEngineError stopReason = "engine-error"
)

// eventSink receives controller updates for display. The TUI and the
// headless logger both implement it.
type eventSink interface {
	SessionState(st sessionState)
	AudioLevel(l audioLevel)
	SpeechState(speaking bool)
	LiveTranscript(text string)
	Translation(text, provider string)
	Warning(msg string)
}

type translator interface {
	EnhanceAndTranslate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
	LastProvider() string
}

// sessionController owns the recording state machine. At most one
// session runs at a time; Start while a session is active is a no-op.
type sessionController struct {
	audioCtx   audio.Context
	eng        engine.Engine
	store      *config.Store
	trans      translator
	sealer     seal.Sealer // nil when encryption is off
	sink       eventSink
	deviceName string
	sourceLang string
	targetLang string
	copyResult func(text string) error // nil when auto-copy is off

	tickEvery time.Duration
	dispatch  *dispatcher

	mu    sync.Mutex
	state sessionState
	cur   *recordingSession
}

func newSessionController(audioCtx audio.Context, eng engine.Engine, store *config.Store, trans translator, sealer seal.Sealer, sink eventSink, cfg config.Config, deviceName string) *sessionController {
	c := &sessionController{
		audioCtx:   audioCtx,
		eng:        eng,
		store:      store,
		trans:      trans,
		sealer:     sealer,
		sink:       sink,
		deviceName: deviceName,
		sourceLang: cfg.SourceLang,
		targetLang: cfg.TargetLang,
		tickEvery:  tickInterval,
	}
	c.dispatch = newDispatcher(dispatchQuiet, c.dispatchText)
	return c
}

func (c *sessionController) State() sessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *sessionController) setState(st sessionState) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
	c.sink.SessionState(st)
}

// Start acquires the capture device and the engine stream and moves to
// Listening. Returns nil without doing anything when a session is
// already active.
func (c *sessionController) Start() error {
	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		return nil
	}
	c.state = stateAcquiring
	c.mu.Unlock()
	c.sink.SessionState(stateAcquiring)

	device, err := audio.FindDevice(c.audioCtx, c.deviceName)
	if err != nil {
		c.setState(stateIdle)
		c.sink.Warning(err.Error())
		return err
	}
	capture, err := c.audioCtx.NewCapture(device, audio.CaptureConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		err = fmt.Errorf("%w: %v", audio.ErrDeviceAccess, err)
		c.setState(stateIdle)
		c.sink.Warning(err.Error())
		return err
	}

	stream, err := c.eng.Open(context.Background(), engine.Config{
		SampleRate: 16000,
		Channels:   1,
		Language:   c.sourceLang,
	})
	if err != nil {
		capture.Close()
		c.setState(stateIdle)
		c.sink.Warning(err.Error())
		return err
	}

	now := time.Now()
	s := &recordingSession{
		id:         uuid.NewString(),
		ctl:        c,
		capture:    capture,
		stream:     stream,
		analyzer:   newSpectrumAnalyzer(),
		classifier: &speechClassifier{},
		watchdog:   newSilenceWatchdog(now),
		startedAt:  now,
		stopc:      make(chan struct{}),
		tickDone:   make(chan struct{}),
		streamDone: make(chan struct{}),
	}
	s.sampler = newLevelSampler(s.analyzer)

	capture.SetCallback(func(data []byte, _ uint32) {
		s.analyzer.Feed(data)
		stream.Feed(data)
	})
	if err := capture.Start(); err != nil {
		capture.Close()
		stream.Abort()
		err = fmt.Errorf("%w: %v", audio.ErrDeviceAccess, err)
		c.setState(stateIdle)
		c.sink.Warning(err.Error())
		return err
	}

	c.mu.Lock()
	c.cur = s
	c.state = stateListening
	c.mu.Unlock()
	c.sink.SessionState(stateListening)
	log.SessionStart(s.id, c.eng.Name(), c.sourceLang+"->"+c.targetLang)

	go s.runTicks(c.tickEvery)
	go s.consumeEvents()
	return nil
}

// Stop ends the active session at the user's request. No-op when idle.
func (c *sessionController) Stop() {
	c.mu.Lock()
	s := c.cur
	c.mu.Unlock()
	if s != nil {
		s.shutdown(stopUser)
	}
}

// Toggle starts when idle and stops when listening.
func (c *sessionController) Toggle() {
	if c.State() == stateIdle {
		if err := c.Start(); err != nil {
			log.Errorf("starting session: %v", err)
		}
		return
	}
	c.Stop()
}

func (c *sessionController) clearSession(s *recordingSession) {
	c.mu.Lock()
	if c.cur == s {
		c.cur = nil
	}
	c.state = stateIdle
	c.mu.Unlock()
	c.sink.SessionState(stateIdle)
}

// dispatchText is the debounced downstream call: seal if possible,
// then enhance and translate. Pipeline failures surface to the UI but
// never touch session or VAD state.
func (c *sessionController) dispatchText(text string) {
	start := time.Now()

	out := text
	sealed := false
	if c.sealer != nil && c.sealer.Ready() {
		env, err := c.sealer.Encrypt(text)
		if err != nil {
			log.Warnf("sealing failed, dispatching plaintext: %v", err)
			c.sink.Warning("encryption unavailable, sent plaintext")
		} else {
			out = env.Compact()
			sealed = true
		}
	}

	result, err := c.trans.EnhanceAndTranslate(context.Background(), out, c.sourceLang, c.targetLang)
	if err != nil {
		log.Errorf("pipeline dispatch: %v", err)
		c.sink.Warning(err.Error())
		return
	}

	provider := c.trans.LastProvider()
	log.Dispatch(provider, len(text), time.Since(start), sealed)
	log.TranscriptText(result)
	c.sink.Translation(result, provider)

	if c.copyResult != nil {
		if err := c.copyResult(result); err != nil {
			log.Warnf("clipboard copy failed: %v", err)
		}
	}
}

// recordingSession is the per-session bundle: capture, engine stream,
// tick loop, and accumulated transcript.
type recordingSession struct {
	id  string
	ctl *sessionController

	capture    audio.CaptureDevice
	stream     engine.Stream
	analyzer   *spectrumAnalyzer
	sampler    *levelSampler
	classifier *speechClassifier
	watchdog   *silenceWatchdog
	startedAt  time.Time

	stopc      chan struct{}
	tickDone   chan struct{}
	streamDone chan struct{}
	stopOnce   sync.Once

	tmu           sync.Mutex
	committed     []string
	live          string
	lastSubmitted string
}

// runTicks is the session heartbeat: sample, classify, then poll the
// watchdog when its interval is due. Strictly in that order.
func (s *recordingSession) runTicks(every time.Duration) {
	defer close(s.tickDone)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopc:
			return
		case <-ticker.C:
		}
		select {
		case <-s.stopc:
			return
		default:
		}

		now := time.Now()
		level := s.sampler.Sample(now)
		s.ctl.sink.AudioLevel(level)

		th := s.ctl.store.Thresholds()
		dec := s.classifier.Step(level, th, now)
		if dec.Changed {
			s.ctl.sink.SpeechState(dec.State == stateSpeaking)
		}
		s.watchdog.Observe(dec.SpeechAt)

		if s.watchdog.Due(now) && s.watchdog.Poll(now, th.SilenceTimeout, s.hasTranscript()) {
			log.Info("silence timeout reached, stopping session")
			go s.shutdown(stopSilence)
			return
		}
	}
}

// consumeEvents drains the engine stream. Interim events replace the
// live tail; final events extend the committed transcript and submit
// it for dispatch.
func (s *recordingSession) consumeEvents() {
	defer close(s.streamDone)
	for ev := range s.stream.Events() {
		switch {
		case ev.Err != nil:
			log.Errorf("engine fault: %v", ev.Err)
			s.ctl.sink.Warning(ev.Err.Error())
			go s.shutdown(stopEngineError)
		case ev.Ended:
			log.Info("engine ended the stream")
			go s.shutdown(stopEngineEnded)
		case ev.Final:
			s.tmu.Lock()
			s.committed = append(s.committed, ev.Text)
			s.live = ""
			full := strings.Join(s.committed, " ")
			s.lastSubmitted = full
			s.tmu.Unlock()
			s.ctl.sink.LiveTranscript(full)
			s.ctl.dispatch.Submit(full)
		default:
			s.tmu.Lock()
			s.live = ev.Text
			display := strings.TrimSpace(strings.Join(s.committed, " ") + " " + ev.Text)
			s.tmu.Unlock()
			s.ctl.sink.LiveTranscript(display)
		}
	}
}

func (s *recordingSession) hasTranscript() bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	return len(s.committed) > 0 || s.live != ""
}

// shutdown is the single cleanup path for every stop trigger. The
// engine-error path aborts and discards undispatched text; every other
// path flushes it.
func (s *recordingSession) shutdown(reason stopReason) {
	s.stopOnce.Do(func() {
		s.ctl.setState(stateStopping)

		close(s.stopc)
		<-s.tickDone

		s.capture.ClearCallback()
		s.capture.Stop()
		s.capture.Close()

		if reason == stopEngineError {
			s.ctl.dispatch.Cancel()
			s.stream.Abort()
			<-s.streamDone
		} else {
			s.stream.Stop()
			<-s.streamDone

			// Text that only ever arrived as interim events (or a
			// final the engine never delivered) still belongs
			// downstream. Submit it unless it already was.
			s.tmu.Lock()
			full := strings.TrimSpace(strings.Join(s.committed, " ") + " " + s.live)
			last := s.lastSubmitted
			s.tmu.Unlock()
			if full != "" && full != last {
				s.ctl.dispatch.Submit(full)
			}
			s.ctl.dispatch.Flush()
		}

		log.SessionEnd(s.id, string(reason), time.Since(s.startedAt))
		s.ctl.clearSession(s)
	})
}
