package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

const (
	streamChunkMs    = 200
	streamStopDrain  = 1 * time.Second
	streamEventDepth = 16
)

type Deepgram struct {
	apiKey string
	model  string
}

func NewDeepgram(apiKey string) *Deepgram {
	return &Deepgram{apiKey: apiKey, model: "nova-3"}
}

func (d *Deepgram) Name() string { return "deepgram" }

func (d *Deepgram) Open(ctx context.Context, cfg Config) (Stream, error) {
	endpoint, err := url.Parse("wss://api.deepgram.com/v1/listen")
	if err != nil {
		return nil, err
	}

	q := endpoint.Query()
	q.Set("model", d.model)
	q.Set("encoding", "linear16")
	q.Set("interim_results", "true")
	if cfg.SampleRate > 0 {
		q.Set("sample_rate", fmt.Sprintf("%d", cfg.SampleRate))
	}
	if cfg.Channels > 0 {
		q.Set("channels", fmt.Sprintf("%d", cfg.Channels))
	}
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	endpoint.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	streamCtx, cancel := context.WithCancel(ctx)
	conn, _, err := websocket.Dial(streamCtx, endpoint.String(), &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		cancel()
		return nil, &EngineError{Code: "connect", Err: err}
	}

	chunkBytes := cfg.SampleRate * cfg.Channels * 2 * streamChunkMs / 1000

	s := &deepgramStream{
		conn:       conn,
		ctx:        streamCtx,
		cancel:     cancel,
		chunkBytes: chunkBytes,
		audioCh:    make(chan []byte, 128),
		events:     make(chan Event, streamEventDepth),
		sendDone:   make(chan struct{}),
		recvDone:   make(chan struct{}),
	}
	go s.runSender()
	go s.runReceiver()
	return s, nil
}

type deepgramStreamResponse struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type deepgramStream struct {
	conn       *websocket.Conn
	ctx        context.Context
	cancel     context.CancelFunc
	chunkBytes int

	audioCh  chan []byte
	events   chan Event
	sendDone chan struct{}
	recvDone chan struct{}

	feedMu  sync.Mutex
	feedBuf []byte
	stopped bool

	mu      sync.Mutex
	closing bool

	stopOnce  sync.Once
	abortOnce sync.Once
}

func (s *deepgramStream) Events() <-chan Event { return s.events }

func (s *deepgramStream) Feed(pcm []byte) {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	if s.stopped {
		return
	}
	s.feedBuf = append(s.feedBuf, pcm...)
	for len(s.feedBuf) >= s.chunkBytes {
		chunk := make([]byte, s.chunkBytes)
		copy(chunk, s.feedBuf[:s.chunkBytes])
		s.feedBuf = s.feedBuf[s.chunkBytes:]
		select {
		case s.audioCh <- chunk:
		default:
			// backend is not keeping up; drop rather than stall capture
			return
		}
	}
}

func (s *deepgramStream) Stop() {
	s.stopOnce.Do(func() {
		// Mark the close as self-initiated before the server can react
		// to CloseStream, so its close frame is not reported as Ended.
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()

		s.feedMu.Lock()
		s.stopped = true
		if len(s.feedBuf) > 0 {
			tail := make([]byte, len(s.feedBuf))
			copy(tail, s.feedBuf)
			s.feedBuf = nil
			select {
			case s.audioCh <- tail:
			default:
			}
		}
		close(s.audioCh)
		s.feedMu.Unlock()

		<-s.sendDone

		// Give the server a moment to deliver finalize results.
		select {
		case <-s.recvDone:
		case <-time.After(streamStopDrain):
		}

		s.conn.Close(websocket.StatusNormalClosure, "")
		s.cancel()
		<-s.recvDone
	})
}

func (s *deepgramStream) Abort() {
	s.abortOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		s.feedMu.Lock()
		if !s.stopped {
			s.stopped = true
			close(s.audioCh)
		}
		s.feedMu.Unlock()
		s.conn.Close(websocket.StatusGoingAway, "aborted")
		s.cancel()
		<-s.sendDone
		<-s.recvDone
	})
}

func (s *deepgramStream) runSender() {
	defer close(s.sendDone)
	for chunk := range s.audioCh {
		if err := s.conn.Write(s.ctx, websocket.MessageBinary, chunk); err != nil {
			return
		}
	}
	s.conn.Write(s.ctx, websocket.MessageText, []byte(`{"type":"Finalize"}`))
	s.conn.Write(s.ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
}

func (s *deepgramStream) runReceiver() {
	defer close(s.recvDone)
	defer close(s.events)
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				s.events <- Event{Ended: true, ReceivedAt: time.Now()}
			} else {
				s.events <- Event{Err: &EngineError{Code: "stream", Err: err}, ReceivedAt: time.Now()}
			}
			return
		}

		var resp deepgramStreamResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		if resp.Type != "Results" {
			continue
		}

		transcript := ""
		if len(resp.Channel.Alternatives) > 0 {
			transcript = strings.TrimSpace(resp.Channel.Alternatives[0].Transcript)
		}
		if transcript == "" {
			continue
		}

		s.events <- Event{
			Text:       transcript,
			Final:      resp.IsFinal || resp.SpeechFinal || resp.FromFinalize,
			ReceivedAt: time.Now(),
		}
	}
}
