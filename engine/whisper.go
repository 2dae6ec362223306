package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"medivox/encoder"
)

// Whisper is the batch fallback backend. Audio is FLAC-encoded as it
// arrives and uploaded in a single request when the stream is stopped.
type Whisper struct {
	apiKey string
	apiURL string
	model  string
	client *http.Client
}

func NewWhisper(apiKey string) *Whisper {
	return &Whisper{
		apiKey: apiKey,
		apiURL: "https://api.groq.com/openai/v1/audio/transcriptions",
		model:  "whisper-large-v3-turbo",
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (w *Whisper) Name() string { return "whisper" }

func (w *Whisper) Open(ctx context.Context, cfg Config) (Stream, error) {
	if cfg.SampleRate != encoder.SampleRate || cfg.Channels != encoder.Channels {
		return nil, fmt.Errorf("whisper backend requires %dHz mono input, got %dHz/%dch",
			encoder.SampleRate, cfg.SampleRate, cfg.Channels)
	}
	enc, err := encoder.NewFlac()
	if err != nil {
		return nil, &EngineError{Code: "encoder", Err: err}
	}
	sctx, cancel := context.WithCancel(ctx)
	return &whisperStream{
		w:      w,
		ctx:    sctx,
		cancel: cancel,
		lang:   cfg.Language,
		enc:    enc,
		events: make(chan Event, 1),
	}, nil
}

type whisperStream struct {
	w      *Whisper
	ctx    context.Context
	cancel context.CancelFunc
	lang   string

	mu       sync.Mutex
	enc      *encoder.FlacEncoder
	leftover []int16
	stopped  bool

	events     chan Event
	finishOnce sync.Once
}

func (s *whisperStream) Events() <-chan Event { return s.events }

func (s *whisperStream) Feed(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s.leftover = append(s.leftover, int16(uint16(pcm[i])|uint16(pcm[i+1])<<8))
	}
	for len(s.leftover) >= encoder.BlockSize {
		if err := s.enc.EncodeBlock(s.leftover[:encoder.BlockSize]); err != nil {
			return
		}
		s.leftover = s.leftover[encoder.BlockSize:]
	}
}

func (s *whisperStream) Stop()  { s.finish(true) }
func (s *whisperStream) Abort() { s.cancel(); s.finish(false) }

func (s *whisperStream) finish(upload bool) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		if len(s.leftover) > 0 {
			s.enc.EncodeBlock(s.leftover)
			s.leftover = nil
		}
		s.enc.Close()
		data := s.enc.Bytes()
		frames := s.enc.TotalFrames()
		s.mu.Unlock()

		go func() {
			defer close(s.events)
			defer s.cancel()
			if !upload || frames == 0 {
				return
			}
			text, err := s.w.transcribe(s.ctx, data, s.lang)
			if err != nil {
				s.events <- Event{Err: &EngineError{Code: "batch", Err: err}, ReceivedAt: time.Now()}
				return
			}
			if text != "" {
				s.events <- Event{Text: text, Final: true, ReceivedAt: time.Now()}
			}
		}()
	})
}

type whisperResponse struct {
	Text string `json:"text"`
}

func (w *Whisper) transcribe(ctx context.Context, flacData []byte, lang string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.flac")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(flacData); err != nil {
		return "", err
	}

	writer.WriteField("model", w.model)
	writer.WriteField("response_format", "json")
	if lang != "" {
		writer.WriteField("language", lang)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", w.apiURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper API error %d: %s", resp.StatusCode, buf.String())
	}

	var wResp whisperResponse
	if err := json.Unmarshal(buf.Bytes(), &wResp); err != nil {
		return "", fmt.Errorf("whisper response parse error: %w", err)
	}
	return strings.TrimSpace(wResp.Text), nil
}
