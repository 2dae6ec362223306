package engine

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func feedTone(s Stream, durationMs int) int {
	n := 16000 * durationMs / 1000
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16((i % 200) * 50)
		pcm[2*i] = byte(v)
		pcm[2*i+1] = byte(v >> 8)
	}
	s.Feed(pcm)
	return len(pcm)
}

func newTestWhisper(url string) *Whisper {
	w := NewWhisper("test-key")
	w.apiURL = url
	return w
}

func TestWhisperBatchUpload(t *testing.T) {
	var gotAuth, gotModel, gotLang string
	var gotMagic bool
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
		} else {
			head := make([]byte, 4)
			io.ReadFull(file, head)
			gotMagic = string(head) == "fLaC"
			file.Close()
		}
		rw.Write([]byte(`{"text":" hello world "}`))
	}))
	defer srv.Close()

	w := newTestWhisper(srv.URL)
	s, err := w.Open(context.Background(), Config{SampleRate: 16000, Channels: 1, Language: "en"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	feedTone(s, 500)
	s.Stop()

	var events []Event
	for ev := range s.Events() {
		events = append(events, ev)
	}

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Text != "hello world" || !events[0].Final {
		t.Errorf("event = %+v, want final 'hello world'", events[0])
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotModel != "whisper-large-v3-turbo" {
		t.Errorf("model = %q", gotModel)
	}
	if gotLang != "en" {
		t.Errorf("language = %q", gotLang)
	}
	if !gotMagic {
		t.Error("uploaded file does not start with FLAC magic")
	}
}

func TestWhisperEmptyAudioSkipsUpload(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		called = true
		rw.Write([]byte(`{"text":""}`))
	}))
	defer srv.Close()

	w := newTestWhisper(srv.URL)
	s, err := w.Open(context.Background(), Config{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Stop()

	for range s.Events() {
		t.Error("unexpected event for empty stream")
	}
	if called {
		t.Error("upload performed with no audio")
	}
}

func TestWhisperServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	w := newTestWhisper(srv.URL)
	s, err := w.Open(context.Background(), Config{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	feedTone(s, 100)
	s.Stop()

	var got Event
	select {
	case got = <-s.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for error event")
	}
	if got.Err == nil {
		t.Fatalf("event = %+v, want error", got)
	}
	var engErr *EngineError
	if !errors.As(got.Err, &engErr) {
		t.Fatalf("error %v is not an EngineError", got.Err)
	}
	if !strings.Contains(engErr.Error(), "429") {
		t.Errorf("error %q does not mention status", engErr.Error())
	}
}

func TestWhisperAbortSkipsUpload(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	w := newTestWhisper(srv.URL)
	s, err := w.Open(context.Background(), Config{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	feedTone(s, 200)
	s.Abort()
	s.Stop() // idempotent after abort

	for range s.Events() {
		t.Error("unexpected event after abort")
	}
	if called {
		t.Error("upload performed after abort")
	}
}

func TestWhisperRejectsWrongFormat(t *testing.T) {
	w := NewWhisper("k")
	if _, err := w.Open(context.Background(), Config{SampleRate: 44100, Channels: 2}); err == nil {
		t.Error("expected error for unsupported format")
	}
}
