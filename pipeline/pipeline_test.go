package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func openAIServer(t *testing.T, status int, reply string, hits *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			*hits++
		}
		if status != http.StatusOK {
			http.Error(w, `{"error":"nope"}`, status)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"` + reply + `"}}]}`))
	}))
}

func TestFallbackOnRateLimit(t *testing.T) {
	var firstHits, secondHits int
	limited := openAIServer(t, http.StatusTooManyRequests, "", &firstHits)
	defer limited.Close()
	ok := openAIServer(t, http.StatusOK, "hola mundo", &secondHits)
	defer ok.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	p := New(
		NewOpenAI(client, "k1", "gpt-4o-mini", limited.URL),
		NewOpenAI(client, "k2", "gpt-4o-mini", ok.URL),
	)

	out, err := p.EnhanceAndTranslate(context.Background(), "hello world", "en", "es")
	if err != nil {
		t.Fatalf("EnhanceAndTranslate: %v", err)
	}
	if out != "hola mundo" {
		t.Errorf("got %q, want 'hola mundo'", out)
	}
	if firstHits != 1 || secondHits != 1 {
		t.Errorf("hits = %d/%d, want 1/1", firstHits, secondHits)
	}
	if p.LastProvider() != "openai" {
		t.Errorf("LastProvider = %q", p.LastProvider())
	}
}

func TestAllProvidersFailed(t *testing.T) {
	down := openAIServer(t, http.StatusInternalServerError, "", nil)
	defer down.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	p := New(
		NewOpenAI(client, "k", "m", down.URL),
		NewOpenAI(client, "k", "m", down.URL),
	)

	_, err := p.EnhanceAndTranslate(context.Background(), "text", "en", "es")
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("err = %v, want ErrAllProvidersFailed", err)
	}

	var pErr *ProviderError
	if !errors.As(err, &pErr) {
		t.Fatalf("err %v does not wrap a ProviderError", err)
	}
	if pErr.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", pErr.Status)
	}
}

func TestEmptyChain(t *testing.T) {
	p := New()
	if _, err := p.EnhanceAndTranslate(context.Background(), "text", "en", "es"); !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("err = %v, want ErrAllProvidersFailed", err)
	}
}

func TestClaudeCompleter(t *testing.T) {
	var gotVersion, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotVersion = r.Header.Get("anthropic-version")
		gotKey = r.Header.Get("x-api-key")
		w.Write([]byte(`{"content":[{"type":"text","text":"bonjour"}]}`))
	}))
	defer srv.Close()

	c := NewClaude(&http.Client{Timeout: 5 * time.Second}, "sk-test", "claude-sonnet", srv.URL)
	out, err := c.Complete(context.Background(), "translate", "hello")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "bonjour" {
		t.Errorf("got %q", out)
	}
	if gotKey != "sk-test" || gotVersion == "" {
		t.Errorf("headers: key=%q version=%q", gotKey, gotVersion)
	}
}

func TestContextCancelStopsChain(t *testing.T) {
	down := openAIServer(t, http.StatusInternalServerError, "", nil)
	defer down.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	p := New(NewOpenAI(client, "k", "m", down.URL), NewOpenAI(client, "k", "m", down.URL))
	_, err := p.EnhanceAndTranslate(ctx, "text", "en", "es")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
