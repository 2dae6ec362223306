// Package pipeline runs transcript text through a medical-terminology
// enhancement and translation step, falling back across LLM providers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"medivox/config"
)

// ErrAllProvidersFailed is returned when every configured provider in
// the chain failed for a single request.
var ErrAllProvidersFailed = errors.New("all providers failed")

// ProviderError reports a failure from one provider in the chain.
type ProviderError struct {
	Provider string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Completer performs a single system+user chat completion.
type Completer interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}

// Pipeline tries completers in order until one succeeds.
type Pipeline struct {
	completers []Completer

	mu           sync.Mutex
	lastProvider string
}

func New(completers ...Completer) *Pipeline {
	return &Pipeline{completers: completers}
}

// NewFromConfig builds the provider chain from the settings file.
// Providers whose key environment variable is unset are skipped.
func NewFromConfig(providers []config.Provider) *Pipeline {
	client := &http.Client{Timeout: 30 * time.Second}
	var chain []Completer
	for _, p := range providers {
		key := os.Getenv(p.APIKeyEnv)
		if key == "" {
			continue
		}
		switch p.Type {
		case "claude":
			chain = append(chain, NewClaude(client, key, p.Model, p.BaseURL))
		default:
			chain = append(chain, NewOpenAI(client, key, p.Model, p.BaseURL))
		}
	}
	return New(chain...)
}

// LastProvider returns the name of the provider that served the most
// recent successful request, or "".
func (p *Pipeline) LastProvider() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastProvider
}

const systemPromptFmt = `You are a medical transcription assistant. You receive raw dictated text.
First correct medical terminology, drug names and dosages, and obvious
dictation artifacts. Then translate the corrected text from %s to %s.
Respond with the translated text only, no commentary.`

// EnhanceAndTranslate corrects medical terminology in text and
// translates it from sourceLang to targetLang. Each provider in the
// chain is tried once; the first success wins.
func (p *Pipeline) EnhanceAndTranslate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if len(p.completers) == 0 {
		return "", fmt.Errorf("no providers configured: %w", ErrAllProvidersFailed)
	}

	system := fmt.Sprintf(systemPromptFmt, sourceLang, targetLang)

	var errs []error
	for _, c := range p.completers {
		out, err := c.Complete(ctx, system, text)
		if err == nil {
			p.mu.Lock()
			p.lastProvider = c.Name()
			p.mu.Unlock()
			return strings.TrimSpace(out), nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("%w: %v", ErrAllProvidersFailed, errors.Join(errs...))
}
