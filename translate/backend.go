package translate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Backend interface
// ---------------------------------------------------------------------------

// Backend is the model handle behind per-unit translation. It is opened once
// per process invocation, shared across all documents and targets, and
// closed at process end.
type Backend interface {
	// Translate renders text from the source locale into the target locale.
	// Locales are NLLB-200 tags (eng_Latn, zho_Hans, ...).
	Translate(ctx context.Context, text, srcLocale, tgtLocale string) (string, error)
	// Close releases the backend's resources.
	Close() error
}

// Releaser is an optional Backend extension. The engine calls Release after
// every batch of model calls so the serving side can drop accelerator
// memory; failures are advisory and never abort a run.
type Releaser interface {
	Release(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// Provider IDs
// ---------------------------------------------------------------------------

const (
	ProviderNLLB   = "nllb"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// ---------------------------------------------------------------------------
// Provider configuration
// ---------------------------------------------------------------------------

// Provider describes a translation backend configuration.
type Provider struct {
	// ID is the backend identifier (nllb, openai, mock).
	ID string
	// Name is the display name.
	Name string
	// BaseURL is the API base URL.
	BaseURL string
	// APIKey is the authentication key (empty for local services).
	APIKey string
	// Model is the model identifier.
	Model string
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Timeout is the per-request timeout.
	Timeout time.Duration
	// MaxRetries bounds retry attempts per request.
	MaxRetries int
	// Verbose enables request-level debug logging.
	Verbose bool
}

// DefaultProviders returns the pre-configured provider definitions.
func DefaultProviders() map[string]Provider {
	return map[string]Provider{
		ProviderNLLB: {
			ID:      ProviderNLLB,
			Name:    "NLLB-200 (local serving)",
			BaseURL: "http://localhost:8000",
			Model:   "facebook/nllb-200-3.3B",
			Timeout: 120 * time.Second,
		},
		ProviderOpenAI: {
			ID:      ProviderOpenAI,
			Name:    "OpenAI",
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		ProviderMock: {
			ID:      ProviderMock,
			Name:    "Mock (testing)",
			Timeout: time.Second,
		},
	}
}

func (p Provider) effectiveTimeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return 120 * time.Second
}

func (p Provider) effectiveMaxRetries() int {
	if p.MaxRetries > 0 {
		return p.MaxRetries
	}
	return 3
}

// OpenBackend constructs the backend for a provider configuration. An empty
// ID selects the default NLLB backend.
func OpenBackend(prov Provider) (Backend, error) {
	switch prov.ID {
	case ProviderNLLB, "":
		return newNLLBBackend(prov), nil
	case ProviderOpenAI:
		return newOpenAIBackend(prov)
	case ProviderMock:
		return NewMockBackend(nil), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (valid: mock, nllb, openai)", prov.ID)
	}
}

// ---------------------------------------------------------------------------
// Rate limit coordination
// ---------------------------------------------------------------------------

// rateLimitState coordinates a global pause across workers sharing one
// backend when the serving side reports 429.
type rateLimitState struct {
	mu       sync.Mutex
	paused   int32 // atomic
	pauseEnd time.Time
}

func (r *rateLimitState) isPaused() bool {
	return atomic.LoadInt32(&r.paused) == 1
}

func (r *rateLimitState) pause(duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	atomic.StoreInt32(&r.paused, 1)
	r.pauseEnd = time.Now().Add(duration)
}

func (r *rateLimitState) unpause() {
	atomic.StoreInt32(&r.paused, 0)
}

// waitIfPaused blocks until the global pause expires or ctx is cancelled.
func (r *rateLimitState) waitIfPaused(ctx context.Context) error {
	for r.isPaused() {
		r.mu.Lock()
		remaining := time.Until(r.pauseEnd)
		r.mu.Unlock()

		if remaining <= 0 {
			r.unpause()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(min(remaining, 100*time.Millisecond)):
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// HTTP client construction
// ---------------------------------------------------------------------------

// makeHTTPClient builds an HTTP client honoring an optional proxy URL and
// falling back to the standard environment proxy variables.
func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
