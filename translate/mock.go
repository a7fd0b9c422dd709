package translate

import (
	"context"
	"sync"
)

// MockBackend is an in-memory Backend for tests and dry wiring. Unscripted
// texts echo back tagged with the target locale, so output stays
// deterministic and traceable.
type MockBackend struct {
	mu       sync.Mutex
	replies  map[string]string
	failures map[string]error
	calls    int
	releases int
	closed   bool
}

// NewMockBackend returns a mock whose scripted replies map source text to
// translation. A nil map is allowed; every text then gets the echo form
// "[tgt] text".
func NewMockBackend(replies map[string]string) *MockBackend {
	return &MockBackend{
		replies:  replies,
		failures: make(map[string]error),
	}
}

// FailWith makes every translation of text fail with err.
func (m *MockBackend) FailWith(text string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[text] = err
}

func (m *MockBackend) Translate(ctx context.Context, text, srcLocale, tgtLocale string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err, ok := m.failures[text]; ok {
		return "", err
	}
	if reply, ok := m.replies[text]; ok {
		return reply, nil
	}
	return "[" + tgtLocale + "] " + text, nil
}

func (m *MockBackend) Release(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
	return nil
}

func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls reports how many Translate calls the mock served.
func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Releases reports how many Release calls the mock served.
func (m *MockBackend) Releases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releases
}

// Closed reports whether Close was called.
func (m *MockBackend) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var (
	_ Backend  = (*MockBackend)(nil)
	_ Releaser = (*MockBackend)(nil)
)
