package completion

import (
	"context"
	"sync"

	"github.com/hyperjump/kotae/internal/models"
)

// MockCall is one recorded completion request.
type MockCall struct {
	System  string
	History []models.ChatMessage
	Message string
}

// MockCompleter returns a fixed reply and records every call. Safe for concurrent use.
type MockCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []MockCall
}

// NewMockCompleter returns a completer that answers "This is a mock response.".
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{reply: "This is a mock response."}
}

// SetReply changes the reply returned by later calls.
func (m *MockCompleter) SetReply(reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply = reply
}

// SetError makes later calls fail with err.
func (m *MockCompleter) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockCompleter) Complete(ctx context.Context, system, message string) (string, error) {
	return m.CompleteWithHistory(ctx, system, nil, message)
}

func (m *MockCompleter) CompleteWithHistory(ctx context.Context, system string, history []models.ChatMessage, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{System: system, History: history, Message: message})
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

// Calls returns a copy of the recorded calls.
func (m *MockCompleter) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}
