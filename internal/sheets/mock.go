package sheets

import (
	"context"
	"sync"

	"github.com/Veraticus/savings-tracker/internal/service"
)

// MockWriter is a mock implementation of service.TableWriter for testing.
type MockWriter struct {
	WriteFunc      func(ctx context.Context, header []string, rows [][]any) error
	LastHeader     []string
	LastRows       [][]any
	WriteCalls     []WriteCall
	WriteCallCount int
	mu             sync.Mutex
}

// WriteCall represents a single call to WriteTable.
type WriteCall struct {
	Error  error
	Header []string
	Rows   [][]any
}

var _ service.TableWriter = (*MockWriter)(nil)

// NewMockWriter creates a new mock writer.
func NewMockWriter() *MockWriter {
	return &MockWriter{
		WriteCalls: make([]WriteCall, 0),
	}
}

// WriteTable implements service.TableWriter.
func (m *MockWriter) WriteTable(ctx context.Context, header []string, rows [][]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteCallCount++
	m.LastHeader = header
	m.LastRows = rows

	var err error
	if m.WriteFunc != nil {
		err = m.WriteFunc(ctx, header, rows)
	}

	m.WriteCalls = append(m.WriteCalls, WriteCall{
		Header: header,
		Rows:   rows,
		Error:  err,
	})

	return err
}

// Reset clears all recorded calls.
func (m *MockWriter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteCallCount = 0
	m.WriteCalls = make([]WriteCall, 0)
	m.LastHeader = nil
	m.LastRows = nil
}

// GetWriteCalls returns a copy of all write calls.
func (m *MockWriter) GetWriteCalls() []WriteCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]WriteCall, len(m.WriteCalls))
	copy(calls, m.WriteCalls)
	return calls
}

// SetWriteError configures the mock to return err from every WriteTable call.
func (m *MockWriter) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteFunc = func(context.Context, []string, [][]any) error {
		return err
	}
}
