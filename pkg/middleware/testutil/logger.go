// Package testutil holds test doubles shared by the middleware tests.
package testutil

import (
	"context"
	"sync"

	"github.com/nimburion/listquery/pkg/middleware"
	"github.com/nimburion/listquery/pkg/observability/logger"
)

// MockLogger captures entries for assertions. Loggers derived with With or
// WithContext append to the same entry list and carry their extra fields.
type MockLogger struct {
	sink *sink
	base map[string]interface{}
}

// LogEntry is one captured entry.
type LogEntry struct {
	Level  string
	Msg    string
	Fields map[string]interface{}
}

type sink struct {
	mu   sync.Mutex
	logs []LogEntry
}

// NewMockLogger creates an empty MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{sink: &sink{}}
}

// Logs returns a copy of the captured entries.
func (m *MockLogger) Logs() []LogEntry {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	return append([]LogEntry(nil), m.sink.logs...)
}

func (m *MockLogger) Debug(msg string, args ...any) { m.record("debug", msg, args) }
func (m *MockLogger) Info(msg string, args ...any)  { m.record("info", msg, args) }
func (m *MockLogger) Warn(msg string, args ...any)  { m.record("warn", msg, args) }
func (m *MockLogger) Error(msg string, args ...any) { m.record("error", msg, args) }

func (m *MockLogger) With(args ...any) logger.Logger {
	return m.derive(argsToMap(args))
}

// WithContext mirrors the zap logger: it adds request_id when present.
func (m *MockLogger) WithContext(ctx context.Context) logger.Logger {
	if ctx == nil {
		return m
	}
	if id, ok := ctx.Value(middleware.RequestIDKey).(string); ok && id != "" {
		return m.derive(map[string]interface{}{"request_id": id})
	}
	return m
}

func (m *MockLogger) derive(extra map[string]interface{}) *MockLogger {
	base := make(map[string]interface{}, len(m.base)+len(extra))
	for k, v := range m.base {
		base[k] = v
	}
	for k, v := range extra {
		base[k] = v
	}
	return &MockLogger{sink: m.sink, base: base}
}

func (m *MockLogger) record(level, msg string, args []any) {
	fields := argsToMap(args)
	for k, v := range m.base {
		fields[k] = v
	}
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	m.sink.logs = append(m.sink.logs, LogEntry{Level: level, Msg: msg, Fields: fields})
}

func argsToMap(args []any) map[string]interface{} {
	fields := make(map[string]interface{})
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			fields[key] = args[i+1]
		}
	}
	return fields
}
