package application

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/crmsync"
	pkgsync "github.com/agentstation/crmsync/pkg/sync"
)

// Mock provides a mock implementation of Application for testing.
// Each method can be customized by setting the corresponding function field.
// If a function field is nil, the method returns a default/zero value.
type Mock struct {
	ClientFunc       func() (crmsync.Client, error)
	SyncOptionsFunc  func() []pkgsync.Option
	SourcesFunc      func() []crmsync.Source
	LoggerFunc       func() *zerolog.Logger
	OutputFormatFunc func() string
}

var _ Application = (*Mock)(nil)

// Client returns a client using the mock function or nil.
func (m *Mock) Client() (crmsync.Client, error) {
	if m.ClientFunc != nil {
		return m.ClientFunc()
	}
	return nil, nil
}

// SyncOptions returns sync options using the mock function or none.
func (m *Mock) SyncOptions() []pkgsync.Option {
	if m.SyncOptionsFunc != nil {
		return m.SyncOptionsFunc()
	}
	return nil
}

// Sources returns sources using the mock function or none.
func (m *Mock) Sources() []crmsync.Source {
	if m.SourcesFunc != nil {
		return m.SourcesFunc()
	}
	return nil
}

// Logger returns a logger using the mock function or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns the format using the mock function or "table".
func (m *Mock) OutputFormat() string {
	if m.OutputFormatFunc != nil {
		return m.OutputFormatFunc()
	}
	return "table"
}
