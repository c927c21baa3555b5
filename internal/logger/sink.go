package logger

import (
	"sync"

	"go.uber.org/zap/zapcore"
)

// Sink is a late-bound secondary log destination. Writes are dropped until
// a target is attached, and again after it is detached.
type Sink struct {
	mu     sync.Mutex
	target zapcore.WriteSyncer
}

var _ zapcore.WriteSyncer = (*Sink)(nil)

// NewSink returns a sink with no target.
func NewSink() *Sink { return &Sink{} }

// Attach sets (or, with nil, clears) the destination.
func (s *Sink) Attach(ws zapcore.WriteSyncer) {
	s.mu.Lock()
	s.target = ws
	s.mu.Unlock()
}

func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target == nil {
		return len(p), nil
	}
	// a failing secondary sink must not break console logging
	_, _ = s.target.Write(p)
	return len(p), nil
}

func (s *Sink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target == nil {
		return nil
	}
	return s.target.Sync()
}
