package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"smokehouse/internal/logger"
)

// ErrLockTimeout is returned when a lock cannot be taken within its timeout.
var ErrLockTimeout = errors.New("lock timeout")

// TimedMutex is a mutex whose acquisition is bounded in time.
type TimedMutex struct {
	name    string
	sem     chan struct{}
	timeout time.Duration
	log     *logger.Logger
}

// NewTimedMutex fails when the default timeout is not positive.
func NewTimedMutex(name string, timeout time.Duration, log *logger.Logger) (*TimedMutex, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("create %s lock: timeout must be > 0, got %s", name, timeout)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TimedMutex{
		name:    name,
		sem:     make(chan struct{}, 1),
		timeout: timeout,
		log:     log,
	}, nil
}

// Acquire waits up to timeout (the default one when timeout <= 0) and returns
// a release func that is safe to call more than once.
func (m *TimedMutex) Acquire(timeout time.Duration) (func(), error) {
	if timeout <= 0 {
		timeout = m.timeout
	}

	select {
	case m.sem <- struct{}{}:
	default:
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case m.sem <- struct{}{}:
		case <-t.C:
			m.log.Warnw("lock_timeout", "lock", m.name, "timeout", timeout)
			return nil, fmt.Errorf("%s: %w", m.name, ErrLockTimeout)
		}
	}

	var once sync.Once
	return func() { once.Do(func() { <-m.sem }) }, nil
}

// Name returns the lock's label.
func (m *TimedMutex) Name() string { return m.name }
