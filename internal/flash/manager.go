package flash

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"smokehouse/internal/logger"

	"github.com/spf13/afero"
)

// Standard directories on the mounted filesystem.
const (
	DirProfiles = "/profiles"
	DirLogs     = "/logs"
	DirBackup   = "/backup"
)

var standardDirs = []string{DirProfiles, DirLogs, DirBackup}

var (
	ErrNotMounted = errors.New("flash filesystem not mounted")
	ErrNoDevice   = errors.New("flash device not initialised")
	ErrBusy       = errors.New("flash manager busy")
	ErrNoSize     = errors.New("flash reported zero size")
)

// Options tune the bring-up sequence.
type Options struct {
	Label         string
	Attempts      int
	RetryBackoff  time.Duration
	BusResetDelay time.Duration
	FormatSettle  time.Duration
}

// Manager exclusively owns the flash chip handle and the mounted filesystem.
// Other components reach the filesystem only through WithFS.
type Manager struct {
	mu sync.Mutex

	driver   Driver
	opts     Options
	watchdog Watchdog
	alarm    Alarm
	log      *logger.Logger
	sleep    func(time.Duration)

	chip  Chip
	part  Partition
	fs    afero.Fs
	size  int64
	phase Phase

	ready      bool
	storageErr bool
}

func NewManager(driver Driver, opts Options, wd Watchdog, alarm Alarm, log *logger.Logger) *Manager {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Label == "" {
		opts.Label = "extfs"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		driver:   driver,
		opts:     opts,
		watchdog: wd,
		alarm:    alarm,
		log:      log,
		sleep:    time.Sleep,
	}
}

// SetSleep replaces time.Sleep, for tests.
func (m *Manager) SetSleep(fn func(time.Duration)) { m.sleep = fn }

// Initialize resets the bus and brings the chip up with bounded retries.
// On exhaustion the manager stays unmounted with the storage error set.
func (m *Manager) Initialize() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.feed()
	m.log.Infow("flash_init_start", "label", m.opts.Label)

	m.driver.ResetChipSelects()
	m.driver.ReleaseBus()
	m.sleep(m.opts.BusResetDelay)

	if err := m.driver.ConfigureBus(); err != nil {
		m.log.Errorw("flash_bus_config_failed", "err", err)
		m.failLocked()
		return false
	}

	for attempt := 1; attempt <= m.opts.Attempts; attempt++ {
		m.feed()
		err := m.runAttempt()
		if err == nil {
			m.ready = true
			m.storageErr = false
			m.ensureDirsLocked()
			m.log.Infow("flash_init_complete",
				"attempt", attempt,
				"size_mb", m.size>>20,
				"jedec", fmt.Sprintf("0x%06X", m.chip.JEDEC()),
			)
			return true
		}

		m.log.Warnw("flash_attempt_failed", "attempt", attempt, "of", m.opts.Attempts, "phase", m.phase.String(), "err", err)
		m.releaseLocked()
		if attempt < m.opts.Attempts {
			m.sleep(m.opts.RetryBackoff)
		}
	}

	m.log.Errorw("flash_init_failed", "attempts", m.opts.Attempts)
	m.failLocked()
	return false
}

// runAttempt walks the phases from a clean device handle.
func (m *Manager) runAttempt() error {
	m.phase = PhaseAttaching
	for {
		var err error
		next := m.phase
		switch m.phase {
		case PhaseAttaching:
			m.chip, err = m.driver.Attach()
			next = PhaseSizing
		case PhaseSizing:
			m.size, err = m.chip.Size()
			if err == nil && m.size <= 0 {
				err = ErrNoSize
			}
			next = PhaseRegistering
		case PhaseRegistering:
			m.part, err = m.chip.Register(m.opts.Label, m.size)
			next = PhaseMounting
		case PhaseMounting:
			m.fs, err = m.mountLocked(false)
			next = PhaseDone
		case PhaseDone:
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", m.phase, err)
		}
		m.phase = next
	}
}

// mountLocked mounts the current partition. An unforced mount that fails
// gets one in-place format and retry.
func (m *Manager) mountLocked(format bool) (afero.Fs, error) {
	if format {
		m.log.Infow("flash_formatting", "label", m.part.Label())
		if err := m.part.Format(); err != nil {
			return nil, fmt.Errorf("format: %w", err)
		}
		m.sleep(m.opts.FormatSettle)
	}

	fs, err := m.part.Mount()
	if err == nil || format {
		return fs, err
	}

	m.log.Warnw("flash_mount_failed_formatting", "err", err)
	if ferr := m.part.Format(); ferr != nil {
		return nil, fmt.Errorf("format after mount failure: %w", ferr)
	}
	m.sleep(m.opts.FormatSettle)
	return m.part.Mount()
}

// Remount is the single recovery path after an unmount. It re-registers the
// partition if its registration was lost and optionally force-formats.
func (m *Manager) Remount(format bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.chip == nil || m.size == 0 {
		return ErrNoDevice
	}
	m.unmountLocked()

	part, ok := m.chip.Lookup(m.opts.Label)
	if !ok {
		m.log.Infow("flash_reregistering_partition", "label", m.opts.Label)
		var err error
		part, err = m.chip.Register(m.opts.Label, m.size)
		if err != nil {
			return fmt.Errorf("register partition: %w", err)
		}
	}
	m.part = part

	fs, err := m.mountLocked(format)
	if err != nil {
		m.storageErr = true
		m.log.Errorw("flash_remount_failed", "format", format, "err", err)
		return fmt.Errorf("remount: %w", err)
	}
	m.fs = fs
	m.ready = true
	m.storageErr = false
	m.ensureDirsLocked()
	m.log.Infow("flash_remounted", "format", format)
	return nil
}

// Unmount detaches the filesystem but keeps the device handle for Remount.
func (m *Manager) Unmount() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unmountLocked()
}

func (m *Manager) unmountLocked() {
	if m.part != nil && m.fs != nil {
		if err := m.part.Unmount(); err != nil {
			m.log.Warnw("flash_unmount_failed", "err", err)
		}
	}
	m.fs = nil
	m.ready = false
}

// releaseLocked drops everything acquired by a failed attempt.
func (m *Manager) releaseLocked() {
	m.unmountLocked()
	if m.chip != nil {
		if err := m.chip.Detach(); err != nil {
			m.log.Warnw("flash_detach_failed", "err", err)
		}
	}
	m.chip = nil
	m.part = nil
	m.size = 0
}

func (m *Manager) failLocked() {
	m.ready = false
	m.storageErr = true
	m.phase = PhaseFailed
	if m.alarm != nil {
		m.alarm.Beep(3, 200*time.Millisecond, 200*time.Millisecond)
	}
}

func (m *Manager) ensureDirsLocked() {
	for _, dir := range standardDirs {
		if err := m.fs.MkdirAll(dir, 0o755); err != nil {
			m.log.Warnw("flash_mkdir_failed", "dir", dir, "err", err)
		}
	}
}

func (m *Manager) feed() {
	if m.watchdog != nil {
		m.watchdog.Feed()
	}
}

// WithFS runs fn with the mounted filesystem. The filesystem must not be
// retained after fn returns.
func (m *Manager) WithFS(fn func(fs afero.Fs) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return ErrNotMounted
	}
	return fn(m.fs)
}

// TryWithFS is WithFS without waiting; it fails with ErrBusy while the
// manager is in use, so it is safe to call from log sinks.
func (m *Manager) TryWithFS(fn func(fs afero.Fs) error) error {
	if !m.mu.TryLock() {
		return ErrBusy
	}
	defer m.mu.Unlock()
	if !m.ready {
		return ErrNotMounted
	}
	return fn(m.fs)
}

// Ready reports whether the filesystem is mounted.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// StorageError reports the latched storage failure flag.
func (m *Manager) StorageError() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storageErr
}

// Size returns the chip size in bytes, 0 when no chip is attached.
func (m *Manager) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// Phase returns the phase the last attempt stopped in.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Info is a diagnostic summary.
type Info struct {
	Label        string `json:"label"`
	SizeBytes    int64  `json:"size_bytes"`
	JEDEC        string `json:"jedec,omitempty"`
	Ready        bool   `json:"ready"`
	StorageError bool   `json:"storage_error"`
	Phase        string `json:"phase"`
}

func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := Info{
		Label:        m.opts.Label,
		SizeBytes:    m.size,
		Ready:        m.ready,
		StorageError: m.storageErr,
		Phase:        m.phase.String(),
	}
	if m.chip != nil {
		info.JEDEC = fmt.Sprintf("0x%06X", m.chip.JEDEC())
	}
	return info
}
