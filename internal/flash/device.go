package flash

import (
	"time"

	"github.com/spf13/afero"
)

// Driver is the bus and device layer for the external flash chip.
type Driver interface {
	// ResetChipSelects drives every chip-select line on the shared bus inactive.
	ResetChipSelects()
	// ReleaseBus detaches the default bus user before reconfiguration.
	ReleaseBus()
	ConfigureBus() error
	// Attach adds the flash device to the bus and initialises it.
	Attach() (Chip, error)
}

// Chip is an attached flash device. A Chip is scoped to one attempt.
type Chip interface {
	Size() (int64, error)
	JEDEC() uint32
	Register(label string, size int64) (Partition, error)
	Lookup(label string) (Partition, bool)
	Detach() error
}

// Partition is a named storage region that carries a filesystem.
type Partition interface {
	Label() string
	Mount() (afero.Fs, error)
	Format() error
	Unmount() error
}

// Watchdog is fed inside every loop that sleeps.
type Watchdog interface {
	Feed()
}

// Alarm sounds an operator-audible pattern.
type Alarm interface {
	Beep(n int, on, off time.Duration)
}
