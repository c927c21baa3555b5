package flash

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/spf13/afero"
)

// formatMarker marks a partition directory as carrying a filesystem.
const formatMarker = ".formatted"

// jedecW25Q128 is the JEDEC id reported by the emulated chip.
const jedecW25Q128 = 0xEF4018

var ErrNotFormatted = errors.New("partition has no filesystem")

// EmulatedDriver backs the external chip with a directory tree so the
// controller runs on a development host. Partitions are subdirectories
// of the backing filesystem and start unformatted.
type EmulatedDriver struct {
	backing   afero.Fs
	sizeBytes int64

	mu         sync.Mutex
	registered map[string]*emulatedPartition
}

// NewDirDriver emulates the chip under root on the host filesystem.
func NewDirDriver(root string, sizeBytes int64) *EmulatedDriver {
	return NewEmulatedDriver(afero.NewBasePathFs(afero.NewOsFs(), root), sizeBytes)
}

// NewMemDriver emulates the chip in memory.
func NewMemDriver(sizeBytes int64) *EmulatedDriver {
	return NewEmulatedDriver(afero.NewMemMapFs(), sizeBytes)
}

func NewEmulatedDriver(backing afero.Fs, sizeBytes int64) *EmulatedDriver {
	return &EmulatedDriver{backing: backing, sizeBytes: sizeBytes}
}

func (d *EmulatedDriver) ResetChipSelects() {}

func (d *EmulatedDriver) ReleaseBus() {}

func (d *EmulatedDriver) ConfigureBus() error {
	return d.backing.MkdirAll("/", 0o755)
}

func (d *EmulatedDriver) Attach() (Chip, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.registered == nil {
		d.registered = make(map[string]*emulatedPartition)
	}
	return &emulatedChip{d: d}, nil
}

type emulatedChip struct {
	d *EmulatedDriver
}

func (c *emulatedChip) Size() (int64, error) { return c.d.sizeBytes, nil }

func (c *emulatedChip) JEDEC() uint32 { return jedecW25Q128 }

func (c *emulatedChip) Register(label string, size int64) (Partition, error) {
	if label == "" {
		return nil, errors.New("empty partition label")
	}
	if size > c.d.sizeBytes {
		return nil, fmt.Errorf("partition %q size %d exceeds chip size %d", label, size, c.d.sizeBytes)
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	p := &emulatedPartition{backing: c.d.backing, label: label}
	c.d.registered[label] = p
	return p, nil
}

func (c *emulatedChip) Lookup(label string) (Partition, bool) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	p, ok := c.d.registered[label]
	return p, ok
}

// Detach drops partition registrations, like removing the device from the bus.
func (c *emulatedChip) Detach() error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.registered = make(map[string]*emulatedPartition)
	return nil
}

type emulatedPartition struct {
	backing afero.Fs
	label   string
}

func (p *emulatedPartition) Label() string { return p.label }

func (p *emulatedPartition) root() string { return "/" + p.label }

func (p *emulatedPartition) Mount() (afero.Fs, error) {
	if _, err := p.backing.Stat(path.Join(p.root(), formatMarker)); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFormatted
		}
		return nil, err
	}
	return afero.NewBasePathFs(p.backing, p.root()), nil
}

func (p *emulatedPartition) Format() error {
	if err := p.backing.RemoveAll(p.root()); err != nil {
		return err
	}
	if err := p.backing.MkdirAll(p.root(), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(p.backing, path.Join(p.root(), formatMarker), nil, 0o644)
}

func (p *emulatedPartition) Unmount() error { return nil }
