package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"smokehouse/internal/flash"
	"smokehouse/internal/logger"
	"smokehouse/internal/models"
	"smokehouse/internal/remote"

	"github.com/spf13/afero"
)

// RemotePrefix marks a profile path served by the remote source.
const RemotePrefix = "github:"

var (
	ErrEmptyProfile    = errors.New("profile has no valid steps")
	ErrProfileNotFound = errors.New("profile not found")
	ErrBadProfileName  = errors.New("invalid profile name")
)

// Volume is scoped access to the mounted flash filesystem. *flash.Manager
// satisfies it.
type Volume interface {
	WithFS(fn func(fs afero.Fs) error) error
	TryWithFS(fn func(fs afero.Fs) error) error
}

// Settings is the part of the config store profiles and backups use.
type Settings interface {
	ProfilePath(ctx context.Context) (string, error)
	SaveProfilePath(ctx context.Context, path string) error
	WiFi(ctx context.Context) (models.WiFiCredentials, error)
	SaveSSID(ctx context.Context, ssid string) error
}

// ProfileSink activates profiles. *state.Machine satisfies it.
type ProfileSink interface {
	ApplyProfile(p models.Profile) error
	SetProfileError()
}

// Remote fetches profile text from the remote source.
type Remote interface {
	List(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, name string) (string, error)
}

// Options tune retention.
type Options struct {
	BackupEvery int
	MaxBackups  int
	MaxLogs     int
}

// Store is the profile, backup and log-file layer on top of the flash volume.
type Store struct {
	vol      Volume
	settings Settings
	sink     ProfileSink
	remote   Remote
	parser   *Parser
	opts     Options
	log      *logger.Logger

	boot time.Time
	now  func() time.Time

	loads int
}

func NewStore(vol Volume, settings Settings, sink ProfileSink, remote Remote, parser *Parser, opts Options, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	if opts.BackupEvery < 1 {
		opts.BackupEvery = 1
	}
	return &Store{
		vol:      vol,
		settings: settings,
		sink:     sink,
		remote:   remote,
		parser:   parser,
		opts:     opts,
		log:      log,
		boot:     time.Now(),
		now:      time.Now,
	}
}

// SetClock replaces the boot time and clock, for tests.
func (s *Store) SetClock(boot time.Time, now func() time.Time) {
	s.boot = boot
	s.now = now
}

func (s *Store) uptime() int64 {
	return int64(s.now().Sub(s.boot) / time.Second)
}

// LoadActive loads the configured profile and hands it to the state
// machine. Any failure latches the profile error and keeps the previously
// active profile.
func (s *Store) LoadActive(ctx context.Context) (models.Profile, error) {
	p, err := s.settings.ProfilePath(ctx)
	if err != nil {
		s.log.Warnw("profile_path_read_failed", "err", err)
	}

	s.BackupConfiguration(ctx)

	var prof models.Profile
	if name, ok := strings.CutPrefix(p, RemotePrefix); ok {
		prof, err = s.loadRemote(ctx, name)
	} else {
		prof, err = s.loadLocal(p)
	}
	if err == nil && prof.Len() == 0 {
		err = ErrEmptyProfile
	}
	if err != nil {
		s.log.Errorw("profile_load_failed", "path", p, "err", err)
		s.sink.SetProfileError()
		return models.Profile{}, err
	}

	if err := s.sink.ApplyProfile(prof); err != nil {
		return models.Profile{}, fmt.Errorf("activate %s: %w", p, err)
	}
	s.log.Infow("profile_loaded", "path", p, "steps", prof.Len(), "planned", prof.TotalPlanned().String())
	return prof, nil
}

// SelectProfile persists a new profile path and activates it.
func (s *Store) SelectProfile(ctx context.Context, p string) (models.Profile, error) {
	if err := s.settings.SaveProfilePath(ctx, p); err != nil {
		return models.Profile{}, err
	}
	return s.LoadActive(ctx)
}

func (s *Store) loadRemote(ctx context.Context, name string) (models.Profile, error) {
	if s.remote == nil {
		return models.Profile{}, fmt.Errorf("remote profile %s: no remote source", name)
	}
	body, err := s.remote.Fetch(ctx, name)
	if err != nil {
		return models.Profile{}, err
	}
	return s.parser.ParseString(body, name)
}

func (s *Store) loadLocal(p string) (models.Profile, error) {
	var prof models.Profile
	err := s.vol.WithFS(func(fs afero.Fs) error {
		f, err := fs.Open(p)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%s: %w", p, ErrProfileNotFound)
			}
			return err
		}
		defer f.Close()
		prof, err = s.parser.Parse(f, path.Base(p))
		return err
	})
	return prof, err
}

// ListLocal returns the profile file names under /profiles.
func (s *Store) ListLocal(ctx context.Context) ([]string, error) {
	var names []string
	err := s.vol.WithFS(func(fs afero.Fs) error {
		entries, err := afero.ReadDir(fs, flash.DirProfiles)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.IsDir() && isProfileName(e.Name()) {
				names = append(names, e.Name())
			}
		}
		return nil
	})
	if err != nil {
		s.log.Warnw("profiles_dir_unreadable", "err", err)
		return []string{}, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// Labels returned by ListRemote in place of names when the source is down.
const (
	LabelNoNetwork  = "No network"
	LabelFetchError = "Remote API error"
)

// ListRemote returns remote profile names. On failure the list holds a
// single label describing the problem, and the error is returned as well.
func (s *Store) ListRemote(ctx context.Context) ([]string, error) {
	if s.remote == nil {
		return []string{LabelFetchError}, errors.New("no remote source configured")
	}
	names, err := s.remote.List(ctx)
	if err != nil {
		label := LabelFetchError
		if errors.Is(err, remote.ErrNoNetwork) {
			label = LabelNoNetwork
		}
		s.log.Warnw("remote_list_failed", "err", err)
		return []string{label}, err
	}
	return names, nil
}

// ProfileAsStructuredData parses a local profile without activating it.
func (s *Store) ProfileAsStructuredData(ctx context.Context, name string) ([]StepData, error) {
	if !isProfileName(name) {
		return nil, ErrBadProfileName
	}
	prof, err := s.loadLocal(path.Join(flash.DirProfiles, name))
	if err != nil {
		return nil, err
	}
	out := make([]StepData, 0, prof.Len())
	for _, st := range prof.Steps {
		out = append(out, ToData(st))
	}
	return out, nil
}

// SaveProfile writes structured steps as a local profile file.
func (s *Store) SaveProfile(ctx context.Context, name string, steps []StepData) error {
	if !isProfileName(name) {
		return ErrBadProfileName
	}
	if len(steps) == 0 {
		return ErrEmptyProfile
	}
	parsed := make([]models.Step, 0, len(steps))
	for i, d := range steps {
		st, err := s.parser.FromData(d)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		parsed = append(parsed, st)
	}
	body := FormatProfile(parsed)
	p := path.Join(flash.DirProfiles, name)
	if err := s.vol.WithFS(func(fs afero.Fs) error {
		return afero.WriteFile(fs, p, []byte(body), 0o644)
	}); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	s.log.Infow("profile_saved", "path", p, "steps", len(parsed))
	return nil
}

func isProfileName(name string) bool {
	return len(name) > len(ProfileExt) &&
		strings.HasSuffix(name, ProfileExt) &&
		!strings.ContainsAny(name, "/\\") &&
		name != ".." && !strings.HasPrefix(name, "..")
}
