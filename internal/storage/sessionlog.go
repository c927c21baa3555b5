package storage

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"time"

	"smokehouse/internal/flash"

	"github.com/spf13/afero"
)

const (
	sessionPrefix = "smokehouse_"
	logExt        = ".log"
	latestLog     = "latest.log"
)

// OpenSessionLog creates the per-boot log file, first deleting the oldest
// session logs so that at most MaxLogs remain afterwards.
func (s *Store) OpenSessionLog(flashSize int64) (string, error) {
	ts := s.uptime()
	p := path.Join(flash.DirLogs, sessionPrefix+strconv.FormatInt(ts, 10)+logExt)
	err := s.vol.WithFS(func(fs afero.Fs) error {
		names, err := sortedByStamp(fs, flash.DirLogs, sessionPrefix, logExt)
		if err != nil {
			return err
		}
		var sessions []string
		for _, n := range names {
			if n != latestLog {
				sessions = append(sessions, n)
			}
		}
		for len(sessions) >= s.opts.MaxLogs && len(sessions) > 0 {
			old := path.Join(flash.DirLogs, sessions[0])
			if err := fs.Remove(old); err != nil {
				s.log.Warnw("log_delete_failed", "path", old, "err", err)
			} else {
				s.log.Infow("old_log_deleted", "path", old)
			}
			sessions = sessions[1:]
		}
		header := fmt.Sprintf("=== SMOKEHOUSE LOG START ===\nstarted: %s\nflash_bytes: %d\n",
			s.now().UTC().Format(time.RFC3339), flashSize)
		return afero.WriteFile(fs, p, []byte(header), 0o644)
	})
	if err != nil {
		s.log.Errorw("log_file_create_failed", "err", err)
		return "", err
	}
	s.log.Infow("log_file_created", "path", p)
	return p, nil
}

// LogFile is a zapcore.WriteSyncer appending to /logs/latest.log. Writes
// are dropped while the volume is unmounted or busy.
type LogFile struct {
	vol Volume
}

func NewLogFile(vol Volume) *LogFile { return &LogFile{vol: vol} }

func (l *LogFile) Write(p []byte) (int, error) {
	_ = l.vol.TryWithFS(func(fs afero.Fs) error {
		f, err := fs.OpenFile(path.Join(flash.DirLogs, latestLog), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = f.Write(p)
		return err
	})
	return len(p), nil
}

func (l *LogFile) Sync() error { return nil }

// Tail returns the last n bytes of /logs/latest.log.
func (l *LogFile) Tail(n int64) ([]byte, error) {
	var out []byte
	err := l.vol.WithFS(func(fs afero.Fs) error {
		b, err := afero.ReadFile(fs, path.Join(flash.DirLogs, latestLog))
		if err != nil {
			return err
		}
		if int64(len(b)) > n {
			b = b[int64(len(b))-n:]
		}
		out = b
		return nil
	})
	return out, err
}
