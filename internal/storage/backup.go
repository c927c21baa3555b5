package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"smokehouse/internal/flash"
	"smokehouse/internal/models"

	"github.com/spf13/afero"
)

const (
	backupPrefix = "config_"
	backupExt    = ".bak"
)

// BackupConfiguration writes a snapshot on every Nth call. Failures are
// logged and otherwise ignored.
func (s *Store) BackupConfiguration(ctx context.Context) {
	s.loads++
	if s.loads%s.opts.BackupEvery != 0 {
		return
	}
	if _, err := s.WriteBackup(ctx); err != nil {
		s.log.Warnw("backup_failed", "err", err)
	}
}

// WriteBackup writes a snapshot now and evicts the oldest ones beyond the
// retention limit. It returns the written path.
func (s *Store) WriteBackup(ctx context.Context) (string, error) {
	profilePath, err := s.settings.ProfilePath(ctx)
	if err != nil {
		return "", fmt.Errorf("read profile path: %w", err)
	}
	wifi, err := s.settings.WiFi(ctx)
	if err != nil {
		return "", fmt.Errorf("read wifi: %w", err)
	}
	// wall clock, so stamps keep increasing across reboots
	ts := s.now().Unix()
	rec := models.BackupRecord{ProfilePath: profilePath, WiFiSSID: wifi.SSID, Timestamp: ts}
	body, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}

	p := path.Join(flash.DirBackup, backupPrefix+strconv.FormatInt(ts, 10)+backupExt)
	err = s.vol.WithFS(func(fs afero.Fs) error {
		if err := afero.WriteFile(fs, p, body, 0o644); err != nil {
			return err
		}
		return s.cleanupBackups(fs)
	})
	if err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	s.log.Infow("backup_written", "path", p)
	return p, nil
}

// CleanupOldBackups evicts the oldest snapshots beyond the retention limit.
func (s *Store) CleanupOldBackups(ctx context.Context) error {
	return s.vol.WithFS(s.cleanupBackups)
}

func (s *Store) cleanupBackups(fs afero.Fs) error {
	names, err := sortedByStamp(fs, flash.DirBackup, backupPrefix, backupExt)
	if err != nil {
		return err
	}
	for len(names) > s.opts.MaxBackups {
		p := path.Join(flash.DirBackup, names[0])
		if err := fs.Remove(p); err != nil {
			s.log.Warnw("backup_delete_failed", "path", p, "err", err)
		} else {
			s.log.Infow("backup_deleted", "path", p)
		}
		names = names[1:]
	}
	return nil
}

// ListBackups returns snapshot names, oldest first.
func (s *Store) ListBackups(ctx context.Context) ([]string, error) {
	var names []string
	err := s.vol.WithFS(func(fs afero.Fs) error {
		var err error
		names, err = sortedByStamp(fs, flash.DirBackup, backupPrefix, backupExt)
		return err
	})
	if names == nil {
		names = []string{}
	}
	return names, err
}

// RestoreBackup re-applies a snapshot through the config store. name may be
// a bare file name or a path under /backup. The SSID is only restored when
// the snapshot carries one; the stored password is kept.
func (s *Store) RestoreBackup(ctx context.Context, name string) (models.BackupRecord, error) {
	base := path.Base(name)
	if !strings.HasSuffix(base, backupExt) || strings.HasPrefix(base, ".") {
		return models.BackupRecord{}, fmt.Errorf("invalid backup name %q", name)
	}
	p := path.Join(flash.DirBackup, base)

	var rec models.BackupRecord
	err := s.vol.WithFS(func(fs afero.Fs) error {
		b, err := afero.ReadFile(fs, p)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, &rec)
	})
	if err != nil {
		return models.BackupRecord{}, fmt.Errorf("read backup %s: %w", p, err)
	}

	if rec.ProfilePath != "" {
		if err := s.settings.SaveProfilePath(ctx, rec.ProfilePath); err != nil {
			return rec, err
		}
	}
	if rec.WiFiSSID != "" {
		if err := s.settings.SaveSSID(ctx, rec.WiFiSSID); err != nil {
			return rec, err
		}
	}
	s.log.Infow("backup_restored", "path", p, "profile", rec.ProfilePath)
	return rec, nil
}

// stamp extracts the numeric timestamp of prefix<n>ext. Names without one
// sort as oldest.
func stamp(name, prefix, ext string) int64 {
	raw := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ext)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || !strings.HasPrefix(name, prefix) {
		return -1
	}
	return n
}

// sortedByStamp lists the files in dir ending in ext, ordered by their
// numeric timestamp rather than lexically.
func sortedByStamp(fs afero.Fs, dir, prefix, ext string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && len(e.Name()) > len(ext) && strings.HasSuffix(e.Name(), ext) {
			names = append(names, e.Name())
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		si, sj := stamp(names[i], prefix, ext), stamp(names[j], prefix, ext)
		if si != sj {
			return si < sj
		}
		return names[i] < names[j]
	})
	return names, nil
}
