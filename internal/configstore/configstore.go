package configstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"smokehouse/internal/logger"
	"smokehouse/internal/models"
	"smokehouse/internal/repository"
)

// Namespaces and keys in the persistent key/value store.
const (
	nsSettings = "smokehouse"
	nsSensors  = "sensor_config"

	keyWiFiSSID    = "wifi_ssid"
	keyWiFiPass    = "wifi_pass"
	keyProfile     = "profile"
	keyAuthUser    = "auth_user"
	keyAuthPass    = "auth_pass"
	keyManualSet   = "manual_tset"
	keyManualPower = "manual_pow"
	keyManualSmoke = "manual_smoke"
	keyManualFan   = "manual_fan"
	keyChamberIdx  = "chamber_idx"
	keyMeatIdx     = "meat_idx"
)

// Length bounds for credential-like values.
const (
	MaxSSIDLen     = 31
	MaxWiFiPassLen = 63
	MaxAuthUserLen = 31
	MaxAuthPassLen = 63
)

var (
	ErrInvalidLength = errors.New("value length out of bounds")
)

// Defaults are returned for settings that were never stored.
type Defaults struct {
	AuthUser    string
	AuthPass    string
	ProfilePath string
	Manual      models.ManualSettings
}

// Store gives typed access to the persisted settings. The backing store
// tolerates one writer at a time, so every call is serialized here.
type Store struct {
	mu       sync.Mutex
	kv       repository.KVStore
	defaults Defaults
	log      *logger.Logger
}

func New(kv repository.KVStore, defaults Defaults, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{kv: kv, defaults: defaults, log: log}
}

func (s *Store) get(ctx context.Context, ns, key, def string) (string, error) {
	v, ok, err := s.kv.Get(ctx, ns, key)
	if err != nil {
		return def, fmt.Errorf("read %s/%s: %w", ns, key, err)
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// WiFi returns the stored station credentials, empty when unset.
func (s *Store) WiFi(ctx context.Context) (models.WiFiCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ssid, err := s.get(ctx, nsSettings, keyWiFiSSID, "")
	if err != nil {
		return models.WiFiCredentials{}, err
	}
	pass, err := s.get(ctx, nsSettings, keyWiFiPass, "")
	if err != nil {
		return models.WiFiCredentials{}, err
	}
	return models.WiFiCredentials{SSID: ssid, Password: pass}, nil
}

// SaveWiFi persists both credentials in one write.
func (s *Store) SaveWiFi(ctx context.Context, c models.WiFiCredentials) error {
	if len(c.SSID) == 0 || len(c.SSID) > MaxSSIDLen || len(c.Password) > MaxWiFiPassLen {
		return ErrInvalidLength
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.SetMany(ctx, nsSettings, map[string]string{
		keyWiFiSSID: c.SSID,
		keyWiFiPass: c.Password,
	}); err != nil {
		return fmt.Errorf("save wifi: %w", err)
	}
	s.log.Infow("wifi_saved", "ssid", c.SSID)
	return nil
}

// SaveSSID replaces only the SSID, keeping the stored password.
func (s *Store) SaveSSID(ctx context.Context, ssid string) error {
	if len(ssid) == 0 || len(ssid) > MaxSSIDLen {
		return ErrInvalidLength
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.SetMany(ctx, nsSettings, map[string]string{keyWiFiSSID: ssid}); err != nil {
		return fmt.Errorf("save ssid: %w", err)
	}
	return nil
}

// Auth returns the operator credentials, falling back to the defaults per field.
func (s *Store) Auth(ctx context.Context) (user, pass string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, err = s.get(ctx, nsSettings, keyAuthUser, s.defaults.AuthUser)
	if err != nil {
		return s.defaults.AuthUser, s.defaults.AuthPass, err
	}
	pass, err = s.get(ctx, nsSettings, keyAuthPass, s.defaults.AuthPass)
	if err != nil {
		return s.defaults.AuthUser, s.defaults.AuthPass, err
	}
	return user, pass, nil
}

func (s *Store) SaveAuth(ctx context.Context, user, pass string) error {
	if len(user) == 0 || len(user) > MaxAuthUserLen || len(pass) == 0 || len(pass) > MaxAuthPassLen {
		return ErrInvalidLength
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.SetMany(ctx, nsSettings, map[string]string{
		keyAuthUser: user,
		keyAuthPass: pass,
	}); err != nil {
		return fmt.Errorf("save auth: %w", err)
	}
	s.log.Infow("auth_saved", "user", user)
	return nil
}

// ResetAuth clears both stored credentials so the defaults apply again.
func (s *Store) ResetAuth(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, nsSettings, keyAuthUser, keyAuthPass); err != nil {
		return fmt.Errorf("reset auth: %w", err)
	}
	s.log.Infow("auth_reset")
	return nil
}

// ProfilePath returns the active profile path. A "github:" prefix denotes
// the remote source.
func (s *Store) ProfilePath(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ctx, nsSettings, keyProfile, s.defaults.ProfilePath)
}

func (s *Store) SaveProfilePath(ctx context.Context, path string) error {
	if path == "" {
		return ErrInvalidLength
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.SetMany(ctx, nsSettings, map[string]string{keyProfile: path}); err != nil {
		return fmt.Errorf("save profile path: %w", err)
	}
	return nil
}

// ManualSettings returns the manual-mode values. Each field falls back to
// its default independently, including when the stored text is unparsable.
func (s *Store) ManualSettings(ctx context.Context) (models.ManualSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.defaults.Manual
	out := d

	raw, err := s.get(ctx, nsSettings, keyManualSet, "")
	if err != nil {
		return d, err
	}
	if f, perr := strconv.ParseFloat(raw, 64); perr == nil {
		out.SetpointC = f
	}

	ints := []struct {
		key string
		dst *int
	}{
		{keyManualPower, &out.PowerMode},
		{keyManualSmoke, &out.Smoke},
		{keyManualFan, &out.FanMode},
	}
	for _, it := range ints {
		raw, err := s.get(ctx, nsSettings, it.key, "")
		if err != nil {
			return d, err
		}
		if n, perr := strconv.Atoi(raw); perr == nil {
			*it.dst = n
		}
	}
	return out, nil
}

// SaveManualSettings writes all four manual values atomically.
func (s *Store) SaveManualSettings(ctx context.Context, m models.ManualSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.SetMany(ctx, nsSettings, map[string]string{
		keyManualSet:   strconv.FormatFloat(m.SetpointC, 'f', -1, 64),
		keyManualPower: strconv.Itoa(m.PowerMode),
		keyManualSmoke: strconv.Itoa(m.Smoke),
		keyManualFan:   strconv.Itoa(m.FanMode),
	}); err != nil {
		return fmt.Errorf("save manual settings: %w", err)
	}
	return nil
}

// SensorAssignment returns the persisted role mapping and whether one exists.
func (s *Store) SensorAssignment(ctx context.Context) (models.SensorAssignment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, okCh, err := s.kv.Get(ctx, nsSensors, keyChamberIdx)
	if err != nil {
		return models.SensorAssignment{}, false, fmt.Errorf("read chamber index: %w", err)
	}
	meat, okMeat, err := s.kv.Get(ctx, nsSensors, keyMeatIdx)
	if err != nil {
		return models.SensorAssignment{}, false, fmt.Errorf("read meat index: %w", err)
	}
	if !okCh || !okMeat {
		return models.SensorAssignment{}, false, nil
	}
	chIdx, err1 := strconv.Atoi(ch)
	meatIdx, err2 := strconv.Atoi(meat)
	a := models.SensorAssignment{Chamber: chIdx, Meat: meatIdx}
	if err1 != nil || err2 != nil || !a.Valid() {
		s.log.Warnw("sensor_assignment_corrupt", "chamber", ch, "meat", meat)
		return models.SensorAssignment{}, false, nil
	}
	return a, true, nil
}

func (s *Store) SaveSensorAssignment(ctx context.Context, a models.SensorAssignment) error {
	if a.Chamber == a.Meat {
		return models.ErrSameSensor
	}
	if !a.Valid() {
		return fmt.Errorf("invalid sensor assignment %d/%d", a.Chamber, a.Meat)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.SetMany(ctx, nsSensors, map[string]string{
		keyChamberIdx: strconv.Itoa(a.Chamber),
		keyMeatIdx:    strconv.Itoa(a.Meat),
	}); err != nil {
		return fmt.Errorf("save sensor assignment: %w", err)
	}
	return nil
}
