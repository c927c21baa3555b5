package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// EnvConfigPath overrides the directory the config file is read from.
const EnvConfigPath = "SMOKEHOUSE_CONFIG"

// Config is the typed view of configs/config.yml.
type Config struct {
	Port     string         `mapstructure:"port"`
	LogLevel string         `mapstructure:"log_level"`
	DB       DBConfig       `mapstructure:"db"`
	Flash    FlashConfig    `mapstructure:"flash"`
	Locks    LocksConfig    `mapstructure:"locks"`
	Sensors  SensorsConfig  `mapstructure:"sensors"`
	Process  ProcessConfig  `mapstructure:"process"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Auth     AuthConfig     `mapstructure:"auth"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Defaults DefaultsConfig `mapstructure:"defaults"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

// FlashConfig tunes the external flash bring-up.
type FlashConfig struct {
	ImageDir       string        `mapstructure:"image_dir"`
	PartitionLabel string        `mapstructure:"partition_label"`
	SizeBytes      int64         `mapstructure:"size_bytes"`
	Attempts       int           `mapstructure:"attempts"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	BusResetDelay  time.Duration `mapstructure:"bus_reset_delay"`
	FormatSettle   time.Duration `mapstructure:"format_settle"`
}

type LocksConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// SensorsConfig tunes temperature acquisition.
type SensorsConfig struct {
	RequestInterval time.Duration `mapstructure:"request_interval"`
	ConversionTime  time.Duration `mapstructure:"conversion_time"`
	ErrorThreshold  int           `mapstructure:"error_threshold"`
	MinValidC       float64       `mapstructure:"min_valid_c"`
	MaxValidC       float64       `mapstructure:"max_valid_c"`
	DefaultChamber  int           `mapstructure:"default_chamber"`
	DefaultMeat     int           `mapstructure:"default_meat"`
}

// ProcessConfig holds control-loop tuning and profile clamp limits.
type ProcessConfig struct {
	Tick             time.Duration `mapstructure:"tick"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	DoorDebounce     time.Duration `mapstructure:"door_debounce"`
	OverheatC        float64       `mapstructure:"overheat_c"`
	HysteresisC      float64       `mapstructure:"hysteresis_c"`
	MaxSteps         int           `mapstructure:"max_steps"`
	Limits           Limits        `mapstructure:"limits"`
}

// Limits bound the numeric profile fields.
type Limits struct {
	MinSetC    float64 `mapstructure:"min_set_c"`
	MaxSetC    float64 `mapstructure:"max_set_c"`
	MinMeatC   float64 `mapstructure:"min_meat_c"`
	MaxMeatC   float64 `mapstructure:"max_meat_c"`
	MinPower   int     `mapstructure:"min_power"`
	MaxPower   int     `mapstructure:"max_power"`
	MinSmoke   int     `mapstructure:"min_smoke"`
	MaxSmoke   int     `mapstructure:"max_smoke"`
	MaxFanMode int     `mapstructure:"max_fan_mode"`
}

type StorageConfig struct {
	BackupEvery int `mapstructure:"backup_every"`
	MaxBackups  int `mapstructure:"max_backups"`
	MaxLogs     int `mapstructure:"max_logs"`
}

// RemoteConfig addresses the remote profile source.
type RemoteConfig struct {
	APIURL       string        `mapstructure:"api_url"`
	BaseURL      string        `mapstructure:"base_url"`
	UserAgent    string        `mapstructure:"user_agent"`
	ListTimeout  time.Duration `mapstructure:"list_timeout"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	ListCacheTTL time.Duration `mapstructure:"list_cache_ttl"`
	RatePerSec   float64       `mapstructure:"rate_per_sec"`
	Burst        int           `mapstructure:"burst"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

// HTTPConfig tunes the operator API.
type HTTPConfig struct {
	SignInRatePerSec float64       `mapstructure:"sign_in_rate_per_sec"`
	SignInBurst      int           `mapstructure:"sign_in_burst"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultsConfig holds the compiled-in fallbacks for absent settings.
type DefaultsConfig struct {
	AuthUser    string `mapstructure:"auth_user"`
	AuthPass    string `mapstructure:"auth_pass"`
	ProfilePath string `mapstructure:"profile_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("db.path", "smokehouse.db")

	v.SetDefault("flash.image_dir", "flash")
	v.SetDefault("flash.partition_label", "extfs")
	v.SetDefault("flash.size_bytes", 16<<20)
	v.SetDefault("flash.attempts", 3)
	v.SetDefault("flash.retry_backoff", time.Second)
	v.SetDefault("flash.bus_reset_delay", 100*time.Millisecond)
	v.SetDefault("flash.format_settle", 300*time.Millisecond)

	v.SetDefault("locks.timeout", 100*time.Millisecond)

	v.SetDefault("sensors.request_interval", 2*time.Second)
	v.SetDefault("sensors.conversion_time", 750*time.Millisecond)
	v.SetDefault("sensors.error_threshold", 5)
	v.SetDefault("sensors.min_valid_c", -20.0)
	v.SetDefault("sensors.max_valid_c", 200.0)
	v.SetDefault("sensors.default_chamber", 0)
	v.SetDefault("sensors.default_meat", 1)

	v.SetDefault("process.tick", time.Second)
	v.SetDefault("process.snapshot_interval", 10*time.Second)
	v.SetDefault("process.door_debounce", 200*time.Millisecond)
	v.SetDefault("process.overheat_c", 150.0)
	v.SetDefault("process.hysteresis_c", 1.5)
	v.SetDefault("process.max_steps", 10)
	v.SetDefault("process.limits.min_set_c", 20.0)
	v.SetDefault("process.limits.max_set_c", 130.0)
	v.SetDefault("process.limits.min_meat_c", 0.0)
	v.SetDefault("process.limits.max_meat_c", 100.0)
	v.SetDefault("process.limits.min_power", 1)
	v.SetDefault("process.limits.max_power", 3)
	v.SetDefault("process.limits.min_smoke", 0)
	v.SetDefault("process.limits.max_smoke", 255)
	v.SetDefault("process.limits.max_fan_mode", 2)

	v.SetDefault("storage.backup_every", 5)
	v.SetDefault("storage.max_backups", 5)
	v.SetDefault("storage.max_logs", 10)

	v.SetDefault("remote.api_url", "https://api.github.com/repos/smokehouse/profiles/contents/profiles")
	v.SetDefault("remote.base_url", "https://raw.githubusercontent.com/smokehouse/profiles/main/profiles/")
	v.SetDefault("remote.user_agent", "smokehouse")
	v.SetDefault("remote.list_timeout", 10*time.Second)
	v.SetDefault("remote.fetch_timeout", 15*time.Second)
	v.SetDefault("remote.list_cache_ttl", time.Minute)
	v.SetDefault("remote.rate_per_sec", 1.0)
	v.SetDefault("remote.burst", 2)

	v.SetDefault("auth.signing_key", "change-me")
	v.SetDefault("auth.token_ttl", time.Hour)

	v.SetDefault("http.sign_in_rate_per_sec", 0.2)
	v.SetDefault("http.sign_in_burst", 5)
	v.SetDefault("http.shutdown_timeout", 5*time.Second)

	v.SetDefault("defaults.auth_user", "admin")
	v.SetDefault("defaults.auth_pass", "admin")
	v.SetDefault("defaults.profile_path", "/profiles/test.prof")
}

// Default returns the configuration with every key at its default value.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

// Load reads config.yml from dir (or $SMOKEHOUSE_CONFIG, or ./configs).
// A missing file is not an error; defaults apply.
func Load(dir string) (Config, error) {
	if dir == "" {
		dir = os.Getenv(EnvConfigPath)
	}
	if dir == "" {
		dir = "configs"
	}

	v := viper.New()
	setDefaults(v)
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config in %q: %w", dir, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Flash.Attempts < 1:
		return errors.New("flash.attempts must be >= 1")
	case c.Sensors.ErrorThreshold < 1:
		return errors.New("sensors.error_threshold must be >= 1")
	case c.Sensors.DefaultChamber == c.Sensors.DefaultMeat:
		return errors.New("sensors.default_chamber and sensors.default_meat must differ")
	case c.Process.MaxSteps < 1:
		return errors.New("process.max_steps must be >= 1")
	case c.Process.Tick <= 0:
		return errors.New("process.tick must be > 0")
	case c.Storage.BackupEvery < 1:
		return errors.New("storage.backup_every must be >= 1")
	}
	return nil
}
