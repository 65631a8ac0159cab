package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "INKWELL"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "inkwell.db"
	defaultLogLevel     = "info"
	defaultTokenTTL     = 30

	defaultDebounceMillis     = 2000
	defaultPollMillis         = 3000
	defaultPresenceMillis     = 5000
	defaultFreshnessSeconds   = 30
	defaultSnapshotEverySaves = 10
	defaultVersionListLimit   = 50
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	DatabasePath    string
	LogLevel        string
	SigningSecret   string
	BootstrapSecret string
	TokenTTL        time.Duration
	Sync            SyncConfig
}

// SyncConfig carries the tuning knobs shared between the server and the
// edit-session synchronizer.
type SyncConfig struct {
	DebounceDelay     time.Duration
	PollInterval      time.Duration
	PresenceInterval  time.Duration
	PresenceFreshness time.Duration
	SnapshotEvery     int
	VersionListLimit  int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTL)
	configViper.SetDefault("sync.debounce_ms", defaultDebounceMillis)
	configViper.SetDefault("sync.poll_ms", defaultPollMillis)
	configViper.SetDefault("sync.presence_ms", defaultPresenceMillis)
	configViper.SetDefault("sync.presence_freshness_s", defaultFreshnessSeconds)
	configViper.SetDefault("sync.snapshot_every", defaultSnapshotEverySaves)
	configViper.SetDefault("sync.version_list_limit", defaultVersionListLimit)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabasePath:    configViper.GetString("database.path"),
		LogLevel:        configViper.GetString("log.level"),
		SigningSecret:   configViper.GetString("auth.signing_secret"),
		BootstrapSecret: configViper.GetString("auth.bootstrap_secret"),
		TokenTTL:        time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		Sync: SyncConfig{
			DebounceDelay:     time.Duration(configViper.GetInt("sync.debounce_ms")) * time.Millisecond,
			PollInterval:      time.Duration(configViper.GetInt("sync.poll_ms")) * time.Millisecond,
			PresenceInterval:  time.Duration(configViper.GetInt("sync.presence_ms")) * time.Millisecond,
			PresenceFreshness: time.Duration(configViper.GetInt("sync.presence_freshness_s")) * time.Second,
			SnapshotEvery:     configViper.GetInt("sync.snapshot_every"),
			VersionListLimit:  configViper.GetInt("sync.version_list_limit"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.BootstrapSecret) == "" {
		return fmt.Errorf("auth.bootstrap_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Sync.DebounceDelay <= 0 {
		return fmt.Errorf("sync.debounce_ms must be positive")
	}
	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("sync.poll_ms must be positive")
	}
	if c.Sync.PresenceInterval <= 0 {
		return fmt.Errorf("sync.presence_ms must be positive")
	}
	if c.Sync.PresenceFreshness <= 0 {
		return fmt.Errorf("sync.presence_freshness_s must be positive")
	}
	if c.Sync.SnapshotEvery <= 0 {
		return fmt.Errorf("sync.snapshot_every must be positive")
	}
	return nil
}
