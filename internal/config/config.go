// Package config provides configuration loading and management for taskflow.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// Dir is the per-vault state directory.
	Dir = ".taskflow"
	// EnvPrefix prefixes environment overrides, e.g. TASKFLOW_DAY_START_HOUR.
	EnvPrefix = "TASKFLOW"
)

// DefaultPath is the config file location relative to the vault root.
var DefaultPath = filepath.Join(Dir, "config.yaml")

// Config is the root configuration.
type Config struct {
	Vault          string        `json:"vault"           mapstructure:"vault"`
	Exclude        []string      `json:"exclude"         mapstructure:"exclude"`
	DayStartHour   int           `json:"day_start_hour"  mapstructure:"day_start_hour"`
	NotifyDebounce time.Duration `json:"notify_debounce" mapstructure:"notify_debounce"`
	Watch          Watch         `json:"watch"           mapstructure:"watch"`
	Journal        Journal       `json:"journal"         mapstructure:"journal"`
	Log            Log           `json:"log"             mapstructure:"log"`
}

// Watch configures the file watcher.
type Watch struct {
	Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
	// ExternalEditsAreLocal treats every change the watcher sees as a user edit, so
	// completions made in an external editor run their commands.
	ExternalEditsAreLocal bool `json:"external_edits_are_local" mapstructure:"external_edits_are_local"`
}

// Journal configures the completion journal. An empty path disables it.
type Journal struct {
	Path      string          `json:"path"      mapstructure:"path"`
	Retention RetentionPolicy `json:"retention" mapstructure:"retention"`
}

// RetentionPolicy defines how many journal entries to keep.
type RetentionPolicy struct {
	KeepLast int `json:"keep_last,omitempty" mapstructure:"keep_last"`
	KeepDays int `json:"keep_days,omitempty" mapstructure:"keep_days"`
}

// Log configures the global logger.
type Log struct {
	Debug bool `json:"debug" mapstructure:"debug"`
	JSON  bool `json:"json"  mapstructure:"json"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("vault", ".")
	v.SetDefault("exclude", []string{})
	v.SetDefault("day_start_hour", 0)
	v.SetDefault("notify_debounce", "300ms")
	v.SetDefault("watch.debounce", "150ms")
	v.SetDefault("watch.external_edits_are_local", true)
	v.SetDefault("journal.path", filepath.Join(Dir, "journal.db"))
	v.SetDefault("journal.retention.keep_last", 1000)
	v.SetDefault("journal.retention.keep_days", 90)
	v.SetDefault("log.debug", false)
	v.SetDefault("log.json", false)
}

// Load reads the config file at path (if it exists), applies environment overrides,
// validates the merged settings and decodes them. Relative vault and journal paths are
// resolved against base.
func Load(v *viper.Viper, path, base string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// nested keys are bound explicitly so AllSettings sees environment values
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(base, path)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if err := ValidateSettings(v.AllSettings()); err != nil {
		return Config{}, err
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.Vault = resolve(base, cfg.Vault)
	if cfg.Journal.Path != "" {
		cfg.Journal.Path = resolve(cfg.Vault, cfg.Journal.Path)
	}
	return cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// DefaultYAML is the file written by `taskflow init`.
const DefaultYAML = `# taskflow configuration
exclude:
  - Templates/
  - "*.excalidraw.md"
day_start_hour: 0
notify_debounce: 300ms
watch:
  debounce: 150ms
  external_edits_are_local: true
journal:
  path: .taskflow/journal.db
  retention:
    keep_last: 1000
    keep_days: 90
log:
  debug: false
  json: false
`
