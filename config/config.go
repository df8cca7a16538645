/*
Package config loads the bridge configuration.

SOURCES (later wins):
  1. Default(): a runnable in-memory setup
  2. YAML file, when a path is given
  3. Environment variables (the names the terminal integration has always
    used: PORT, ODOO_URL, ODOO_DB, ...)

Validation runs last; every failed rule is reported at once.
*/
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warp/attendance-bridge/validate"
)

// Store backends.
const (
	BackendOdoo   = "odoo"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// DefaultTimezone is the zone terminals' wall clocks are read in.
const DefaultTimezone = "America/Argentina/Buenos_Aires"

// Config is the whole process configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Odoo       OdooConfig       `yaml:"odoo"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	Memory     MemoryConfig     `yaml:"memory"`
	Journal    JournalConfig    `yaml:"journal"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Reaper     ReaperConfig     `yaml:"reaper"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr" validate:"required,hostname_port"`
	ReadTimeout    Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout   Duration `yaml:"write_timeout" validate:"gt=0"`
	IdleTimeout    Duration `yaml:"idle_timeout" validate:"gte=0"`
	AllowedOrigins []string `yaml:"allowed_origins" validate:"dive,required"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes" validate:"gt=0"`
}

type StoreConfig struct {
	Backend string `yaml:"backend" validate:"oneof=odoo sqlite memory"`
}

type OdooConfig struct {
	URL                string   `yaml:"url" validate:"required,url"`
	Port               int      `yaml:"port" validate:"gte=0,lte=65535"`
	DB                 string   `yaml:"db" validate:"required"`
	Username           string   `yaml:"username" validate:"required"`
	Password           string   `yaml:"password" validate:"required"`
	CommonTimeout      Duration `yaml:"common_timeout" validate:"gt=0"`
	ObjectTimeout      Duration `yaml:"object_timeout" validate:"gt=0"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"`
}

// Endpoint returns URL with Port applied when the URL carries none.
func (o OdooConfig) Endpoint() string {
	u, err := url.Parse(o.URL)
	if err != nil || o.Port == 0 || u.Port() != "" {
		return strings.TrimRight(o.URL, "/")
	}
	u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(o.Port))
	return strings.TrimRight(u.String(), "/")
}

type SQLiteConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// MemoryConfig seeds the in-memory directory, which otherwise starts empty.
type MemoryConfig struct {
	Employees []EmployeeSeed `yaml:"employees" validate:"dive"`
}

type EmployeeSeed struct {
	ID                 int64  `yaml:"id" validate:"gte=0"`
	RegistrationNumber string `yaml:"registration_number" validate:"required"`
	Name               string `yaml:"name" validate:"required"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

type AttendanceConfig struct {
	Timezone          string   `yaml:"timezone" validate:"required,timezone"`
	DirectoryCacheTTL Duration `yaml:"directory_cache_ttl" validate:"gte=0"`
}

type ReaperConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Interval       Duration `yaml:"interval" validate:"gt=0"`
	ThresholdHours int      `yaml:"threshold_hours" validate:"gte=1,lte=720"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled off"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// Default returns a configuration that runs without external services.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":3000",
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
			IdleTimeout:  Duration(120 * time.Second),
			MaxBodyBytes: 10 << 20,
		},
		Store: StoreConfig{Backend: BackendMemory},
		Odoo: OdooConfig{
			CommonTimeout: Duration(10 * time.Second),
			ObjectTimeout: Duration(15 * time.Second),
		},
		SQLite:     SQLiteConfig{Path: "./data/attendance.db"},
		Journal:    JournalConfig{Path: "./data/journal.db"},
		Attendance: AttendanceConfig{Timezone: DefaultTimezone, DirectoryCacheTTL: Duration(5 * time.Minute)},
		Reaper: ReaperConfig{
			Enabled:        true,
			Interval:       Duration(time.Hour),
			ThresholdHours: 24,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section the selected backend needs.
func (c *Config) Validate() error {
	var errs []error
	check := func(section string, v any) {
		if err := validate.Struct(v); err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", section, err))
		}
	}
	check("server", c.Server)
	check("store", c.Store)
	check("journal", c.Journal)
	check("attendance", c.Attendance)
	check("reaper", c.Reaper)
	check("log", c.Log)
	switch c.Store.Backend {
	case BackendOdoo:
		check("odoo", c.Odoo)
	case BackendSQLite:
		check("sqlite", c.SQLite)
	case BackendMemory:
		check("memory", c.Memory)
	}
	return errors.Join(errs...)
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = Duration(d)
		}
	}

	if port, ok := lookup("PORT"); ok && port != "" {
		host, _ := lookup("HOSTNAME_BIND")
		c.Server.Addr = net.JoinHostPort(host, port)
	}
	if origins, ok := lookup("ALLOWED_ORIGINS"); ok && origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}

	str("STORE_BACKEND", &c.Store.Backend)

	str("ODOO_URL", &c.Odoo.URL)
	num("ODOO_PORT", &c.Odoo.Port)
	str("ODOO_DB", &c.Odoo.DB)
	str("ODOO_USERNAME", &c.Odoo.Username)
	str("ODOO_PASSWORD", &c.Odoo.Password)
	if v, ok := lookup("ODOO_REJECT_UNAUTHORIZED"); ok && v != "" {
		reject, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: ODOO_REJECT_UNAUTHORIZED: %w", err))
		} else {
			c.Odoo.InsecureSkipVerify = !reject
		}
	}

	str("SQLITE_PATH", &c.SQLite.Path)
	if v, ok := lookup("JOURNAL_PATH"); ok && v != "" {
		c.Journal.Path = v
		c.Journal.Enabled = true
	}
	boolean("JOURNAL_ENABLED", &c.Journal.Enabled)

	str("ATTENDANCE_TIMEZONE", &c.Attendance.Timezone)
	duration("DIRECTORY_CACHE_TTL", &c.Attendance.DirectoryCacheTTL)

	boolean("REAPER_ENABLED", &c.Reaper.Enabled)
	duration("REAPER_INTERVAL", &c.Reaper.Interval)
	num("REAPER_THRESHOLD_HOURS", &c.Reaper.ThresholdHours)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// =============================================================================
// DURATION
// =============================================================================

// Duration reads "15s"-style strings from YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }
