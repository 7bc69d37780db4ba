// Package config loads the importer's TOML configuration.
//
// Every key is optional: a file overrides only what it defines, on top of
// Default(). Durations are Go duration strings ("500ms", "10s").
//
//	archive = "s3://exports/site.wxz"
//	budget = "10s"
//	types = ["users", "terms", "posts"]
//
//	[store]
//	driver = "sqlite"      # sqlite | memory | valkey | postgres
//	dsn = "wxzimport.db"
//	prefix = "wp_import_"
//	target = "wxzimport.db"
//
//	[lock]
//	stale_after = "5s"
//	attempts = 10
//	retry_interval = "500ms"
//
//	[claim]
//	stale_after = "30s"
//	drain_interval = "2s"
//
//	[minio]
//	endpoint = "localhost:9000"
//	access_key = "..."
//	secret_key = "..."
//	use_ssl = false
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/roach88/wxzimport/internal/archive"
	"github.com/roach88/wxzimport/internal/cursor"
	"github.com/roach88/wxzimport/internal/engine"
	"github.com/roach88/wxzimport/internal/lock"
	"github.com/roach88/wxzimport/internal/record"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
	DriverValkey   = "valkey"
	DriverPostgres = "postgres"
)

// DefaultPrefix namespaces every option key the importer writes.
const DefaultPrefix = "wp_import_"

// Config is the resolved configuration of one invocation.
type Config struct {
	// Archive is a local path or an s3://bucket/key object URI.
	Archive string
	// CacheDir receives archives fetched from object storage.
	CacheDir string

	Store  StoreConfig
	Budget time.Duration
	Types  []string
	Lock   LockConfig
	Claim  ClaimConfig
	MinIO  archive.MinIOConfig
}

// StoreConfig selects the shared option store and the record target.
type StoreConfig struct {
	Driver string
	// DSN is a file path (sqlite), host:port (valkey) or connection URL
	// (postgres). Unused for memory.
	DSN string
	// Password authenticates to valkey.
	Password string
	Prefix   string
	// Target is the SQLite database receiving imported records.
	Target string
}

// LockConfig tunes the mutual-exclusion lock.
type LockConfig struct {
	StaleAfter    time.Duration
	Attempts      int
	RetryInterval time.Duration
}

// ClaimConfig tunes the progress cursor.
type ClaimConfig struct {
	StaleAfter    time.Duration
	DrainInterval time.Duration
}

// Default returns the built-in configuration.
func Default() Config {
	types := make([]string, len(record.DefaultOrder))
	for i, t := range record.DefaultOrder {
		types[i] = string(t)
	}
	return Config{
		CacheDir: os.TempDir(),
		Store: StoreConfig{
			Driver: DriverSQLite,
			DSN:    "wxzimport.db",
			Prefix: DefaultPrefix,
			Target: "wxzimport.db",
		},
		Budget: engine.DefaultBudget,
		Types:  types,
		Lock: LockConfig{
			StaleAfter:    lock.DefaultStaleAfter,
			Attempts:      lock.DefaultAttempts,
			RetryInterval: lock.DefaultRetryInterval,
		},
		Claim: ClaimConfig{
			StaleAfter:    cursor.DefaultStaleAfter,
			DrainInterval: cursor.DefaultDrainInterval,
		},
	}
}

type fileConfig struct {
	Archive  string   `toml:"archive"`
	CacheDir string   `toml:"cache_dir"`
	Budget   string   `toml:"budget"`
	Types    []string `toml:"types"`
	Store    struct {
		Driver   string `toml:"driver"`
		DSN      string `toml:"dsn"`
		Password string `toml:"password"`
		Prefix   string `toml:"prefix"`
		Target   string `toml:"target"`
	} `toml:"store"`
	Lock struct {
		StaleAfter    string `toml:"stale_after"`
		Attempts      int    `toml:"attempts"`
		RetryInterval string `toml:"retry_interval"`
	} `toml:"lock"`
	Claim struct {
		StaleAfter    string `toml:"stale_after"`
		DrainInterval string `toml:"drain_interval"`
	} `toml:"claim"`
	MinIO struct {
		Endpoint  string `toml:"endpoint"`
		AccessKey string `toml:"access_key"`
		SecretKey string `toml:"secret_key"`
		UseSSL    bool   `toml:"use_ssl"`
	} `toml:"minio"`
}

// Load reads path over Default(). An empty path returns Default().
// The result is not validated; call Validate.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	str := func(dst *string, v string, key ...string) {
		if meta.IsDefined(key...) {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(dst *time.Duration, v string, key ...string) error {
		if !meta.IsDefined(key...) {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s: %w", strings.Join(key, "."), err)
		}
		*dst = d
		return nil
	}

	str(&cfg.Archive, raw.Archive, "archive")
	str(&cfg.CacheDir, raw.CacheDir, "cache_dir")
	if meta.IsDefined("types") {
		cfg.Types = raw.Types
	}

	str(&cfg.Store.Driver, raw.Store.Driver, "store", "driver")
	str(&cfg.Store.DSN, raw.Store.DSN, "store", "dsn")
	str(&cfg.Store.Password, raw.Store.Password, "store", "password")
	if meta.IsDefined("store", "prefix") {
		cfg.Store.Prefix = raw.Store.Prefix
	}
	str(&cfg.Store.Target, raw.Store.Target, "store", "target")

	if meta.IsDefined("lock", "attempts") {
		cfg.Lock.Attempts = raw.Lock.Attempts
	}

	str(&cfg.MinIO.Endpoint, raw.MinIO.Endpoint, "minio", "endpoint")
	str(&cfg.MinIO.AccessKey, raw.MinIO.AccessKey, "minio", "access_key")
	str(&cfg.MinIO.SecretKey, raw.MinIO.SecretKey, "minio", "secret_key")
	if meta.IsDefined("minio", "use_ssl") {
		cfg.MinIO.UseSSL = raw.MinIO.UseSSL
	}

	for _, d := range []struct {
		dst *time.Duration
		v   string
		key []string
	}{
		{&cfg.Budget, raw.Budget, []string{"budget"}},
		{&cfg.Lock.StaleAfter, raw.Lock.StaleAfter, []string{"lock", "stale_after"}},
		{&cfg.Lock.RetryInterval, raw.Lock.RetryInterval, []string{"lock", "retry_interval"}},
		{&cfg.Claim.StaleAfter, raw.Claim.StaleAfter, []string{"claim", "stale_after"}},
		{&cfg.Claim.DrainInterval, raw.Claim.DrainInterval, []string{"claim", "drain_interval"}},
	} {
		if err := dur(d.dst, d.v, d.key...); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

// Order returns the configured type order.
func (c Config) Order() ([]record.Type, error) {
	return record.ParseOrder(c.Types)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverValkey, DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver must be one of sqlite, memory, valkey, postgres; got %q", c.Store.Driver)
	}
	if c.Store.Target == "" {
		return fmt.Errorf("store.target is required")
	}

	if c.Budget < 0 {
		return fmt.Errorf("budget must not be negative")
	}
	if c.Lock.Attempts < 1 {
		return fmt.Errorf("lock.attempts must be at least 1")
	}
	for name, d := range map[string]time.Duration{
		"lock.stale_after":     c.Lock.StaleAfter,
		"lock.retry_interval":  c.Lock.RetryInterval,
		"claim.stale_after":    c.Claim.StaleAfter,
		"claim.drain_interval": c.Claim.DrainInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	order, err := c.Order()
	if err != nil {
		return fmt.Errorf("types: %w", err)
	}
	if len(order) == 0 {
		return fmt.Errorf("types must name at least one record type")
	}

	if _, remote, err := archive.ParseObjectURI(c.Archive); err != nil {
		return fmt.Errorf("archive: %w", err)
	} else if remote && c.MinIO.Endpoint == "" {
		return fmt.Errorf("minio.endpoint is required for archive %s", c.Archive)
	}
	return nil
}
