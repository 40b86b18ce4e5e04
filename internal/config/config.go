package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for kq.
type Config struct {
	Namespace   string            `toml:"namespace"`
	BaseDir     string            `toml:"base_dir"`
	LogDir      string            `toml:"log_dir"`
	SourceName  string            `toml:"source_name"`
	SharedStore StoreConfig       `toml:"shared_store"`
	AppStore    StoreConfig       `toml:"app_store"`
	HealthStore HealthStoreConfig `toml:"health_store"`
	Timeline    TimelineConfig    `toml:"timeline"`
	Goals       GoalsConfig       `toml:"goals"`
	Encryption  EncryptionConfig  `toml:"encryption"`
	Log         LogConfig         `toml:"log"`
}

// StoreConfig selects a key/value store backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type string `toml:"type"` // "memory", "filesystem", "sqlite", "s3" or "redis"

	// Filesystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// SQLite-specific fields (only used when Type == "sqlite")
	SQLitePath string `toml:"sqlite_path,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`

	// Redis-specific fields (only used when Type == "redis")
	RedisAddr     string `toml:"redis_addr,omitempty"`
	RedisPassword string `toml:"redis_password,omitempty"`
	RedisDB       int    `toml:"redis_db,omitempty"`
	RedisChannel  string `toml:"redis_channel,omitempty"`
}

// HealthStoreConfig represents configuration for the health sample store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type HealthStoreConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite

	// Unavailable simulates a device without health data support.
	Unavailable bool `toml:"unavailable"`

	// EnforceAuthorization rejects access to metrics never requested.
	EnforceAuthorization bool `toml:"enforce_authorization"`
}

// TimelineConfig holds widget refresh periods.
type TimelineConfig struct {
	SmallRefresh  Duration `toml:"small_refresh"`
	MediumRefresh Duration `toml:"medium_refresh"`
	LargeRefresh  Duration `toml:"large_refresh"`
	SyncInterval  Duration `toml:"sync_interval"`
}

// GoalsConfig holds the daily targets used when building snapshots.
type GoalsConfig struct {
	Calories int `toml:"calories"`
	Protein  int `toml:"protein"`
	Carbs    int `toml:"carbs"`
	Fats     int `toml:"fats"`
}

// EncryptionConfig holds paths to the age key pair used for health exports.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`

	// Armor writes exports as ASCII armored age files.
	Armor bool `toml:"armor"`
}

// LogConfig selects the log output format.
type LogConfig struct {
	Format string `toml:"format"` // "tsv" (default) or "json"
}

// Duration is a time.Duration written as a Go duration string ("15m").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// NewConfig creates a new Config rooted at baseDir with default stores,
// refresh periods, goals and key paths.
func NewConfig(baseDir string) *Config {
	return &Config{
		Namespace:  "group.com.kaloriq.shared",
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		SourceName: "KaloriQ",
		SharedStore: StoreConfig{
			Type:   "filesystem",
			FSRoot: filepath.Join(baseDir, "shared"),
		},
		AppStore: StoreConfig{
			Type:   "filesystem",
			FSRoot: filepath.Join(baseDir, "app"),
		},
		HealthStore: HealthStoreConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Timeline: TimelineConfig{
			SmallRefresh:  Duration{15 * time.Minute},
			MediumRefresh: Duration{10 * time.Minute},
			LargeRefresh:  Duration{15 * time.Minute},
			SyncInterval:  Duration{7 * time.Second},
		},
		Goals: GoalsConfig{Calories: 2500, Protein: 150, Carbs: 300, Fats: 80},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "kq.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "kq.key"),
		},
		Log: LogConfig{Format: "tsv"},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
