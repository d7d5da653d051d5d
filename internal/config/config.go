package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EngineConfig describes the external encryption engine
type EngineConfig struct {
	Path       string        `mapstructure:"path"`        // Engine executable
	Args       []string      `mapstructure:"args"`        // Leading arguments placed before the command
	WorkDir    string        `mapstructure:"work_dir"`    // Working directory of the child (default: storage.base_dir)
	KeyEnv     string        `mapstructure:"key_env"`     // Environment variable carrying the key
	DefaultKey string        `mapstructure:"default_key"` // Key in effect until one is set through the API
	Env        []string      `mapstructure:"env"`         // Extra KEY=VALUE entries for the child
	Timeout    time.Duration `mapstructure:"timeout"`     // Upper bound per invocation, 0 disables it
}

// RootConfig declares one storage root below storage.base_dir
type RootConfig struct {
	Name     string `mapstructure:"name"`
	Writable bool   `mapstructure:"writable"`
}

// StorageConfig holds the file registry layout
type StorageConfig struct {
	BaseDir       string       `mapstructure:"base_dir"`
	Roots         []RootConfig `mapstructure:"roots"`           // Scanned in declaration order
	UploadRoot    string       `mapstructure:"upload_root"`     // Root receiving uploads, must be writable
	MaxUploadSize int64        `mapstructure:"max_upload_size"` // Bytes
}

// AuthConfig holds the optional API token check
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Secret  string `mapstructure:"secret"` // HS256 signing secret
	Issuer  string `mapstructure:"issuer"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`      // Enable/disable monitoring
	BindAddress string `mapstructure:"bind_address"` // Address to bind monitoring server (default: :9090)
	MetricsPath string `mapstructure:"metrics_path"` // Path for metrics endpoint (default: /metrics)
}

// MirrorConfig holds the optional S3 replication of uploads
type MirrorConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"` // Empty uses the AWS default resolver
	AccessKeyID  string `mapstructure:"access_key_id"`
	SecretKey    string `mapstructure:"secret_key"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// Config holds the application configuration
type Config struct {
	// Server configuration
	BindAddress       string `mapstructure:"bind_address"`
	LogLevel          string `mapstructure:"log_level"`
	LogFormat         string `mapstructure:"log_format"` // "text" (default) or "json"
	LogHealthRequests bool   `mapstructure:"log_health_requests"`
	ShutdownTimeout   int    `mapstructure:"shutdown_timeout"` // Graceful shutdown timeout in seconds

	Engine     EngineConfig     `mapstructure:"engine"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Mirror     MirrorConfig     `mapstructure:"mirror"`
}

// InitConfig initializes the configuration system
func InitConfig(cfgFile string) {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		// Search config in home directory with name ".file-encryptor" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".file-encryptor")
	}

	bindEnv()
	setDefaults()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// bindEnv maps ENCRYPTOR_ENGINE_PATH style variables onto nested keys
func bindEnv() {
	viper.SetEnvPrefix("ENCRYPTOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Load loads the configuration from viper
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("bind_address", "127.0.0.1:3001")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("log_health_requests", false)
	viper.SetDefault("shutdown_timeout", 30)

	// Engine defaults
	viper.SetDefault("engine.path", "build/encrypt_decrypt")
	viper.SetDefault("engine.args", []string{})
	viper.SetDefault("engine.work_dir", "")
	viper.SetDefault("engine.key_env", "ENCRYPTION_KEY")
	viper.SetDefault("engine.default_key", "5")
	viper.SetDefault("engine.env", []string{})
	viper.SetDefault("engine.timeout", 5*time.Minute)

	// Storage defaults
	viper.SetDefault("storage.base_dir", ".")
	viper.SetDefault("storage.roots", []map[string]interface{}{
		{"name": "test", "writable": false},
		{"name": "uploads", "writable": true},
	})
	viper.SetDefault("storage.upload_root", "uploads")
	viper.SetDefault("storage.max_upload_size", int64(100*1024*1024))

	// Auth defaults
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.secret", "")
	viper.SetDefault("auth.issuer", "file-encryptor")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", false)
	viper.SetDefault("monitoring.bind_address", ":9090")
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Mirror defaults
	viper.SetDefault("mirror.enabled", false)
	viper.SetDefault("mirror.bucket", "")
	viper.SetDefault("mirror.prefix", "uploads/")
	viper.SetDefault("mirror.region", "us-east-1")
	viper.SetDefault("mirror.endpoint", "")
	viper.SetDefault("mirror.access_key_id", "")
	viper.SetDefault("mirror.secret_key", "")
	viper.SetDefault("mirror.use_path_style", true)
}

func validate(cfg *Config) error {
	if cfg.BindAddress == "" {
		return fmt.Errorf("bind_address is required")
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", cfg.LogLevel, err)
	}

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("log_format must be 'text' or 'json', got %q", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must not be negative")
	}

	if err := validateEngine(&cfg.Engine); err != nil {
		return err
	}

	if err := validateStorage(&cfg.Storage); err != nil {
		return err
	}

	if cfg.Auth.Enabled {
		if cfg.Auth.Secret == "" {
			return fmt.Errorf("auth.secret is required when auth is enabled")
		}
		if cfg.Auth.Issuer == "" {
			return fmt.Errorf("auth.issuer is required when auth is enabled")
		}
	}

	if cfg.Monitoring.Enabled {
		if cfg.Monitoring.BindAddress == "" {
			return fmt.Errorf("monitoring.bind_address is required when monitoring is enabled")
		}
		if !strings.HasPrefix(cfg.Monitoring.MetricsPath, "/") {
			return fmt.Errorf("monitoring.metrics_path must start with '/'")
		}
	}

	if cfg.Mirror.Enabled {
		if cfg.Mirror.Bucket == "" {
			return fmt.Errorf("mirror.bucket is required when the mirror is enabled")
		}
		if cfg.Mirror.Region == "" {
			return fmt.Errorf("mirror.region is required when the mirror is enabled")
		}
		if (cfg.Mirror.AccessKeyID == "") != (cfg.Mirror.SecretKey == "") {
			return fmt.Errorf("mirror.access_key_id and mirror.secret_key must be set together")
		}
	}

	return nil
}

func validateEngine(engine *EngineConfig) error {
	if engine.Path == "" {
		return fmt.Errorf("engine.path is required")
	}
	if engine.DefaultKey == "" {
		return fmt.Errorf("engine.default_key must not be empty")
	}
	if engine.KeyEnv == "" || strings.ContainsAny(engine.KeyEnv, "= ") {
		return fmt.Errorf("engine.key_env must be a valid environment variable name, got %q", engine.KeyEnv)
	}
	if engine.Timeout < 0 {
		return fmt.Errorf("engine.timeout must not be negative")
	}
	for i, kv := range engine.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("engine.env[%d] must be KEY=VALUE, got %q", i, kv)
		}
	}
	return nil
}

func validateStorage(storage *StorageConfig) error {
	if len(storage.Roots) == 0 {
		return fmt.Errorf("storage.roots must declare at least one root")
	}

	seen := make(map[string]bool, len(storage.Roots))
	uploadWritable := false
	for i, root := range storage.Roots {
		if !isSingleComponent(root.Name) {
			return fmt.Errorf("storage.roots[%d].name must be a single path component, got %q", i, root.Name)
		}
		if seen[root.Name] {
			return fmt.Errorf("storage.roots[%d].name %q is declared twice", i, root.Name)
		}
		seen[root.Name] = true

		if root.Name == storage.UploadRoot && root.Writable {
			uploadWritable = true
		}
	}

	if !uploadWritable {
		return fmt.Errorf("storage.upload_root %q must name a writable root", storage.UploadRoot)
	}

	if storage.MaxUploadSize <= 0 {
		return fmt.Errorf("storage.max_upload_size must be positive")
	}

	return nil
}

func isSingleComponent(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// EngineWorkDir is the directory the engine runs in. Relative file paths
// handed to the engine resolve against it.
func (cfg *Config) EngineWorkDir() string {
	if cfg.Engine.WorkDir != "" {
		return cfg.Engine.WorkDir
	}
	return cfg.Storage.BaseDir
}

// RootDir returns the on-disk directory of a declared root
func (s *StorageConfig) RootDir(name string) string {
	return filepath.Join(s.BaseDir, name)
}
