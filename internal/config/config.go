package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Version information - set by GoReleaser during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// GetVersionInfo returns a formatted version string
func GetVersionInfo() string {
	return fmt.Sprintf("endo version %s, commit %s, built at %s", version, commit, date)
}

type Config struct {
	API           APIConfig           `mapstructure:"api" yaml:"api"`
	Logging       LoggingConfig       `mapstructure:"logging" yaml:"logging"`
	Storage       StorageConfig       `mapstructure:"storage" yaml:"storage"`
	Dexcom        DexcomConfig        `mapstructure:"dexcom" yaml:"dexcom"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
}

// APIConfig describes how to reach the Endo backend.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// LogoutTimeout bounds the best-effort server logout call; local
	// cleanup happens regardless of its outcome.
	LogoutTimeout time.Duration `mapstructure:"logout_timeout" yaml:"logout_timeout"`
}

type LoggingConfig struct {
	Level             string `mapstructure:"level" yaml:"level"`
	Format            string `mapstructure:"format" yaml:"format"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace" yaml:"disable_stacktrace"`
	OutputPath        string `mapstructure:"output_path" yaml:"output_path"`
	AppendToFile      bool   `mapstructure:"append_to_file" yaml:"append_to_file"`
	DisableConsole    bool   `mapstructure:"disable_console" yaml:"disable_console"`
}

// StorageConfig locates the local state database holding the session pair
// and any pending OAuth authorization state.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type DexcomConfig struct {
	// CallbackAddr is the loopback address the OAuth redirect returns to.
	CallbackAddr string `mapstructure:"callback_addr" yaml:"callback_addr"`
}

type NotificationsConfig struct {
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:       "http://localhost:8000",
			Timeout:       30 * time.Second,
			LogoutTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			Path: defaultStoragePath(),
		},
		Dexcom: DexcomConfig{
			CallbackAddr: "127.0.0.1:8913",
		},
		Notifications: NotificationsConfig{
			TTL: 3 * time.Second,
		},
	}
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "endo.db"
	}
	return filepath.Join(home, ".config", "endo", "endo.db")
}

// InitFlags initializes command line flags (without parsing)
func InitFlags() {
	pflag.String("api.base_url", "", "Base URL of the Endo API")
	pflag.String("storage.path", "", "Path to the local state database")
	// Note: no pflag.Parse() here as it's called in main.go
}

func Load() (*Config, error) {
	viper.Reset() // Ensure clean state

	viper.SetEnvPrefix("ENDO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		return nil, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".config", "endo"))
	}

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults cover everything
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	config := Default()
	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}

	if config.API.BaseURL == "" {
		return nil, fmt.Errorf("api.base_url is required, please adjust the config or pass --api.base_url or ENDO_API_BASE_URL environment variable")
	}

	return config, nil
}

// WriteDefault writes the default configuration as YAML to the given path,
// refusing to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	return os.WriteFile(path, data, 0o644)
}
