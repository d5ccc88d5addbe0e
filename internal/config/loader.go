package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// configName is the base name of the config file, without extension.
const configName = "sessiontrack"

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for sessiontrack.yaml/.yml in standard locations.
// The search requires an explicit YAML extension to avoid matching the binary itself,
// which Viper's built-in SetConfigName would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName(configName)
		viper.SetConfigType("yaml")
	}

	// Environment variable support: SESSIONTRACK_SESSION_GRACE_PERIOD
	viper.SetEnvPrefix("SESSIONTRACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a sessiontrack config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".sessiontrack"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, configName))
		}
	} else {
		paths = append(paths, "/etc/sessiontrack")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for sessiontrack.yaml or .yml.
// Returns the full path of the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, configName+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds all config keys for environment variable support.
// Example: SESSIONTRACK_STORE_BACKEND overrides store.backend
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	// Note: server.allowed_origins is a list, use the config file

	_ = viper.BindEnv("store.backend")
	_ = viper.BindEnv("store.dir")
	_ = viper.BindEnv("store.key")

	_ = viper.BindEnv("session.grace_period")
	_ = viper.BindEnv("session.sweep_interval")

	_ = viper.BindEnv("completion.filter")
	_ = viper.BindEnv("completion.log")
	_ = viper.BindEnv("completion.output")
	_ = viper.BindEnv("completion.history_size")
	_ = viper.BindEnv("completion.ledger")

	_ = viper.BindEnv("tracing.output")

	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and validates the result.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	return Finalize(cfg)
}

// LoadConfigRaw reads the configuration file without applying defaults or
// validating. Use this when CLI flags may override fields, then call Finalize.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Finalize applies dev defaults, then defaults, then validates cfg.
func Finalize(cfg *Config) (*Config, error) {
	cfg.SetDevDefaults()
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
