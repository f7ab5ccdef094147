package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for the training server
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Training TrainingConfig `mapstructure:"training"`
}

// ServerConfig holds socket server configuration
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// TrainingConfig holds rollout and checkpoint configuration
type TrainingConfig struct {
	RolloutHorizon     int     `mapstructure:"rollout_horizon"`
	CheckpointInterval int     `mapstructure:"checkpoint_interval"`
	ModelsDir          string  `mapstructure:"models_dir"`
	Gamma              float64 `mapstructure:"gamma"`
	LearningRate       float64 `mapstructure:"learning_rate"`
	Seed               int64   `mapstructure:"seed"`
}

var (
	// Global config instance
	cfg *Config
	v   *viper.Viper
)

// setViperDefaults sets all default values using Viper's SetDefault
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "console")

	v.SetDefault("training.rollout_horizon", 2048)
	v.SetDefault("training.checkpoint_interval", 50)
	v.SetDefault("training.models_dir", "models")
	v.SetDefault("training.gamma", 0.99)
	v.SetDefault("training.learning_rate", 3e-4)
	v.SetDefault("training.seed", 0)
}

// Init initializes the configuration
func Init(configPath string) error {
	v = viper.New()

	// Set defaults before loading any config
	setViperDefaults(v)

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default config locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/bossrl")
	}

	// Set environment variable prefix
	v.SetEnvPrefix("BOSSRL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// If we have a specific config path and it doesn't exist, that's ok - use defaults
		if configPath != "" {
			// Specific file requested but not found - that's ok, use defaults
		} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// For default locations, only ignore ConfigFileNotFoundError
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults
	}

	// Unmarshal into config struct
	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// Validate configuration
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		// Initialize with defaults if not already initialized
		if err := Init(""); err != nil {
			panic("failed to initialize config with defaults: " + err.Error())
		}
	}
	return cfg
}

// GetViper returns the viper instance for advanced usage
func GetViper() *viper.Viper {
	if v == nil {
		panic("config not initialized - call Init() first")
	}
	return v
}

// ConfigFilePath returns the path of the loaded config file
func ConfigFilePath() string {
	return v.ConfigFileUsed()
}

// WatchConfig enables hot-reloading of config file
func WatchConfig(onChange func()) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		// Re-unmarshal on change
		v.Unmarshal(cfg)
		if onChange != nil {
			onChange()
		}
	})
}

// Validate validates the configuration values
func Validate(c *Config) error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Training.RolloutHorizon <= 0 {
		return fmt.Errorf("training.rollout_horizon must be positive")
	}
	if c.Training.CheckpointInterval < 0 {
		return fmt.Errorf("training.checkpoint_interval must be non-negative")
	}
	if c.Training.ModelsDir == "" {
		return fmt.Errorf("training.models_dir must not be empty")
	}
	if c.Training.Gamma <= 0 || c.Training.Gamma > 1 {
		return fmt.Errorf("training.gamma must be in (0, 1]")
	}
	if c.Training.LearningRate <= 0 {
		return fmt.Errorf("training.learning_rate must be positive")
	}

	return nil
}
