package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the loom configuration file
// (~/.config/loom/config.yaml). Fields are pointers so an unset key can
// be distinguished from a zero value.
type Config struct {
	MaxContext *int64 `yaml:"max_context"`
	HiddenSize *int64 `yaml:"hidden_size"`
	ModelSeed  *int64 `yaml:"model_seed"`

	// Sampling defaults for the step REPL
	Temperature *float64 `yaml:"temperature"`
	TopK        *int64   `yaml:"top_k"`
	Seed        *int64   `yaml:"seed"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "loom", "config.yaml")
}

func loadConfig() Config {
	var cfg Config
	path := configPath()
	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	_ = yaml.Unmarshal(data, &cfg)
	return cfg
}

// applyCommonConfig applies config file defaults when the corresponding
// CLI flag was not explicitly set.
func applyCommonConfig(c *cli.Command, cfg Config) {
	if cfg.MaxContext != nil && !c.IsSet("max-context") {
		maxContext = *cfg.MaxContext
	}
	if cfg.HiddenSize != nil && !c.IsSet("hidden-size") {
		hiddenSize = *cfg.HiddenSize
	}
	if cfg.ModelSeed != nil && !c.IsSet("model-seed") {
		modelSeed = *cfg.ModelSeed
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

func applyStepConfig(c *cli.Command, cfg Config, temp *float64, topK *int64, seed *int64) {
	if cfg.Temperature != nil && !c.IsSet("temp") && !c.IsSet("temperature") {
		*temp = *cfg.Temperature
	}
	if cfg.TopK != nil && !c.IsSet("top-k") {
		*topK = *cfg.TopK
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		*seed = *cfg.Seed
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
