package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr     string `json:"addr" yaml:"addr" toml:"addr"`
	BusURL   string `json:"bus_url" yaml:"bus_url" toml:"bus_url"`
	BusVHost string `json:"bus_vhost" yaml:"bus_vhost" toml:"bus_vhost"`

	Model                string `json:"model" yaml:"model" toml:"model"`
	ContextDepth         int    `json:"context_depth" yaml:"context_depth" toml:"context_depth"`
	MaxTokens            int    `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	NumParallelProcesses int    `json:"num_parallel_processes" yaml:"num_parallel_processes" toml:"num_parallel_processes"`
	NumThreadsPerProcess int    `json:"num_threads_per_process" yaml:"num_threads_per_process" toml:"num_threads_per_process"`

	RuntimeURL     string `json:"runtime_url" yaml:"runtime_url" toml:"runtime_url"`
	TokenizerModel string `json:"tokenizer_model" yaml:"tokenizer_model" toml:"tokenizer_model"`
	WeightsModel   string `json:"weights_model" yaml:"weights_model" toml:"weights_model"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
