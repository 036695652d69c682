package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv and Load
const (
	EnvConfigPath   = "CODEX_HTTP_CONFIG"
	EnvAPIKey       = "OPENAI_API_KEY"
	EnvRetrievalURL = "RAG_BASE_URL"
	EnvDecoratorURL = "PROMPT_DECORATOR_URL"
	EnvWorkerAddr   = "AGENT_WORKER_ADDR"
)

// candidate file names searched in ~/.codex when no path is given
var discoveryNames = []string{"config.yaml", "config.yml", "config.json"}

// Load builds the configuration: defaults, then environment, then the config
// file at path (if any), then the API key fallback. An empty path falls back
// to $CODEX_HTTP_CONFIG and then to ~/.codex/config.{yaml,yml,json}.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.ApplyEnv()

	if path == "" {
		path = DiscoverPath()
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if cfg.Agent.APIKey == "" {
		cfg.Agent.APIKey = os.Getenv(EnvAPIKey)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overrides endpoints and credentials from environment variables
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvAPIKey); ok && v != "" {
		c.Agent.APIKey = v
	}
	if v, ok := os.LookupEnv(EnvRetrievalURL); ok && v != "" {
		c.Retrieval.BaseURL = v
	}
	if v, ok := os.LookupEnv(EnvDecoratorURL); ok {
		c.Decorator.URL = v
	}
	if v, ok := os.LookupEnv(EnvWorkerAddr); ok {
		c.Engine.WorkerAddr = v
	}
}

// DiscoverPath returns $CODEX_HTTP_CONFIG or the first existing file in
// ~/.codex, or "" when neither exists.
func DiscoverPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	for _, name := range discoveryNames {
		p := filepath.Join(home, ".codex", name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// mergeFile overlays the file's values onto c. YAML files are converted to
// JSON first so both formats share the same field names and decoders.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	default:
		data = jsonc.ToJSON(data)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(raw)
}
