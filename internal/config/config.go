// Package config holds the server configuration, its defaults, and the file
// and environment loaders.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tsantana84/codex-http/internal/retry"
)

// Duration is a time.Duration that decodes from "30s"-style strings or from
// a number of milliseconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	ms, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %s: %w", raw, err)
	}
	*d = Duration(time.Duration(ms * float64(time.Millisecond)))
	return nil
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete server configuration
type Config struct {
	Server    ServerConfig    `json:"server"`
	Session   SessionConfig   `json:"session"`
	Agent     AgentConfig     `json:"agent"`
	Retrieval RetrievalConfig `json:"retrieval"`
	Decorator DecoratorConfig `json:"decorator"`
	Engine    EngineConfig    `json:"engine"`
	MCP       MCPConfig       `json:"mcp"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Host              string   `json:"host"`
	Port              int      `json:"port"`
	MaxBodyBytes      int64    `json:"maxBodyBytes"`
	ReadHeaderTimeout Duration `json:"readHeaderTimeout"`
	ShutdownTimeout   Duration `json:"shutdownTimeout"`
}

// Addr returns the host:port listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SessionConfig configures session liveness
type SessionConfig struct {
	// Timeout is the idle period after which the reaper evicts a session
	Timeout Duration `json:"timeout"`
	// CleanupInterval is the reaper period
	CleanupInterval Duration `json:"cleanupInterval"`
	// EventBuffer is the channel size of each event subscriber
	EventBuffer int `json:"eventBuffer"`
}

// AgentConfig holds the defaults applied to every new session. Request
// bodies override these per session.
type AgentConfig struct {
	Model                  string `json:"model"`
	Provider               string `json:"provider"`
	APIKey                 string `json:"apiKey"`
	Instructions           string `json:"instructions"`
	ApprovalMode           string `json:"approvalMode"`
	DisableResponseStorage bool   `json:"disableResponseStorage"`
}

// RetrievalConfig configures the retrieval client
type RetrievalConfig struct {
	BaseURL       string   `json:"baseUrl"`
	Enabled       bool     `json:"enabled"`
	TopK          int      `json:"topK"`
	Threshold     float64  `json:"threshold"`
	RetryCount    int      `json:"retryCount"`
	RetryDelay    Duration `json:"retryDelay"`
	Timeout       Duration `json:"timeout"`
	HealthTimeout Duration `json:"healthTimeout"`
	// CacheTTL enables caching of successful searches when positive
	CacheTTL Duration `json:"cacheTtl"`
}

// RetryPolicy returns the fixed-delay policy used for retrieval searches
func (r RetrievalConfig) RetryPolicy() retry.Policy {
	return retry.FixedPolicy(r.RetryCount, r.RetryDelay.Std())
}

// DecoratorConfig configures the prompt decorator. An empty URL disables it.
type DecoratorConfig struct {
	URL     string   `json:"url"`
	Timeout Duration `json:"timeout"`
}

// EngineConfig selects the agent engine. An empty WorkerAddr selects the
// built-in echo engine.
type EngineConfig struct {
	WorkerAddr  string   `json:"workerAddr"`
	DialTimeout Duration `json:"dialTimeout"`
	CallTimeout Duration `json:"callTimeout"`
	EchoDelay   Duration `json:"echoDelay"`
}

// MCPConfig configures the MCP tool surface
type MCPConfig struct {
	Enabled  bool   `json:"enabled"`
	Name     string `json:"name"`
	Version  string `json:"version"`
	BasePath string `json:"basePath"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              DefaultHost,
			Port:              DefaultPort,
			MaxBodyBytes:      DefaultMaxBodyBytes,
			ReadHeaderTimeout: Duration(DefaultReadHeaderTimeout),
			ShutdownTimeout:   Duration(DefaultShutdownTimeout),
		},
		Session: SessionConfig{
			Timeout:         Duration(DefaultSessionTimeout),
			CleanupInterval: Duration(DefaultCleanupInterval),
			EventBuffer:     DefaultEventBuffer,
		},
		Agent: AgentConfig{
			Model:        "codex-mini-latest",
			Provider:     "openai",
			ApprovalMode: "suggest",
		},
		Retrieval: RetrievalConfig{
			BaseURL:       "http://localhost:8000",
			Enabled:       true,
			TopK:          DefaultRetrievalTopK,
			Threshold:     DefaultRetrievalThreshold,
			RetryCount:    DefaultRetrievalRetryCount,
			RetryDelay:    Duration(DefaultRetrievalRetryDelay),
			Timeout:       Duration(DefaultRetrievalTimeout),
			HealthTimeout: Duration(DefaultRetrievalHealthTimeout),
		},
		Decorator: DecoratorConfig{
			Timeout: Duration(DefaultDecoratorTimeout),
		},
		Engine: EngineConfig{
			DialTimeout: Duration(DefaultEngineDialTimeout),
			CallTimeout: Duration(DefaultEngineCallTimeout),
		},
		MCP: MCPConfig{
			Enabled:  true,
			Name:     "codex-http",
			Version:  "0.1.0",
			BasePath: "/mcp",
		},
	}
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.maxBodyBytes must be positive"))
	}
	if c.Session.Timeout <= 0 {
		errs = append(errs, errors.New("session.timeout must be positive"))
	}
	if c.Session.CleanupInterval <= 0 {
		errs = append(errs, errors.New("session.cleanupInterval must be positive"))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, errors.New("retrieval.topK must be positive"))
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		errs = append(errs, fmt.Errorf("retrieval.threshold must be within [0,1], got %v", c.Retrieval.Threshold))
	}
	if err := c.Retrieval.RetryPolicy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retrieval retry policy: %w", err))
	}
	if c.Retrieval.Timeout <= 0 || c.Retrieval.HealthTimeout <= 0 {
		errs = append(errs, errors.New("retrieval timeouts must be positive"))
	}
	if c.Decorator.Timeout <= 0 {
		errs = append(errs, errors.New("decorator.timeout must be positive"))
	}
	if c.MCP.Enabled && !strings.HasPrefix(c.MCP.BasePath, "/") {
		errs = append(errs, fmt.Errorf("mcp.basePath must start with '/': %q", c.MCP.BasePath))
	}
	return errors.Join(errs...)
}
