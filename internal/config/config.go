// Package config loads client and gateway configuration from a YAML file
// overlaid with POLYWIRE_-prefixed environment variables. Credential values
// support ${VAR} substitution so keys stay out of config files.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full configuration tree.
type Config struct {
	Server  ServerConfig   `koanf:"server"`
	Vendors []VendorConfig `koanf:"vendors"`
	Retry   RetryConfig    `koanf:"retry"`
	Record  RecordConfig   `koanf:"record"`
	Encode  EncodeConfig   `koanf:"encode"`
}

// ServerConfig configures the transcode gateway listener.
type ServerConfig struct {
	Port int `koanf:"port"`
	// Backend names the vendor the gateway routes to. Must match one of the
	// configured vendors.
	Backend string `koanf:"backend"`
}

// VendorConfig configures one upstream vendor.
type VendorConfig struct {
	// Name selects the vendor implementation: openai, anthropic, gemini.
	Name    string `koanf:"name"`
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	// UseResponses selects the OpenAI Responses API over Chat Completions.
	UseResponses bool `koanf:"use_responses"`
}

// RetryConfig tunes the pipeline's auth retry.
type RetryConfig struct {
	// AuthRetry enables the single rebuild-and-retry on 401.
	AuthRetry bool `koanf:"auth_retry"`
	// Backoff is the pause before the auth retry. Zero retries immediately.
	Backoff time.Duration `koanf:"backoff"`
}

// RecordConfig configures the SQLite interaction recorder.
type RecordConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
	// StreamChunks also records every canonical stream event.
	StreamChunks bool `koanf:"stream_chunks"`
}

// EncodeConfig configures gateway encoding behavior.
type EncodeConfig struct {
	// UnsupportedPolicy is what encoders do with constructs the target
	// protocol cannot express: drop, downgrade, or error. Required when the
	// gateway is used.
	UnsupportedPolicy string `koanf:"unsupported_policy"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (optional, "" skips the file) and overlays environment
// variables. POLYWIRE_SERVER__PORT=9090 maps to server.port.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("POLYWIRE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "POLYWIRE_")), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("retry.auth_retry") {
		k.Set("retry.auth_retry", true)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Vendors {
		cfg.Vendors[i].APIKey = substituteEnvVars(cfg.Vendors[i].APIKey)
	}
	return &cfg, nil
}

// Vendor returns the configuration for a vendor by name.
func (c *Config) Vendor(name string) (VendorConfig, bool) {
	for _, v := range c.Vendors {
		if v.Name == name {
			return v, true
		}
	}
	return VendorConfig{}, false
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}
