// Package config loads client settings and a declarative method table from
// TOML or YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"github.com/ghodss/yaml"
	"github.com/go-playground/validator/v10"

	"github.com/go-thor/rabbit/errors"
)

// Duration is a time.Duration read from strings such as "1.5s".
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config is the root of a configuration file.
type Config struct {
	// BaseURL prefixes method URLs that are not absolute.
	BaseURL   string            `toml:"base_url" json:"base_url" validate:"omitempty,url"`
	Codec     string            `toml:"codec" json:"codec" validate:"oneof=json yaml protobuf protojson form raw"`
	Validate  bool              `toml:"validate" json:"validate"`
	Headers   map[string]string `toml:"headers" json:"headers"`
	Timeout   Duration          `toml:"timeout" json:"timeout"`
	Transport Transport         `toml:"transport" json:"transport"`
	Retry     *Retry            `toml:"retry" json:"retry"`
	RateLimit *RateLimit        `toml:"rate_limit" json:"rate_limit"`
	Cache     *Cache            `toml:"cache" json:"cache"`
	Balancer  *Balancer         `toml:"balancer" json:"balancer"`
	Methods   []Method          `toml:"methods" json:"methods" validate:"dive"`
}

// Transport configures the transport.
type Transport struct {
	Kind            string   `toml:"kind" json:"kind" validate:"oneof=http grpc"`
	ReadTimeout     Duration `toml:"read_timeout" json:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout" json:"write_timeout"`
	DialTimeout     Duration `toml:"dial_timeout" json:"dial_timeout"`
	MaxMessageSize  int      `toml:"max_message_size" json:"max_message_size" validate:"gte=0"`
	SkipStatusCheck bool     `toml:"skip_status_check" json:"skip_status_check"`
}

// Retry configures the retry interceptor.
type Retry struct {
	MaxRetries      int      `toml:"max_retries" json:"max_retries" validate:"gte=0"`
	InitialInterval Duration `toml:"initial_interval" json:"initial_interval"`
	MaxInterval     Duration `toml:"max_interval" json:"max_interval"`
	Codes           []string `toml:"codes" json:"codes"`
}

// RateLimit configures the rate limit interceptor.
type RateLimit struct {
	PerSecond float64 `toml:"per_second" json:"per_second" validate:"gt=0"`
	Burst     int     `toml:"burst" json:"burst" validate:"gte=1"`
	PerMethod bool    `toml:"per_method" json:"per_method"`
}

// Cache configures the response cache.
type Cache struct {
	TTL         Duration `toml:"ttl" json:"ttl"`
	MaxEntries  int      `toml:"max_entries" json:"max_entries" validate:"gte=0"`
	VaryHeaders []string `toml:"vary_headers" json:"vary_headers"`
}

// Balancer spreads requests over endpoints.
type Balancer struct {
	Policy    string   `toml:"policy" json:"policy" validate:"omitempty,oneof=round_robin random"`
	Endpoints []string `toml:"endpoints" json:"endpoints" validate:"min=1,dive,url"`
}

// Method declares one remote method.
type Method struct {
	ID         string  `toml:"id" json:"id" validate:"required"`
	HTTPMethod string  `toml:"http_method" json:"http_method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE HEAD OPTIONS get post put patch delete head options"`
	URL        string  `toml:"url" json:"url" validate:"required"`
	Params     []Param `toml:"params" json:"params" validate:"dive"`
	Returns    string  `toml:"returns" json:"returns"`
}

// Param declares one method parameter.
type Param struct {
	Name   string `toml:"name" json:"name"`
	In     string `toml:"in" json:"in" validate:"oneof=path query header body"`
	Type   string `toml:"type" json:"type"`
	Format string `toml:"format" json:"format"`
}

// Default returns the settings applied to zero fields of a loaded file.
func Default() *Config {
	return &Config{
		Codec:   "json",
		Timeout: Duration(30 * time.Second),
		Transport: Transport{
			Kind:           "http",
			ReadTimeout:    Duration(30 * time.Second),
			WriteTimeout:   Duration(30 * time.Second),
			DialTimeout:    Duration(10 * time.Second),
			MaxMessageSize: 10 * 1024 * 1024,
		},
	}
}

// Load reads path, fills defaults and validates the result. The format
// follows the extension: .toml, or .yaml, .yml and .json.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorCodeNotFound, err, "read config")
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes data in the format named by ext.
func Parse(data []byte, ext string) (*Config, error) {
	cfg := &Config{}
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, errors.Wrap(errors.ErrorCodeInvalidArgument, err, "parse toml config")
		}
	case "yaml", "yml", "json":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.ErrorCodeInvalidArgument, err, "parse yaml config")
		}
	default:
		return nil, errors.Newf(errors.ErrorCodeInvalidArgument, "unsupported config format %q", ext)
	}

	if err := mergo.Merge(cfg, Default()); err != nil {
		return nil, errors.Wrap(errors.ErrorCodeInternal, err, "apply defaults")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validate checks field constraints.
func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrorCodeInvalidArgument, err, "invalid config")
	}
	seen := make(map[string]bool, len(c.Methods))
	for _, m := range c.Methods {
		if seen[m.ID] {
			return errors.Newf(errors.ErrorCodeAlreadyExists, "method %s declared twice", m.ID)
		}
		seen[m.ID] = true
	}
	return nil
}

// String renders the config as TOML.
func (c *Config) String() string {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return b.String()
}
