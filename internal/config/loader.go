package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/PauloBoaventura/lightly/pkg/models"
)

// LoadOptions describes where configuration comes from
type LoadOptions struct {
	ConfigPath     string   // TOML file, may be empty
	ConfigRequired bool     // Fail if ConfigPath does not exist
	EnvFile        string   // .env file, missing file is ignored
	Overrides      []string // key=value pairs applied last
}

// Load builds the configuration from defaults, the TOML file, the environment
// and key=value overrides, in that order of precedence
func Load(opts LoadOptions) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case errors.Is(err, fs.ErrNotExist) && !opts.ConfigRequired:
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	secrets, err := LoadSecrets()
	if err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}
	secrets.apply(cfg)

	if err := ApplyOverrides(cfg, opts.Overrides); err != nil {
		return nil, err
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.ValidateInputs(); err != nil {
		return nil, fmt.Errorf("input validation failed: %w", err)
	}

	return cfg, nil
}

// LoadSecrets reads credentials from environment variables
func LoadSecrets() (*Secrets, error) {
	secrets := &Secrets{}
	if err := env.Parse(secrets); err != nil {
		return nil, err
	}
	return secrets, nil
}

// apply copies environment values into cfg. The env token only fills an empty token.
func (s *Secrets) apply(cfg *Config) {
	if cfg.Token == "" {
		cfg.Token = s.Token
	}
	if s.APIURL != "" {
		cfg.APIURL = s.APIURL
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	cfg.Upload = models.UploadModeThumbnails
	cfg.EmbUploadBsz = DefaultEmbUploadBsz
	cfg.EmbeddingName = DefaultEmbeddingName
	cfg.APIURL = DefaultAPIURL
	cfg.UploadWorkers = 4
	cfg.RequestsPerMinute = 600
	cfg.MaxRetries = 3
	cfg.HTTPTimeoutSeconds = 300
	cfg.ThumbnailSize = 256
}

var setters = map[string]func(c *Config, v string) error{
	"input_dir":      func(c *Config, v string) error { c.InputDir = v; return nil },
	"embeddings":     func(c *Config, v string) error { c.Embeddings = v; return nil },
	"token":          func(c *Config, v string) error { c.Token = v; return nil },
	"dataset_id":     func(c *Config, v string) error { c.DatasetID = v; return nil },
	"upload":         func(c *Config, v string) error { c.Upload = models.UploadMode(v); return nil },
	"emb_upload_bsz": intSetter(func(c *Config) *int { return &c.EmbUploadBsz }),
	"embedding_name": func(c *Config, v string) error { c.EmbeddingName = v; return nil },

	"api_url":              func(c *Config, v string) error { c.APIURL = v; return nil },
	"upload_workers":       intSetter(func(c *Config) *int { return &c.UploadWorkers }),
	"requests_per_minute":  intSetter(func(c *Config) *int { return &c.RequestsPerMinute }),
	"max_retries":          intSetter(func(c *Config) *int { return &c.MaxRetries }),
	"http_timeout_seconds": intSetter(func(c *Config) *int { return &c.HTTPTimeoutSeconds }),
	"thumbnail_size":       intSetter(func(c *Config) *int { return &c.ThumbnailSize }),
	"journal":              func(c *Config, v string) error { c.Journal = v; return nil },
	"strict_exit":          boolSetter(func(c *Config) *bool { return &c.StrictExit }),
	"metrics_addr":         func(c *Config, v string) error { c.MetricsAddr = v; return nil },
	"log_file":             func(c *Config, v string) error { c.LogFile = v; return nil },
	"quiet":                boolSetter(func(c *Config) *bool { return &c.Quiet }),
	"verbose":              boolSetter(func(c *Config) *bool { return &c.Verbose }),
}

func intSetter(field func(c *Config) *int) func(c *Config, v string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("expected an integer, got %q", v)
		}
		*field(c) = n
		return nil
	}
}

func boolSetter(field func(c *Config) *bool) func(c *Config, v string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("expected true or false, got %q", v)
		}
		*field(c) = b
		return nil
	}
}

// Keys returns the sorted list of keys accepted as overrides
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseOverride splits a key=value argument. Dashes in the key are read as
// underscores and surrounding quotes are removed from the value.
func ParseOverride(arg string) (string, string, error) {
	key, value, ok := strings.Cut(arg, "=")
	if !ok {
		return "", "", fmt.Errorf("invalid argument %q: expected key=value", arg)
	}
	key = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "-", "_")
	if _, known := setters[key]; !known {
		return "", "", fmt.Errorf("unknown configuration key %q (valid keys: %s)", key, strings.Join(Keys(), ", "))
	}
	return key, trimQuotes(strings.TrimSpace(value)), nil
}

// ApplyOverrides applies key=value pairs to cfg in order
func ApplyOverrides(cfg *Config, overrides []string) error {
	for _, arg := range overrides {
		key, value, err := ParseOverride(arg)
		if err != nil {
			return err
		}
		if err := setters[key](cfg, value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}
	return nil
}

func trimQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
