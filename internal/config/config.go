// Package config loads CLI and server settings from an optional YAML file,
// .env files and OSDL_* environment variables, in that order of precedence
// (later wins). Command-line flags override the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "OSDL_"

// Config is the resolved runtime configuration.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Addr        string `yaml:"addr"`
	PagesDir    string `yaml:"pages_dir"`
	LoamRepo    string `yaml:"loam_repo"`
	Fixtures    string `yaml:"fixtures"`
	RQLEndpoint string `yaml:"rql_endpoint"`
	RQLToken    string `yaml:"rql_token"`
	SQLDriver   string `yaml:"sql_driver"`
	SQLDSN      string `yaml:"sql_dsn"`

	SessionDir    string `yaml:"session_dir"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`

	JWTSecret string `yaml:"jwt_secret"`

	// EncryptionKey is a base64 AES-256 key sealing persisted snapshots.
	EncryptionKey string `yaml:"encryption_key"`
	// EncryptionPassphrase derives the key when EncryptionKey is empty.
	EncryptionPassphrase string   `yaml:"encryption_passphrase"`
	PIIPatterns          []string `yaml:"pii_patterns"`
	ActionsFile          string   `yaml:"actions_file"`

	BlockingTimeout time.Duration `yaml:"blocking_timeout"`
	RetryBudget     int           `yaml:"retry_budget"`
	RateLimit       int           `yaml:"rate_limit"`
	Sanitize        bool          `yaml:"sanitize"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":8080",
		PagesDir:        "pages",
		SessionDir:      ".osdl/sessions",
		ActionsFile:     "actions.yaml",
		BlockingTimeout: 10 * time.Second,
		RetryBudget:     2,
		RateLimit:       100,
		CORSOrigins:     []string{"*"},
	}
}

// Load resolves the configuration. path names an optional YAML file; a
// missing file is not an error unless path was given explicitly.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// Existing variables win over .env entries.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := cast.ToIntE(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	str("ADDR", &cfg.Addr)
	str("PAGES_DIR", &cfg.PagesDir)
	str("LOAM_REPO", &cfg.LoamRepo)
	str("FIXTURES", &cfg.Fixtures)
	str("RQL_ENDPOINT", &cfg.RQLEndpoint)
	str("RQL_TOKEN", &cfg.RQLToken)
	str("SQL_DRIVER", &cfg.SQLDriver)
	str("SQL_DSN", &cfg.SQLDSN)
	str("SESSION_DIR", &cfg.SessionDir)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("REDIS_PASSWORD", &cfg.RedisPassword)
	str("REDIS_PREFIX", &cfg.RedisPrefix)
	str("JWT_SECRET", &cfg.JWTSecret)
	str("ENCRYPTION_KEY", &cfg.EncryptionKey)
	str("ENCRYPTION_PASSPHRASE", &cfg.EncryptionPassphrase)
	str("ACTIONS_FILE", &cfg.ActionsFile)
	num("REDIS_DB", &cfg.RedisDB)
	num("RETRY_BUDGET", &cfg.RetryBudget)
	num("RATE_LIMIT", &cfg.RateLimit)

	if v, ok := lookup(EnvPrefix + "BLOCKING_TIMEOUT"); ok {
		d, err := cast.ToDurationE(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%sBLOCKING_TIMEOUT: %w", EnvPrefix, err))
		} else {
			cfg.BlockingTimeout = d
		}
	}
	if v, ok := lookup(EnvPrefix + "SANITIZE"); ok {
		b, err := cast.ToBoolE(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSANITIZE: %w", EnvPrefix, err))
		} else {
			cfg.Sanitize = b
		}
	}
	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok {
		cfg.CORSOrigins = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "PII_PATTERNS"); ok {
		cfg.PIIPatterns = splitList(v)
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
