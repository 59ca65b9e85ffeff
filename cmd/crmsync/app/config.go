package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/crmsync"
	"github.com/agentstation/crmsync/pkg/constants"
	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/store"
	pkgsync "github.com/agentstation/crmsync/pkg/sync"
)

// EnvPrefix prefixes every environment variable read by the binary.
const EnvPrefix = "CRMSYNC"

// Config holds the application configuration loaded from various sources
// including config files, environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool   `mapstructure:"verbose"`
	Quiet   bool   `mapstructure:"quiet"`
	Output  string `mapstructure:"output" validate:"omitempty,oneof=table json yaml"`

	// Config file
	ConfigFile string `mapstructure:"-"`

	// Logging configuration
	LogLevel  string `mapstructure:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"omitempty,oneof=auto json console pretty"`
	LogOutput string `mapstructure:"log_output"`

	Remote         RemoteConfig      `mapstructure:"remote"`
	Store          StoreConfig       `mapstructure:"store"`
	Redis          RedisConfig       `mapstructure:"redis"`
	CheckpointFile string            `mapstructure:"checkpoint_file"`
	Schemas        SchemasConfig     `mapstructure:"schemas"`
	Sources        []SourceConfig    `mapstructure:"sources" validate:"dive"`
	RateLimit      RateLimitConfig   `mapstructure:"rate_limit"`
	Sync           SyncConfig        `mapstructure:"sync"`
	Consolidate    ConsolidateConfig `mapstructure:"consolidate"`
}

// RemoteConfig holds the remote CRM endpoint settings.
type RemoteConfig struct {
	BaseURL      string        `mapstructure:"base_url" validate:"omitempty,url"`
	ListPath     string        `mapstructure:"list_path"`
	DetailPath   string        `mapstructure:"detail_path"`
	Token        string        `mapstructure:"token"`
	APIKey       string        `mapstructure:"api_key"`
	APIKeyHeader string        `mapstructure:"api_key_header"`
	PageSize     int           `mapstructure:"page_size" validate:"gte=1,lte=1000"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// StoreConfig selects the relational store backend.
type StoreConfig struct {
	Backend   string       `mapstructure:"backend" validate:"oneof=sqlite postgres postgrest"`
	DSN       string       `mapstructure:"dsn"`
	URL       string       `mapstructure:"url" validate:"omitempty,url"`
	Token     string       `mapstructure:"token"`
	APIKey    string       `mapstructure:"api_key"`
	Schema    string       `mapstructure:"schema"`
	Bootstrap bool         `mapstructure:"bootstrap"`
	Tables    store.Tables `mapstructure:"tables"`
}

// RedisConfig enables shared checkpoints and run locks.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// SchemasConfig selects mapping schemas by built-in name or file path.
type SchemasConfig struct {
	Client   string `mapstructure:"client"`
	Customer string `mapstructure:"customer"`
}

// SourceConfig is one consolidation source table.
type SourceConfig struct {
	Name  string `mapstructure:"name"`
	Table string `mapstructure:"table" validate:"required"`
}

// RateLimitConfig bounds remote calls per window.
type RateLimitConfig struct {
	Ceiling int           `mapstructure:"ceiling" validate:"gte=1"`
	Window  time.Duration `mapstructure:"window" validate:"gt=0"`
}

// SyncConfig holds the default sync run settings.
type SyncConfig struct {
	StalenessWindow time.Duration `mapstructure:"staleness_window" validate:"gte=0"`
	BatchWidth      int           `mapstructure:"batch_width" validate:"gte=1"`
	DetailMode      string        `mapstructure:"detail_mode" validate:"oneof=never missing always"`
	MaxPageErrors   int           `mapstructure:"max_page_errors" validate:"gte=1"`
	Sweep           bool          `mapstructure:"sweep"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// ConsolidateConfig holds the consolidation settings.
type ConsolidateConfig struct {
	MatchStores bool `mapstructure:"match_stores"`
}

// defaults are registered with viper so every key is also readable from
// the environment.
var defaults = map[string]any{
	"verbose":    false,
	"quiet":      false,
	"output":     "",
	"log_level":  "",
	"log_format": "auto",
	"log_output": "stderr",

	"remote.base_url":       "",
	"remote.list_path":      "",
	"remote.detail_path":    "",
	"remote.token":          "",
	"remote.api_key":        "",
	"remote.api_key_header": "",
	"remote.page_size":      constants.DefaultPageSize,
	"remote.timeout":        constants.DefaultHTTPTimeout,

	"store.backend":   "sqlite",
	"store.dsn":       "crmsync.db",
	"store.url":       "",
	"store.token":     "",
	"store.api_key":   "",
	"store.schema":    constants.DefaultSchema,
	"store.bootstrap": true,

	"redis.addr":     "",
	"redis.password": "",
	"redis.db":       0,

	"checkpoint_file":  constants.DefaultCheckpointPath,
	"schemas.client":   "client",
	"schemas.customer": "customer",

	"rate_limit.ceiling": constants.DefaultRateLimit,
	"rate_limit.window":  constants.RateLimitWindow,

	"sync.staleness_window": constants.DefaultStalenessWindow,
	"sync.batch_width":      constants.DefaultBatchWidth,
	"sync.detail_mode":      string(pkgsync.DetailMissing),
	"sync.max_page_errors":  constants.DefaultMaxPageErrors,
	"sync.sweep":            true,
	"sync.timeout":          time.Duration(0),

	"consolidate.match_stores": true,
}

// aliases are well-known variable names accepted besides the prefixed ones.
var aliases = map[string][]string{
	"remote.token":   {"CRM_TOKEN"},
	"remote.api_key": {"CRM_API_KEY"},
	"store.dsn":      {"DATABASE_URL"},
	"store.api_key":  {"POSTGREST_API_KEY"},
	"redis.addr":     {"REDIS_ADDR"},
	"log_level":      {"LOG_LEVEL"},
	"log_format":     {"LOG_FORMAT"},
	"log_output":     {"LOG_OUTPUT"},
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (applied later through UpdateFromFlags)
// 2. Environment variables (CRMSYNC_REMOTE_TOKEN and the aliases above)
// 3. .env files
// 4. Config file (configFile, or .crmsync.yaml in the working or home directory)
// 5. Defaults
//
// The result is validated; any failure is a ConfigError.
func LoadConfig(configFile string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := bindAliases(v); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigType("yaml")
		v.SetConfigName(".crmsync")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.NewConfigError("config", "cannot read config file", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errors.NewConfigError("config", "cannot decode configuration", err)
	}
	config.ConfigFile = v.ConfigFileUsed()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// bindAliases binds each key to its prefixed variable and aliases.
func bindAliases(v *viper.Viper) error {
	for key, names := range aliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return errors.NewConfigError("config", "cannot bind environment for "+key, err)
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and backend-specific requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) {
			msgs := make([]string, 0, len(fields))
			for _, fe := range fields {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.NewConfigError("config", strings.Join(msgs, "; "), nil)
		}
		return errors.NewConfigError("config", "invalid configuration", err)
	}

	switch c.Store.Backend {
	case "postgrest":
		if c.Store.URL == "" {
			return errors.NewConfigError("config", "store.url is required for the postgrest backend", nil)
		}
	default:
		if c.Store.DSN == "" {
			return errors.NewConfigError("config", "store.dsn is required for the "+c.Store.Backend+" backend", nil)
		}
	}
	if c.Remote.BaseURL != "" && c.Remote.Token == "" && c.Remote.APIKey == "" {
		return errors.NewConfigError("config", "remote.token or remote.api_key is required with remote.base_url", nil)
	}
	return nil
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet bool, output, logLevel string) {
	c.Verbose = c.Verbose || verbose
	c.Quiet = c.Quiet || quiet
	if output != "" {
		c.Output = output
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// ClientOptions translates the configuration into client options.
func (c *Config) ClientOptions() []crmsync.Option {
	opts := []crmsync.Option{
		crmsync.WithRateLimit(c.RateLimit.Ceiling, c.RateLimit.Window),
		crmsync.WithSchemas(c.Schemas.Client, c.Schemas.Customer),
		crmsync.WithSources(c.sources()...),
		crmsync.WithStoreMatching(c.Consolidate.MatchStores),
		crmsync.WithSyncDefaults(c.SyncOptions()...),
	}

	if c.Remote.BaseURL != "" {
		opts = append(opts, crmsync.WithRemote(crmsync.RemoteConfig{
			BaseURL:      c.Remote.BaseURL,
			ListPath:     c.Remote.ListPath,
			DetailPath:   c.Remote.DetailPath,
			Token:        c.Remote.Token,
			APIKey:       c.Remote.APIKey,
			APIKeyHeader: c.Remote.APIKeyHeader,
			PageSize:     c.Remote.PageSize,
			Timeout:      c.Remote.Timeout,
		}))
	}

	switch c.Store.Backend {
	case "postgrest":
		opts = append(opts, crmsync.WithPostgREST(crmsync.PostgRESTConfig{
			URL:    c.Store.URL,
			Token:  c.Store.Token,
			APIKey: c.Store.APIKey,
			Schema: c.Store.Schema,
			Tables: c.Store.Tables,
		}))
	default:
		opts = append(opts, crmsync.WithSQLStore(crmsync.SQLConfig{
			Driver:    c.Store.Backend,
			DSN:       c.Store.DSN,
			Tables:    c.Store.Tables,
			Bootstrap: c.Store.Bootstrap,
		}))
	}

	if c.CheckpointFile != "" {
		opts = append(opts, crmsync.WithCheckpointFile(c.CheckpointFile))
	}
	return opts
}

// SyncOptions returns the configured sync defaults.
func (c *Config) SyncOptions() []pkgsync.Option {
	return []pkgsync.Option{
		pkgsync.WithStalenessWindow(c.Sync.StalenessWindow),
		pkgsync.WithBatchWidth(c.Sync.BatchWidth),
		pkgsync.WithDetailMode(pkgsync.DetailMode(c.Sync.DetailMode)),
		pkgsync.WithMaxPageErrors(c.Sync.MaxPageErrors),
		pkgsync.WithSweep(c.Sync.Sweep),
		pkgsync.WithTimeout(c.Sync.Timeout),
	}
}

func (c *Config) sources() []crmsync.Source {
	out := make([]crmsync.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, crmsync.Source{Name: s.Name, Table: s.Table})
	}
	return out
}

// loadEnvFiles loads environment variables from .env files.
// .env.local is read first so its values win; godotenv never overrides
// variables that are already set.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}
