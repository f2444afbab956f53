package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Veraticus/customs-flow/internal/common"
)

// EnvPrefix is the prefix for environment overrides, e.g. CUSTOMS_CACHE_TTL.
const EnvPrefix = "CUSTOMS"

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
	CacheBackendNone   = "none"
)

// Submission backoff shapes.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// Config is the full application configuration.
type Config struct {
	Database       DatabaseConfig       `mapstructure:"database"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Cache          CacheConfig          `mapstructure:"cache"`
	SFTP           SFTPConfig           `mapstructure:"sftp"`
	Submission     SubmissionConfig     `mapstructure:"submission"`
	Classification ClassificationConfig `mapstructure:"classification"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=console json"`
}

// CacheConfig configures the classification result cache.
type CacheConfig struct {
	Backend string        `mapstructure:"backend" validate:"oneof=memory redis none"`
	Redis   RedisConfig   `mapstructure:"redis"`
	TTL     time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

// RedisConfig is used when the cache backend is redis.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password Secret        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gte=0"`
	Enabled  bool          `mapstructure:"-"`
}

// ClassificationConfig configures the remote HS code classifier.
type ClassificationConfig struct {
	APIURL              string        `mapstructure:"api_url" validate:"omitempty,url"`
	APIKey              Secret        `mapstructure:"api_key"`
	Timeout             time.Duration `mapstructure:"timeout" validate:"gt=0"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold" validate:"gte=0,lte=1"`
	BatchSize           int           `mapstructure:"batch_size" validate:"gte=1"`
	RateLimit           int           `mapstructure:"rate_limit" validate:"gte=0"`
}

// SubmissionConfig configures the customs declaration API channel.
type SubmissionConfig struct {
	APIURL     string        `mapstructure:"api_url" validate:"omitempty,url"`
	APIKey     Secret        `mapstructure:"api_key"`
	Backoff    string        `mapstructure:"backoff" validate:"oneof=fixed exponential"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=1"`
}

// SFTPConfig configures the fallback file transfer channel.
type SFTPConfig struct {
	Host                 string        `mapstructure:"host"`
	Username             string        `mapstructure:"username" validate:"required_with=Host"`
	Password             Secret        `mapstructure:"password"`
	PrivateKeyPath       string        `mapstructure:"private_key_path"`
	PrivateKeyPassphrase Secret        `mapstructure:"private_key_passphrase"`
	KnownHostsPath       string        `mapstructure:"known_hosts_path"`
	RemotePath           string        `mapstructure:"remote_path" validate:"required"`
	Port                 int           `mapstructure:"port" validate:"gte=1,lte=65535"`
	Timeout              time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// Configured reports whether enough is set to attempt a connection.
func (c SFTPConfig) Configured() bool {
	return c.Host != "" && c.Username != "" && (c.Password.IsSet() || c.PrivateKeyPath != "")
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "$HOME/.local/share/customs/customs.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("cache.backend", CacheBackendMemory)
	v.SetDefault("cache.ttl", 7*24*time.Hour)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.timeout", 2*time.Second)

	v.SetDefault("classification.api_url", "")
	v.SetDefault("classification.api_key", "")
	v.SetDefault("classification.timeout", 10*time.Second)
	v.SetDefault("classification.confidence_threshold", 0.7)
	v.SetDefault("classification.batch_size", 10)
	v.SetDefault("classification.rate_limit", 600)

	v.SetDefault("submission.api_url", "")
	v.SetDefault("submission.api_key", "")
	v.SetDefault("submission.timeout", 30*time.Second)
	v.SetDefault("submission.max_retries", 3)
	v.SetDefault("submission.retry_delay", 5*time.Second)
	v.SetDefault("submission.backoff", BackoffFixed)

	v.SetDefault("sftp.host", "")
	v.SetDefault("sftp.port", 22)
	v.SetDefault("sftp.username", "")
	v.SetDefault("sftp.password", "")
	v.SetDefault("sftp.private_key_path", "")
	v.SetDefault("sftp.private_key_passphrase", "")
	v.SetDefault("sftp.known_hosts_path", "")
	v.SetDefault("sftp.remote_path", "/uploads")
	v.SetDefault("sftp.timeout", 30*time.Second)
}

// BindEnv enables CUSTOMS_* overrides for nested keys.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load applies defaults, decodes v and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	cfg.SFTP.PrivateKeyPath = ExpandPath(cfg.SFTP.PrivateKeyPath)
	cfg.SFTP.KnownHostsPath = ExpandPath(cfg.SFTP.KnownHostsPath)
	cfg.Cache.Redis.Enabled = cfg.Cache.Backend == CacheBackendRedis

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and reports the first failing field.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed %q", common.ErrInvalidConfig, fe.Namespace(), fe.Tag())
	}
	return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
}

// RetryBackoffMultiplier maps the backoff name onto a retry multiplier.
func (c SubmissionConfig) RetryBackoffMultiplier() float64 {
	if c.Backoff == BackoffExponential {
		return 2
	}
	return 1
}
