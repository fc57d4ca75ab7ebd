package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sagarc03/stashbox"
	"github.com/sagarc03/stashbox/database"
	stashboxhttp "github.com/sagarc03/stashbox/http"
)

// EnvPrefix is prepended to every environment variable Load reads.
const EnvPrefix = "STASHBOX"

// configKey is the context key for storing the loaded configuration.
type configKey struct{}

// WithContext returns a new context with the config stored.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from context.
// Returns an error if config is not found.
func FromContext(ctx context.Context) (*Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// Config is the root configuration struct for stashbox.
type Config struct {
	Env      string                  `mapstructure:"env" validate:"required,oneof=dev prod"`
	Server   ServerConfig            `mapstructure:"server"`
	Service  ServiceConfig           `mapstructure:"service"`
	Token    TokenConfig             `mapstructure:"token"`
	Auth     AuthConfig              `mapstructure:"auth"`
	Database DatabaseConfig          `mapstructure:"database"`
	Storage  StorageConfig           `mapstructure:"storage"`
	CORS     stashboxhttp.CORSConfig `mapstructure:"cors"`
	Log      LogConfig               `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port          int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	MaxUploadSize int64  `mapstructure:"max_upload_size" validate:"min=0"`
	PublicURL     string `mapstructure:"public_url" validate:"omitempty,url"`
}

// ServiceConfig holds service-level configuration. Durations are in seconds.
type ServiceConfig struct {
	TokenTTL       int `mapstructure:"token_ttl" validate:"min=1"`
	CleanupTimeout int `mapstructure:"cleanup_timeout" validate:"min=1"`
}

// StorageService converts the seconds-based settings for stashbox.NewStorageService.
func (c ServiceConfig) StorageService() stashbox.ServiceConfig {
	return stashbox.ServiceConfig{
		TokenTTL:       time.Duration(c.TokenTTL) * time.Second,
		CleanupTimeout: time.Duration(c.CleanupTimeout) * time.Second,
	}
}

// TokenConfig holds the capability token secret. Optional at load time;
// serve requires it.
type TokenConfig struct {
	Secret string `mapstructure:"secret" validate:"omitempty,min=32"`
}

// AuthConfig holds owner authentication configuration.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

// DatabaseConfig is the connection config plus startup behaviour.
type DatabaseConfig struct {
	database.Config `mapstructure:",squash"`
	AutoMigrate     bool `mapstructure:"auto_migrate"`
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"db-type":      "database.type",
	"db-dsn":       "database.dsn",
	"storage-path": "storage.path",
	"port":         "server.port",
	"log-level":    "log.level",
}

// bindFlags binds CLI flags to viper keys with custom name mapping.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		// Use custom mapping if it exists, otherwise use flag name as-is
		viperKey := f.Name
		if mapped, ok := flagToViperKey[viperKey]; ok {
			viperKey = mapped
		}

		// Only bind if the flag was explicitly set
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

// setDefaults configures default values on the viper instance. Every key
// needs one, otherwise AutomaticEnv can't see its environment variable.
func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")

	v.SetDefault("server.port", 5708)
	v.SetDefault("server.max_upload_size", 0) // 0 means no limit
	v.SetDefault("server.public_url", "")

	v.SetDefault("service.token_ttl", int(stashbox.DefaultTokenTTL/time.Second))
	v.SetDefault("service.cleanup_timeout", int(stashbox.DefaultCleanupTimeout/time.Second))

	v.SetDefault("token.secret", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "stashbox")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "stashbox.db")
	v.SetDefault("database.tables.objects", "stashbox_objects")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.path", "./data")

	v.SetDefault("cors.enabled", false)

	v.SetDefault("log.level", "info")
}

// Load reads configuration and returns a validated Config struct.
// Order of precedence (highest to lowest): flags > env > config files > defaults
//
// Parameters:
//   - configFiles: list of config file paths (later files override earlier ones)
//   - flags: cobra flag set for flag binding (can be nil)
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Read config files
	if len(configFiles) > 0 {
		v.SetConfigFile(configFiles[0])
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("error reading config file", "file", configFiles[0], "err", err)
		}

		for _, cf := range configFiles[1:] {
			v.SetConfigFile(cf)
			if err := v.MergeInConfig(); err != nil {
				slog.Warn("error merging config file", "file", cf, "err", err)
			}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				slog.Warn("error reading config file", "err", err)
			}
		}
	}

	// 3. Bind environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Bind flags (if provided)
	if flags != nil {
		bindFlags(v, flags)
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// 6. Validate using go-playground/validator
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if err := cfg.Database.Tables.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
