package main

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/and161185/pkg-registry/internal/limiter"
	"github.com/and161185/pkg-registry/internal/mail"
	"github.com/and161185/pkg-registry/internal/service"
)

// envPrefix namespaces environment overrides, e.g. REGISTRY_DB_DSN.
const envPrefix = "REGISTRY"

type HTTPConfig struct {
	Address string `mapstructure:"address"`
}

type OpsConfig struct {
	Address    string        `mapstructure:"address"`
	Reflection bool          `mapstructure:"reflection"`
	ProbeEvery time.Duration `mapstructure:"probe_every"`
}

type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

type UploadConfig struct {
	MaxBytes int `mapstructure:"max_bytes"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Config is the complete server configuration.
type Config struct {
	HTTP    HTTPConfig         `mapstructure:"http"`
	Ops     OpsConfig          `mapstructure:"ops"`
	DB      DBConfig           `mapstructure:"db"`
	Auth    service.AuthConfig `mapstructure:"auth"`
	Limiter limiter.Config     `mapstructure:"limiter"`
	SMTP    mail.Config        `mapstructure:"smtp"`
	Upload  UploadConfig       `mapstructure:"upload"`
	Log     LogConfig          `mapstructure:"log"`
}

// defaults lists every key; viper only merges environment values for keys it knows.
var defaults = map[string]any{
	"http.address":        ":8080",
	"ops.address":         ":9090",
	"ops.reflection":      false,
	"ops.probe_every":     "10s",
	"db.dsn":              "",
	"auth.salt":           "",
	"auth.admin_password": "",
	"auth.host":           "http://localhost:8080",
	"limiter.window":      "15m",
	"limiter.max_fails":   5,
	"limiter.block_for":   "15m",
	"smtp.host":           "",
	"smtp.port":           587,
	"smtp.username":       "",
	"smtp.password":       "",
	"smtp.from":           "no-reply@localhost",
	"smtp.dump_bodies":    false,
	"upload.max_bytes":    16 << 20,
	"log.level":           "info",
}

// loadConfig merges defaults, the optional config file and REGISTRY_*
// environment variables, in increasing priority.
func loadConfig(v *viper.Viper, file string) (*Config, error) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	return validation.Errors{
		"db.dsn":       validation.Validate(c.DB.DSN, validation.Required),
		"auth.salt":    validation.Validate(c.Auth.Salt, validation.Required),
		"auth.host":    validation.Validate(c.Auth.Host, validation.Required),
		"http.address": validation.Validate(c.HTTP.Address, validation.Required),
		"ops.address":  validation.Validate(c.Ops.Address, validation.Required),
		"log.level":    validation.Validate(c.Log.Level, validation.In("debug", "info", "warn", "error")),
	}.Filter()
}
