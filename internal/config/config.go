package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/schema"
)

type Config struct {
	Env               string        `mapstructure:"ENV"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	HTTPAddr          string        `mapstructure:"HTTP_ADDR"`
	DataDir           string        `mapstructure:"DATA_DIR"`
	Mode              string        `mapstructure:"MODE"`
	Direction         string        `mapstructure:"TRANSLATION_DIRECTION"`
	HideSuppInPreview bool          `mapstructure:"HIDE_SUPP_IN_PREVIEW"`
	DBPath            string        `mapstructure:"DB_PATH"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	CacheTTL          time.Duration `mapstructure:"CACHE_TTL"`
	Workers           int           `mapstructure:"WORKERS"`
	MaxRetries        int           `mapstructure:"MAX_RETRIES"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	FailFast          bool          `mapstructure:"FAIL_FAST"`
	GeminiAPIKey      string        `mapstructure:"GEMINI_API_KEY"`
	GeminiModel       string        `mapstructure:"GEMINI_MODEL"`
	GeminiBaseURL     string        `mapstructure:"GEMINI_BASE_URL"`

	// hideSuppSet records whether HIDE_SUPP_IN_PREVIEW came from the
	// environment, the config file or a changed flag.
	hideSuppSet bool
}

var keys = []string{
	"ENV",
	"LOG_LEVEL",
	"HTTP_ADDR",
	"DATA_DIR",
	"MODE",
	"TRANSLATION_DIRECTION",
	"HIDE_SUPP_IN_PREVIEW",
	"DB_PATH",
	"REDIS_URL",
	"CACHE_TTL",
	"WORKERS",
	"MAX_RETRIES",
	"REQUEST_TIMEOUT",
	"RATE_LIMIT_RPS",
	"FAIL_FAST",
	"GEMINI_API_KEY",
	"GEMINI_MODEL",
	"GEMINI_BASE_URL",
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"log-level":       "LOG_LEVEL",
	"addr":            "HTTP_ADDR",
	"dir":             "DATA_DIR",
	"mode":            "MODE",
	"direction":       "TRANSLATION_DIRECTION",
	"hide-supp":       "HIDE_SUPP_IN_PREVIEW",
	"db":              "DB_PATH",
	"redis-url":       "REDIS_URL",
	"cache-ttl":       "CACHE_TTL",
	"workers":         "WORKERS",
	"max-retries":     "MAX_RETRIES",
	"request-timeout": "REQUEST_TIMEOUT",
	"rate-limit-rps":  "RATE_LIMIT_RPS",
	"fail-fast":       "FAIL_FAST",
	"gemini-model":    "GEMINI_MODEL",
	"gemini-base-url": "GEMINI_BASE_URL",
}

// Load reads configuration from the environment and, when file is not
// empty, from that config file. Flags of fs that were set on the command line
// win over environment variables, which win over the file. fs may be nil.
func Load(file string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("MODE", string(schema.IngestModeSDTM))
	v.SetDefault("TRANSLATION_DIRECTION", string(schema.DirectionZhToEn))
	v.SetDefault("DB_PATH", "sdtmtrans.db")
	v.SetDefault("CACHE_TTL", "720h")
	v.SetDefault("WORKERS", 10)
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("RATE_LIMIT_RPS", 0)
	v.SetDefault("FAIL_FAST", false)

	// Unmarshal only sees env values for keys viper already knows about.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}

	if file = strings.TrimSpace(file); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.hideSuppSet = v.IsSet("HIDE_SUPP_IN_PREVIEW")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IngestMode is MODE normalized; anything but SDTM means RAW.
func (c *Config) IngestMode() schema.IngestMode {
	return schema.NormalizeMode(c.Mode)
}

// HideSupp is HIDE_SUPP_IN_PREVIEW when it was set explicitly and nil
// otherwise, leaving the default to the ingest mode.
func (c *Config) HideSupp() *bool {
	if !c.hideSuppSet {
		return nil
	}
	hide := c.HideSuppInPreview
	return &hide
}

func (c *Config) TranslationDirection() schema.Direction {
	return schema.NormalizeDirection(c.Direction)
}

// Validate rejects values that would make a run misbehave rather than fail.
// A missing GEMINI_API_KEY is allowed; the LLM fallback is then disabled.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("WORKERS must be > 0, got %d", c.Workers))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must be >= 0, got %d", c.MaxRetries))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must be >= 0, got %s", c.RequestTimeout))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be >= 0, got %g", c.RateLimitRPS))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must be >= 0, got %s", c.CacheTTL))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("DB_PATH is required"))
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(c.LogLevel))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.GeminiAPIKey != "" && strings.TrimSpace(c.GeminiModel) == "" {
		errs = append(errs, errors.New("GEMINI_MODEL is required when GEMINI_API_KEY is set"))
	}
	return errors.Join(errs...)
}
