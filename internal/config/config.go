package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the application.
type Config struct {
	Policy  Policy  `mapstructure:"policy"`
	Pool    Pool    `mapstructure:"pool"`
	Storage Storage `mapstructure:"storage"`
	Retry   Retry   `mapstructure:"retry"`
	Log     Log     `mapstructure:"log"`
}

// Policy holds the validation and processing limits applied to every file.
// It is loaded once at startup and never mutated afterwards.
type Policy struct {
	AllowedTypes      []string `mapstructure:"allowed_types"`      // declared MIME types accepted as input
	AllowedExtensions []string `mapstructure:"allowed_extensions"` // file name suffixes accepted as input
	DangerousSuffixes []string `mapstructure:"dangerous_suffixes"` // executable-like suffixes rejected outright

	MaxFileSize       int64 `mapstructure:"max_file_size"`        // bytes
	MaxFiles          int   `mapstructure:"max_files"`            // files per batch
	MaxDimension      int   `mapstructure:"max_dimension"`        // pixels, either axis
	MaxFileNameLength int   `mapstructure:"max_file_name_length"` // characters

	MinAspectRatio float64 `mapstructure:"min_aspect_ratio"`
	MaxAspectRatio float64 `mapstructure:"max_aspect_ratio"`

	Timeout time.Duration `mapstructure:"timeout"` // per-operation deadline

	QualityMin     float64 `mapstructure:"quality_min"`
	QualityMax     float64 `mapstructure:"quality_max"`
	DefaultQuality float64 `mapstructure:"default_quality"`

	RateLimit RateLimit `mapstructure:"rate_limit"`
}

// RateLimit bounds how many operations a processor admits per window.
// Requests <= 0 disables the limit.
type RateLimit struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// Pool holds drawing surface pool configuration.
type Pool struct {
	Capacity int `mapstructure:"capacity"`
}

// Storage holds configuration for the result delivery backend.
// Results go to Dir unless S3 is enabled.
type Storage struct {
	Dir string `mapstructure:"dir"`
	S3  S3     `mapstructure:"s3"`
}

// S3 holds configuration for an S3-compatible bucket (MinIO).
type S3 struct {
	Enabled    bool   `mapstructure:"enabled"`
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	UseSSL     bool   `mapstructure:"use_ssl"`
}

// Retry defines retry policy configuration.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// Log holds logger configuration.
type Log struct {
	Level string `mapstructure:"level"`
}

// DefaultPolicy returns the built-in processing policy.
func DefaultPolicy() Policy {
	return Policy{
		AllowedTypes: []string{
			"image/jpeg", "image/jpg", "image/png", "image/webp",
			"image/gif", "image/bmp", "image/tiff",
		},
		AllowedExtensions: []string{".jpg", ".jpeg", ".png", ".webp", ".gif", ".bmp", ".tiff"},
		DangerousSuffixes: []string{
			".exe", ".bat", ".cmd", ".sh", ".php", ".asp", ".aspx", ".jsp", ".jar", ".war",
		},
		MaxFileSize:       20 << 20,
		MaxFiles:          20,
		MaxDimension:      10000,
		MaxFileNameLength: 255,
		MinAspectRatio:    0.01,
		MaxAspectRatio:    100,
		Timeout:           30 * time.Second,
		QualityMin:        0.1,
		QualityMax:        1.0,
		DefaultQuality:    0.8,
		RateLimit: RateLimit{
			Requests: 100,
			Window:   time.Minute,
		},
	}
}

// Default returns the full configuration used when no file is present.
func Default() Config {
	return Config{
		Policy:  DefaultPolicy(),
		Pool:    Pool{Capacity: 5},
		Storage: Storage{Dir: "./out"},
		Retry: Retry{
			Attempts: 3,
			Delay:    200 * time.Millisecond,
			Backoff:  2,
		},
		Log: Log{Level: "info"},
	}
}

// setDefaults registers every key of Default with v so that env overrides
// and partial files resolve against the built-in values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("policy.allowed_types", d.Policy.AllowedTypes)
	v.SetDefault("policy.allowed_extensions", d.Policy.AllowedExtensions)
	v.SetDefault("policy.dangerous_suffixes", d.Policy.DangerousSuffixes)
	v.SetDefault("policy.max_file_size", d.Policy.MaxFileSize)
	v.SetDefault("policy.max_files", d.Policy.MaxFiles)
	v.SetDefault("policy.max_dimension", d.Policy.MaxDimension)
	v.SetDefault("policy.max_file_name_length", d.Policy.MaxFileNameLength)
	v.SetDefault("policy.min_aspect_ratio", d.Policy.MinAspectRatio)
	v.SetDefault("policy.max_aspect_ratio", d.Policy.MaxAspectRatio)
	v.SetDefault("policy.timeout", d.Policy.Timeout)
	v.SetDefault("policy.quality_min", d.Policy.QualityMin)
	v.SetDefault("policy.quality_max", d.Policy.QualityMax)
	v.SetDefault("policy.default_quality", d.Policy.DefaultQuality)
	v.SetDefault("policy.rate_limit.requests", d.Policy.RateLimit.Requests)
	v.SetDefault("policy.rate_limit.window", d.Policy.RateLimit.Window)

	v.SetDefault("pool.capacity", d.Pool.Capacity)

	v.SetDefault("storage.dir", d.Storage.Dir)
	v.SetDefault("storage.s3.enabled", false)
	v.SetDefault("storage.s3.use_ssl", false)

	v.SetDefault("retry.attempts", d.Retry.Attempts)
	v.SetDefault("retry.delay", d.Retry.Delay)
	v.SetDefault("retry.backoff", d.Retry.Backoff)

	v.SetDefault("log.level", d.Log.Level)
}

// bindEnv binds secrets that are never kept in the config file.
func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"storage.s3.access_key": "S3_ACCESS_KEY",
		"storage.s3.secret_key": "S3_SECRET_KEY",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	return nil
}

// Load reads configuration from path on top of the built-in defaults.
// An empty path loads defaults and environment overrides only.
// Environment variables use the PIXELKIT_ prefix, e.g. PIXELKIT_POOL_CAPACITY.
func Load(path string, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	setDefaults(v)
	v.SetEnvPrefix("pixelkit")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad loads the configuration from the specified file path.
// It panics if the configuration file cannot be loaded or unmarshaled.
func MustLoad(path string, v *viper.Viper) *Config {
	cfg, err := Load(path, v)
	if err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to load config")
	}

	return cfg
}

// Validate reports configuration values that would make the pipeline unusable.
func (c *Config) Validate() error {
	p := c.Policy

	switch {
	case len(p.AllowedTypes) == 0:
		return fmt.Errorf("config: policy.allowed_types must not be empty")
	case len(p.AllowedExtensions) == 0:
		return fmt.Errorf("config: policy.allowed_extensions must not be empty")
	case p.MaxFileSize <= 0:
		return fmt.Errorf("config: policy.max_file_size must be positive")
	case p.MaxFiles <= 0:
		return fmt.Errorf("config: policy.max_files must be positive")
	case p.MaxDimension <= 0:
		return fmt.Errorf("config: policy.max_dimension must be positive")
	case p.MinAspectRatio <= 0 || p.MinAspectRatio > p.MaxAspectRatio:
		return fmt.Errorf("config: invalid aspect ratio range [%g, %g]", p.MinAspectRatio, p.MaxAspectRatio)
	case p.Timeout <= 0:
		return fmt.Errorf("config: policy.timeout must be positive")
	case p.QualityMin <= 0 || p.QualityMin > p.QualityMax || p.QualityMax > 1:
		return fmt.Errorf("config: invalid quality range [%g, %g]", p.QualityMin, p.QualityMax)
	case c.Pool.Capacity <= 0:
		return fmt.Errorf("config: pool.capacity must be positive")
	}

	return nil
}
