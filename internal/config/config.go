// Package config loads process settings once at start: defaults, then an
// optional YAML file named by HAIRSWAP_CONFIG, then environment variables
// (including a .env file when present).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmorgan81/hairswap/internal/model"
	"github.com/dmorgan81/hairswap/internal/preprocess"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

const (
	BackendBarbershop = "barbershop"
	BackendRemote     = "remote"
	BackendStub       = "stub"
)

type Barbershop struct {
	Path         string        `yaml:"path"`
	RepoURL      string        `yaml:"repo_url"`
	Python       string        `yaml:"python"`
	Seed         int           `yaml:"seed"`
	AlignTimeout time.Duration `yaml:"align_timeout"`
}

type Remote struct {
	URL          string        `yaml:"url"`
	Key          string        `yaml:"key"`
	KeyParam     string        `yaml:"key_param"`
	SetupTimeout time.Duration `yaml:"setup_timeout"`
}

type Config struct {
	MaxFileSize  int64 `yaml:"max_file_size"`
	MinDimension int   `yaml:"min_dimension"`

	ProcessingTimeout      time.Duration `yaml:"processing_timeout"`
	QueueTimeout           time.Duration `yaml:"queue_timeout"`
	MaxConcurrentTransfers int           `yaml:"max_concurrent_transfers"`

	DefaultStyle      string `yaml:"default_style"`
	DefaultSmoothness int    `yaml:"default_smoothness"`

	Resolution int                `yaml:"resolution"`
	MaxAspect  float64            `yaml:"max_aspect"`
	Enhance    preprocess.Factors `yaml:"enhance"`

	Model      string     `yaml:"model"`
	Barbershop Barbershop `yaml:"barbershop"`
	Remote     Remote     `yaml:"remote"`

	WorkDir     string `yaml:"work_dir"`
	CatalogDir  string `yaml:"catalog_dir"`
	ExamplesDir string `yaml:"examples_dir"`
	HistoryPath string `yaml:"history_path"`
	// OutputDir receives published results when no bucket is configured.
	OutputDir string `yaml:"output_dir"`

	Bucket       string `yaml:"bucket"`
	Distribution string `yaml:"distribution"`
	SiteURL      string `yaml:"site_url"`

	Addr      string  `yaml:"addr"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func Default() *Config {
	return &Config{
		MaxFileSize:            10 * 1024 * 1024,
		MinDimension:           256,
		ProcessingTimeout:      300 * time.Second,
		MaxConcurrentTransfers: 1,
		DefaultStyle:           string(model.StyleRealistic),
		DefaultSmoothness:      5,
		Resolution:             preprocess.DefaultResolution,
		MaxAspect:              preprocess.DefaultMaxAspect,
		Enhance:                preprocess.DefaultFactors(),
		Model:                  BackendBarbershop,
		Barbershop: Barbershop{
			Path:         "Barbershop",
			RepoURL:      "https://github.com/ZPdesu/Barbershop.git",
			Python:       "python3",
			Seed:         42,
			AlignTimeout: 60 * time.Second,
		},
		Remote: Remote{
			SetupTimeout: 5 * time.Minute,
		},
		WorkDir:     "temp",
		CatalogDir:  "hairstyles",
		ExamplesDir: "examples",
		OutputDir:   "output",
		SiteURL:     "http://localhost:7860",
		Addr:        ":7860",
		RateLimit:   1,
		RateBurst:   5,
		LogLevel:    "info",
		LogFormat:   "json",
	}
}

// Load reads the configuration. A missing .env file is not an error; a
// HAIRSWAP_CONFIG that cannot be read is.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("HAIRSWAP_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	var errs []error
	env := envReader{errs: &errs}

	env.int64("MAX_IMAGE_SIZE", &c.MaxFileSize)
	env.int("MIN_IMAGE_DIMENSION", &c.MinDimension)
	env.seconds("PROCESS_TIMEOUT", &c.ProcessingTimeout)
	env.seconds("QUEUE_TIMEOUT", &c.QueueTimeout)
	env.int("MAX_CONCURRENT_TRANSFERS", &c.MaxConcurrentTransfers)
	env.string("BARBERSHOP_STYLE", &c.DefaultStyle)
	env.int("BARBERSHOP_SMOOTH", &c.DefaultSmoothness)
	env.int("WORKING_RESOLUTION", &c.Resolution)
	env.float("MAX_ASPECT_RATIO", &c.MaxAspect)
	env.float("ENHANCE_BRIGHTNESS", &c.Enhance.Brightness)
	env.float("ENHANCE_CONTRAST", &c.Enhance.Contrast)
	env.float("ENHANCE_SHARPNESS", &c.Enhance.Sharpness)
	env.float("ENHANCE_SATURATION", &c.Enhance.Saturation)

	env.string("MODEL_BACKEND", &c.Model)
	env.string("BARBERSHOP_PATH", &c.Barbershop.Path)
	env.string("MODEL_REPO_URL", &c.Barbershop.RepoURL)
	env.string("PYTHON", &c.Barbershop.Python)
	env.int("ALIGNMENT_SEED", &c.Barbershop.Seed)
	env.seconds("ALIGN_TIMEOUT", &c.Barbershop.AlignTimeout)
	env.string("REMOTE_MODEL_URL", &c.Remote.URL)
	env.string("REMOTE_MODEL_KEY", &c.Remote.Key)
	env.string("REMOTE_MODEL_KEY_PARAM", &c.Remote.KeyParam)
	env.seconds("REMOTE_SETUP_TIMEOUT", &c.Remote.SetupTimeout)

	env.string("WORK_DIR", &c.WorkDir)
	env.string("HAIRSTYLES_DIR", &c.CatalogDir)
	env.string("EXAMPLES_DIR", &c.ExamplesDir)
	env.string("HISTORY_DB", &c.HistoryPath)
	env.string("BUCKET", &c.Bucket)
	env.string("DISTRIBUTION", &c.Distribution)
	env.string("OUTPUT_DIR", &c.OutputDir)
	env.string("SITE_URL", &c.SiteURL)
	env.string("ADDR", &c.Addr)
	env.float("RATE_LIMIT", &c.RateLimit)
	env.int("RATE_BURST", &c.RateBurst)
	env.string("LOG_LEVEL", &c.LogLevel)
	env.string("LOG_FORMAT", &c.LogFormat)

	return errors.Join(errs...)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("config: "+format, args...))
		}
	}
	check(c.MaxFileSize > 0, "max file size must be positive, got %d", c.MaxFileSize)
	check(c.MinDimension > 0, "min dimension must be positive, got %d", c.MinDimension)
	check(c.ProcessingTimeout > 0, "processing timeout must be positive, got %s", c.ProcessingTimeout)
	check(c.QueueTimeout >= 0, "queue timeout must not be negative, got %s", c.QueueTimeout)
	check(c.MaxConcurrentTransfers >= 1, "max concurrent transfers must be at least 1, got %d", c.MaxConcurrentTransfers)
	check(model.ParseStyle(c.DefaultStyle).Valid(), "default style %q is not realistic or fidelity", c.DefaultStyle)
	check(c.DefaultSmoothness >= model.MinSmoothness && c.DefaultSmoothness <= model.MaxSmoothness,
		"default smoothness %d is outside [%d,%d]", c.DefaultSmoothness, model.MinSmoothness, model.MaxSmoothness)
	check(c.Resolution >= c.MinDimension, "resolution %d is below the min dimension %d", c.Resolution, c.MinDimension)
	check(c.MaxAspect >= 1, "max aspect ratio must be at least 1, got %g", c.MaxAspect)
	check(c.Enhance.Brightness >= 0 && c.Enhance.Contrast >= 0 && c.Enhance.Sharpness >= 0 && c.Enhance.Saturation >= 0,
		"enhancement factors must not be negative")
	check(lo.Contains([]string{BackendBarbershop, BackendRemote, BackendStub}, c.Model), "unknown model backend %q", c.Model)
	check(c.Model != BackendRemote || c.Remote.URL != "", "remote model needs REMOTE_MODEL_URL")
	check(c.RateLimit >= 0 && c.RateBurst >= 0, "rate limit must not be negative")
	return errors.Join(errs...)
}

// Style is the configured default style, normalized.
func (c *Config) Style() model.Style {
	return model.ParseStyle(c.DefaultStyle)
}

type envReader struct {
	errs *[]error
}

func (r envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r envReader) fail(key, value string, err error) {
	*r.errs = append(*r.errs, fmt.Errorf("config: %s=%q: %w", key, value, err))
}

func (r envReader) string(key string, dst *string) {
	if v, ok := r.lookup(key); ok {
		*dst = v
	}
}

func (r envReader) int(key string, dst *int) {
	if v, ok := r.lookup(key); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = i
	}
}

func (r envReader) int64(key string, dst *int64) {
	if v, ok := r.lookup(key); ok {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = i
	}
}

func (r envReader) float(key string, dst *float64) {
	if v, ok := r.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = f
	}
}

// seconds accepts a bare number of seconds or a Go duration string.
func (r envReader) seconds(key string, dst *time.Duration) {
	if v, ok := r.lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			r.fail(key, v, err)
			return
		}
		*dst = d
	}
}
