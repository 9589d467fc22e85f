// Package config loads the service configuration from a JSON file, an
// optional .env file and the process environment, in that order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/postforge/postforge/generator"
	"github.com/postforge/postforge/pipeline"
	"github.com/postforge/postforge/store"
)

// Config is the whole service configuration.
type Config struct {
	LLM         LLMConfig         `json:"llm"`
	Image       ImageConfig       `json:"image"`
	Pipeline    PipelineConfig    `json:"pipeline"`
	Preferences PreferencesConfig `json:"preferences"`
	Storage     StorageConfig     `json:"storage"`
	Images      ImagesConfig      `json:"images"`
	Notify      NotifyConfig      `json:"notify"`
	ServerAddr  string            `json:"server_addr,omitempty"`
}

type LLMConfig struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model,omitempty"`
	APIKey      string  `json:"api_key,omitempty"`
	BaseURL     string  `json:"base_url,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxRetries  int     `json:"max_retries,omitempty"`
	RPS         float64 `json:"rps,omitempty"`
	Burst       int     `json:"burst,omitempty"`
	// Judge enables the LLM tone/style review on top of the rubric.
	Judge bool `json:"judge,omitempty"`
}

type ImageConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}

type PipelineConfig struct {
	MaxIterations      int      `json:"max_iterations"`
	MaxSourceChars     int      `json:"max_source_chars,omitempty"`
	ExtractTimeout     Duration `json:"extract_timeout"`
	PreferencesTimeout Duration `json:"preferences_timeout"`
	GenerateTimeout    Duration `json:"generate_timeout"`
	ReviewTimeout      Duration `json:"review_timeout"`
	RefineTimeout      Duration `json:"refine_timeout"`
	ImageTimeout       Duration `json:"image_timeout"`
	PersistTimeout     Duration `json:"persist_timeout"`
	NotifyTimeout      Duration `json:"notify_timeout"`
}

type PreferencesConfig struct {
	File      string `json:"file,omitempty"`
	DSN       string `json:"dsn,omitempty"`
	CacheSize int    `json:"cache_size,omitempty"`
	// Fallback serves default preferences to users with no stored profile.
	Fallback bool `json:"fallback"`
}

type StorageConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn,omitempty"`
}

type ImagesConfig struct {
	Driver    string `json:"driver"`
	Endpoint  string `json:"endpoint,omitempty"`
	Region    string `json:"region,omitempty"`
	AccessKey string `json:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty"`
	Bucket    string `json:"bucket,omitempty"`
	UseSSL    bool   `json:"use_ssl,omitempty"`
}

type NotifyConfig struct {
	SlackWebhookURL string `json:"slack_webhook_url,omitempty"`
	PreviewURL      string `json:"preview_url,omitempty"`
}

// Duration reads "90s" style strings or a number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string or seconds: %s", b)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Default returns a configuration that runs fully in memory with mock
// providers.
func Default() Config {
	t := pipeline.DefaultConfig().Timeouts
	return Config{
		LLM:   LLMConfig{Provider: "mock", MaxRetries: 3},
		Image: ImageConfig{Provider: "mock"},
		Pipeline: PipelineConfig{
			MaxIterations:      pipeline.DefaultMaxIterations,
			ExtractTimeout:     Duration(t.Resolve),
			PreferencesTimeout: Duration(t.Preferences),
			GenerateTimeout:    Duration(t.Generate),
			ReviewTimeout:      Duration(t.Review),
			RefineTimeout:      Duration(t.Refine),
			ImageTimeout:       Duration(t.Image),
			PersistTimeout:     Duration(t.Persist),
			NotifyTimeout:      Duration(t.Notify),
		},
		Preferences: PreferencesConfig{File: "config/preferences.yaml", CacheSize: 256, Fallback: true},
		Storage:     StorageConfig{Driver: "memory"},
		Images:      ImagesConfig{Driver: "memory", Region: "us-east-1", Bucket: "postforge-images"},
		ServerAddr:  ":8080",
	}
}

// Load reads path over the defaults, then applies .env and environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.LLM.Provider, "POSTFORGE_LLM_PROVIDER")
	setString(&c.LLM.Model, "POSTFORGE_LLM_MODEL")
	setString(&c.LLM.BaseURL, "POSTFORGE_LLM_BASE_URL")
	setString(&c.Image.Provider, "POSTFORGE_IMAGE_PROVIDER")
	setString(&c.Image.Model, "POSTFORGE_IMAGE_MODEL")
	setString(&c.Preferences.File, "POSTFORGE_PREFERENCES_FILE")
	setString(&c.Storage.Driver, "POSTFORGE_STORAGE_DRIVER")
	setString(&c.Images.Driver, "POSTFORGE_IMAGES_DRIVER")
	setString(&c.ServerAddr, "POSTFORGE_SERVER_ADDR")
	setString(&c.Storage.DSN, "DATABASE_URL")
	setString(&c.Images.Endpoint, "S3_ENDPOINT")
	setString(&c.Images.Region, "S3_REGION")
	setString(&c.Images.AccessKey, "S3_ACCESS_KEY")
	setString(&c.Images.SecretKey, "S3_SECRET_KEY")
	setString(&c.Images.Bucket, "S3_BUCKET")
	setString(&c.Notify.SlackWebhookURL, "SLACK_WEBHOOK_URL")

	switch c.LLM.Provider {
	case "openai":
		setString(&c.LLM.APIKey, "OPENAI_API_KEY")
	case "deepseek":
		setString(&c.LLM.APIKey, "DEEPSEEK_API_KEY")
	case "gemini":
		setString(&c.LLM.APIKey, "GEMINI_API_KEY")
	}
	if c.Image.Provider == "gemini" {
		setString(&c.Image.APIKey, "GEMINI_API_KEY")
	}
	if c.Preferences.DSN == "" {
		c.Preferences.DSN = c.Storage.DSN
	}

	if v := os.Getenv("POSTFORGE_MAX_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("POSTFORGE_MAX_ITERATIONS: %w", err)
		}
		c.Pipeline.MaxIterations = n
	}
	if v := os.Getenv("S3_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("S3_USE_SSL: %w", err)
		}
		c.Images.UseSSL = b
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate rejects configurations a pipeline cannot be built from.
func (c Config) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case "mock":
	case "openai", "gemini":
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm provider %s requires an api key", c.LLM.Provider))
		}
	case "deepseek":
		if c.LLM.BaseURL == "" {
			errs = append(errs, errors.New("llm provider deepseek requires base_url (OpenAI-compatible endpoint)"))
		}
	default:
		errs = append(errs, fmt.Errorf("llm provider %q not supported", c.LLM.Provider))
	}
	switch c.Image.Provider {
	case "mock":
	case "gemini":
		if c.Image.APIKey == "" {
			errs = append(errs, errors.New("image provider gemini requires an api key"))
		}
	default:
		errs = append(errs, fmt.Errorf("image provider %q not supported", c.Image.Provider))
	}

	p := c.Pipeline
	if p.MaxIterations < 1 || p.MaxIterations > pipeline.MaxIterationsLimit {
		errs = append(errs, fmt.Errorf("pipeline.max_iterations must be in [1,%d], got %d", pipeline.MaxIterationsLimit, p.MaxIterations))
	}
	if p.MaxSourceChars < 0 {
		errs = append(errs, errors.New("pipeline.max_source_chars must not be negative"))
	}
	for name, d := range map[string]Duration{
		"extract_timeout":     p.ExtractTimeout,
		"preferences_timeout": p.PreferencesTimeout,
		"generate_timeout":    p.GenerateTimeout,
		"review_timeout":      p.ReviewTimeout,
		"refine_timeout":      p.RefineTimeout,
		"image_timeout":       p.ImageTimeout,
		"persist_timeout":     p.PersistTimeout,
		"notify_timeout":      p.NotifyTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("pipeline.%s must be positive", name))
		}
	}

	if c.Preferences.CacheSize < 0 {
		errs = append(errs, errors.New("preferences.cache_size must not be negative"))
	}
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage driver postgres requires a dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage driver %q not supported", c.Storage.Driver))
	}
	switch c.Images.Driver {
	case "memory":
	case "s3":
		if c.Images.Endpoint == "" || c.Images.Bucket == "" {
			errs = append(errs, errors.New("images driver s3 requires endpoint and bucket"))
		}
	default:
		errs = append(errs, fmt.Errorf("images driver %q not supported", c.Images.Driver))
	}
	return errors.Join(errs...)
}

// LLMSettings adapts the llm section for generator.NewLLM.
func (c Config) LLMSettings() generator.LLMSettings {
	return generator.LLMSettings{
		Provider:    c.LLM.Provider,
		Model:       c.LLM.Model,
		APIKey:      c.LLM.APIKey,
		BaseURL:     c.LLM.BaseURL,
		Temperature: c.LLM.Temperature,
		MaxRetries:  c.LLM.MaxRetries,
		RPS:         c.LLM.RPS,
		Burst:       c.LLM.Burst,
	}
}

// PipelineConfig adapts the pipeline section for pipeline.New.
func (c Config) PipelineConfig() pipeline.Config {
	p := c.Pipeline
	return pipeline.Config{
		MaxIterations: p.MaxIterations,
		Timeouts: pipeline.Timeouts{
			Resolve:     time.Duration(p.ExtractTimeout),
			Preferences: time.Duration(p.PreferencesTimeout),
			Generate:    time.Duration(p.GenerateTimeout),
			Review:      time.Duration(p.ReviewTimeout),
			Refine:      time.Duration(p.RefineTimeout),
			Image:       time.Duration(p.ImageTimeout),
			Persist:     time.Duration(p.PersistTimeout),
			Notify:      time.Duration(p.NotifyTimeout),
		},
	}
}

// S3Config adapts the images section for store.NewS3ImageStore.
func (c Config) S3Config() store.S3Config {
	return store.S3Config{
		Endpoint:  c.Images.Endpoint,
		Region:    c.Images.Region,
		AccessKey: c.Images.AccessKey,
		SecretKey: c.Images.SecretKey,
		Bucket:    c.Images.Bucket,
		UseSSL:    c.Images.UseSSL,
	}
}
