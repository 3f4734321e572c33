package models

import (
	"fmt"
	"os"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v2"

	"recordimages/internal/images"
)

// FieldConfig is the yaml form of images.FieldConfig.
type FieldConfig struct {
	Name      string         `yaml:"name"`
	Attribute string         `yaml:"attribute"`
	Extension string         `yaml:"extension"`
	Width     int            `yaml:"width"`
	Height    int            `yaml:"height"`
	Watermark bool           `yaml:"watermark"`
	Multiple  bool           `yaml:"multiple"`
	Quality   images.Quality `yaml:"quality"`
}

// Preset is a variant generated ahead of the first read when an original is stored.
type Preset struct {
	Field   string `yaml:"field"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	Stretch bool   `yaml:"stretch"`
}

type Config struct {
	ServerAddr    string        `yaml:"server_addr"`
	DatabaseURL   string        `yaml:"database_url"`
	KafkaBroker   string        `yaml:"kafka_broker"`
	KafkaTopic    string        `yaml:"kafka_topic"`
	KafkaGroup    string        `yaml:"kafka_group"`
	StoragePath   string        `yaml:"storage_path"`
	WebPath       string        `yaml:"web_path"`
	WatermarkPath string        `yaml:"watermark_path"`
	WatermarkText string        `yaml:"watermark_text"`
	MaxUploadSize string        `yaml:"max_upload_size"`
	LogLevel      string        `yaml:"log_level"`
	LogFormat     string        `yaml:"log_format"`
	Fields        []FieldConfig `yaml:"fields"`
	Presets       []Preset      `yaml:"presets"`

	maxUploadBytes int64
}

// env overrides, applied after the file is parsed.
var envOverrides = map[string]func(*Config) *string{
	"RECORDIMAGES_SERVER_ADDR":  func(c *Config) *string { return &c.ServerAddr },
	"RECORDIMAGES_DATABASE_URL": func(c *Config) *string { return &c.DatabaseURL },
	"RECORDIMAGES_KAFKA_BROKER": func(c *Config) *string { return &c.KafkaBroker },
	"RECORDIMAGES_KAFKA_TOPIC":  func(c *Config) *string { return &c.KafkaTopic },
	"RECORDIMAGES_STORAGE_PATH": func(c *Config) *string { return &c.StoragePath },
	"RECORDIMAGES_WEB_PATH":     func(c *Config) *string { return &c.WebPath },
	"RECORDIMAGES_LOG_LEVEL":    func(c *Config) *string { return &c.LogLevel },
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Finalize applies defaults and environment overrides, then validates.
func (c *Config) Finalize() error {
	const op = "models.Config.Finalize"

	c.loadDefaults()
	for key, field := range envOverrides {
		if v := os.Getenv(key); v != "" {
			*field(c) = v
		}
	}

	size, err := units.FromHumanSize(c.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("%s: invalid max_upload_size: %w", op, err)
	}
	if size <= 0 {
		return fmt.Errorf("%s: max_upload_size must be positive", op)
	}
	c.maxUploadBytes = size

	if c.StoragePath == "" {
		return fmt.Errorf("%s: storage_path required", op)
	}
	for _, p := range c.Presets {
		if p.Width <= 0 || p.Height <= 0 {
			return fmt.Errorf("%s: preset for %q needs a positive size", op, p.Field)
		}
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.KafkaGroup == "" {
		c.KafkaGroup = "image-warmer-group"
	}
	if c.StoragePath == "" {
		c.StoragePath = "./data/images"
	}
	if c.WebPath == "" {
		c.WebPath = "/files"
	}
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = "10MB"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// MaxUploadBytes is max_upload_size in bytes. Valid after Finalize.
func (c *Config) MaxUploadBytes() int64 {
	return c.maxUploadBytes
}

// Images converts the configuration for images.New. Hooks are left unset.
func (c *Config) Images() images.Config {
	cfg := images.Config{
		RootPath:      c.StoragePath,
		WebPath:       c.WebPath,
		WatermarkPath: c.WatermarkPath,
		WatermarkText: c.WatermarkText,
	}
	for _, f := range c.Fields {
		cfg.Fields = append(cfg.Fields, images.FieldConfig{
			Name:      f.Name,
			Attribute: f.Attribute,
			Extension: f.Extension,
			Width:     f.Width,
			Height:    f.Height,
			Watermark: f.Watermark,
			Multiple:  f.Multiple,
			Quality:   f.Quality,
		})
	}
	return cfg
}

// PresetsFor returns the presets configured for a field.
func (c *Config) PresetsFor(field string) []images.Variant {
	var out []images.Variant
	for _, p := range c.Presets {
		if p.Field == field {
			out = append(out, images.Variant{Width: p.Width, Height: p.Height, Stretch: p.Stretch})
		}
	}
	return out
}
