// Package config loads the yaml configuration file and applies environment
// overrides. Environment variables win so deployments can keep secrets out
// of the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"database"`

	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`

	NATS struct {
		URL             string `yaml:"url"`
		Subject         string `yaml:"subject"`
		PublishRetryMax int    `yaml:"publish_retry_max"`
	} `yaml:"nats"`

	Auth struct {
		SigningKey string `yaml:"signing_key"`
	} `yaml:"auth"`

	Detector struct {
		BaseURL             string  `yaml:"base_url"`
		APIKey              string  `yaml:"api_key"`
		ModelDir            string  `yaml:"model_dir"`
		ConfidenceThreshold float64 `yaml:"confidence_threshold"`
		TimeoutSeconds      int     `yaml:"timeout_seconds"`
	} `yaml:"detector"`

	FaceIndex struct {
		Threshold   float64 `yaml:"threshold"`
		MinCapacity int     `yaml:"min_capacity"`
	} `yaml:"face_index"`

	Stream struct {
		ProcessIntervalMs int    `yaml:"process_interval_ms"`
		UploadsRoot       string `yaml:"uploads_root"`
	} `yaml:"stream"`
}

// Load reads the yaml file at path (missing file is fine, defaults apply),
// overlays environment variables and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	raw, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if cfg.Auth.SigningKey == "" {
		return nil, errors.New("JWT_SIGNING_KEY is required")
	}
	if cfg.Detector.BaseURL == "" {
		return nil, errors.New("detector base_url is required")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Port, "PORT")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.NATS.URL, "NATS_URL")
	setString(&c.Auth.SigningKey, "JWT_SIGNING_KEY")
	setString(&c.Detector.BaseURL, "DETECTOR_URL")
	setString(&c.Detector.APIKey, "DETECTOR_API_KEY")
	setString(&c.Detector.ModelDir, "DETECTOR_MODEL_DIR")
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "facerecon.detections"
	}
	if c.NATS.PublishRetryMax == 0 {
		c.NATS.PublishRetryMax = 3
	}
	if c.Detector.TimeoutSeconds == 0 {
		c.Detector.TimeoutSeconds = 15
	}
	if c.Stream.ProcessIntervalMs == 0 {
		c.Stream.ProcessIntervalMs = 1000
	}
	if c.Stream.UploadsRoot == "" {
		c.Stream.UploadsRoot = "uploads"
	}
}

// DSN builds the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Name, c.Database.SSLMode)
}

// ProcessInterval returns the per-session frame dispatch throttle.
func (c *Config) ProcessInterval() time.Duration {
	return time.Duration(c.Stream.ProcessIntervalMs) * time.Millisecond
}

// DetectorTimeout returns the per-call detector deadline.
func (c *Config) DetectorTimeout() time.Duration {
	return time.Duration(c.Detector.TimeoutSeconds) * time.Second
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
