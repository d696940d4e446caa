package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	domain "github.com/bryanwahyu/cu-relay/internal/domain/analysis"
)

// Env vars for secrets; they override whatever is in the yaml file.
const (
	EnvSubscriptionKey = "CU_SUBSCRIPTION_KEY"
	EnvAADToken        = "CU_AAD_TOKEN"
	EnvDBPassword      = "DB_PASSWORD"
	EnvMinioSecretKey  = "MINIO_SECRET_KEY"
)

type Config struct {
	Server struct {
		Port           int           `yaml:"port"`
		ReadTimeout    time.Duration `yaml:"readTimeout"`
		WriteTimeout   time.Duration `yaml:"writeTimeout"`
		AllowedOrigins []string      `yaml:"allowedOrigins"`
	} `yaml:"server"`

	ContentUnderstanding struct {
		Endpoint        string        `yaml:"endpoint"`
		APIVersion      string        `yaml:"apiVersion"`
		AnalyzerID      string        `yaml:"analyzerId"`
		SubscriptionKey string        `yaml:"subscriptionKey"`
		AADToken        string        `yaml:"aadToken"`
		UserAgent       string        `yaml:"userAgent"`
		RequestTimeout  time.Duration `yaml:"requestTimeout"`
		PollTimeout     time.Duration `yaml:"pollTimeout"`
		PollInterval    time.Duration `yaml:"pollInterval"`
	} `yaml:"contentUnderstanding"`

	Input struct {
		// LocalRoot enables local file inputs below this directory; empty allows URLs only.
		LocalRoot string `yaml:"localRoot"`
	} `yaml:"input"`

	Auth struct {
		// APIKeys maps tenant -> key. Empty disables inbound auth.
		APIKeys map[string]string `yaml:"apiKeys"`
	} `yaml:"auth"`

	RateLimit struct {
		Capacity   int `yaml:"capacity"`
		RefillRate int `yaml:"refillRate"`
	} `yaml:"rateLimit"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres | "" (disabled)
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`
}

// Load baca file config.yaml; a missing file yields defaults plus env secrets.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	cu := &c.ContentUnderstanding
	if cu.APIVersion == "" {
		cu.APIVersion = "2024-12-01-preview"
	}
	if cu.UserAgent == "" {
		cu.UserAgent = "cu-sample-code"
	}
	if cu.RequestTimeout == 0 {
		cu.RequestTimeout = 60 * time.Second
	}
	if cu.PollTimeout == 0 {
		cu.PollTimeout = time.Hour
	}
	if cu.PollInterval == 0 {
		cu.PollInterval = time.Second
	}
	// the analyze handler blocks for the whole poll budget
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = cu.PollTimeout + 30*time.Second
	}
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case "mysql":
			c.Database.Port = 3306
		case "postgres":
			c.Database.Port = 5432
		}
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Minio.BucketName == "" {
		c.Minio.BucketName = "analysis-results"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvSubscriptionKey); v != "" {
		c.ContentUnderstanding.SubscriptionKey = v
	}
	if v := os.Getenv(EnvAADToken); v != "" {
		c.ContentUnderstanding.AADToken = v
	}
	if v := os.Getenv(EnvDBPassword); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv(EnvMinioSecretKey); v != "" {
		c.Minio.SecretKey = v
	}
}

// Validate checks what the relay cannot start without.
func (c *Config) Validate() error {
	cu := c.ContentUnderstanding
	if cu.Endpoint == "" {
		return errors.New("contentUnderstanding.endpoint is required")
	}
	if cu.SubscriptionKey == "" && cu.AADToken == "" {
		return fmt.Errorf("either %s or %s must be set", EnvSubscriptionKey, EnvAADToken)
	}
	if cu.PollInterval <= 0 || cu.PollTimeout <= 0 {
		return errors.New("contentUnderstanding.pollTimeout and pollInterval must be positive")
	}
	switch c.Database.Driver {
	case "", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database.driver %q (allowed: mysql, postgres)", c.Database.Driver)
	}
	return nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// AnalysisSettings maps the contentUnderstanding block onto the client settings record.
func (c *Config) AnalysisSettings() domain.Settings {
	cu := c.ContentUnderstanding
	return domain.Settings{
		Endpoint:        cu.Endpoint,
		APIVersion:      cu.APIVersion,
		SubscriptionKey: cu.SubscriptionKey,
		AADToken:        cu.AADToken,
		AnalyzerID:      cu.AnalyzerID,
		UserAgent:       cu.UserAgent,
	}
}

// Redacted returns a copy safe to log: secrets are masked.
func (c *Config) Redacted() Config {
	out := *c
	out.ContentUnderstanding.SubscriptionKey = mask(out.ContentUnderstanding.SubscriptionKey)
	out.ContentUnderstanding.AADToken = mask(out.ContentUnderstanding.AADToken)
	out.Database.Password = mask(out.Database.Password)
	out.Minio.SecretKey = mask(out.Minio.SecretKey)
	if len(c.Auth.APIKeys) > 0 {
		keys := make(map[string]string, len(c.Auth.APIKeys))
		for tenant, k := range c.Auth.APIKeys {
			keys[tenant] = mask(k)
		}
		out.Auth.APIKeys = keys
	}
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
