package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"

	"cropyield/logging"
)

type Config struct {
	Database struct {
		Path string `yaml:"path" env:"CROPYIELD_DB_PATH"`
	} `yaml:"database"`
	Http struct {
		Port           int           `yaml:"port" env:"CROPYIELD_HTTP_PORT"`
		Timeout        time.Duration `yaml:"timeout" env:"CROPYIELD_HTTP_TIMEOUT"`
		MaxBodyBytes   int64         `yaml:"max_body_bytes" env:"CROPYIELD_HTTP_MAX_BODY_BYTES"`
		AllowedOrigins []string      `yaml:"allowed_origins" env:"CROPYIELD_HTTP_ALLOWED_ORIGINS" envSeparator:","`
	} `yaml:"http"`
	Log logging.Config `yaml:"log"`
	ML  struct {
		ModelType  string `yaml:"model_type" env:"CROPYIELD_MODEL_TYPE"`
		ModelPath  string `yaml:"model_path" env:"CROPYIELD_MODEL_PATH"`
		CacheSize  int    `yaml:"cache_size" env:"CROPYIELD_MODEL_CACHE_SIZE"`
		WatchModel bool   `yaml:"watch_model" env:"CROPYIELD_WATCH_MODEL"`
	} `yaml:"ml"`
}

// Default returns the configuration used for keys absent from the file.
func Default() *Config {
	cfg := &Config{}
	cfg.Database.Path = "./data/cropyield.db"
	cfg.Http.Port = 8080
	cfg.Http.Timeout = 30 * time.Second
	cfg.Http.MaxBodyBytes = 10 << 20
	cfg.Http.AllowedOrigins = []string{"*"}
	cfg.Log = logging.Config{Level: "info", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28}
	cfg.ML.ModelType = "random_forest"
	cfg.ML.ModelPath = "./models/random_forest_model.json"
	cfg.ML.CacheSize = 4
	cfg.ML.WatchModel = true
	return cfg
}

// Load reads the YAML file at path over the defaults, then applies
// CROPYIELD_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.Http.Port))
	}
	if c.Http.Timeout <= 0 {
		errs = append(errs, errors.New("http.timeout must be positive"))
	}
	if c.ML.ModelPath == "" {
		errs = append(errs, errors.New("ml.model_path is required"))
	}
	switch c.ML.ModelType {
	case "decision_tree", "random_forest":
	default:
		errs = append(errs, fmt.Errorf("ml.model_type %q is not supported", c.ML.ModelType))
	}
	return errors.Join(errs...)
}
