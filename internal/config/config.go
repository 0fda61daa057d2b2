// config — источник загрузки конфигурации клиента.
//
// Источники (по убыванию приоритета):
//  1. явный путь --config;
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. только ENV (cleanenv).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env   string      `yaml:"env" env:"ENV" env-default:"local"`
	API   APIConfig   `yaml:"api"`
	Store StoreConfig `yaml:"store"`
}

// APIConfig — удалённый REST API платформы.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" env:"API_BASE_URL" env-default:"http://127.0.0.1:8000"`
	Timeout time.Duration `yaml:"timeout"  env:"API_TIMEOUT"  env-default:"15s"`
}

// NormalizedBaseURL — базовый URL без завершающего слэша.
func (a APIConfig) NormalizedBaseURL() string {
	return strings.TrimRight(a.BaseURL, "/")
}

// StoreConfig — локальное хранилище сессии.
type StoreConfig struct {
	// Path — путь к файлу сессии; пустой — дефолт в домашнем каталоге.
	Path string `yaml:"path" env:"STORE_PATH" env-default:""`
}

// ResolvePath возвращает путь к файлу сессии, подставляя
// ~/.camera101/session.json по умолчанию.
func (s StoreConfig) ResolvePath() (string, error) {
	if s.Path != "" {
		return s.Path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve session path: %w", err)
	}

	return filepath.Join(home, ".camera101", "session.json"), nil
}

// MustLoad — паника при ошибке загрузки.
func MustLoad(path string) *Config {
	cfg, err := Load(path)

	if err != nil {
		panic(err)
	}

	return cfg
}

func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) --config
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml
	if _, err := os.Stat("local.yaml"); err == nil {
		if err := cleanenv.ReadConfig("local.yaml", &cfg); err != nil {
			return nil, fmt.Errorf("failed to read local.yaml: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 4) только ENV
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}
	return &cfg, nil
}
