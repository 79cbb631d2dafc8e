package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

const (
	configDirName = "gpt-markup-preview"
	defaultConfig = ".config"
)

var configFiles = []string{
	"config.yaml",
	"config.yml",
}

// Config represents the structure of the configuration file used by the application.
type Config struct {
	Endpoint     string            `yaml:"endpoint" default:"https://api.openai.com/v1"`
	Model        string            `yaml:"model" default:"gpt-3.5-turbo"`
	SystemPrompt string            `yaml:"system_prompt" default:"You are a markup assistant for programmers."`
	APIKeyEnv    string            `yaml:"api_key_env" default:"OPENAI_API_KEY"`
	Timeout      time.Duration     `yaml:"timeout"`
	Render       Render            `yaml:"render"`
	Preview      Preview           `yaml:"preview"`
	Prompts      map[string]Prompt `yaml:"prompts"`
}

// Render controls how the streamed answer is printed.
type Render struct {
	Format string `yaml:"format" default:"markdown"`
	Theme  string `yaml:"theme"`
	Wrap   int    `yaml:"wrap" default:"120"`
}

// Preview controls where the generated HTML preview is written.
type Preview struct {
	Disabled bool   `yaml:"disabled"`
	Output   string `yaml:"output" default:"preview.html"`
}

// Prompt is a predefined prompt exposed as a subcommand.
type Prompt struct {
	Prompt string `yaml:"prompt"`
	Model  string `yaml:"model"`
}

// configResult is a struct used to return the configuration and any error that occurs during loading.
type configResult struct {
	config *Config
	err    error
}

// NewDefaultConfig creates a configuration with every default applied.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg) // fails only on malformed tags
	if cfg.Prompts == nil {
		cfg.Prompts = map[string]Prompt{}
	}
	return cfg
}

// Dir returns the configuration directory, honouring XDG_CONFIG_HOME.
func Dir() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		configHome = filepath.Join(home, defaultConfig)
	}

	return filepath.Join(configHome, configDirName), nil
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}
	if cfg.Prompts == nil {
		cfg.Prompts = map[string]Prompt{}
	}
	return cfg, nil
}

// tryLoadConfig attempts to load a configuration file from the specified path.
func tryLoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// LoadConfig loads the configuration from the user's config directory, with a timeout.
func LoadConfig(ctx context.Context) (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return LoadConfigFrom(ctx, dir)
}

// LoadConfigFrom loads the first configuration file found in dir. A missing
// directory or file yields the defaults.
func LoadConfigFrom(ctx context.Context, dir string) (*Config, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result := make(chan configResult, 1)

	go func() {
		cfg, err := loadConfigFiles(ctx, dir)
		result <- configResult{config: cfg, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-result:
		return r.config, r.err
	}
}

// loadConfigFiles loads configuration files from dir.
func loadConfigFiles(ctx context.Context, dir string) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error before loading config: %w", err)
	}

	// Return default config early if directory doesn't exist
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return NewDefaultConfig(), nil
	}

	for _, filename := range configFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cfg, err := tryLoadConfig(filepath.Join(dir, filename))
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config from %s: %w", filename, err)
		}
	}

	return NewDefaultConfig(), nil
}
