package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Resources Resources `yaml:"resources"`
	Site      Site      `yaml:"site"`
	Server    Server    `yaml:"server"`
	GenAI     GenAI     `yaml:"genai"`
	Logging   Logging   `yaml:"logging"`
}

type Resources struct {
	// Dir is the root of the persisted file layout: talks/, events/, public/.
	Dir string `yaml:"dir"`
}

type Site struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	// BaseURL is the absolute URL prefix used for og: tags; optional.
	BaseURL string `yaml:"base_url"`
	// ProxyPath is prepended to generated links when the app sits behind
	// a path-rewriting reverse proxy.
	ProxyPath string `yaml:"proxy_path"`
	Language  string `yaml:"language"`
}

type Server struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

type GenAI struct {
	BaseURL            string  `yaml:"base_url"`
	APIKeyEnv          string  `yaml:"api_key_env"`
	Model              string  `yaml:"model"`
	ImageModel         string  `yaml:"image_model"`
	TranscriptionModel string  `yaml:"transcription_model"`
	CompetenceURL      string  `yaml:"competence_url"`
	MaxTokens          int     `yaml:"max_tokens"`
	Temperature        float64 `yaml:"temperature"`
	TimeoutSeconds     int     `yaml:"timeout_seconds"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for mootscribe.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "mootscribe")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/mootscribe/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'mootscribe init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file. A .env file in the working
// directory is loaded first so API keys can live outside the config;
// a missing .env is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Resources: Resources{Dir: "resources"},
		Site: Site{
			Title:    "Talk Documentation",
			Language: "de",
		},
		Server: Server{Port: 7860, Host: "127.0.0.1"},
		GenAI: GenAI{
			BaseURL:        "https://api.openai.com/v1",
			APIKeyEnv:      "OPENAI_API_KEY",
			Model:          "gpt-4o-mini",
			ImageModel:     "dall-e-3",
			MaxTokens:      2000,
			Temperature:    0.7,
			TimeoutSeconds: 120,
		},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// APIKey resolves the generation API key from the configured env var.
func (c *Config) APIKey() string {
	return os.Getenv(c.GenAI.APIKeyEnv)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
