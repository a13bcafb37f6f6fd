// Package config loads the bot configuration from a YAML file with
// environment expansion. A .env file, when present, is loaded first so
// ${VAR} references in the YAML can point at local secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration unmarshals human-readable YAML durations ("500ms", "1m30s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type ExchangeConfig struct {
	Name       string `yaml:"name"`
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	Passphrase string `yaml:"passphrase"`

	RESTEndpoint string `yaml:"rest_endpoint"`
	WSPublic     string `yaml:"ws_public"`
	WSPrivate    string `yaml:"ws_private"`

	ProductType string `yaml:"product_type"`
	MarginCoin  string `yaml:"margin_coin"`

	Timeout       Duration `yaml:"timeout"`
	MaxAttempts   int      `yaml:"max_attempts"`
	MinRequestGap Duration `yaml:"min_request_gap"`
	CacheTTL      Duration `yaml:"cache_ttl"`
}

type BotConfig struct {
	ID       string   `yaml:"id"`
	Exchange string   `yaml:"exchange"`
	Interval Duration `yaml:"interval"`
}

type BreakerConfig struct {
	MaxErrors int      `yaml:"max_errors"`
	Window    Duration `yaml:"window"`
	Cooldown  Duration `yaml:"cooldown"`
}

type Config struct {
	Exchanges []ExchangeConfig `yaml:"exchanges"`
	Bots      []BotConfig      `yaml:"bots"`
	Breaker   BreakerConfig    `yaml:"breaker"`
	Journal   struct {
		Path string `yaml:"path"`
	} `yaml:"journal"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Load reads the YAML file at path. A .env alongside the process is
// loaded best-effort before expansion; missing env vars expand to "".
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Exchange returns the exchange section with the given name.
func (c *Config) Exchange(name string) (*ExchangeConfig, error) {
	for i := range c.Exchanges {
		if c.Exchanges[i].Name == name {
			return &c.Exchanges[i], nil
		}
	}
	return nil, fmt.Errorf("exchange %q not configured", name)
}
