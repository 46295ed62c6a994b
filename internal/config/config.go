package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port         string `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		IdleTimeout  string `yaml:"idle_timeout"`
		// PublicURL is the address players open to join; encoded in the join QR code.
		// Empty means http://localhost on the listen port.
		PublicURL string `yaml:"public_url"`
	} `yaml:"server"`
	Data struct {
		// Dir holds players.txt, answers.txt and questions.txt. MemoryDataDir keeps records in memory.
		Dir string `yaml:"dir"`
	} `yaml:"data"`
	Round struct {
		TimerUnit  string `yaml:"timer_unit"`
		ReadyGrace string `yaml:"ready_grace"`
		QueueSize  int    `yaml:"queue_size"`
	} `yaml:"round"`
	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Kafka struct {
		Enabled bool     `yaml:"enabled"`
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// MemoryDataDir as data dir selects the in-memory record store.
const MemoryDataDir = ":memory:"

// DefaultConfig is used when no config file exists.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

// JoinURL is the player join page. It follows the final listen port when no public URL is set.
func (c Config) JoinURL() string {
	base := strings.TrimRight(c.Server.PublicURL, "/")
	if base == "" {
		base = "http://localhost:" + c.Server.Port
	}
	return base + "/join"
}

// Load reads YAML config from path, expanding ${VAR} references first.
// A missing file yields DefaultConfig.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "3000"
	}
	if c.Data.Dir == "" {
		c.Data.Dir = "data"
	}
	if c.Round.TimerUnit == "" {
		c.Round.TimerUnit = "1s"
	}
	if c.Round.ReadyGrace == "" {
		c.Round.ReadyGrace = "2s"
	}
	if c.Round.QueueSize <= 0 {
		c.Round.QueueSize = 256
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "quiz"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "quiz-events"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
