package main

import (
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/nicebartender/claudio-bot/ws"
)

const memoryDB = ":memory:"

// Config is read from an optional TOML file named by BOT_CONFIG, then from
// the environment. Environment values win over the file.
type Config struct {
	ListenAddr  string        `toml:"addr" env:"BOT_ADDR"`
	Port        string        `toml:"-" env:"PORT"`
	DBPath      string        `toml:"db" env:"BOT_DB"`
	Prefix      string        `toml:"prefix" env:"BOT_PREFIX"`
	Owners      []uint64      `toml:"owners" env:"BOT_OWNERS" envSeparator:","`
	BridgeKey   string        `toml:"bridge_public_key" env:"BOT_BRIDGE_PUBLIC_KEY"`
	LogLevel    string        `toml:"log_level" env:"BOT_LOG_LEVEL"`
	NotifyDelay time.Duration `toml:"notify_delay" env:"BOT_NOTIFY_DELAY"`
	CallTimeout time.Duration `toml:"call_timeout" env:"BOT_CALL_TIMEOUT"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if path := os.Getenv("BOT_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(os.ExpandEnv(path), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		// Railway, Render, etc. set PORT
		if c.Port != "" {
			c.ListenAddr = ":" + c.Port
		} else {
			c.ListenAddr = ":8090"
		}
	}
	if c.DBPath == "" {
		c.DBPath = "claudio-bot.db"
	}
	if c.Prefix == "" {
		c.Prefix = "!"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.NotifyDelay == 0 {
		c.NotifyDelay = 8 * time.Second
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 30 * time.Second
	}
}

func (c Config) Validate() error {
	if c.Prefix == "" {
		return fmt.Errorf("command prefix must not be empty")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.PublicKey(); err != nil {
		return fmt.Errorf("bridge public key: %w", err)
	}
	return nil
}

func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// PublicKey returns the bridge key, or nil when none is configured.
func (c Config) PublicKey() (ed25519.PublicKey, error) {
	if c.BridgeKey == "" {
		return nil, nil
	}
	return ws.DecodeKey(c.BridgeKey)
}
