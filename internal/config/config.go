package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "ROOMCHAT"

const (
	StoreFiles = "files"
	StoreBolt  = "bolt"
)

type Config struct {
	Addr            string
	DataDir         string
	AdminAddr       string
	Store           string
	LogLevel        string
	ShutdownTimeout time.Duration
	ExpiryInterval  time.Duration
	StaleAfter      time.Duration
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Addr:            "127.0.0.1:15535",
		DataDir:         "data",
		AdminAddr:       "localhost:15536",
		Store:           StoreFiles,
		LogLevel:        "info",
		ShutdownTimeout: 5 * time.Second,
		ExpiryInterval:  time.Second,
		StaleAfter:      5000 * time.Millisecond,
	}
}

// Load resolves configuration. Precedence: defaults < config file <
// ROOMCHAT_* environment variables. An empty path skips the file.
//
// The config file is plain text: the first whitespace-separated token is the
// listen address, the second is the data directory.
func Load(path string) (*Config, error) {
	def := Default()

	v := viper.New()
	v.SetDefault("addr", def.Addr)
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("admin_addr", def.AdminAddr)
	v.SetDefault("store", def.Store)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout)
	v.SetDefault("expiry_interval", def.ExpiryInterval)
	v.SetDefault("stale_after", def.StaleAfter)

	if path != "" {
		addr, dataDir, err := readFile(path)
		if err != nil {
			return nil, err
		}
		// File values sit between defaults and the environment.
		if addr != "" {
			v.SetDefault("addr", addr)
		}
		if dataDir != "" {
			v.SetDefault("data_dir", dataDir)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Addr:            v.GetString("addr"),
		DataDir:         v.GetString("data_dir"),
		AdminAddr:       v.GetString("admin_addr"),
		Store:           v.GetString("store"),
		LogLevel:        v.GetString("log_level"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		ExpiryInterval:  v.GetDuration("expiry_interval"),
		StaleAfter:      v.GetDuration("stale_after"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse reads the listen address and data directory from config file
// contents. Tokens past the second are ignored.
func Parse(contents string) (addr, dataDir string) {
	fields := strings.Fields(contents)
	if len(fields) > 0 {
		addr = fields[0]
	}
	if len(fields) > 1 {
		dataDir = fields[1]
	}
	return addr, dataDir
}

func readFile(path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read config: %w", err)
	}
	addr, dataDir := Parse(string(data))
	return addr, dataDir, nil
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("listen address is required")
	}

	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}

	if c.Store != StoreFiles && c.Store != StoreBolt {
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, StoreFiles, StoreBolt)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be greater than 0")
	}

	if c.ExpiryInterval <= 0 {
		return fmt.Errorf("expiry interval must be greater than 0")
	}

	if c.StaleAfter <= 0 {
		return fmt.Errorf("stale threshold must be greater than 0")
	}

	return nil
}
