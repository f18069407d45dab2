package config

import (
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"bancored/crypto"
)

// Environment variable names. Each one overrides the TOML value of the same
// concern.
const (
	EnvServerHost    = "SERVER_HOST"
	EnvServerPort    = "SERVER_PORT"
	EnvDBPath        = "DB_PATH"
	EnvLogLevel      = "LOG_LEVEL"
	EnvLogFile       = "LOG_FILE"
	EnvSharedKey     = "SHARED_KEY"
	EnvSharedKeyFile = "SHARED_KEY_FILE"
)

// DefaultSharedKeyFile is consulted when neither SHARED_KEY nor an explicit key
// file is configured. It holds the raw 32 key bytes.
const DefaultSharedKeyFile = "config/shared_key.key"

// Config holds the server's runtime settings.
type Config struct {
	ServerHost    string `toml:"ServerHost"`
	ServerPort    int    `toml:"ServerPort"`
	DBPath        string `toml:"DBPath"`
	LogLevel      string `toml:"LogLevel"`
	LogFile       string `toml:"LogFile"`
	SharedKeyFile string `toml:"SharedKeyFile"`
}

func defaults() *Config {
	return &Config{
		ServerHost:    "127.0.0.1",
		ServerPort:    5000,
		DBPath:        "./database/usuarios.db",
		LogLevel:      "INFO",
		SharedKeyFile: DefaultSharedKeyFile,
	}
}

// Load reads the configuration from the given TOML path, applies environment
// overrides, and validates the result. A missing file is not an error; the
// defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path = strings.TrimSpace(path); path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvServerHost)); v != "" {
		c.ServerHost = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerPort)); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvServerPort, err)
		}
		c.ServerPort = port
	}
	if v := strings.TrimSpace(os.Getenv(EnvDBPath)); v != "" {
		c.DBPath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		c.LogFile = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSharedKeyFile)); v != "" {
		c.SharedKeyFile = v
	}
	return nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.ServerHost) == "" {
		return fmt.Errorf("ServerHost must not be empty")
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("ServerPort %d out of range", c.ServerPort)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("DBPath must not be empty")
	}
	return nil
}

// ListenAddr returns the host:port the server binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.ServerHost, strconv.Itoa(c.ServerPort))
}

// SharedKey resolves the HMAC key: the SHARED_KEY environment variable
// (base64) wins, then the configured key file (raw bytes). Startup fails fast
// when neither yields exactly the key size; the key is never logged.
func (c *Config) SharedKey() ([]byte, error) {
	if encoded := strings.TrimSpace(os.Getenv(EnvSharedKey)); encoded != "" {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", EnvSharedKey, err)
		}
		if len(key) != crypto.KeySize {
			return nil, fmt.Errorf("%s must decode to %d bytes, got %d", EnvSharedKey, crypto.KeySize, len(key))
		}
		return key, nil
	}
	file := strings.TrimSpace(c.SharedKeyFile)
	if file == "" {
		file = DefaultSharedKeyFile
	}
	key, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("no shared key available: set %s or provide %s: %w", EnvSharedKey, file, err)
	}
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("key file %s must hold %d bytes, got %d", file, crypto.KeySize, len(key))
	}
	return key, nil
}
