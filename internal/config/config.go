// Package config loads the launcher defaults that apply to every attach:
// the diagnostic service ports, credentials, artifact locations and port
// search range.
//
// Values are layered, lowest to highest precedence:
//
//  1. env-default tags on Config
//  2. the defaults file (~/.config/diag-attach/config.yaml by default)
//  3. DIAG_ATTACH_* environment variables
//
// Command-line flags are applied on top by the CLI.
//
// cleanenv applies an env-default to every field that is still zero after
// the file was read, so a file cannot switch off telnet-port, http-port or
// session-timeout by setting them to 0: the built-in default comes back.
// Disable a listener with an explicit flag instead (--telnet-port 0).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable that overrides the defaults file location.
const EnvConfigPath = "DIAG_ATTACH_CONFIG"

// Config holds the launcher defaults.
type Config struct {
	TargetIP       string `yaml:"target-ip" json:"target-ip" env:"DIAG_ATTACH_TARGET_IP" env-default:"127.0.0.1"`
	TelnetPort     int    `yaml:"telnet-port" json:"telnet-port" env:"DIAG_ATTACH_TELNET_PORT" env-default:"3658"`
	HTTPPort       int    `yaml:"http-port" json:"http-port" env:"DIAG_ATTACH_HTTP_PORT" env-default:"8563"`
	SessionTimeout int    `yaml:"session-timeout" json:"session-timeout" env:"DIAG_ATTACH_SESSION_TIMEOUT" env-default:"1800"`
	Username       string `yaml:"username,omitempty" json:"username,omitempty" env:"DIAG_ATTACH_USERNAME"`
	Password       string `yaml:"password,omitempty" json:"password,omitempty" env:"DIAG_ATTACH_PASSWORD"`
	TunnelServer   string `yaml:"tunnel-server,omitempty" json:"tunnel-server,omitempty" env:"DIAG_ATTACH_TUNNEL_SERVER"`
	AgentID        string `yaml:"agent-id,omitempty" json:"agent-id,omitempty" env:"DIAG_ATTACH_AGENT_ID"`
	AppName        string `yaml:"app-name,omitempty" json:"app-name,omitempty" env:"DIAG_ATTACH_APP_NAME"`
	StatURL        string `yaml:"stat-url,omitempty" json:"stat-url,omitempty" env:"DIAG_ATTACH_STAT_URL"`
	AgentPath      string `yaml:"agent-path,omitempty" json:"agent-path,omitempty" env:"DIAG_ATTACH_AGENT_PATH"`
	CorePath       string `yaml:"core-path,omitempty" json:"core-path,omitempty" env:"DIAG_ATTACH_CORE_PATH"`
	PortRangeMin   int    `yaml:"port-range-min" json:"port-range-min" env:"DIAG_ATTACH_PORT_RANGE_MIN" env-default:"1024"`
	PortRangeMax   int    `yaml:"port-range-max" json:"port-range-max" env:"DIAG_ATTACH_PORT_RANGE_MAX" env-default:"65535"`

	// AttachTimeout is a Go duration string such as "6s".
	AttachTimeout string `yaml:"attach-timeout" json:"attach-timeout" env:"DIAG_ATTACH_ATTACH_TIMEOUT" env-default:"6s"`
}

// DefaultPath returns ~/.config/diag-attach/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "diag-attach", "config.yaml"), nil
}

// ResolvePath picks the defaults file: explicit, then $DIAG_ATTACH_CONFIG,
// then DefaultPath.
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, nil
	}
	return DefaultPath()
}

// Load reads the defaults file at path and applies environment overrides.
// A missing file is not an error: the result then comes from the
// environment and the built-in defaults only.
func Load(path string) (*Config, error) {
	var cfg Config

	_, statErr := os.Stat(path)
	switch {
	case path == "" || errors.Is(statErr, fs.ErrNotExist):
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
	case statErr != nil:
		return nil, fmt.Errorf("stat config %s: %w", path, statErr)
	case isJSON(path):
		if err := readJSONC(path, &cfg); err != nil {
			return nil, err
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
	default:
		// yaml, toml and .env files; cleanenv applies the environment too.
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func isJSON(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".json" || ext == ".jsonc"
}

// readJSONC decodes a JSON file that may carry comments and trailing commas.
func readJSONC(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	for name, port := range map[string]int{"telnet-port": c.TelnetPort, "http-port": c.HTTPPort} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%s %d out of range (0-65535)", name, port)
		}
	}
	if c.SessionTimeout < 0 {
		return fmt.Errorf("session-timeout must not be negative, got %d", c.SessionTimeout)
	}
	if c.PortRangeMin < 0 || c.PortRangeMax > 65535 || c.PortRangeMin > c.PortRangeMax {
		return fmt.Errorf("invalid port range [%d, %d]", c.PortRangeMin, c.PortRangeMax)
	}
	if _, err := c.AttachTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// AttachTimeoutDuration parses AttachTimeout. Empty means zero, which lets
// the attach provider use its own default.
func (c *Config) AttachTimeoutDuration() (time.Duration, error) {
	if c.AttachTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.AttachTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid attach-timeout %q: %w", c.AttachTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("attach-timeout must not be negative, got %s", d)
	}
	return d, nil
}

// Masked returns a copy of c with the password hidden.
func (c *Config) Masked() Config {
	masked := *c
	if masked.Password != "" {
		masked.Password = "******"
	}
	return masked
}

// Dump writes cfg as YAML. The password is masked.
func Dump(w io.Writer, cfg *Config) error {
	masked := cfg.Masked()
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&masked); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// Usage describes the recognized environment variables.
func Usage() (string, error) {
	var cfg Config
	return cleanenv.GetDescription(&cfg, nil)
}
