package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.TargetIP)
	assert.Equal(t, 3658, cfg.TelnetPort)
	assert.Equal(t, 8563, cfg.HTTPPort)
	assert.Equal(t, 1800, cfg.SessionTimeout)
	assert.Equal(t, 1024, cfg.PortRangeMin)
	assert.Equal(t, 65535, cfg.PortRangeMax)
	assert.Equal(t, "6s", cfg.AttachTimeout)
	assert.Empty(t, cfg.AgentPath)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
target-ip: 0.0.0.0
telnet-port: 4000
agent-path: /opt/diag/agent.jar
core-path: /opt/diag/core.jar
app-name: orders
attach-timeout: 10s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.TargetIP)
	assert.Equal(t, 4000, cfg.TelnetPort)
	assert.Equal(t, 8563, cfg.HTTPPort, "unset keys keep their default")
	assert.Equal(t, "/opt/diag/agent.jar", cfg.AgentPath)
	assert.Equal(t, "/opt/diag/core.jar", cfg.CorePath)
	assert.Equal(t, "orders", cfg.AppName)

	d, err := cfg.AttachTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)
}

// A zero in the file is indistinguishable from an absent key, so the
// built-in default is restored; listeners are switched off with a flag.
func TestLoad_ZeroInFileRestoresDefault(t *testing.T) {
	path := writeFile(t, "config.yaml", "telnet-port: 0\nhttp-port: 0\nsession-timeout: 0\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3658, cfg.TelnetPort)
	assert.Equal(t, 8563, cfg.HTTPPort)
	assert.Equal(t, 1800, cfg.SessionTimeout)
}

func TestLoad_JSONCWithComments(t *testing.T) {
	path := writeFile(t, "config.jsonc", `{
	// service ports
	"telnet-port": 5000,
	"http-port": 5001, /* inline */
	"agent-id": "node-7",
}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.TelnetPort)
	assert.Equal(t, 5001, cfg.HTTPPort)
	assert.Equal(t, "node-7", cfg.AgentID)
	assert.Equal(t, "127.0.0.1", cfg.TargetIP)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "telnet-port: 4000\napp-name: orders\n")
	t.Setenv("DIAG_ATTACH_TELNET_PORT", "4100")
	t.Setenv("DIAG_ATTACH_USERNAME", "admin")
	t.Setenv("DIAG_ATTACH_PASSWORD", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4100, cfg.TelnetPort)
	assert.Equal(t, "orders", cfg.AppName)
	assert.Equal(t, "admin", cfg.Username)
	assert.Equal(t, "secret", cfg.Password)
}

func TestLoad_EnvironmentOverridesJSONC(t *testing.T) {
	path := writeFile(t, "config.json", `{"http-port": 5001}`)
	t.Setenv("DIAG_ATTACH_HTTP_PORT", "6001")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6001, cfg.HTTPPort)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{name: "port out of range", file: "c.yaml", content: "telnet-port: 70000\n", wantErr: "out of range"},
		{name: "inverted range", file: "c.yaml", content: "port-range-min: 9000\nport-range-max: 8000\n", wantErr: "invalid port range"},
		{name: "bad timeout", file: "c.yaml", content: "attach-timeout: soon\n", wantErr: "invalid attach-timeout"},
		{name: "malformed json", file: "c.json", content: "{", wantErr: "parse config"},
		{name: "malformed yaml", file: "c.yaml", content: "telnet-port: [\n", wantErr: "read config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	got, err := ResolvePath("/etc/diag.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/etc/diag.yaml", got)

	t.Setenv(EnvConfigPath, "/srv/diag.json")
	got, err = ResolvePath("")
	require.NoError(t, err)
	assert.Equal(t, "/srv/diag.json", got)

	t.Setenv(EnvConfigPath, "")
	got, err = ResolvePath("")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(got, filepath.Join(".config", "diag-attach", "config.yaml")), got)
}

func TestDump_MasksPassword(t *testing.T) {
	cfg := &Config{
		TargetIP:      "127.0.0.1",
		TelnetPort:    3658,
		Username:      "admin",
		Password:      "secret",
		PortRangeMax:  65535,
		AttachTimeout: "6s",
	}

	var buf bytes.Buffer
	require.NoError(t, Dump(&buf, cfg))
	assert.NotContains(t, buf.String(), "secret")
	assert.Equal(t, "secret", cfg.Password, "caller's value is untouched")

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "******", decoded["password"])
	assert.Equal(t, 3658, decoded["telnet-port"])
	assert.NotContains(t, decoded, "agent-path")
}

func TestUsage(t *testing.T) {
	usage, err := Usage()
	require.NoError(t, err)
	assert.Contains(t, usage, "DIAG_ATTACH_TELNET_PORT")
}
