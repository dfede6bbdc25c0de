package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalConfiguration() *Configuration {
	return &Configuration{
		PID:       12345,
		AgentPath: "/opt/diag/agent.jar",
		CorePath:  "/opt/diag/core.jar",
	}
}

// TestConfiguration_String_OmitsUnsetFields verifies that a Configuration
// with only the required fields serializes without any optional key, and
// that the result parses back to an identical value.
func TestConfiguration_String_OmitsUnsetFields(t *testing.T) {
	cfg := minimalConfiguration()

	s := cfg.String()
	assert.Equal(t, "pid=12345;agent=/opt/diag/agent.jar;core=/opt/diag/core.jar", s)
	for _, key := range []string{"ip=", "telnetPort=", "httpPort=", "sessionTimeout=",
		"username=", "password=", "tunnelServer=", "agentId=", "appName=", "statUrl="} {
		assert.NotContains(t, s, key)
	}

	parsed, err := ParseConfiguration(s)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)
}

// TestConfiguration_RoundTrip_AllFields covers every field, including values
// that contain the separator and escape characters.
func TestConfiguration_RoundTrip_AllFields(t *testing.T) {
	cfg := &Configuration{
		PID:            1,
		AgentPath:      "%2Ftmp%2Fmy+agent.jar",
		CorePath:       "%2Ftmp%2Fcore.jar",
		TargetIP:       "0.0.0.0",
		TelnetPort:     3658,
		HTTPPort:       8563,
		SessionTimeout: 1800,
		Username:       "admin",
		Password:       `p;a=s\s`,
		TunnelServer:   "ws://127.0.0.1:7777/ws",
		AgentID:        "agent-1",
		AppName:        "orders",
		StatURL:        "http://stats.local/api?x=1;y=2",
	}

	parsed, err := ParseConfiguration(cfg.String())
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)
}

// TestConfiguration_RoundTrip_InvalidUTF8 keeps raw bytes of paths that are
// not valid UTF-8, which the path encoding passes through unmodified.
func TestConfiguration_RoundTrip_InvalidUTF8(t *testing.T) {
	cfg := &Configuration{
		PID:       1,
		AgentPath: "/opt/a\xffb.jar",
		CorePath:  "/opt/c\xfe;d=e.jar",
		AppName:   "caf\xe9",
	}

	parsed, err := ParseConfiguration(cfg.String())
	require.NoError(t, err)
	assert.Equal(t, []byte(cfg.AgentPath), []byte(parsed.AgentPath))
	assert.Equal(t, []byte(cfg.CorePath), []byte(parsed.CorePath))
	assert.Equal(t, []byte(cfg.AppName), []byte(parsed.AppName))

	cfg.CorePath = "/opt/c\xfe.jar"
	core, split, err := SplitAgentArgument(AgentArgument(cfg.CorePath, cfg))
	require.NoError(t, err)
	assert.Equal(t, []byte(cfg.CorePath), []byte(core))
	assert.Equal(t, []byte(cfg.AgentPath), []byte(split.AgentPath))
}

// TestParseConfiguration_Lenient verifies unknown keys and bare segments are
// skipped rather than failing the parse.
func TestParseConfiguration_Lenient(t *testing.T) {
	parsed, err := ParseConfiguration("pid=5;futureKey=x;;garbage;core=/c.jar")
	require.NoError(t, err)
	assert.Equal(t, 5, parsed.PID)
	assert.Equal(t, "/c.jar", parsed.CorePath)
}

// TestParseConfiguration_InvalidInteger verifies malformed numbers are errors.
func TestParseConfiguration_InvalidInteger(t *testing.T) {
	_, err := ParseConfiguration("pid=abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pid")
}

// TestAgentArgument verifies the "<core>;<config>" layout and its inverse.
func TestAgentArgument(t *testing.T) {
	cfg := minimalConfiguration()
	cfg.TelnetPort = 3658

	arg := AgentArgument("%2Fopt%2Fdiag%2Fcore.jar", cfg)
	assert.Equal(t, "%2Fopt%2Fdiag%2Fcore.jar;pid=12345;agent=/opt/diag/agent.jar;core=/opt/diag/core.jar;telnetPort=3658", arg)

	core, parsed, err := SplitAgentArgument(arg)
	require.NoError(t, err)
	assert.Equal(t, "%2Fopt%2Fdiag%2Fcore.jar", core)
	assert.Equal(t, cfg, parsed)

	_, _, err = SplitAgentArgument("no-separator")
	assert.Error(t, err)
}

// TestConfiguration_Validate covers required fields and optional ranges.
func TestConfiguration_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Configuration)
		wantErr string
	}{
		{name: "minimal is valid", mutate: func(c *Configuration) {}},
		{name: "zero pid", mutate: func(c *Configuration) { c.PID = 0 }, wantErr: "pid"},
		{name: "missing agent", mutate: func(c *Configuration) { c.AgentPath = "" }, wantErr: "agent path"},
		{name: "missing core", mutate: func(c *Configuration) { c.CorePath = "" }, wantErr: "core path"},
		{name: "telnet port too high", mutate: func(c *Configuration) { c.TelnetPort = 70000 }, wantErr: "telnet port"},
		{name: "negative http port", mutate: func(c *Configuration) { c.HTTPPort = -1 }, wantErr: "http port"},
		{name: "negative session timeout", mutate: func(c *Configuration) { c.SessionTimeout = -5 }, wantErr: "session timeout"},
		{name: "username without password", mutate: func(c *Configuration) { c.Username = "admin" }, wantErr: "together"},
		{name: "paired credentials", mutate: func(c *Configuration) { c.Username = "admin"; c.Password = "secret" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalConfiguration()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
