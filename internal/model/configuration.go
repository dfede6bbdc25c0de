package model

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultTargetIP is the address the injected diagnostic service binds to
// when no target IP is configured.
const DefaultTargetIP = "127.0.0.1"

// Serialization separators. A Configuration is flattened into
// "key=value" segments joined by ';'. The same ';' also separates the core
// artifact path from the serialized Configuration in the agent argument.
const (
	segmentSeparator byte = ';'
	kvSeparator      byte = '='
	escapeChar       byte = '\\'
)

// Configuration keys as they appear in the serialized form.
const (
	keyPID            = "pid"
	keyAgent          = "agent"
	keyCore           = "core"
	keyTargetIP       = "ip"
	keyTelnetPort     = "telnetPort"
	keyHTTPPort       = "httpPort"
	keySessionTimeout = "sessionTimeout"
	keyUsername       = "username"
	keyPassword       = "password"
	keyTunnelServer   = "tunnelServer"
	keyAgentID        = "agentId"
	keyAppName        = "appName"
	keyStatURL        = "statUrl"
)

// Configuration is the record handed to the injected agent.
//
// It is built once from command-line input and launcher defaults. The only
// mutation after the build is the rewrite of AgentPath and CorePath into their
// transport-safe encoding, done by the attach orchestrator right before the
// injection.
//
// Zero values mean "unset" for every optional field; unset fields are omitted
// from the serialized form rather than written as empty strings.
type Configuration struct {
	// PID is the target process identifier. Required, > 0.
	PID int `json:"pid" yaml:"pid"`

	// AgentPath is the agent artifact loaded into the target. Required.
	AgentPath string `json:"agentPath" yaml:"agent-path"`

	// CorePath is the core artifact the agent bootstraps. Required.
	CorePath string `json:"corePath" yaml:"core-path"`

	// TargetIP is the address the diagnostic service binds to inside the
	// target. Defaults to DefaultTargetIP when empty at build time.
	TargetIP string `json:"targetIp,omitempty" yaml:"target-ip,omitempty"`

	// TelnetPort and HTTPPort are the listener ports of the diagnostic
	// service. 0 means unset.
	TelnetPort int `json:"telnetPort,omitempty" yaml:"telnet-port,omitempty"`
	HTTPPort   int `json:"httpPort,omitempty" yaml:"http-port,omitempty"`

	// SessionTimeout is the idle session timeout in seconds. 0 means unset.
	SessionTimeout int `json:"sessionTimeout,omitempty" yaml:"session-timeout,omitempty"`

	// Username and Password must be set together.
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"-" yaml:"-"`

	TunnelServer string `json:"tunnelServer,omitempty" yaml:"tunnel-server,omitempty"`
	AgentID      string `json:"agentId,omitempty" yaml:"agent-id,omitempty"`
	AppName      string `json:"appName,omitempty" yaml:"app-name,omitempty"`
	StatURL      string `json:"statUrl,omitempty" yaml:"stat-url,omitempty"`
}

// Validate checks the required fields and the value ranges of the optional
// ones. It does not modify the Configuration.
func (c *Configuration) Validate() error {
	if c.PID <= 0 {
		return fmt.Errorf("configuration: pid must be > 0, got %d", c.PID)
	}
	if c.AgentPath == "" {
		return fmt.Errorf("configuration: agent path must not be empty")
	}
	if c.CorePath == "" {
		return fmt.Errorf("configuration: core path must not be empty")
	}
	if err := validateOptionalPort("telnet port", c.TelnetPort); err != nil {
		return err
	}
	if err := validateOptionalPort("http port", c.HTTPPort); err != nil {
		return err
	}
	if c.SessionTimeout < 0 {
		return fmt.Errorf("configuration: session timeout must be positive, got %d", c.SessionTimeout)
	}
	if (c.Username == "") != (c.Password == "") {
		return fmt.Errorf("configuration: username and password must be set together")
	}
	return nil
}

func validateOptionalPort(name string, port int) error {
	if port == 0 {
		return nil
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("configuration: %s %d out of range (1-65535)", name, port)
	}
	return nil
}

// String flattens the Configuration into "key=value" segments joined by ';'.
// Fields are written in declaration order and unset optional fields are
// omitted. Separator characters inside values are backslash-escaped so the
// result always parses back with ParseConfiguration.
func (c *Configuration) String() string {
	var b strings.Builder
	write := func(key, value string) {
		if b.Len() > 0 {
			b.WriteByte(segmentSeparator)
		}
		b.WriteString(key)
		b.WriteByte(kvSeparator)
		b.WriteString(escapeValue(value))
	}
	writeInt := func(key string, value int) {
		if value != 0 {
			write(key, strconv.Itoa(value))
		}
	}
	writeString := func(key, value string) {
		if value != "" {
			write(key, value)
		}
	}

	writeInt(keyPID, c.PID)
	writeString(keyAgent, c.AgentPath)
	writeString(keyCore, c.CorePath)
	writeString(keyTargetIP, c.TargetIP)
	writeInt(keyTelnetPort, c.TelnetPort)
	writeInt(keyHTTPPort, c.HTTPPort)
	writeInt(keySessionTimeout, c.SessionTimeout)
	writeString(keyUsername, c.Username)
	writeString(keyPassword, c.Password)
	writeString(keyTunnelServer, c.TunnelServer)
	writeString(keyAgentID, c.AgentID)
	writeString(keyAppName, c.AppName)
	writeString(keyStatURL, c.StatURL)

	return b.String()
}

// ParseConfiguration is the inverse of Configuration.String. It is what the
// injected side uses to read its arguments back.
//
// Unknown keys are ignored so older agents can read newer launchers' output.
// Segments without a '=' are skipped; malformed integers are errors.
func ParseConfiguration(s string) (*Configuration, error) {
	c := &Configuration{}
	for _, segment := range splitUnescaped(s, segmentSeparator) {
		if segment == "" {
			continue
		}
		parts := splitUnescaped(segment, kvSeparator)
		if len(parts) < 2 {
			continue
		}
		key := unescapeValue(parts[0])
		// Hand-written input may carry a bare '=' inside the value.
		value := unescapeValue(strings.Join(parts[1:], string(kvSeparator)))

		var err error
		switch key {
		case keyPID:
			c.PID, err = parseIntField(key, value)
		case keyAgent:
			c.AgentPath = value
		case keyCore:
			c.CorePath = value
		case keyTargetIP:
			c.TargetIP = value
		case keyTelnetPort:
			c.TelnetPort, err = parseIntField(key, value)
		case keyHTTPPort:
			c.HTTPPort, err = parseIntField(key, value)
		case keySessionTimeout:
			c.SessionTimeout, err = parseIntField(key, value)
		case keyUsername:
			c.Username = value
		case keyPassword:
			c.Password = value
		case keyTunnelServer:
			c.TunnelServer = value
		case keyAgentID:
			c.AgentID = value
		case keyAppName:
			c.AppName = value
		case keyStatURL:
			c.StatURL = value
		}
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

func parseIntField(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("configuration: invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

// AgentArgument builds the single argument string handed to the target:
// "<core-artifact-path>;<serialized-configuration>".
func AgentArgument(corePath string, c *Configuration) string {
	return corePath + string(segmentSeparator) + c.String()
}

// SplitAgentArgument splits an agent argument at the first ';' into the core
// artifact path and the parsed Configuration.
func SplitAgentArgument(arg string) (string, *Configuration, error) {
	core, rest, ok := strings.Cut(arg, string(segmentSeparator))
	if !ok {
		return "", nil, fmt.Errorf("agent argument %q has no configuration segment", arg)
	}
	cfg, err := ParseConfiguration(rest)
	if err != nil {
		return "", nil, err
	}
	return core, cfg, nil
}

// escapeValue backslash-escapes separators. The codec works on bytes since
// paths that are not valid UTF-8 must survive the round trip unchanged.
func escapeValue(v string) string {
	if !strings.ContainsAny(v, `\;=`) {
		return v
	}
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == escapeChar || c == segmentSeparator || c == kvSeparator {
			b.WriteByte(escapeChar)
		}
		b.WriteByte(c)
	}
	return b.String()
}

func unescapeValue(v string) string {
	if strings.IndexByte(v, escapeChar) < 0 {
		return v
	}
	var b strings.Builder
	escaped := false
	for i := 0; i < len(v); i++ {
		c := v[i]
		if !escaped && c == escapeChar {
			escaped = true
			continue
		}
		escaped = false
		b.WriteByte(c)
	}
	return b.String()
}

// splitUnescaped splits s on sep, ignoring separators preceded by an escape.
// Escape sequences are kept in the parts; callers unescape afterwards.
func splitUnescaped(s string, sep byte) []string {
	var parts []string
	var current strings.Builder
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			current.WriteByte(c)
			escaped = false
		case c == escapeChar:
			current.WriteByte(c)
			escaped = true
		case c == sep:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	parts = append(parts, current.String())
	return parts
}
