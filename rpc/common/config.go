package common

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	TransportTCP  = "tcp"
	TransportUnix = "unix"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of the server
type ServerConfig struct {
	// Listener
	Endpoint       string // host:port for tcp, socket path for unix
	Transport      string // tcp or unix
	Threads        int    // number of connection workers
	AcceptFailFast bool   // stop accepting after the first accept error

	// TCP socket options
	TCPNoDelay      bool
	TCPKeepAliveSec int

	// Storage
	DBFile  string
	WALSync string // always or none

	// Observability
	MetricsEndpoint string // host:port of the metrics http server, empty = disabled
	LogLevel        string
}

// Validate checks the configuration for invalid values
func (c *ServerConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	if c.Transport != TransportTCP && c.Transport != TransportUnix {
		return fmt.Errorf("invalid transport %q, must be one of %s, %s", c.Transport, TransportTCP, TransportUnix)
	}
	if c.Threads <= 0 {
		return fmt.Errorf("threads must be greater than zero, got %d", c.Threads)
	}
	if c.DBFile == "" {
		return fmt.Errorf("db file must not be empty")
	}
	if c.TCPKeepAliveSec < 0 {
		return fmt.Errorf("tcp keep-alive must not be negative, got %d", c.TCPKeepAliveSec)
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Transport", c.Transport)
	addField("Threads", strconv.Itoa(c.Threads))
	addField("Accept Fail Fast", strconv.FormatBool(c.AcceptFailFast))

	if c.Transport == TransportTCP {
		addSection("TCP")
		addField("No Delay", strconv.FormatBool(c.TCPNoDelay))
		addField("Keep Alive", fmt.Sprintf("%d sec", c.TCPKeepAliveSec))
	}

	addSection("Storage")
	addField("Database File", c.DBFile)
	addField("WAL Sync", c.WALSync)

	addSection("Observability")
	if c.MetricsEndpoint == "" {
		addField("Metrics", "disabled")
	} else {
		addField("Metrics", "http://"+c.MetricsEndpoint+"/metrics")
	}
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientConfig holds all configuration parameters of the client
type ClientConfig struct {
	Endpoint      string
	Transport     string
	TimeoutSecond int // per request, 0 = no timeout
	TCPNoDelay    bool
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Endpoint", c.Endpoint)
	addField("Transport", c.Transport)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	if c.Transport == TransportTCP {
		addField("TCP No Delay", strconv.FormatBool(c.TCPNoDelay))
	}

	return sb.String()
}
