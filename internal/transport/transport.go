// Package transport opens interactive command channels to network devices.
package transport

import (
	"context"
	"time"

	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

// Params contains everything needed to open a channel to one device
type Params struct {
	Host       string
	DeviceType string
	Username   string
	Password   string
	Secret     string
	Port       int
	Timeout    time.Duration
}

// ParamsFromConfig builds transport parameters from a recorded device config
func ParamsFromConfig(cfg models.DeviceConfig) Params {
	cfg = cfg.WithDefaults()
	return Params{
		Host:       cfg.Host,
		DeviceType: cfg.DeviceType,
		Username:   cfg.Username,
		Password:   cfg.Password,
		Secret:     cfg.Secret,
		Port:       cfg.Port,
		Timeout:    time.Duration(cfg.Timeout) * time.Second,
	}
}

// CommandOptions controls how a single command's output is post-processed
type CommandOptions struct {
	// UseStructured asks the transport to parse output into records
	UseStructured bool
	// StripPrompt removes the trailing device prompt from output
	StripPrompt bool
	// StripCommand removes the echoed command from output
	StripCommand bool
}

// DefaultCommandOptions returns raw output with prompt and echo stripped
func DefaultCommandOptions() CommandOptions {
	return CommandOptions{
		StripPrompt:  true,
		StripCommand: true,
	}
}

// Output is the result of a command. Records is set only when structured
// parsing was requested and a parser recognised the output.
type Output struct {
	Text    string
	Records []map[string]interface{}
}

// Structured reports whether the output was parsed into records
func (o Output) Structured() bool {
	return o.Records != nil
}

// Transport opens sessions to devices
type Transport interface {
	// Open establishes a session. Errors are *models.TransportError values
	// classified as authentication, timeout or generic transport failures.
	Open(ctx context.Context, params Params) (Session, error)
}

// Session is a live command channel to one device. Implementations are not
// safe for concurrent use; callers serialize access per device.
type Session interface {
	// FindPrompt returns the current device prompt
	FindPrompt(ctx context.Context) (string, error)
	// SendCommand runs one command and returns its output
	SendCommand(ctx context.Context, command string, opts CommandOptions) (Output, error)
	// SendConfigSet applies commands in order inside configuration mode
	SendConfigSet(ctx context.Context, commands []string, exitConfigMode bool) (string, error)
	// Disconnect closes the channel
	Disconnect() error
}

// Parser turns raw command output into records
type Parser interface {
	Parse(deviceType, command, output string) ([]map[string]interface{}, bool)
}

// ParserFunc adapts a function to the Parser interface
type ParserFunc func(deviceType, command, output string) ([]map[string]interface{}, bool)

// Parse calls f
func (f ParserFunc) Parse(deviceType, command, output string) ([]map[string]interface{}, bool) {
	return f(deviceType, command, output)
}
