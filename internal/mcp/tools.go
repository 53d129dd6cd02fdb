package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ravipendurty/netmiko-mcp-server/internal/transport"
	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

// Tool names
const (
	ToolConnectDevice        = "connect_device"
	ToolDisconnectDevice     = "disconnect_device"
	ToolSendCommand          = "send_command"
	ToolSendConfigCommands   = "send_config_commands"
	ToolGetDeviceInfo        = "get_device_info"
	ToolListConnectedDevices = "list_connected_devices"
)

type toolHandler func(ctx context.Context, args json.RawMessage) (models.Result, error)

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

func propDefault(typ, description string, def interface{}) map[string]interface{} {
	p := prop(typ, description)
	p["default"] = def
	return p
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var deviceIDOnly = objectSchema(map[string]interface{}{
	"device_id": prop("string", "Device identifier"),
}, "device_id")

// Tools returns the advertised tool list in a stable order
func Tools() []Tool {
	return []Tool{
		{
			Name:        ToolConnectDevice,
			Description: "Connect to a network device",
			InputSchema: objectSchema(map[string]interface{}{
				"device_id":   prop("string", "Unique device identifier"),
				"host":        prop("string", "Device IP address or hostname"),
				"device_type": prop("string", "Device type (cisco_ios, cisco_nxos, etc.)"),
				"username":    prop("string", "SSH username"),
				"password":    prop("string", "SSH password"),
				"port":        propDefault("integer", "SSH port (default: 22)", models.DefaultPort),
				"secret":      prop("string", "Enable secret (optional)"),
				"timeout":     propDefault("integer", "Connection timeout (default: 30)", models.DefaultTimeout),
			}, "device_id", "host", "device_type", "username", "password"),
		},
		{
			Name:        ToolDisconnectDevice,
			Description: "Disconnect from a network device",
			InputSchema: objectSchema(map[string]interface{}{
				"device_id": prop("string", "Device identifier to disconnect"),
			}, "device_id"),
		},
		{
			Name:        ToolSendCommand,
			Description: "Send a command to a connected network device",
			InputSchema: objectSchema(map[string]interface{}{
				"device_id":     prop("string", "Device identifier"),
				"command":       prop("string", "Command to execute"),
				"use_textfsm":   propDefault("boolean", "Parse output into structured records", false),
				"strip_prompt":  propDefault("boolean", "Strip device prompt from output", true),
				"strip_command": propDefault("boolean", "Strip command from output", true),
			}, "device_id", "command"),
		},
		{
			Name:        ToolSendConfigCommands,
			Description: "Send configuration commands to a network device",
			InputSchema: objectSchema(map[string]interface{}{
				"device_id": prop("string", "Device identifier"),
				"commands": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "List of configuration commands",
				},
				"exit_config_mode": propDefault("boolean", "Exit config mode after commands", true),
			}, "device_id", "commands"),
		},
		{
			Name:        ToolGetDeviceInfo,
			Description: "Get basic device information",
			InputSchema: deviceIDOnly,
		},
		{
			Name:        ToolListConnectedDevices,
			Description: "List all currently connected devices",
			InputSchema: objectSchema(map[string]interface{}{}),
		},
	}
}

type connectArgs struct {
	DeviceID   string `json:"device_id"`
	Host       string `json:"host"`
	DeviceType string `json:"device_type"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	Port       int    `json:"port"`
	Secret     string `json:"secret"`
	Timeout    int    `json:"timeout"`
}

type deviceArgs struct {
	DeviceID string `json:"device_id"`
}

type sendCommandArgs struct {
	DeviceID     string `json:"device_id"`
	Command      string `json:"command"`
	UseTextFSM   bool   `json:"use_textfsm"`
	StripPrompt  *bool  `json:"strip_prompt"`
	StripCommand *bool  `json:"strip_command"`
}

type configArgs struct {
	DeviceID       string   `json:"device_id"`
	Commands       []string `json:"commands"`
	ExitConfigMode *bool    `json:"exit_config_mode"`
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// decodeArgs accepts a missing argument object as empty
func decodeArgs(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}
	return nil
}

func (s *Server) registerTools() {
	s.tools = map[string]toolHandler{
		ToolConnectDevice: func(ctx context.Context, raw json.RawMessage) (models.Result, error) {
			var args connectArgs
			if err := decodeArgs(raw, &args); err != nil {
				return models.Result{}, err
			}
			return s.manager.Connect(ctx, args.DeviceID, models.DeviceConfig{
				Host:       args.Host,
				DeviceType: args.DeviceType,
				Username:   args.Username,
				Password:   args.Password,
				Port:       args.Port,
				Secret:     args.Secret,
				Timeout:    args.Timeout,
			}), nil
		},
		ToolDisconnectDevice: func(ctx context.Context, raw json.RawMessage) (models.Result, error) {
			var args deviceArgs
			if err := decodeArgs(raw, &args); err != nil {
				return models.Result{}, err
			}
			return s.manager.Disconnect(ctx, args.DeviceID), nil
		},
		ToolSendCommand: func(ctx context.Context, raw json.RawMessage) (models.Result, error) {
			var args sendCommandArgs
			if err := decodeArgs(raw, &args); err != nil {
				return models.Result{}, err
			}
			opts := transport.CommandOptions{
				UseStructured: args.UseTextFSM,
				StripPrompt:   boolOr(args.StripPrompt, true),
				StripCommand:  boolOr(args.StripCommand, true),
			}
			return s.manager.SendCommand(ctx, args.DeviceID, args.Command, opts), nil
		},
		ToolSendConfigCommands: func(ctx context.Context, raw json.RawMessage) (models.Result, error) {
			var args configArgs
			if err := decodeArgs(raw, &args); err != nil {
				return models.Result{}, err
			}
			return s.manager.SendConfigSet(ctx, args.DeviceID, args.Commands, boolOr(args.ExitConfigMode, true)), nil
		},
		ToolGetDeviceInfo: func(ctx context.Context, raw json.RawMessage) (models.Result, error) {
			var args deviceArgs
			if err := decodeArgs(raw, &args); err != nil {
				return models.Result{}, err
			}
			return s.manager.GetDeviceInfo(ctx, args.DeviceID), nil
		},
		ToolListConnectedDevices: func(ctx context.Context, _ json.RawMessage) (models.Result, error) {
			return s.manager.ListConnectedDevices(ctx), nil
		},
	}
}
