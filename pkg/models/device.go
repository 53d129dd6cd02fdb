package models

import (
	"fmt"
	"strings"
)

const (
	// DefaultPort is the SSH port used when a caller does not supply one
	DefaultPort = 22
	// DefaultTimeout is the connection timeout in seconds
	DefaultTimeout = 30
	// DefaultSessionTimeout is the session timeout in seconds
	DefaultSessionTimeout = 60
)

// DeviceType identifies the vendor/OS dialect of a device
type DeviceType string

const (
	DeviceTypeCiscoIOS       DeviceType = "cisco_ios"
	DeviceTypeCiscoNXOS      DeviceType = "cisco_nxos"
	DeviceTypeCiscoXR        DeviceType = "cisco_xr"
	DeviceTypeCiscoASA       DeviceType = "cisco_asa"
	DeviceTypeAristaEOS      DeviceType = "arista_eos"
	DeviceTypeJuniperJunos   DeviceType = "juniper_junos"
	DeviceTypeHPProcurve     DeviceType = "hp_procurve"
	DeviceTypeDellForce10    DeviceType = "dell_force10"
	DeviceTypePaloAltoPanos  DeviceType = "paloalto_panos"
	DeviceTypeFortinet       DeviceType = "fortinet"
	DeviceTypeCheckpointGaia DeviceType = "checkpoint_gaia"
	DeviceTypeLinux          DeviceType = "linux"
)

// SupportedDeviceTypes returns the device type tags known to the SSH transport
func SupportedDeviceTypes() []DeviceType {
	return []DeviceType{
		DeviceTypeCiscoIOS,
		DeviceTypeCiscoNXOS,
		DeviceTypeCiscoXR,
		DeviceTypeCiscoASA,
		DeviceTypeAristaEOS,
		DeviceTypeJuniperJunos,
		DeviceTypeHPProcurve,
		DeviceTypeDellForce10,
		DeviceTypePaloAltoPanos,
		DeviceTypeFortinet,
		DeviceTypeCheckpointGaia,
		DeviceTypeLinux,
	}
}

// DeviceConfig contains the connection parameters recorded for a device.
// Password and Secret never leave the process in serialized form.
type DeviceConfig struct {
	Host           string `json:"host" mapstructure:"host" yaml:"host"`
	DeviceType     string `json:"device_type" mapstructure:"device_type" yaml:"device_type"`
	Username       string `json:"username" mapstructure:"username" yaml:"username"`
	Password       string `json:"-" mapstructure:"password" yaml:"password"`
	Port           int    `json:"port" mapstructure:"port" yaml:"port"`
	Secret         string `json:"-" mapstructure:"secret" yaml:"secret,omitempty"`
	Timeout        int    `json:"timeout" mapstructure:"timeout" yaml:"timeout"`
	SessionTimeout int    `json:"session_timeout" mapstructure:"session_timeout" yaml:"session_timeout,omitempty"`
}

// WithDefaults returns a copy of the config with zero values replaced by defaults
func (c DeviceConfig) WithDefaults() DeviceConfig {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	return c
}

// Validate checks that the fields required to open a connection are present
func (c DeviceConfig) Validate() error {
	ve := NewValidationErrors()
	if strings.TrimSpace(c.Host) == "" {
		ve.Add("host", "is required", nil)
	}
	if strings.TrimSpace(c.DeviceType) == "" {
		ve.Add("device_type", "is required", nil)
	}
	if c.Username == "" {
		ve.Add("username", "is required", nil)
	}
	if c.Port < 0 || c.Port > 65535 {
		ve.Add("port", "must be between 1 and 65535", c.Port)
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// Address returns host:port for dialing
func (c DeviceConfig) Address() string {
	port := c.Port
	if port <= 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// Credentials returns the secret values that must be scrubbed from any
// user-visible text produced for this device
func (c DeviceConfig) Credentials() []string {
	creds := make([]string, 0, 2)
	if c.Password != "" {
		creds = append(creds, c.Password)
	}
	if c.Secret != "" {
		creds = append(creds, c.Secret)
	}
	return creds
}

// DeviceInfo is the snapshot returned for a connected device
type DeviceInfo struct {
	DeviceID       string `json:"device_id"`
	Host           string `json:"host"`
	DeviceType     string `json:"device_type"`
	Port           int    `json:"port"`
	Prompt         string `json:"prompt"`
	Connected      bool   `json:"connected"`
	SessionTimeout int    `json:"session_timeout"`
	SessionID      string `json:"session_id,omitempty"`
}

// ConnectedDevice is one entry of the connected device listing
type ConnectedDevice struct {
	DeviceID   string `json:"device_id"`
	Host       string `json:"host"`
	DeviceType string `json:"device_type"`
	Prompt     string `json:"prompt"`
	Error      string `json:"error,omitempty"`
}

// DeviceResource describes a known device regardless of connection state
type DeviceResource struct {
	DeviceID   string `json:"device_id"`
	Host       string `json:"host"`
	DeviceType string `json:"device_type"`
	Port       int    `json:"port"`
	Timeout    int    `json:"timeout"`
	Connected  bool   `json:"connected"`
}
