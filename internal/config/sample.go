package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

// Sample is the configuration written by generate-config. Struct field order
// fixes the key order of the YAML output.
type Sample struct {
	Server  ServerConfig  `yaml:"server"`
	HTTP    HTTPConfig    `yaml:"http"`
	Audit   AuditConfig   `yaml:"audit"`
	Events  EventsConfig  `yaml:"events"`
	Devices sampleDevices `yaml:"devices"`
}

type sampleDevices struct {
	ExampleRouter models.DeviceConfig `yaml:"example_router"`
	ExampleSwitch models.DeviceConfig `yaml:"example_switch"`
}

// NewSample returns the sample configuration
func NewSample() Sample {
	defaults := Default()
	return Sample{
		Server: ServerConfig{
			Name:      defaults.Server.Name,
			Version:   defaults.Server.Version,
			LogLevel:  "info",
			LogFormat: "json",
		},
		HTTP:  defaults.HTTP,
		Audit: defaults.Audit,
		Events: EventsConfig{
			SubjectPrefix: defaults.Events.SubjectPrefix,
		},
		Devices: sampleDevices{
			ExampleRouter: models.DeviceConfig{
				Host:       "192.168.1.1",
				DeviceType: string(models.DeviceTypeCiscoIOS),
				Username:   "admin",
				Password:   "password",
				Port:       models.DefaultPort,
				Timeout:    models.DefaultTimeout,
				Secret:     "enable_secret",
			},
			ExampleSwitch: models.DeviceConfig{
				Host:       "192.168.1.10",
				DeviceType: string(models.DeviceTypeCiscoIOS),
				Username:   "admin",
				Password:   "password",
				Port:       models.DefaultPort,
				Timeout:    models.DefaultTimeout,
			},
		},
	}
}

// RenderSample encodes the sample configuration as YAML
func RenderSample() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(NewSample()); err != nil {
		return nil, fmt.Errorf("encode sample config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteSample writes the sample configuration to path. An existing file is
// only replaced when overwrite is set.
func WriteSample(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s: %w", path, ErrOutputExists)
		}
	}
	data, err := RenderSample()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
