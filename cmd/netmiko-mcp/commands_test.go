package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravipendurty/netmiko-mcp-server/internal/transport"
	"github.com/ravipendurty/netmiko-mcp-server/internal/transport/transporttest"
	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

func testDevice() models.DeviceConfig {
	return models.DeviceConfig{
		Host:       "10.0.0.1",
		DeviceType: "cisco_ios",
		Username:   "admin",
		Password:   "hunter2",
	}
}

func TestTestConnection_Success(t *testing.T) {
	fake := transporttest.New()
	fake.SetPrompt("10.0.0.1", "core1#")
	fake.SetOutput("show version", transport.Output{Text: strings.Repeat("x", 300)})

	var out bytes.Buffer
	require.NoError(t, testConnection(context.Background(), &out, fake, testDevice()))

	text := out.String()
	assert.Contains(t, text, "Testing connection to 10.0.0.1...")
	assert.Contains(t, text, "✓ Connection successful! Device prompt: core1#")
	assert.Contains(t, text, "✓ Command execution successful")
	assert.Contains(t, text, "Sample output (first 200 chars): "+strings.Repeat("x", 200)+"...\n")
	assert.NotContains(t, text, strings.Repeat("x", 201))
	assert.Contains(t, text, "✓ Disconnection successful")
	assert.Equal(t, 0, fake.OpenSessions("10.0.0.1"))

	calls := fake.CallsFor("open")
	require.Len(t, calls, 1)
	sessions := fake.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, 22, sessions[0].Params().Port)
}

func TestTestConnection_Failures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"auth", models.NewAuthError("open", errors.New("denied")), "✗ Authentication failed - check username/password"},
		{"timeout", models.NewTimeoutError("open", errors.New("i/o timeout")), "✗ Connection timeout - check host/port"},
		{"other", models.NewTransportError("open", errors.New("connection refused")), "✗ Connection failed: open: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := transporttest.New()
			fake.FailOpen("10.0.0.1", tt.err)

			var out bytes.Buffer
			require.NoError(t, testConnection(context.Background(), &out, fake, testDevice()))
			assert.Contains(t, out.String(), tt.want)
			assert.NotContains(t, out.String(), "✓")
		})
	}
}

func TestTestConnection_CommandFailureDisconnects(t *testing.T) {
	fake := transporttest.New()
	fake.FailCommand("show version", models.NewTransportError("send_command", errors.New("channel closed")))

	var out bytes.Buffer
	require.NoError(t, testConnection(context.Background(), &out, fake, testDevice()))
	assert.Contains(t, out.String(), "✓ Connection successful!")
	assert.Contains(t, out.String(), "✗ Connection failed")
	assert.Equal(t, 0, fake.OpenSessions("10.0.0.1"))
}

func TestTestConnection_InvalidDevice(t *testing.T) {
	device := testDevice()
	device.Host = ""

	var out bytes.Buffer
	err := testConnection(context.Background(), &out, transporttest.New(), device)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestListDeviceTypesCmd(t *testing.T) {
	cmd := listDeviceTypesCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	assert.True(t, strings.HasPrefix(out.String(), "Supported device types:\n"))
	for _, dt := range models.SupportedDeviceTypes() {
		assert.Contains(t, out.String(), "  - "+string(dt)+"\n")
	}
}

func TestGenerateConfigCmd(t *testing.T) {
	t.Run("stdout", func(t *testing.T) {
		cmd := generateConfigCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(nil)
		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), "Sample configuration:")
		assert.Contains(t, out.String(), "example_router:")
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")

		cmd := generateConfigCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--output", path})
		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), "Configuration written to "+path)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "example_switch:")

		again := generateConfigCmd()
		again.SetOut(&bytes.Buffer{})
		again.SetErr(&bytes.Buffer{})
		again.SetArgs([]string{"--output", path})
		assert.Error(t, again.Execute())

		forced := generateConfigCmd()
		forced.SetOut(&bytes.Buffer{})
		forced.SetArgs([]string{"-o", path, "--force"})
		assert.NoError(t, forced.Execute())
	})
}
