package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

func TestProfileFor(t *testing.T) {
	tests := []struct {
		deviceType string
		name       string
		enter      []string
	}{
		{"cisco_ios", "cisco_ios", []string{"configure terminal"}},
		{"CISCO_XE", "cisco_ios", []string{"configure terminal"}},
		{"juniper_junos", "juniper_junos", []string{"configure"}},
		{"juniper", "juniper_junos", []string{"configure"}},
		{"linux", "linux", nil},
		{"something_else", "generic", nil},
	}

	for _, tt := range tests {
		t.Run(tt.deviceType, func(t *testing.T) {
			p := ProfileFor(tt.deviceType)
			assert.Equal(t, tt.name, p.Name)
			assert.Equal(t, tt.enter, p.ConfigEnter)
		})
	}
}

func TestBuildConfigSequence(t *testing.T) {
	commands := []string{"interface Gi0/1", "shutdown"}

	t.Run("cisco", func(t *testing.T) {
		seq := BuildConfigSequence(ProfileFor("cisco_ios"), commands, true)
		assert.Equal(t, []string{"configure terminal", "interface Gi0/1", "shutdown", "end"}, seq)
	})

	t.Run("cisco without exit", func(t *testing.T) {
		seq := BuildConfigSequence(ProfileFor("cisco_ios"), commands, false)
		assert.Equal(t, []string{"configure terminal", "interface Gi0/1", "shutdown"}, seq)
	})

	t.Run("junos commits before leaving", func(t *testing.T) {
		seq := BuildConfigSequence(ProfileFor("juniper_junos"), []string{"set system host-name r1"}, true)
		assert.Equal(t, []string{"configure", "set system host-name r1", "commit", "exit configuration-mode"}, seq)
	})

	t.Run("generic passes commands through", func(t *testing.T) {
		seq := BuildConfigSequence(ProfileFor("linux"), commands, true)
		assert.Equal(t, commands, seq)
	})
}

func TestPromptHelpers(t *testing.T) {
	assert.Equal(t, "R1", basePrompt("R1#"))
	assert.Equal(t, "R1", basePrompt("R1(config-if)#"))
	assert.Equal(t, "admin@mx1", basePrompt("admin@mx1>"))
	assert.Equal(t, "", basePrompt(""))

	assert.True(t, isPrompt("R1#", ""))
	assert.True(t, isPrompt("R1(config)#", "R1"))
	assert.True(t, isPrompt("[admin@host ~]$", ""))
	assert.False(t, isPrompt("R2#", "R1"))
	assert.False(t, isPrompt("Building configuration...", ""))
	assert.False(t, isPrompt("", ""))

	assert.Equal(t, "R1#", lastLine("line one\nR1# "))
	assert.Equal(t, "a\nb", normalize("a\r\n\x1b[0mb\r"))
}

func TestCleanOutput(t *testing.T) {
	raw := "show clock\r\n*10:00:00.000 UTC Mon Jan 1 2024\r\nR1#"

	assert.Equal(t, "*10:00:00.000 UTC Mon Jan 1 2024", cleanOutput(raw, "show clock", DefaultCommandOptions()))
	assert.Equal(t, "show clock\n*10:00:00.000 UTC Mon Jan 1 2024", cleanOutput(raw, "show clock", CommandOptions{StripPrompt: true}))
	assert.Equal(t, "*10:00:00.000 UTC Mon Jan 1 2024\nR1#", cleanOutput(raw, "show clock", CommandOptions{StripCommand: true}))
}

func TestParamsFromConfig(t *testing.T) {
	p := ParamsFromConfig(models.DeviceConfig{
		Host:       "10.0.0.1",
		DeviceType: "cisco_ios",
		Username:   "admin",
		Password:   "pw",
		Secret:     "en",
	})

	assert.Equal(t, 22, p.Port)
	assert.Equal(t, 30*time.Second, p.Timeout)
	assert.Equal(t, "en", p.Secret)
}
