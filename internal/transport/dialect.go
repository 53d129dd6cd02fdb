package transport

import (
	"regexp"
	"strings"

	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

// promptPattern is the generic prompt matcher applied to the last line of
// output: a non-blank line ending in one of the usual prompt terminators.
var promptPattern = regexp.MustCompile(`^\S.{0,120}[#>$%\]]$`)

var (
	passwordPattern = regexp.MustCompile(`(?i)password:?\s*$`)
	ansiPattern     = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
)

// Profile describes how to drive the CLI of one device type
type Profile struct {
	Name string
	// DisablePaging commands run once after login
	DisablePaging []string
	// EnableCommand elevates to privileged mode when a secret is supplied
	EnableCommand string
	// ConfigEnter enters configuration mode
	ConfigEnter []string
	// ConfigCommit is sent after the commands on commit-based platforms
	ConfigCommit []string
	// ConfigExit leaves configuration mode
	ConfigExit []string
	// UnprivilegedSuffix marks a prompt that still needs enable
	UnprivilegedSuffix string
}

var ciscoLike = Profile{
	DisablePaging:      []string{"terminal length 0", "terminal width 511"},
	EnableCommand:      "enable",
	ConfigEnter:        []string{"configure terminal"},
	ConfigExit:         []string{"end"},
	UnprivilegedSuffix: ">",
}

var profiles = map[models.DeviceType]Profile{
	models.DeviceTypeCiscoIOS: ciscoLike,
	models.DeviceTypeCiscoNXOS: {
		DisablePaging: []string{"terminal length 0", "terminal width 511"},
		ConfigEnter:   []string{"configure terminal"},
		ConfigExit:    []string{"end"},
	},
	models.DeviceTypeCiscoXR: {
		DisablePaging: []string{"terminal length 0", "terminal width 511"},
		ConfigEnter:   []string{"configure terminal"},
		ConfigCommit:  []string{"commit"},
		ConfigExit:    []string{"end"},
	},
	models.DeviceTypeCiscoASA: {
		DisablePaging:      []string{"terminal pager 0"},
		EnableCommand:      "enable",
		ConfigEnter:        []string{"configure terminal"},
		ConfigExit:         []string{"end"},
		UnprivilegedSuffix: ">",
	},
	models.DeviceTypeAristaEOS: ciscoLike,
	models.DeviceTypeJuniperJunos: {
		DisablePaging: []string{"set cli screen-length 0", "set cli screen-width 511"},
		ConfigEnter:   []string{"configure"},
		ConfigCommit:  []string{"commit"},
		ConfigExit:    []string{"exit configuration-mode"},
	},
	models.DeviceTypeHPProcurve: {
		DisablePaging:      []string{"no page"},
		EnableCommand:      "enable",
		ConfigEnter:        []string{"configure terminal"},
		ConfigExit:         []string{"end"},
		UnprivilegedSuffix: ">",
	},
	models.DeviceTypeDellForce10: ciscoLike,
	models.DeviceTypePaloAltoPanos: {
		DisablePaging: []string{"set cli pager off"},
		ConfigEnter:   []string{"configure"},
		ConfigCommit:  []string{"commit"},
		ConfigExit:    []string{"exit"},
	},
	models.DeviceTypeFortinet: {
		DisablePaging: []string{"config system console", "set output standard", "end"},
	},
	models.DeviceTypeCheckpointGaia: {
		DisablePaging: []string{"set clienv rows 0"},
	},
	models.DeviceTypeLinux: {},
}

// aliases maps device type tags onto a profile with the same CLI dialect
var aliases = map[string]models.DeviceType{
	"cisco_xe":     models.DeviceTypeCiscoIOS,
	"cisco_ios_xe": models.DeviceTypeCiscoIOS,
	"cisco_xr_ssh": models.DeviceTypeCiscoXR,
	"juniper":      models.DeviceTypeJuniperJunos,
	"arista":       models.DeviceTypeAristaEOS,
	"dell_os9":     models.DeviceTypeDellForce10,
	"hp_comware":   models.DeviceTypeHPProcurve,
	"linux_ssh":    models.DeviceTypeLinux,
}

// ProfileFor returns the CLI profile for a device type tag. Unknown tags get
// a generic profile that only relies on prompt detection.
func ProfileFor(deviceType string) Profile {
	tag := strings.ToLower(strings.TrimSpace(deviceType))
	if alias, ok := aliases[tag]; ok {
		tag = string(alias)
	}
	if p, ok := profiles[models.DeviceType(tag)]; ok {
		p.Name = tag
		return p
	}
	return Profile{Name: "generic"}
}

// BuildConfigSequence wraps commands in the profile's configuration mode
// entry and, when exitConfigMode is set, its commit and exit commands.
func BuildConfigSequence(profile Profile, commands []string, exitConfigMode bool) []string {
	sequence := make([]string, 0, len(commands)+len(profile.ConfigEnter)+len(profile.ConfigCommit)+len(profile.ConfigExit))
	sequence = append(sequence, profile.ConfigEnter...)
	sequence = append(sequence, commands...)
	if exitConfigMode {
		sequence = append(sequence, profile.ConfigCommit...)
		sequence = append(sequence, profile.ConfigExit...)
	}
	return sequence
}

// basePrompt strips the mode decoration from a prompt so the same device is
// still recognised after entering configuration or privileged mode
func basePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ""
	}
	if i := strings.IndexAny(prompt, "(#>$%"); i > 0 {
		return prompt[:i]
	}
	return prompt[:len(prompt)-1]
}

// lastLine returns the final line of normalized output with trailing
// whitespace removed
func lastLine(text string) string {
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	}
	return strings.TrimRight(text, " \t")
}

// isPrompt reports whether line looks like a device prompt. When base is set
// the line must also start with it.
func isPrompt(line, base string) bool {
	if !promptPattern.MatchString(line) {
		return false
	}
	return base == "" || strings.HasPrefix(line, base)
}

// normalize converts line endings and drops terminal escape sequences
func normalize(text string) string {
	text = ansiPattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "")
}

// cleanOutput applies prompt and echo stripping to one command's output
func cleanOutput(text, command string, opts CommandOptions) string {
	text = normalize(text)
	lines := strings.Split(text, "\n")

	if opts.StripCommand && len(lines) > 0 && strings.Contains(lines[0], strings.TrimSpace(command)) {
		lines = lines[1:]
	}
	if opts.StripPrompt && len(lines) > 0 && promptPattern.MatchString(strings.TrimRight(lines[len(lines)-1], " \t")) {
		lines = lines[:len(lines)-1]
	}

	return strings.Trim(strings.Join(lines, "\n"), "\n")
}
