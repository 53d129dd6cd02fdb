package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ravipendurty/netmiko-mcp-server/internal/config"
	"github.com/ravipendurty/netmiko-mcp-server/internal/transport"
	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

const sampleOutputChars = 200

func testConnectionCmd() *cobra.Command {
	var device models.DeviceConfig

	cmd := &cobra.Command{
		Use:   "test-connection",
		Short: "Test connection to a network device",
		RunE: func(cmd *cobra.Command, args []string) error {
			tr := transport.NewSSHTransport(transport.DefaultSSHConfig(), zap.NewNop())
			return testConnection(cmd.Context(), cmd.OutOrStdout(), tr, device)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&device.Host, "host", "H", "", "Device hostname or IP")
	flags.StringVarP(&device.DeviceType, "device-type", "t", "", "Device type (cisco_ios, etc.)")
	flags.StringVarP(&device.Username, "username", "u", "", "SSH username")
	flags.StringVarP(&device.Password, "password", "p", "", "SSH password")
	flags.StringVar(&device.Secret, "secret", "", "Enable secret")
	flags.IntVar(&device.Port, "port", models.DefaultPort, "SSH port")
	flags.IntVar(&device.Timeout, "timeout", models.DefaultTimeout, "Connection timeout in seconds")
	for _, name := range []string{"host", "device-type", "username", "password"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// testConnection opens a session, runs show version and disconnects,
// reporting each step. Connection failures are reported, not returned.
func testConnection(ctx context.Context, out io.Writer, tr transport.Transport, device models.DeviceConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	device = device.WithDefaults()
	if err := device.Validate(); err != nil {
		return err
	}

	fmt.Fprintf(out, "Testing connection to %s...\n", device.Host)

	params := transport.ParamsFromConfig(device)
	opCtx, cancel := context.WithTimeout(ctx, 2*params.Timeout+5*time.Second)
	defer cancel()

	sess, err := tr.Open(opCtx, params)
	if err != nil {
		reportFailure(out, err)
		return nil
	}

	prompt, err := sess.FindPrompt(opCtx)
	if err != nil {
		_ = sess.Disconnect()
		reportFailure(out, err)
		return nil
	}
	fmt.Fprintf(out, "✓ Connection successful! Device prompt: %s\n", prompt)

	output, err := sess.SendCommand(opCtx, "show version", transport.DefaultCommandOptions())
	if err != nil {
		_ = sess.Disconnect()
		reportFailure(out, err)
		return nil
	}
	fmt.Fprintln(out, "✓ Command execution successful")
	sample := []rune(output.Text)
	if len(sample) > sampleOutputChars {
		sample = sample[:sampleOutputChars]
	}
	fmt.Fprintf(out, "Sample output (first %d chars): %s...\n", sampleOutputChars, string(sample))

	if err := sess.Disconnect(); err != nil {
		reportFailure(out, err)
		return nil
	}
	fmt.Fprintln(out, "✓ Disconnection successful")
	return nil
}

func reportFailure(out io.Writer, err error) {
	switch models.KindOf(err) {
	case models.FailureAuthentication:
		fmt.Fprintln(out, "✗ Authentication failed - check username/password")
	case models.FailureTimeout:
		fmt.Fprintln(out, "✗ Connection timeout - check host/port")
	default:
		fmt.Fprintf(out, "✗ Connection failed: %v\n", err)
	}
}

func listDeviceTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-device-types",
		Short: "List supported device types",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Supported device types:")
			for _, t := range models.SupportedDeviceTypes() {
				fmt.Fprintf(out, "  - %s\n", t)
			}
		},
	}
}

func generateConfigCmd() *cobra.Command {
	var (
		output string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if output != "" {
				if err := config.WriteSample(output, force); err != nil {
					return err
				}
				fmt.Fprintf(out, "Configuration written to %s\n", output)
				return nil
			}

			data, err := config.RenderSample()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Sample configuration:")
			_, err = out.Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing output file")
	return cmd
}
