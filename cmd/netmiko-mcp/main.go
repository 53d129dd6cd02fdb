package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "netmiko-mcp",
		Short: "MCP server for network device management over SSH",
		Long: `netmiko-mcp exposes network devices to MCP clients.

Clients connect to devices, run show commands, push configuration and
inspect session state through MCP tools served on stdio (and optionally HTTP).`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(testConnectionCmd())
	rootCmd.AddCommand(listDeviceTypesCmd())
	rootCmd.AddCommand(generateConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
