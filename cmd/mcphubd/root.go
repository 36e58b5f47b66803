// Package mcphubd is the process entrypoint: a thin cobra wrapper that
// parses flags, wires the hub core, and blocks until a shutdown signal or
// an auto-shutdown timeout fires. It renders nothing itself; every
// external surface (HTTP, JSON-RPC, SSE) is left to a collaborator.
package mcphubd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes. General failures use ExitCodeError; everything else is a
// successful run that was asked to stop.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

var rootCmd = &cobra.Command{
	Use:   "mcphubd",
	Short: "Supervise a fleet of local MCP servers",
	Long: `mcphubd loads an MCP server configuration file, connects to each
enabled server, and supervises them: resolving placeholders, watching the
config file and reconnecting servers whose configuration changes, and
driving the OAuth flow for servers that require it. A failed connect is
not retried automatically.

It exposes no HTTP surface itself; that is left to a collaborator process
that embeds internal/hub.Hub or talks to it over an in-process API.`,
	SilenceUsage: true,
}

// SetVersion sets the version reported by --version and the version
// subcommand. Called from main with the build-time version string.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command, exiting the process on failure.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mcphubd version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mcphubd version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("mcphubd version %s\n", rootCmd.Version)
		},
	}
}
