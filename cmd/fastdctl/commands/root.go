package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/digineo/fastd-core/internal/fastd"
)

// socketPath is the control socket address, set via the --socket
// persistent flag and used to dial a fresh *fastd.Client per invocation.
var socketPath string

// rootCmd is the top-level cobra command for fastdctl.
var rootCmd = &cobra.Command{
	Use:   "fastdctl",
	Short: "CLI client for the fastd-core daemon",
	Long:  "fastdctl talks to the fastd-core control socket to manage sockets and peers.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/var/run/fastd-core.sock",
		"fastd-core control socket path")

	rootCmd.AddCommand(socketCmd())
	rootCmd.AddCommand(peerCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// dial connects to the configured control socket.
func dial() (*fastd.Client, error) {
	c, err := fastd.DialControl(socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", socketPath, err)
	}
	return c, nil
}
