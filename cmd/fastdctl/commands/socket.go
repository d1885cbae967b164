package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func socketCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "socket",
		Short: "Manage bound UDP sockets",
	}

	cmd.AddCommand(socketBindCmd())
	cmd.AddCommand(socketCloseCmd())

	return cmd
}

// --- socket bind ---

func socketBindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bind <host:port>",
		Short: "Bind a new UDP listen socket",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			local, err := parseHostPort(args[0])
			if err != nil {
				return fmt.Errorf("parse %q: %w", args[0], err)
			}

			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			bound, err := c.Bind(local)
			if err != nil {
				return fmt.Errorf("bind: %w", err)
			}

			fmt.Printf("bound %s\n", bound)
			return nil
		},
	}
}

// --- socket close ---

func socketCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <host:port>",
		Short: "Close a bound UDP socket, detaching its peers",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			local, err := parseHostPort(args[0])
			if err != nil {
				return fmt.Errorf("parse %q: %w", args[0], err)
			}

			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.CloseSocket(local); err != nil {
				return fmt.Errorf("close: %w", err)
			}

			fmt.Printf("closed %s\n", args[0])
			return nil
		},
	}
}
