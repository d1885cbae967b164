package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/digineo/fastd-core/internal/fastd"
)

func peerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Manage peers (clone, remote, stats, lifecycle)",
	}

	cmd.AddCommand(peerCloneCmd())
	cmd.AddCommand(peerGetRemoteCmd())
	cmd.AddCommand(peerSetRemoteCmd())
	cmd.AddCommand(peerStatsCmd())
	cmd.AddCommand(peerTeardownCmd())
	cmd.AddCommand(peerDestroyCmd())

	return cmd
}

// --- peer clone ---

func peerCloneCmd() *cobra.Command {
	var (
		remote string
		pubkey string
	)

	cmd := &cobra.Command{
		Use:   "clone",
		Short: "Clone a new peer interface, optionally configuring its remote",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var params *fastd.CloneParams
			if remote != "" {
				ep, err := parseHostPort(remote)
				if err != nil {
					return fmt.Errorf("parse remote %q: %w", remote, err)
				}
				pk, err := parsePubKey(pubkey)
				if err != nil {
					return fmt.Errorf("parse pubkey: %w", err)
				}
				params = &fastd.CloneParams{Remote: ep, PubKey: pk}
			}

			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			name, err := c.CloneCreate(params)
			if err != nil {
				return fmt.Errorf("clone_create: %w", err)
			}

			fmt.Println(name)
			return nil
		},
	}

	cmd.Flags().StringVar(&remote, "remote", "", "initial remote endpoint (host:port)")
	cmd.Flags().StringVar(&pubkey, "pubkey", "", "informational public key, hex-encoded")

	return cmd
}

// --- peer get-remote ---

func peerGetRemoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-remote <name>",
		Short: "Show a peer's configured public key and remote endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			pk, remote, err := c.GetRemote(args[0])
			if err != nil {
				return fmt.Errorf("get_remote: %w", err)
			}

			fmt.Printf("remote: %s\npubkey: %s\n", remote, hex.EncodeToString(pk[:]))
			return nil
		},
	}
}

// --- peer set-remote ---

func peerSetRemoteCmd() *cobra.Command {
	var pubkey string

	cmd := &cobra.Command{
		Use:   "set-remote <name> <host:port>",
		Short: "Reconfigure a peer's remote endpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			ep, err := parseHostPort(args[1])
			if err != nil {
				return fmt.Errorf("parse remote %q: %w", args[1], err)
			}
			pk, err := parsePubKey(pubkey)
			if err != nil {
				return fmt.Errorf("parse pubkey: %w", err)
			}

			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.SetRemote(args[0], ep, pk); err != nil {
				return fmt.Errorf("set_remote: %w", err)
			}

			fmt.Printf("%s remote set to %s\n", args[0], ep)
			return nil
		},
	}

	cmd.Flags().StringVar(&pubkey, "pubkey", "", "informational public key, hex-encoded")

	return cmd
}

// --- peer stats ---

func peerStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <name>",
		Short: "Show a peer's packet counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			stats, err := c.GetStats(args[0])
			if err != nil {
				return fmt.Errorf("get_stats: %w", err)
			}

			fmt.Printf("ipackets: %d\nopackets: %d\n", stats.IPackets, stats.OPackets)
			return nil
		},
	}
}

// --- peer teardown ---

func peerTeardownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "teardown <name>",
		Short: "Mark a peer down and detach it, without releasing its resources",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Teardown(args[0]); err != nil {
				return fmt.Errorf("teardown: %w", err)
			}

			fmt.Printf("%s torn down\n", args[0])
			return nil
		},
	}
}

// --- peer destroy ---

func peerDestroyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy <name>",
		Short: "Block until a peer's references drain, then release its resources",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Destroy(args[0]); err != nil {
				return fmt.Errorf("destroy: %w", err)
			}

			fmt.Printf("%s destroyed\n", args[0])
			return nil
		},
	}
}
