package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"roomchat/internal/client"
	"roomchat/internal/commands"
)

type options struct {
	addr      string
	adminAddr string
	username  string
	password  string
	interval  time.Duration
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "chatctl",
		Short:         "Command line client for the room chat service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.addr, "addr", envOr("ROOMCHAT_ADDR", "127.0.0.1:15535"), "chat server address")
	root.PersistentFlags().StringVar(&opts.adminAddr, "admin-addr", envOr("ROOMCHAT_ADMIN_ADDR", "localhost:15536"), "admin API address")
	root.PersistentFlags().StringVarP(&opts.username, "user", "u", os.Getenv("USER"), "username")
	root.PersistentFlags().StringVarP(&opts.password, "password", "p", "", "password used by signup")
	root.PersistentFlags().DurationVar(&opts.interval, "interval", time.Second, "heartbeat interval for join")

	newClient := func() *client.Client {
		return client.New(opts.addr, opts.username)
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "signup",
			Short: "Register a user or check its password",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return commands.Signup(cmd.Context(), newClient(), opts.password, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "create <room> [password] [y/n]",
			Short: "Create a room, optionally with a password and hidden history",
			Args:  cobra.RangeArgs(1, 3),
			RunE: func(cmd *cobra.Command, args []string) error {
				var password *string
				if len(args) > 1 && args[1] != "" {
					password = &args[1]
				}
				history := true
				if len(args) > 2 {
					var err error
					if history, err = commands.ParseHistoryFlag(args[2]); err != nil {
						return err
					}
				}
				return commands.CreateRoom(cmd.Context(), newClient(), args[0], password, history, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "join <room>",
			Short: "Join a room and print new messages until interrupted",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return commands.Join(cmd.Context(), newClient(), args[0], opts.interval, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "send <room> <text>",
			Short: "Send a text message to a room",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return commands.Send(cmd.Context(), newClient(), args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "exit <room>",
			Short: "Leave the online list of a room",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return commands.ExitRoom(cmd.Context(), newClient(), args[0], cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "listr",
			Short: "List rooms with their online users",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return commands.ListRooms(cmd.Context(), newClient(), cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "listu",
			Short: "List registered users",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return commands.ListUsers(cmd.Context(), newClient(), cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show server counters (admin API)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return commands.Stats(cmd.Context(), opts.adminAddr, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "flush",
			Short: "Write server state to disk now (admin API)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return commands.Flush(cmd.Context(), opts.adminAddr, cmd.OutOrStdout())
			},
		},
	)

	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
