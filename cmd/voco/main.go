// Command voco is the terminal session client for the voco agent process.
// It keeps a reconnecting WebSocket session, folds the agent's event stream
// into a live timeline, answers workspace capability requests, and renders
// the conversation to the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"voco/internal/client"
	"voco/internal/config"
	"voco/internal/console"
	"voco/internal/logging"
)

// Set via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:          "voco",
		Short:        "Terminal client for the voco agent session",
		Long:         "voco connects to a running agent process, mirrors its plan and\nconversation as a live timeline, and serves workspace capabilities\n(file access, search, shell) back to the agent.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return runSession(cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("host", config.DefaultHost, "agent host")
	flags.Int("port", config.DefaultPort, "agent WebSocket port")
	flags.String("path", config.DefaultPath, "agent WebSocket path")
	flags.String("workspace", ".", "workspace root served to the agent")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("inspect", false, "serve session state and metrics over HTTP")
	flags.Int("inspect-port", config.DefaultInspectPort, "inspection server port")
	flags.Bool("no-color", false, "disable colored output")

	must(v.BindPFlag("host", flags.Lookup("host")))
	must(v.BindPFlag("port", flags.Lookup("port")))
	must(v.BindPFlag("path", flags.Lookup("path")))
	must(v.BindPFlag("workspace_root", flags.Lookup("workspace")))
	must(v.BindPFlag("log_level", flags.Lookup("log-level")))
	must(v.BindPFlag("inspect_enabled", flags.Lookup("inspect")))
	must(v.BindPFlag("inspect_port", flags.Lookup("inspect-port")))

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "voco %s\n", version)
		},
	})

	return cmd
}

func runSession(cmd *cobra.Command, cfg config.Config) error {
	logging.Root().SetLevel(logging.ParseLevel(cfg.LogLevel))

	noColor, _ := cmd.Flags().GetBool("no-color")
	isTTY := term.IsTerminal(int(os.Stdout.Fd()))
	renderer := console.New(os.Stdout, isTTY && !noColor)

	c, err := client.New(cfg, renderer)
	if err != nil {
		return err
	}
	return runInteractive(c, cfg, isTTY)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
