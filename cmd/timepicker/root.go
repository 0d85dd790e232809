package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mtpick/timepicker/internal/config"
	"github.com/mtpick/timepicker/internal/logging"
)

// app carries what PersistentPreRunE resolves for the subcommands.
type app struct {
	cfg    *config.EnvConfig
	logger *slog.Logger

	socket   string
	port     int
	logLevel string
	dataDir  string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "timepicker",
		Short:         "Mark time points in mpv and hand them to other programs",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			var o config.Overrides
			flags := cmd.Flags()
			if flags.Changed("socket") {
				o.SocketPath = a.socket
			}
			if flags.Changed("port") {
				o.Port = &a.port
			}
			if flags.Changed("log-level") {
				o.LogLevel = a.logLevel
			}
			if flags.Changed("data-dir") {
				o.DataDir = a.dataDir
			}
			if err := cfg.Apply(o); err != nil {
				return err
			}

			a.cfg = cfg
			a.logger = logging.NewLoggerTo(cmd.ErrOrStderr(), cfg.LogLevel())
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.socket, "socket", "", "mpv IPC socket path (env "+config.EnvSocket+")")
	pf.IntVar(&a.port, "port", 0, "control API port, 0 disables it (env "+config.EnvPort+")")
	pf.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (env "+config.EnvLogLevel+")")
	pf.StringVar(&a.dataDir, "data-dir", "", "directory for the dispatch history (env "+config.EnvDataDir+")")

	root.AddCommand(newRunCmd(a), newHistoryCmd(a), newVersionCmd())
	return root
}
