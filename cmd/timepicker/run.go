package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtpick/timepicker/internal/api"
	"github.com/mtpick/timepicker/internal/db"
	"github.com/mtpick/timepicker/internal/history"
	"github.com/mtpick/timepicker/internal/logging"
	"github.com/mtpick/timepicker/internal/mpv"
	"github.com/mtpick/timepicker/internal/picker"
	"github.com/mtpick/timepicker/internal/process"
	"github.com/mtpick/timepicker/internal/watcher"
)

// programGrace bounds how long shutdown waits for launched programs to report.
const programGrace = 5 * time.Second

func newRunCmd(a *app) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Attach to mpv and serve time picking until mpv exits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, wait)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the mpv socket to appear instead of failing")
	return cmd
}

func (a *app) run(ctx context.Context, wait bool) error {
	startTime := time.Now()
	cfg, logger := a.cfg, a.logger
	logger.Info("starting time picker", "socket", cfg.SocketPath(), "data_dir", logging.SanitizePath(cfg.DataDir()))

	if wait {
		if err := watcher.WaitForFile(ctx, cfg.SocketPath(), logger); err != nil {
			return fmt.Errorf("waiting for mpv socket: %w", err)
		}
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()
	repo := history.NewRepository(database.Conn())

	client, err := mpv.Dial(ctx, cfg.SocketPath(), logger)
	if err != nil {
		return err
	}
	defer client.Close()
	host := mpv.NewHost(client)

	var hub *api.Hub
	pcfg := picker.Config{
		Host:           host,
		Runner:         process.NewExecRunner(logging.WithComponent(logger, "process")),
		History:        repo,
		Logger:         logger,
		RenderInterval: cfg.RenderInterval(),
	}
	if cfg.APIEnabled() {
		hub = api.NewHub(logging.WithComponent(logger, "stream"))
		pcfg.Observer = hub
	}
	controller := picker.New(pcfg)

	setupCtx, cancelSetup := context.WithTimeout(ctx, 5*time.Second)
	defer cancelSetup()
	if err := host.Observe(setupCtx); err != nil {
		return fmt.Errorf("failed to observe mpv properties: %w", err)
	}
	bindings := picker.Bindings{Pick: cfg.KeyPick(), Remove: cfg.KeyRemove(), Clear: cfg.KeyClear()}
	if err := controller.Bind(setupCtx, bindings); err != nil {
		// older mpv builds lack keybind; script-message still works
		logger.Warn("key bindings unavailable", "error", err)
	}

	var apiServer *api.Server
	if cfg.APIEnabled() {
		apiServer = api.NewServer(api.ServerConfig{
			Port:      cfg.Port(),
			Token:     cfg.APIToken(),
			Marks:     picker.NewService(controller),
			History:   repo,
			Hub:       hub,
			Logger:    logging.WithComponent(logger, "api"),
			StartTime: startTime,
		})
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("HTTP server error", "error", err)
			}
		}()
	}

	err = controller.Run(ctx, mpv.Forward(ctx, client.Events()))
	if errors.Is(err, context.Canceled) {
		logger.Info("received shutdown signal")
		err = nil
	}

	if cerr := client.Err(); cerr != nil {
		logger.Warn("mpv connection ended", "error", cerr)
	}

	logger.Info("initiating graceful shutdown")
	waitCtx, cancelWait := context.WithTimeout(context.Background(), programGrace)
	defer cancelWait()
	if werr := controller.Wait(waitCtx); werr != nil {
		logger.Warn("programs still running at exit; they will be marked interrupted on next start", "grace", programGrace.String())
	}
	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown HTTP server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return err
}
