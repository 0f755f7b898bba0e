package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/relayout/internal/docker"
	"github.com/jackzampolin/relayout/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relayout server",
	Long: `Start the relayout HTTP server.

When detector.container.auto_start is set, the detector container is
started with the server and stopped when the server shuts down
(via Ctrl+C or SIGTERM).

Reclassify thresholds and label tables are reloaded when the config
file changes; other settings need a restart.

The server provides:
  - /health - Basic server health check
  - /ready  - Readiness check (includes page store status)
  - /status - Store driver and detector status
  - /api/*  - Document, page and layout endpoints

Examples:
  relayout serve                    # Start on the configured port (8080)
  relayout serve --port 3000        # Start on custom port
  relayout serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		h, err := getHome()
		if err != nil {
			return err
		}

		cfgMgr, err := loadConfig(h)
		if err != nil {
			return err
		}
		cfgMgr.OnError(func(err error) {
			logger.Error("config reload failed", "error", err)
		})
		cfgMgr.WatchConfig()
		if f := cfgMgr.ConfigFile(); f != "" {
			logger.Info("using config file", "path", f)
		}

		cfg := cfgMgr.Get()
		host, port := cfg.Server.Host, cfg.Server.Port
		if cmd.Flags().Changed("host") {
			host = serveHost
		}
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		var mgr *docker.Manager
		if cfg.Detector.Container.AutoStart {
			mgr, err = getDockerManager(h, cfg)
			if err != nil {
				return err
			}
			defer mgr.Close()
		}

		srv, err := server.New(server.Config{
			Host:          host,
			Port:          port,
			Home:          h,
			ConfigManager: cfgMgr,
			DockerManager: mgr,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to (overrides server.host)")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on (overrides server.port)")

	rootCmd.AddCommand(serveCmd)
}
