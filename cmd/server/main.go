package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/streamchat-server/internal/app"
	"github.com/vovakirdan/streamchat-server/internal/config"
	"github.com/vovakirdan/streamchat-server/internal/log"
)

func main() {
	var (
		configPath  string
		tcpAddr     string
		httpAddr    string
		logLevel    string
		authBackend string
		dbPath      string
	)

	rootCmd := &cobra.Command{
		Use:   "streamchat-server",
		Short: "Text chat server with TCP and WebSocket transports",
		RunE: func(cmd *cobra.Command, args []string) error {
			bootLogger := log.New("info")

			cfg, cfgPath, err := config.Load(bootLogger, configPath)
			if err != nil {
				return err
			}

			// Flags beat the config file and environment.
			flags := cmd.Flags()
			if flags.Changed("tcp-addr") {
				cfg.TCPAddr = tcpAddr
			}
			if flags.Changed("http-addr") {
				cfg.HTTPAddr = httpAddr
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("auth-backend") {
				cfg.AuthBackend = authBackend
			}
			if flags.Changed("db") {
				cfg.DatabasePath = dbPath
			}

			logger := log.New(cfg.LogLevel)
			logger.Info().
				Str("config", cfgPath).
				Str("tcp_addr", cfg.TCPAddr).
				Str("http_addr", cfg.HTTPAddr).
				Str("auth_backend", cfg.AuthBackend).
				Msg("starting streamchat server")

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.Run(ctx)
		},
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.Flags().StringVar(&tcpAddr, "tcp-addr", "", "TCP listen address (overrides config)")
	rootCmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.Flags().StringVar(&authBackend, "auth-backend", "", "auth backend: memory or sqlite")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
