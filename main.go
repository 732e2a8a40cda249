package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iedon/meta-fileserver/config"
	"github.com/iedon/meta-fileserver/server"
	"github.com/iedon/meta-fileserver/site"
)

const defaultConfigPath = "fileserver.conf"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   SERVER_NAME + " [root] [port]",
	Short: "Serve a directory tree over HTTP with generated index pages",
	Long: `meta-fileserver answers one HTTP/1.1 GET or HEAD request per connection with
a file, a generated directory listing, or an error page. Pages are built from the
skeleton in <root>/<meta-root>/templates/default.template.html.

Positional arguments override the root and port from the config file.`,
	Args:          cobra.MaximumNArgs(2),
	Version:       SERVER_SIGNATURE,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to key=value configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override: debug, info, warn or error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("starting", "version", SERVER_SIGNATURE, "root", cfg.Root, "listen", cfg.Listen)
	logger.Debug("configuration", "config", cfg.String())

	svc := site.NewService(cfg, logger, SERVER_SIGNATURE)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, svc, logger, SERVER_SIGNATURE)
	if err := srv.Start(ctx); err != nil {
		logger.Error("server", "error", err)
		return err
	}
	return nil
}

// loadConfig resolves the config file and folds flag and positional
// overrides on top of it. A missing file is tolerated only at the default path.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	path := configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	overrides := make(map[string]any)
	if len(args) > 0 {
		overrides[config.KeyRoot] = args[0]
	}
	if len(args) > 1 {
		overrides[config.KeyPort] = args[1]
		// An explicit port also moves the listen address.
		overrides[config.KeyListen] = ""
	}
	if logLevel != "" {
		overrides[config.KeyLogLevel] = logLevel
	}

	cfg, err := config.Load(path, overrides)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
