package mcphubd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcphub/internal/eventbus"
	"github.com/giantswarm/mcphub/internal/hub"
	"github.com/giantswarm/mcphub/internal/hubconfig"
	"github.com/giantswarm/mcphub/internal/oauthprovider"
	"github.com/giantswarm/mcphub/internal/shutdown"
	"github.com/giantswarm/mcphub/internal/supervisor"
	"github.com/giantswarm/mcphub/pkg/logging"
)

var (
	serveConfigPath    string
	serveWatch         bool
	serveAutoShutdown  bool
	serveShutdownDelay time.Duration
	serveLogLevel      string
	serveOAuthRedirect string
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the configuration and supervise every enabled server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	cmd.Flags().StringVar(&serveConfigPath, "config", "", "path to the mcpServers configuration file (required)")
	cmd.Flags().BoolVar(&serveWatch, "watch", true, "reload configuration when the file changes on disk")
	cmd.Flags().BoolVar(&serveAutoShutdown, "auto-shutdown", false, "stop the process once the last subscriber disconnects")
	cmd.Flags().DurationVar(&serveShutdownDelay, "shutdown-delay", 30*time.Second, "grace period before auto-shutdown fires")
	cmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "minimum log level: debug, info, warn, error")
	cmd.Flags().StringVar(&serveOAuthRedirect, "oauth-redirect-base", "", "base URL an external collaborator serves OAuth callbacks under, e.g. http://127.0.0.1:8090")

	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	level, err := parseLogLevel(serveLogLevel)
	if err != nil {
		return err
	}
	logging.Configure(level, os.Stderr)

	bus := eventbus.New(eventbus.DefaultQueueSize)
	logging.SetSink(bus.LogSink())

	store := hubconfig.NewFileStore(serveConfigPath)

	oauthStore, err := oauthprovider.NewStore("")
	if err != nil {
		return fmt.Errorf("open oauth state store: %w", err)
	}

	h := hub.New(hub.Config{
		Store: store,
		Bus:   bus,
		OAuth: supervisor.OAuthConfig{
			RedirectBaseURL: serveOAuthRedirect,
			Store:           oauthStore,
		},
		Watch: serveWatch,
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := h.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize hub: %w", err)
	}
	defer h.Shutdown()

	accountant := shutdown.New(shutdown.Config{
		Bus:           bus,
		Enabled:       serveAutoShutdown,
		ShutdownDelay: serveShutdownDelay,
		Requester:     func() { cancel() },
	})
	defer accountant.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	logging.Info("mcphubd", "serving %s (watch=%v auto-shutdown=%v)", serveConfigPath, serveWatch, serveAutoShutdown)

	select {
	case sig := <-sigCh:
		logging.Info("mcphubd", "received %s, shutting down", sig)
	case <-ctx.Done():
		logging.Info("mcphubd", "auto-shutdown timer expired, shutting down")
	}

	return nil
}

func parseLogLevel(s string) (logging.Level, error) {
	switch s {
	case "debug":
		return logging.LevelDebug, nil
	case "info":
		return logging.LevelInfo, nil
	case "warn":
		return logging.LevelWarn, nil
	case "error":
		return logging.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
