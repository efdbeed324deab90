package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jcdickinson/symdex/internal/config"
	"github.com/jcdickinson/symdex/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:          "daemon",
	Short:        "Run the background daemon (usually spawned automatically)",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	logFile, err := daemon.OpenLog()
	if err != nil {
		return err
	}
	defer logFile.Close()
	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, nil)))

	srv, closeStorage, err := newDaemonServer()
	if err != nil {
		slog.Error("daemon setup failed", "error", err)
		return err
	}
	defer closeStorage()

	if err := srv.Start(context.Background()); err != nil {
		slog.Error("daemon stopped", "error", err)
		return err
	}
	return nil
}

// newDaemonServer loads the config and opens storage for a daemon on the
// configured socket. The returned func closes the database.
func newDaemonServer() (*daemon.Server, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	database, blobs, err := openStorage(cfg)
	if err != nil {
		return nil, nil, err
	}
	return daemon.NewServer(cfg, database, blobs, config.SocketPath()), database.Close, nil
}
