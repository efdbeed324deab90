package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/jcdickinson/symdex/internal/cas"
	"github.com/jcdickinson/symdex/internal/config"
	"github.com/jcdickinson/symdex/internal/daemon"
	"github.com/jcdickinson/symdex/internal/db"
	"github.com/jcdickinson/symdex/internal/mcp"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "symdex",
	Short: "C++ symbol documentation index and MCP server",
	Long: `Index Doxygen output or symbol manifests and answer prefix, containment and
inheritance queries. Without a subcommand, runs as an MCP server on stdio.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
				Level:      slog.LevelDebug,
				TimeFormat: time.Kitchen,
			})))
		}
	},
	Run: runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("command failed: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "run daemon in-process (visible log output)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(pathCmd)
	rootCmd.AddCommand(basesCmd)
	rootCmd.AddCommand(derivedCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(clearCacheCmd)
}

// openStorage opens the configured database and the blob store.
func openStorage(cfg *config.Config) (*db.DB, *cas.Store, error) {
	database, err := db.New(cfg.Storage.Driver, config.DBPath(cfg.Storage.Driver))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return database, cas.Default(), nil
}

// connectDaemon returns a daemon client. With --debug the daemon runs in
// this process instead, replacing any daemon already on the socket, so its
// log output reaches the terminal.
func connectDaemon() (*daemon.Client, error) {
	socketPath := config.SocketPath()
	if !debug {
		return daemon.ConnectOrSpawn(socketPath)
	}

	client := daemon.NewClient(socketPath)
	if client.IsAvailable() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Shutdown(ctx)
		cancel()
		if err != nil {
			slog.Warn("stopping running daemon", "error", err)
		}
		time.Sleep(200 * time.Millisecond)
	}

	srv, _, err := newDaemonServer()
	if err != nil {
		return nil, err
	}
	go func() {
		if err := srv.Start(context.Background()); err != nil {
			slog.Error("in-process daemon stopped", "error", err)
		}
	}()

	if !client.WaitReady(5 * time.Second) {
		return nil, fmt.Errorf("in-process daemon not listening on %s", socketPath)
	}
	return client, nil
}

func runServe(cmd *cobra.Command, args []string) {
	if debug {
		if _, err := connectDaemon(); err != nil {
			log.Fatalf("starting in-process daemon: %v", err)
		}
	}

	server, err := mcp.NewServer(config.SocketPath())
	if err != nil {
		log.Fatalf("creating MCP server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	select {
	case <-ctx.Done():
		slog.Info("shutting down on signal")
	case err := <-errCh:
		if err != nil {
			log.Fatalf("MCP server: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
}
