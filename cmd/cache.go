package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jcdickinson/symdex/internal/config"
	"github.com/jcdickinson/symdex/internal/daemon"
	"github.com/jcdickinson/symdex/internal/doxygen"
)

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Drop loaded indexes and cached Doxygen scripts",
	Long: `Drop the indexes the daemon holds in memory and the cached Doxygen scripts.
Built snapshots stay in the database and are reloaded on the next query,
unless --all is given.`,
	Run: runClearCache,
}

var clearAll bool

func init() {
	clearCacheCmd.Flags().BoolVar(&clearAll, "all", false, "also delete every stored snapshot")
}

func runClearCache(cmd *cobra.Command, args []string) {
	client := daemon.NewClient(config.SocketPath())
	if !client.IsAvailable() && !clearAll {
		if err := doxygen.ClearCache(); err != nil {
			slog.Error("failed to clear doxygen cache", "error", err)
			os.Exit(1)
		}
		fmt.Println("doxygen cache cleared (daemon is not running)")
		return
	}

	if clearAll {
		// Deleting snapshots goes through the daemon, which owns the database.
		var err error
		if client, err = connectDaemon(); err != nil {
			slog.Error("failed to connect to daemon", "error", err)
			os.Exit(1)
		}
	}
	if err := client.ClearCache(context.Background(), clearAll); err != nil {
		slog.Error("failed to clear cache", "error", err)
		os.Exit(1)
	}
	if clearAll {
		fmt.Println("cache and snapshots cleared")
		return
	}
	fmt.Println("cache cleared")
}
