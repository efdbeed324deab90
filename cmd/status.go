package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jcdickinson/symdex/internal/config"
	"github.com/jcdickinson/symdex/internal/daemon"
	"github.com/jcdickinson/symdex/internal/rpc"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:          "status",
	Short:        "Show indexed snapshots and daemon state",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connectDaemon()
		if err != nil {
			return fmt.Errorf("connecting to daemon: %w", err)
		}
		resp, err := client.Status(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if statusJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		printStatus(out, resp.Snapshots)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func printStatus(w io.Writer, snapshots []rpc.SnapshotStatus) {
	if len(snapshots) == 0 {
		fmt.Fprintln(w, "no snapshots indexed")
		return
	}
	for _, s := range snapshots {
		fmt.Fprintf(w, "  %s@%s [%s] %s symbols, %s shards, used %s\n",
			s.Name, s.Version, snapshotState(s),
			humanize.Comma(int64(s.Symbols)), humanize.Comma(int64(s.Shards)),
			humanize.Time(s.LastUsedAt))
		if s.Source != "" {
			fmt.Fprintf(w, "    from %s\n", s.Source)
		}
	}
}

func snapshotState(s rpc.SnapshotStatus) string {
	flags := []string{"building"}
	if s.Built {
		flags[0] = "ready"
	}
	if s.Latest {
		flags = append(flags, "latest")
	}
	if s.Loaded {
		flags = append(flags, "loaded")
	}
	return strings.Join(flags, ", ")
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background daemon",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := daemon.NewClient(config.SocketPath())
		if !client.IsAvailable() {
			fmt.Fprintln(cmd.OutOrStdout(), "daemon is not running")
			return
		}
		// The connection may drop before the reply arrives.
		_ = client.Shutdown(context.Background())
		fmt.Fprintln(cmd.OutOrStdout(), "daemon stopped")
	},
}
