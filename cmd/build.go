package cmd

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jcdickinson/symdex/internal/rpc"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Index a documentation snapshot",
	Long: `Build a snapshot from a symbol manifest or from Doxygen HTML output and store it
in the daemon. Name and version default to the manifest's snapshot block.`,
	Example: `  symdex build --manifest fsi-suite.yaml
  symdex build --doxygen ./build/doc/html --snapshot fsi-suite@2024.1
  symdex build --doxygen https://www.dealii.org/current/doxygen/deal.II --snapshot dealii@9.6 --force`,
	Args: cobra.NoArgs,
	Run:  runBuild,
}

var (
	buildManifest string
	buildDoxygen  string
	buildSnapshot string
	buildForce    bool
)

func init() {
	buildCmd.Flags().StringVar(&buildManifest, "manifest", "", "YAML or JSON symbol manifest")
	buildCmd.Flags().StringVar(&buildDoxygen, "doxygen", "", "Doxygen HTML output directory or URL")
	buildCmd.Flags().StringVar(&buildSnapshot, "snapshot", "", "snapshot as name@version")
	buildCmd.Flags().BoolVar(&buildForce, "force", false, "rebuild an already built snapshot")
	buildCmd.MarkFlagsOneRequired("manifest", "doxygen")
	buildCmd.MarkFlagsMutuallyExclusive("manifest", "doxygen")
}

// localPath makes a path absolute so the daemon, which runs in another
// directory, can open it. URLs are returned unchanged.
func localPath(p string) (string, error) {
	if p == "" || strings.Contains(p, "://") {
		return p, nil
	}
	return filepath.Abs(p)
}

func snapshotSpec() (rpc.SnapshotSpec, error) {
	spec := rpc.SnapshotSpec{Force: buildForce}
	if buildSnapshot != "" {
		spec.Name, spec.Version, _ = strings.Cut(buildSnapshot, "@")
	}
	var err error
	if spec.Manifest, err = localPath(buildManifest); err != nil {
		return spec, fmt.Errorf("resolving manifest path: %w", err)
	}
	if spec.Doxygen, err = localPath(buildDoxygen); err != nil {
		return spec, fmt.Errorf("resolving doxygen path: %w", err)
	}
	if spec.Doxygen != "" && (spec.Name == "" || spec.Version == "") {
		return spec, fmt.Errorf("--doxygen needs --snapshot name@version")
	}
	return spec, nil
}

func runBuild(cmd *cobra.Command, args []string) {
	spec, err := snapshotSpec()
	if err != nil {
		log.Fatal(err)
	}

	client, err := connectDaemon()
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	resp, err := client.Build(context.Background(), []rpc.SnapshotSpec{spec}, func(msg string) {
		fmt.Printf("  %s\n", msg)
	})
	if err != nil {
		log.Fatalf("failed to build snapshot: %v", err)
	}

	for _, r := range resp.Results {
		switch {
		case r.Error != "":
			fmt.Printf("  %s@%s: error: %s\n", r.Name, r.Version, r.Error)
		case r.Cached:
			fmt.Printf("  %s@%s: already built, %d symbols in %d shards\n", r.Name, r.Version, r.Symbols, r.Shards)
		default:
			fmt.Printf("  %s@%s: %d symbols indexed in %d shards\n", r.Name, r.Version, r.Symbols, r.Shards)
		}
	}
}

var removeCmd = &cobra.Command{
	Use:   "remove <snapshot[@version]>",
	Short: "Delete a stored snapshot",
	Long:  `Delete a snapshot from the daemon's database. Without a version, the latest build is removed.`,
	Example: `  symdex remove fsi-suite@2024.1
  symdex remove fsi-suite`,
	Args: cobra.ExactArgs(1),
	Run:  runRemove,
}

func runRemove(cmd *cobra.Command, args []string) {
	client, err := connectDaemon()
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	resp, err := client.Remove(context.Background(), parseRef(args[0]))
	if err != nil {
		log.Fatalf("remove failed: %v", err)
	}
	fmt.Printf("removed %s@%s\n", resp.Name, resp.Version)
}
