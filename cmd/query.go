package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jcdickinson/symdex/internal/config"
	"github.com/jcdickinson/symdex/internal/loader"
	"github.com/jcdickinson/symdex/internal/rpc"
	"github.com/jcdickinson/symdex/internal/search"
)

// parseRef splits "name@version". A missing version selects the latest build.
func parseRef(arg string) rpc.SnapshotRef {
	name, version, _ := strings.Cut(arg, "@")
	return rpc.SnapshotRef{Snapshot: name, Version: version}
}

func printSymbols(results []rpc.SymbolResult) {
	if len(results) == 0 {
		fmt.Println("no results")
		return
	}
	for i, r := range results {
		fmt.Printf("%d. %s (%s)\n", i+1, r.QualifiedName, r.Kind)
		fmt.Printf("   %s\n", r.URI)
		for _, loc := range r.Locations {
			fmt.Printf("   %s\n", loc)
		}
	}
}

var lookupCmd = &cobra.Command{
	Use:   "lookup [snapshot[@version]] <query>",
	Short: "Find symbols by name prefix",
	Long: `Find symbols whose name starts with the query. A scoped query such as
Tools::Parsed also matches on enclosing scopes. With --dir, reads the search
shards of an exported artifact directory instead of asking the daemon.`,
	Example: `  symdex lookup fsi-suite Parsed
  symdex lookup fsi-suite@2024.1 --kind class --kind struct Tools::Pars
  symdex lookup --dir ./html Parsed`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runLookup,
}

var (
	lookupKinds    []string
	lookupLimit    int
	lookupDir      string
	lookupCategory string
)

func init() {
	lookupCmd.Flags().StringSliceVar(&lookupKinds, "kind", nil, "filter to symbol kinds (repeatable)")
	lookupCmd.Flags().IntVar(&lookupLimit, "limit", 20, "max results")
	lookupCmd.Flags().StringVar(&lookupDir, "dir", "", "query an exported artifact directory")
	lookupCmd.Flags().StringVar(&lookupCategory, "category", "", "search category to read with --dir (default all)")
}

func runLookup(cmd *cobra.Command, args []string) {
	if lookupDir != "" {
		if len(args) != 1 {
			log.Fatal("lookup --dir takes only the query")
		}
		runLookupDir(args[0])
		return
	}
	if len(args) != 2 {
		log.Fatal("lookup needs a snapshot and a query")
	}

	client, err := connectDaemon()
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	resp, err := client.Lookup(context.Background(), rpc.LookupRequest{
		SnapshotRef: parseRef(args[0]),
		Query:       args[1],
		Kinds:       lookupKinds,
		Limit:       lookupLimit,
	})
	if err != nil {
		log.Fatalf("lookup failed: %v", err)
	}
	printSymbols(resp.Results)
}

func runLookupDir(query string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	l := loader.New(loader.DirSource{Dir: lookupDir, Category: lookupCategory}, search.LoaderOptions(cfg)...)
	matches, err := l.Lookup(context.Background(), query, lookupLimit)
	if err != nil {
		log.Fatalf("lookup failed: %v", err)
	}
	if len(matches) == 0 {
		fmt.Println("no results")
		return
	}
	for i, m := range matches {
		fmt.Printf("%d. %s\n", i+1, m.QualifiedName)
		for _, loc := range m.Locations {
			fmt.Printf("   %s\n", loc)
		}
	}
}

var pathCmd = &cobra.Command{
	Use:     "path <snapshot[@version]> <symbol>",
	Short:   "Show the namespaces and classes enclosing a symbol",
	Example: `  symdex path fsi-suite Tools::ParsedFunction::parse`,
	Args:    cobra.ExactArgs(2),
	Run:     runPath,
}

func runPath(cmd *cobra.Command, args []string) {
	client, err := connectDaemon()
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	resp, err := client.Path(context.Background(), rpc.PathRequest{
		SnapshotRef: parseRef(args[0]),
		Symbol:      args[1],
	})
	if err != nil {
		log.Fatalf("path lookup failed: %v", err)
	}
	for depth, r := range resp.Path {
		fmt.Printf("%s%s (%s)\n", strings.Repeat("  ", depth), r.DisplayName, r.Kind)
	}
}

var (
	basesCmd = &cobra.Command{
		Use:   "bases <snapshot[@version]> <class>",
		Short: "List the base classes of a class",
		Example: `  symdex bases fsi-suite Tools::ParsedFunction
  symdex bases --all fsi-suite Tools::ParsedFunction`,
		Args: cobra.ExactArgs(2),
		Run:  inheritanceRunner(rpc.DirectionBases, rpc.DirectionAncestors),
	}
	derivedCmd = &cobra.Command{
		Use:   "derived <snapshot[@version]> <class>",
		Short: "List the classes derived from a class",
		Example: `  symdex derived fsi-suite ParameterAcceptor
  symdex derived --all fsi-suite ParameterAcceptor`,
		Args: cobra.ExactArgs(2),
		Run:  inheritanceRunner(rpc.DirectionDerived, rpc.DirectionDescendants),
	}
)

func init() {
	basesCmd.Flags().Bool("all", false, "include indirect bases, nearest first")
	derivedCmd.Flags().Bool("all", false, "include indirect descendants, nearest first")
}

func inheritanceRunner(direct, transitive string) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		direction := direct
		if all, _ := cmd.Flags().GetBool("all"); all {
			direction = transitive
		}

		client, err := connectDaemon()
		if err != nil {
			log.Fatalf("failed to connect to daemon: %v", err)
		}

		resp, err := client.Inheritance(context.Background(), rpc.InheritanceRequest{
			SnapshotRef: parseRef(args[0]),
			Symbol:      args[1],
			Direction:   direction,
		})
		if err != nil {
			log.Fatalf("inheritance lookup failed: %v", err)
		}
		printSymbols(resp.Results)
	}
}
