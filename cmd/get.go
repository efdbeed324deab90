package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jcdickinson/symdex/internal/markdown"
	"github.com/jcdickinson/symdex/internal/rpc"
	"github.com/jcdickinson/symdex/internal/search"
)

var getCmd = &cobra.Command{
	Use:   "get <symdoc://snapshot/version/symbol>",
	Short: "Read a symbol's documentation page by URI",
	Example: `  symdex get symdoc://fsi-suite/2024.1/Tools::ParsedFunction
  symdex get fsi-suite/2024.1/Tools::Parser
  symdex get --html symdoc://fsi-suite/2024.1/Tools::Parser > parser.html`,
	Args: cobra.ExactArgs(1),
	Run:  runGet,
}

var getHTML bool

func init() {
	getCmd.Flags().BoolVar(&getHTML, "html", false, "render the page as HTML")
}

func runGet(cmd *cobra.Command, args []string) {
	uri := args[0]
	if !strings.Contains(uri, "://") {
		uri = search.Scheme + uri
	}
	snapshot, version, symbol, err := search.ParseURI(uri)
	if err != nil {
		log.Fatalf("invalid URI: %v", err)
	}

	client, err := connectDaemon()
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	resp, err := client.GetDoc(context.Background(), rpc.GetDocRequest{
		SnapshotRef: rpc.SnapshotRef{Snapshot: snapshot, Version: version},
		Symbol:      symbol,
	})
	if err != nil {
		log.Fatalf("get doc failed: %v", err)
	}

	if getHTML {
		fmt.Print(markdown.ToHTML(resp.Markdown))
		return
	}
	fmt.Print(resp.Markdown)
}
