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

	"github.com/spf13/cobra"

	"github.com/jcdickinson/symdex/internal/artifact"
	"github.com/jcdickinson/symdex/internal/config"
	"github.com/jcdickinson/symdex/internal/doxygen"
	"github.com/jcdickinson/symdex/internal/manifest"
	"github.com/jcdickinson/symdex/internal/metrics"
	"github.com/jcdickinson/symdex/internal/query"
	"github.com/jcdickinson/symdex/internal/search"
	"github.com/jcdickinson/symdex/internal/symtab"
	"github.com/jcdickinson/symdex/internal/watch"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write search shards, hierarchy and navigation files to a directory",
	Long: `Build an index without the daemon and write its artifacts: search shards with
their keys file, the containment tree, the class hierarchy and the navigation
tree. With --watch, the manifest is rebuilt every time it changes.`,
	Example: `  symdex export --manifest fsi-suite.yaml --out ./html
  symdex export --manifest fsi-suite.yaml --out ./html --format js --compress
  symdex export --manifest fsi-suite.yaml --out ./html --category classes --watch
  symdex export --doxygen ./build/doc/html --out ./symdex`,
	Args: cobra.NoArgs,
	Run:  runExport,
}

var (
	exportManifest   string
	exportDoxygen    string
	exportOut        string
	exportFormat     string
	exportCompress   bool
	exportCategories []string
	exportWatch      bool
)

func init() {
	exportCmd.Flags().StringVar(&exportManifest, "manifest", "", "YAML or JSON symbol manifest")
	exportCmd.Flags().StringVar(&exportDoxygen, "doxygen", "", "Doxygen HTML output directory or URL")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output directory")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "json or js (default from config)")
	exportCmd.Flags().BoolVar(&exportCompress, "compress", false, "zstd-compress artifact files")
	exportCmd.Flags().StringSliceVar(&exportCategories, "category", nil, "extra per-kind search index to write (repeatable)")
	exportCmd.Flags().BoolVar(&exportWatch, "watch", false, "rebuild when the manifest changes")
	exportCmd.MarkFlagRequired("out")
	exportCmd.MarkFlagsOneRequired("manifest", "doxygen")
	exportCmd.MarkFlagsMutuallyExclusive("manifest", "doxygen")
	exportCmd.MarkFlagsMutuallyExclusive("doxygen", "watch")
}

type exporter struct {
	cfg    *config.Config
	writer *artifact.Writer
}

func newExporter(cmd *cobra.Command, cfg *config.Config) (*exporter, error) {
	w := &artifact.Writer{
		Dir:        exportOut,
		Format:     cfg.Export.Format,
		Compress:   cfg.Export.Compress,
		Categories: exportCategories,
	}
	if cmd.Flags().Changed("format") {
		f, err := artifact.ParseFormat(exportFormat)
		if err != nil {
			return nil, err
		}
		w.Format = f
	}
	if cmd.Flags().Changed("compress") {
		w.Compress = exportCompress
	}
	return &exporter{cfg: cfg, writer: w}, nil
}

func (e *exporter) table(ctx context.Context) (*symtab.Table, error) {
	if exportDoxygen != "" {
		site := &doxygen.Site{Base: exportDoxygen, NoCache: true}
		return site.Import(ctx)
	}
	m, err := manifest.Load(exportManifest)
	if err != nil {
		return nil, err
	}
	return m.Table(e.cfg.Index.InferContainment)
}

func (e *exporter) export(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveBuild(start, err) }()

	t, err := e.table(ctx)
	if err != nil {
		return err
	}
	ix, err := query.Build(t, search.IndexOptions(e.cfg)...)
	if err != nil {
		return fmt.Errorf("building index: %w", err)
	}
	written, err := e.writer.Write(ix)
	if err != nil {
		return err
	}
	slog.Info("exported", "symbols", ix.Len(), "shards", ix.Shards().Len(), "files", len(written), "dir", e.writer.Dir, "elapsed", time.Since(start))
	return nil
}

func runExport(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	e, err := newExporter(cmd, cfg)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := e.export(ctx); err != nil {
		if !exportWatch {
			log.Fatalf("export failed: %v", err)
		}
		slog.Error("export failed", "error", err)
	}
	if !exportWatch {
		return
	}

	w, err := watch.New(exportManifest, watch.DefaultDebounce)
	if err != nil {
		log.Fatalf("failed to watch manifest: %v", err)
	}
	slog.Info("watching manifest", "path", exportManifest)
	err = w.Run(ctx, func() {
		if err := e.export(ctx); err != nil {
			slog.Error("export failed", "error", err)
		}
	})
	if err != nil {
		log.Fatalf("watch failed: %v", err)
	}
}
