package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jcdickinson/symdex/internal/artifact"
	"github.com/jcdickinson/symdex/internal/cas"
	"github.com/jcdickinson/symdex/internal/config"
	"github.com/jcdickinson/symdex/internal/db"
	"github.com/jcdickinson/symdex/internal/loader"
	md "github.com/jcdickinson/symdex/internal/markdown"
	"github.com/jcdickinson/symdex/internal/metrics"
	"github.com/jcdickinson/symdex/internal/query"
	"github.com/jcdickinson/symdex/internal/rpc"
	"github.com/jcdickinson/symdex/internal/shard"
	"github.com/jcdickinson/symdex/internal/symtab"
)

// ErrBadRequest marks queries that cannot be answered as asked.
var ErrBadRequest = errors.New("bad request")

// IndexOptions turns the index settings into query.Build options.
func IndexOptions(cfg *config.Config) []query.Option {
	return []query.Option{
		query.WithKeyFunc(shard.PrefixKey(cfg.Index.ShardPrefixLength)),
		query.WithOrder(cfg.Index.ChildOrder),
		query.WithNavChunkSize(cfg.Index.NavChunkSize),
	}
}

// LoaderOptions turns the index and loader settings into loader options.
func LoaderOptions(cfg *config.Config) []loader.Option {
	return []loader.Option{
		loader.WithKeyFunc(shard.PrefixKey(cfg.Index.ShardPrefixLength)),
		loader.WithMaxRetries(cfg.Loader.MaxRetries),
		loader.WithInitialBackoff(cfg.Loader.InitialBackoff),
	}
}

// Searcher answers queries against stored snapshots. A snapshot's index is
// rebuilt from the database the first time a query needs it and published
// for later queries. Prefix lookups on a snapshot whose index is not
// resident read its shards from the blob store instead.
type Searcher struct {
	db         *db.DB
	blobs      *cas.Store
	opts       []query.Option
	loaderOpts []loader.Option
	baseURL    string

	group singleflight.Group

	mu      sync.RWMutex
	indexes map[int64]*query.Holder
	loaders map[loaderKey]*loader.Loader
}

type loaderKey struct {
	snapshotID int64
	category   string
}

func NewSearcher(database *db.DB, blobs *cas.Store, cfg *config.Config) *Searcher {
	return &Searcher{
		db:         database,
		blobs:      blobs,
		opts:       IndexOptions(cfg),
		loaderOpts: LoaderOptions(cfg),
		baseURL:    cfg.Docs.BaseURL,
		indexes:    make(map[int64]*query.Holder),
		loaders:    make(map[loaderKey]*loader.Loader),
	}
}

// Snapshot resolves a reference to a built snapshot. An empty version
// selects the latest build.
func (s *Searcher) Snapshot(ref rpc.SnapshotRef) (*db.Snapshot, error) {
	snap, err := s.find(ref)
	if err != nil {
		return nil, err
	}
	if snap == nil || snap.BuiltAt == nil {
		return nil, fmt.Errorf("%w: snapshot %s", symtab.ErrNotFound, describe(ref))
	}
	if err := s.db.TouchSnapshot(snap.ID); err != nil {
		slog.Debug("touching snapshot failed", "snapshot", snap.Name, "error", err)
	}
	return snap, nil
}

func (s *Searcher) find(ref rpc.SnapshotRef) (*db.Snapshot, error) {
	if ref.Snapshot == "" {
		return nil, fmt.Errorf("%w: missing snapshot name", ErrBadRequest)
	}
	if ref.Version == "" {
		return s.db.GetLatestSnapshot(ref.Snapshot)
	}
	return s.db.GetSnapshot(ref.Snapshot, ref.Version)
}

// Remove deletes a snapshot, built or not, and drops its resident index.
// Shard blobs stay in the blob store since other snapshots may share them.
func (s *Searcher) Remove(ref rpc.SnapshotRef) (*db.Snapshot, error) {
	snap, err := s.find(ref)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: snapshot %s", symtab.ErrNotFound, describe(ref))
	}
	s.Evict(snap.ID)
	if err := s.db.DeleteSnapshot(snap.ID); err != nil {
		return nil, fmt.Errorf("deleting snapshot %s: %w", describe(ref), err)
	}
	return snap, nil
}

func describe(ref rpc.SnapshotRef) string {
	if ref.Version == "" {
		return ref.Snapshot
	}
	return ref.Snapshot + "@" + ref.Version
}

func (s *Searcher) holder(snapshotID int64) *query.Holder {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.indexes[snapshotID]
	if !ok {
		h = &query.Holder{}
		s.indexes[snapshotID] = h
	}
	return h
}

func (s *Searcher) resident(snapshotID int64) *query.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h, ok := s.indexes[snapshotID]; ok {
		return h.Load()
	}
	return nil
}

// Index returns the published index of a snapshot, building it from the
// stored table on first use. Concurrent first uses share one build.
func (s *Searcher) Index(snap *db.Snapshot) (*query.Index, error) {
	if ix := s.resident(snap.ID); ix != nil {
		return ix, nil
	}
	v, err, _ := s.group.Do(strconv.FormatInt(snap.ID, 10), func() (interface{}, error) {
		if ix := s.resident(snap.ID); ix != nil {
			return ix, nil
		}
		start := time.Now()
		t, err := s.db.LoadTable(snap.ID)
		if err != nil {
			return nil, fmt.Errorf("loading %s@%s: %w", snap.Name, snap.Version, err)
		}
		ix, err := query.Build(t, s.opts...)
		if err != nil {
			return nil, fmt.Errorf("indexing %s@%s: %w", snap.Name, snap.Version, err)
		}
		s.holder(snap.ID).Publish(ix)
		slog.Info("index loaded", "snapshot", snap.Name, "version", snap.Version,
			"symbols", ix.Len(), "elapsed", time.Since(start))
		return ix, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*query.Index), nil
}

// Publish replaces the index of a snapshot with a freshly built one.
// Queries already running keep the index they started with.
func (s *Searcher) Publish(snapshotID int64, ix *query.Index) {
	s.holder(snapshotID).Publish(ix)
	s.mu.Lock()
	s.dropLoaders(snapshotID)
	s.mu.Unlock()
}

func (s *Searcher) dropLoaders(snapshotID int64) {
	for k := range s.loaders {
		if k.snapshotID == snapshotID {
			delete(s.loaders, k)
		}
	}
}

// Loaded reports whether the index of a snapshot is resident.
func (s *Searcher) Loaded(snapshotID int64) bool {
	return s.resident(snapshotID) != nil
}

// Evict drops everything held in memory for a snapshot.
func (s *Searcher) Evict(snapshotID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexes, snapshotID)
	s.dropLoaders(snapshotID)
}

// Reset drops every resident index and shard cache.
func (s *Searcher) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes = make(map[int64]*query.Holder)
	s.loaders = make(map[loaderKey]*loader.Loader)
}

func (s *Searcher) shardLoader(snapshotID int64, category string) *loader.Loader {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := loaderKey{snapshotID, category}
	l, ok := s.loaders[k]
	if !ok {
		src := loader.CASSource{Index: s.db, Blobs: s.blobs, SnapshotID: snapshotID, Category: category}
		l = loader.New(src, s.loaderOpts...)
		s.loaders[k] = l
	}
	return l
}

// Ingest writes the search shards of t to the blob store, then stores t and
// the shard records as the contents of snap and marks it built in one
// transaction, and publishes the new index. A failed ingest leaves the
// previous build of snap in place. t is frozen and belongs to the index
// afterwards.
func (s *Searcher) Ingest(snap *db.Snapshot, t *symtab.Table) (*query.Index, error) {
	ix, err := query.Build(t, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("indexing %s@%s: %w", snap.Name, snap.Version, err)
	}

	var records []db.ShardRecord
	for _, category := range shard.Categories() {
		set := ix.Shards()
		if category != shard.CategoryAll {
			kinds, _ := shard.KindsOf(category)
			if set, err = shard.Build(ix.Table(), ix.KeyFunc(), shard.WithKinds(kinds...)); err != nil {
				return nil, err
			}
		}
		for _, key := range set.Keys() {
			sh, _ := set.Get(key)
			data, err := artifact.EncodeShard(sh)
			if err != nil {
				return nil, fmt.Errorf("encoding shard %q: %w", key, err)
			}
			hash, err := s.blobs.Write(data)
			if err != nil {
				return nil, err
			}
			records = append(records, db.ShardRecord{Category: category, Key: key, ContentHash: hash, Entries: len(sh.Entries)})
		}
	}

	if err := s.db.StoreBuild(snap.ID, ix.Table(), records); err != nil {
		return nil, fmt.Errorf("storing %s@%s: %w", snap.Name, snap.Version, err)
	}
	s.Publish(snap.ID, ix)
	metrics.SymbolsIndexed.WithLabelValues(snap.Name).Set(float64(ix.Len()))
	return ix, nil
}

func (s *Searcher) result(snap *db.Snapshot, sym symtab.Symbol, locs []symtab.Location) rpc.SymbolResult {
	r := rpc.SymbolResult{
		URI:           URI(snap.Name, snap.Version, sym.QualifiedName),
		Snapshot:      snap.Name,
		Version:       snap.Version,
		QualifiedName: sym.QualifiedName,
		DisplayName:   sym.DisplayName(),
		Scope:         sym.Scope(),
		Kind:          string(sym.Kind),
	}
	for _, l := range locs {
		r.Locations = append(r.Locations, l.String())
	}
	return r
}

func parseKinds(names []string) ([]symtab.Kind, error) {
	kinds := make([]symtab.Kind, 0, len(names))
	for _, n := range names {
		k, err := symtab.ParseKind(n)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// Lookup finds symbols whose display name starts with the query.
func (s *Searcher) Lookup(ctx context.Context, req rpc.LookupRequest) ([]rpc.SymbolResult, error) {
	start := time.Now()
	kinds, err := parseKinds(req.Kinds)
	if err != nil {
		return nil, err
	}
	snap, err := s.Snapshot(req.SnapshotRef)
	if err != nil {
		return nil, err
	}

	var results []rpc.SymbolResult
	if ix := s.resident(snap.ID); ix != nil {
		for _, m := range ix.Lookup(req.Query, query.LookupOptions{Kinds: kinds, Limit: req.Limit}) {
			results = append(results, s.matchResult(snap, m))
		}
	} else {
		results, err = s.lazyLookup(ctx, snap, req.Query, kinds, req.Limit)
		if err != nil {
			return nil, err
		}
	}
	slog.Debug("lookup", "snapshot", snap.Name, "version", snap.Version, "query", req.Query, "results", len(results))
	metrics.ObserveLookup("prefix", start, len(results) > 0)
	return results, nil
}

func (s *Searcher) matchResult(snap *db.Snapshot, m query.Match) rpc.SymbolResult {
	return s.result(snap, symtab.Symbol{QualifiedName: m.QualifiedName, Kind: m.Kind}, m.Locations)
}

// lazyLookup answers from stored shard blobs. Shard rows carry no kind, so
// kinds come from the stored symbols of the matched names.
func (s *Searcher) lazyLookup(ctx context.Context, snap *db.Snapshot, text string, kinds []symtab.Kind, limit int) ([]rpc.SymbolResult, error) {
	matches, err := s.shardLoader(snap.ID, categoryOf(kinds)).Lookup(ctx, text, 0)
	if err != nil {
		return nil, fmt.Errorf("reading shards of %s@%s: %w", snap.Name, snap.Version, err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.QualifiedName)
	}
	stored, err := s.db.SymbolKinds(snap.ID, names)
	if err != nil {
		return nil, fmt.Errorf("resolving symbol kinds: %w", err)
	}

	var results []rpc.SymbolResult
	for _, m := range matches {
		sym, ok := stored[m.QualifiedName]
		if !ok {
			continue
		}
		if len(kinds) > 0 && !slices.Contains(kinds, sym.Kind) {
			continue
		}
		m.Kind, m.SymbolID = sym.Kind, sym.ID
		results = append(results, s.matchResult(snap, m))
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return results, nil
}

// categoryOf returns the single search category holding every kind in
// kinds, or "all".
func categoryOf(kinds []symtab.Kind) string {
	if len(kinds) == 0 {
		return shard.CategoryAll
	}
	c := shard.Category(kinds[0])
	for _, k := range kinds[1:] {
		if shard.Category(k) != c {
			return shard.CategoryAll
		}
	}
	if c == "" {
		return shard.CategoryAll
	}
	return c
}

func (s *Searcher) resolve(ref rpc.SnapshotRef, name string) (*db.Snapshot, *query.Index, symtab.Symbol, error) {
	snap, err := s.Snapshot(ref)
	if err != nil {
		return nil, nil, symtab.Symbol{}, err
	}
	ix, err := s.Index(snap)
	if err != nil {
		return nil, nil, symtab.Symbol{}, err
	}
	sym, ok := ix.Resolve(name)
	if !ok {
		return nil, nil, symtab.Symbol{}, fmt.Errorf("%w: symbol %s in %s@%s", symtab.ErrNotFound, name, snap.Name, snap.Version)
	}
	return snap, ix, sym, nil
}

// Path returns the containment path of a symbol from the root down.
func (s *Searcher) Path(ctx context.Context, req rpc.PathRequest) ([]rpc.SymbolResult, error) {
	start := time.Now()
	snap, ix, sym, err := s.resolve(req.SnapshotRef, req.Symbol)
	if err != nil {
		metrics.ObserveLookup("path", start, false)
		return nil, err
	}
	path, _ := ix.HierarchyPath(sym.ID)
	results := make([]rpc.SymbolResult, len(path))
	for i, p := range path {
		results[i] = s.result(snap, p, ix.Locations(p.ID))
	}
	metrics.ObserveLookup("path", start, true)
	return results, nil
}

// Inheritance returns the bases or derived classes of a symbol, direct or
// transitive depending on the direction.
func (s *Searcher) Inheritance(ctx context.Context, req rpc.InheritanceRequest) ([]rpc.SymbolResult, error) {
	start := time.Now()
	snap, ix, sym, err := s.resolve(req.SnapshotRef, req.Symbol)
	if err != nil {
		metrics.ObserveLookup("inheritance", start, false)
		return nil, err
	}

	var related []symtab.Symbol
	switch req.Direction {
	case rpc.DirectionBases:
		related = ix.Bases(sym.ID)
	case rpc.DirectionDerived:
		related = ix.Derived(sym.ID)
	case rpc.DirectionAncestors, "":
		related = slices.Collect(ix.InheritanceChain(sym.ID))
	case rpc.DirectionDescendants:
		related = slices.Collect(ix.DerivedClasses(sym.ID))
	default:
		return nil, fmt.Errorf("%w: unknown direction %q", ErrBadRequest, req.Direction)
	}

	results := make([]rpc.SymbolResult, len(related))
	for i, r := range related {
		results[i] = s.result(snap, r, ix.Locations(r.ID))
	}
	metrics.ObserveLookup("inheritance", start, len(results) > 0)
	return results, nil
}

// Doc renders the markdown page of a symbol.
func (s *Searcher) Doc(ctx context.Context, req rpc.GetDocRequest) (string, error) {
	start := time.Now()
	snap, ix, sym, err := s.resolve(req.SnapshotRef, req.Symbol)
	if err != nil {
		metrics.ObserveLookup("doc", start, false)
		return "", err
	}

	link := func(other symtab.Symbol, label string) md.Link {
		return md.Link{Label: label, Dest: URI(snap.Name, snap.Version, other.QualifiedName)}
	}
	links := func(syms []symtab.Symbol) []md.Link {
		out := make([]md.Link, len(syms))
		for i, o := range syms {
			out[i] = link(o, o.QualifiedName)
		}
		return out
	}

	page := md.SymbolPage{
		QualifiedName:  sym.QualifiedName,
		Kind:           string(sym.Kind),
		TemplateParams: sym.TemplateParams,
		Bases:          links(ix.Bases(sym.ID)),
		Derived:        links(ix.Derived(sym.ID)),
	}
	path, _ := ix.HierarchyPath(sym.ID)
	for _, p := range path {
		page.Path = append(page.Path, link(p, p.DisplayName()))
	}
	for _, m := range ix.Members(sym.ID) {
		page.Members = append(page.Members, link(m, m.DisplayName()))
	}
	for _, l := range ix.Locations(sym.ID) {
		page.Locations = append(page.Locations, l.String())
	}
	if len(page.Locations) > 0 {
		tree := ix.Navigation()
		page.Prev, _ = tree.Prev(page.Locations[0])
		page.Next, _ = tree.Next(page.Locations[0])
	}

	text := md.RenderSymbol(page)
	if rewrite := md.PageLinks(s.baseURL); rewrite != nil {
		text = md.RewriteLinks(text, rewrite)
	}
	text = md.AddFrontMatter(text, map[string]string{
		"uri":      URI(snap.Name, snap.Version, sym.QualifiedName),
		"kind":     string(sym.Kind),
		"snapshot": snap.Name,
		"version":  snap.Version,
	})
	metrics.ObserveLookup("doc", start, true)
	return text, nil
}
