package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jcdickinson/symdex/internal/doxygen"
	"github.com/jcdickinson/symdex/internal/manifest"
	"github.com/jcdickinson/symdex/internal/metrics"
	"github.com/jcdickinson/symdex/internal/rpc"
	"github.com/jcdickinson/symdex/internal/shard"
	"github.com/jcdickinson/symdex/internal/symtab"
)

// build makes sure a snapshot is built. An already built snapshot is left
// alone unless the spec forces a rebuild. Concurrent builds of the same
// snapshot share one run.
func (s *Server) build(ctx context.Context, spec rpc.SnapshotSpec, progress func(runID, msg string)) rpc.BuildResult {
	result := rpc.BuildResult{Name: spec.Name, Version: spec.Version}

	if (spec.Manifest == "") == (spec.Doxygen == "") {
		result.Error = "exactly one of manifest and doxygen must be set"
		return result
	}

	var m *manifest.Manifest
	if spec.Manifest != "" {
		var err error
		if m, err = manifest.Load(spec.Manifest); err != nil {
			result.Error = err.Error()
			return result
		}
		if spec.Name == "" {
			spec.Name = m.Snapshot.Name
		}
		if spec.Version == "" {
			spec.Version = m.Snapshot.Version
		}
		result.Name, result.Version = spec.Name, spec.Version
	}
	if spec.Name == "" || spec.Version == "" {
		result.Error = "snapshot name and version are required"
		return result
	}

	if !spec.Force {
		existing, err := s.db.GetSnapshot(spec.Name, spec.Version)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		if existing != nil && existing.BuiltAt != nil {
			result.Cached = true
			result.Symbols, _ = s.db.CountSymbols(existing.ID)
			result.Shards, _, _ = s.db.CountShards(existing.ID, shard.CategoryAll)
			return result
		}
	}

	key := spec.Name + "@" + spec.Version
	v, _, _ := s.buildGroup.Do(key, func() (interface{}, error) {
		return s.buildWork(context.WithoutCancel(ctx), spec, m, progress), nil
	})
	return v.(rpc.BuildResult)
}

func (s *Server) buildWork(ctx context.Context, spec rpc.SnapshotSpec, m *manifest.Manifest, progress func(runID, msg string)) (result rpc.BuildResult) {
	runID := uuid.NewString()
	start := time.Now()
	result = rpc.BuildResult{RunID: runID, Name: spec.Name, Version: spec.Version}
	report := func(format string, args ...interface{}) {
		progress(runID, fmt.Sprintf(format, args...))
	}

	var err error
	defer func() {
		metrics.ObserveBuild(start, err)
		if err != nil {
			result.Error = err.Error()
		}
	}()

	var (
		t      *symtab.Table
		source string
	)
	if m != nil {
		source = spec.Manifest
		report("reading %d symbols of %s@%s from %s", len(m.Symbols), spec.Name, spec.Version, source)
		if t, err = m.Table(s.cfg.Index.InferContainment); err != nil {
			return result
		}
	} else {
		source = spec.Doxygen
		report("importing doxygen output of %s@%s from %s", spec.Name, spec.Version, source)
		site := &doxygen.Site{Base: spec.Doxygen, Name: spec.Name, Version: spec.Version, NoCache: spec.Force}
		if t, err = site.Import(ctx); err != nil {
			return result
		}
	}

	snap, err := s.db.UpsertSnapshot(spec.Name, spec.Version, source)
	if err != nil {
		return result
	}
	report("indexing %d symbols of %s@%s", t.Len(), spec.Name, spec.Version)
	ix, err := s.searcher.Ingest(snap, t)
	if err != nil {
		return result
	}

	result.Symbols = ix.Len()
	result.Shards = ix.Shards().Len()
	report("finished building %s@%s (%d symbols, %d shards) in %s",
		spec.Name, spec.Version, result.Symbols, result.Shards, time.Since(start).Round(time.Millisecond))
	return result
}
