package loader

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jcdickinson/symdex/internal/artifact"
	"github.com/jcdickinson/symdex/internal/query"
	"github.com/jcdickinson/symdex/internal/shard"
	"github.com/jcdickinson/symdex/internal/symtab"
)

type fakeSource struct {
	keys    []string
	data    map[string][]byte
	failN   map[string]int // transient failures before success
	block   map[string]chan struct{}
	fetches sync.Map // key -> *atomic.Int32
}

func (f *fakeSource) counter(key string) *atomic.Int32 {
	v, _ := f.fetches.LoadOrStore(key, new(atomic.Int32))
	return v.(*atomic.Int32)
}

func (f *fakeSource) Keys(ctx context.Context) ([]string, error) {
	return f.keys, nil
}

func (f *fakeSource) Fetch(ctx context.Context, key string) ([]byte, error) {
	n := f.counter(key).Add(1)
	if ch, ok := f.block[key]; ok {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if int(n) <= f.failN[key] {
		return nil, fmt.Errorf("transient failure %d", n)
	}
	data, ok := f.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", symtab.ErrNotFound, key)
	}
	return data, nil
}

const shardG = `[["GridGenerator",[["namespace_grid_generator.html","",""]]],["GridGenerator",[["namespace_p_d_es_1_1_grid_generator.html","","PDEs"]]]]`
const shardP = `[["Poisson",[["class_p_d_es_1_1_serial_1_1_poisson.html","","PDEs::Serial"]]]]`

func TestShard_Cached(t *testing.T) {
	t.Parallel()
	src := &fakeSource{keys: []string{"g"}, data: map[string][]byte{"g": []byte(shardG)}}
	l := New(src)

	for i := 0; i < 3; i++ {
		entries, err := l.Shard(context.Background(), "g")
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 2 || entries[1].QualifiedName != "PDEs::GridGenerator" {
			t.Fatalf("entries = %+v", entries)
		}
	}
	if n := src.counter("g").Load(); n != 1 {
		t.Errorf("fetched %d times, want 1", n)
	}
	if l.Cached() != 1 {
		t.Errorf("Cached = %d", l.Cached())
	}
}

func TestShard_Deduplicates(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	src := &fakeSource{
		data:  map[string][]byte{"g": []byte(shardG)},
		block: map[string]chan struct{}{"g": release},
	}
	l := New(src)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Shard(context.Background(), "g")
			errs <- err
		}()
	}
	// Give every goroutine a chance to join the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
	if n := src.counter("g").Load(); n != 1 {
		t.Errorf("fetched %d times, want 1", n)
	}
}

func TestShard_Retries(t *testing.T) {
	t.Parallel()
	src := &fakeSource{
		data:  map[string][]byte{"p": []byte(shardP)},
		failN: map[string]int{"p": 2},
	}
	l := New(src, WithMaxRetries(3), WithInitialBackoff(time.Millisecond))

	entries, err := l.Shard(context.Background(), "p")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("entries = %v", entries)
	}
	if n := src.counter("p").Load(); n != 3 {
		t.Errorf("fetched %d times, want 3", n)
	}
}

func TestShard_RetriesExhausted(t *testing.T) {
	t.Parallel()
	src := &fakeSource{
		data:  map[string][]byte{"p": []byte(shardP)},
		failN: map[string]int{"p": 10},
	}
	l := New(src, WithMaxRetries(2), WithInitialBackoff(time.Millisecond))

	if _, err := l.Shard(context.Background(), "p"); err == nil {
		t.Fatal("expected an error")
	}
	if n := src.counter("p").Load(); n != 3 {
		t.Errorf("fetched %d times, want 3", n)
	}
}

func TestShard_MissingIsPermanent(t *testing.T) {
	t.Parallel()
	src := &fakeSource{data: map[string][]byte{}}
	l := New(src, WithMaxRetries(5), WithInitialBackoff(time.Millisecond))

	_, err := l.Shard(context.Background(), "z")
	if !errors.Is(err, symtab.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n := src.counter("z").Load(); n != 1 {
		t.Errorf("missing shard fetched %d times, want 1", n)
	}
}

func TestShard_SlowShardDoesNotBlockOthers(t *testing.T) {
	t.Parallel()
	src := &fakeSource{
		data:  map[string][]byte{"g": []byte(shardG), "p": []byte(shardP)},
		block: map[string]chan struct{}{"g": make(chan struct{})},
	}
	l := New(src)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := l.Shard(ctx, "g")
		done <- err
	}()

	if _, err := l.Shard(context.Background(), "p"); err != nil {
		t.Fatalf("shard p: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("slow shard: expected deadline exceeded, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("slow shard was not cancelled")
	}
}

func TestLookup_MatchesIndex(t *testing.T) {
	t.Parallel()
	tbl := symtab.New()
	for _, s := range []struct {
		name, page string
	}{
		{"GridGenerator", "namespace_grid_generator.html"},
		{"PDEs::GridGenerator", "namespace_p_d_es_1_1_grid_generator.html"},
		{"PDEs::Serial::Poisson", "class_p_d_es_1_1_serial_1_1_poisson.html"},
		{"PDEs::Serial::Poisson::~Poisson", "class_p_d_es_1_1_serial_1_1_poisson.html"},
		{"Tools::ParsedGridRefinement", "class_tools_1_1_parsed_grid_refinement.html"},
	} {
		id, err := tbl.AddSymbol(s.name, symtab.KindClass)
		if err != nil {
			t.Fatal(err)
		}
		if err := tbl.AddLocation(id, s.page, ""); err != nil {
			t.Fatal(err)
		}
	}
	ix, err := query.Build(tbl, query.WithKeyFunc(shard.PrefixKey(2)))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	w := &artifact.Writer{Dir: dir, Compress: true}
	if _, err := w.Write(ix); err != nil {
		t.Fatal(err)
	}

	l := New(DirSource{Dir: dir}, WithKeyFunc(shard.PrefixKey(2)))
	for _, q := range []string{"g", "grid", "PDEs::Grid", "poi", "~", "parsed", "zzz", "Serial::"} {
		got, err := l.Lookup(context.Background(), q, 0)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", q, err)
		}
		var gotNames, wantNames []string
		for _, m := range got {
			gotNames = append(gotNames, m.QualifiedName)
		}
		for _, m := range ix.LookupByPrefix(q) {
			wantNames = append(wantNames, m.QualifiedName)
		}
		if !slices.Equal(gotNames, wantNames) {
			t.Errorf("Lookup(%q) = %v, index says %v", q, gotNames, wantNames)
		}
	}

	if _, err := l.Shard(context.Background(), "nope"); !errors.Is(err, symtab.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a missing shard, got %v", err)
	}
}

func TestDirSource_NoKeysFile(t *testing.T) {
	t.Parallel()
	src := DirSource{Dir: t.TempDir()}
	if _, err := src.Keys(context.Background()); !errors.Is(err, symtab.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
