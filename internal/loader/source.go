package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/jcdickinson/symdex/internal/artifact"
	"github.com/jcdickinson/symdex/internal/shard"
	"github.com/jcdickinson/symdex/internal/symtab"
)

// Source fetches encoded shard files. Fetch must wrap symtab.ErrNotFound
// when the shard does not exist; any other error is treated as transient.
type Source interface {
	Keys(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// DirSource reads shards from an artifact directory written by
// artifact.Writer.
type DirSource struct {
	Dir      string
	Category string
}

func (s DirSource) category() string {
	if s.Category == "" {
		return shard.CategoryAll
	}
	return s.Category
}

func (s DirSource) keysFile() (artifact.KeysFile, error) {
	k, err := artifact.ReadKeys(s.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return k, fmt.Errorf("%w: %s has no keys file", symtab.ErrNotFound, s.Dir)
	}
	return k, err
}

func (s DirSource) Keys(ctx context.Context) ([]string, error) {
	k, err := s.keysFile()
	if err != nil {
		return nil, err
	}
	keys, ok := k.Categories[s.category()]
	if !ok {
		return nil, fmt.Errorf("%w: category %q", symtab.ErrNotFound, s.category())
	}
	return keys, nil
}

func (s DirSource) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := s.keysFile()
	if err != nil {
		return nil, err
	}
	p := filepath.Join(s.Dir, filepath.FromSlash(k.ShardPath(s.category(), key)))
	data, err := artifact.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: shard %q", symtab.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading shard %q: %w", key, err)
	}
	return data, nil
}

// ShardIndex maps shard keys of a stored snapshot to content hashes.
// *db.DB implements it.
type ShardIndex interface {
	ListShardKeys(snapshotID int64, category string) ([]string, error)
	GetShardHash(snapshotID int64, category, key string) (string, error)
}

// BlobReader reads content-addressed blobs. *cas.Store implements it.
type BlobReader interface {
	Read(hash string) ([]byte, error)
}

// CASSource reads the shards of a stored snapshot from the blob store.
type CASSource struct {
	Index      ShardIndex
	Blobs      BlobReader
	SnapshotID int64
	Category   string
}

func (s CASSource) category() string {
	if s.Category == "" {
		return shard.CategoryAll
	}
	return s.Category
}

func (s CASSource) Keys(ctx context.Context) ([]string, error) {
	return s.Index.ListShardKeys(s.SnapshotID, s.category())
}

func (s CASSource) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hash, err := s.Index.GetShardHash(s.SnapshotID, s.category(), key)
	if err != nil {
		return nil, fmt.Errorf("looking up shard %q: %w", key, err)
	}
	if hash == "" {
		return nil, fmt.Errorf("%w: shard %q", symtab.ErrNotFound, key)
	}
	data, err := s.Blobs.Read(hash)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: blob %s for shard %q", symtab.ErrNotFound, hash, key)
	}
	return data, err
}
