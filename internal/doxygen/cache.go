package doxygen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/jcdickinson/symdex/internal/config"
)

// Shared coders for whole-buffer EncodeAll/DecodeAll.
var (
	coderOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	coderErr  error
)

func coders() (*zstd.Encoder, *zstd.Decoder, error) {
	coderOnce.Do(func() {
		if encoder, coderErr = zstd.NewWriter(nil); coderErr != nil {
			return
		}
		decoder, coderErr = zstd.NewReader(nil)
	})
	return encoder, decoder, coderErr
}

// cachePath flattens file into one name under the snapshot's directory.
func cachePath(name, version, file string) string {
	flat := strings.ReplaceAll(filepath.ToSlash(file), "/", "_")
	return filepath.Join(config.CacheDir(), name+"_"+version, flat+".zst")
}

// SaveCache stores a fetched script compressed.
func SaveCache(data []byte, name, version, file string) error {
	enc, _, err := coders()
	if err != nil {
		return fmt.Errorf("zstd: %w", err)
	}
	p := cachePath(name, version, file)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("creating doxygen cache dir: %w", err)
	}
	if err := os.WriteFile(p, enc.EncodeAll(data, nil), 0644); err != nil {
		return fmt.Errorf("writing cached script: %w", err)
	}
	return nil
}

func LoadCache(name, version, file string) ([]byte, error) {
	_, dec, err := coders()
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	raw, err := os.ReadFile(cachePath(name, version, file))
	if err != nil {
		return nil, fmt.Errorf("reading cached script: %w", err)
	}
	data, err := dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing cached script %s: %w", file, err)
	}
	return data, nil
}

func HasCache(name, version, file string) bool {
	_, err := os.Stat(cachePath(name, version, file))
	return err == nil
}

// ClearCache removes every cached script.
func ClearCache() error {
	return os.RemoveAll(config.CacheDir())
}
