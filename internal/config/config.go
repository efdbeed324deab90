package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/jcdickinson/symdex/internal/artifact"
	"github.com/jcdickinson/symdex/internal/hierarchy"
)

type DaemonConfig struct {
	ExpirationSeconds int `mapstructure:"expiration_seconds"`
}

type StorageConfig struct {
	// Driver is "sqlite3" or "duckdb".
	Driver string `mapstructure:"driver"`
}

type IndexConfig struct {
	ShardPrefixLength int             `mapstructure:"shard_prefix_length"`
	ChildOrder        hierarchy.Order `mapstructure:"child_order"`
	NavChunkSize      int             `mapstructure:"nav_chunk_size"`
	InferContainment  bool            `mapstructure:"infer_containment"`
}

type ExportConfig struct {
	Format   artifact.Format `mapstructure:"format"`
	Compress bool            `mapstructure:"compress"`
}

type LoaderConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
}

type DocsConfig struct {
	// BaseURL is prepended to relative documentation pages when rendering
	// links.
	BaseURL string `mapstructure:"base_url"`
}

type Config struct {
	Daemon  DaemonConfig  `mapstructure:"daemon"`
	Storage StorageConfig `mapstructure:"storage"`
	Index   IndexConfig   `mapstructure:"index"`
	Export  ExportConfig  `mapstructure:"export"`
	Loader  LoaderConfig  `mapstructure:"loader"`
	Docs    DocsConfig    `mapstructure:"docs"`
}

// cacheBase returns the base cache directory for symdex.
// Checks XDG_CACHE_HOME, then ~/.cache, then /tmp/symdex as fallback.
func cacheBase() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "symdex")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "symdex")
	}
	return filepath.Join(os.TempDir(), "symdex")
}

// DBPath returns the path to the database file for the given driver.
func DBPath(driver string) string {
	if driver == "duckdb" {
		return filepath.Join(cacheBase(), "db.duckdb")
	}
	return filepath.Join(cacheBase(), "db.sqlite")
}

// CASDir returns the path to the content-addressable storage directory.
func CASDir() string {
	return filepath.Join(cacheBase(), "cas")
}

// CacheDir returns the path to the cache of fetched Doxygen files.
func CacheDir() string {
	return filepath.Join(cacheBase(), "doxygen")
}

// LogPath returns the path to the daemon's log file.
func LogPath() string {
	return filepath.Join(cacheBase(), "daemon.log")
}

// SocketPath returns the path to the daemon's unix socket.
func SocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "symdex", "daemon.sock")
	}
	return filepath.Join(fmt.Sprintf("/run/user/%d", os.Getuid()), "symdex", "daemon.sock")
}

func InitializeViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("toml")

	viper.AddConfigPath(".")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		viper.AddConfigPath(filepath.Join(xdg, "symdex"))
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".config", "symdex"))
	}

	viper.SetDefault("daemon.expiration_seconds", 600)
	viper.SetDefault("storage.driver", "sqlite3")
	viper.SetDefault("index.shard_prefix_length", 1)
	viper.SetDefault("index.child_order", "declaration")
	viper.SetDefault("index.nav_chunk_size", 250)
	viper.SetDefault("index.infer_containment", true)
	viper.SetDefault("export.format", "json")
	viper.SetDefault("export.compress", false)
	viper.SetDefault("loader.max_retries", 3)
	viper.SetDefault("loader.initial_backoff", "100ms")
	viper.SetDefault("docs.base_url", "")

	viper.SetEnvPrefix("SYMDEX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

func stringToOrderHookFunc() mapstructure.DecodeHookFunc {
	return func(f, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(hierarchy.Order(0)) || f.Kind() != reflect.String {
			return data, nil
		}
		return hierarchy.ParseOrder(data.(string))
	}
}

func stringToFormatHookFunc() mapstructure.DecodeHookFunc {
	return func(f, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(artifact.Format("")) || f.Kind() != reflect.String {
			return data, nil
		}
		return artifact.ParseFormat(data.(string))
	}
}

func Load() (*Config, error) {
	if err := InitializeViper(); err != nil {
		return nil, err
	}
	return decode(viper.AllSettings())
}

func decode(settings map[string]interface{}) (*Config, error) {
	var config Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringToOrderHookFunc(),
			stringToFormatHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           &config,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	switch config.Storage.Driver {
	case "sqlite3", "duckdb":
	case "sqlite":
		config.Storage.Driver = "sqlite3"
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", config.Storage.Driver)
	}
	if config.Index.ShardPrefixLength < 1 {
		return nil, fmt.Errorf("index.shard_prefix_length must be at least 1, got %d", config.Index.ShardPrefixLength)
	}
	return &config, nil
}
