package db

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite = "sqlite3"
	DriverDuckDB = "duckdb"
)

// DB stores snapshots, their symbol tables and their shard index. Both
// drivers share one schema; only id generation differs. The symbol tables
// carry no unique keys because ReplaceTable deletes and re-inserts the same
// keys in one transaction, which DuckDB rejects on unique indexes.
type DB struct {
	conn   *sql.DB
	driver string
}

func New(driver, dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	var dsn string
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		removeForeign(dbPath, "SQLi")
		dsn = "file:" + dbPath + "?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	case DriverDuckDB:
		dsn = dbPath
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	d := &DB{conn: conn, driver: driver}
	if err := d.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return d, nil
}

// removeForeign deletes a database file written by another engine, such
// as a DuckDB file left behind after switching drivers.
func removeForeign(dbPath, magic string) {
	info, err := os.Stat(dbPath)
	if err != nil || info.Size() < int64(len(magic)) {
		return
	}
	f, err := os.Open(dbPath)
	if err != nil {
		return
	}
	header := make([]byte, len(magic))
	n, _ := f.Read(header)
	f.Close()
	if n == len(magic) && string(header) != magic {
		log.Printf("Removing non-SQLite database file at %s", dbPath)
		os.Remove(dbPath)
	}
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Driver reports which engine backs the database.
func (db *DB) Driver() string {
	return db.driver
}

// idColumn is the auto-assigned primary key of the snapshots table.
func (db *DB) idColumn() string {
	if db.driver == DriverDuckDB {
		return `id INTEGER PRIMARY KEY DEFAULT nextval('seq_snapshot_id')`
	}
	return `id INTEGER PRIMARY KEY`
}

func (db *DB) initSchema() error {
	var queries []string
	if db.driver == DriverDuckDB {
		queries = append(queries, `CREATE SEQUENCE IF NOT EXISTS seq_snapshot_id START 1;`)
	}
	queries = append(queries,
		`CREATE TABLE IF NOT EXISTS snapshots (
			`+db.idColumn()+`,
			name TEXT NOT NULL,
			version TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			built_at TIMESTAMP,
			last_used_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(name, version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_name ON snapshots (name)`,

		`CREATE TABLE IF NOT EXISTS symbols (
			snapshot_id INTEGER NOT NULL,
			symbol_id INTEGER NOT NULL,
			qualified_name TEXT NOT NULL,
			kind TEXT NOT NULL,
			template_params TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_symbols_snapshot ON symbols (snapshot_id, symbol_id)`,

		`CREATE TABLE IF NOT EXISTS locations (
			snapshot_id INTEGER NOT NULL,
			symbol_id INTEGER NOT NULL,
			page TEXT NOT NULL,
			anchor TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_locations_snapshot ON locations (snapshot_id, symbol_id)`,

		`CREATE TABLE IF NOT EXISTS edges (
			snapshot_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			parent_id INTEGER NOT NULL,
			child_id INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_snapshot ON edges (snapshot_id, seq)`,

		`CREATE TABLE IF NOT EXISTS shards (
			snapshot_id INTEGER NOT NULL,
			category TEXT NOT NULL,
			shard_key TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			entries INTEGER NOT NULL,
			PRIMARY KEY (snapshot_id, category, shard_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_shards_hash ON shards (content_hash)`,
	)

	for _, q := range queries {
		if _, err := db.conn.Exec(q); err != nil {
			return fmt.Errorf("executing %q: %w", q, err)
		}
	}
	return nil
}
