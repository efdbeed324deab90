package db

import (
	"database/sql"
	"fmt"
)

// ShardRecord names the blob holding one encoded shard of a snapshot.
type ShardRecord struct {
	Category    string
	Key         string
	ContentHash string
	Entries     int
}

// InsertShard records the blob holding one encoded shard of a snapshot.
func (db *DB) InsertShard(snapshotID int64, category, key, contentHash string, entries int) error {
	return insertShard(db.conn, snapshotID, ShardRecord{category, key, contentHash, entries})
}

func insertShard(ex interface {
	Exec(string, ...any) (sql.Result, error)
}, snapshotID int64, sh ShardRecord) error {
	_, err := ex.Exec(
		`INSERT INTO shards (snapshot_id, category, shard_key, content_hash, entries) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (snapshot_id, category, shard_key) DO UPDATE SET content_hash = excluded.content_hash, entries = excluded.entries`,
		snapshotID, sh.Category, sh.Key, sh.ContentHash, sh.Entries,
	)
	if err != nil {
		return fmt.Errorf("inserting shard %s/%s: %w", sh.Category, sh.Key, err)
	}
	return nil
}

// GetShardHash returns "" and no error when the shard is not stored.
func (db *DB) GetShardHash(snapshotID int64, category, key string) (string, error) {
	var hash string
	err := db.conn.QueryRow(
		`SELECT content_hash FROM shards WHERE snapshot_id = ? AND category = ? AND shard_key = ?`,
		snapshotID, category, key,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// ListShardKeys returns the shard keys of one category in key order.
func (db *DB) ListShardKeys(snapshotID int64, category string) ([]string, error) {
	rows, err := db.conn.Query(
		`SELECT shard_key FROM shards WHERE snapshot_id = ? AND category = ? ORDER BY shard_key`,
		snapshotID, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// CountShards returns the number of stored shards of a category and the
// entries they hold.
func (db *DB) CountShards(snapshotID int64, category string) (shards, entries int, err error) {
	err = db.conn.QueryRow(
		`SELECT COUNT(*), CAST(COALESCE(SUM(entries), 0) AS BIGINT) FROM shards WHERE snapshot_id = ? AND category = ?`,
		snapshotID, category,
	).Scan(&shards, &entries)
	return shards, entries, err
}
