package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Snapshot is one stored (name, version) documentation build. Snapshots
// never share rows; rebuilding one replaces its contents wholesale.
type Snapshot struct {
	ID         int64
	Name       string
	Version    string
	Source     string
	BuiltAt    *time.Time
	LastUsedAt time.Time
}

const snapshotColumns = `id, name, version, source, built_at, last_used_at`

func scanSnapshot(row interface{ Scan(...any) error }) (*Snapshot, error) {
	var s Snapshot
	if err := row.Scan(&s.ID, &s.Name, &s.Version, &s.Source, &s.BuiltAt, &s.LastUsedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertSnapshot returns the snapshot for (name, version), creating it if
// needed. source records where the symbols come from (a manifest path or
// a Doxygen URL) and is updated on every call.
func (db *DB) UpsertSnapshot(name, version, source string) (*Snapshot, error) {
	s, err := db.GetSnapshot(name, version)
	if err != nil {
		return nil, fmt.Errorf("checking snapshot: %w", err)
	}
	if s != nil {
		if s.Source != source {
			if _, err := db.conn.Exec(`UPDATE snapshots SET source = ? WHERE id = ?`, source, s.ID); err != nil {
				return nil, fmt.Errorf("updating snapshot source: %w", err)
			}
			s.Source = source
		}
		return s, nil
	}

	var id int64
	err = db.conn.QueryRow(
		`INSERT INTO snapshots (name, version, source) VALUES (?, ?, ?) RETURNING id`,
		name, version, source,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("inserting snapshot: %w", err)
	}
	return &Snapshot{ID: id, Name: name, Version: version, Source: source, LastUsedAt: time.Now()}, nil
}

func setBuilt(tx *sql.Tx, snapshotID int64, built bool) error {
	q := `UPDATE snapshots SET built_at = NULL WHERE id = ?`
	if built {
		q = `UPDATE snapshots SET built_at = CURRENT_TIMESTAMP WHERE id = ?`
	}
	if _, err := tx.Exec(q, snapshotID); err != nil {
		return fmt.Errorf("updating build state: %w", err)
	}
	return nil
}

func (db *DB) TouchSnapshot(snapshotID int64) error {
	_, err := db.conn.Exec(`UPDATE snapshots SET last_used_at = CURRENT_TIMESTAMP WHERE id = ?`, snapshotID)
	return err
}

// GetSnapshot returns nil, nil when the snapshot does not exist.
func (db *DB) GetSnapshot(name, version string) (*Snapshot, error) {
	s, err := scanSnapshot(db.conn.QueryRow(
		`SELECT `+snapshotColumns+` FROM snapshots WHERE name = ? AND version = ?`,
		name, version,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// GetLatestSnapshot returns the most recently built snapshot with the given
// name.
func (db *DB) GetLatestSnapshot(name string) (*Snapshot, error) {
	s, err := scanSnapshot(db.conn.QueryRow(
		`SELECT `+snapshotColumns+`
		 FROM snapshots WHERE name = ? AND built_at IS NOT NULL
		 ORDER BY built_at DESC, id DESC LIMIT 1`, name,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (db *DB) ListSnapshots() ([]Snapshot, error) {
	rows, err := db.conn.Query(`SELECT ` + snapshotColumns + ` FROM snapshots ORDER BY name, version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *s)
	}
	return snapshots, rows.Err()
}

// GetBuiltVersions maps each name to the version of its latest build.
// Names without a built snapshot are left out.
func (db *DB) GetBuiltVersions(names []string) (map[string]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(names))
	params := make([]interface{}, len(names))
	for i, n := range names {
		placeholders[i] = "?"
		params[i] = n
	}

	rows, err := db.conn.Query(fmt.Sprintf(
		`SELECT name, version FROM snapshots
		 WHERE name IN (%s) AND built_at IS NOT NULL
		 ORDER BY name, built_at, id`, strings.Join(placeholders, ",")), params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var name, version string
		if err := rows.Scan(&name, &version); err != nil {
			return nil, err
		}
		// Rows are in build order, so the last one wins.
		result[name] = version
	}
	return result, rows.Err()
}

// DeleteSnapshot removes a snapshot and everything stored for it.
func (db *DB) DeleteSnapshot(snapshotID int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := clearSnapshot(tx, snapshotID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM snapshots WHERE id = ?`, snapshotID); err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	return tx.Commit()
}

// Clear removes every snapshot.
func (db *DB) Clear() error {
	for _, table := range []string{"shards", "edges", "locations", "symbols", "snapshots"} {
		if _, err := db.conn.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}
