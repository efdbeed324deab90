package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jcdickinson/symdex/internal/symtab"
)

func clearSnapshot(tx *sql.Tx, snapshotID int64) error {
	for _, table := range []string{"symbols", "locations", "edges", "shards"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE snapshot_id = ?`, snapshotID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}

// ReplaceTable stores t as the contents of a snapshot, dropping whatever
// was stored before, in a single transaction. Previously stored shards are
// dropped as well and the snapshot is no longer marked built.
func (db *DB) ReplaceTable(snapshotID int64, t *symtab.Table) error {
	return db.inTx(func(tx *sql.Tx) error {
		if err := writeTable(tx, snapshotID, t); err != nil {
			return err
		}
		return setBuilt(tx, snapshotID, false)
	})
}

// StoreBuild replaces the contents of a snapshot with t and its shards and
// marks it built, all in one transaction. On error the previous contents
// and build state are kept.
func (db *DB) StoreBuild(snapshotID int64, t *symtab.Table, shards []ShardRecord) error {
	return db.inTx(func(tx *sql.Tx) error {
		if err := writeTable(tx, snapshotID, t); err != nil {
			return err
		}
		for _, sh := range shards {
			if err := insertShard(tx, snapshotID, sh); err != nil {
				return err
			}
		}
		return setBuilt(tx, snapshotID, true)
	})
}

func (db *DB) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func writeTable(tx *sql.Tx, snapshotID int64, t *symtab.Table) error {
	if err := clearSnapshot(tx, snapshotID); err != nil {
		return err
	}

	symStmt, err := tx.Prepare(`INSERT INTO symbols (snapshot_id, symbol_id, qualified_name, kind, template_params) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing symbol insert: %w", err)
	}
	defer symStmt.Close()
	locStmt, err := tx.Prepare(`INSERT INTO locations (snapshot_id, symbol_id, page, anchor) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing location insert: %w", err)
	}
	defer locStmt.Close()
	edgeStmt, err := tx.Prepare(`INSERT INTO edges (snapshot_id, seq, kind, parent_id, child_id) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing edge insert: %w", err)
	}
	defer edgeStmt.Close()

	symbols := t.Symbols()
	for _, s := range symbols {
		var params string
		if len(s.TemplateParams) > 0 {
			b, err := json.Marshal(s.TemplateParams)
			if err != nil {
				return fmt.Errorf("encoding template parameters of %q: %w", s.QualifiedName, err)
			}
			params = string(b)
		}
		if _, err := symStmt.Exec(snapshotID, int(s.ID), s.QualifiedName, string(s.Kind), params); err != nil {
			return fmt.Errorf("inserting symbol %q: %w", s.QualifiedName, err)
		}
		for _, loc := range t.Locations(s.ID) {
			if _, err := locStmt.Exec(snapshotID, int(s.ID), loc.Page, loc.Anchor); err != nil {
				return fmt.Errorf("inserting location %s: %w", loc, err)
			}
		}
	}

	// Edges are stored per child in parent insertion order, which keeps
	// base class order stable across a round trip.
	seq := 0
	for _, kind := range []symtab.EdgeKind{symtab.Containment, symtab.Inheritance} {
		for _, s := range symbols {
			for _, parent := range t.Parents(kind, s.ID) {
				if _, err := edgeStmt.Exec(snapshotID, seq, kind.String(), int(parent), int(s.ID)); err != nil {
					return fmt.Errorf("inserting %s edge: %w", kind, err)
				}
				seq++
			}
		}
	}
	return nil
}

// LoadTable rebuilds the stored symbol table of a snapshot. Symbol IDs are
// the ones the table had when it was stored. The table is not frozen.
func (db *DB) LoadTable(snapshotID int64) (*symtab.Table, error) {
	t := symtab.New()

	rows, err := db.conn.Query(
		`SELECT symbol_id, qualified_name, kind, template_params FROM symbols WHERE snapshot_id = ? ORDER BY symbol_id`,
		snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id           int
			name, kind   string
			paramsColumn string
		)
		if err := rows.Scan(&id, &name, &kind, &paramsColumn); err != nil {
			return nil, err
		}
		var opts []symtab.SymbolOption
		if paramsColumn != "" {
			var params []string
			if err := json.Unmarshal([]byte(paramsColumn), &params); err != nil {
				return nil, fmt.Errorf("%w: template parameters of %q: %v", symtab.ErrSchemaViolation, name, err)
			}
			opts = append(opts, symtab.WithTemplateParams(params...))
		}
		got, err := t.AddSymbol(name, symtab.Kind(kind), opts...)
		if err != nil {
			return nil, fmt.Errorf("loading symbol %q: %w", name, err)
		}
		if int(got) != id {
			return nil, fmt.Errorf("%w: stored symbol %q has id %d, expected %d", symtab.ErrSchemaViolation, name, id, got)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := db.loadLocations(t, snapshotID); err != nil {
		return nil, err
	}
	if err := db.loadEdges(t, snapshotID); err != nil {
		return nil, err
	}
	return t, nil
}

func (db *DB) loadLocations(t *symtab.Table, snapshotID int64) error {
	rows, err := db.conn.Query(
		`SELECT symbol_id, page, anchor FROM locations WHERE snapshot_id = ? ORDER BY symbol_id, page, anchor`,
		snapshotID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id           int
			page, anchor string
		)
		if err := rows.Scan(&id, &page, &anchor); err != nil {
			return err
		}
		if err := t.AddLocation(symtab.ID(id), page, anchor); err != nil {
			return fmt.Errorf("loading location: %w", err)
		}
	}
	return rows.Err()
}

func (db *DB) loadEdges(t *symtab.Table, snapshotID int64) error {
	rows, err := db.conn.Query(
		`SELECT kind, parent_id, child_id FROM edges WHERE snapshot_id = ? ORDER BY seq`,
		snapshotID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			kindName      string
			parent, child int
		)
		if err := rows.Scan(&kindName, &parent, &child); err != nil {
			return err
		}
		kind, err := symtab.ParseEdgeKind(kindName)
		if err != nil {
			return err
		}
		if err := t.AddEdge(kind, symtab.ID(parent), symtab.ID(child)); err != nil {
			return fmt.Errorf("loading edge: %w", err)
		}
	}
	return rows.Err()
}

func (db *DB) CountSymbols(snapshotID int64) (int, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM symbols WHERE snapshot_id = ?`, snapshotID).Scan(&count)
	return count, err
}

// SymbolKinds maps qualified names of a snapshot to their symbol ID and
// kind. When a name is stored under several kinds the lowest ID wins.
// Unknown names are left out.
func (db *DB) SymbolKinds(snapshotID int64, names []string) (map[string]StoredSymbol, error) {
	result := make(map[string]StoredSymbol)
	if len(names) == 0 {
		return result, nil
	}
	placeholders := make([]string, len(names))
	params := make([]interface{}, 0, len(names)+1)
	params = append(params, snapshotID)
	for i, n := range names {
		placeholders[i] = "?"
		params = append(params, n)
	}

	rows, err := db.conn.Query(fmt.Sprintf(
		`SELECT symbol_id, qualified_name, kind FROM symbols
		 WHERE snapshot_id = ? AND qualified_name IN (%s)
		 ORDER BY symbol_id`, strings.Join(placeholders, ",")), params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id         int
			name, kind string
		)
		if err := rows.Scan(&id, &name, &kind); err != nil {
			return nil, err
		}
		if _, seen := result[name]; !seen {
			result[name] = StoredSymbol{ID: symtab.ID(id), Kind: symtab.Kind(kind)}
		}
	}
	return result, rows.Err()
}

// StoredSymbol identifies a symbol of a stored table.
type StoredSymbol struct {
	ID   symtab.ID
	Kind symtab.Kind
}
