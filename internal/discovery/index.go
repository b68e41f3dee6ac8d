package discovery

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, registers as "sqlite"
)

// Index is a durable secondary index over discovered sessions, refreshed
// by periodic Sync calls (see internal/cronjobs) rather than rescanning
// the filesystem on every list_sessions request.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if absent) the sqlite-backed index at path.
// Pass ":memory:" for an ephemeral index used only within one process.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open discovery index: %w", err)
	}
	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) migrate() error {
	_, err := idx.db.Exec(`
CREATE TABLE IF NOT EXISTS sessions (
	session_id   TEXT PRIMARY KEY,
	project_id   TEXT NOT NULL,
	project      TEXT NOT NULL,
	project_path TEXT NOT NULL,
	mod_time     INTEGER NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project);
CREATE INDEX IF NOT EXISTS idx_sessions_mod_time ON sessions(mod_time);
`)
	return err
}

// Sync replaces the index's contents with a fresh filesystem scan from
// scanner. It is meant to run on a schedule (internal/cronjobs), not per
// request, trading a bounded staleness window for fast listing.
func (idx *Index) Sync(ctx context.Context, scanner *Scanner) (int, error) {
	sessions, err := scanner.ListSessions(0, "")
	if err != nil {
		return 0, err
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO sessions (session_id, project_id, project, project_path, mod_time, name, description)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, s := range sessions {
		projectID := ""
		if _, err := stmt.ExecContext(ctx, s.SessionID, projectID, s.Project, s.ProjectPath, s.ModTime.Unix(), s.Name, s.Description); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(sessions), nil
}

// ListByProject returns every indexed session for a given project short
// name, most recently modified first.
func (idx *Index) ListByProject(ctx context.Context, project string) ([]Session, error) {
	rows, err := idx.db.QueryContext(ctx, `
SELECT session_id, project, project_path, mod_time, name, description
FROM sessions WHERE project = ? ORDER BY mod_time DESC`, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var modUnix int64
		if err := rows.Scan(&s.SessionID, &s.Project, &s.ProjectPath, &modUnix, &s.Name, &s.Description); err != nil {
			return nil, err
		}
		s.ModTime = time.Unix(modUnix, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}
