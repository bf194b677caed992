package output

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/use-agent/logosim/models"
	"github.com/use-agent/logosim/pipeline"
)

// SQLiteStore keeps run results in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		threshold INTEGER NOT NULL,
		stats TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS fingerprints (
		run_id TEXT NOT NULL,
		domain TEXT NOT NULL,
		url TEXT NOT NULL,
		phash TEXT NOT NULL,
		dhash TEXT,
		ahash TEXT,
		whash TEXT,
		width INTEGER,
		height INTEGER,
		format TEXT,
		PRIMARY KEY (run_id, domain),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS clusters (
		run_id TEXT NOT NULL,
		cluster_id INTEGER NOT NULL,
		domain TEXT NOT NULL,
		cluster_size INTEGER NOT NULL,
		PRIMARY KEY (run_id, domain),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);`,
	"CREATE INDEX IF NOT EXISTS idx_clusters_run ON clusters(run_id, cluster_id);",
	"CREATE INDEX IF NOT EXISTS idx_fingerprints_phash ON fingerprints(phash);",
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("output: open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("output: ping sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, q := range schema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			db.Close()
			return nil, fmt.Errorf("output: create schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// SaveRun stores one run in a single transaction. Saving the same run ID
// again replaces it.
func (s *SQLiteStore) SaveRun(ctx context.Context, res *pipeline.Result) error {
	stats, err := json.Marshal(res.Stats)
	if err != nil {
		return fmt.Errorf("output: encode stats: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, res.RunID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, started_at, finished_at, threshold, stats) VALUES (?, ?, ?, ?, ?)`,
			res.RunID, res.StartedAt.UTC(), res.FinishedAt.UTC(), res.Stats.Threshold, string(stats)); err != nil {
			return err
		}

		fpStmt, err := tx.PrepareContext(ctx, `INSERT INTO fingerprints
			(run_id, domain, url, phash, dhash, ahash, whash, width, height, format)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer fpStmt.Close()
		for d, fp := range res.Fingerprints {
			h := fp.Hashes
			if _, err := fpStmt.ExecContext(ctx, res.RunID, d, fp.URL,
				h.Primary.String(), h.Difference.String(), h.Average.String(), h.Wavelet.String(),
				fp.Width, fp.Height, fp.Format); err != nil {
				return fmt.Errorf("insert fingerprint %s: %w", d, err)
			}
		}

		clStmt, err := tx.PrepareContext(ctx,
			`INSERT INTO clusters (run_id, cluster_id, domain, cluster_size) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer clStmt.Close()
		for _, c := range res.Clusters {
			for _, d := range c.Domains {
				if _, err := clStmt.ExecContext(ctx, res.RunID, c.ID, d, c.Size); err != nil {
					return fmt.Errorf("insert cluster member %s: %w", d, err)
				}
			}
		}
		return nil
	})
}

// Clusters loads the clusters of a stored run ordered by cluster ID.
func (s *SQLiteStore) Clusters(ctx context.Context, runID string) ([]models.Cluster, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cluster_id, domain, cluster_size FROM clusters WHERE run_id = ? ORDER BY cluster_id, domain`, runID)
	if err != nil {
		return nil, fmt.Errorf("output: query clusters: %w", err)
	}
	defer rows.Close()

	var out []models.Cluster
	for rows.Next() {
		var (
			id, size int
			domain   string
		)
		if err := rows.Scan(&id, &domain, &size); err != nil {
			return nil, fmt.Errorf("output: scan cluster: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].ID != id {
			out = append(out, models.Cluster{ID: id, Size: size})
		}
		last := &out[len(out)-1]
		last.Domains = append(last.Domains, domain)
	}
	return out, rows.Err()
}

// Stats loads the statistics of a stored run.
func (s *SQLiteStore) Stats(ctx context.Context, runID string) (models.Stats, time.Time, error) {
	var (
		raw      string
		finished time.Time
		stats    models.Stats
	)
	err := s.db.QueryRowContext(ctx, `SELECT stats, finished_at FROM runs WHERE id = ?`, runID).Scan(&raw, &finished)
	if err != nil {
		return stats, finished, fmt.Errorf("output: load run %s: %w", runID, err)
	}
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return stats, finished, fmt.Errorf("output: decode stats: %w", err)
	}
	return stats, finished, nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("output: begin: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.Warn("sqlite rollback failed", "error", err)
		}
	}()

	if err := fn(tx); err != nil {
		return fmt.Errorf("output: save run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("output: commit: %w", err)
	}
	committed = true
	return nil
}
