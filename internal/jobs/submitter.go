// Package jobs persists compression job configs into the shared
// compression_jobs table, where the downstream engine picks them up.
package jobs

import (
	"context"
	"fmt"

	"github.com/yscope/log-ingestor/internal/compression"
	"github.com/yscope/log-ingestor/internal/platform/database"
)

const (
	insertJobSQL          = `INSERT INTO compression_jobs (clp_config) VALUES (?)`
	insertJobReturningSQL = `INSERT INTO compression_jobs (clp_config) VALUES ($1) RETURNING id`
)

// DBSubmitter writes one row per job config and reports the assigned row
// id. It satisfies buffering.Submitter.
type DBSubmitter struct {
	db *database.DB
}

// NewDBSubmitter wraps the shared pool.
func NewDBSubmitter(db *database.DB) *DBSubmitter {
	return &DBSubmitter{db: db}
}

// Submit encodes cfg and inserts it. There is no retry here: once the row
// exists the engine owns the job, and before it exists the buffering layer
// deliberately drops failed batches.
func (s *DBSubmitter) Submit(ctx context.Context, cfg compression.JobConfig) (uint64, error) {
	blob, err := cfg.Encode()
	if err != nil {
		return 0, fmt.Errorf("encode job config: %w", err)
	}

	if s.db.Driver == database.DriverPostgres {
		var id int64
		if err := s.db.QueryRowContext(ctx, insertJobReturningSQL, blob).Scan(&id); err != nil {
			return 0, fmt.Errorf("insert compression job: %w", err)
		}
		return uint64(id), nil
	}

	res, err := s.db.ExecContext(ctx, insertJobSQL, blob)
	if err != nil {
		return 0, fmt.Errorf("insert compression job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted job id: %w", err)
	}
	return uint64(id), nil
}
