package postgresql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS analysis_tasks (
    id          TEXT PRIMARY KEY,
    file_name   TEXT        NOT NULL DEFAULT '',
    query       TEXT        NOT NULL,
    status      TEXT        NOT NULL,
    result      TEXT        NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT analysis_tasks_status_chk
        CHECK (status IN ('PENDING', 'PROCESSING', 'COMPLETED', 'FAILED')),
    CONSTRAINT analysis_tasks_result_chk
        CHECK ((result IS NULL) = (status IN ('PENDING', 'PROCESSING')))
);

CREATE INDEX IF NOT EXISTS analysis_tasks_status_idx ON analysis_tasks (status);
`

// EnsureSchema creates the analysis_tasks table if it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
