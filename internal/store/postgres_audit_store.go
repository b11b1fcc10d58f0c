package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	twinerrors "github.com/LemonScripter/metaspace-fdir-public/internal/errors"
	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
)

const auditSchema = `
	CREATE TABLE IF NOT EXISTS twin_audit (
		twin_id           TEXT NOT NULL,
		seq               BIGINT NOT NULL,
		operation         TEXT NOT NULL,
		ts                BIGINT NOT NULL,
		mission_day       INTEGER NOT NULL,
		feasibility       DOUBLE PRECISION NOT NULL,
		action            TEXT NOT NULL,
		validated         BOOLEAN NOT NULL,
		validation_status TEXT NOT NULL,
		node_states       JSONB NOT NULL,
		level3            TEXT NOT NULL,
		prev_hash         BYTEA NOT NULL,
		hash              BYTEA NOT NULL,
		PRIMARY KEY (twin_id, seq)
	)
`

// PostgresAuditStore archives the operations log in PostgreSQL
type PostgresAuditStore struct {
	pool   *pgxpool.Pool
	twinID string
}

// ConnectPostgres opens a pool and verifies the connection
func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, twinerrors.Unavailable("failed to connect to postgres", err)
	}
	return pool, nil
}

// NewPostgresAuditStore creates an audit store scoped to one twin
func NewPostgresAuditStore(pool *pgxpool.Pool, twinID string) *PostgresAuditStore {
	return &PostgresAuditStore{pool: pool, twinID: twinID}
}

// EnsureSchema creates the audit table if it does not exist
func (s *PostgresAuditStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, auditSchema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

// Append implements AuditStore
func (s *PostgresAuditStore) Append(ctx context.Context, entry model.AuditEntry) error {
	states, err := json.Marshal(entry.NodeStates)
	if err != nil {
		return fmt.Errorf("failed to marshal node states: %w", err)
	}

	query := `
		INSERT INTO twin_audit (
			twin_id, seq, operation, ts, mission_day, feasibility, action,
			validated, validation_status, node_states, level3, prev_hash, hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.pool.Exec(ctx, query,
		s.twinID,
		int64(entry.Seq),
		string(entry.Operation),
		entry.Timestamp,
		int32(entry.MissionDay),
		entry.Feasibility,
		string(entry.Action),
		entry.Validated,
		string(entry.ValidationStatus),
		states,
		entry.Level3Hex,
		entry.PrevHash,
		entry.Hash,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry %d: %w", entry.Seq, err)
	}
	return nil
}

// List implements AuditStore
func (s *PostgresAuditStore) List(ctx context.Context) ([]model.AuditEntry, error) {
	query := `
		SELECT seq, operation, ts, mission_day, feasibility, action,
		       validated, validation_status, node_states, level3, prev_hash, hash
		FROM twin_audit
		WHERE twin_id = $1
		ORDER BY seq ASC
	`
	rows, err := s.pool.Query(ctx, query, s.twinID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]model.AuditEntry, 0)
	for rows.Next() {
		var (
			e         model.AuditEntry
			seq       int64
			day       int32
			operation string
			action    string
			status    string
			states    []byte
		)
		if err := rows.Scan(&seq, &operation, &e.Timestamp, &day, &e.Feasibility, &action,
			&e.Validated, &status, &states, &e.Level3Hex, &e.PrevHash, &e.Hash); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Seq = uint64(seq)
		e.MissionDay = uint16(day)
		e.Operation = model.Operation(operation)
		e.Action = model.Action(action)
		e.ValidationStatus = model.VerdictStatus(status)
		if err := json.Unmarshal(states, &e.NodeStates); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node states: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}
	return entries, nil
}

// Close closes the connection pool
func (s *PostgresAuditStore) Close() error {
	s.pool.Close()
	return nil
}
