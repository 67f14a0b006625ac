// Package postgres implements core.MetadataStore against Postgres,
// adapted from the teacher's history-repository pattern: parameterized
// queries over a pooled *pgxpool.Pool, with promauto query-duration
// histograms wrapping every operation.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sheetsync/sheetsync/internal/core"
)

// Store implements core.MetadataStore for SyncConfig/SyncState/
// SyncHistory/Conflict persistence.
type Store struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *storeMetrics
}

type storeMetrics struct {
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

func newStoreMetrics() *storeMetrics {
	return &storeMetrics{
		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sheetsync",
			Subsystem: "metadatastore",
			Name:      "query_duration_seconds",
			Help:      "Duration of metadata-store queries",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation", "status"}),
		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sheetsync",
			Subsystem: "metadatastore",
			Name:      "query_errors_total",
			Help:      "Total number of metadata-store query errors",
		}, []string{"operation", "error_type"}),
	}
}

// New wraps pool as a core.MetadataStore.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger, metrics: newStoreMetrics()}
}

var _ core.MetadataStore = (*Store)(nil)

func (s *Store) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		s.metrics.QueryErrors.WithLabelValues(operation, "database").Inc()
	}
	s.metrics.QueryDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}

func (s *Store) ListActiveConfigs(ctx context.Context) ([]core.SyncConfig, error) {
	start := time.Now()
	const op = "list_active_configs"

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, spreadsheet_id, spreadsheet_range, target_dsn, target_table,
		       mapping, conflict_policy, interval_seconds, active
		  FROM sync_configs
		 WHERE active = true
		 ORDER BY id`)
	defer func() { s.observe(op, start, err) }()
	if err != nil {
		return nil, fmt.Errorf("metadatastore: list active configs: %w", err)
	}
	defer rows.Close()

	var out []core.SyncConfig
	for rows.Next() {
		cfg, scanErr := scanConfig(rows)
		if scanErr != nil {
			err = scanErr
			return nil, fmt.Errorf("metadatastore: scan config: %w", scanErr)
		}
		out = append(out, cfg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("metadatastore: list active configs: %w", err)
	}
	return out, nil
}

func (s *Store) GetConfig(ctx context.Context, id string) (core.SyncConfig, error) {
	start := time.Now()
	const op = "get_config"

	row := s.pool.QueryRow(ctx, `
		SELECT id, name, spreadsheet_id, spreadsheet_range, target_dsn, target_table,
		       mapping, conflict_policy, interval_seconds, active
		  FROM sync_configs
		 WHERE id = $1`, id)

	cfg, err := scanConfig(row)
	s.observe(op, start, err)
	if err != nil {
		return core.SyncConfig{}, fmt.Errorf("metadatastore: get config %s: %w", id, err)
	}
	return cfg, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (core.SyncConfig, error) {
	var cfg core.SyncConfig
	var mappingJSON []byte
	var policy string

	if err := row.Scan(&cfg.ID, &cfg.Name, &cfg.SpreadsheetID, &cfg.SpreadsheetRange,
		&cfg.TargetDSN, &cfg.TargetTable, &mappingJSON, &policy, &cfg.IntervalSeconds, &cfg.Active); err != nil {
		return core.SyncConfig{}, err
	}
	cfg.ConflictPolicy = core.ConflictPolicy(policy)

	var mapping core.ColumnMapping
	if len(mappingJSON) > 0 {
		if err := json.Unmarshal(mappingJSON, &mapping.Columns); err != nil {
			return core.SyncConfig{}, fmt.Errorf("unmarshal mapping: %w", err)
		}
	}
	cfg.Mapping = mapping
	return cfg, nil
}

func (s *Store) GetState(ctx context.Context, configID string) (core.SyncState, error) {
	start := time.Now()
	const op = "get_state"

	var state core.SyncState
	err := s.pool.QueryRow(ctx, `
		SELECT config_id, last_sheet_sync_at, last_db_sync_at, sheet_etag,
		       db_last_change_id, last_sheet_row_count, last_error
		  FROM sync_state
		 WHERE config_id = $1`, configID,
	).Scan(&state.ConfigID, &state.LastSheetSyncAt, &state.LastDBSyncAt, &state.SheetETag,
		&state.DBLastChangeID, &state.LastSheetRowCount, &state.LastError)

	s.observe(op, start, err)
	if err != nil {
		if err == pgx.ErrNoRows {
			return core.SyncState{ConfigID: configID}, nil
		}
		return core.SyncState{}, fmt.Errorf("metadatastore: get state %s: %w", configID, err)
	}
	return state, nil
}

func (s *Store) SaveState(ctx context.Context, state core.SyncState) error {
	start := time.Now()
	const op = "save_state"

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_state (config_id, last_sheet_sync_at, last_db_sync_at, sheet_etag,
		                         db_last_change_id, last_sheet_row_count, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (config_id) DO UPDATE SET
			last_sheet_sync_at = EXCLUDED.last_sheet_sync_at,
			last_db_sync_at = EXCLUDED.last_db_sync_at,
			sheet_etag = EXCLUDED.sheet_etag,
			db_last_change_id = EXCLUDED.db_last_change_id,
			last_sheet_row_count = EXCLUDED.last_sheet_row_count,
			last_error = EXCLUDED.last_error`,
		state.ConfigID, state.LastSheetSyncAt, state.LastDBSyncAt, state.SheetETag,
		state.DBLastChangeID, state.LastSheetRowCount, state.LastError)

	s.observe(op, start, err)
	if err != nil {
		return fmt.Errorf("metadatastore: save state %s: %w", state.ConfigID, err)
	}
	return nil
}

func (s *Store) CreateHistory(ctx context.Context, h core.SyncHistory) (string, error) {
	start := time.Now()
	const op = "create_history"

	if h.ID == "" {
		h.ID = uuid.NewString()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_history (id, config_id, direction, started_at, status, correlation_id, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		h.ID, h.ConfigID, string(h.Direction), h.StartedAt, string(core.HistoryRunning), h.CorrelationID, h.Note)

	s.observe(op, start, err)
	if err != nil {
		return "", fmt.Errorf("metadatastore: create history: %w", err)
	}
	return h.ID, nil
}

func (s *Store) FinalizeHistory(ctx context.Context, id string, status core.HistoryStatus, rowsAffected, conflicts int, errText, note string) error {
	start := time.Now()
	const op = "finalize_history"

	_, err := s.pool.Exec(ctx, `
		UPDATE sync_history
		   SET completed_at = now(), status = $2, rows_affected = $3,
		       conflicts_detected = $4, error = $5, note = $6
		 WHERE id = $1`,
		id, string(status), rowsAffected, conflicts, errText, note)

	s.observe(op, start, err)
	if err != nil {
		return fmt.Errorf("metadatastore: finalize history %s: %w", id, err)
	}
	return nil
}

func (s *Store) SaveConflict(ctx context.Context, c core.Conflict) error {
	start := time.Now()
	const op = "save_conflict"

	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	spreadsheetValue, err := json.Marshal(c.SpreadsheetValue)
	if err != nil {
		s.observe(op, start, err)
		return fmt.Errorf("metadatastore: marshal spreadsheet value: %w", err)
	}
	tableValue, err := json.Marshal(c.TableValue)
	if err != nil {
		s.observe(op, start, err)
		return fmt.Errorf("metadatastore: marshal table value: %w", err)
	}
	resolvedValue, err := json.Marshal(c.ResolvedValue)
	if err != nil {
		s.observe(op, start, err)
		return fmt.Errorf("metadatastore: marshal resolved value: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO conflicts (id, config_id, row_key, spreadsheet_value, table_value,
		                        spreadsheet_changed_at, table_changed_at, strategy,
		                        resolved_at, resolved_value, winner)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.ConfigID, c.RowKey, spreadsheetValue, tableValue,
		c.SpreadsheetChangedAt, c.TableChangedAt, string(c.Strategy),
		c.ResolvedAt, resolvedValue, c.Winner)

	s.observe(op, start, err)
	if err != nil {
		return fmt.Errorf("metadatastore: save conflict: %w", err)
	}
	return nil
}
