// Package postgres implements core.TargetTableAdapter against a Postgres
// target table backed by a change-capture log (spec.md §4.1): per-table
// AFTER triggers (see migrations/) append one sync_change_log row per
// INSERT/UPDATE/DELETE, tagged with the session variable ApplyChanges sets
// via SET LOCAL so the S->T worker can stamp its own writes and the T->S
// worker can exclude them, breaking the loop between the two directions.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sheetsync/sheetsync/internal/core"
	dbpostgres "github.com/sheetsync/sheetsync/internal/database/postgres"
)

// sourceTagSetting is the session variable ApplyChanges sets with SET LOCAL
// and the change-log triggers read with current_setting(..., true). Defined
// in migrations/ alongside the trigger functions.
const sourceTagSetting = "sync.source_tag"

// ChangeLogTable is the name of the append-only change-capture table the
// per-table triggers write to.
const ChangeLogTable = "sync_change_log"

// Adapter implements core.TargetTableAdapter over a pooled Postgres
// connection.
type Adapter struct {
	pool *dbpostgres.PostgresPool
}

// New wraps an already-connected pool.
func New(pool *dbpostgres.PostgresPool) *Adapter {
	return &Adapter{pool: pool}
}

var _ core.TargetTableAdapter = (*Adapter)(nil)

// ReadAll projects the full current contents of table over mapping's
// columns.
func (a *Adapter) ReadAll(ctx context.Context, table string, mapping core.ColumnMapping) ([]core.Row, error) {
	cols := mapping.ColumnNames()
	query := fmt.Sprintf("SELECT %s FROM %s", quoteIdentList(cols), quoteIdent(table))

	rows, err := a.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("targettable: read all %s: %w", table, err)
	}
	defer rows.Close()

	var out []core.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("targettable: scan %s: %w", table, err)
		}
		row := make(core.Row, len(cols))
		for i, col := range cols {
			if i < len(values) {
				row[col] = valueFromAny(values[i])
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("targettable: read all %s: %w", table, err)
	}
	return out, nil
}

// ApplyChanges performs inserts, updates, and deletes in one transaction,
// with the session's source tag set so the AAFTER triggers stamp every
// resulting change-log row with writeTag.
func (a *Adapter) ApplyChanges(ctx context.Context, table string, mapping core.ColumnMapping, writeTag string, inserts, updates []core.Row, deleteKeys []string) error {
	if len(inserts) == 0 && len(updates) == 0 && len(deleteKeys) == 0 {
		return nil
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("targettable: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL %s = %s", sourceTagSetting, quoteLiteral(writeTag))); err != nil {
		return fmt.Errorf("targettable: set source tag: %w", err)
	}

	pkCol := mapping.PrimaryKeyColumn()
	cols := mapping.ColumnNames()

	for _, row := range inserts {
		if err := upsertRow(ctx, tx, table, cols, pkCol, row); err != nil {
			return fmt.Errorf("targettable: insert: %w", err)
		}
	}

	for _, row := range updates {
		if err := updateRow(ctx, tx, table, cols, pkCol, row); err != nil {
			return fmt.Errorf("targettable: update: %w", err)
		}
	}

	if len(deleteKeys) > 0 {
		query := fmt.Sprintf("DELETE FROM %s WHERE %s = ANY($1)", quoteIdent(table), quoteIdent(pkCol))
		if _, err := tx.Exec(ctx, query, deleteKeys); err != nil {
			return fmt.Errorf("targettable: delete: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("targettable: commit: %w", err)
	}
	return nil
}

// upsertRow inserts row, or on primary-key conflict overwrites every mapped
// column.
func upsertRow(ctx context.Context, tx pgx.Tx, table string, cols []string, pkCol string, row core.Row) error {
	args := make([]any, len(cols))
	placeholders := make([]string, len(cols))
	sets := make([]string, 0, len(cols)-1)
	for i, col := range cols {
		args[i] = row.Get(col).TrimmedString()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if col != pkCol {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", quoteIdent(col), quoteIdent(col)))
		}
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		quoteIdent(table), quoteIdentList(cols), strings.Join(placeholders, ", "),
		quoteIdent(pkCol), strings.Join(sets, ", "),
	)
	_, err := tx.Exec(ctx, query, args...)
	return err
}

// updateRow performs a keyed update of every mapped column except the
// primary key.
func updateRow(ctx context.Context, tx pgx.Tx, table string, cols []string, pkCol string, row core.Row) error {
	args := make([]any, 0, len(cols))
	sets := make([]string, 0, len(cols)-1)
	for _, col := range cols {
		if col == pkCol {
			continue
		}
		args = append(args, row.Get(col).TrimmedString())
		sets = append(sets, fmt.Sprintf("%s = $%d", quoteIdent(col), len(args)))
	}
	args = append(args, row.Get(pkCol).TrimmedString())

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d", quoteIdent(table), strings.Join(sets, ", "), quoteIdent(pkCol), len(args))
	_, err := tx.Exec(ctx, query, args...)
	return err
}

// GetChangeLog returns unprocessed change-log rows for table whose
// source_tag differs from excludeTag (or is unset), oldest first.
func (a *Adapter) GetChangeLog(ctx context.Context, table string, excludeTag string, limit int) ([]core.ChangeLogEntry, error) {
	query := fmt.Sprintf(
		`SELECT id, table_name, op, row_data, source_tag, changed_at, processed
		   FROM %s
		  WHERE table_name = $1 AND processed = false AND source_tag IS DISTINCT FROM $2
		  ORDER BY id ASC
		  LIMIT $3`,
		quoteIdent(ChangeLogTable),
	)

	rows, err := a.pool.Query(ctx, query, table, excludeTag, limit)
	if err != nil {
		return nil, fmt.Errorf("targettable: get change log: %w", err)
	}
	defer rows.Close()

	return scanChangeLog(rows)
}

// GetChangeLogSince returns every change-log row for table at or after
// since, regardless of source tag.
func (a *Adapter) GetChangeLogSince(ctx context.Context, table string, since time.Time) ([]core.ChangeLogEntry, error) {
	query := fmt.Sprintf(
		`SELECT id, table_name, op, row_data, source_tag, changed_at, processed
		   FROM %s
		  WHERE table_name = $1 AND changed_at >= $2
		  ORDER BY id ASC`,
		quoteIdent(ChangeLogTable),
	)

	rows, err := a.pool.Query(ctx, query, table, since)
	if err != nil {
		return nil, fmt.Errorf("targettable: get change log since: %w", err)
	}
	defer rows.Close()

	return scanChangeLog(rows)
}

func scanChangeLog(rows pgx.Rows) ([]core.ChangeLogEntry, error) {
	var out []core.ChangeLogEntry
	for rows.Next() {
		var (
			entry      core.ChangeLogEntry
			op         string
			rowPayload []byte
		)
		if err := rows.Scan(&entry.ID, &entry.TableName, &op, &rowPayload, &entry.SourceTag, &entry.ChangedAt, &entry.Processed); err != nil {
			return nil, fmt.Errorf("targettable: scan change log: %w", err)
		}
		entry.Op = core.ChangeOp(op)
		entry.Row = rowFromJSON(rowPayload)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("targettable: change log: %w", err)
	}
	return out, nil
}

// MarkChangesProcessed flips processed=true for ids in one statement.
func (a *Adapter) MarkChangesProcessed(ctx context.Context, table string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf("UPDATE %s SET processed = true WHERE table_name = $1 AND id = ANY($2)", quoteIdent(ChangeLogTable))
	_, err := a.pool.Exec(ctx, query, table, ids)
	if err != nil {
		return fmt.Errorf("targettable: mark processed: %w", err)
	}
	return nil
}

// rowFromJSON decodes a change-log row_data jsonb payload into a core.Row,
// tolerating a null/empty payload (e.g. a bare DELETE that only logs the key).
func rowFromJSON(payload []byte) core.Row {
	if len(payload) == 0 {
		return core.Row{}
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return core.Row{}
	}
	row := make(core.Row, len(decoded))
	for k, v := range decoded {
		row[k] = valueFromAny(v)
	}
	return row
}

// valueFromAny normalizes a value returned by pgx (or decoded from jsonb)
// into core.Value, tagging its dynamic Go type (spec.md §9).
func valueFromAny(v any) core.Value {
	switch t := v.(type) {
	case nil:
		return core.NullValue()
	case int64:
		return core.IntegerValue(t)
	case int32:
		return core.IntegerValue(int64(t))
	case int:
		return core.IntegerValue(int64(t))
	case float64:
		return core.FloatValue(t)
	case float32:
		return core.FloatValue(float64(t))
	case bool:
		return core.BoolValue(t)
	case time.Time:
		return core.TimestampValue(t)
	case string:
		return core.StringValue(t)
	case []byte:
		return core.StringValue(string(t))
	default:
		return core.JSONValue(t)
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdentList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// quoteLiteral quotes a string as a SQL literal for SET LOCAL, which does
// not accept bind parameters.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
