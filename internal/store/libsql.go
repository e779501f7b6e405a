package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/ambrosia/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Summaries ---

const summaryColumns = `id, element_id, element_type, account_id, project_id, workspace_id, status, export_type, metadata, ambrosia_url, started_at, completed_at`

func (s *LibSQLStore) CreateSummary(ctx context.Context, summary *schema.ExportSummary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO export_summaries (`+summaryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID, summary.ElementID, string(summary.ElementType), summary.AccountID,
		nullStr(summary.ProjectID), nullStr(summary.WorkspaceID), string(summary.Status), string(summary.ExportType),
		nullStr(summary.Metadata), nullStr(summary.AmbrosiaURL), timeOrNow(summary.StartedAt), nullTime(summary.CompletedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return schema.NewErrorf(schema.ErrCodeConflict, "export summary %q already exists", summary.ID).WithCause(err)
	}
	return err
}

func (s *LibSQLStore) GetSummary(ctx context.Context, id string) (*schema.ExportSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+summaryColumns+` FROM export_summaries WHERE id = ?`, id)
	summary, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("export summary", id)
	}
	return summary, err
}

// FinalizeSummary only succeeds while the summary is still in progress.
// A summary that is already terminal yields a CONFLICT error.
func (s *LibSQLStore) FinalizeSummary(ctx context.Context, id string, final SummaryFinalize) error {
	if !final.Status.Terminal() {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "cannot finalize export %q as %s", id, final.Status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE export_summaries SET status = ?, completed_at = ?, ambrosia_url = COALESCE(?, ambrosia_url)
		 WHERE id = ? AND status = ?`,
		string(final.Status), timeOrNow(final.CompletedAt), nullStr(final.AmbrosiaURL), id, string(schema.ExportStatusInProgress),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetSummary(ctx, id); err != nil {
		return err
	}
	return schema.NewErrorf(schema.ErrCodeConflict, "export summary %q is already terminal", id)
}

func (s *LibSQLStore) ListSummaries(ctx context.Context, filter SummaryFilter) ([]*schema.ExportSummary, error) {
	var where []string
	var args []any

	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.WorkspaceID != "" {
		where = append(where, "workspace_id = ?")
		args = append(args, filter.WorkspaceID)
	}
	if filter.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT ` + summaryColumns + ` FROM export_summaries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*schema.ExportSummary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (*schema.ExportSummary, error) {
	sm := &schema.ExportSummary{}
	var (
		elementType, status, exportType           string
		projectID, workspaceID, metadata, ambrURL sql.NullString
		completedAt                               sql.NullTime
	)
	if err := row.Scan(&sm.ID, &sm.ElementID, &elementType, &sm.AccountID, &projectID, &workspaceID,
		&status, &exportType, &metadata, &ambrURL, &sm.StartedAt, &completedAt); err != nil {
		return nil, err
	}
	sm.ElementType = schema.ElementType(elementType)
	sm.Status = schema.ExportStatus(status)
	sm.ExportType = schema.ExportType(exportType)
	sm.ProjectID = projectID.String
	sm.WorkspaceID = workspaceID.String
	sm.Metadata = metadata.String
	sm.AmbrosiaURL = ambrURL.String
	if completedAt.Valid {
		sm.CompletedAt = &completedAt.Time
	}
	return sm, nil
}

// --- Results ---

const resultColumns = `notification_id, export_id, element_id, element_type, root_element_id, account_id, project_id, status, completion_id, completed_at, created_at, updated_at`

func (s *LibSQLStore) CreateResult(ctx context.Context, r *schema.ExportResultNotification) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO export_results (`+resultColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.NotificationID, r.ExportID, r.ElementID, string(r.ElementType), r.RootElementID, r.AccountID,
		nullStr(r.ProjectID), string(r.Status), nullStr(r.CompletionID), nullTime(r.CompletedAt),
		timeOrNow(r.CreatedAt), timeOr(r.UpdatedAt, now),
	)
	return err
}

func (s *LibSQLStore) GetResult(ctx context.Context, notificationID string) (*schema.ExportResultNotification, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM export_results WHERE notification_id = ?`, notificationID)
	r, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("export result", notificationID)
	}
	return r, err
}

func (s *LibSQLStore) UpdateResult(ctx context.Context, notificationID string, update ResultUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.CompletionID != "" {
		sets = append(sets, "completion_id = ?")
		args = append(args, update.CompletionID)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), notificationID)

	query := fmt.Sprintf("UPDATE export_results SET %s WHERE notification_id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "export result", notificationID)
}

func (s *LibSQLStore) ListResults(ctx context.Context, exportID string) ([]*schema.ExportResultNotification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM export_results WHERE export_id = ? ORDER BY created_at, notification_id`, exportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*schema.ExportResultNotification
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func scanResult(row rowScanner) (*schema.ExportResultNotification, error) {
	r := &schema.ExportResultNotification{}
	var (
		elementType, status     string
		projectID, completionID sql.NullString
		completedAt             sql.NullTime
	)
	if err := row.Scan(&r.NotificationID, &r.ExportID, &r.ElementID, &elementType, &r.RootElementID, &r.AccountID,
		&projectID, &status, &completionID, &completedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.ElementType = schema.ElementType(elementType)
	r.Status = schema.ResultStatus(status)
	r.ProjectID = projectID.String
	r.CompletionID = completionID.String
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	return r, nil
}

// --- Errors ---

func (s *LibSQLStore) CreateError(ctx context.Context, e *schema.ExportErrorNotification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO export_errors (notification_id, export_id, element_id, element_type, error_message, cause, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.NotificationID, e.ExportID, nullStr(e.ElementID), nullStr(string(e.ElementType)),
		e.ErrorMessage, nullStr(e.Cause), timeOrNow(e.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) ListErrors(ctx context.Context, exportID string) ([]*schema.ExportErrorNotification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT notification_id, export_id, element_id, element_type, error_message, cause, created_at
		 FROM export_errors WHERE export_id = ? ORDER BY id`, exportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var errs []*schema.ExportErrorNotification
	for rows.Next() {
		e := &schema.ExportErrorNotification{}
		var elementID, elementType, cause sql.NullString
		if err := rows.Scan(&e.NotificationID, &e.ExportID, &elementID, &elementType, &e.ErrorMessage, &cause, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ElementID = elementID.String
		e.ElementType = schema.ElementType(elementType.String)
		e.Cause = cause.String
		errs = append(errs, e)
	}
	return errs, rows.Err()
}

func (s *LibSQLStore) HasErrors(ctx context.Context, exportID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM export_errors WHERE export_id = ?)`, exportID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}

// --- Reducer errors ---

func (s *LibSQLStore) CreateReducerError(ctx context.Context, e *schema.AmbrosiaReducerErrorLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reducer_errors (export_id, cause, error_message, created_at) VALUES (?, ?, ?, ?)`,
		e.ExportID, e.Cause, e.ErrorMessage, timeOrNow(e.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) ListReducerErrors(ctx context.Context, exportID string) ([]*schema.AmbrosiaReducerErrorLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT export_id, cause, error_message, created_at FROM reducer_errors WHERE export_id = ? ORDER BY id`, exportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*schema.AmbrosiaReducerErrorLog
	for rows.Next() {
		l := &schema.AmbrosiaReducerErrorLog{}
		if err := rows.Scan(&l.ExportID, &l.Cause, &l.ErrorMessage, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// --- Durable snippets ---

func (s *LibSQLStore) PutSnippet(ctx context.Context, sn *schema.ExportAmbrosiaSnippet) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO export_snippets (export_id, element_id, notification_id, element_type, account_id, snippet)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(export_id, element_id) DO UPDATE SET
		   notification_id=excluded.notification_id, element_type=excluded.element_type,
		   account_id=excluded.account_id, snippet=excluded.snippet`,
		sn.ExportID, sn.ElementID, nullStr(sn.NotificationID), string(sn.ElementType), nullStr(sn.AccountID), sn.Snippet,
	)
	return err
}

func (s *LibSQLStore) ListSnippets(ctx context.Context, exportID string) ([]*schema.ExportAmbrosiaSnippet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT export_id, element_id, notification_id, element_type, account_id, snippet
		 FROM export_snippets WHERE export_id = ? ORDER BY element_id`, exportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSnippets(rows)
}

func (s *LibSQLStore) DeleteSnippets(ctx context.Context, exportID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM export_snippets WHERE export_id = ?`, exportID)
	return err
}

// --- Cached snippets ---

func (s *LibSQLStore) PutCachedSnippet(ctx context.Context, sn *schema.ExportAmbrosiaSnippet, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO export_snippet_cache (export_id, element_id, notification_id, element_type, account_id, snippet, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(export_id, element_id) DO UPDATE SET
		   notification_id=excluded.notification_id, element_type=excluded.element_type,
		   account_id=excluded.account_id, snippet=excluded.snippet, expires_at=excluded.expires_at`,
		sn.ExportID, sn.ElementID, nullStr(sn.NotificationID), string(sn.ElementType), nullStr(sn.AccountID), sn.Snippet,
		expiresAt.UnixMilli(),
	)
	return err
}

func (s *LibSQLStore) ListCachedSnippets(ctx context.Context, exportID string, now time.Time) ([]*schema.ExportAmbrosiaSnippet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT export_id, element_id, notification_id, element_type, account_id, snippet
		 FROM export_snippet_cache WHERE export_id = ? AND expires_at > ? ORDER BY element_id`,
		exportID, now.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSnippets(rows)
}

func (s *LibSQLStore) DeleteCachedSnippets(ctx context.Context, exportID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM export_snippet_cache WHERE export_id = ?`, exportID)
	return err
}

func (s *LibSQLStore) PurgeCachedSnippets(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM export_snippet_cache WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSnippets(rows *sql.Rows) ([]*schema.ExportAmbrosiaSnippet, error) {
	var snippets []*schema.ExportAmbrosiaSnippet
	for rows.Next() {
		sn := &schema.ExportAmbrosiaSnippet{}
		var notificationID, accountID sql.NullString
		var elementType string
		if err := rows.Scan(&sn.ExportID, &sn.ElementID, &notificationID, &elementType, &accountID, &sn.Snippet); err != nil {
			return nil, err
		}
		sn.NotificationID = notificationID.String
		sn.AccountID = accountID.String
		sn.ElementType = schema.ElementType(elementType)
		snippets = append(snippets, sn)
	}
	return snippets, rows.Err()
}

// --- Tracking ---

// AddTracking inserts or refreshes a tracking entry.
func (s *LibSQLStore) AddTracking(ctx context.Context, exportID, notificationID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO export_tracking (export_id, notification_id, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(export_id, notification_id) DO UPDATE SET expires_at=excluded.expires_at`,
		exportID, notificationID, expiresAt.UnixMilli(),
	)
	return err
}

// RemoveTracking deletes a tracking entry. Removing an absent entry is not an error.
func (s *LibSQLStore) RemoveTracking(ctx context.Context, exportID, notificationID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM export_tracking WHERE export_id = ? AND notification_id = ?`, exportID, notificationID)
	return err
}

// CountTracking counts entries of an export that have not expired at now.
func (s *LibSQLStore) CountTracking(ctx context.Context, exportID string, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM export_tracking WHERE export_id = ? AND expires_at > ?`, exportID, now.UnixMilli(),
	).Scan(&n)
	return n, err
}

func (s *LibSQLStore) PurgeTracking(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM export_tracking WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Events ---

// AppendEvent assigns the next per-export sequence number and inserts the event
// in one transaction. The single-connection pool serializes concurrent writers.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM export_events WHERE export_id = ?`, event.ExportID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq
	event.Timestamp = timeOrNow(event.Timestamp)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO export_events (export_id, notification_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ExportID, nullStr(event.NotificationID), event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetEvents(ctx context.Context, exportID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, export_id, notification_id, event_type, payload, timestamp, sequence
		 FROM export_events WHERE export_id = ? AND sequence > ? ORDER BY sequence ASC`,
		exportID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var notificationID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.ExportID, &notificationID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.NotificationID = notificationID.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.AmbrosiaError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	return timeOr(t, time.Now().UTC())
}

func timeOr(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

var _ Store = (*LibSQLStore)(nil)
