package store

// Package store persists the sandbox verification service: customers,
// sessions and their documents, in SQLite. The rows are exposed as the same
// api models the client consumes.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"swiftkyc-client/internal/api"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// timeLayout sorts lexically, so date filters can compare prefixes.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Store wraps the SQL database connection.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (creating if needed) the database at dbPath and runs
// migrations.
func NewStore(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps read-modify-write transactions serialized.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		mobile TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		status TEXT NOT NULL,
		current_step TEXT NOT NULL,
		retries_select INTEGER NOT NULL DEFAULT 0,
		retries_scan INTEGER NOT NULL DEFAULT 0,
		retries_upload INTEGER NOT NULL DEFAULT 0,
		retries_selfie INTEGER NOT NULL DEFAULT 0,
		failure_reason TEXT,
		selfie_url TEXT,
		face_match_score REAL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_status_updated ON sessions(status, updated_at);
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		doc_type TEXT NOT NULL,
		doc_number TEXT,
		storage_url TEXT,
		is_valid INTEGER,
		quality_score REAL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_session ON documents(session_id, created_at);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

// CreateSession reuses the customer for mobile (creating it on first use)
// and opens a new session at SELECT_DOC.
func (s *Store) CreateSession(ctx context.Context, mobile string) (*api.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := s.stamp()
	var customerID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM customers WHERE mobile = ?`, mobile).Scan(&customerID)
	if errors.Is(err, sql.ErrNoRows) {
		customerID = uuid.NewString()
		_, err = tx.ExecContext(ctx, `INSERT INTO customers (id, mobile, created_at) VALUES (?, ?, ?)`, customerID, mobile, now)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve customer: %w", err)
	}

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
	INSERT INTO sessions (id, customer_id, status, current_step, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`, id, customerID, api.StatusInProgress, api.StepSelectDoc, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSession(ctx, id)
}

const sessionColumns = `
	s.id, s.customer_id, c.mobile, s.status, s.current_step,
	s.retries_select, s.retries_scan, s.retries_upload, s.retries_selfie,
	s.failure_reason, s.selfie_url, s.face_match_score, s.created_at, s.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*api.Session, error) {
	var (
		sess              api.Session
		reason, selfieURL sql.NullString
		score             sql.NullFloat64
		created, updated  string
	)
	err := r.Scan(&sess.ID, &sess.CustomerID, &sess.Mobile, &sess.Status, &sess.CurrentStep,
		&sess.Select, &sess.Scan, &sess.Upload, &sess.Selfie,
		&reason, &selfieURL, &score, &created, &updated)
	if err != nil {
		return nil, err
	}
	sess.FailureReason = nullString(reason)
	sess.SelfieURL = nullString(selfieURL)
	if score.Valid {
		sess.FaceMatchScore = &score.Float64
	}
	sess.CreatedAt = parseTime(created)
	sess.UpdatedAt = parseTime(updated)
	return &sess, nil
}

// GetSession returns the session with id or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*api.Session, error) {
	return getSession(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getSession(ctx context.Context, q querier, id string) (*api.Session, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sessionColumns+`
	FROM sessions s JOIN customers c ON c.id = s.customer_id
	WHERE s.id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return sess, err
}

// UpdateSession loads the session, lets fn mutate it and writes it back in
// one transaction. An error from fn aborts without writing.
func (s *Store) UpdateSession(ctx context.Context, id string, fn func(*api.Session) error) (*api.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sess, err := getSession(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sess.UpdatedAt = &now
	_, err = tx.ExecContext(ctx, `
	UPDATE sessions SET
		status = ?, current_step = ?,
		retries_select = ?, retries_scan = ?, retries_upload = ?, retries_selfie = ?,
		failure_reason = ?, selfie_url = ?, face_match_score = ?, updated_at = ?
	WHERE id = ?`,
		sess.Status, sess.CurrentStep,
		sess.Select, sess.Scan, sess.Upload, sess.Selfie,
		sess.FailureReason, sess.SelfieURL, sess.FaceMatchScore, now.Format(timeLayout),
		id)
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sess, nil
}

// AddDocument creates an empty document of docType for the session.
func (s *Store) AddDocument(ctx context.Context, sessionID string, docType api.DocType) (*api.Document, error) {
	now := s.now().UTC()
	doc := &api.Document{ID: uuid.NewString(), DocType: docType, CreatedAt: &now}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO documents (id, session_id, doc_type, created_at) VALUES (?, ?, ?, ?)`,
		doc.ID, sessionID, docType, now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}
	return doc, nil
}

const documentColumns = `id, doc_type, doc_number, storage_url, is_valid, quality_score, created_at`

func scanDocument(r rowScanner) (*api.Document, error) {
	var (
		doc             api.Document
		number, storage sql.NullString
		valid           sql.NullBool
		quality         sql.NullFloat64
		created         string
	)
	if err := r.Scan(&doc.ID, &doc.DocType, &number, &storage, &valid, &quality, &created); err != nil {
		return nil, err
	}
	doc.DocNumber = nullString(number)
	doc.StorageURL = nullString(storage)
	if valid.Valid {
		doc.IsValid = &valid.Bool
	}
	if quality.Valid {
		doc.QualityScore = &quality.Float64
	}
	doc.CreatedAt = parseTime(created)
	return &doc, nil
}

// LatestDocument returns the most recently created document of the session.
func (s *Store) LatestDocument(ctx context.Context, sessionID string) (*api.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents
	WHERE session_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, sessionID)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document for session %s: %w", sessionID, ErrNotFound)
	}
	return doc, err
}

// GetDocument returns the document with id and the session owning it.
func (s *Store) GetDocument(ctx context.Context, id string) (*api.Document, string, error) {
	var sessionID string
	err := s.db.QueryRowContext(ctx, `SELECT session_id FROM documents WHERE id = ?`, id).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, "", err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	return doc, sessionID, err
}

// UpdateDocument writes the mutable document fields.
func (s *Store) UpdateDocument(ctx context.Context, doc *api.Document) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE documents SET doc_number = ?, storage_url = ?, is_valid = ?, quality_score = ?
	WHERE id = ?`, doc.DocNumber, doc.StorageURL, doc.IsValid, doc.QualityScore, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, ErrNotFound)
	}
	return nil
}

// Documents lists the session's documents, newest first.
func (s *Store) Documents(ctx context.Context, sessionID string) ([]api.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents
	WHERE session_id = ? ORDER BY created_at DESC, rowid DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []api.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// SessionDetail returns the session with all of its documents.
func (s *Store) SessionDetail(ctx context.Context, id string) (*api.SessionDetail, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	docs, err := s.Documents(ctx, id)
	if err != nil {
		return nil, err
	}
	return &api.SessionDetail{Session: *sess, Documents: docs}, nil
}

// ListSessions returns sessions matching f, newest first. The document type
// filter applies to each session's latest document; dates are inclusive days.
func (s *Store) ListSessions(ctx context.Context, f api.SessionFilter) ([]api.SessionSummary, error) {
	query := `
	SELECT s.id, s.customer_id, s.status, s.current_step, s.created_at, s.updated_at,
		(SELECT d.doc_type FROM documents d WHERE d.session_id = s.id
		 ORDER BY d.created_at DESC, d.rowid DESC LIMIT 1) AS primary_doc_type
	FROM sessions s WHERE 1 = 1`
	var args []any
	if f.Status != "" {
		query += ` AND s.status = ?`
		args = append(args, f.Status)
	}
	if f.CreatedFrom != "" {
		query += ` AND substr(s.created_at, 1, 10) >= ?`
		args = append(args, f.CreatedFrom)
	}
	if f.CreatedTo != "" {
		query += ` AND substr(s.created_at, 1, 10) <= ?`
		args = append(args, f.CreatedTo)
	}
	query = `SELECT * FROM (` + query + `) WHERE 1 = 1`
	if f.DocType != "" {
		query += ` AND primary_doc_type = ?`
		args = append(args, f.DocType)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	out := []api.SessionSummary{}
	for rows.Next() {
		var (
			sum              api.SessionSummary
			created, updated string
			docType          sql.NullString
		)
		if err := rows.Scan(&sum.ID, &sum.CustomerID, &sum.Status, &sum.CurrentStep, &created, &updated, &docType); err != nil {
			return nil, err
		}
		sum.CreatedAt = parseTime(created)
		sum.UpdatedAt = parseTime(updated)
		if docType.Valid {
			t := api.DocType(docType.String)
			sum.PrimaryDocType = &t
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// AbandonIdle marks every in-progress session untouched since before as
// ABANDONED and returns their ids.
func (s *Store) AbandonIdle(ctx context.Context, before time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	cutoff := before.UTC().Format(timeLayout)
	rows, err := tx.QueryContext(ctx, `SELECT id FROM sessions WHERE status = ? AND updated_at < ?`, api.StatusInProgress, cutoff)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	_, err = tx.ExecContext(ctx, `
	UPDATE sessions SET status = ?, failure_reason = ?, updated_at = ?
	WHERE status = ? AND updated_at < ?`,
		api.StatusAbandoned, "Session abandoned after inactivity.", s.stamp(), api.StatusInProgress, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to abandon sessions: %w", err)
	}
	return ids, tx.Commit()
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func parseTime(v string) *time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return nil
	}
	return &t
}
