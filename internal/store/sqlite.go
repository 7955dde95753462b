package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/neonspire/docqa/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository and DocumentRepository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ Repository         = (*SQLiteStore)(nil)
	_ DocumentRepository = (*SQLiteStore)(nil)
)

// NewSQLite opens (and creates if needed) a SQLite database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		doc_id TEXT,
		file_json TEXT,
		turns_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_seen ON sessions(last_seen_at);

	CREATE TABLE IF NOT EXISTS selected_files (
		session_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		content_type TEXT NOT NULL,
		size INTEGER NOT NULL,
		data BLOB NOT NULL,
		selected_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		doc_id TEXT PRIMARY KEY,
		file_name TEXT NOT NULL,
		pages_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `
		SELECT session_id, doc_id, file_json, turns_json,
		       created_at, last_seen_at, updated_at
		FROM sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var session domain.Session
	var docID, fileJSON sql.NullString
	var turnsJSON string
	var createdAt, lastSeen, updatedAt int64

	err := row.Scan(
		&session.ID, &docID, &fileJSON, &turnsJSON,
		&createdAt, &lastSeen, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.DocID = docID.String
	session.CreatedAt = time.Unix(createdAt, 0)
	session.LastSeenAt = time.Unix(lastSeen, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)

	if fileJSON.Valid && fileJSON.String != "" {
		var file domain.SelectedFile
		if err := json.Unmarshal([]byte(fileJSON.String), &file); err != nil {
			return nil, fmt.Errorf("decode selected file: %w", err)
		}
		session.File = &file
	}
	if err := json.Unmarshal([]byte(turnsJSON), &session.Turns); err != nil {
		return nil, fmt.Errorf("decode turns: %w", err)
	}
	if session.Turns == nil {
		session.Turns = []domain.Turn{}
	}

	return &session, nil
}

// SaveSession creates or replaces a session snapshot.
func (s *SQLiteStore) SaveSession(ctx context.Context, session domain.Session) error {
	turns := session.Turns
	if turns == nil {
		turns = []domain.Turn{}
	}
	turnsJSON, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode turns: %w", err)
	}

	var fileJSON interface{}
	if session.File != nil {
		raw, err := json.Marshal(session.File)
		if err != nil {
			return fmt.Errorf("encode selected file: %w", err)
		}
		fileJSON = string(raw)
	}

	var docID interface{}
	if session.DocID != "" {
		docID = session.DocID
	}

	query := `
	INSERT INTO sessions (session_id, doc_id, file_json, turns_json, created_at, last_seen_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		doc_id = excluded.doc_id,
		file_json = excluded.file_json,
		turns_json = excluded.turns_json,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	return withRetry(ctx, "save session", func() error {
		_, err := s.db.ExecContext(ctx, query,
			session.ID, docID, fileJSON, string(turnsJSON),
			session.CreatedAt.Unix(), session.LastSeenAt.Unix(), session.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
		return nil
	})
}

// SaveFile stores the bytes of the file selected in a session.
func (s *SQLiteStore) SaveFile(ctx context.Context, sessionID string, file domain.SelectedFile, data []byte) error {
	query := `
	INSERT INTO selected_files (session_id, name, content_type, size, data, selected_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		name = excluded.name,
		content_type = excluded.content_type,
		size = excluded.size,
		data = excluded.data,
		selected_at = excluded.selected_at`

	if data == nil {
		data = []byte{}
	}
	return withRetry(ctx, "save file", func() error {
		_, err := s.db.ExecContext(ctx, query,
			sessionID, file.Name, file.ContentType, file.Size, data, file.SelectedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("upsert selected file: %w", err)
		}
		return nil
	})
}

// GetFile returns the selected file of a session.
func (s *SQLiteStore) GetFile(ctx context.Context, sessionID string) (*domain.SelectedFile, []byte, error) {
	query := `SELECT name, content_type, size, data, selected_at FROM selected_files WHERE session_id = ?`

	var file domain.SelectedFile
	var data []byte
	var selectedAt int64
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&file.Name, &file.ContentType, &file.Size, &data, &selectedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("scan selected file: %w", err)
	}
	file.SelectedAt = time.Unix(selectedAt, 0)
	return &file, data, nil
}

// DeleteExpiredSessions removes sessions idle for longer than ttl.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, ttl time.Duration) ([]string, error) {
	threshold := time.Now().Add(-ttl).Unix()

	var ids []string
	err := withRetry(ctx, "delete expired sessions", func() error {
		ids = ids[:0]
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Debug("failed to rollback expired sessions tx", "error", rbErr)
			}
		}()

		rows, err := tx.QueryContext(ctx, `SELECT session_id FROM sessions WHERE last_seen_at < ?`, threshold)
		if err != nil {
			return fmt.Errorf("query expired sessions: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan expired session: %w", err)
			}
			ids = append(ids, id)
		}
		if err := rows.Close(); err != nil {
			return fmt.Errorf("close expired sessions rows: %w", err)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate expired sessions: %w", err)
		}

		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM selected_files WHERE session_id = ?`, id); err != nil {
				return fmt.Errorf("delete selected file: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id); err != nil {
				return fmt.Errorf("delete session: %w", err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// SaveDocument creates or replaces a document.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	pages := doc.Pages
	if pages == nil {
		pages = []string{}
	}
	pagesJSON, err := json.Marshal(pages)
	if err != nil {
		return fmt.Errorf("encode pages: %w", err)
	}

	query := `
	INSERT INTO documents (doc_id, file_name, pages_json, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(doc_id) DO UPDATE SET
		file_name = excluded.file_name,
		pages_json = excluded.pages_json`

	return withRetry(ctx, "save document", func() error {
		_, err := s.db.ExecContext(ctx, query, doc.ID, doc.FileName, string(pagesJSON), doc.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("upsert document: %w", err)
		}
		return nil
	})
}

// GetDocument retrieves a document by ID.
func (s *SQLiteStore) GetDocument(ctx context.Context, docID string) (*domain.Document, error) {
	query := `SELECT doc_id, file_name, pages_json, created_at FROM documents WHERE doc_id = ?`

	var doc domain.Document
	var pagesJSON string
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, docID).Scan(&doc.ID, &doc.FileName, &pagesJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan document row: %w", err)
	}
	if err := json.Unmarshal([]byte(pagesJSON), &doc.Pages); err != nil {
		return nil, fmt.Errorf("decode pages: %w", err)
	}
	doc.CreatedAt = time.Unix(createdAt, 0)
	return &doc, nil
}
