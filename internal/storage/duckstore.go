package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/marcboeker/go-duckdb"

	"github.com/viewheel/backend/internal/models"
)

// DuckStore keeps the ledger in a DuckDB file so it survives restarts.
type DuckStore struct {
	db  *sql.DB
	now func() time.Time
	log *slog.Logger
}

const createSubmissions = `
	CREATE TABLE IF NOT EXISTS submissions (
		tx                VARCHAR PRIMARY KEY,
		wallet            VARCHAR NOT NULL,
		name              VARCHAR NOT NULL,
		size_bytes        BIGINT NOT NULL,
		when_iso          VARCHAR,
		file_id           VARCHAR,
		file_name         VARCHAR,
		file_mime         VARCHAR,
		web_view_link     VARCHAR,
		web_content_link  VARCHAR,
		row_appended      BOOLEAN NOT NULL DEFAULT false,
		status            VARCHAR NOT NULL,
		last_error        VARCHAR,
		attempts          INTEGER NOT NULL DEFAULT 0,
		created_at        TIMESTAMP NOT NULL,
		updated_at        TIMESTAMP NOT NULL
	)
`

// NewDuckStore opens (or creates) the ledger database at dbPath.
func NewDuckStore(dbPath string, log *slog.Logger) (*DuckStore, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if _, err := db.Exec(createSubmissions); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create submissions table: %w", err)
	}

	log.Info("ledger opened", "path", dbPath)
	return &DuckStore{db: db, now: time.Now, log: log}, nil
}

const selectColumns = `tx, wallet, name, size_bytes, when_iso, file_id, file_name, file_mime,
	web_view_link, web_content_link, row_appended, status, last_error, attempts, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.SubmissionRecord, error) {
	var rec models.SubmissionRecord
	var whenISO, lastError sql.NullString
	var fileID, fileName, fileMime, view, dl sql.NullString
	var status string
	err := row.Scan(&rec.Tx, &rec.Wallet, &rec.Name, &rec.SizeBytes, &whenISO,
		&fileID, &fileName, &fileMime, &view, &dl,
		&rec.RowAppended, &status, &lastError, &rec.Attempts, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.WhenISO = whenISO.String
	rec.LastError = lastError.String
	rec.Status = models.SubmissionStatus(status)
	if fileID.Valid && fileID.String != "" {
		rec.File = &models.DriveFile{
			ID:             fileID.String,
			Name:           fileName.String,
			MimeType:       fileMime.String,
			WebViewLink:    view.String,
			WebContentLink: dl.String,
		}
	}
	return &rec, nil
}

// Get returns the record for tx or ErrNotFound.
func (s *DuckStore) Get(ctx context.Context, tx string) (*models.SubmissionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM submissions WHERE tx = ?`, tx)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading submission %s: %w", tx, err)
	}
	return rec, nil
}

// Save upserts the record. CreatedAt is kept from the first write.
func (s *DuckStore) Save(ctx context.Context, rec *models.SubmissionRecord) error {
	if rec.Tx == "" {
		return errors.New("submission record needs a transaction signature")
	}

	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	var file models.DriveFile
	if rec.File != nil {
		file = *rec.File
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tx) DO UPDATE SET
			wallet = excluded.wallet,
			name = excluded.name,
			size_bytes = excluded.size_bytes,
			when_iso = excluded.when_iso,
			file_id = excluded.file_id,
			file_name = excluded.file_name,
			file_mime = excluded.file_mime,
			web_view_link = excluded.web_view_link,
			web_content_link = excluded.web_content_link,
			row_appended = excluded.row_appended,
			status = excluded.status,
			last_error = excluded.last_error,
			attempts = excluded.attempts,
			updated_at = excluded.updated_at`,
		rec.Tx, rec.Wallet, rec.Name, rec.SizeBytes, rec.WhenISO,
		file.ID, file.Name, file.MimeType, file.WebViewLink, file.WebContentLink,
		rec.RowAppended, string(rec.Status), rec.LastError, rec.Attempts, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving submission %s: %w", rec.Tx, err)
	}
	return nil
}

// List returns the most recently updated records first.
func (s *DuckStore) List(ctx context.Context, limit int) ([]*models.SubmissionRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM submissions ORDER BY updated_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	defer rows.Close()

	var list []*models.SubmissionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// Close closes the database.
func (s *DuckStore) Close() error {
	return s.db.Close()
}
