package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const fileColumns = `id, owner_id, original_name, size_bytes, content_type, storage_key,
	status, parent_file_id, is_output, created_at, updated_at`

// CreateFile inserts a new file record. A missing ID is assigned.
func (s *Store) CreateFile(ctx context.Context, file *File) error {
	ctx = ensureContext(ctx)
	if file == nil {
		return fmt.Errorf("create file: nil file")
	}
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.Status == "" {
		file.Status = FileUploading
	}
	now := time.Now().UTC()
	file.CreatedAt = now
	file.UpdatedAt = now

	_, err := s.execWithRetry(ctx, `
		INSERT INTO files (id, owner_id, original_name, size_bytes, content_type, storage_key,
			status, parent_file_id, is_output, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID, file.OwnerID, file.OriginalName, file.SizeBytes,
		nullableString(file.ContentType), nullableString(file.StorageKey),
		string(file.Status), nullableString(file.ParentFileID), boolToInt(file.IsOutput),
		timestamp(file.CreatedAt), timestamp(file.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// GetFile returns the file with the given ID, or nil when absent.
func (s *Store) GetFile(ctx context.Context, id string) (*File, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM files WHERE id = ?", fileColumns), id)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return file, nil
}

// ListFilesByOwner returns the owner's uploads, newest first. Output
// artifacts are excluded; use OutputsForFile to walk derived files.
func (s *Store) ListFilesByOwner(ctx context.Context, ownerID string) ([]*File, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM files
		WHERE owner_id = ? AND is_output = 0
		ORDER BY created_at DESC, id DESC`, fileColumns), ownerID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectFiles(rows)
}

// OutputsForFile returns artifacts produced from the given source file,
// in creation order.
func (s *Store) OutputsForFile(ctx context.Context, fileID string) ([]*File, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM files
		WHERE parent_file_id = ?
		ORDER BY created_at ASC, id ASC`, fileColumns), fileID)
	if err != nil {
		return nil, fmt.Errorf("list outputs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectFiles(rows)
}

// SetFileStorage records where the uploaded bytes landed.
func (s *Store) SetFileStorage(ctx context.Context, id, storageKey string, sizeBytes int64) error {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx, `
		UPDATE files SET storage_key = ?, size_bytes = ?, updated_at = ?
		WHERE id = ?`,
		storageKey, sizeBytes, timestamp(time.Now()), id)
	if err != nil {
		return fmt.Errorf("set file storage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set file storage: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set file storage: file %s not found", id)
	}
	return nil
}

// TransitionFileStatus performs a conditional status update. It reports
// ok == false when the row no longer holds the expected status; that is a
// lost race, not an error.
func (s *Store) TransitionFileStatus(ctx context.Context, id string, from, to FileStatus) (bool, error) {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx, `
		UPDATE files SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), timestamp(time.Now()), id, string(from))
	if err != nil {
		return false, fmt.Errorf("transition file status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition file status: %w", err)
	}
	return affected == 1, nil
}

// DeleteFile removes a file together with its outputs, pipelines, and jobs.
// It returns the storage keys of every removed blob so callers can clean up
// the object store.
func (s *Store) DeleteFile(ctx context.Context, id string) ([]string, error) {
	ctx = ensureContext(ctx)

	var keys []string
	rows, err := s.db.QueryContext(ctx, `
		SELECT storage_key FROM files
		WHERE (id = ? OR parent_file_id = ?) AND storage_key IS NOT NULL`, id, id)
	if err != nil {
		return nil, fmt.Errorf("delete file: collect keys: %w", err)
	}
	for rows.Next() {
		var key string
		if scanErr := rows.Scan(&key); scanErr != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("delete file: scan key: %w", scanErr)
		}
		if key != "" {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("delete file: %w", err)
	}
	_ = rows.Close()

	if _, err := s.execWithRetry(ctx,
		"DELETE FROM files WHERE id = ? OR parent_file_id = ?", id, id); err != nil {
		return nil, fmt.Errorf("delete file: %w", err)
	}
	return keys, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(scanner rowScanner) (*File, error) {
	var (
		file        File
		contentType sql.NullString
		storageKey  sql.NullString
		parentID    sql.NullString
		status      string
		isOutput    int
		createdAt   string
		updatedAt   string
	)
	err := scanner.Scan(&file.ID, &file.OwnerID, &file.OriginalName, &file.SizeBytes,
		&contentType, &storageKey, &status, &parentID, &isOutput, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	file.ContentType = contentType.String
	file.StorageKey = storageKey.String
	file.ParentFileID = parentID.String
	file.Status = FileStatus(status)
	file.IsOutput = isOutput != 0
	if file.CreatedAt, err = parseTimeString(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if file.UpdatedAt, err = parseTimeString(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &file, nil
}

func collectFiles(rows *sql.Rows) ([]*File, error) {
	var files []*File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return files, nil
}
