package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/virangk414141/vimesta2/internal/model"
)

// FileRepo defines the interface for file metadata operations
type FileRepo interface {
	Create(ctx context.Context, f model.File) (model.File, error)
	// ListByUser returns the user's files, newest first, optionally filtered
	// by file type class.
	ListByUser(ctx context.Context, userID uuid.UUID, fileType string) ([]model.File, error)
	GetOwned(ctx context.Context, id, userID uuid.UUID) (model.File, error)
	GetByPublicHash(ctx context.Context, hash string) (model.File, error)
	Delete(ctx context.Context, id uuid.UUID) error
	MarkShared(ctx context.Context, id uuid.UUID, hash string) error
	IncrementDownloads(ctx context.Context, id uuid.UUID) error
	StatsByUser(ctx context.Context, userID uuid.UUID) ([]model.TypeStat, error)
}

type fileRepo struct {
	db *sql.DB
}

// NewFileRepo creates a new FileRepo instance
func NewFileRepo(db *sql.DB) FileRepo {
	return &fileRepo{db: db}
}

const fileColumns = `id, user_id, telegram_file_id, telegram_message_id, original_filename,
	file_size, file_type, mime_type, upload_date, is_public, public_link_hash, download_count`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFile(row rowScanner) (model.File, error) {
	var f model.File
	var idStr, userIDStr string
	var messageID sql.NullInt64
	var fileType, mimeType, publicHash sql.NullString
	err := row.Scan(
		&idStr,
		&userIDStr,
		&f.TelegramFileID,
		&messageID,
		&f.OriginalFilename,
		&f.FileSize,
		&fileType,
		&mimeType,
		&f.UploadDate,
		&f.IsPublic,
		&publicHash,
		&f.DownloadCount,
	)
	if err != nil {
		return model.File{}, err
	}
	f.TelegramMessageID = messageID.Int64
	f.FileType = fileType.String
	f.MimeType = mimeType.String
	if publicHash.Valid {
		f.PublicLinkHash = &publicHash.String
	}
	if f.ID, err = uuid.Parse(idStr); err != nil {
		return model.File{}, fmt.Errorf("parse file ID: %w", err)
	}
	if f.UserID, err = uuid.Parse(userIDStr); err != nil {
		return model.File{}, fmt.Errorf("parse user ID: %w", err)
	}
	return f, nil
}

// Create inserts a new file record
func (r *fileRepo) Create(ctx context.Context, f model.File) (model.File, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO files (user_id, telegram_file_id, telegram_message_id, original_filename,
		                   file_size, file_type, mime_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+fileColumns+`
	`, f.UserID, f.TelegramFileID, f.TelegramMessageID, f.OriginalFilename, f.FileSize, f.FileType, f.MimeType)
	created, err := scanFile(row)
	if err != nil {
		return model.File{}, fmt.Errorf("insert file: %w", err)
	}
	return created, nil
}

// ListByUser returns the user's files, newest first
func (r *fileRepo) ListByUser(ctx context.Context, userID uuid.UUID, fileType string) ([]model.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE user_id = $1`
	args := []interface{}{userID}
	if fileType != "" {
		query += ` AND file_type = $2`
		args = append(args, fileType)
	}
	query += ` ORDER BY upload_date DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

// GetOwned returns the file only if it belongs to the user
func (r *fileRepo) GetOwned(ctx context.Context, id, userID uuid.UUID) (model.File, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+fileColumns+` FROM files WHERE id = $1 AND user_id = $2
	`, id, userID)
	f, err := scanFile(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.File{}, fmt.Errorf("file not found: %w", err)
		}
		return model.File{}, fmt.Errorf("query file: %w", err)
	}
	return f, nil
}

// GetByPublicHash returns a publicly shared file by its link hash
func (r *fileRepo) GetByPublicHash(ctx context.Context, hash string) (model.File, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+fileColumns+` FROM files WHERE public_link_hash = $1 AND is_public
	`, hash)
	f, err := scanFile(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.File{}, fmt.Errorf("file not found: %w", err)
		}
		return model.File{}, fmt.Errorf("query file: %w", err)
	}
	return f, nil
}

// Delete removes the file record
func (r *fileRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// MarkShared flips the file public and records its share hash
func (r *fileRepo) MarkShared(ctx context.Context, id uuid.UUID, hash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE files
		SET is_public = true, public_link_hash = COALESCE(public_link_hash, $2)
		WHERE id = $1
	`, id, hash)
	if err != nil {
		return fmt.Errorf("mark file shared: %w", err)
	}
	return nil
}

// IncrementDownloads bumps the download counter
func (r *fileRepo) IncrementDownloads(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE files SET download_count = download_count + 1 WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("increment downloads: %w", err)
	}
	return nil
}

// StatsByUser aggregates file counts and sizes per type class
func (r *fileRepo) StatsByUser(ctx context.Context, userID uuid.UUID) ([]model.TypeStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT COALESCE(file_type, 'other'), COUNT(*), COALESCE(SUM(file_size), 0)
		FROM files
		WHERE user_id = $1
		GROUP BY 1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("file stats: %w", err)
	}
	defer rows.Close()

	var stats []model.TypeStat
	for rows.Next() {
		var s model.TypeStat
		if err := rows.Scan(&s.FileType, &s.Count, &s.Size); err != nil {
			return nil, fmt.Errorf("scan file stats: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("file stats: %w", err)
	}
	return stats, nil
}
