package postgres

import (
	"context"
	"fmt"

	"github.com/jts-services/portal/internal/repository"
)

const fileColumns = `id::text, owner_id, folder_id::text, name, object_name, content_type, size_bytes, created_at`

// FileRepository is the Postgres implementation of repository.FileRepository.
type FileRepository struct {
	db *DB
}

func NewFileRepository(db *DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) ListFiles(ctx context.Context, ownerID string, folderID *string) ([]*repository.File, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+fileColumns+`
		 FROM files
		 WHERE owner_id = $1 AND folder_id IS NOT DISTINCT FROM $2::uuid
		 ORDER BY name, created_at`,
		ownerID, folderID,
	)
	if err != nil {
		return nil, mapError("ListFiles", err)
	}
	defer rows.Close()

	return scanFiles("ListFiles", rows)
}

func (r *FileRepository) ListFilesUnderFolders(ctx context.Context, ownerID string, folderIDs []string) ([]*repository.File, error) {
	if len(folderIDs) == 0 {
		return []*repository.File{}, nil
	}

	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+fileColumns+`
		 FROM files
		 WHERE owner_id = $1 AND folder_id = ANY($2::uuid[])`,
		ownerID, folderIDs,
	)
	if err != nil {
		return nil, mapError("ListFilesUnderFolders", err)
	}
	defer rows.Close()

	return scanFiles("ListFilesUnderFolders", rows)
}

func (r *FileRepository) GetFile(ctx context.Context, ownerID, fileID string) (*repository.File, error) {
	f := &repository.File{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = $1 AND owner_id = $2`,
		fileID, ownerID,
	).Scan(&f.ID, &f.OwnerID, &f.FolderID, &f.Name, &f.ObjectName, &f.ContentType, &f.SizeBytes, &f.CreatedAt)
	if err != nil {
		return nil, mapError("GetFile", err)
	}
	return f, nil
}

func (r *FileRepository) InsertFile(ctx context.Context, file *repository.File) error {
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO files (owner_id, folder_id, name, object_name, content_type, size_bytes)
		 SELECT $1, $2::uuid, $3, $4, $5, $6
		 WHERE $2::uuid IS NULL
		    OR EXISTS (SELECT 1 FROM folders WHERE id = $2::uuid AND owner_id = $1)
		 RETURNING id::text, created_at`,
		file.OwnerID, file.FolderID, file.Name, file.ObjectName, file.ContentType, file.SizeBytes,
	).Scan(&file.ID, &file.CreatedAt)
	if err != nil {
		err = mapError("InsertFile", err)
		if isNotFound(err) {
			return fmt.Errorf("InsertFile: folder: %w", repository.ErrInvalidInput)
		}
		return err
	}
	return nil
}

func (r *FileRepository) DeleteFile(ctx context.Context, ownerID, fileID string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM files WHERE id = $1 AND owner_id = $2`,
		fileID, ownerID,
	)
	if err != nil {
		return mapError("DeleteFile", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("DeleteFile: %w", repository.ErrNotFound)
	}
	return nil
}

func scanFiles(op string, rows rowScanner) ([]*repository.File, error) {
	files := []*repository.File{}
	for rows.Next() {
		f := &repository.File{}
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.FolderID, &f.Name, &f.ObjectName,
			&f.ContentType, &f.SizeBytes, &f.CreatedAt); err != nil {
			return nil, mapError(op+": scan", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op+": rows", err)
	}
	return files, nil
}

var _ repository.FileRepository = (*FileRepository)(nil)
