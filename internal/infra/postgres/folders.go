package postgres

import (
	"context"
	"fmt"

	"github.com/jts-services/portal/internal/foldertree"
	"github.com/jts-services/portal/internal/repository"
)

// FolderRepository is the Postgres implementation of repository.FolderRepository.
type FolderRepository struct {
	db *DB
}

func NewFolderRepository(db *DB) *FolderRepository {
	return &FolderRepository{db: db}
}

func (r *FolderRepository) ListFolders(ctx context.Context, ownerID string) ([]foldertree.Record, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id::text, name, parent_id::text
		 FROM folders WHERE owner_id = $1
		 ORDER BY created_at, id`,
		ownerID,
	)
	if err != nil {
		return nil, mapError("ListFolders", err)
	}
	defer rows.Close()

	records := []foldertree.Record{}
	for rows.Next() {
		var rec foldertree.Record
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.ParentID); err != nil {
			return nil, mapError("ListFolders: scan", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("ListFolders: rows", err)
	}
	return records, nil
}

func (r *FolderRepository) GetFolder(ctx context.Context, ownerID, folderID string) (*repository.Folder, error) {
	f := &repository.Folder{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id::text, owner_id, name, parent_id::text, created_at
		 FROM folders WHERE id = $1 AND owner_id = $2`,
		folderID, ownerID,
	).Scan(&f.ID, &f.OwnerID, &f.Name, &f.ParentID, &f.CreatedAt)
	if err != nil {
		return nil, mapError("GetFolder", err)
	}
	return f, nil
}

// CreateFolder only links to a parent owned by the same owner; anything else
// is reported as ErrInvalidInput.
func (r *FolderRepository) CreateFolder(ctx context.Context, folder *repository.Folder) error {
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO folders (owner_id, name, parent_id)
		 SELECT $1, $2, $3::uuid
		 WHERE $3::uuid IS NULL
		    OR EXISTS (SELECT 1 FROM folders WHERE id = $3::uuid AND owner_id = $1)
		 RETURNING id::text, created_at`,
		folder.OwnerID, folder.Name, folder.ParentID,
	).Scan(&folder.ID, &folder.CreatedAt)
	if err != nil {
		err = mapError("CreateFolder", err)
		if isNotFound(err) {
			return fmt.Errorf("CreateFolder: parent folder: %w", repository.ErrInvalidInput)
		}
		return err
	}
	return nil
}

func (r *FolderRepository) RenameFolder(ctx context.Context, ownerID, folderID, name string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE folders SET name = $1 WHERE id = $2 AND owner_id = $3`,
		name, folderID, ownerID,
	)
	if err != nil {
		return mapError("RenameFolder", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("RenameFolder: %w", repository.ErrNotFound)
	}
	return nil
}

// MoveFolder refuses a parent that is the folder itself, one of its
// descendants, or a folder of another owner.
func (r *FolderRepository) MoveFolder(ctx context.Context, ownerID, folderID string, parentID *string) error {
	if _, err := r.GetFolder(ctx, ownerID, folderID); err != nil {
		return err
	}

	tag, err := r.db.Pool.Exec(ctx,
		`WITH RECURSIVE subtree AS (
		     SELECT id FROM folders WHERE id = $2::uuid AND owner_id = $1
		     UNION
		     SELECT f.id FROM folders f JOIN subtree s ON f.parent_id = s.id
		 )
		 UPDATE folders SET parent_id = $3::uuid
		 WHERE id = $2::uuid AND owner_id = $1
		   AND ($3::uuid IS NULL OR (
		       EXISTS (SELECT 1 FROM folders WHERE id = $3::uuid AND owner_id = $1)
		       AND $3::uuid NOT IN (SELECT id FROM subtree)))`,
		ownerID, folderID, parentID,
	)
	if err != nil {
		return mapError("MoveFolder", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("MoveFolder: target parent: %w", repository.ErrInvalidInput)
	}
	return nil
}

// DeleteFolder relies on ON DELETE CASCADE for sub-folders and file rows.
func (r *FolderRepository) DeleteFolder(ctx context.Context, ownerID, folderID string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM folders WHERE id = $1 AND owner_id = $2`,
		folderID, ownerID,
	)
	if err != nil {
		return mapError("DeleteFolder", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("DeleteFolder: %w", repository.ErrNotFound)
	}
	return nil
}

var _ repository.FolderRepository = (*FolderRepository)(nil)
