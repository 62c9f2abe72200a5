// Package drive implements the file-storage app: the folder forest, folder
// management and the files kept in object storage.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jts-services/portal/internal/cache"
	"github.com/jts-services/portal/internal/foldertree"
	"github.com/jts-services/portal/internal/repository"
	"github.com/jts-services/portal/internal/storage"
	"github.com/rs/zerolog"
)

const (
	maxNameLength = 255

	// DefaultURLTTL is how long signed download URLs stay valid.
	DefaultURLTTL = 15 * time.Minute
)

// Service coordinates folder rows, file rows and stored objects for one owner
// at a time. Every method takes the owner id explicitly.
type Service struct {
	folders repository.FolderRepository
	files   repository.FileRepository
	store   storage.ObjectStore
	trees   cache.TreeCache
	urlTTL  time.Duration
	log     zerolog.Logger
}

// NewService wires a Service. A nil trees falls back to no caching.
func NewService(folders repository.FolderRepository, files repository.FileRepository, store storage.ObjectStore, trees cache.TreeCache, log zerolog.Logger) *Service {
	if trees == nil {
		trees = cache.Noop{}
	}
	return &Service{
		folders: folders,
		files:   files,
		store:   store,
		trees:   trees,
		urlTTL:  DefaultURLTTL,
		log:     log,
	}
}

// SetURLTTL overrides DefaultURLTTL.
func (s *Service) SetURLTTL(ttl time.Duration) {
	if ttl > 0 {
		s.urlTTL = ttl
	}
}

// Tree returns the owner's folder forest. The forest is rebuilt from the
// current folder list on every call unless an identical list was built
// recently.
func (s *Service) Tree(ctx context.Context, ownerID string) ([]*foldertree.Node, error) {
	records, err := s.folders.ListFolders(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("Tree: %w", err)
	}

	fp := cache.Fingerprint(records)
	if roots, err := s.trees.Get(ctx, ownerID, fp); err == nil {
		return roots, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		s.log.Warn().Err(err).Str("owner_id", ownerID).Msg("Tree cache read failed")
	}

	roots := foldertree.Build(records)
	if err := s.trees.Set(ctx, ownerID, fp, roots); err != nil {
		s.log.Warn().Err(err).Str("owner_id", ownerID).Msg("Tree cache write failed")
	}
	return roots, nil
}

// CreateFolder adds a folder under parentID, or at the top level when nil.
func (s *Service) CreateFolder(ctx context.Context, ownerID, name string, parentID *string) (*repository.Folder, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	folder := &repository.Folder{OwnerID: ownerID, Name: name, ParentID: emptyToNil(parentID)}
	if err := s.folders.CreateFolder(ctx, folder); err != nil {
		return nil, fmt.Errorf("CreateFolder: %w", err)
	}

	s.log.Info().Str("owner_id", ownerID).Str("folder_id", folder.ID).Msg("Folder created")
	return folder, nil
}

// RenameFolder changes a folder's name.
func (s *Service) RenameFolder(ctx context.Context, ownerID, folderID, name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	if err := s.folders.RenameFolder(ctx, ownerID, folderID, name); err != nil {
		return fmt.Errorf("RenameFolder: %w", err)
	}
	return nil
}

// MoveFolder re-parents a folder. Moving a folder into itself or below one of
// its own descendants is rejected so the stored list stays acyclic.
func (s *Service) MoveFolder(ctx context.Context, ownerID, folderID string, parentID *string) error {
	parentID = emptyToNil(parentID)
	if parentID != nil {
		if *parentID == folderID {
			return fmt.Errorf("MoveFolder: folder cannot contain itself: %w", repository.ErrInvalidInput)
		}
		records, err := s.folders.ListFolders(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("MoveFolder: %w", err)
		}
		for _, id := range foldertree.Descendants(records, folderID) {
			if id == *parentID {
				return fmt.Errorf("MoveFolder: target is inside the folder: %w", repository.ErrInvalidInput)
			}
		}
	}

	if err := s.folders.MoveFolder(ctx, ownerID, folderID, parentID); err != nil {
		return fmt.Errorf("MoveFolder: %w", err)
	}
	return nil
}

// DeleteFolder removes a folder, its subfolders and every file stored under
// them. Objects are removed before rows, so a failure leaves rows that can be
// deleted again. It returns the number of files removed.
func (s *Service) DeleteFolder(ctx context.Context, ownerID, folderID string) (int, error) {
	if _, err := s.folders.GetFolder(ctx, ownerID, folderID); err != nil {
		return 0, fmt.Errorf("DeleteFolder: %w", err)
	}
	records, err := s.folders.ListFolders(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("DeleteFolder: %w", err)
	}

	ids := append([]string{folderID}, foldertree.Descendants(records, folderID)...)
	files, err := s.files.ListFilesUnderFolders(ctx, ownerID, ids)
	if err != nil {
		return 0, fmt.Errorf("DeleteFolder: %w", err)
	}

	for _, f := range files {
		if err := s.store.Delete(ctx, f.ObjectName); err != nil {
			return 0, fmt.Errorf("DeleteFolder: delete object %s: %w", f.ObjectName, err)
		}
	}
	if err := s.folders.DeleteFolder(ctx, ownerID, folderID); err != nil {
		return 0, fmt.Errorf("DeleteFolder: %w", err)
	}
	s.sweepFolders(ctx, ownerID, ids)

	s.log.Info().
		Str("owner_id", ownerID).
		Str("folder_id", folderID).
		Int("subfolders", len(ids)-1).
		Int("files", len(files)).
		Msg("Folder deleted")
	return len(files), nil
}

// sweepFolders removes objects left under deleted folders' prefixes with no
// file row, such as uploads whose row was never written. Failures are only
// logged since the folders themselves are already gone.
func (s *Service) sweepFolders(ctx context.Context, ownerID string, folderIDs []string) {
	for _, id := range folderIDs {
		prefix := storage.FolderPrefix(ownerID, id)
		names, err := s.store.List(ctx, prefix)
		if err != nil {
			s.log.Warn().Err(err).Str("prefix", prefix).Msg("Failed to list objects for sweep")
			continue
		}
		for _, name := range names {
			if err := s.store.Delete(ctx, name); err != nil {
				s.log.Warn().Err(err).Str("object", name).Msg("Failed to sweep orphaned object")
				continue
			}
			s.log.Info().Str("object", name).Msg("Swept orphaned object")
		}
	}
}

// Path returns the breadcrumb from the top-level folder down to folderID.
func (s *Service) Path(ctx context.Context, ownerID, folderID string) ([]foldertree.Record, error) {
	records, err := s.folders.ListFolders(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("Path: %w", err)
	}
	path := foldertree.Path(records, folderID)
	if path == nil {
		return nil, fmt.Errorf("Path: folder %s: %w", folderID, repository.ErrNotFound)
	}
	return path, nil
}

// ListFiles returns the files directly inside folderID (top level when nil).
func (s *Service) ListFiles(ctx context.Context, ownerID string, folderID *string) ([]*repository.File, error) {
	files, err := s.files.ListFiles(ctx, ownerID, emptyToNil(folderID))
	if err != nil {
		return nil, fmt.Errorf("ListFiles: %w", err)
	}
	return files, nil
}

// Upload stores r as a new file in folderID.
func (s *Service) Upload(ctx context.Context, ownerID string, folderID *string, filename, contentType string, r io.Reader) (*repository.File, error) {
	folderID = emptyToNil(folderID)
	if folderID != nil {
		if _, err := s.folders.GetFolder(ctx, ownerID, *folderID); err != nil {
			return nil, fmt.Errorf("Upload: %w", err)
		}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	name := storage.CleanFilename(filename)
	objectName := storage.ObjectName(ownerID, folderID, name)

	size, err := s.store.Upload(ctx, objectName, contentType, r)
	if err != nil {
		return nil, fmt.Errorf("Upload: %w", err)
	}

	file := &repository.File{
		OwnerID:     ownerID,
		FolderID:    folderID,
		Name:        name,
		ObjectName:  objectName,
		ContentType: contentType,
		SizeBytes:   size,
	}
	if err := s.files.InsertFile(ctx, file); err != nil {
		if derr := s.store.Delete(ctx, objectName); derr != nil {
			s.log.Error().Err(derr).Str("object", objectName).Msg("Failed to remove orphaned object")
		}
		return nil, fmt.Errorf("Upload: %w", err)
	}

	s.log.Info().
		Str("owner_id", ownerID).
		Str("file_id", file.ID).
		Int64("bytes", size).
		Msg("File uploaded")
	return file, nil
}

// DownloadURL returns a signed, time-limited URL for a file's bytes.
func (s *Service) DownloadURL(ctx context.Context, ownerID, fileID string) (string, time.Time, error) {
	file, err := s.ownedFile(ctx, ownerID, fileID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("DownloadURL: %w", err)
	}
	expires := time.Now().Add(s.urlTTL)
	url, err := s.store.SignedURL(ctx, file.ObjectName, s.urlTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("DownloadURL: %w", err)
	}
	return url, expires, nil
}

// Open returns the file row and a reader for its bytes. The caller closes it.
func (s *Service) Open(ctx context.Context, ownerID, fileID string) (*repository.File, io.ReadCloser, error) {
	file, err := s.ownedFile(ctx, ownerID, fileID)
	if err != nil {
		return nil, nil, fmt.Errorf("Open: %w", err)
	}
	rc, err := s.store.Download(ctx, file.ObjectName)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, nil, fmt.Errorf("Open: %w", repository.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("Open: %w", err)
	}
	return file, rc, nil
}

// DeleteFile removes a file's object and row.
func (s *Service) DeleteFile(ctx context.Context, ownerID, fileID string) error {
	file, err := s.ownedFile(ctx, ownerID, fileID)
	if err != nil {
		return fmt.Errorf("DeleteFile: %w", err)
	}
	if err := s.store.Delete(ctx, file.ObjectName); err != nil {
		return fmt.Errorf("DeleteFile: %w", err)
	}
	if err := s.files.DeleteFile(ctx, ownerID, fileID); err != nil {
		return fmt.Errorf("DeleteFile: %w", err)
	}
	return nil
}

func (s *Service) ownedFile(ctx context.Context, ownerID, fileID string) (*repository.File, error) {
	file, err := s.files.GetFile(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	if !storage.OwnsObject(ownerID, file.ObjectName) {
		s.log.Error().Str("owner_id", ownerID).Str("file_id", fileID).Msg("File row points outside owner prefix")
		return nil, repository.ErrForbidden
	}
	return file, nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("folder name is required: %w", repository.ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > maxNameLength || strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("invalid folder name %q: %w", name, repository.ErrInvalidInput)
	}
	return name, nil
}

func emptyToNil(id *string) *string {
	if id == nil || strings.TrimSpace(*id) == "" {
		return nil
	}
	return id
}
