package drive

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jts-services/portal/internal/cache"
	"github.com/jts-services/portal/internal/foldertree"
	"github.com/jts-services/portal/internal/repository"
)

type fakeFolders struct {
	mu      sync.Mutex
	seq     int
	folders []*repository.Folder
	listErr error
	lists   int
}

func (f *fakeFolders) ListFolders(_ context.Context, ownerID string) ([]foldertree.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	records := []foldertree.Record{}
	for _, fo := range f.folders {
		if fo.OwnerID == ownerID {
			records = append(records, fo.Record())
		}
	}
	return records, nil
}

func (f *fakeFolders) find(ownerID, id string) *repository.Folder {
	for _, fo := range f.folders {
		if fo.ID == id && fo.OwnerID == ownerID {
			return fo
		}
	}
	return nil
}

func (f *fakeFolders) GetFolder(_ context.Context, ownerID, id string) (*repository.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fo := f.find(ownerID, id); fo != nil {
		cp := *fo
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeFolders) CreateFolder(_ context.Context, folder *repository.Folder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if folder.ParentID != nil && f.find(folder.OwnerID, *folder.ParentID) == nil {
		return repository.ErrInvalidInput
	}
	f.seq++
	folder.ID = fmt.Sprintf("f%d", f.seq)
	cp := *folder
	f.folders = append(f.folders, &cp)
	return nil
}

func (f *fakeFolders) RenameFolder(_ context.Context, ownerID, id, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fo := f.find(ownerID, id)
	if fo == nil {
		return repository.ErrNotFound
	}
	fo.Name = name
	return nil
}

func (f *fakeFolders) MoveFolder(_ context.Context, ownerID, id string, parentID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fo := f.find(ownerID, id)
	if fo == nil {
		return repository.ErrNotFound
	}
	fo.ParentID = parentID
	return nil
}

func (f *fakeFolders) DeleteFolder(_ context.Context, ownerID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.find(ownerID, id) == nil {
		return repository.ErrNotFound
	}
	// cascade like the foreign key does
	doomed := map[string]bool{id: true}
	for changed := true; changed; {
		changed = false
		for _, fo := range f.folders {
			if fo.ParentID != nil && doomed[*fo.ParentID] && !doomed[fo.ID] {
				doomed[fo.ID] = true
				changed = true
			}
		}
	}
	kept := f.folders[:0]
	for _, fo := range f.folders {
		if !doomed[fo.ID] {
			kept = append(kept, fo)
		}
	}
	f.folders = kept
	return nil
}

type fakeFiles struct {
	mu        sync.Mutex
	seq       int
	files     []*repository.File
	insertErr error
}

func (f *fakeFiles) ListFiles(_ context.Context, ownerID string, folderID *string) ([]*repository.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*repository.File{}
	for _, fi := range f.files {
		if fi.OwnerID != ownerID {
			continue
		}
		if (folderID == nil && fi.FolderID == nil) || (folderID != nil && fi.FolderID != nil && *fi.FolderID == *folderID) {
			out = append(out, fi)
		}
	}
	return out, nil
}

func (f *fakeFiles) ListFilesUnderFolders(_ context.Context, ownerID string, folderIDs []string) ([]*repository.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in := map[string]bool{}
	for _, id := range folderIDs {
		in[id] = true
	}
	out := []*repository.File{}
	for _, fi := range f.files {
		if fi.OwnerID == ownerID && fi.FolderID != nil && in[*fi.FolderID] {
			out = append(out, fi)
		}
	}
	return out, nil
}

func (f *fakeFiles) GetFile(_ context.Context, ownerID, id string) (*repository.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fi := range f.files {
		if fi.ID == id && fi.OwnerID == ownerID {
			cp := *fi
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeFiles) InsertFile(_ context.Context, file *repository.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.seq++
	file.ID = fmt.Sprintf("file%d", f.seq)
	cp := *file
	f.files = append(f.files, &cp)
	return nil
}

func (f *fakeFiles) DeleteFile(_ context.Context, ownerID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, fi := range f.files {
		if fi.ID == id && fi.OwnerID == ownerID {
			f.files = append(f.files[:i], f.files[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

type countingCache struct {
	entries map[string][]*foldertree.Node
	hits    int
	sets    int
	failGet bool
}

func newCountingCache() *countingCache {
	return &countingCache{entries: map[string][]*foldertree.Node{}}
}

func (c *countingCache) Get(_ context.Context, ownerID string, fp uint64) ([]*foldertree.Node, error) {
	if c.failGet {
		return nil, errors.New("redis down")
	}
	roots, ok := c.entries[fmt.Sprintf("%s:%d", ownerID, fp)]
	if !ok {
		return nil, cache.ErrMiss
	}
	c.hits++
	return roots, nil
}

func (c *countingCache) Set(_ context.Context, ownerID string, fp uint64, roots []*foldertree.Node) error {
	c.sets++
	c.entries[fmt.Sprintf("%s:%d", ownerID, fp)] = roots
	return nil
}
