package drive

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jts-services/portal/internal/foldertree"
	"github.com/jts-services/portal/internal/repository"
	"github.com/jts-services/portal/internal/storage"
	"github.com/rs/zerolog"
)

const owner = "owner-1"

type fixture struct {
	folders *fakeFolders
	files   *fakeFiles
	store   *storage.MemoryStore
	cache   *countingCache
	svc     *Service
}

func newFixture() *fixture {
	f := &fixture{
		folders: &fakeFolders{},
		files:   &fakeFiles{},
		store:   storage.NewMemoryStore(),
		cache:   newCountingCache(),
	}
	f.svc = NewService(f.folders, f.files, f.store, f.cache, zerolog.Nop())
	return f
}

func (f *fixture) mkdir(t *testing.T, name string, parent *string) string {
	t.Helper()
	folder, err := f.svc.CreateFolder(context.Background(), owner, name, parent)
	if err != nil {
		t.Fatalf("CreateFolder(%s) error = %v", name, err)
	}
	return folder.ID
}

func TestTree(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	roots, err := f.svc.Tree(ctx, owner)
	if err != nil {
		t.Fatalf("Tree() error = %v", err)
	}
	if roots == nil || len(roots) != 0 {
		t.Fatalf("empty owner tree = %#v, want empty slice", roots)
	}

	root := f.mkdir(t, "Root", nil)
	docs := f.mkdir(t, "Docs", &root)
	f.mkdir(t, "Invoices", &docs)

	roots, err = f.svc.Tree(ctx, owner)
	if err != nil {
		t.Fatalf("Tree() error = %v", err)
	}
	if len(roots) != 1 || foldertree.Count(roots) != 3 {
		t.Fatalf("Tree() = %d roots / %d nodes, want 1/3", len(roots), foldertree.Count(roots))
	}

	if _, err := f.svc.Tree(ctx, owner); err != nil {
		t.Fatal(err)
	}
	if f.cache.hits != 1 {
		t.Errorf("cache hits = %d, want 1 for an unchanged list", f.cache.hits)
	}

	if err := f.svc.RenameFolder(ctx, owner, docs, "Documents"); err != nil {
		t.Fatal(err)
	}
	roots, _ = f.svc.Tree(ctx, owner)
	if f.cache.hits != 1 {
		t.Error("renamed list must not be served from cache")
	}
	if roots[0].Children[0].Name != "Documents" {
		t.Errorf("child name = %s, want Documents", roots[0].Children[0].Name)
	}
}

func TestTree_CacheFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.cache.failGet = true
	f.mkdir(t, "Root", nil)

	roots, err := f.svc.Tree(context.Background(), owner)
	if err != nil {
		t.Fatalf("Tree() error = %v", err)
	}
	if len(roots) != 1 {
		t.Errorf("len(roots) = %d, want 1", len(roots))
	}
}

func TestTree_ListError(t *testing.T) {
	f := newFixture()
	f.folders.listErr = errors.New("connection refused")

	if _, err := f.svc.Tree(context.Background(), owner); err == nil {
		t.Fatal("Tree() expected error")
	}
}

func TestCreateFolder_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	missing := "nope"

	tests := []struct {
		name   string
		folder string
		parent *string
	}{
		{"blank", "   ", nil},
		{"slash", "a/b", nil},
		{"too long", strings.Repeat("x", 256), nil},
		{"unknown parent", "Docs", &missing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateFolder(ctx, owner, tt.folder, tt.parent)
			if !errors.Is(err, repository.ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}

	folder, err := f.svc.CreateFolder(ctx, owner, "  Trimmed  ", nil)
	if err != nil {
		t.Fatal(err)
	}
	if folder.Name != "Trimmed" {
		t.Errorf("Name = %q, want Trimmed", folder.Name)
	}
}

func TestMoveFolder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	root := f.mkdir(t, "Root", nil)
	docs := f.mkdir(t, "Docs", &root)
	inv := f.mkdir(t, "Invoices", &docs)
	other := f.mkdir(t, "Other", nil)

	for name, target := range map[string]string{"self": root, "child": docs, "grandchild": inv} {
		t.Run(name, func(t *testing.T) {
			if err := f.svc.MoveFolder(ctx, owner, root, &target); !errors.Is(err, repository.ErrInvalidInput) {
				t.Errorf("MoveFolder(root -> %s) error = %v, want ErrInvalidInput", name, err)
			}
		})
	}

	if err := f.svc.MoveFolder(ctx, owner, docs, &other); err != nil {
		t.Fatalf("MoveFolder(docs -> other) error = %v", err)
	}
	path, err := f.svc.Path(ctx, owner, inv)
	if err != nil {
		t.Fatal(err)
	}
	if len(path) != 3 || path[0].ID != other {
		t.Errorf("path after move = %+v, want Other/Docs/Invoices", path)
	}

	empty := ""
	if err := f.svc.MoveFolder(ctx, owner, docs, &empty); err != nil {
		t.Fatalf("MoveFolder(docs -> top) error = %v", err)
	}
	roots, _ := f.svc.Tree(ctx, owner)
	if len(roots) != 3 {
		t.Errorf("len(roots) = %d, want 3 after moving docs to top level", len(roots))
	}
}

func TestPath_NotFound(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Path(context.Background(), owner, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Path() error = %v, want ErrNotFound", err)
	}
}

func TestUploadAndDownload(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	docs := f.mkdir(t, "Docs", nil)

	file, err := f.svc.Upload(ctx, owner, &docs, "../../etc/report.pdf", "", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if file.Name != "report.pdf" || file.SizeBytes != 8 || file.ContentType != "application/octet-stream" {
		t.Errorf("file = %+v", file)
	}
	if !strings.HasPrefix(file.ObjectName, storage.FolderPrefix(owner, docs)) {
		t.Errorf("ObjectName = %s, want under %s", file.ObjectName, storage.FolderPrefix(owner, docs))
	}

	listed, _ := f.svc.ListFiles(ctx, owner, &docs)
	if len(listed) != 1 {
		t.Fatalf("ListFiles() = %d files, want 1", len(listed))
	}

	_, rc, err := f.svc.Open(ctx, owner, file.ID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "%PDF-1.4" {
		t.Errorf("body = %q", body)
	}

	url, _, err := f.svc.DownloadURL(ctx, owner, file.ID)
	if err != nil || url == "" {
		t.Errorf("DownloadURL() = %q, %v", url, err)
	}

	if _, _, err := f.svc.DownloadURL(ctx, "someone-else", file.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("DownloadURL() for another owner error = %v, want ErrNotFound", err)
	}
}

func TestDownloadURL_UsesConfiguredTTL(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	file, err := f.svc.Upload(ctx, owner, nil, "a.txt", "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}

	f.svc.SetURLTTL(2 * time.Minute)
	_, expires, err := f.svc.DownloadURL(ctx, owner, file.ID)
	if err != nil {
		t.Fatalf("DownloadURL() error = %v", err)
	}
	if left := time.Until(expires); left > 2*time.Minute || left < time.Minute {
		t.Errorf("expires in %v, want about 2m", left)
	}

	f.svc.SetURLTTL(0)
	_, expires, _ = f.svc.DownloadURL(ctx, owner, file.ID)
	if left := time.Until(expires); left < time.Minute || left > 2*time.Minute {
		t.Errorf("zero TTL should keep 2m, expires in %v", left)
	}
}

func TestUpload_UnknownFolder(t *testing.T) {
	f := newFixture()
	missing := "nope"
	_, err := f.svc.Upload(context.Background(), owner, &missing, "a.txt", "text/plain", strings.NewReader("x"))
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Upload() error = %v, want ErrNotFound", err)
	}
}

func TestUpload_InsertFailureRemovesObject(t *testing.T) {
	f := newFixture()
	f.files.insertErr = repository.ErrConflict

	_, err := f.svc.Upload(context.Background(), owner, nil, "a.txt", "text/plain", strings.NewReader("x"))
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("Upload() error = %v, want ErrConflict", err)
	}
	names, _ := f.store.List(context.Background(), owner+"/")
	if len(names) != 0 {
		t.Errorf("objects left behind: %v", names)
	}
}

func TestOwnedFile_RejectsForeignObject(t *testing.T) {
	f := newFixture()
	f.files.files = append(f.files.files, &repository.File{ID: "x", OwnerID: owner, ObjectName: "intruder/root/a.txt"})

	if _, _, err := f.svc.DownloadURL(context.Background(), owner, "x"); !errors.Is(err, repository.ErrForbidden) {
		t.Errorf("DownloadURL() error = %v, want ErrForbidden", err)
	}
}

func TestDeleteFolder_RemovesSubtreeObjects(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	root := f.mkdir(t, "Root", nil)
	docs := f.mkdir(t, "Docs", &root)
	keep := f.mkdir(t, "Keep", nil)

	for _, folder := range []string{root, docs, docs, keep} {
		id := folder
		if _, err := f.svc.Upload(ctx, owner, &id, "a.txt", "text/plain", strings.NewReader("x")); err != nil {
			t.Fatal(err)
		}
	}

	n, err := f.svc.DeleteFolder(ctx, owner, root)
	if err != nil {
		t.Fatalf("DeleteFolder() error = %v", err)
	}
	if n != 3 {
		t.Errorf("files removed = %d, want 3", n)
	}

	names, _ := f.store.List(ctx, owner+"/")
	if len(names) != 1 || !strings.HasPrefix(names[0], storage.FolderPrefix(owner, keep)) {
		t.Errorf("remaining objects = %v, want only Keep's file", names)
	}
	roots, _ := f.svc.Tree(ctx, owner)
	if len(roots) != 1 || roots[0].ID != keep {
		t.Errorf("remaining roots = %+v, want [Keep]", roots)
	}

	if _, err := f.svc.DeleteFolder(ctx, owner, root); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("second DeleteFolder() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteFolder_SweepsOrphanedObjects(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	root := f.mkdir(t, "Root", nil)
	docs := f.mkdir(t, "Docs", &root)

	// An object with no file row, as left by an upload whose insert never ran.
	orphan := storage.FolderPrefix(owner, docs) + "stray-a.txt"
	if _, err := f.store.Upload(ctx, orphan, "text/plain", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	other := storage.FolderPrefix(owner, "elsewhere") + "b.txt"
	if _, err := f.store.Upload(ctx, other, "text/plain", strings.NewReader("y")); err != nil {
		t.Fatal(err)
	}

	n, err := f.svc.DeleteFolder(ctx, owner, root)
	if err != nil {
		t.Fatalf("DeleteFolder() error = %v", err)
	}
	if n != 0 {
		t.Errorf("files removed = %d, want 0", n)
	}

	names, _ := f.store.List(ctx, owner+"/")
	if len(names) != 1 || names[0] != other {
		t.Errorf("remaining objects = %v, want [%s]", names, other)
	}
}

func TestDeleteFile(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	file, err := f.svc.Upload(ctx, owner, nil, "a.txt", "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.DeleteFile(ctx, owner, file.ID); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	if _, err := f.store.Download(ctx, file.ObjectName); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Errorf("object still present: %v", err)
	}
	if err := f.svc.DeleteFile(ctx, owner, file.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("second DeleteFile() error = %v, want ErrNotFound", err)
	}
}
