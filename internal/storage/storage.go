// Package storage keeps file bytes in a bucket and hands out object names
// and signed URLs for them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned when the requested object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the subset of object storage the portal needs.
type ObjectStore interface {
	// Upload streams r into objectName and returns the number of bytes written.
	Upload(ctx context.Context, objectName, contentType string, r io.Reader) (int64, error)

	// Download returns a reader for objectName. The caller closes it.
	Download(ctx context.Context, objectName string) (io.ReadCloser, error)

	// Delete removes objectName. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectName string) error

	// List returns the names of all objects under prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// SignedURL returns a time-limited GET URL for objectName.
	SignedURL(ctx context.Context, objectName string, ttl time.Duration) (string, error)
}

// rootSegment stands in for the folder id of top-level files.
const rootSegment = "root"

// ObjectName builds "<owner>/<folder|root>/<uuid>-<name>" so objects are
// grouped per tenant and folder and never collide.
func ObjectName(ownerID string, folderID *string, filename string) string {
	folder := rootSegment
	if folderID != nil && *folderID != "" {
		folder = *folderID
	}
	return fmt.Sprintf("%s/%s/%s-%s", ownerID, folder, uuid.NewString(), CleanFilename(filename))
}

// FolderPrefix is the object prefix under which a folder's files live.
func FolderPrefix(ownerID, folderID string) string {
	return ownerID + "/" + folderID + "/"
}

// CleanFilename strips directories and query strings from a client-supplied
// name. An empty result becomes "file".
func CleanFilename(name string) string {
	if idx := strings.Index(name, "?"); idx >= 0 {
		name = name[:idx]
	}
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

// OwnsObject reports whether objectName lives under ownerID's prefix.
func OwnsObject(ownerID, objectName string) bool {
	return ownerID != "" && strings.HasPrefix(objectName, ownerID+"/")
}
