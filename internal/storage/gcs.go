package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore is the ObjectStore backed by a Google Cloud Storage bucket.
type GCSStore struct {
	client *gcs.Client
	bucket string

	// openWriter is swapped in tests; nil uses the bucket's object writer.
	openWriter func(ctx context.Context, objectName, contentType string) io.WriteCloser
}

// NewGCSStore creates a client for bucket. credentialsFile is optional; when
// empty, Application Default Credentials are used.
func NewGCSStore(ctx context.Context, bucket, credentialsFile string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("NewGCSStore: bucket is required")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStore: create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Upload streams r into objectName. If r fails part way the write is aborted
// by cancelling its context, so no truncated object is committed.
func (s *GCSStore) Upload(ctx context.Context, objectName, contentType string, r io.Reader) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.writer(ctx, objectName, contentType)

	written, err := io.Copy(w, r)
	if err != nil {
		cancel()
		_ = w.Close()
		return 0, fmt.Errorf("Upload: copy to writer: %w", err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("Upload: finalize: %w", err)
	}
	return written, nil
}

func (s *GCSStore) writer(ctx context.Context, objectName, contentType string) io.WriteCloser {
	if s.openWriter != nil {
		return s.openWriter(ctx, objectName, contentType)
	}
	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (s *GCSStore) Download(ctx context.Context, objectName string) (io.ReadCloser, error) {
	rc, err := s.client.Bucket(s.bucket).Object(objectName).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("Download %s: %w", objectName, ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Download %s: %w", objectName, err)
	}
	return rc, nil
}

func (s *GCSStore) Delete(ctx context.Context, objectName string) error {
	err := s.client.Bucket(s.bucket).Object(objectName).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("Delete %s: %w", objectName, err)
	}
	return nil
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("List %s: %w", prefix, err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

func (s *GCSStore) SignedURL(ctx context.Context, objectName string, ttl time.Duration) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(objectName, &gcs.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
		Scheme:  gcs.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("SignedURL %s: %w", objectName, err)
	}
	return url, nil
}

var _ ObjectStore = (*GCSStore)(nil)
