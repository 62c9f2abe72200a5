// Package handlers implements the portal's HTTP endpoints.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jts-services/portal/internal/api/middleware"
	"github.com/jts-services/portal/internal/auth"
	"github.com/jts-services/portal/internal/foldertree"
	"github.com/jts-services/portal/internal/ledger"
	"github.com/jts-services/portal/internal/logger"
	"github.com/jts-services/portal/internal/repository"
)

// DriveService is what the folder and file endpoints need from drive.Service.
type DriveService interface {
	Tree(ctx context.Context, ownerID string) ([]*foldertree.Node, error)
	CreateFolder(ctx context.Context, ownerID, name string, parentID *string) (*repository.Folder, error)
	RenameFolder(ctx context.Context, ownerID, folderID, name string) error
	MoveFolder(ctx context.Context, ownerID, folderID string, parentID *string) error
	DeleteFolder(ctx context.Context, ownerID, folderID string) (int, error)
	Path(ctx context.Context, ownerID, folderID string) ([]foldertree.Record, error)
	ListFiles(ctx context.Context, ownerID string, folderID *string) ([]*repository.File, error)
	Upload(ctx context.Context, ownerID string, folderID *string, filename, contentType string, r io.Reader) (*repository.File, error)
	DownloadURL(ctx context.Context, ownerID, fileID string) (string, time.Time, error)
	Open(ctx context.Context, ownerID, fileID string) (*repository.File, io.ReadCloser, error)
	DeleteFile(ctx context.Context, ownerID, fileID string) error
}

// LedgerService is what the customer endpoints need from ledger.Service.
type LedgerService interface {
	Live(ctx context.Context, ownerID, customerID string) (*ledger.LiveLedger, error)
	Statement(ctx context.Context, ownerID, customerID string, period ledger.Period) (*ledger.PrintableStatement, error)
}

// requireOwner returns the authenticated owner or writes a 401.
func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := auth.OwnerID(r.Context())
	if owner == "" {
		middleware.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return "", false
	}
	return owner, true
}

// writeServiceError maps repository sentinels to status codes. what names the
// resource in not-found messages.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, what, failMsg string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, repository.ErrForbidden):
		middleware.WriteError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, repository.ErrInvalidInput):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrConflict):
		middleware.WriteError(w, http.StatusConflict, what+" already exists")
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to write
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg(failMsg)
		middleware.WriteError(w, http.StatusInternalServerError, failMsg)
	}
}

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

func optionalID(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
