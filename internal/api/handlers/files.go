package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/jts-services/portal/internal/api/middleware"
	"github.com/rs/zerolog"
)

// DefaultMaxUploadBytes caps multipart uploads.
const DefaultMaxUploadBytes = 100 << 20

// FilesHandler handles file endpoints.
type FilesHandler struct {
	drive    DriveService
	maxBytes int64
	log      zerolog.Logger
}

func NewFilesHandler(drive DriveService, maxBytes int64, log zerolog.Logger) *FilesHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &FilesHandler{drive: drive, maxBytes: maxBytes, log: log}
}

// List handles GET /api/files?folder_id=
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	files, err := h.drive.ListFiles(r.Context(), owner, optionalID(r.URL.Query().Get("folder_id")))
	if err != nil {
		writeServiceError(w, r, err, "Folder", "Failed to list files")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"files": files,
		"count": len(files),
	})
}

// Upload handles POST /api/files as multipart/form-data with a "file" part
// and an optional "folder_id" field.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	reader, err := r.MultipartReader()
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Expected multipart/form-data")
		return
	}

	// Fields before the file part are honoured; the file is streamed straight
	// to storage without buffering.
	var folderID *string
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			middleware.WriteError(w, http.StatusBadRequest, "file is required")
			return
		}
		if err != nil {
			h.writeReadError(w, err)
			return
		}

		switch part.FormName() {
		case "folder_id":
			raw, err := io.ReadAll(io.LimitReader(part, 128))
			if err != nil {
				h.writeReadError(w, err)
				return
			}
			folderID = optionalID(string(raw))
		case "file":
			contentType := part.Header.Get("Content-Type")
			if mt, _, err := mime.ParseMediaType(contentType); err == nil {
				contentType = mt
			}

			file, err := h.drive.Upload(r.Context(), owner, folderID, part.FileName(), contentType, part)
			if err != nil {
				var maxErr *http.MaxBytesError
				if errors.As(err, &maxErr) {
					h.writeReadError(w, maxErr)
					return
				}
				writeServiceError(w, r, err, "Folder", "Failed to upload file")
				return
			}
			middleware.WriteJSON(w, http.StatusCreated, file)
			return
		}
	}
}

func (h *FilesHandler) writeReadError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File exceeds "+strconv.FormatInt(h.maxBytes>>20, 10)+" MB")
		return
	}
	middleware.WriteError(w, http.StatusBadRequest, "Malformed upload")
}

// URL handles GET /api/files/{id}/url
func (h *FilesHandler) URL(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	url, expires, err := h.drive.DownloadURL(r.Context(), owner, urlParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "File", "Failed to create download URL")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"url":        url,
		"expires_at": expires,
	})
}

// Content handles GET /api/files/{id}/content by streaming the bytes through
// the API. Used when storage cannot sign URLs, e.g. in local development.
func (h *FilesHandler) Content(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	file, rc, err := h.drive.Open(r.Context(), owner, urlParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "File", "Failed to read file")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
	if file.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(file.SizeBytes, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Warn().Err(err).Str("file_id", file.ID).Msg("File stream interrupted")
	}
}

// Delete handles DELETE /api/files/{id}
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	if err := h.drive.DeleteFile(r.Context(), owner, urlParam(r, "id")); err != nil {
		writeServiceError(w, r, err, "File", "Failed to delete file")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
