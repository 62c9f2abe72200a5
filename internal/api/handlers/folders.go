package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jts-services/portal/internal/api/middleware"
	"github.com/jts-services/portal/internal/foldertree"
	"github.com/rs/zerolog"
)

// FoldersHandler handles folder endpoints.
type FoldersHandler struct {
	drive DriveService
	log   zerolog.Logger
}

func NewFoldersHandler(drive DriveService, log zerolog.Logger) *FoldersHandler {
	return &FoldersHandler{drive: drive, log: log}
}

// Tree handles GET /api/folders/tree
func (h *FoldersHandler) Tree(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	roots, err := h.drive.Tree(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, err, "Folder", "Failed to load folders")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tree":  roots,
		"count": foldertree.Count(roots),
	})
}

// Create handles POST /api/folders
func (h *FoldersHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req struct {
		Name     string  `json:"name"`
		ParentID *string `json:"parent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	folder, err := h.drive.CreateFolder(r.Context(), owner, req.Name, req.ParentID)
	if err != nil {
		writeServiceError(w, r, err, "Folder", "Failed to create folder")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, folder)
}

// Update handles PATCH /api/folders/{id}. The body may carry a new name, a
// new parent_id (null for the top level), or both.
func (h *FoldersHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	folderID := urlParam(r, "id")

	var req map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rawName, hasName := req["name"]
	rawParent, hasParent := req["parent_id"]
	if !hasName && !hasParent {
		middleware.WriteError(w, http.StatusBadRequest, "name or parent_id is required")
		return
	}

	ctx := r.Context()
	if hasName {
		var name string
		if err := json.Unmarshal(rawName, &name); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "name must be a string")
			return
		}
		if err := h.drive.RenameFolder(ctx, owner, folderID, name); err != nil {
			writeServiceError(w, r, err, "Folder", "Failed to rename folder")
			return
		}
	}
	if hasParent {
		var parentID *string
		if err := json.Unmarshal(rawParent, &parentID); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "parent_id must be a string or null")
			return
		}
		if err := h.drive.MoveFolder(ctx, owner, folderID, parentID); err != nil {
			writeServiceError(w, r, err, "Folder", "Failed to move folder")
			return
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"id": folderID, "status": "updated"})
}

// Delete handles DELETE /api/folders/{id}
func (h *FoldersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	folderID := urlParam(r, "id")

	removed, err := h.drive.DeleteFolder(r.Context(), owner, folderID)
	if err != nil {
		writeServiceError(w, r, err, "Folder", "Failed to delete folder")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":            folderID,
		"files_removed": removed,
	})
}

// Path handles GET /api/folders/{id}/path
func (h *FoldersHandler) Path(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	path, err := h.drive.Path(r.Context(), owner, urlParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "Folder", "Failed to load folder path")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"path": path})
}
