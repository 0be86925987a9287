package api

import (
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/content-graph/pkg/contentgraph"
)

// maxImageSize bounds multipart image uploads
const maxImageSize = 32 << 20

// UploadImage stores a multipart "file" and creates an unattached image
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize)
	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		badRequest(w, r, "invalid multipart form: "+err.Error())
		return
	}

	var creatorID uuid.UUID
	if raw := r.FormValue("creator_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(w, r, "invalid creator_id")
			return
		}
		creatorID = id
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, r, "file is required")
		return
	}
	defer file.Close()

	img, err := h.service.UploadImage(r.Context(), contentgraph.UploadImageRequest{
		CreatorID: creatorID,
		FileName:  header.Filename,
		MimeType:  header.Header.Get("Content-Type"),
		Reader:    file,
	})
	if err != nil {
		writeError(w, r, h.logger, "Failed to upload image", err)
		return
	}

	h.logger.InfoContext(r.Context(), "Image uploaded", "image_id", img.ID, "file", img.File.Name)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, img)
}

// GetImage retrieves an image by ID
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	img, err := h.service.GetImage(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to get image", err)
		return
	}
	render.JSON(w, r, img)
}

// RemoveImage deletes an image, its blob and its block in the owning content
func (h *Handler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	img, err := h.service.RemoveImage(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to remove image", err)
		return
	}
	h.logger.InfoContext(r.Context(), "Image removed", "image_id", id)
	render.JSON(w, r, img)
}

// DownloadImage streams the image blob
func (h *Handler) DownloadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	img, rc, err := h.service.DownloadImage(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to download image", err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(img.File.Name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "Image download interrupted", "image_id", id, "error", err)
	}
}
