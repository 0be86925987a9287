package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/content-graph/pkg/contentgraph"
)

// Handler serves the content graph over HTTP
type Handler struct {
	service contentgraph.Service
	logger  *slog.Logger
}

// NewHandler creates a new handler
func NewHandler(service contentgraph.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes returns the routes for contents, features and images
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/contents", func(r chi.Router) {
		r.Post("/", h.CreateContent)
		r.Get("/", h.ListContent)
		r.Get("/{id}", h.GetContent)
		r.Get("/{id}/details", h.LoadContent)
		r.Delete("/{id}", h.RemoveContent)
		r.Put("/{id}/features", h.ReconcileFeatures)
		r.Delete("/{id}/features/{featureID}", h.DetachFeature)
		r.Put("/{id}/blocks", h.ReconcileBlocks)
	})

	r.Route("/features", func(r chi.Router) {
		r.Post("/", h.CreateFeature)
		r.Get("/{id}", h.GetFeature)
		r.Delete("/{id}", h.RemoveFeature)
	})

	r.Route("/images", func(r chi.Router) {
		r.Post("/", h.UploadImage)
		r.Get("/{id}", h.GetImage)
		r.Get("/{id}/file", h.DownloadImage)
		r.Delete("/{id}", h.RemoveImage)
	})

	return r
}

// CreateContentRequest is the request body for creating a content
type CreateContentRequest struct {
	Type      string               `json:"type"`
	Title     string               `json:"title"`
	URL       string               `json:"url"`
	Markdown  string               `json:"markdown"`
	LayerID   uuid.UUID            `json:"layer_id"`
	CreatorID uuid.UUID            `json:"creator_id"`
	Tags      []string             `json:"tags"`
	Features  []uuid.UUID          `json:"features"`
	Blocks    []contentgraph.Block `json:"blocks"`
}

// ReconcileFeaturesRequest replaces the feature set of a content. A null
// features list leaves the set unchanged.
type ReconcileFeaturesRequest struct {
	Features []uuid.UUID `json:"features"`
}

// ReconcileBlocksRequest replaces the blocks of a content. A null blocks list
// leaves them unchanged.
type ReconcileBlocksRequest struct {
	Blocks []contentgraph.Block `json:"blocks"`
}

// CreateFeatureRequest is the request body for creating a feature
type CreateFeatureRequest struct {
	Title string `json:"title"`
}

// CreateContent creates a new content
func (h *Handler) CreateContent(w http.ResponseWriter, r *http.Request) {
	var req CreateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid request body: "+err.Error())
		return
	}

	content, err := h.service.CreateContent(r.Context(), contentgraph.CreateContentRequest{
		Type:      contentgraph.ContentType(req.Type),
		Title:     req.Title,
		URL:       req.URL,
		Markdown:  req.Markdown,
		LayerID:   req.LayerID,
		CreatorID: req.CreatorID,
		Tags:      req.Tags,
		Features:  req.Features,
		Blocks:    req.Blocks,
	})
	if err != nil {
		writeError(w, r, h.logger, "Failed to create content", err)
		return
	}

	h.logger.InfoContext(r.Context(), "Content created", "content_id", content.ID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, content)
}

// ListContent lists contents newest first
func (h *Handler) ListContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var req contentgraph.ListContentRequest

	for _, p := range []struct {
		name   string
		target **uuid.UUID
	}{{"layer_id", &req.LayerID}, {"creator_id", &req.CreatorID}} {
		if raw := q.Get(p.name); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				badRequest(w, r, "invalid "+p.name)
				return
			}
			*p.target = &id
		}
	}
	for _, p := range []struct {
		name   string
		target *int
	}{{"page", &req.Page}, {"per_page", &req.PerPage}} {
		if raw := q.Get(p.name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				badRequest(w, r, "invalid "+p.name)
				return
			}
			*p.target = n
		}
	}
	req.Tag = q.Get("tag")

	contents, err := h.service.ListContent(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, "Failed to list content", err)
		return
	}
	if contents == nil {
		contents = []*contentgraph.Content{}
	}
	render.JSON(w, r, contents)
}

// GetContent retrieves a content by ID
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	content, err := h.service.GetContent(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to get content", err)
		return
	}
	render.JSON(w, r, content)
}

// LoadContent retrieves a content with its features resolved
func (h *Handler) LoadContent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	details, err := h.service.LoadContent(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to load content", err)
		return
	}
	render.JSON(w, r, details)
}

// RemoveContent deletes a content with its images and feature links
func (h *Handler) RemoveContent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	content, err := h.service.RemoveContent(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to remove content", err)
		return
	}
	h.logger.InfoContext(r.Context(), "Content removed", "content_id", id)
	render.JSON(w, r, content)
}

// ReconcileFeatures replaces the feature set of a content
func (h *Handler) ReconcileFeatures(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req ReconcileFeaturesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid request body: "+err.Error())
		return
	}
	content, err := h.service.ReconcileFeatures(r.Context(), id, req.Features)
	if err != nil {
		writeError(w, r, h.logger, "Failed to reconcile features", err)
		return
	}
	render.JSON(w, r, content)
}

// DetachFeature removes one feature from a content
func (h *Handler) DetachFeature(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	featureID, ok := h.pathID(w, r, "featureID")
	if !ok {
		return
	}
	content, err := h.service.DetachFeature(r.Context(), id, featureID)
	if err != nil {
		writeError(w, r, h.logger, "Failed to detach feature", err)
		return
	}
	render.JSON(w, r, content)
}

// ReconcileBlocks replaces the blocks of a content
func (h *Handler) ReconcileBlocks(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req ReconcileBlocksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid request body: "+err.Error())
		return
	}
	content, err := h.service.ReconcileBlocks(r.Context(), id, req.Blocks)
	if err != nil {
		writeError(w, r, h.logger, "Failed to reconcile blocks", err)
		return
	}
	render.JSON(w, r, content)
}

// CreateFeature creates a feature
func (h *Handler) CreateFeature(w http.ResponseWriter, r *http.Request) {
	var req CreateFeatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid request body: "+err.Error())
		return
	}
	feature, err := h.service.CreateFeature(r.Context(), contentgraph.CreateFeatureRequest{Title: req.Title})
	if err != nil {
		writeError(w, r, h.logger, "Failed to create feature", err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, feature)
}

// GetFeature retrieves a feature by ID
func (h *Handler) GetFeature(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	feature, err := h.service.GetFeature(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to get feature", err)
		return
	}
	render.JSON(w, r, feature)
}

// RemoveFeature deletes a feature and unlinks it from its contents
func (h *Handler) RemoveFeature(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	feature, err := h.service.RemoveFeature(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to remove feature", err)
		return
	}
	render.JSON(w, r, feature)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		h.logger.InfoContext(r.Context(), "Invalid ID", "param", param, "value", raw)
		badRequest(w, r, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}
