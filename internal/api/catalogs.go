package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lucerna/catalog-engine/internal/domain"
	"github.com/lucerna/catalog-engine/internal/extract"
	"github.com/lucerna/catalog-engine/internal/observability"
	"github.com/lucerna/catalog-engine/internal/storage"
)

// CatalogHandler handles catalog upload, listing and job status.
type CatalogHandler struct {
	logger    *observability.Logger
	catalogs  *storage.CatalogRepository
	products  *storage.ProductRepository
	jobs      *storage.JobRepository
	extractor *extract.Service
	blobs     storage.BlobStore
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(
	logger *observability.Logger,
	catalogs *storage.CatalogRepository,
	products *storage.ProductRepository,
	jobs *storage.JobRepository,
	extractor *extract.Service,
	blobs storage.BlobStore,
) *CatalogHandler {
	return &CatalogHandler{
		logger:    logger,
		catalogs:  catalogs,
		products:  products,
		jobs:      jobs,
		extractor: extractor,
		blobs:     blobs,
	}
}

// UploadResponseDTO is returned after a catalog upload and extraction run.
type UploadResponseDTO struct {
	Catalog *domain.Catalog       `json:"catalog"`
	Job     *domain.ExtractionJob `json:"job"`
}

// Upload accepts a multipart PDF upload and runs a full extraction job over
// it before responding. The response carries the per-page outcome so the
// caller can see which pages, if any, failed.
func (h *CatalogHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "extraction is not configured", "set OPENROUTER_API_KEY and restart")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required", err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload", err.Error())
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = strings.TrimSuffix(header.Filename, ".pdf")
	}
	if name == "" {
		writeError(w, http.StatusBadRequest, "catalog name is required", "")
		return
	}

	catalog, job, err := h.extractor.Ingest(r.Context(), name, data)
	if err != nil {
		h.logger.Error().Err(err).Str("catalog", name).Msg("Catalog ingestion failed")
		writeDomainError(w, err)
		return
	}

	writeJSON(h.logger, w, http.StatusCreated, UploadResponseDTO{Catalog: catalog, Job: job})
}

// CatalogDetailDTO is a catalog with its products.
type CatalogDetailDTO struct {
	Catalog  *domain.Catalog   `json:"catalog"`
	Products []*domain.Product `json:"products"`
}

// List returns all catalogs.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	catalogs, err := h.catalogs.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list catalogs", err.Error())
		return
	}
	if catalogs == nil {
		catalogs = []*domain.Catalog{}
	}
	writeJSON(h.logger, w, http.StatusOK, catalogs)
}

// Get returns one catalog with its products.
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	catalog, err := h.catalogs.GetByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "catalog not found", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load catalog", err.Error())
		return
	}

	products, err := h.products.ListByCatalog(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load products", err.Error())
		return
	}
	if products == nil {
		products = []*domain.Product{}
	}
	writeJSON(h.logger, w, http.StatusOK, CatalogDetailDTO{Catalog: catalog, Products: products})
}

// Delete removes a catalog; its products, images and jobs cascade. The
// stored PDF blob is removed best-effort.
func (h *CatalogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	catalog, err := h.catalogs.GetByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "catalog not found", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load catalog", err.Error())
		return
	}

	if err := h.catalogs.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete catalog", err.Error())
		return
	}
	if err := h.blobs.Delete(catalog.FileRef); err != nil {
		h.logger.Warn().Err(err).Str("ref", catalog.FileRef).Msg("Failed to delete catalog blob")
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetJob returns the status of one extraction job.
func (h *CatalogHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load job", err.Error())
		return
	}
	writeJSON(h.logger, w, http.StatusOK, job)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id", err.Error())
		return uuid.Nil, false
	}
	return id, true
}
