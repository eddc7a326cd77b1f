package api

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"

	"github.com/lucerna/catalog-engine/internal/config"
	"github.com/lucerna/catalog-engine/internal/domain"
	"github.com/lucerna/catalog-engine/internal/imaging"
	"github.com/lucerna/catalog-engine/internal/observability"
	"github.com/lucerna/catalog-engine/internal/storage"
)

// SearchHandler handles code and image search.
type SearchHandler struct {
	logger   *observability.Logger
	products *storage.ProductRepository
	images   *storage.ProductImageRepository
	engine   *imaging.Engine
	cfg      config.SearchConfig
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(
	logger *observability.Logger,
	products *storage.ProductRepository,
	images *storage.ProductImageRepository,
	engine *imaging.Engine,
	cfg config.SearchConfig,
) *SearchHandler {
	if engine == nil {
		engine = imaging.NewEngine(nil)
	}
	return &SearchHandler{
		logger:   logger,
		products: products,
		images:   images,
		engine:   engine,
		cfg:      cfg,
	}
}

// ByCode searches products by case-insensitive code substring. An empty
// result is a 200 with an empty list, never an error.
func (h *SearchHandler) ByCode(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "code query parameter is required", "")
		return
	}

	products, err := h.products.SearchByCode(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed", err.Error())
		return
	}
	if products == nil {
		products = []*domain.Product{}
	}
	writeJSON(h.logger, w, http.StatusOK, products)
}

// ImageMatchDTO is one image search result.
type ImageMatchDTO struct {
	Product    *domain.Product `json:"product"`
	Distance   int             `json:"distance"`
	Similarity float64         `json:"similarity"`
}

// ByImage accepts a multipart query photo, ranks every indexed product
// image by descriptor distance, and returns products within the threshold,
// nearest first. The threshold and max_results form fields override the
// configured defaults.
func (h *SearchHandler) ByImage(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image field is required", err.Error())
		return
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable image", err.Error())
		return
	}

	threshold := h.cfg.DefaultThreshold
	if v := r.FormValue("threshold"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			threshold = n
		}
	}
	maxResults := h.cfg.MaxResults
	if v := r.FormValue("max_results"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxResults = n
		}
	}

	stored, err := h.images.ListDescriptors(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load descriptors", err.Error())
		return
	}
	entries := make([]imaging.IndexEntry, len(stored))
	for i, s := range stored {
		entries[i] = imaging.IndexEntry{ProductID: s.ProductID, ImageID: s.ImageID, Descriptor: s.Descriptor}
	}

	matches, err := h.engine.Search(r.Context(), img, entries, threshold, maxResults)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// One result per product: the nearest image wins.
	results := make([]ImageMatchDTO, 0, len(matches))
	seen := map[string]struct{}{}
	for _, m := range matches {
		key := m.ProductID.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		product, err := h.products.GetByID(r.Context(), m.ProductID)
		if err != nil {
			h.logger.Warn().Err(err).Str("product", key).Msg("Matched product missing")
			continue
		}
		results = append(results, ImageMatchDTO{
			Product:    product,
			Distance:   m.Distance,
			Similarity: m.Similarity,
		})
	}

	writeJSON(h.logger, w, http.StatusOK, results)
}
