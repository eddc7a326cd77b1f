// Package api exposes the catalog engine over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/lucerna/catalog-engine/internal/config"
	"github.com/lucerna/catalog-engine/internal/extract"
	"github.com/lucerna/catalog-engine/internal/imaging"
	"github.com/lucerna/catalog-engine/internal/observability"
	"github.com/lucerna/catalog-engine/internal/storage"
)

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Logger    *observability.Logger
	Catalogs  *storage.CatalogRepository
	Products  *storage.ProductRepository
	Images    *storage.ProductImageRepository
	Jobs      *storage.JobRepository
	Blobs     storage.BlobStore
	Extractor *extract.Service
	Engine    *imaging.Engine
	Config    *config.Config
}

// NewRouter creates the API router with all routes configured.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = observability.Nop()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"catalog-engine"}`))
	})

	catalogs := NewCatalogHandler(logger, deps.Catalogs, deps.Products, deps.Jobs, deps.Extractor, deps.Blobs)
	search := NewSearchHandler(logger, deps.Products, deps.Images, deps.Engine, deps.Config.Search)
	prices := NewPricingHandler(logger, deps.Products, deps.Config.Extraction)

	r.Route("/api/v1", func(r chi.Router) {
		// Catalog upload runs a full extraction, so it gets no request
		// timeout; everything else is bounded.
		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(30 * time.Second))
			r.Get("/catalogs", catalogs.List)
			r.Get("/catalogs/{id}", catalogs.Get)
			r.Delete("/catalogs/{id}", catalogs.Delete)
			r.Get("/jobs/{id}", catalogs.GetJob)
			r.Get("/products/search", search.ByCode)
			r.Post("/search/image", search.ByImage)
			r.Post("/exports/quote", prices.Quote)
		})
		r.Post("/catalogs", catalogs.Upload)
		r.Post("/pricing/convert", prices.Convert)
	})

	return r
}
