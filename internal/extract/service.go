package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lucerna/catalog-engine/internal/config"
	"github.com/lucerna/catalog-engine/internal/domain"
	"github.com/lucerna/catalog-engine/internal/imaging"
	"github.com/lucerna/catalog-engine/internal/observability"
	"github.com/lucerna/catalog-engine/internal/pdf"
	"github.com/lucerna/catalog-engine/internal/storage"
)

// Segmenter yields page units for one document; satisfied by pdf.Document.
type Segmenter interface {
	PageCount() int
	Page(ctx context.Context, number int) (domain.PageUnit, error)
}

// PageExtractor turns one page into candidate records; satisfied by
// llm.Client.
type PageExtractor interface {
	ExtractProducts(ctx context.Context, page domain.PageUnit) ([]domain.CandidateRecord, error)
	Describe(ctx context.Context, img image.Image) (string, error)
}

// Service runs extraction jobs end to end.
type Service struct {
	catalogs  *storage.CatalogRepository
	products  *storage.ProductRepository
	images    *storage.ProductImageRepository
	jobs      *storage.JobRepository
	blobs     storage.BlobStore
	extractor PageExtractor
	hasher    imaging.Hasher
	logger    *observability.Logger
	cfg       config.ExtractionConfig

	onPage func(done, total int)
}

// OnPageDone registers a callback invoked after each page finishes, for
// progress display. Must be set before Run.
func (s *Service) OnPageDone(fn func(done, total int)) {
	s.onPage = fn
}

// NewService wires the extraction pipeline.
func NewService(
	catalogs *storage.CatalogRepository,
	products *storage.ProductRepository,
	images *storage.ProductImageRepository,
	jobs *storage.JobRepository,
	blobs storage.BlobStore,
	extractor PageExtractor,
	hasher imaging.Hasher,
	logger *observability.Logger,
	cfg config.ExtractionConfig,
) *Service {
	if cfg.PageWorkers < 1 {
		cfg.PageWorkers = 1
	}
	if hasher == nil {
		hasher = imaging.NewPerceptualHasher()
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Service{
		catalogs:  catalogs,
		products:  products,
		images:    images,
		jobs:      jobs,
		blobs:     blobs,
		extractor: extractor,
		hasher:    hasher,
		logger:    logger.WithComponent("extract"),
		cfg:       cfg,
	}
}

// Ingest stores an uploaded PDF, registers the catalog, and runs a full
// extraction job over it. A document that cannot be parsed or has no pages
// fails before any catalog or job row is written.
func (s *Service) Ingest(ctx context.Context, name string, pdfBytes []byte) (*domain.Catalog, *domain.ExtractionJob, error) {
	doc, err := pdf.OpenBytes(pdfBytes)
	if err != nil {
		return nil, nil, err
	}
	defer doc.Close()
	if s.cfg.RenderDPI > 0 {
		doc.SetDPI(s.cfg.RenderDPI)
	}

	fileRef, err := s.blobs.Save(storage.BlobPrefixPDF, name+".pdf", pdfBytes)
	if err != nil {
		return nil, nil, domain.StorageError("failed to store catalog PDF", err)
	}

	catalog := &domain.Catalog{Name: name, FileRef: fileRef, PageCount: doc.PageCount()}
	if err := s.catalogs.Create(ctx, catalog); err != nil {
		return nil, nil, domain.StorageError("failed to create catalog", err)
	}

	job, err := s.Run(ctx, catalog, doc)
	return catalog, job, err
}

type pageOutcome struct {
	number     int
	candidates []domain.CandidateRecord
	err        error
}

// Run executes one extraction job over an already-registered catalog.
//
// Pages are rendered sequentially (the underlying renderer is not safe for
// concurrent use) and fan out to a bounded pool whose unit of work is the
// model call. A failed page is recorded and never aborts its siblings; the
// job ends completed_with_errors when at least one page failed, completed
// otherwise. Products already persisted before a cancellation remain.
func (s *Service) Run(ctx context.Context, catalog *domain.Catalog, seg Segmenter) (*domain.ExtractionJob, error) {
	job := &domain.ExtractionJob{
		CatalogID:  catalog.ID,
		Status:     domain.JobStatusPending,
		TotalPages: seg.PageCount(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, domain.StorageError("failed to create extraction job", err)
	}

	job.Status = domain.JobStatusRunning
	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, domain.StorageError("failed to mark job running", err)
	}

	logger := s.logger.WithJob(job.ID.String())
	logger.Info().
		Str("catalog", catalog.Name).
		Int("pages", job.TotalPages).
		Int("workers", s.cfg.PageWorkers).
		Msg("Starting extraction job")

	var (
		mu       sync.Mutex
		outcomes []pageOutcome
	)
	record := func(o pageOutcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		done := len(outcomes)
		mu.Unlock()
		if s.onPage != nil {
			s.onPage(done, job.TotalPages)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.PageWorkers)

	for n := 1; n <= seg.PageCount(); n++ {
		if gctx.Err() != nil {
			break
		}
		page, err := seg.Page(gctx, n)
		if err != nil {
			record(pageOutcome{number: n, err: err})
			continue
		}
		g.Go(func() error {
			candidates, err := s.extractor.ExtractProducts(gctx, page)
			record(pageOutcome{number: page.Number, candidates: candidates, err: err})
			// Page failures are absorbed into the job report; only the
			// context stops the group.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return job, err
	}

	var all []domain.CandidateRecord
	for _, o := range outcomes {
		if o.err != nil {
			job.FailedPages++
			job.FailedPageNumbers = append(job.FailedPageNumbers, o.number)
			job.Warnings = append(job.Warnings, fmt.Sprintf("page %d: %v", o.number, o.err))
			logger.Warn().Int("page", o.number).Err(o.err).Msg("Page extraction failed")
			continue
		}
		job.SucceededPages++
		all = append(all, o.candidates...)
	}
	sort.Ints(job.FailedPageNumbers)

	products, warnings := Normalize(catalog.ID, all)
	job.Warnings = append(job.Warnings, warnings...)

	persisted := make([]*domain.Product, 0, len(products))
	for _, product := range products {
		if err := s.products.Create(ctx, product); err != nil {
			// Entity-local: log and keep the siblings.
			job.Warnings = append(job.Warnings,
				fmt.Sprintf("page %d: failed to store product %v: %v", product.PageNumber, product.Codes, err))
			logger.Error().Err(err).Strs("codes", product.Codes).Msg("Failed to store product")
			continue
		}
		persisted = append(persisted, product)
	}
	job.ProductsCreated = len(persisted)

	job.ImagesIndexed = s.indexImages(ctx, logger, seg, persisted, job)

	job.Finalize(time.Now().UTC())
	if err := s.jobs.Update(ctx, job); err != nil {
		return job, domain.StorageError("failed to finalize extraction job", err)
	}

	logger.Info().
		Str("status", string(job.Status)).
		Int("products", job.ProductsCreated).
		Int("images", job.ImagesIndexed).
		Int("failed_pages", job.FailedPages).
		Msg("Extraction job finished")
	return job, nil
}

// indexImages stores one rendered page raster per persisted product and
// records its descriptor for similarity search. Pages are re-rendered here
// so the whole raster set never has to sit in memory during extraction.
func (s *Service) indexImages(ctx context.Context, logger *observability.Logger, seg Segmenter, products []*domain.Product, job *domain.ExtractionJob) int {
	if s.cfg.ImagesPerProduct < 1 {
		return 0
	}

	rasters := map[int]image.Image{}
	indexed := 0
	for _, product := range products {
		if ctx.Err() != nil {
			break
		}

		raster, ok := rasters[product.PageNumber]
		if !ok {
			page, err := seg.Page(ctx, product.PageNumber)
			if err != nil {
				job.Warnings = append(job.Warnings,
					fmt.Sprintf("page %d: failed to render image for product %v: %v", product.PageNumber, product.Codes, err))
				continue
			}
			raster = page.Image
			rasters[product.PageNumber] = raster
		}

		img, err := s.storeProductImage(ctx, product, raster)
		if err != nil {
			job.Warnings = append(job.Warnings,
				fmt.Sprintf("page %d: failed to index image for product %v: %v", product.PageNumber, product.Codes, err))
			logger.Warn().Err(err).Strs("codes", product.Codes).Msg("Failed to index product image")
			continue
		}
		indexed++
		logger.Debug().Strs("codes", product.Codes).Str("descriptor", img.Descriptor).Msg("Indexed product image")
	}
	return indexed
}

func (s *Service) storeProductImage(ctx context.Context, product *domain.Product, raster image.Image) (*domain.ProductImage, error) {
	descriptor, err := s.hasher.Compute(raster)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, raster, &jpeg.Options{Quality: 85}); err != nil {
		return nil, domain.IOError("failed to encode product image", err)
	}
	ref, err := s.blobs.Save(storage.BlobPrefixImage, fmt.Sprintf("p%d.jpg", product.PageNumber), buf.Bytes())
	if err != nil {
		return nil, domain.StorageError("failed to store product image", err)
	}

	img := &domain.ProductImage{
		ProductID:  product.ID,
		ImageRef:   ref,
		Descriptor: descriptor,
	}
	if s.cfg.CaptionImages {
		if caption, err := s.extractor.Describe(ctx, raster); err == nil && caption != "" {
			img.Caption = &caption
		}
	}

	if err := s.images.Create(ctx, img); err != nil {
		return nil, domain.StorageError("failed to store product image record", err)
	}
	return img, nil
}
