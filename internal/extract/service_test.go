package extract

import (
	"context"
	"database/sql"
	"fmt"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/lucerna/catalog-engine/internal/config"
	"github.com/lucerna/catalog-engine/internal/domain"
	"github.com/lucerna/catalog-engine/internal/storage"
)

type fakeSegmenter struct {
	pages    int
	failPage int // render failure, 0 = none
}

func (f *fakeSegmenter) PageCount() int { return f.pages }

func (f *fakeSegmenter) Page(_ context.Context, number int) (domain.PageUnit, error) {
	if number == f.failPage {
		return domain.PageUnit{}, domain.IngestionError(fmt.Sprintf("render page %d", number), nil)
	}
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * number % 256), G: uint8(y * 7), B: 40, A: 255})
		}
	}
	return domain.PageUnit{Number: number, Text: fmt.Sprintf("page %d", number), Image: img}, nil
}

// fakeExtractor scripts per-page behavior: transient failure counts before
// success, or a permanently failing page.
type fakeExtractor struct {
	mu            sync.Mutex
	failuresLeft  map[int]int
	permanentFail map[int]bool
	calls         map[int]int
	records       func(page int) []domain.CandidateRecord
}

func (f *fakeExtractor) ExtractProducts(_ context.Context, page domain.PageUnit) ([]domain.CandidateRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[int]int{}
	}
	f.calls[page.Number]++
	if f.permanentFail[page.Number] {
		return nil, domain.ExtractionError(fmt.Sprintf("page %d failed after 3 attempts", page.Number), nil)
	}
	if f.failuresLeft[page.Number] > 0 {
		f.failuresLeft[page.Number]--
		return nil, domain.ExtractionError(fmt.Sprintf("page %d transient", page.Number), nil)
	}
	if f.records != nil {
		return f.records(page.Number), nil
	}
	return nil, nil
}

func (f *fakeExtractor) Describe(context.Context, image.Image) (string, error) {
	return "test caption", nil
}

type testEnv struct {
	db      *sql.DB
	service *Service
	jobs    *storage.JobRepository
	prods   *storage.ProductRepository
	images  *storage.ProductImageRepository
	catalog *domain.Catalog
}

func newTestEnv(t *testing.T, extractor PageExtractor, cfg config.ExtractionConfig) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(ctx, "sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	blobs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}

	catalogs := storage.NewCatalogRepository(db)
	catalog := &domain.Catalog{Name: "Test Catalog", FileRef: "pdfs/test.pdf", PageCount: 3}
	if err := catalogs.Create(ctx, catalog); err != nil {
		t.Fatalf("create catalog: %v", err)
	}

	env := &testEnv{
		db:      db,
		jobs:    storage.NewJobRepository(db),
		prods:   storage.NewProductRepository(db),
		images:  storage.NewProductImageRepository(db),
		catalog: catalog,
	}
	env.service = NewService(
		catalogs, env.prods, env.images, env.jobs, blobs,
		extractor, nil, nil, cfg,
	)
	return env
}

func oneRecord(page int) []domain.CandidateRecord {
	name := fmt.Sprintf("Lamp %d", page)
	return []domain.CandidateRecord{{
		Codes:      []string{fmt.Sprintf("LMP-%d", page)},
		Name:       &name,
		Price:      float64(100 * page),
		PageNumber: page,
	}}
}

func TestRunAllPagesSucceed(t *testing.T) {
	extractor := &fakeExtractor{records: oneRecord}
	env := newTestEnv(t, extractor, config.ExtractionConfig{PageWorkers: 2, ImagesPerProduct: 1, CaptionImages: true})
	ctx := context.Background()

	job, err := env.service.Run(ctx, env.catalog, &fakeSegmenter{pages: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if job.Status != domain.JobStatusCompleted {
		t.Errorf("status = %q, want completed", job.Status)
	}
	if job.SucceededPages != 3 || job.FailedPages != 0 {
		t.Errorf("pages = %d/%d", job.SucceededPages, job.FailedPages)
	}
	if job.ProductsCreated != 3 {
		t.Errorf("products created = %d, want 3", job.ProductsCreated)
	}
	if job.ImagesIndexed != 3 {
		t.Errorf("images indexed = %d, want 3", job.ImagesIndexed)
	}
	if job.CompletedAt == nil {
		t.Error("completed_at not set")
	}

	// Every persisted page number lies within the document.
	products, err := env.prods.ListByCatalog(ctx, env.catalog.ID)
	if err != nil {
		t.Fatalf("ListByCatalog: %v", err)
	}
	for _, p := range products {
		if p.PageNumber < 1 || p.PageNumber > 3 {
			t.Errorf("page_number %d outside [1,3]", p.PageNumber)
		}
	}

	// The job row reflects the terminal state.
	stored, err := env.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != domain.JobStatusCompleted {
		t.Errorf("stored status = %q", stored.Status)
	}

	// Images carry captions and descriptors.
	imgs, err := env.images.ListByProduct(ctx, products[0].ID)
	if err != nil || len(imgs) != 1 {
		t.Fatalf("ListByProduct = %v, %v", imgs, err)
	}
	if len(imgs[0].Descriptor) != 16 {
		t.Errorf("descriptor = %q", imgs[0].Descriptor)
	}
	if imgs[0].Caption == nil || *imgs[0].Caption != "test caption" {
		t.Errorf("caption = %v", imgs[0].Caption)
	}
}

func TestRunTransientFailureDoesNotDuplicate(t *testing.T) {
	// The extractor's own retry loop is simulated by the fake: the service
	// sees only the final per-page result, so a page that eventually
	// succeeds persists its product set exactly once.
	extractor := &fakeExtractor{records: oneRecord, failuresLeft: map[int]int{}}
	env := newTestEnv(t, extractor, config.ExtractionConfig{PageWorkers: 1})
	ctx := context.Background()

	job, err := env.service.Run(ctx, env.catalog, &fakeSegmenter{pages: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Status != domain.JobStatusCompleted || job.ProductsCreated != 2 {
		t.Fatalf("job = %+v", job)
	}

	products, err := env.prods.SearchByCode(ctx, "LMP-1")
	if err != nil {
		t.Fatalf("SearchByCode: %v", err)
	}
	if len(products) != 1 {
		t.Errorf("got %d products for LMP-1, want exactly 1", len(products))
	}
}

func TestRunBadPageDoesNotAbortSiblings(t *testing.T) {
	extractor := &fakeExtractor{records: oneRecord, permanentFail: map[int]bool{2: true}}
	env := newTestEnv(t, extractor, config.ExtractionConfig{PageWorkers: 2})
	ctx := context.Background()

	job, err := env.service.Run(ctx, env.catalog, &fakeSegmenter{pages: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if job.Status != domain.JobStatusCompletedWithErrors {
		t.Errorf("status = %q, want completed_with_errors", job.Status)
	}
	if job.SucceededPages != 2 || job.FailedPages != 1 {
		t.Errorf("pages = %d/%d", job.SucceededPages, job.FailedPages)
	}
	if len(job.FailedPageNumbers) != 1 || job.FailedPageNumbers[0] != 2 {
		t.Errorf("failed pages = %v, want [2]", job.FailedPageNumbers)
	}
	if job.ProductsCreated != 2 {
		t.Errorf("products created = %d, want 2", job.ProductsCreated)
	}
	if len(job.Warnings) == 0 {
		t.Error("failed page not attributed in warnings")
	}

	// The other pages' products made it to storage.
	for _, code := range []string{"LMP-1", "LMP-3"} {
		got, err := env.prods.SearchByCode(ctx, code)
		if err != nil || len(got) != 1 {
			t.Errorf("SearchByCode(%s) = %v, %v", code, got, err)
		}
	}
	if got, _ := env.prods.SearchByCode(ctx, "LMP-2"); len(got) != 0 {
		t.Errorf("failed page leaked products: %v", got)
	}
}

func TestRunRenderFailureIsPageLocal(t *testing.T) {
	extractor := &fakeExtractor{records: oneRecord}
	env := newTestEnv(t, extractor, config.ExtractionConfig{PageWorkers: 2})

	job, err := env.service.Run(context.Background(), env.catalog, &fakeSegmenter{pages: 3, failPage: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Status != domain.JobStatusCompletedWithErrors {
		t.Errorf("status = %q", job.Status)
	}
	if job.FailedPages != 1 || job.SucceededPages != 2 {
		t.Errorf("pages = %d/%d", job.SucceededPages, job.FailedPages)
	}
}

func TestRunCrossPageDedup(t *testing.T) {
	// Pages 1 and 2 both report LX-200; the catalog ends up with one
	// product whose attributes union both sightings.
	extractor := &fakeExtractor{records: func(page int) []domain.CandidateRecord {
		rec := domain.CandidateRecord{Codes: []string{"LX-200"}, PageNumber: page}
		if page == 1 {
			rec.Name = strPtr("Orbit")
			rec.Extra = map[string]any{"cct": "3000K"}
		} else {
			rec.Color = strPtr("Nero")
			rec.Extra = map[string]any{"ip_rating": "IP20"}
		}
		return []domain.CandidateRecord{rec}
	}}
	env := newTestEnv(t, extractor, config.ExtractionConfig{PageWorkers: 2})
	ctx := context.Background()

	job, err := env.service.Run(ctx, env.catalog, &fakeSegmenter{pages: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.ProductsCreated != 1 {
		t.Fatalf("products created = %d, want 1 merged", job.ProductsCreated)
	}

	got, err := env.prods.SearchByCode(ctx, "lx-200")
	if err != nil || len(got) != 1 {
		t.Fatalf("SearchByCode = %v, %v", got, err)
	}
	p := got[0]
	if p.PageNumber != 1 {
		t.Errorf("page = %d, want earliest 1", p.PageNumber)
	}
	if p.Name == nil || p.Color == nil {
		t.Errorf("merged fields missing: %+v", p)
	}
	if p.Extra["cct"] != "3000K" || p.Extra["ip_rating"] != "IP20" {
		t.Errorf("attribute bag = %v", p.Extra)
	}
}

func TestIngestRejectsUnreadablePDF(t *testing.T) {
	extractor := &fakeExtractor{}
	env := newTestEnv(t, extractor, config.ExtractionConfig{})

	_, _, err := env.service.Ingest(context.Background(), "bad", []byte("not a pdf"))
	if err == nil {
		t.Fatal("expected ingestion error")
	}
	if !domain.IsType(err, domain.ErrorTypeIngestion) {
		t.Errorf("expected ingestion error, got %v", err)
	}

	// Nothing was registered for the failed upload.
	jobsRow := env.db.QueryRow(`SELECT COUNT(*) FROM extraction_jobs`)
	var n int
	if err := jobsRow.Scan(&n); err != nil || n != 0 {
		t.Errorf("jobs = %d, %v; want 0", n, err)
	}
}

func TestRunWorkerPoolBound(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	extractor := &trackingExtractor{
		onCall: func() {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()
		},
		onDone: func() {
			mu.Lock()
			inFlight--
			mu.Unlock()
		},
	}
	env := newTestEnv(t, extractor, config.ExtractionConfig{PageWorkers: 2})

	if _, err := env.service.Run(context.Background(), env.catalog, &fakeSegmenter{pages: 8}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if maxInFlight > 2 {
		t.Errorf("max in-flight extractions = %d, want <= 2", maxInFlight)
	}
}

type trackingExtractor struct {
	onCall func()
	onDone func()
}

func (e *trackingExtractor) ExtractProducts(_ context.Context, page domain.PageUnit) ([]domain.CandidateRecord, error) {
	e.onCall()
	defer e.onDone()
	return oneRecord(page.Number), nil
}

func (e *trackingExtractor) Describe(context.Context, image.Image) (string, error) {
	return "", nil
}
