package domain

import (
	"image"
	"time"

	"github.com/google/uuid"
)

// Catalog represents one uploaded supplier PDF and its derived products.
// Immutable after creation except for the page-count backfill.
type Catalog struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	FileRef   string    `json:"file_ref"`
	PageCount int       `json:"page_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Product is a normalized, persisted catalog entry. A persisted product
// always carries at least one code; candidates without one are dropped or
// merged before they reach storage.
type Product struct {
	ID          uuid.UUID      `json:"id"`
	CatalogID   uuid.UUID      `json:"catalog_id"`
	Codes       []string       `json:"codes"`
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Color       *string        `json:"color,omitempty"`
	LightSource *string        `json:"light_source,omitempty"`
	Dimensions  *string        `json:"dimensions,omitempty"`
	Wattage     *string        `json:"wattage,omitempty"`
	Price       *float64       `json:"price,omitempty"`
	Currency    *string        `json:"currency,omitempty"`
	PageNumber  int            `json:"page_number"`
	RawText     string         `json:"raw_text"`
	Extra       map[string]any `json:"extra,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`

	// CatalogName is populated on read paths that join the owning catalog.
	CatalogName string `json:"catalog_name,omitempty"`
}

// ProductImage links a stored image to its product. Descriptor is the
// content signature used for similarity search, computed deterministically
// from the image bytes.
type ProductImage struct {
	ID         uuid.UUID `json:"id"`
	ProductID  uuid.UUID `json:"product_id"`
	ImageRef   string    `json:"image_ref"`
	Descriptor string    `json:"descriptor"`
	Caption    *string   `json:"caption,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

/// PageUnit is one segmented PDF page: 1-based index, extracted plain text,
// and the rendered raster.
type PageUnit struct {
	Number int
	Text   string
	Image  image.Image
}

// CandidateRecord is an unvalidated product-like object returned by the
// extractor for one page, prior to normalization. Price keeps whatever
// loosely-typed value the model produced (string or number); coercion is the
// normalizer's job. Extra preserves fields the schema does not model.
type CandidateRecord struct {
	Codes       []string
	Name        *string
	Description *string
	Color       *string
	LightSource *string
	Dimensions  *string
	Wattage     *string
	Price       any
	Currency    *string
	Extra       map[string]any
	PageNumber  int
	Raw         string
}

// HasIdentity reports whether the candidate carries enough identity to be
// useful: at least one code or a name.
func (c *CandidateRecord) HasIdentity() bool {
	return len(c.Codes) > 0 || (c.Name != nil && *c.Name != "")
}

// JobStatus represents the lifecycle of an extraction job.
type JobStatus string

const (
	JobStatusPending             JobStatus = "pending"
	JobStatusRunning             JobStatus = "running"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusCompletedWithErrors JobStatus = "completed_with_errors"
)

// PageStatus tracks one page inside an extraction job.
type PageStatus string

const (
	PageStatusPending    PageStatus = "pending"
	PageStatusInProgress PageStatus = "in_progress"
	PageStatusSucceeded  PageStatus = "succeeded"
	PageStatusFailed     PageStatus = "failed"
)

// ExtractionJob is one run of the pipeline over a single catalog's pages.
// A job never reaches a failed terminal state as a whole: page failures are
// absorbed into completed_with_errors, and only segmentation failure before
// any page is processed aborts the run (in which case no job is recorded as
// terminal).
type ExtractionJob struct {
	ID                uuid.UUID  `json:"id"`
	CatalogID         uuid.UUID  `json:"catalog_id"`
	Status            JobStatus  `json:"status"`
	TotalPages        int        `json:"total_pages"`
	SucceededPages    int        `json:"succeeded_pages"`
	FailedPages       int        `json:"failed_pages"`
	FailedPageNumbers []int      `json:"failed_page_numbers,omitempty"`
	ProductsCreated   int        `json:"products_created"`
	ImagesIndexed     int        `json:"images_indexed"`
	Warnings          []string   `json:"warnings,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// Finalize sets the terminal status from the page counters.
func (j *ExtractionJob) Finalize(now time.Time) {
	if j.FailedPages > 0 {
		j.Status = JobStatusCompletedWithErrors
	} else {
		j.Status = JobStatusCompleted
	}
	j.CompletedAt = &now
}
