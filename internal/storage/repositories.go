package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lucerna/catalog-engine/internal/domain"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CatalogRepository handles catalog CRUD operations.
type CatalogRepository struct {
	db DB
}

// NewCatalogRepository creates a new catalog repository.
func NewCatalogRepository(db DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// Create creates a new catalog.
func (r *CatalogRepository) Create(ctx context.Context, catalog *domain.Catalog) error {
	if catalog.ID == uuid.Nil {
		catalog.ID = uuid.New()
	}
	catalog.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO catalogs (id, name, file_ref, page_count, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		catalog.ID, catalog.Name, catalog.FileRef, catalog.PageCount, catalog.CreatedAt,
	)
	return err
}

// GetByID retrieves a catalog by ID.
func (r *CatalogRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Catalog, error) {
	query := `
		SELECT id, name, file_ref, page_count, created_at
		FROM catalogs WHERE id = $1
	`
	catalog := &domain.Catalog{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&catalog.ID, &catalog.Name, &catalog.FileRef, &catalog.PageCount, &catalog.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return catalog, err
}

// List lists all catalogs, newest first.
func (r *CatalogRepository) List(ctx context.Context) ([]*domain.Catalog, error) {
	query := `
		SELECT id, name, file_ref, page_count, created_at
		FROM catalogs ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var catalogs []*domain.Catalog
	for rows.Next() {
		catalog := &domain.Catalog{}
		if err := rows.Scan(
			&catalog.ID, &catalog.Name, &catalog.FileRef, &catalog.PageCount, &catalog.CreatedAt,
		); err != nil {
			return nil, err
		}
		catalogs = append(catalogs, catalog)
	}
	return catalogs, rows.Err()
}

// UpdatePageCount backfills the page count after segmentation.
func (r *CatalogRepository) UpdatePageCount(ctx context.Context, id uuid.UUID, pages int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE catalogs SET page_count = $1 WHERE id = $2`, pages, id)
	return err
}

// Delete removes a catalog; products, images and jobs cascade.
func (r *CatalogRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM catalogs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ProductRepository handles product CRUD operations.
type ProductRepository struct {
	db DB
}

// NewProductRepository creates a new product repository.
func NewProductRepository(db DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `p.id, p.catalog_id, p.codes, p.name, p.description, p.color,
	p.light_source, p.dimensions, p.wattage, p.price, p.currency,
	p.page_number, p.raw_text, p.extra, p.created_at, c.name`

// Create persists one normalized product.
func (r *ProductRepository) Create(ctx context.Context, product *domain.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	product.CreatedAt = time.Now().UTC()

	codes, err := json.Marshal(product.Codes)
	if err != nil {
		return err
	}
	var extra any
	if len(product.Extra) > 0 {
		b, err := json.Marshal(product.Extra)
		if err != nil {
			return err
		}
		extra = string(b)
	}

	query := `
		INSERT INTO products (id, catalog_id, codes, codes_text, name, description, color,
			light_source, dimensions, wattage, price, currency, page_number, raw_text, extra, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = r.db.ExecContext(ctx, query,
		product.ID, product.CatalogID, string(codes), codesText(product.Codes),
		product.Name, product.Description, product.Color, product.LightSource,
		product.Dimensions, product.Wattage, product.Price, product.Currency,
		product.PageNumber, product.RawText, extra, product.CreatedAt,
	)
	return err
}

// GetByID retrieves a product by ID.
func (r *ProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products p JOIN catalogs c ON c.id = p.catalog_id
		WHERE p.id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)
	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return product, err
}

// SearchByCode returns products whose code list contains the query as a
// case-insensitive substring. An empty result is a miss, not an error.
func (r *ProductRepository) SearchByCode(ctx context.Context, code string) ([]*domain.Product, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(code)) + "%"
	query := `
		SELECT ` + productColumns + `
		FROM products p JOIN catalogs c ON c.id = p.catalog_id
		WHERE p.codes_text LIKE $1
		ORDER BY p.page_number, p.created_at
	`
	rows, err := r.db.QueryContext(ctx, query, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProducts(rows)
}

// ListByCatalog lists a catalog's products in page order.
func (r *ProductRepository) ListByCatalog(ctx context.Context, catalogID uuid.UUID) ([]*domain.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products p JOIN catalogs c ON c.id = p.catalog_id
		WHERE p.catalog_id = $1
		ORDER BY p.page_number, p.created_at
	`
	rows, err := r.db.QueryContext(ctx, query, catalogID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProducts(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	product := &domain.Product{}
	var codes string
	var extra sql.NullString
	err := row.Scan(
		&product.ID, &product.CatalogID, &codes, &product.Name, &product.Description,
		&product.Color, &product.LightSource, &product.Dimensions, &product.Wattage,
		&product.Price, &product.Currency, &product.PageNumber, &product.RawText,
		&extra, &product.CreatedAt, &product.CatalogName,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(codes), &product.Codes); err != nil {
		return nil, err
	}
	if extra.Valid && extra.String != "" {
		if err := json.Unmarshal([]byte(extra.String), &product.Extra); err != nil {
			return nil, err
		}
	}
	return product, nil
}

func scanProducts(rows *sql.Rows) ([]*domain.Product, error) {
	var products []*domain.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

// codesText denormalizes the code list for LIKE search: lowercase, space
// separated, padded so every code is a bounded token.
func codesText(codes []string) string {
	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		parts = append(parts, strings.ToLower(strings.TrimSpace(c)))
	}
	return " " + strings.Join(parts, " ") + " "
}

// ProductImageRepository handles product image records.
type ProductImageRepository struct {
	db DB
}

// NewProductImageRepository creates a new product image repository.
func NewProductImageRepository(db DB) *ProductImageRepository {
	return &ProductImageRepository{db: db}
}

// Create persists one image record.
func (r *ProductImageRepository) Create(ctx context.Context, img *domain.ProductImage) error {
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	img.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO product_images (id, product_id, image_ref, descriptor, caption, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		img.ID, img.ProductID, img.ImageRef, img.Descriptor, img.Caption, img.CreatedAt,
	)
	return err
}

// ListByProduct lists a product's images.
func (r *ProductImageRepository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.ProductImage, error) {
	query := `
		SELECT id, product_id, image_ref, descriptor, caption, created_at
		FROM product_images WHERE product_id = $1 ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []*domain.ProductImage
	for rows.Next() {
		img := &domain.ProductImage{}
		if err := rows.Scan(
			&img.ID, &img.ProductID, &img.ImageRef, &img.Descriptor, &img.Caption, &img.CreatedAt,
		); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// DescriptorEntry is the projection the similarity index loads: every stored
// descriptor with its owning product and image.
type DescriptorEntry struct {
	ProductID  uuid.UUID
	ImageID    uuid.UUID
	Descriptor string
}

// ListDescriptors returns all descriptors across catalogs.
func (r *ProductImageRepository) ListDescriptors(ctx context.Context) ([]DescriptorEntry, error) {
	query := `SELECT product_id, id, descriptor FROM product_images`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []DescriptorEntry
	for rows.Next() {
		var e DescriptorEntry
		if err := rows.Scan(&e.ProductID, &e.ImageID, &e.Descriptor); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// JobRepository handles extraction job records.
type JobRepository struct {
	db DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a job in its initial state.
func (r *JobRepository) Create(ctx context.Context, job *domain.ExtractionJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now().UTC()
	}

	failed, warnings, err := marshalJobLists(job)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO extraction_jobs (id, catalog_id, status, total_pages, succeeded_pages,
			failed_pages, failed_page_numbers, products_created, images_indexed, warnings,
			started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.db.ExecContext(ctx, query,
		job.ID, job.CatalogID, job.Status, job.TotalPages, job.SucceededPages,
		job.FailedPages, failed, job.ProductsCreated, job.ImagesIndexed, warnings,
		job.StartedAt, job.CompletedAt,
	)
	return err
}

// Update rewrites the job's mutable fields.
func (r *JobRepository) Update(ctx context.Context, job *domain.ExtractionJob) error {
	failed, warnings, err := marshalJobLists(job)
	if err != nil {
		return err
	}
	query := `
		UPDATE extraction_jobs
		SET status = $1, total_pages = $2, succeeded_pages = $3, failed_pages = $4,
			failed_page_numbers = $5, products_created = $6, images_indexed = $7,
			warnings = $8, completed_at = $9
		WHERE id = $10
	`
	_, err = r.db.ExecContext(ctx, query,
		job.Status, job.TotalPages, job.SucceededPages, job.FailedPages,
		failed, job.ProductsCreated, job.ImagesIndexed, warnings,
		job.CompletedAt, job.ID,
	)
	return err
}

// GetByID retrieves a job by ID.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExtractionJob, error) {
	query := `
		SELECT id, catalog_id, status, total_pages, succeeded_pages, failed_pages,
			failed_page_numbers, products_created, images_indexed, warnings,
			started_at, completed_at
		FROM extraction_jobs WHERE id = $1
	`
	job := &domain.ExtractionJob{}
	var failed, warnings sql.NullString
	var completed sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.CatalogID, &job.Status, &job.TotalPages, &job.SucceededPages,
		&job.FailedPages, &failed, &job.ProductsCreated, &job.ImagesIndexed, &warnings,
		&job.StartedAt, &completed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if failed.Valid && failed.String != "" {
		if err := json.Unmarshal([]byte(failed.String), &job.FailedPageNumbers); err != nil {
			return nil, err
		}
	}
	if warnings.Valid && warnings.String != "" {
		if err := json.Unmarshal([]byte(warnings.String), &job.Warnings); err != nil {
			return nil, err
		}
	}
	if completed.Valid {
		t := completed.Time
		job.CompletedAt = &t
	}
	return job, nil
}

func marshalJobLists(job *domain.ExtractionJob) (failed, warnings any, err error) {
	if len(job.FailedPageNumbers) > 0 {
		b, err := json.Marshal(job.FailedPageNumbers)
		if err != nil {
			return nil, nil, err
		}
		failed = string(b)
	}
	if len(job.Warnings) > 0 {
		b, err := json.Marshal(job.Warnings)
		if err != nil {
			return nil, nil, err
		}
		warnings = string(b)
	}
	return failed, warnings, nil
}
