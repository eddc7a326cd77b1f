// Package pdf implements catalog page segmentation on top of go-fitz.
package pdf

import (
	"context"
	"fmt"

	"github.com/gen2brain/go-fitz"

	"github.com/lucerna/catalog-engine/internal/domain"
)

const defaultDPI = 150

// Document is an open catalog PDF. Pages can be read lazily and re-read any
// number of times; go-fitz documents are not safe for concurrent use, so
// callers must serialize page access.
type Document struct {
	doc       *fitz.Document
	pageCount int
	dpi       float64
}

// Open opens a PDF from a file path.
func Open(path string) (*Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, domain.IngestionError("failed to open PDF", err)
	}
	return wrap(doc)
}

// OpenBytes opens a PDF held in memory.
func OpenBytes(data []byte) (*Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, domain.IngestionError("failed to parse PDF", err)
	}
	return wrap(doc)
}

func wrap(doc *fitz.Document) (*Document, error) {
	count := doc.NumPage()
	if count == 0 {
		doc.Close()
		return nil, domain.IngestionError("PDF has no pages", nil)
	}
	return &Document{doc: doc, pageCount: count, dpi: defaultDPI}, nil
}

// SetDPI overrides the rendering resolution for subsequent page reads.
func (d *Document) SetDPI(dpi float64) {
	if dpi > 0 {
		d.dpi = dpi
	}
}

// PageCount returns the number of pages in the document.
func (d *Document) PageCount() int {
	return d.pageCount
}

// Page renders one page unit. Number is 1-based.
func (d *Document) Page(ctx context.Context, number int) (domain.PageUnit, error) {
	if err := ctx.Err(); err != nil {
		return domain.PageUnit{}, err
	}
	if number < 1 || number > d.pageCount {
		return domain.PageUnit{}, domain.ValidationError(
			fmt.Sprintf("page %d out of range [1, %d]", number, d.pageCount), nil)
	}

	// go-fitz is 0-based.
	text, err := d.doc.Text(number - 1)
	if err != nil {
		return domain.PageUnit{}, domain.IngestionError(
			fmt.Sprintf("failed to extract text from page %d", number), err)
	}

	img, err := d.doc.ImageDPI(number-1, d.dpi)
	if err != nil {
		return domain.PageUnit{}, domain.IngestionError(
			fmt.Sprintf("failed to render page %d", number), err)
	}

	return domain.PageUnit{Number: number, Text: text, Image: img}, nil
}

// Text extracts the plain text of one page without rendering it.
func (d *Document) Text(ctx context.Context, number int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if number < 1 || number > d.pageCount {
		return "", domain.ValidationError(
			fmt.Sprintf("page %d out of range [1, %d]", number, d.pageCount), nil)
	}
	text, err := d.doc.Text(number - 1)
	if err != nil {
		return "", domain.IngestionError(
			fmt.Sprintf("failed to extract text from page %d", number), err)
	}
	return text, nil
}

// Each iterates all pages in order, invoking fn for each page unit. The
// iteration stops on the first error from fn or from rendering, and on
// context cancellation.
func (d *Document) Each(ctx context.Context, fn func(domain.PageUnit) error) error {
	for number := 1; number <= d.pageCount; number++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		unit, err := d.Page(ctx, number)
		if err != nil {
			return err
		}
		if err := fn(unit); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying document.
func (d *Document) Close() error {
	if d.doc == nil {
		return nil
	}
	err := d.doc.Close()
	d.doc = nil
	return err
}
