// Package pdf adapts a PDF document to the extraction source contract using
// go-fitz (MuPDF): per-page plain text plus page rasterization.
package pdf

import (
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// baseDPI is the PDF native resolution; a scale of 1.0 renders at 72 DPI.
const baseDPI = 72

// Document wraps an open MuPDF document.
type Document struct {
	doc *fitz.Document
}

// Open opens a document from a file path.
func Open(path string) (*Document, error) {
	d, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open document %s: %w", path, err)
	}
	return &Document{doc: d}, nil
}

// FromBytes opens a document held in memory, e.g. an uploaded file.
func FromBytes(data []byte) (*Document, error) {
	d, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	return &Document{doc: d}, nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return d.doc.NumPage()
}

// PageText returns the plain extracted text of a zero-based page.
func (d *Document) PageText(i int) (string, error) {
	text, err := d.doc.Text(i)
	if err != nil {
		return "", fmt.Errorf("page %d text: %w", i+1, err)
	}
	return text, nil
}

// RenderPage rasterizes a zero-based page to PNG bytes at baseDPI*scale.
func (d *Document) RenderPage(i int, scale float64) ([]byte, error) {
	if scale <= 0 {
		scale = 1
	}
	img, err := d.doc.ImagePNG(i, baseDPI*scale)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", i+1, err)
	}
	return img, nil
}

// Close releases the underlying MuPDF document.
func (d *Document) Close() error {
	return d.doc.Close()
}
