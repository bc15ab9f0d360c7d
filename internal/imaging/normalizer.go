// Package imaging converts uploaded files into ordered page images for the
// vision pipeline.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// ErrConversionFailed is returned when a supported file yields zero page
// images.
var ErrConversionFailed = errors.New("could not convert document to images")

// UnsupportedFileTypeError is returned for file extensions the pipeline
// does not accept.
type UnsupportedFileTypeError struct {
	Filename string
}

func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("unsupported file type: %s", e.Filename)
}

// Page is a single raster page image. Pages are transient: they exist only
// for the duration of the extraction calls and are never persisted.
type Page struct {
	Data     []byte
	MIMEType string
}

// Normalizer turns raw uploaded bytes into an ordered sequence of page
// images, dispatching on the filename extension.
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer creates a new image normalizer.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize decodes data into page images. PDFs produce one image per page
// in document order; raster image formats produce a one-element sequence.
// Any other extension fails with UnsupportedFileTypeError.
func (n *Normalizer) Normalize(data []byte, filename string) ([]Page, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".pdf":
		return n.convertPDF(data, filename)
	case ".png", ".jpg", ".jpeg":
		return n.convertImage(data, filename, ext)
	default:
		return nil, &UnsupportedFileTypeError{Filename: filename}
	}
}

// convertPDF renders every PDF page to a JPEG image using mupdf.
func (n *Normalizer) convertPDF(data []byte, filename string) ([]Page, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConversionFailed, filename, err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	n.logger.Debug("Converting PDF to page images",
		zap.String("filename", filename),
		zap.Int("total_pages", pageCount))

	var pages []Page
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		img, err := doc.Image(pageNum)
		if err != nil {
			n.logger.Warn("Failed to render PDF page",
				zap.String("filename", filename),
				zap.Int("page", pageNum),
				zap.Error(err))
			continue
		}

		jpegData, err := encodeJPEG(img)
		if err != nil {
			n.logger.Warn("Failed to encode page to JPEG",
				zap.String("filename", filename),
				zap.Int("page", pageNum),
				zap.Error(err))
			continue
		}

		pages = append(pages, Page{Data: jpegData, MIMEType: "image/jpeg"})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrConversionFailed, filename)
	}
	return pages, nil
}

// convertImage decodes a single raster image and re-encodes it to JPEG so
// the downstream vision calls see one consistent format.
func (n *Normalizer) convertImage(data []byte, filename, ext string) ([]Page, error) {
	var img image.Image
	var err error

	switch ext {
	case ".png":
		img, err = png.Decode(bytes.NewReader(data))
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConversionFailed, filename, err)
	}

	jpegData, err := encodeJPEG(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConversionFailed, filename, err)
	}

	return []Page{{Data: jpegData, MIMEType: "image/jpeg"}}, nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}
