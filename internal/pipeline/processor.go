// Package pipeline orchestrates document-package processing: normalizing
// uploaded files into page images, running per-document classification and
// extraction, and reducing the per-document results into an application-level
// underwriting recommendation.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/amitvarma/ai-loan-processor/internal/imaging"
	"github.com/amitvarma/ai-loan-processor/internal/models"
	"github.com/amitvarma/ai-loan-processor/pkg/jsonutil"
)

// UploadedFile is one file of an application package. Consumed once.
type UploadedFile struct {
	Name string
	Data []byte
}

// Normalizer converts raw file bytes into ordered page images.
type Normalizer interface {
	Normalize(data []byte, filename string) ([]imaging.Page, error)
}

// VisionClient is the model capability the pipeline depends on.
type VisionClient interface {
	Classify(ctx context.Context, page imaging.Page) (models.DocumentType, error)
	Extract(ctx context.Context, pages []imaging.Page, docType models.DocumentType) (string, error)
	CrossValidate(ctx context.Context, summarizedData string) (string, error)
	Summarize(ctx context.Context, completeData string) (string, error)
}

// MalformedOutputError is returned when a per-document extraction response is
// not valid JSON. Terminal for the file; the raw response is kept for
// diagnosis.
type MalformedOutputError struct {
	Filename    string
	RawResponse string
	Err         error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("model returned a non-JSON response for %s: %v", e.Filename, e.Err)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

// Processor turns one uploaded file into a DocumentResult.
type Processor struct {
	normalizer Normalizer
	vision     VisionClient
	logger     *zap.Logger
}

// NewProcessor creates a document processor.
func NewProcessor(normalizer Normalizer, vision VisionClient, logger *zap.Logger) *Processor {
	return &Processor{
		normalizer: normalizer,
		vision:     vision,
		logger:     logger,
	}
}

// ProcessDocument normalizes the file, classifies it using the first page,
// extracts fields using the tag-specific instruction, and parses the model's
// response into a DocumentResult. Confidence scores pass through verbatim;
// no field-level validation happens here.
func (p *Processor) ProcessDocument(ctx context.Context, file UploadedFile) (*models.DocumentResult, error) {
	filename := strings.ToLower(file.Name)
	start := time.Now()

	pages, err := p.normalizer.Normalize(file.Data, filename)
	if err != nil {
		return nil, err
	}

	docType, err := p.vision.Classify(ctx, pages[0])
	if err != nil {
		return nil, fmt.Errorf("classification failed for %s: %w", filename, err)
	}

	raw, err := p.vision.Extract(ctx, pages, docType)
	if err != nil {
		return nil, fmt.Errorf("extraction failed for %s: %w", filename, err)
	}

	var payload struct {
		ExtractedData map[string]models.FieldExtraction `json:"extracted_data"`
		Analysis      map[string]any                    `json:"analysis"`
	}
	clean := jsonutil.StripCodeFences(raw)
	if err := json.Unmarshal([]byte(clean), &payload); err != nil {
		return nil, &MalformedOutputError{Filename: filename, RawResponse: raw, Err: err}
	}

	p.logger.Info("Document processed",
		zap.String("filename", filename),
		zap.String("document_type", string(docType)),
		zap.Int("pages", len(pages)),
		zap.Int("fields", len(payload.ExtractedData)),
		zap.Duration("elapsed", time.Since(start)))

	return &models.DocumentResult{
		Filename:      filename,
		DocumentType:  docType,
		ExtractedData: payload.ExtractedData,
		Analysis:      payload.Analysis,
	}, nil
}
