package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amitvarma/ai-loan-processor/internal/models"
	"github.com/amitvarma/ai-loan-processor/pkg/jsonutil"
)

// DocumentProcessor processes one uploaded file.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, file UploadedFile) (*models.DocumentResult, error)
}

// Aggregator runs the full application pipeline: per-document processing in
// upload order, then the two reduction passes. The reductions are strictly
// sequential because the summary call conditions on the cross-validation
// verdict.
type Aggregator struct {
	processor DocumentProcessor
	vision    VisionClient
	logger    *zap.Logger
}

// NewAggregator creates an application aggregator.
func NewAggregator(processor DocumentProcessor, vision VisionClient, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		processor: processor,
		vision:    vision,
		logger:    logger,
	}
}

// condensedDocument is the per-document view handed to the cross-validation
// pass: field values only, confidences and analysis dropped.
type condensedDocument struct {
	Filename     string              `json:"filename"`
	DocumentType models.DocumentType `json:"document_type"`
	Data         map[string]string   `json:"data"`
}

// ProcessApplication processes every file of a package and returns the
// combined ApplicationResult. A failure on any single file aborts the whole
// request; no partial results are returned. The result is handed to the
// caller and never persisted here.
func (a *Aggregator) ProcessApplication(ctx context.Context, files []UploadedFile) (*models.ApplicationResult, error) {
	applicationID := uuid.NewString()
	a.logger.Info("Processing application package",
		zap.String("application_id", applicationID),
		zap.Int("files", len(files)))

	results := make([]models.DocumentResult, 0, len(files))
	for _, file := range files {
		result, err := a.processor.ProcessDocument(ctx, file)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}

	crossVal, err := a.crossValidate(ctx, results)
	if err != nil {
		return nil, err
	}

	summary, err := a.summarize(ctx, results, crossVal)
	if err != nil {
		return nil, err
	}

	a.logger.Info("Application processed",
		zap.String("application_id", applicationID),
		zap.Bool("validation_passed", crossVal.ValidationPassed),
		zap.String("recommendation", summary.FinalRecommendation))

	return &models.ApplicationResult{
		ApplicationID:             applicationID,
		IndividualDocumentResults: results,
		CrossValidationReport:     crossVal,
		FinalSummaryReport:        summary,
	}, nil
}

func (a *Aggregator) crossValidate(ctx context.Context, results []models.DocumentResult) (models.CrossValidationReport, error) {
	condensed := make([]condensedDocument, 0, len(results))
	for _, r := range results {
		data := make(map[string]string, len(r.ExtractedData))
		for field, extraction := range r.ExtractedData {
			data[field] = extraction.Value
		}
		condensed = append(condensed, condensedDocument{
			Filename:     r.Filename,
			DocumentType: r.DocumentType,
			Data:         data,
		})
	}

	payload, err := json.MarshalIndent(condensed, "", "  ")
	if err != nil {
		return models.CrossValidationReport{}, fmt.Errorf("failed to encode condensed documents: %w", err)
	}

	raw, err := a.vision.CrossValidate(ctx, string(payload))
	if err != nil {
		return models.CrossValidationReport{}, err
	}

	var report models.CrossValidationReport
	if obj := jsonutil.ExtractObject(raw); obj == "" || json.Unmarshal([]byte(obj), &report) != nil {
		// Parse failures here fall back; only transport errors abort.
		a.logger.Warn("Cross-validation response could not be parsed, using fallback",
			zap.String("raw_response", raw))
		return models.CrossValidationReport{
			OverallSummary:   "Cross-validation returned an invalid format.",
			ValidationPassed: false,
		}, nil
	}
	return report, nil
}

func (a *Aggregator) summarize(ctx context.Context, results []models.DocumentResult, crossVal models.CrossValidationReport) (models.SummaryReport, error) {
	complete := struct {
		IndividualDocuments    []models.DocumentResult      `json:"individual_documents"`
		InitialCrossValidation models.CrossValidationReport `json:"initial_cross_validation"`
	}{
		IndividualDocuments:    results,
		InitialCrossValidation: crossVal,
	}

	payload, err := json.MarshalIndent(complete, "", "  ")
	if err != nil {
		return models.SummaryReport{}, fmt.Errorf("failed to encode application data: %w", err)
	}

	raw, err := a.vision.Summarize(ctx, string(payload))
	if err != nil {
		return models.SummaryReport{}, err
	}

	var report models.SummaryReport
	if obj := jsonutil.ExtractObject(raw); obj == "" || json.Unmarshal([]byte(obj), &report) != nil {
		a.logger.Warn("Summary response could not be parsed, using fallback",
			zap.String("raw_response", raw))
		return models.SummaryReport{
			OverallSummary:      "The final summary report could not be generated.",
			FinalRecommendation: models.RecommendationError,
		}, nil
	}
	return report, nil
}
