package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amitvarma/ai-loan-processor/internal/models"
)

// MockDocumentProcessor mocks the DocumentProcessor interface
type MockDocumentProcessor struct {
	mock.Mock
}

func (m *MockDocumentProcessor) ProcessDocument(ctx context.Context, file UploadedFile) (*models.DocumentResult, error) {
	args := m.Called(ctx, file)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DocumentResult), args.Error(1)
}

func payslipResult() *models.DocumentResult {
	return &models.DocumentResult{
		Filename:     "payslip.png",
		DocumentType: models.DocTypePayslip,
		ExtractedData: map[string]models.FieldExtraction{
			"Applicant Name": {Value: "John Doe", Confidence: 0.97},
			"Gross Income":   {Value: "85000", Confidence: 0.9},
		},
		Analysis: map[string]any{"notes": "clear scan"},
	}
}

func TestAggregator_ProcessApplication(t *testing.T) {
	ctx := context.Background()

	t.Run("combines documents with both reduction passes", func(t *testing.T) {
		processor := new(MockDocumentProcessor)
		vision := new(MockVisionClient)

		file := UploadedFile{Name: "payslip.png", Data: []byte{1}}
		processor.On("ProcessDocument", ctx, file).Return(payslipResult(), nil)
		vision.On("CrossValidate", ctx, mock.Anything).Return(
			`Preamble text {"overall_summary": "Names match.", "validation_passed": true} trailing`, nil)
		vision.On("Summarize", ctx, mock.Anything).Return(
			`{"overall_summary": "Stable income.", "key_financial_metrics": ["Gross Income: 85000"], "consolidated_red_flags": [], "final_recommendation": "Approve"}`, nil)

		a := NewAggregator(processor, vision, zap.NewNop())
		result, err := a.ProcessApplication(ctx, []UploadedFile{file})

		require.NoError(t, err)
		_, parseErr := uuid.Parse(result.ApplicationID)
		assert.NoError(t, parseErr)
		require.Len(t, result.IndividualDocumentResults, 1)
		assert.Equal(t, models.DocTypePayslip, result.IndividualDocumentResults[0].DocumentType)
		assert.True(t, result.CrossValidationReport.ValidationPassed)
		assert.Equal(t, "Names match.", result.CrossValidationReport.OverallSummary)
		assert.Equal(t, models.RecommendationApprove, result.FinalSummaryReport.FinalRecommendation)
		assert.Equal(t, []string{"Gross Income: 85000"}, result.FinalSummaryReport.KeyFinancialMetrics)
	})

	t.Run("cross-validation input drops confidences and analysis", func(t *testing.T) {
		processor := new(MockDocumentProcessor)
		vision := new(MockVisionClient)

		file := UploadedFile{Name: "payslip.png"}
		processor.On("ProcessDocument", ctx, file).Return(payslipResult(), nil)

		var condensed string
		vision.On("CrossValidate", ctx, mock.Anything).Run(func(args mock.Arguments) {
			condensed = args.String(1)
		}).Return(`{"overall_summary": "ok", "validation_passed": true}`, nil)
		vision.On("Summarize", ctx, mock.Anything).Return(
			`{"overall_summary": "s", "final_recommendation": "Approve"}`, nil)

		a := NewAggregator(processor, vision, zap.NewNop())
		_, err := a.ProcessApplication(ctx, []UploadedFile{file})

		require.NoError(t, err)
		assert.Contains(t, condensed, "John Doe")
		assert.Contains(t, condensed, "payslip.png")
		assert.NotContains(t, condensed, "confidence")
		assert.NotContains(t, condensed, "clear scan")
	})

	t.Run("unparsable cross-validation response recovers with fallback", func(t *testing.T) {
		processor := new(MockDocumentProcessor)
		vision := new(MockVisionClient)

		file := UploadedFile{Name: "payslip.png"}
		processor.On("ProcessDocument", ctx, file).Return(payslipResult(), nil)
		vision.On("CrossValidate", ctx, mock.Anything).Return("no structured output here", nil)
		vision.On("Summarize", ctx, mock.Anything).Return(
			`{"overall_summary": "s", "final_recommendation": "Manual Review Required"}`, nil)

		a := NewAggregator(processor, vision, zap.NewNop())
		result, err := a.ProcessApplication(ctx, []UploadedFile{file})

		require.NoError(t, err)
		assert.False(t, result.CrossValidationReport.ValidationPassed)
		assert.NotEmpty(t, result.CrossValidationReport.OverallSummary)
		// One stage's malformed output must not corrupt the other stage.
		assert.Equal(t, models.RecommendationManualReview, result.FinalSummaryReport.FinalRecommendation)
	})

	t.Run("unparsable summary response recovers with error recommendation", func(t *testing.T) {
		processor := new(MockDocumentProcessor)
		vision := new(MockVisionClient)

		file := UploadedFile{Name: "payslip.png"}
		processor.On("ProcessDocument", ctx, file).Return(payslipResult(), nil)
		vision.On("CrossValidate", ctx, mock.Anything).Return(
			`{"overall_summary": "ok", "validation_passed": true}`, nil)
		vision.On("Summarize", ctx, mock.Anything).Return("total nonsense", nil)

		a := NewAggregator(processor, vision, zap.NewNop())
		result, err := a.ProcessApplication(ctx, []UploadedFile{file})

		require.NoError(t, err)
		assert.Equal(t, models.RecommendationError, result.FinalSummaryReport.FinalRecommendation)
		assert.True(t, result.CrossValidationReport.ValidationPassed)
	})

	t.Run("single document failure aborts the whole package", func(t *testing.T) {
		processor := new(MockDocumentProcessor)
		vision := new(MockVisionClient)

		good := UploadedFile{Name: "payslip.png"}
		bad := UploadedFile{Name: "blurry.png"}
		processor.On("ProcessDocument", ctx, good).Return(payslipResult(), nil)
		processor.On("ProcessDocument", ctx, bad).Return(nil, errors.New("extraction failed"))

		a := NewAggregator(processor, vision, zap.NewNop())
		result, err := a.ProcessApplication(ctx, []UploadedFile{good, bad})

		assert.Nil(t, result)
		assert.EqualError(t, err, "extraction failed")
		vision.AssertNotCalled(t, "CrossValidate", mock.Anything, mock.Anything)
	})

	t.Run("documents are processed in upload order", func(t *testing.T) {
		processor := new(MockDocumentProcessor)
		vision := new(MockVisionClient)

		var order []string
		for _, name := range []string{"a.png", "b.png", "c.png"} {
			file := UploadedFile{Name: name}
			processor.On("ProcessDocument", ctx, file).Run(func(args mock.Arguments) {
				order = append(order, args.Get(1).(UploadedFile).Name)
			}).Return(&models.DocumentResult{Filename: name, DocumentType: models.DocTypeOther}, nil)
		}
		vision.On("CrossValidate", ctx, mock.Anything).Return(
			`{"overall_summary": "ok", "validation_passed": true}`, nil)
		vision.On("Summarize", ctx, mock.Anything).Return(
			`{"overall_summary": "s", "final_recommendation": "Approve"}`, nil)

		a := NewAggregator(processor, vision, zap.NewNop())
		result, err := a.ProcessApplication(ctx, []UploadedFile{{Name: "a.png"}, {Name: "b.png"}, {Name: "c.png"}})

		require.NoError(t, err)
		assert.Equal(t, []string{"a.png", "b.png", "c.png"}, order)
		assert.Equal(t, "a.png", result.IndividualDocumentResults[0].Filename)
		assert.Equal(t, "c.png", result.IndividualDocumentResults[2].Filename)
	})
}
