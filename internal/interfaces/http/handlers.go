package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/amitvarma/ai-loan-processor/internal/imaging"
	"github.com/amitvarma/ai-loan-processor/internal/models"
	"github.com/amitvarma/ai-loan-processor/internal/pipeline"
	"github.com/amitvarma/ai-loan-processor/internal/report"
	"github.com/amitvarma/ai-loan-processor/internal/vision"
)

// ApplicationProcessor runs a full application package through the pipeline.
type ApplicationProcessor interface {
	ProcessApplication(ctx context.Context, files []pipeline.UploadedFile) (*models.ApplicationResult, error)
}

// LedgerRepository is the verified-document correction ledger.
type LedgerRepository interface {
	SaveVerified(ctx context.Context, applicationID, filename string, aiData, verifiedData map[string]string) (string, error)
	ListActive(ctx context.Context) ([]models.VerifiedDocumentRecord, error)
	ListAll(ctx context.Context) ([]models.VerifiedDocumentRecord, error)
	DeleteAll(ctx context.Context) error
}

// ReportExporter renders ledger records into a spreadsheet.
type ReportExporter interface {
	Export(records []models.VerifiedDocumentRecord) ([]byte, error)
}

// Handlers holds all HTTP request handlers.
type Handlers struct {
	processor ApplicationProcessor
	ledger    LedgerRepository
	exporter  ReportExporter
	logger    *zap.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(processor ApplicationProcessor, ledger LedgerRepository, exporter ReportExporter, logger *zap.Logger) *Handlers {
	return &Handlers{
		processor: processor,
		ledger:    ledger,
		exporter:  exporter,
		logger:    logger,
	}
}

// HealthCheck reports service liveness.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ProcessApplication accepts a multipart upload of application documents and
// returns the full pipeline result.
func (h *Handlers) ProcessApplication(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid multipart form: " + err.Error()})
		return
	}

	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "No files uploaded."})
		return
	}

	files := make([]pipeline.UploadedFile, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("Could not read uploaded file %s.", fh.Filename)})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("Could not read uploaded file %s.", fh.Filename)})
			return
		}
		files = append(files, pipeline.UploadedFile{Name: fh.Filename, Data: data})
	}

	result, err := h.processor.ProcessApplication(c.Request.Context(), files)
	if err != nil {
		h.logger.Error("Application processing failed",
			zap.Int("file_count", len(files)),
			zap.Error(err))
		h.writeProcessingError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handlers) writeProcessingError(c *gin.Context, err error) {
	var unsupported *imaging.UnsupportedFileTypeError
	if errors.As(err, &unsupported) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": unsupported.Error()})
		return
	}
	if errors.Is(err, imaging.ErrConversionFailed) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if errors.Is(err, vision.ErrServiceUnavailable) {
		c.JSON(http.StatusBadGateway, gin.H{"detail": err.Error()})
		return
	}
	var malformed *pipeline.MalformedOutputError
	if errors.As(err, &malformed) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"detail":       malformed.Error(),
			"raw_response": malformed.RawResponse,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
}

// SaveVerifiedRequest is the payload for persisting a human-verified document.
type SaveVerifiedRequest struct {
	ApplicationID  string                `json:"application_id" binding:"required"`
	Filename       string                `json:"filename" binding:"required"`
	OriginalAIData models.DocumentResult `json:"original_ai_data"`
	VerifiedData   map[string]string     `json:"verified_data" binding:"required"`
}

// SaveVerifiedDocument persists a corrected document, superseding any prior
// version for the same application and filename.
func (h *Handlers) SaveVerifiedDocument(c *gin.Context) {
	var req SaveVerifiedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body: " + err.Error()})
		return
	}

	aiData := make(map[string]string, len(req.OriginalAIData.ExtractedData))
	for field, extraction := range req.OriginalAIData.ExtractedData {
		aiData[field] = extraction.Value
	}

	id, err := h.ledger.SaveVerified(c.Request.Context(), req.ApplicationID, req.Filename, aiData, req.VerifiedData)
	if err != nil {
		h.logger.Error("Failed to save verified document",
			zap.String("application_id", req.ApplicationID),
			zap.String("filename", req.Filename),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": fmt.Sprintf("Verified data for %s saved with ID %s.", req.Filename, id),
	})
}

// GetReportData returns the active (current) verified record per document.
func (h *Handlers) GetReportData(c *gin.Context) {
	records, err := h.ledger.ListActive(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load report data", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

// GetReportHistory returns every verified record, superseded versions included.
func (h *Handlers) GetReportHistory(c *gin.Context) {
	records, err := h.ledger.ListAll(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load report history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

// GetReportMetrics returns aggregate KPIs over the active records.
func (h *Handlers) GetReportMetrics(c *gin.Context) {
	records, err := h.ledger.ListActive(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load records for metrics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report.ComputeMetrics(records))
}

// ExportReport streams the active records as an Excel workbook.
func (h *Handlers) ExportReport(c *gin.Context) {
	records, err := h.ledger.ListActive(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load records for export", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	data, err := h.exporter.Export(records)
	if err != nil {
		h.logger.Error("Failed to build report workbook", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	filename := fmt.Sprintf("verified_report_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// DeleteAllData wipes the correction ledger.
func (h *Handlers) DeleteAllData(c *gin.Context) {
	if err := h.ledger.DeleteAll(c.Request.Context()); err != nil {
		h.logger.Error("Failed to delete ledger data", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "All verified document data deleted.",
	})
}
