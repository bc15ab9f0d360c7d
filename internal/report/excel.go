package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/amitvarma/ai-loan-processor/internal/models"
)

const exportSheetName = "Verified Documents"

// ExcelExporter writes the flattened correction history as a spreadsheet.
type ExcelExporter struct {
	logger *zap.Logger
}

// NewExcelExporter creates a new exporter.
func NewExcelExporter(logger *zap.Logger) *ExcelExporter {
	return &ExcelExporter{logger: logger}
}

// Export renders records into an xlsx workbook and returns its bytes.
func (e *ExcelExporter) Export(records []models.VerifiedDocumentRecord) ([]byte, error) {
	rows := Flatten(records)
	columns := Columns(rows)

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}

	for col, name := range columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(exportSheetName, cell, name); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, row := range rows {
		for col, name := range columns {
			value, ok := row[name]
			if !ok {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(exportSheetName, cell, value); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}

	e.logger.Info("Report exported",
		zap.Int("records", len(records)),
		zap.Int("columns", len(columns)))
	return buf.Bytes(), nil
}
