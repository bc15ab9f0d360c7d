package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// DocumentType is the classification tag assigned to an uploaded document.
// The classifier may return text outside the known taxonomy; such responses
// are preserved verbatim so downstream code can still display them, and the
// extraction prompt lookup falls back to the default instruction.
type DocumentType string

const (
	DocTypePayslip        DocumentType = "Payslip"
	DocTypeTaxForm        DocumentType = "Tax Form"
	DocTypePANCard        DocumentType = "PAN Card"
	DocTypeAadhaarCard    DocumentType = "Aadhaar Card"
	DocTypeDrivingLicense DocumentType = "Driving License"
	DocTypeBankStatement  DocumentType = "Bank Statement"
	DocTypeForm16         DocumentType = "Form 16"
	DocTypeITR            DocumentType = "ITR"
	DocTypeOther          DocumentType = "Other"
)

// KnownDocumentTypes lists the closed classification taxonomy.
var KnownDocumentTypes = []DocumentType{
	DocTypePayslip,
	DocTypeTaxForm,
	DocTypePANCard,
	DocTypeAadhaarCard,
	DocTypeDrivingLicense,
	DocTypeBankStatement,
	DocTypeForm16,
	DocTypeITR,
	DocTypeOther,
}

// ParseDocumentType maps a raw classifier response to a taxonomy tag.
// Unrecognized responses are kept as-is.
func ParseDocumentType(raw string) DocumentType {
	for _, t := range KnownDocumentTypes {
		if string(t) == raw {
			return t
		}
	}
	return DocumentType(raw)
}

// Known reports whether the tag belongs to the closed taxonomy.
func (t DocumentType) Known() bool {
	for _, k := range KnownDocumentTypes {
		if t == k {
			return true
		}
	}
	return false
}

// FieldExtraction is one extracted field: the value as read from the document
// and the model's self-assessed confidence in [0,1]. Confidence is advisory
// and passed through verbatim.
type FieldExtraction struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// UnmarshalJSON normalizes the shapes the model emits for a field: sometimes a
// {"value": ..., "confidence": ...} object, sometimes a bare string or number.
// Ambiguous shapes must not propagate past this boundary.
func (f *FieldExtraction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f.Value = s
		f.Confidence = 0
		return nil
	}

	var obj struct {
		Value      any `json:"value"`
		Confidence any `json:"confidence"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		f.Value = coerceString(obj.Value)
		f.Confidence = coerceFloat(obj.Confidence)
		return nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f.Value = coerceString(v)
	f.Confidence = 0
	return nil
}

func coerceString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func coerceFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// DocumentResult is the per-document output of the processing pipeline.
// Immutable once produced; not persisted until a human verifies it.
type DocumentResult struct {
	Filename      string                     `json:"filename"`
	DocumentType  DocumentType               `json:"document_type"`
	ExtractedData map[string]FieldExtraction `json:"extracted_data"`
	Analysis      map[string]any             `json:"analysis,omitempty"`
}

// CrossValidationReport is the structured verdict of the cross-document
// consistency check.
type CrossValidationReport struct {
	OverallSummary   string `json:"overall_summary"`
	ValidationPassed bool   `json:"validation_passed"`
}

// Final recommendation values produced by the summary reduction pass.
const (
	RecommendationApprove      = "Approve"
	RecommendationDeny         = "Deny"
	RecommendationManualReview = "Manual Review Required"
	RecommendationError        = "Error"
)

// SummaryReport is the application-level underwriting summary.
type SummaryReport struct {
	OverallSummary       string   `json:"overall_summary"`
	KeyFinancialMetrics  []string `json:"key_financial_metrics"`
	ConsolidatedRedFlags []string `json:"consolidated_red_flags"`
	FinalRecommendation  string   `json:"final_recommendation"`
}

// ApplicationResult bundles everything produced for one uploaded package.
// The application ID is the join key for later correction records.
type ApplicationResult struct {
	ApplicationID             string                `json:"application_id"`
	IndividualDocumentResults []DocumentResult      `json:"individual_document_results"`
	CrossValidationReport     CrossValidationReport `json:"cross_validation_report"`
	FinalSummaryReport        SummaryReport         `json:"final_summary_report"`
}
