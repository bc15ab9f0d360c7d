// Package report derives the flattened tabular view and accuracy metrics
// from the correction ledger's records.
package report

import (
	"sort"
	"strconv"
	"strings"

	"github.com/amitvarma/ai-loan-processor/internal/models"
)

// Field-name aliases checked, in order, when averaging income and tax
// figures. Different document types name the same concept differently.
var (
	incomeAliases = []string{"Gross Income", "Total Income"}
	taxAliases    = []string{"Total Taxes", "Taxes Paid"}
)

// Metrics are the key performance indicators computed over active records.
type Metrics struct {
	TotalActiveDocuments int      `json:"total_active_documents"`
	AverageGrossIncome   *float64 `json:"average_gross_income"`
	AverageTotalTaxes    *float64 `json:"average_total_taxes"`
	AIAccuracyPercent    float64  `json:"ai_accuracy_percent"`
	ComparableFields     int      `json:"comparable_fields"`
	MatchingFields       int      `json:"matching_fields"`
}

// ComputeMetrics derives KPIs from the given active records. Accuracy is the
// share of (ai, verified) value pairs that match after trimming whitespace
// and ignoring case, over all fields present on both sides.
func ComputeMetrics(active []models.VerifiedDocumentRecord) Metrics {
	m := Metrics{TotalActiveDocuments: len(active)}

	for _, rec := range active {
		for field, verified := range rec.VerifiedData {
			ai, ok := lookupField(rec.AIData, field)
			if !ok {
				continue
			}
			m.ComparableFields++
			if strings.EqualFold(strings.TrimSpace(ai), strings.TrimSpace(verified)) {
				m.MatchingFields++
			}
		}
	}

	if m.ComparableFields > 0 {
		m.AIAccuracyPercent = float64(m.MatchingFields) / float64(m.ComparableFields) * 100
	}

	m.AverageGrossIncome = averageByAlias(active, incomeAliases)
	m.AverageTotalTaxes = averageByAlias(active, taxAliases)
	return m
}

// averageByAlias picks the first alias any record's verified data carries and
// returns the mean of the numeric-parsable values under it, or nil when no
// alias matches or nothing parses.
func averageByAlias(records []models.VerifiedDocumentRecord, aliases []string) *float64 {
	for _, alias := range aliases {
		sum := 0.0
		count := 0
		found := false

		for _, rec := range records {
			value, ok := lookupField(rec.VerifiedData, alias)
			if !ok {
				continue
			}
			found = true
			if f, ok := parseNumeric(value); ok {
				sum += f
				count++
			}
		}

		if found {
			if count == 0 {
				return nil
			}
			avg := sum / float64(count)
			return &avg
		}
	}
	return nil
}

// lookupField finds a field by case-insensitive name.
func lookupField(data map[string]string, field string) (string, bool) {
	if v, ok := data[field]; ok {
		return v, true
	}
	for k, v := range data {
		if strings.EqualFold(k, field) {
			return v, true
		}
	}
	return "", false
}

// parseNumeric parses a human-readable amount, tolerating currency symbols
// and thousands separators.
func parseNumeric(s string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', '₹', '$', ' ':
			return -1
		}
		return r
	}, strings.TrimSpace(s))

	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Row is one flattened record: fixed identity columns plus ai_/verified_
// prefixed field columns, keyed the way the reporting dashboard displays
// them.
type Row map[string]any

// Flatten converts ledger records into display rows. Field names become
// lowercase snake_case column names with an ai_ or verified_ prefix.
func Flatten(records []models.VerifiedDocumentRecord) []Row {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		row := Row{
			"id":             rec.ID,
			"is_active":      rec.IsActive,
			"application_id": rec.ApplicationID,
			"filename":       rec.Filename,
		}
		for field, value := range rec.AIData {
			row["ai_"+columnName(field)] = value
		}
		for field, value := range rec.VerifiedData {
			row["verified_"+columnName(field)] = value
		}
		rows = append(rows, row)
	}
	return rows
}

// Columns returns the column order for a flattened table: the fixed identity
// columns first, then every remaining column sorted by name.
func Columns(rows []Row) []string {
	fixed := []string{"id", "is_active", "application_id", "filename"}
	seen := make(map[string]bool, len(fixed))
	for _, c := range fixed {
		seen[c] = true
	}

	var rest []string
	for _, row := range rows {
		for col := range row {
			if !seen[col] {
				seen[col] = true
				rest = append(rest, col)
			}
		}
	}
	sort.Strings(rest)
	return append(fixed, rest...)
}

func columnName(field string) string {
	return strings.ToLower(strings.ReplaceAll(field, " ", "_"))
}
