package models

import "time"

// VerifiedDocumentRecord is one row of the human-correction ledger.
//
// The ledger is an append-only temporal log: each correction produces a new
// row and deactivates the previous one, so for a given (application_id,
// filename) key at most one row is active at any time. EndDate is nil exactly
// when the row is active. Inactive rows are kept for audit and excluded from
// live accuracy metrics.
type VerifiedDocumentRecord struct {
	ID            string            `json:"id"`
	ApplicationID string            `json:"application_id"`
	Filename      string            `json:"filename"`
	AIData        map[string]string `json:"ai_data"`
	VerifiedData  map[string]string `json:"verified_data"`
	StartDate     time.Time         `json:"start_date"`
	EndDate       *time.Time        `json:"end_date"`
	IsActive      bool              `json:"is_active"`
}
