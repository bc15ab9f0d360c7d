// Package repository implements the correction ledger: persistence of
// human-verified document corrections with temporal versioning.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/amitvarma/ai-loan-processor/internal/models"
	"github.com/amitvarma/ai-loan-processor/pkg/database"
)

// VerifiedDocumentRepository handles verified document records.
type VerifiedDocumentRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewVerifiedDocumentRepository creates a new repository.
func NewVerifiedDocumentRepository(db *database.DB, logger *zap.Logger) *VerifiedDocumentRepository {
	return &VerifiedDocumentRepository{db: db, logger: logger}
}

// SaveVerified records a human-approved correction. Any existing active
// record for (applicationID, filename) is deactivated with an end timestamp,
// then a fresh active record is inserted. Both steps run in one transaction
// so the "at most one active record per key" invariant holds under
// concurrent submissions. Returns the new record's storage identifier.
func (r *VerifiedDocumentRepository) SaveVerified(ctx context.Context, applicationID, filename string, aiData, verifiedData map[string]string) (string, error) {
	aiJSON, err := json.Marshal(emptyIfNil(aiData))
	if err != nil {
		return "", fmt.Errorf("failed to encode ai data: %w", err)
	}
	verifiedJSON, err := json.Marshal(emptyIfNil(verifiedData))
	if err != nil {
		return "", fmt.Errorf("failed to encode verified data: %w", err)
	}

	now := time.Now().UTC()
	var id int64

	err = r.db.WithTransaction(func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE verified_documents
			SET is_active = 0, end_date = ?
			WHERE application_id = ? AND filename = ? AND is_active = 1
		`, now, applicationID, filename)
		if err != nil {
			return fmt.Errorf("failed to deactivate previous record: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO verified_documents (
				application_id, filename, ai_data, verified_data,
				start_date, end_date, is_active
			) VALUES (?, ?, ?, ?, ?, NULL, 1)
		`, applicationID, filename, string(aiJSON), string(verifiedJSON), now)
		if err != nil {
			return fmt.Errorf("failed to insert verified record: %w", err)
		}

		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get record id: %w", err)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save verified document",
			zap.String("application_id", applicationID),
			zap.String("filename", filename),
			zap.Error(err))
		return "", err
	}

	r.logger.Info("Verified document saved",
		zap.String("application_id", applicationID),
		zap.String("filename", filename),
		zap.Int64("record_id", id))
	return strconv.FormatInt(id, 10), nil
}

// ListActive returns every record with is_active = true.
func (r *VerifiedDocumentRepository) ListActive(ctx context.Context) ([]models.VerifiedDocumentRecord, error) {
	return r.list(ctx, `
		SELECT id, application_id, filename, ai_data, verified_data,
			start_date, end_date, is_active
		FROM verified_documents
		WHERE is_active = 1
	`)
}

// ListAll returns the full history, inactive versions included.
func (r *VerifiedDocumentRepository) ListAll(ctx context.Context) ([]models.VerifiedDocumentRecord, error) {
	return r.list(ctx, `
		SELECT id, application_id, filename, ai_data, verified_data,
			start_date, end_date, is_active
		FROM verified_documents
		ORDER BY id
	`)
}

// DeleteAll irreversibly removes every record, active or not.
func (r *VerifiedDocumentRepository) DeleteAll(ctx context.Context) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM verified_documents")
	if err != nil {
		r.logger.Error("Failed to delete verified documents", zap.Error(err))
		return fmt.Errorf("failed to delete verified documents: %w", err)
	}

	deleted, _ := result.RowsAffected()
	r.logger.Info("All verified documents deleted", zap.Int64("rows", deleted))
	return nil
}

func (r *VerifiedDocumentRepository) list(ctx context.Context, query string) ([]models.VerifiedDocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to query verified documents", zap.Error(err))
		return nil, fmt.Errorf("failed to query verified documents: %w", err)
	}
	defer rows.Close()

	var records []models.VerifiedDocumentRecord
	for rows.Next() {
		var (
			rec          models.VerifiedDocumentRecord
			id           int64
			aiJSON       string
			verifiedJSON string
			endDate      sql.NullTime
		)

		if err := rows.Scan(&id, &rec.ApplicationID, &rec.Filename, &aiJSON,
			&verifiedJSON, &rec.StartDate, &endDate, &rec.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan verified record: %w", err)
		}

		rec.ID = strconv.FormatInt(id, 10)
		if endDate.Valid {
			t := endDate.Time
			rec.EndDate = &t
		}
		if err := json.Unmarshal([]byte(aiJSON), &rec.AIData); err != nil {
			return nil, fmt.Errorf("failed to decode ai data for record %d: %w", id, err)
		}
		if err := json.Unmarshal([]byte(verifiedJSON), &rec.VerifiedData); err != nil {
			return nil, fmt.Errorf("failed to decode verified data for record %d: %w", id, err)
		}

		records = append(records, rec)
	}
	return records, rows.Err()
}

func emptyIfNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
