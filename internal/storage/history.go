/**
 * PostgreSQL Scan History Store
 *
 * Persists completed menu scan analyses for per-user history.
 * Failures to record history are non-fatal for the scan flow; callers
 * log and continue.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/menulens/menuscan-worker/internal/analysis"
)

// HistoryStore handles scan history persistence
type HistoryStore struct {
	db *sql.DB
}

// ScanRecord represents one completed scan for a user
type ScanRecord struct {
	ID               string
	UserID           string
	ImageHash        string
	Locale           string
	OverallStatus    string
	ItemCount        int
	WarningCount     int
	ProcessingTimeMs int64
	ErrorCode        string
	Result           *analysis.Result
}

// NewHistoryStore creates a new scan history store
func NewHistoryStore(databaseURL string) (*HistoryStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &HistoryStore{db: db}, nil
}

// RecordScan stores or updates a scan record. Re-submitting the same scan ID
// overwrites the previous row, so queue retries stay idempotent.
func (h *HistoryStore) RecordScan(ctx context.Context, record *ScanRecord) error {
	if record.ID == "" {
		return fmt.Errorf("scan ID is required")
	}

	var resultJSON []byte
	if record.Result != nil {
		var err error
		resultJSON, err = json.Marshal(record.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
	}

	query := `
		INSERT INTO menuscan.scan_history (
			id, user_id, image_hash, locale,
			overall_status, item_count, warning_count,
			processing_time_ms, error_code, result,
			created_at, updated_at
		) VALUES (
			$1::uuid, COALESCE(NULLIF($2, ''), 'anonymous'), $3, COALESCE(NULLIF($4, ''), 'en'),
			NULLIF($5, ''), $6, $7,
			NULLIF($8, 0), NULLIF($9, ''), COALESCE($10::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			overall_status = NULLIF(EXCLUDED.overall_status, ''),
			item_count = EXCLUDED.item_count,
			warning_count = EXCLUDED.warning_count,
			processing_time_ms = COALESCE(NULLIF(EXCLUDED.processing_time_ms, 0), menuscan.scan_history.processing_time_ms),
			error_code = NULLIF(EXCLUDED.error_code, ''),
			result = COALESCE(EXCLUDED.result, menuscan.scan_history.result),
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err := h.db.QueryRowContext(
		ctx,
		query,
		record.ID,
		record.UserID,
		record.ImageHash,
		record.Locale,
		record.OverallStatus,
		record.ItemCount,
		record.WarningCount,
		record.ProcessingTimeMs,
		record.ErrorCode,
		resultJSON,
	).Scan(&returnedID)

	if err != nil {
		return fmt.Errorf("failed to record scan (scan=%s, status=%s): %w",
			record.ID, record.OverallStatus, err)
	}

	return nil
}

// GetScan retrieves a single scan record by ID
func (h *HistoryStore) GetScan(ctx context.Context, scanID string) (*ScanRecord, error) {
	if scanID == "" {
		return nil, fmt.Errorf("scan ID is required")
	}

	query := `
		SELECT
			id, user_id, image_hash, locale,
			overall_status, item_count, warning_count,
			processing_time_ms, error_code, result
		FROM menuscan.scan_history
		WHERE id = $1::uuid
	`

	var (
		record           ScanRecord
		overallStatus    sql.NullString
		processingTimeMs sql.NullInt64
		errorCode        sql.NullString
		resultJSON       []byte
	)

	err := h.db.QueryRowContext(ctx, query, scanID).Scan(
		&record.ID, &record.UserID, &record.ImageHash, &record.Locale,
		&overallStatus, &record.ItemCount, &record.WarningCount,
		&processingTimeMs, &errorCode, &resultJSON,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scan not found: %s", scanID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}

	record.OverallStatus = overallStatus.String
	record.ProcessingTimeMs = processingTimeMs.Int64
	record.ErrorCode = errorCode.String

	if len(resultJSON) > 0 && string(resultJSON) != "{}" {
		var result analysis.Result
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		record.Result = &result
	}

	return &record, nil
}

// ListScans returns a user's most recent scans, newest first
func (h *HistoryStore) ListScans(ctx context.Context, userID string, limit int) ([]*ScanRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT
			id, user_id, image_hash, locale,
			overall_status, item_count, warning_count,
			processing_time_ms, error_code
		FROM menuscan.scan_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := h.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var records []*ScanRecord
	for rows.Next() {
		var (
			record           ScanRecord
			overallStatus    sql.NullString
			processingTimeMs sql.NullInt64
			errorCode        sql.NullString
		)
		if err := rows.Scan(
			&record.ID, &record.UserID, &record.ImageHash, &record.Locale,
			&overallStatus, &record.ItemCount, &record.WarningCount,
			&processingTimeMs, &errorCode,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		record.OverallStatus = overallStatus.String
		record.ProcessingTimeMs = processingTimeMs.Int64
		record.ErrorCode = errorCode.String
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scans: %w", err)
	}

	return records, nil
}

// Ping checks database connectivity
func (h *HistoryStore) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// Close closes the database connection
func (h *HistoryStore) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (h *HistoryStore) GetStats() sql.DBStats {
	return h.db.Stats()
}
