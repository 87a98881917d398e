package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/validation.report/internal/vru"
)

// StoredReport is a persisted validation report row. The scalar columns
// duplicate fields from the JSON blob so listings never unmarshal reports.
type StoredReport struct {
	ReportID  string               `json:"report_id"`
	SessionID string               `json:"session_id"`
	Report    vru.ValidationReport `json:"report"`
	CreatedAt int64                `json:"created_at"` // unix nanos
}

// ReportStore provides persistence for completed validation reports.
type ReportStore struct {
	db *sql.DB
}

// NewReportStore creates a new ReportStore.
func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

// Insert persists a validation report and returns its generated report ID.
func (s *ReportStore) Insert(ctx context.Context, report *vru.ValidationReport) (string, error) {
	reportID := uuid.New().String()

	blob, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	noData := 0
	if report.NoData {
		noData = 1
	}

	err = retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO validation_reports (
				report_id, session_id, method, tolerance_ms,
				overall_status, overall_score,
				true_positives, false_positives, false_negatives,
				no_data, report_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			reportID, report.SessionID, report.Method, report.ToleranceMs,
			string(report.OverallStatus), report.OverallScore,
			report.Overall.TruePositives, report.Overall.FalsePositives, report.Overall.FalseNegatives,
			noData, string(blob), report.CreatedAt.UnixNano(),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("insert report for session %s: %w", report.SessionID, err)
	}
	return reportID, nil
}

// Get returns a single report by report ID.
func (s *ReportStore) Get(ctx context.Context, reportID string) (*StoredReport, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT report_id, session_id, report_json, created_at
		FROM validation_reports
		WHERE report_id = ?`, reportID)

	r, err := scanStoredReport(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("report %s not found", reportID)
	}
	return r, err
}

// Latest returns the most recent report for a session, or ErrSessionNotFound
// when the session has never completed a validation.
func (s *ReportStore) Latest(ctx context.Context, sessionID string) (*StoredReport, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT report_id, session_id, report_json, created_at
		FROM validation_reports
		WHERE session_id = ?
		ORDER BY created_at DESC
		LIMIT 1`, sessionID)

	r, err := scanStoredReport(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", sessionID, vru.ErrSessionNotFound)
	}
	return r, err
}

// ReportListing is one row of a report listing; scalar columns only.
type ReportListing struct {
	ReportID      string  `json:"report_id"`
	SessionID     string  `json:"session_id"`
	Method        string  `json:"method"`
	OverallStatus string  `json:"overall_status"`
	OverallScore  float64 `json:"overall_score"`
	CreatedAt     int64   `json:"created_at"`
}

// List returns the most recent reports across all sessions.
func (s *ReportStore) List(ctx context.Context, limit int) ([]ReportListing, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT report_id, session_id, method, overall_status, overall_score, created_at
		FROM validation_reports
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var listings []ReportListing
	for rows.Next() {
		var l ReportListing
		if err := rows.Scan(&l.ReportID, &l.SessionID, &l.Method,
			&l.OverallStatus, &l.OverallScore, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// Delete removes a report by ID.
func (s *ReportStore) Delete(ctx context.Context, reportID string) error {
	return retryOnBusy(func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM validation_reports WHERE report_id = ?`, reportID)
		if err != nil {
			return fmt.Errorf("delete report: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("report %s not found", reportID)
		}
		return nil
	})
}

func scanStoredReport(row *sql.Row) (*StoredReport, error) {
	var r StoredReport
	var blob string
	if err := row.Scan(&r.ReportID, &r.SessionID, &blob, &r.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan report: %w", err)
	}
	if err := json.Unmarshal([]byte(blob), &r.Report); err != nil {
		return nil, fmt.Errorf("unmarshal report %s: %w", r.ReportID, err)
	}
	return &r, nil
}
