package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/validation.report/internal/vru"
)

// EventStore reads and writes per-session event streams. Reads return events
// ordered by timestamp ascending, which is the ordering the orchestrator
// verifies but never repairs.
type EventStore struct {
	db *sql.DB
}

// NewEventStore creates a new EventStore.
func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// GroundTruth returns the session's ground truth stream ordered by timestamp.
func (s *EventStore) GroundTruth(ctx context.Context, sessionID string) ([]vru.GroundTruthObject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, class_label, confidence, box_x, box_y, box_w, box_h
		FROM ground_truth_objects
		WHERE session_id = ?
		ORDER BY timestamp ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query ground truth: %w", err)
	}
	defer rows.Close()

	var objects []vru.GroundTruthObject
	for rows.Next() {
		var o vru.GroundTruthObject
		if err := rows.Scan(&o.ID, &o.Timestamp, &o.ClassLabel, &o.Confidence,
			&o.Box.X, &o.Box.Y, &o.Box.W, &o.Box.H); err != nil {
			return nil, fmt.Errorf("scan ground truth row: %w", err)
		}
		objects = append(objects, o)
	}
	return objects, rows.Err()
}

// Detections returns the session's detection stream ordered by timestamp.
func (s *EventStore) Detections(ctx context.Context, sessionID string) ([]vru.DetectionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, class_label, confidence, box_x, box_y, box_w, box_h
		FROM detection_events
		WHERE session_id = ?
		ORDER BY timestamp ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	var events []vru.DetectionEvent
	for rows.Next() {
		var d vru.DetectionEvent
		if err := rows.Scan(&d.ID, &d.Timestamp, &d.ClassLabel, &d.Confidence,
			&d.Box.X, &d.Box.Y, &d.Box.W, &d.Box.H); err != nil {
			return nil, fmt.Errorf("scan detection row: %w", err)
		}
		events = append(events, d)
	}
	return events, rows.Err()
}

// InsertGroundTruth persists ground truth objects for a session in one
// transaction. Objects with empty IDs get generated UUIDs.
func (s *EventStore) InsertGroundTruth(ctx context.Context, sessionID string, objects []vru.GroundTruthObject) error {
	return retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin insert ground truth: %w", err)
		}
		defer tx.Rollback()

		now := time.Now().UnixNano()
		for i := range objects {
			o := &objects[i]
			if o.ID == "" {
				o.ID = uuid.New().String()
			}
			if o.Confidence == 0 {
				o.Confidence = 1.0
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO ground_truth_objects (
					id, session_id, timestamp, class_label, confidence,
					box_x, box_y, box_w, box_h, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				o.ID, sessionID, o.Timestamp, o.ClassLabel, o.Confidence,
				o.Box.X, o.Box.Y, o.Box.W, o.Box.H, now,
			)
			if err != nil {
				return fmt.Errorf("insert ground truth %s: %w", o.ID, err)
			}
		}
		return tx.Commit()
	})
}

// InsertDetections persists detection events for a session in one
// transaction. Events with empty IDs get generated UUIDs.
func (s *EventStore) InsertDetections(ctx context.Context, sessionID string, events []vru.DetectionEvent) error {
	return retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin insert detections: %w", err)
		}
		defer tx.Rollback()

		now := time.Now().UnixNano()
		for i := range events {
			d := &events[i]
			if d.ID == "" {
				d.ID = uuid.New().String()
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO detection_events (
					id, session_id, timestamp, class_label, confidence,
					box_x, box_y, box_w, box_h, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				d.ID, sessionID, d.Timestamp, d.ClassLabel, d.Confidence,
				d.Box.X, d.Box.Y, d.Box.W, d.Box.H, now,
			)
			if err != nil {
				return fmt.Errorf("insert detection %s: %w", d.ID, err)
			}
		}
		return tx.Commit()
	})
}

// Sessions lists distinct session IDs that have any events, newest first.
func (s *EventStore) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, MAX(created_at) AS latest FROM (
			SELECT session_id, created_at FROM ground_truth_objects
			UNION ALL
			SELECT session_id, created_at FROM detection_events
		)
		GROUP BY session_id
		ORDER BY latest DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		var latest int64
		if err := rows.Scan(&id, &latest); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
