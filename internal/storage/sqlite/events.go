package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/steveyegge/pnpsetup/internal/events"
)

const eventColumns = `id, type, timestamp, subject, issue_id, severity, message, data`

// StoreEvent stores a new event in the database
func (s *SQLiteStorage) StoreEvent(ctx context.Context, event *events.Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if event.Data == nil {
		dataJSON = []byte("{}")
	}

	query := `INSERT INTO events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Type),
		formatTime(event.Timestamp),
		event.Subject,
		event.IssueID,
		string(event.Severity),
		event.Message,
		string(dataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store event (type=%s, subject=%s): %w", event.Type, event.Subject, err)
	}

	return nil
}

// GetEvents retrieves events matching the given filter, most recent first
func (s *SQLiteStorage) GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE 1=1`
	args := []interface{}{}

	if filter.IssueID != "" {
		query += " AND issue_id = ?"
		args = append(args, filter.IssueID)
	}
	if filter.Subject != "" {
		query += " AND subject = ?"
		args = append(args, filter.Subject)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}
	if !filter.AfterTime.IsZero() {
		query += " AND timestamp > ?"
		args = append(args, formatTime(filter.AfterTime))
	}
	if !filter.BeforeTime.IsZero() {
		query += " AND timestamp < ?"
		args = append(args, formatTime(filter.BeforeTime))
	}

	query += " ORDER BY timestamp DESC, rowid DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetEventsByIssue retrieves all events for a specific issue in the order they happened
func (s *SQLiteStorage) GetEventsByIssue(ctx context.Context, issueID string) ([]*events.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE issue_id = ? ORDER BY timestamp ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by issue: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetRecentEvents retrieves the most recent events up to the specified limit
func (s *SQLiteStorage) GetRecentEvents(ctx context.Context, limit int) ([]*events.Event, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive (got %d)", limit)
	}
	return s.GetEvents(ctx, events.EventFilter{Limit: limit})
}

func scanEvents(rows *sql.Rows) ([]*events.Event, error) {
	var result []*events.Event

	for rows.Next() {
		var event events.Event
		var eventType, severity, timestamp, dataJSON string

		err := rows.Scan(
			&event.ID,
			&eventType,
			&timestamp,
			&event.Subject,
			&event.IssueID,
			&severity,
			&event.Message,
			&dataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.Type = events.EventType(eventType)
		event.Severity = events.EventSeverity(severity)
		if event.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, fmt.Errorf("event %s: %w", event.ID, err)
		}

		event.Data = make(map[string]interface{})
		if dataJSON != "" && dataJSON != "{}" && dataJSON != "null" {
			if err := json.Unmarshal([]byte(dataJSON), &event.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}

		result = append(result, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return result, nil
}
