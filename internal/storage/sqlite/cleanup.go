package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EventCounts holds event count statistics for monitoring
type EventCounts struct {
	TotalEvents      int
	EventsBySubject  map[string]int
	EventsBySeverity map[string]int
	EventsByType     map[string]int
}

// CleanupEventsByAge deletes events older than the retention period.
// Info and warning events are deleted after retentionDays, error and critical
// events after criticalRetentionDays. Deletes run in batches of batchSize.
func (s *SQLiteStorage) CleanupEventsByAge(ctx context.Context, retentionDays, criticalRetentionDays, batchSize int) (int, error) {
	if retentionDays < 0 || criticalRetentionDays < 0 {
		return 0, fmt.Errorf("retention days cannot be negative")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	now := time.Now()
	totalDeleted := 0

	deleted, err := s.deleteOldEventsBatch(ctx, now.AddDate(0, 0, -retentionDays), []string{"info", "warning"}, batchSize)
	totalDeleted += deleted
	if err != nil {
		return totalDeleted, fmt.Errorf("failed to delete old regular events: %w", err)
	}

	deleted, err = s.deleteOldEventsBatch(ctx, now.AddDate(0, 0, -criticalRetentionDays), []string{"error", "critical"}, batchSize)
	totalDeleted += deleted
	if err != nil {
		return totalDeleted, fmt.Errorf("failed to delete old critical events: %w", err)
	}

	return totalDeleted, nil
}

func (s *SQLiteStorage) deleteOldEventsBatch(ctx context.Context, cutoff time.Time, severities []string, batchSize int) (int, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(severities)), ", ")
	query := fmt.Sprintf(`
		DELETE FROM events
		WHERE id IN (
			SELECT id FROM events
			WHERE timestamp < ?
			AND severity IN (%s)
			ORDER BY timestamp ASC
			LIMIT ?
		)
	`, placeholders)

	args := []interface{}{formatTime(cutoff)}
	for _, sev := range severities {
		args = append(args, sev)
	}
	args = append(args, batchSize)

	totalDeleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return totalDeleted, err
		}

		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to execute delete: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		totalDeleted += int(rowsAffected)

		if rowsAffected < int64(batchSize) {
			return totalDeleted, nil
		}
	}
}

// GetEventCounts returns event count statistics
func (s *SQLiteStorage) GetEventCounts(ctx context.Context) (*EventCounts, error) {
	counts := &EventCounts{}

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&counts.TotalEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to get total event count: %w", err)
	}

	if counts.EventsBySubject, err = s.countBy(ctx, "subject"); err != nil {
		return nil, err
	}
	if counts.EventsBySeverity, err = s.countBy(ctx, "severity"); err != nil {
		return nil, err
	}
	if counts.EventsByType, err = s.countBy(ctx, "type"); err != nil {
		return nil, err
	}

	return counts, nil
}

// countBy groups events by column, which must be a trusted column name.
func (s *SQLiteStorage) countBy(ctx context.Context, column string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s, COUNT(*) FROM events GROUP BY %s", column, column))
	if err != nil {
		return nil, fmt.Errorf("failed to query events by %s: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		out[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s counts: %w", column, err)
	}
	return out, nil
}

// VacuumDatabase runs VACUUM to reclaim disk space after large cleanups
func (s *SQLiteStorage) VacuumDatabase(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}
