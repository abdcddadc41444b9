package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/steveyegge/pnpsetup/internal/types"
)

// RecordCalibration stores a committed settle calibration
func (s *SQLiteStorage) RecordCalibration(ctx context.Context, result *types.CalibrationResult) error {
	if result == nil {
		return fmt.Errorf("calibration result cannot be nil")
	}
	if result.Camera == "" {
		return fmt.Errorf("calibration result has no camera")
	}

	configJSON, err := json.Marshal(result.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal settle config: %w", err)
	}
	trials := result.Trials
	if trials == nil {
		trials = []types.TrialResult{}
	}
	trialsJSON, err := json.Marshal(trials)
	if err != nil {
		return fmt.Errorf("failed to marshal trials: %w", err)
	}

	completed := result.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO calibrations (
			camera, method, config, compute_ms, passed, escalated,
			trials, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.Camera,
		string(result.Config.Method),
		string(configJSON),
		float64(result.ComputeTime)/float64(time.Millisecond),
		result.Passed,
		result.Escalated,
		string(trialsJSON),
		formatTime(result.StartedAt),
		formatTime(completed),
	)
	if err != nil {
		return fmt.Errorf("failed to record calibration (camera=%s): %w", result.Camera, err)
	}
	return nil
}

// GetCalibrationHistory returns the most recent calibrations, newest first.
// An empty camera returns all cameras. limit <= 0 returns everything.
func (s *SQLiteStorage) GetCalibrationHistory(ctx context.Context, camera string, limit int) ([]*types.CalibrationResult, error) {
	query := `
		SELECT camera, config, compute_ms, passed, escalated, trials, started_at, completed_at
		FROM calibrations
		WHERE 1=1
	`
	args := []interface{}{}

	if camera != "" {
		query += " AND camera = ?"
		args = append(args, camera)
	}
	query += " ORDER BY completed_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query calibration history: %w", err)
	}
	defer rows.Close()

	return scanCalibrations(rows)
}

func scanCalibrations(rows *sql.Rows) ([]*types.CalibrationResult, error) {
	var result []*types.CalibrationResult

	for rows.Next() {
		var r types.CalibrationResult
		var configJSON, trialsJSON, started, completed string
		var computeMs float64

		err := rows.Scan(&r.Camera, &configJSON, &computeMs, &r.Passed, &r.Escalated,
			&trialsJSON, &started, &completed)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calibration: %w", err)
		}

		if err := json.Unmarshal([]byte(configJSON), &r.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settle config: %w", err)
		}
		if err := json.Unmarshal([]byte(trialsJSON), &r.Trials); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trials: %w", err)
		}
		r.ComputeTime = time.Duration(computeMs * float64(time.Millisecond))
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.CompletedAt, err = parseTime(completed); err != nil {
			return nil, err
		}

		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating calibration rows: %w", err)
	}
	return result, nil
}
