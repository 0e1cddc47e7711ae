package records

import (
	"context"
	"fmt"

	"tunesmith/internal/distribution"
	"tunesmith/internal/submission"
)

// inFlightStates are song states a run only holds while its process lives.
var inFlightStates = []submission.State{
	submission.StateSubmitting,
	submission.StateAwaitingIdentifier,
	submission.StatePolling,
	submission.StateResolved,
	submission.StateDownloading,
	submission.StateVerifying,
}

// ResetInFlight returns work stranded by a crash to a resumable state.
// Songs go back to draft with their captured identifiers intact, so the
// next run polls instead of submitting again. Releases caught mid-upload
// go back to ready.
func (s *Store) ResetInFlight(ctx context.Context) (songs, releases int64, err error) {
	args := make([]any, 0, len(inFlightStates)+3)
	args = append(args, string(submission.StateDraft), "interrupted; resumed from last captured identifiers", s.timestamp())
	for _, state := range inFlightStates {
		args = append(args, string(state))
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE songs SET state = ?, failure_detail = ?, updated_at = ?
        WHERE state IN (`+placeholders(len(inFlightStates))+`)`,
		args...,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("reset songs: %w", err)
	}
	songs, _ = res.RowsAffected()

	res, err = s.execWithRetry(ctx,
		`UPDATE releases SET status = ?, error_message = ?, updated_at = ? WHERE status = ?`,
		string(distribution.StatusReady),
		"upload interrupted",
		s.timestamp(),
		string(distribution.StatusUploading),
	)
	if err != nil {
		return songs, 0, fmt.Errorf("reset releases: %w", err)
	}
	releases, _ = res.RowsAffected()
	return songs, releases, nil
}

// SongStats counts songs by state.
func (s *Store) SongStats(ctx context.Context) (map[submission.State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM songs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("song stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[submission.State]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[submission.State(state)] = count
	}
	return stats, rows.Err()
}

// ReleaseStats counts releases by status.
func (s *Store) ReleaseStats(ctx context.Context) (map[distribution.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM releases GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("release stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[distribution.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[distribution.Status(status)] = count
	}
	return stats, rows.Err()
}
