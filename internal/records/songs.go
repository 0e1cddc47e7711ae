package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tunesmith/internal/capture"
	"tunesmith/internal/submission"
	"tunesmith/internal/textutil"
)

const songColumns = "id, item_key, title, prompt, lyrics, task_id, project_id, conversion_id_1, conversion_id_2, expected_size, dest_root, version, state, retries, file_path, file_size, metadata_json, failure_category, failure_detail, created_at, updated_at"

// Song is a stored work item.
type Song struct {
	ID int64
	submission.WorkItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSong inserts item in its current state and returns the stored copy.
// An empty key is generated from the title.
func (s *Store) NewSong(ctx context.Context, item *submission.WorkItem) (*Song, error) {
	if item.Key == "" {
		item.Key = textutil.Prefix(textutil.Slugify(item.Title), 40) + "-" + uuid.NewString()[:8]
	}
	if item.State == "" {
		item.State = submission.StateDraft
	}
	if item.Version < 1 {
		item.Version = 1
	}
	metadataJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	ts := s.timestamp()

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO songs (
            item_key, title, prompt, lyrics, task_id, project_id, conversion_id_1, conversion_id_2,
            expected_size, dest_root, version, state, retries, file_path, file_size, metadata_json,
            failure_category, failure_detail, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Key,
		item.Title,
		nullableString(item.Prompt),
		nullableString(item.Lyrics),
		nullableString(item.TaskID),
		nullableString(item.ProjectID),
		nullableString(item.ConversionID1),
		nullableString(item.ConversionID2),
		item.ExpectedSize,
		item.DestRoot,
		item.Version,
		string(item.State),
		item.Retries,
		nullableString(item.FilePath),
		item.FileSize,
		string(metadataJSON),
		nullableString(item.FailureCategory),
		nullableString(item.FailureDetail),
		ts,
		ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert song: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetSong(ctx, id)
}

// GetSong loads a song and its transition history.
func (s *Store) GetSong(ctx context.Context, id int64) (*Song, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+songColumns+" FROM songs WHERE id = ?", id)
	return s.loadSong(ctx, row)
}

// GetSongByKey loads a song by its work item key.
func (s *Store) GetSongByKey(ctx context.Context, key string) (*Song, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+songColumns+" FROM songs WHERE item_key = ?", key)
	return s.loadSong(ctx, row)
}

func (s *Store) loadSong(ctx context.Context, row *sql.Row) (*Song, error) {
	song, err := scanSong(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan song: %w", err)
	}
	transitions, err := s.songTransitions(ctx, song.ID)
	if err != nil {
		return nil, err
	}
	song.Transitions = transitions
	return song, nil
}

// ListSongs returns songs oldest first, optionally limited to states.
// Transition history is not loaded.
func (s *Store) ListSongs(ctx context.Context, states ...submission.State) ([]*Song, error) {
	query := "SELECT " + songColumns + " FROM songs"
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		query += " WHERE state IN (" + placeholders(len(states)) + ")"
		for _, state := range states {
			args = append(args, string(state))
		}
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list songs: %w", err)
	}
	defer rows.Close()

	var songs []*Song
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("scan song: %w", err)
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

// UpdateSong writes every mutable field of item.
func (s *Store) UpdateSong(ctx context.Context, item *submission.WorkItem) error {
	return s.updateSong(ctx, s.db, item)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) updateSong(ctx context.Context, db execer, item *submission.WorkItem) error {
	metadataJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	exec := func() error {
		res, err := db.ExecContext(
			ctx,
			`UPDATE songs SET
                title = ?, prompt = ?, lyrics = ?, task_id = ?, project_id = ?,
                conversion_id_1 = ?, conversion_id_2 = ?, expected_size = ?, dest_root = ?,
                version = ?, state = ?, retries = ?, file_path = ?, file_size = ?,
                metadata_json = ?, failure_category = ?, failure_detail = ?, updated_at = ?
            WHERE item_key = ?`,
			item.Title,
			nullableString(item.Prompt),
			nullableString(item.Lyrics),
			nullableString(item.TaskID),
			nullableString(item.ProjectID),
			nullableString(item.ConversionID1),
			nullableString(item.ConversionID2),
			item.ExpectedSize,
			item.DestRoot,
			item.Version,
			string(item.State),
			item.Retries,
			nullableString(item.FilePath),
			item.FileSize,
			string(metadataJSON),
			nullableString(item.FailureCategory),
			nullableString(item.FailureDetail),
			s.timestamp(),
			item.Key,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("song %q: %w", item.Key, ErrNotFound)
		}
		return nil
	}
	if _, inTx := db.(*sql.Tx); inTx {
		return exec()
	}
	return retryOnBusy(ctx, exec)
}

// RecordTransition persists item and appends t to its history. Items not
// yet stored are inserted first.
func (s *Store) RecordTransition(ctx context.Context, item *submission.WorkItem, t submission.Transition) error {
	if item.Key == "" {
		return errors.New("record transition: item has no key")
	}
	if _, err := s.GetSongByKey(ctx, item.Key); errors.Is(err, ErrNotFound) {
		if _, err := s.NewSong(ctx, item); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateSong(ctx, tx, item); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO song_transitions (song_id, from_state, to_state, reason, category, at)
            SELECT id, ?, ?, ?, ?, ? FROM songs WHERE item_key = ?`,
			string(t.From),
			string(t.To),
			nullableString(t.Reason),
			nullableString(t.Category),
			nullableTime(t.At),
			item.Key,
		)
		return err
	})
}

// DeleteSong removes a song and its history.
func (s *Store) DeleteSong(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ctx, "DELETE FROM songs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete song: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) songTransitions(ctx context.Context, songID int64) ([]submission.Transition, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT from_state, to_state, reason, category, at FROM song_transitions WHERE song_id = ? ORDER BY id",
		songID,
	)
	if err != nil {
		return nil, fmt.Errorf("load transitions: %w", err)
	}
	defer rows.Close()

	var out []submission.Transition
	for rows.Next() {
		var (
			from, to         string
			reason, category sql.NullString
			at               sql.NullString
		)
		if err := rows.Scan(&from, &to, &reason, &category, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, submission.Transition{
			From:     submission.State(from),
			To:       submission.State(to),
			Reason:   reason.String,
			Category: category.String,
			At:       parseTime(at),
		})
	}
	return out, rows.Err()
}

func scanSong(scanner rowScanner) (*Song, error) {
	var (
		id              int64
		key             string
		title           string
		prompt          sql.NullString
		lyrics          sql.NullString
		taskID          sql.NullString
		projectID       sql.NullString
		conversion1     sql.NullString
		conversion2     sql.NullString
		expectedSize    int64
		destRoot        string
		version         int
		state           string
		retries         int
		filePath        sql.NullString
		fileSize        int64
		metadataRaw     sql.NullString
		failureCategory sql.NullString
		failureDetail   sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&key,
		&title,
		&prompt,
		&lyrics,
		&taskID,
		&projectID,
		&conversion1,
		&conversion2,
		&expectedSize,
		&destRoot,
		&version,
		&state,
		&retries,
		&filePath,
		&fileSize,
		&metadataRaw,
		&failureCategory,
		&failureDetail,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	var metadata capture.Metadata
	if raw := strings.TrimSpace(metadataRaw.String); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", key, err)
		}
	}

	return &Song{
		ID: id,
		WorkItem: submission.WorkItem{
			Key:             key,
			Title:           title,
			Prompt:          prompt.String,
			Lyrics:          lyrics.String,
			TaskID:          taskID.String,
			ProjectID:       projectID.String,
			ConversionID1:   conversion1.String,
			ConversionID2:   conversion2.String,
			ExpectedSize:    expectedSize,
			DestRoot:        destRoot,
			Version:         version,
			State:           submission.State(state),
			Retries:         retries,
			FilePath:        filePath.String,
			FileSize:        fileSize,
			Metadata:        metadata,
			FailureCategory: failureCategory.String,
			FailureDetail:   failureDetail.String,
		},
		CreatedAt: parseTime(createdRaw),
		UpdatedAt: parseTime(updatedRaw),
	}, nil
}
