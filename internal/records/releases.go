package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tunesmith/internal/distribution"
)

const releaseColumns = "id, song_key, title, artist, songwriter, genre, language, audio_path, cover_art_path, instrumental, ai_disclosure, release_date, status, error_message, category, blocking_json, submitted_at, created_at, updated_at"

// NewRelease inserts r and sets its ID.
func (s *Store) NewRelease(ctx context.Context, r *distribution.Release) error {
	if r.Status == "" {
		r.Status = distribution.StatusDraft
	}
	blocking, err := json.Marshal(r.Blocking)
	if err != nil {
		return fmt.Errorf("marshal blocking: %w", err)
	}
	ts := s.timestamp()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO releases (
            song_key, title, artist, songwriter, genre, language, audio_path, cover_art_path,
            instrumental, ai_disclosure, release_date, status, error_message, category,
            blocking_json, submitted_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableString(r.SongKey),
		r.Title,
		nullableString(r.Artist),
		nullableString(r.Songwriter),
		nullableString(r.Genre),
		nullableString(r.Language),
		nullableString(r.AudioPath),
		nullableString(r.CoverArtPath),
		boolToInt(r.Instrumental),
		boolToInt(r.AIDisclosure),
		releaseDate(r.ReleaseDate),
		string(r.Status),
		nullableString(r.ErrorMessage),
		nullableString(r.Category),
		string(blocking),
		nullableTime(r.SubmittedAt),
		ts,
		ts,
	)
	if err != nil {
		return fmt.Errorf("insert release: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	return nil
}

// GetRelease loads a release and its transition history.
func (s *Store) GetRelease(ctx context.Context, id int64) (*distribution.Release, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+releaseColumns+" FROM releases WHERE id = ?", id)
	r, err := scanRelease(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan release: %w", err)
	}
	transitions, err := s.releaseTransitions(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Transitions = transitions
	return r, nil
}

// ListReleases returns releases oldest first, optionally limited to
// statuses.
func (s *Store) ListReleases(ctx context.Context, statuses ...distribution.Status) ([]*distribution.Release, error) {
	query := "SELECT " + releaseColumns + " FROM releases"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (" + placeholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	defer rows.Close()

	var out []*distribution.Release
	for rows.Next() {
		r, err := scanRelease(rows)
		if err != nil {
			return nil, fmt.Errorf("scan release: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRelease writes every mutable field of r.
func (s *Store) UpdateRelease(ctx context.Context, r *distribution.Release) error {
	return s.updateRelease(ctx, s.db, r)
}

func (s *Store) updateRelease(ctx context.Context, db execer, r *distribution.Release) error {
	blocking, err := json.Marshal(r.Blocking)
	if err != nil {
		return fmt.Errorf("marshal blocking: %w", err)
	}
	exec := func() error {
		res, err := db.ExecContext(
			ctx,
			`UPDATE releases SET
                song_key = ?, title = ?, artist = ?, songwriter = ?, genre = ?, language = ?,
                audio_path = ?, cover_art_path = ?, instrumental = ?, ai_disclosure = ?,
                release_date = ?, status = ?, error_message = ?, category = ?, blocking_json = ?,
                submitted_at = ?, updated_at = ?
            WHERE id = ?`,
			nullableString(r.SongKey),
			r.Title,
			nullableString(r.Artist),
			nullableString(r.Songwriter),
			nullableString(r.Genre),
			nullableString(r.Language),
			nullableString(r.AudioPath),
			nullableString(r.CoverArtPath),
			boolToInt(r.Instrumental),
			boolToInt(r.AIDisclosure),
			releaseDate(r.ReleaseDate),
			string(r.Status),
			nullableString(r.ErrorMessage),
			nullableString(r.Category),
			string(blocking),
			nullableTime(r.SubmittedAt),
			s.timestamp(),
			r.ID,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("release %d: %w", r.ID, ErrNotFound)
		}
		return nil
	}
	if _, inTx := db.(*sql.Tx); inTx {
		return exec()
	}
	return retryOnBusy(ctx, exec)
}

// RecordRelease persists r and appends t to its history. A release without
// an ID is inserted first.
func (s *Store) RecordRelease(ctx context.Context, r *distribution.Release, t distribution.Transition) error {
	if r.ID == 0 {
		if err := s.NewRelease(ctx, r); err != nil {
			return err
		}
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateRelease(ctx, tx, r); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO release_transitions (release_id, from_status, to_status, reason, category, at)
            VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID,
			string(t.From),
			string(t.To),
			nullableString(t.Reason),
			nullableString(t.Category),
			nullableTime(t.At),
		)
		return err
	})
}

func (s *Store) releaseTransitions(ctx context.Context, releaseID int64) ([]distribution.Transition, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT from_status, to_status, reason, category, at FROM release_transitions WHERE release_id = ? ORDER BY id",
		releaseID,
	)
	if err != nil {
		return nil, fmt.Errorf("load transitions: %w", err)
	}
	defer rows.Close()

	var out []distribution.Transition
	for rows.Next() {
		var (
			from, to         string
			reason, category sql.NullString
			at               sql.NullString
		)
		if err := rows.Scan(&from, &to, &reason, &category, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, distribution.Transition{
			From:     distribution.Status(from),
			To:       distribution.Status(to),
			Reason:   reason.String,
			Category: category.String,
			At:       parseTime(at),
		})
	}
	return out, rows.Err()
}

func scanRelease(scanner rowScanner) (*distribution.Release, error) {
	var (
		id           int64
		songKey      sql.NullString
		title        string
		artist       sql.NullString
		songwriter   sql.NullString
		genre        sql.NullString
		language     sql.NullString
		audioPath    sql.NullString
		coverArtPath sql.NullString
		instrumental int
		aiDisclosure int
		releaseRaw   sql.NullString
		status       string
		errorMessage sql.NullString
		category     sql.NullString
		blockingRaw  sql.NullString
		submittedRaw sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&songKey,
		&title,
		&artist,
		&songwriter,
		&genre,
		&language,
		&audioPath,
		&coverArtPath,
		&instrumental,
		&aiDisclosure,
		&releaseRaw,
		&status,
		&errorMessage,
		&category,
		&blockingRaw,
		&submittedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	var blocking []string
	if blockingRaw.Valid && blockingRaw.String != "" && blockingRaw.String != "null" {
		if err := json.Unmarshal([]byte(blockingRaw.String), &blocking); err != nil {
			return nil, fmt.Errorf("decode blocking for release %d: %w", id, err)
		}
	}

	return &distribution.Release{
		ID:           id,
		SongKey:      songKey.String,
		Title:        title,
		Artist:       artist.String,
		Songwriter:   songwriter.String,
		Genre:        genre.String,
		Language:     language.String,
		AudioPath:    audioPath.String,
		CoverArtPath: coverArtPath.String,
		Instrumental: instrumental != 0,
		AIDisclosure: aiDisclosure != 0,
		ReleaseDate:  parseTime(releaseRaw),
		Status:       distribution.Status(status),
		ErrorMessage: errorMessage.String,
		Category:     category.String,
		Blocking:     blocking,
		SubmittedAt:  parseTime(submittedRaw),
	}, nil
}

func releaseDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.DateOnly)
}
