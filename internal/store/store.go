package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/uvabd17/liveleaderboard/internal/db"
	"github.com/uvabd17/liveleaderboard/internal/models"
)

var ErrNotFound = errors.New("participant not found")

type Store struct{ db *db.DB }

func New(d *db.DB) *Store { return &Store{db: d} }

const participantCols = `id, name, score, kind, event_slug, created_at, updated_at`

func scanParticipant(row pgx.Row) (models.Participant, error) {
	var (
		p                models.Participant
		kind             string
		created, updated time.Time
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Score, &kind, &p.EventSlug, &created, &updated); err != nil {
		return models.Participant{}, err
	}
	p.Kind = models.Kind(kind)
	p.CreatedAt = created.UnixMilli()
	p.UpdatedAt = updated.UnixMilli()
	return p, nil
}

func (s *Store) ListParticipants(ctx context.Context) ([]models.Participant, error) {
	rows, err := s.db.Pool.Query(ctx, `SELECT `+participantCols+` FROM participants ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()
	var out []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListParticipantsByEvent(ctx context.Context, eventSlug string) ([]models.Participant, error) {
	rows, err := s.db.Pool.Query(ctx, `SELECT `+participantCols+` FROM participants WHERE event_slug=$1 ORDER BY created_at, id`, eventSlug)
	if err != nil {
		return nil, fmt.Errorf("list participants for %q: %w", eventSlug, err)
	}
	defer rows.Close()
	var out []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetParticipant(ctx context.Context, id string) (models.Participant, error) {
	p, err := scanParticipant(s.db.Pool.QueryRow(ctx, `SELECT `+participantCols+` FROM participants WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Participant{}, ErrNotFound
	}
	if err != nil {
		return models.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

// UpsertParticipant writes p. Kind and created_at of an existing row are kept.
func (s *Store) UpsertParticipant(ctx context.Context, p models.Participant) (models.Participant, error) {
	return s.put(ctx, p, `name=EXCLUDED.name, score=EXCLUDED.score, event_slug=EXCLUDED.event_slug`)
}

// UpdateParticipant is UpsertParticipant that leaves an existing row's score alone.
func (s *Store) UpdateParticipant(ctx context.Context, p models.Participant) (models.Participant, error) {
	return s.put(ctx, p, `name=EXCLUDED.name, event_slug=EXCLUDED.event_slug`)
}

func (s *Store) put(ctx context.Context, p models.Participant, onConflict string) (models.Participant, error) {
	created := time.Now()
	if p.CreatedAt > 0 {
		created = time.UnixMilli(p.CreatedAt)
	}
	out, err := scanParticipant(s.db.Pool.QueryRow(ctx, `
INSERT INTO participants(id, name, score, kind, event_slug, created_at, updated_at)
VALUES ($1, $2, GREATEST($3, 0), $4, $5, $6, now())
ON CONFLICT (id) DO UPDATE SET `+onConflict+`, updated_at=now()
RETURNING `+participantCols+`;
`, p.ID, p.Name, p.Score, string(p.Kind), p.EventSlug, created))
	if err != nil {
		return models.Participant{}, fmt.Errorf("upsert participant: %w", err)
	}
	return out, nil
}

// AddScore applies delta floored at zero and records the change.
func (s *Store) AddScore(ctx context.Context, id string, delta int, source string) (models.Participant, error) {
	var out models.Participant
	err := pgx.BeginFunc(ctx, s.db.Pool, func(tx pgx.Tx) error {
		p, err := scanParticipant(tx.QueryRow(ctx, `
UPDATE participants SET score=GREATEST(score + $2, 0), updated_at=now()
WHERE id=$1
RETURNING `+participantCols+`;
`, id, delta))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("update score: %w", err)
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO score_events(participant_id, delta, score_after, source)
VALUES ($1, $2, $3, $4);
`, id, delta, p.Score, source); err != nil {
			return fmt.Errorf("insert score_event: %w", err)
		}
		out = p
		return nil
	})
	return out, err
}

func (s *Store) DeleteParticipant(ctx context.Context, id string) error {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM participants WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
