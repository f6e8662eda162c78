package store

import (
	"context"
	"fmt"
	"time"
)

// ScoreEvent is one judged change to a participant's score.
type ScoreEvent struct {
	ID            int64     `json:"id"`
	ParticipantID string    `json:"participant_id"`
	Delta         int       `json:"delta"`
	ScoreAfter    int       `json:"score_after"`
	Source        string    `json:"source"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s *Store) ListScoreEvents(ctx context.Context, participantID string, limit int) ([]ScoreEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Pool.Query(ctx, `
SELECT id, participant_id, delta, score_after, source, created_at
FROM score_events
WHERE participant_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2
`, participantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list score_events: %w", err)
	}
	defer rows.Close()
	out := []ScoreEvent{}
	for rows.Next() {
		var ev ScoreEvent
		if err := rows.Scan(&ev.ID, &ev.ParticipantID, &ev.Delta, &ev.ScoreAfter, &ev.Source, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
