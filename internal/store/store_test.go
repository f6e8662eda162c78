package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uvabd17/liveleaderboard/internal/db"
	"github.com/uvabd17/liveleaderboard/internal/models"
	"github.com/uvabd17/liveleaderboard/internal/store"
)

// setupStore connects to LEADERBOARD_TEST_DSN and empties the tables.
func setupStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := os.Getenv("LEADERBOARD_TEST_DSN")
	if dsn == "" {
		t.Skip("LEADERBOARD_TEST_DSN not set")
	}
	ctx := context.Background()
	d, err := db.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	require.NoError(t, db.ApplyMigrations(ctx, d, zerolog.Nop()))
	_, err = d.Pool.Exec(ctx, `TRUNCATE score_events, participants`)
	require.NoError(t, err)
	return store.New(d)
}

func TestStore_Participants(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	p, err := st.UpsertParticipant(ctx, models.Participant{ID: "p1", Name: "One", Score: 4, Kind: models.KindTeam, EventSlug: "hack"})
	require.NoError(t, err)
	assert.NotZero(t, p.CreatedAt)

	renamed, err := st.UpsertParticipant(ctx, models.Participant{ID: "p1", Name: "Uno", Score: 4, Kind: models.KindIndividual, EventSlug: "hack"})
	require.NoError(t, err)
	assert.Equal(t, "Uno", renamed.Name)
	assert.Equal(t, models.KindTeam, renamed.Kind)
	assert.Equal(t, p.CreatedAt, renamed.CreatedAt)

	_, err = st.AddScore(ctx, "p1", 6, "judge-1")
	require.NoError(t, err)
	edited, err := st.UpdateParticipant(ctx, models.Participant{ID: "p1", Name: "Uno Team", EventSlug: "hack"})
	require.NoError(t, err)
	assert.Equal(t, "Uno Team", edited.Name)
	assert.Equal(t, 10, edited.Score)

	got, err := st.GetParticipant(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Score)

	all, err := st.ListParticipants(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	byEvent, err := st.ListParticipantsByEvent(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, byEvent)

	require.NoError(t, st.DeleteParticipant(ctx, "p1"))
	assert.ErrorIs(t, st.DeleteParticipant(ctx, "p1"), store.ErrNotFound)
	_, err = st.GetParticipant(ctx, "p1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_AddScore(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	_, err := st.UpsertParticipant(ctx, models.Participant{ID: "p1", Name: "One", Score: 5, Kind: models.KindTeam})
	require.NoError(t, err)

	p, err := st.AddScore(ctx, "p1", -1000, "judge-1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Score)

	p, err = st.AddScore(ctx, "p1", 7, "judge-2")
	require.NoError(t, err)
	assert.Equal(t, 7, p.Score)

	events, err := st.ListScoreEvents(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "judge-2", events[0].Source)
	assert.Equal(t, 7, events[0].ScoreAfter)

	_, err = st.AddScore(ctx, "missing", 1, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
