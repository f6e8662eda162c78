package exporter

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uvabd17/liveleaderboard/internal/models"
)

var board = []models.Standing{
	{ID: "a", Name: "Rockets", Kind: models.KindTeam, Score: 50, CreatedAt: 0, Rank: 1},
	{ID: "b", Name: "Night Owls", Kind: models.KindTeam, Score: 50, CreatedAt: 1000, Rank: 1},
	{ID: "c", Name: "Ada", Kind: models.KindIndividual, Score: 30, CreatedAt: 2000, Rank: 3},
}

func TestExportJSON(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	b, ct, err := Export("json", "hack", nil, now)
	require.NoError(t, err)
	assert.Equal(t, "application/json", ct)

	var got StandingsExport
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "hack", got.EventSlug)
	assert.True(t, now.Equal(got.GeneratedAt))
	assert.NotNil(t, got.Leaderboard)
	assert.Contains(t, string(b), `"leaderboard": []`)
}

func TestExportText(t *testing.T) {
	b, _, err := Export("text", "", board, time.Now())
	require.NoError(t, err)
	out := string(b)
	assert.True(t, strings.HasPrefix(out, "RANK"))
	assert.Contains(t, out, "Ada")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 4)
}

func TestExportUnknownFormat(t *testing.T) {
	_, _, err := Export("csv", "", board, time.Now())
	assert.Error(t, err)
}
