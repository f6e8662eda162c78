package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uvabd17/liveleaderboard/internal/models"
)

func TestReadParticipants(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		got, err := readParticipants(strings.NewReader(`[
			{"id":"t1","name":"Rockets","kind":"team","score":-4},
			{"id":"i1","name":"Ada","eventSlug":"hack"}
		]`))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, models.KindTeam, got[0].Kind)
		assert.Equal(t, 0, got[0].Score)
		assert.Equal(t, models.KindIndividual, got[1].Kind)
		assert.Equal(t, "hack", got[1].EventSlug)
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := readParticipants(strings.NewReader(`[{"id":"x"}]`))
		assert.Error(t, err)
	})

	t.Run("bad kind", func(t *testing.T) {
		_, err := readParticipants(strings.NewReader(`[{"id":"x","name":"X","kind":"robot"}]`))
		assert.ErrorIs(t, err, models.ErrInvalidKind)
	})
}

func TestCommandsNeedDSN(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LEADERBOARD_DB_DSN", "")

	for _, name := range []string{"standings", "seed"} {
		t.Run(name, func(t *testing.T) {
			root := NewRoot()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetErr(&out)
			root.SetArgs([]string{name})
			err := root.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "db.dsn")
		})
	}
}
