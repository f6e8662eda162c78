package hub

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/uvabd17/liveleaderboard/internal/models"
)

func ids(standings []models.Standing) []string {
	out := make([]string, len(standings))
	for i, s := range standings {
		out[i] = s.ID
	}
	return out
}

func ranks(standings []models.Standing) []int {
	out := make([]int, len(standings))
	for i, s := range standings {
		out[i] = s.Rank
	}
	return out
}

func TestRank(t *testing.T) {
	t.Run("orders by score descending", func(t *testing.T) {
		got := Rank([]models.Participant{
			{ID: "a", Name: "A", Score: 10},
			{ID: "b", Name: "B", Score: 30},
			{ID: "c", Name: "C", Score: 20},
		})
		assert.Equal(t, []string{"b", "c", "a"}, ids(got))
		assert.Equal(t, []int{1, 2, 3}, ranks(got))
	})

	t.Run("earlier registration wins a score tie", func(t *testing.T) {
		got := Rank([]models.Participant{
			{ID: "late", Name: "A", Score: 10, CreatedAt: 200},
			{ID: "early", Name: "Z", Score: 10, CreatedAt: 100},
		})
		assert.Equal(t, []string{"early", "late"}, ids(got))
	})

	t.Run("name breaks a score and createdAt tie", func(t *testing.T) {
		got := Rank([]models.Participant{
			{ID: "2", Name: "Bravo", Score: 10, CreatedAt: 100},
			{ID: "1", Name: "Alpha", Score: 10, CreatedAt: 100},
		})
		assert.Equal(t, []string{"1", "2"}, ids(got))
	})

	t.Run("equal scores share a rank and skip the next", func(t *testing.T) {
		got := Rank([]models.Participant{
			{ID: "a", Name: "A", Score: 50, CreatedAt: 1},
			{ID: "b", Name: "B", Score: 50, CreatedAt: 2},
			{ID: "c", Name: "C", Score: 30, CreatedAt: 3},
		})
		assert.Equal(t, []int{1, 1, 3}, ranks(got))
	})

	t.Run("empty input", func(t *testing.T) {
		got := Rank(nil)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("does not reorder the input", func(t *testing.T) {
		in := []models.Participant{{ID: "a", Score: 1}, {ID: "b", Score: 2}}
		Rank(in)
		assert.Equal(t, "a", in[0].ID)
	})
}

func TestRank_OrderIndependent(t *testing.T) {
	base := []models.Participant{
		{ID: "a", Name: "Ada", Score: 40, CreatedAt: 5},
		{ID: "b", Name: "Bob", Score: 40, CreatedAt: 5},
		{ID: "c", Name: "Cy", Score: 40, CreatedAt: 1},
		{ID: "d", Name: "Di", Score: 12, CreatedAt: 9},
		{ID: "e", Name: "Ed", Score: 0, CreatedAt: 2},
		{ID: "f", Name: "Flo", Score: 12, CreatedAt: 3},
	}
	want := Rank(base)
	assert.Equal(t, want, Rank(base))

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]models.Participant(nil), base...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, Rank(shuffled))
	}
	assert.Equal(t, []string{"c", "a", "b", "f", "d", "e"}, ids(want))
	assert.Equal(t, []int{1, 1, 1, 4, 4, 6}, ranks(want))
}

func TestTopN(t *testing.T) {
	s := Rank([]models.Participant{{ID: "a", Score: 3}, {ID: "b", Score: 2}, {ID: "c", Score: 1}})
	assert.Len(t, topN(s, 2), 2)
	assert.Len(t, topN(s, 10), 3)
	assert.Len(t, topN(s, 0), 3)
}
