package hub

import (
	"sort"

	"github.com/uvabd17/liveleaderboard/internal/models"
)

// Rank orders participants by score desc, createdAt asc, name asc and assigns
// competition ranks: equal scores share a rank and the next distinct score
// starts at 1 + the number of participants above it.
func Rank(participants []models.Participant) []models.Standing {
	sorted := make([]models.Participant, len(participants))
	copy(sorted, participants)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})

	out := make([]models.Standing, len(sorted))
	rank := 0
	for i, p := range sorted {
		if i == 0 || p.Score != sorted[i-1].Score {
			rank = i + 1
		}
		out[i] = models.NewStanding(p, rank)
	}
	return out
}

func topN(standings []models.Standing, n int) []models.Standing {
	if n <= 0 || len(standings) <= n {
		return standings
	}
	return standings[:n]
}
