package models

import "time"

// DemoParticipants is a small mixed roster for running without a database.
func DemoParticipants(now time.Time) []Participant {
	base := now.UnixMilli()
	roster := []struct {
		id, name string
		kind     Kind
		score    int
	}{
		{"demo-rockets", "Team Rockets", KindTeam, 42},
		{"demo-owls", "Night Owls", KindTeam, 35},
		{"demo-ada", "Ada", KindIndividual, 35},
		{"demo-linus", "Linus", KindIndividual, 12},
	}
	out := make([]Participant, 0, len(roster))
	for i, r := range roster {
		out = append(out, Participant{
			ID:        r.id,
			Name:      r.name,
			Kind:      r.kind,
			Score:     r.score,
			CreatedAt: base + int64(i),
		})
	}
	return out
}
