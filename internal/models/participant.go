package models

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindTeam       Kind = "team"
	KindIndividual Kind = "individual"
)

var ErrInvalidKind = errors.New("invalid participant kind")

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindTeam:
		return KindTeam, nil
	case KindIndividual, "":
		return KindIndividual, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Participant is a team or individual competing on a board.
// CreatedAt and UpdatedAt are epoch milliseconds.
type Participant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Kind      Kind   `json:"kind"`
	CreatedAt int64  `json:"createdAt"`
	EventSlug string `json:"eventSlug,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

// ApplyDelta adds delta to the score, never going below zero.
func (p *Participant) ApplyDelta(delta int) {
	p.Score += delta
	if p.Score < 0 {
		p.Score = 0
	}
}

// Standing is a participant with its computed rank.
type Standing struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Kind      Kind   `json:"kind"`
	CreatedAt int64  `json:"createdAt"`
	EventSlug string `json:"eventSlug,omitempty"`
	Rank      int    `json:"rank"`
}

func NewStanding(p Participant, rank int) Standing {
	return Standing{
		ID:        p.ID,
		Name:      p.Name,
		Score:     p.Score,
		Kind:      p.Kind,
		CreatedAt: p.CreatedAt,
		EventSlug: p.EventSlug,
		Rank:      rank,
	}
}

// Mover records a rank change between two computations.
type Mover struct {
	ID   string `json:"id"`
	From int    `json:"from"`
	To   int    `json:"to"`
}
