package hub

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	EventSnapshot    = "snapshot"
	EventLeaderboard = "leaderboard"

	EventRoundChange   = "round:change"
	EventTimerUpdate   = "timer:update"
	EventScoringSchema = "scoring-schema:update"
)

var (
	ErrReservedEvent = errors.New("event type is reserved")
	ErrEmptyEvent    = errors.New("event type is required")
)

// ControlEvent is a payload routed by the hub without interpretation, such as
// round transitions driven by an organiser.
type ControlEvent interface {
	EventType() string
	Scope() string
}

type RoundChange struct {
	EventSlug string `json:"eventSlug,omitempty"`
	Round     int    `json:"round"`
	Status    string `json:"status"`
	EndsAt    int64  `json:"endsAt,omitempty"`
}

func (RoundChange) EventType() string { return EventRoundChange }
func (e RoundChange) Scope() string { return e.EventSlug }

type TimerUpdate struct {
	EventSlug   string `json:"eventSlug,omitempty"`
	Running     bool   `json:"running"`
	RemainingMs int64  `json:"remainingMs"`
}

func (TimerUpdate) EventType() string { return EventTimerUpdate }
func (e TimerUpdate) Scope() string { return e.EventSlug }

type Criterion struct {
	Key       string  `json:"key"`
	Label     string  `json:"label"`
	MaxPoints int     `json:"maxPoints"`
	Weight    float64 `json:"weight,omitempty"`
}

type ScoringSchemaUpdate struct {
	EventSlug string      `json:"eventSlug,omitempty"`
	Criteria  []Criterion `json:"criteria"`
}

func (ScoringSchemaUpdate) EventType() string { return EventScoringSchema }
func (e ScoringSchemaUpdate) Scope() string { return e.EventSlug }

// Passthrough carries event kinds the hub does not know about.
type Passthrough struct {
	Type      string
	EventSlug string
	Data      map[string]any
}

func (e Passthrough) EventType() string { return e.Type }
func (e Passthrough) Scope() string { return e.EventSlug }

func (e Passthrough) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		m[k] = v
	}
	if e.EventSlug != "" {
		m["eventSlug"] = e.EventSlug
	}
	return json.Marshal(m)
}

func validateEventType(t string) error {
	switch t {
	case "":
		return ErrEmptyEvent
	case EventSnapshot, EventLeaderboard:
		return fmt.Errorf("%w: %s", ErrReservedEvent, t)
	}
	return nil
}

// EncodeEvent renders ev flat as {type, ...fields}.
func EncodeEvent(ev ControlEvent) ([]byte, error) {
	if err := validateEventType(ev.EventType()); err != nil {
		return nil, err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ev.EventType(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, fmt.Errorf("flatten %s: %w", ev.EventType(), err)
	}
	typ, _ := json.Marshal(ev.EventType())
	fields["type"] = typ
	return json.Marshal(fields)
}

// DecodeControlEvent parses a flat {type, ...} object into its typed form.
func DecodeControlEvent(raw []byte) (ControlEvent, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if err := validateEventType(head.Type); err != nil {
		return nil, err
	}

	switch head.Type {
	case EventRoundChange:
		var e RoundChange
		err := json.Unmarshal(raw, &e)
		return e, err
	case EventTimerUpdate:
		var e TimerUpdate
		err := json.Unmarshal(raw, &e)
		return e, err
	case EventScoringSchema:
		var e ScoringSchemaUpdate
		err := json.Unmarshal(raw, &e)
		return e, err
	}

	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Type, err)
	}
	delete(data, "type")
	slug, _ := data["eventSlug"].(string)
	delete(data, "eventSlug")
	return Passthrough{Type: head.Type, EventSlug: slug, Data: data}, nil
}
