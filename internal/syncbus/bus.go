// Package syncbus replicates hub state between server instances over a
// publish/subscribe channel. Delivery is best-effort and unordered.
package syncbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/uvabd17/liveleaderboard/internal/models"
)

const (
	TypeScore       = "SYNC:SCORE"
	TypeParticipant = "SYNC:PARTICIPANT"
	TypeRemove      = "SYNC:REMOVE"
	TypeEvent       = "EVENT"
)

const DefaultChannel = "leaderboard_sync"

var ErrClosed = errors.New("sync bus closed")

// Message is the wire envelope. Which fields are set depends on Type.
type Message struct {
	Type        string              `json:"type"`
	InstanceID  string              `json:"instanceId"`
	ID          string              `json:"id,omitempty"`
	Delta       int                 `json:"delta,omitempty"`
	Participant *models.Participant `json:"participant,omitempty"`
	Event       json.RawMessage     `json:"event,omitempty"`
}

func (m Message) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode sync message: %w", err)
	}
	return b, nil
}

func Decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("decode sync message: %w", err)
	}
	if m.Type == "" || m.InstanceID == "" {
		return Message{}, fmt.Errorf("decode sync message: missing type or instanceId")
	}
	return m, nil
}

// Bus is a cross-process channel. Subscribe blocks, invoking fn for every
// received message, until ctx is done or the bus is closed.
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(ctx context.Context, fn func(Message)) error
	Close() error
}

// Open picks an implementation from the URL scheme: postgres(ql)://, nats://
// or memory. An empty URL returns a nil Bus.
func Open(ctx context.Context, rawURL, channel string) (Bus, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, nil
	}
	if channel == "" {
		channel = DefaultChannel
	}
	if rawURL == "memory" {
		return NewNetwork().Join(), nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse sync url: %w", err)
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return OpenPG(ctx, rawURL, channel)
	case "nats", "tls":
		return OpenNATS(rawURL, channel)
	}
	return nil, fmt.Errorf("unsupported sync url scheme %q", u.Scheme)
}
