package hub

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uvabd17/liveleaderboard/internal/models"
)

var (
	ErrTokenNotFound = errors.New("registration token not found")
	ErrTokenUsed     = errors.New("registration token already used")
	ErrTokenExpired  = errors.New("registration token expired")
)

// RegisterToken lets one participant self-register, e.g. from a QR code on
// the venue screen. CreatedAt is epoch milliseconds.
type RegisterToken struct {
	Token     string `json:"token"`
	CreatedAt int64  `json:"createdAt"`
	Used      bool   `json:"used"`
}

type tokenStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	tokens map[string]*RegisterToken
}

func newTokenStore(ttl time.Duration) *tokenStore {
	return &tokenStore{ttl: ttl, tokens: make(map[string]*RegisterToken)}
}

func (s *tokenStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func (s *tokenStore) expired(t *RegisterToken, now time.Time) bool {
	return s.ttl > 0 && now.Sub(time.UnixMilli(t.CreatedAt)) > s.ttl
}

func (s *tokenStore) issue(now time.Time) RegisterToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, t := range s.tokens {
		if s.expired(t, now) {
			delete(s.tokens, k)
		}
	}
	t := &RegisterToken{
		Token:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		CreatedAt: now.UnixMilli(),
	}
	s.tokens[t.Token] = t
	return *t
}

// redeem marks token used. Only the first caller succeeds.
func (s *tokenStore) redeem(token string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	switch {
	case !ok:
		return ErrTokenNotFound
	case t.Used:
		return ErrTokenUsed
	case s.expired(t, now):
		return ErrTokenExpired
	}
	t.Used = true
	return nil
}

func (h *Hub) CreateRegisterToken() RegisterToken {
	return h.tokens.issue(h.now())
}

// RegisterWithToken redeems token and creates a participant at score 0.
// Any error means the registration was rejected and nothing was created.
func (h *Hub) RegisterWithToken(token, name string, kind models.Kind, eventSlug string) (models.Participant, error) {
	now := h.now()
	if err := h.tokens.redeem(token, now); err != nil {
		return models.Participant{}, err
	}
	p := h.UpsertParticipant(models.Participant{
		ID:        uuid.NewString(),
		Name:      name,
		Kind:      kind,
		CreatedAt: now.UnixMilli(),
		EventSlug: eventSlug,
	})
	h.log.Info().Str("participant_id", p.ID).Str("event_slug", eventSlug).Msg("participant registered")
	return p, nil
}
