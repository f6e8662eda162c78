// Package hub keeps the live leaderboard in memory: participant scores, ranks
// per event, subscriber fan-out with per-participant debouncing, single-use
// registration tokens and replication over a syncbus.Bus.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/uvabd17/liveleaderboard/internal/models"
	"github.com/uvabd17/liveleaderboard/internal/syncbus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTopN     = 20
	DefaultDebounce = 75 * time.Millisecond
	DefaultTokenTTL = 24 * time.Hour

	defaultOutbox  = 1024
	publishTimeout = 5 * time.Second
	loadTimeout    = 30 * time.Second
)

// Subscriber receives payloads for one live client. Send is called while the
// hub serializes deliveries, so it must not block or call back into the hub.
type Subscriber interface {
	Send(payload []byte) error
	Close()
}

// SubscriberFuncs adapts a pair of callbacks to Subscriber.
type SubscriberFuncs struct {
	SendFunc  func(payload []byte) error
	CloseFunc func()
}

func (f SubscriberFuncs) Send(payload []byte) error {
	if f.SendFunc == nil {
		return nil
	}
	return f.SendFunc(payload)
}

func (f SubscriberFuncs) Close() {
	if f.CloseFunc != nil {
		f.CloseFunc()
	}
}

// Loader reads the authoritative participant set.
type Loader interface {
	ListParticipants(ctx context.Context) ([]models.Participant, error)
}

type Options struct {
	TopN       int
	Debounce   time.Duration
	InstanceID string
	// TokenTTL of 0 means DefaultTokenTTL; a negative value disables expiry.
	TokenTTL   time.Duration
	OutboxSize int

	Bus    syncbus.Bus
	Loader Loader
	Logger zerolog.Logger
	Now    func() time.Time
}

type Hub struct {
	topN       int
	debounce   time.Duration
	instanceID string
	bus        syncbus.Bus
	loader     Loader
	log        zerolog.Logger
	now        func() time.Time

	mu           sync.Mutex
	participants map[string]*models.Participant
	lastRanks    map[string]int
	lastSnapshot map[string]string
	subs         map[uint64]*subscriber
	nextSubID    uint64
	pending      map[string]*pendingScore
	closed       bool

	// deliverMu is taken before mu is released so payloads leave in the
	// order their state was computed.
	deliverMu sync.Mutex

	tokens    *tokenStore
	outbox    chan syncbus.Message
	loadGroup singleflight.Group
}

type subscriber struct {
	id    uint64
	scope string
	sub   Subscriber
}

type pendingScore struct {
	timer   *time.Timer
	gen     uint64
	changed bool
}

type outbound struct {
	scope   string
	control bool
	payload []byte
	only    *subscriber
}

// matches reports whether o is visible to s. Unscoped subscribers see
// everything; scoped ones see their own partition and untagged control events.
func (s *subscriber) matches(o outbound) bool {
	if s.scope == "" || s.scope == o.scope {
		return true
	}
	return o.control && o.scope == ""
}

func New(opts Options) *Hub {
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}
	if opts.TokenTTL == 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = defaultOutbox
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	h := &Hub{
		topN:         opts.TopN,
		debounce:     opts.Debounce,
		instanceID:   opts.InstanceID,
		bus:          opts.Bus,
		loader:       opts.Loader,
		log:          opts.Logger.With().Str("component", "hub").Str("instance_id", opts.InstanceID).Logger(),
		now:          opts.Now,
		participants: make(map[string]*models.Participant),
		lastRanks:    make(map[string]int),
		lastSnapshot: make(map[string]string),
		subs:         make(map[uint64]*subscriber),
		pending:      make(map[string]*pendingScore),
		tokens:       newTokenStore(opts.TokenTTL),
	}
	if h.bus != nil {
		h.outbox = make(chan syncbus.Message, opts.OutboxSize)
	}
	return h
}

func (h *Hub) InstanceID() string { return h.instanceID }

// Subscribe registers sub for scope ("" for every event) and delivers the
// scope's current top-N snapshot to it. An unscoped subscriber gets one
// snapshot per known event, the untagged board first. The returned func
// deregisters it and is safe to call more than once.
func (h *Hub) Subscribe(sub Subscriber, scope string) (unsubscribe func()) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.Close()
		return func() {}
	}
	h.nextSubID++
	s := &subscriber{id: h.nextSubID, scope: scope, sub: sub}
	h.subs[s.id] = s

	scopes := []string{scope}
	if scope == "" {
		scopes = h.knownScopes()
	}
	out := make([]outbound, 0, len(scopes))
	for _, sc := range scopes {
		standings := topN(h.rankScope(sc), h.topN)
		payload := h.encode(snapshotPayload{Type: EventSnapshot, EventSlug: sc, Leaderboard: standings})
		out = append(out, outbound{scope: sc, payload: payload, only: s})
	}
	h.release(out)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, s.id)
			h.mu.Unlock()
		})
	}
}

// UpsertParticipant inserts or replaces p by id and replicates it. Kind and
// CreatedAt of an existing record are kept.
func (h *Hub) UpsertParticipant(p models.Participant) models.Participant {
	return h.upsert(p, false, false)
}

// UpdateParticipant is UpsertParticipant for edits that carry no score: an
// existing record keeps its current score.
func (h *Hub) UpdateParticipant(p models.Participant) models.Participant {
	return h.upsert(p, false, true)
}

func (h *Hub) upsert(p models.Participant, remote, keepScore bool) models.Participant {
	if p.ID == "" {
		if remote {
			return p
		}
		p.ID = uuid.NewString()
	}

	h.mu.Lock()
	prev, exists := h.participants[p.ID]
	if remote && exists && p.UpdatedAt < prev.UpdatedAt {
		stored := *prev
		h.mu.Unlock()
		h.log.Debug().Str("participant_id", p.ID).Msg("stale remote upsert ignored")
		return stored
	}

	if !remote {
		p.UpdatedAt = h.now().UnixMilli()
	}
	if p.Score < 0 {
		p.Score = 0
	}
	scopes := []string{p.EventSlug}
	if exists {
		p.CreatedAt = prev.CreatedAt
		p.Kind = prev.Kind
		if keepScore {
			p.Score = prev.Score
		}
		if prev.EventSlug != p.EventSlug {
			scopes = append(scopes, prev.EventSlug)
		}
	} else if p.CreatedAt == 0 {
		p.CreatedAt = h.now().UnixMilli()
	}

	stored := p
	h.participants[p.ID] = &stored
	out := h.refreshSnapshots(scopes...)
	h.release(out)

	if !remote {
		rec := stored
		h.enqueue(syncbus.Message{Type: syncbus.TypeParticipant, Participant: &rec})
	}
	return stored
}

// RemoveParticipant drops id from the board, as when a team is eliminated.
func (h *Hub) RemoveParticipant(id string) bool {
	return h.remove(id, false)
}

func (h *Hub) remove(id string, remote bool) bool {
	h.mu.Lock()
	p, ok := h.participants[id]
	if !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.participants, id)
	delete(h.lastRanks, id)
	if ps, ok := h.pending[id]; ok {
		ps.timer.Stop()
		delete(h.pending, id)
	}
	h.release(h.refreshSnapshots(p.EventSlug))

	if !remote {
		h.enqueue(syncbus.Message{Type: syncbus.TypeRemove, ID: id})
	}
	return true
}

// UpdateScore adds delta to id's score (floored at 0) and schedules a
// debounced leaderboard broadcast. Unknown ids are ignored.
func (h *Hub) UpdateScore(id string, delta int) {
	h.applyScore(id, delta, false)
}

func (h *Hub) applyScore(id string, delta int, remote bool) {
	h.mu.Lock()
	p, ok := h.participants[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	p.ApplyDelta(delta)
	if !h.closed {
		h.schedule(id, delta != 0)
	}
	h.mu.Unlock()

	if !remote {
		h.enqueue(syncbus.Message{Type: syncbus.TypeScore, ID: id, Delta: delta})
	}
}

// schedule (re)arms the debounce timer for id. Caller holds h.mu.
func (h *Hub) schedule(id string, changed bool) {
	ps, ok := h.pending[id]
	if !ok {
		ps = &pendingScore{}
		h.pending[id] = ps
	}
	ps.changed = ps.changed || changed
	if ps.timer != nil {
		ps.timer.Stop()
	}
	ps.gen++
	gen := ps.gen
	ps.timer = time.AfterFunc(h.debounce, func() { h.flush(id, gen) })
}

func (h *Hub) flush(id string, gen uint64) {
	h.mu.Lock()
	ps, ok := h.pending[id]
	if !ok || ps.gen != gen {
		// rescheduled or flushed by Close
		h.mu.Unlock()
		return
	}
	delete(h.pending, id)
	h.release(h.recompute(id, ps.changed))
}

// recompute re-ranks id's partition and builds the leaderboard payload with
// rank movers. Caller holds h.mu.
func (h *Hub) recompute(id string, changed bool) []outbound {
	p, ok := h.participants[id]
	if !ok {
		return nil
	}
	scope := p.EventSlug
	standings := h.rankScope(scope)

	movers := []models.Mover{}
	for _, s := range standings {
		if prev, ok := h.lastRanks[s.ID]; ok && prev != s.Rank {
			movers = append(movers, models.Mover{ID: s.ID, From: prev, To: s.Rank})
		}
		h.lastRanks[s.ID] = s.Rank
	}
	if len(movers) == 0 && !changed {
		return nil
	}

	top := topN(standings, h.topN)
	h.lastSnapshot[scope] = h.snapshotKey(top)
	payload := h.encode(leaderboardPayload{Type: EventLeaderboard, EventSlug: scope, Leaderboard: top, Movers: movers})
	return []outbound{{scope: scope, payload: payload}}
}

// refreshSnapshots records ranks for each scope and emits a snapshot for
// those whose top-N changed. Ids with a pending debounce keep their recorded
// rank so the flush reports their move. Caller holds h.mu.
func (h *Hub) refreshSnapshots(scopes ...string) []outbound {
	var out []outbound
	seen := make(map[string]bool, len(scopes))
	for _, scope := range scopes {
		if seen[scope] {
			continue
		}
		seen[scope] = true

		standings := h.rankScope(scope)
		for _, s := range standings {
			if _, ok := h.pending[s.ID]; ok {
				if _, ranked := h.lastRanks[s.ID]; ranked {
					continue
				}
			}
			h.lastRanks[s.ID] = s.Rank
		}
		top := topN(standings, h.topN)
		key := h.snapshotKey(top)
		if prev, ok := h.lastSnapshot[scope]; ok && prev == key {
			continue
		}
		h.lastSnapshot[scope] = key
		payload := h.encode(snapshotPayload{Type: EventSnapshot, EventSlug: scope, Leaderboard: top})
		out = append(out, outbound{scope: scope, payload: payload})
	}
	return out
}

// Broadcast delivers ev to matching subscribers and replicates it.
func (h *Hub) Broadcast(ev ControlEvent) error {
	payload, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	h.deliverEvent(ev.Scope(), payload)
	h.enqueue(syncbus.Message{Type: syncbus.TypeEvent, Event: payload})
	return nil
}

func (h *Hub) deliverEvent(scope string, payload []byte) {
	h.mu.Lock()
	h.release([]outbound{{scope: scope, control: true, payload: payload}})
}

// Seed loads participants without replicating them. Existing ids are kept.
func (h *Hub) Seed(participants []models.Participant) {
	h.mu.Lock()
	var scopes []string
	for _, p := range participants {
		if _, ok := h.participants[p.ID]; ok || p.ID == "" {
			continue
		}
		if p.Score < 0 {
			p.Score = 0
		}
		stored := p
		h.participants[p.ID] = &stored
		scopes = append(scopes, p.EventSlug)
	}
	sort.Strings(scopes)
	h.release(h.refreshSnapshots(scopes...))
}

// LoadFromDBIfEmpty warms an empty hub from the Loader. Concurrent callers
// share one read, which outlives the first caller's cancellation.
func (h *Hub) LoadFromDBIfEmpty(ctx context.Context) error {
	if h.loader == nil {
		return nil
	}
	_, err, _ := h.loadGroup.Do("load", func() (any, error) {
		if h.Len() > 0 {
			return nil, nil
		}
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		participants, err := h.loader.ListParticipants(lctx)
		if err != nil {
			return nil, fmt.Errorf("load participants: %w", err)
		}
		h.Seed(participants)
		h.log.Info().Int("participants", len(participants)).Msg("hub warmed from store")
		return nil, nil
	})
	return err
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.participants)
}

// Participant returns a copy of the record for id.
func (h *Hub) Participant(id string) (models.Participant, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.participants[id]
	if !ok {
		return models.Participant{}, false
	}
	return *p, true
}

// Leaderboard returns the ranked standings of scope, at most limit entries
// (limit <= 0 for all).
func (h *Hub) Leaderboard(scope string, limit int) []models.Standing {
	h.mu.Lock()
	standings := h.rankScope(scope)
	h.mu.Unlock()
	return topN(standings, limit)
}

type Stats struct {
	InstanceID       string   `json:"instanceId"`
	Participants     int      `json:"participants"`
	Subscribers      int      `json:"subscribers"`
	PendingDebounces int      `json:"pendingDebounces"`
	Tokens           int      `json:"tokens"`
	Scopes           []string `json:"scopes"`
	SyncEnabled      bool     `json:"syncEnabled"`
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	st := Stats{
		InstanceID:       h.instanceID,
		Participants:     len(h.participants),
		Subscribers:      len(h.subs),
		PendingDebounces: len(h.pending),
		SyncEnabled:      h.bus != nil,
		Scopes:           []string{},
	}
	seen := map[string]bool{}
	for _, p := range h.participants {
		if !seen[p.EventSlug] {
			seen[p.EventSlug] = true
			st.Scopes = append(st.Scopes, p.EventSlug)
		}
	}
	h.mu.Unlock()
	sort.Strings(st.Scopes)
	st.Tokens = h.tokens.len()
	return st
}

// Close flushes pending debounced updates and closes every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true

	ids := make([]string, 0, len(h.pending))
	for id, ps := range h.pending {
		ps.timer.Stop()
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []outbound
	for _, id := range ids {
		ps := h.pending[id]
		delete(h.pending, id)
		out = append(out, h.recompute(id, ps.changed)...)
	}
	h.release(out)

	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.subs = make(map[uint64]*subscriber)
	h.mu.Unlock()

	for _, s := range subs {
		s.sub.Close()
	}
	h.log.Info().Int("subscribers", len(subs)).Int("flushed", len(ids)).Msg("hub closed")
}

// Run replicates through the bus until ctx is done. Without a bus it just
// waits.
func (h *Hub) Run(ctx context.Context) error {
	if h.bus == nil {
		<-ctx.Done()
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h.drainOutbox(ctx)
		return nil
	})
	g.Go(func() error {
		return h.bus.Subscribe(ctx, h.handleSync)
	})
	return g.Wait()
}

func (h *Hub) enqueue(msg syncbus.Message) {
	if h.bus == nil {
		return
	}
	msg.InstanceID = h.instanceID
	select {
	case h.outbox <- msg:
	default:
		h.log.Warn().Str("type", msg.Type).Msg("sync outbox full, message dropped")
	}
}

func (h *Hub) drainOutbox(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.outbox:
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := h.bus.Publish(pctx, msg); err != nil {
				h.log.Debug().Err(err).Str("type", msg.Type).Msg("sync publish failed")
			}
			cancel()
		}
	}
}

func (h *Hub) handleSync(msg syncbus.Message) {
	if msg.InstanceID == h.instanceID {
		return
	}
	switch msg.Type {
	case syncbus.TypeScore:
		h.applyScore(msg.ID, msg.Delta, true)
	case syncbus.TypeParticipant:
		if msg.Participant != nil {
			h.upsert(*msg.Participant, true, false)
		}
	case syncbus.TypeRemove:
		h.remove(msg.ID, true)
	case syncbus.TypeEvent:
		ev, err := DecodeControlEvent(msg.Event)
		if err != nil {
			h.log.Debug().Err(err).Msg("bad remote event")
			return
		}
		h.deliverEvent(ev.Scope(), msg.Event)
	default:
		h.log.Debug().Str("type", msg.Type).Msg("unknown sync message")
	}
}

// knownScopes lists "" followed by every event slug in use, sorted. Caller
// holds h.mu.
func (h *Hub) knownScopes() []string {
	seen := map[string]bool{"": true}
	var slugs []string
	for _, p := range h.participants {
		if !seen[p.EventSlug] {
			seen[p.EventSlug] = true
			slugs = append(slugs, p.EventSlug)
		}
	}
	sort.Strings(slugs)
	return append([]string{""}, slugs...)
}

// rankScope ranks the participants of one partition. Caller holds h.mu.
func (h *Hub) rankScope(scope string) []models.Standing {
	members := make([]models.Participant, 0, len(h.participants))
	for _, p := range h.participants {
		if p.EventSlug == scope {
			members = append(members, *p)
		}
	}
	return Rank(members)
}

func (h *Hub) snapshotKey(top []models.Standing) string {
	b, _ := json.Marshal(top)
	return string(b)
}

func (h *Hub) encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("encode payload")
	}
	return b
}

// release delivers out in order and drops h.mu. Caller holds h.mu.
func (h *Hub) release(out []outbound) {
	if len(out) == 0 {
		h.mu.Unlock()
		return
	}
	targets := make([][]*subscriber, len(out))
	for i, o := range out {
		if o.only != nil {
			targets[i] = []*subscriber{o.only}
			continue
		}
		for _, s := range h.subs {
			if s.matches(o) {
				targets[i] = append(targets[i], s)
			}
		}
	}

	h.deliverMu.Lock()
	h.mu.Unlock()
	defer h.deliverMu.Unlock()

	for i, o := range out {
		if o.payload == nil {
			continue
		}
		for _, s := range targets[i] {
			h.send(s, o.payload)
		}
	}
}

func (h *Hub) send(s *subscriber, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Warn().Interface("panic", r).Uint64("subscriber", s.id).Msg("subscriber send panicked")
		}
	}()
	if err := s.sub.Send(payload); err != nil {
		h.log.Debug().Err(err).Uint64("subscriber", s.id).Msg("subscriber send failed")
	}
}

type snapshotPayload struct {
	Type        string            `json:"type"`
	EventSlug   string            `json:"eventSlug,omitempty"`
	Leaderboard []models.Standing `json:"leaderboard"`
}

type leaderboardPayload struct {
	Type        string            `json:"type"`
	EventSlug   string            `json:"eventSlug,omitempty"`
	Leaderboard []models.Standing `json:"leaderboard"`
	Movers      []models.Mover    `json:"movers"`
}
