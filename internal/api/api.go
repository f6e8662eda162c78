package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/uvabd17/liveleaderboard/internal/config"
	"github.com/uvabd17/liveleaderboard/internal/exporter"
	"github.com/uvabd17/liveleaderboard/internal/hub"
	"github.com/uvabd17/liveleaderboard/internal/middleware"
	"github.com/uvabd17/liveleaderboard/internal/models"
	"github.com/uvabd17/liveleaderboard/internal/store"
)

// Store is the persistence the handlers write through before updating the
// hub. It may be nil, in which case the hub is the only state.
type Store interface {
	GetParticipant(ctx context.Context, id string) (models.Participant, error)
	UpsertParticipant(ctx context.Context, p models.Participant) (models.Participant, error)
	UpdateParticipant(ctx context.Context, p models.Participant) (models.Participant, error)
	AddScore(ctx context.Context, id string, delta int, source string) (models.Participant, error)
	DeleteParticipant(ctx context.Context, id string) error
	ListScoreEvents(ctx context.Context, participantID string, limit int) ([]store.ScoreEvent, error)
}

type API struct {
	cfg   *config.Config
	store Store
	hub   *hub.Hub
	log   zerolog.Logger
}

func New(cfg *config.Config, st Store, h *hub.Hub, log zerolog.Logger) *API {
	return &API{cfg: cfg, store: st, hub: h, log: log}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID(a.log))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: a.cfg.API.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Live updates for stage displays and participant pages.
	// GET /stream?eventSlug=hack-2025
	r.Get("/stream", a.stream)

	// GET /leaderboard?eventSlug=hack-2025&limit=50
	r.Get("/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		a.warm(r)
		limit := a.cfg.Hub.TopN
		if l := r.URL.Query().Get("limit"); l != "" {
			v, err := strconv.Atoi(l)
			if err != nil {
				http.Error(w, "bad limit", http.StatusBadRequest)
				return
			}
			limit = v
		}
		slug := r.URL.Query().Get("eventSlug")
		writeJSON(w, http.StatusOK, map[string]any{
			"eventSlug":   slug,
			"leaderboard": a.hub.Leaderboard(slug, limit),
		})
	})

	// GET /leaderboard/export?eventSlug=hack-2025&format=text
	r.Get("/leaderboard/export", func(w http.ResponseWriter, r *http.Request) {
		a.warm(r)
		slug := r.URL.Query().Get("eventSlug")
		b, ct, err := exporter.Export(r.URL.Query().Get("format"), slug, a.hub.Leaderboard(slug, 0), time.Now())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", ct)
		_, _ = w.Write(b)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, a.hub.Stats())
	})

	// POST /participants {"id":"","name":"Team Rocket","kind":"team","eventSlug":"hack-2025"}
	r.Post("/participants", a.upsertParticipant)
	r.Get("/participants/{id}", a.getParticipant)
	r.Delete("/participants/{id}", a.removeParticipant)

	// POST /participants/{id}/score {"delta":5,"source":"judge-3"}
	r.Post("/participants/{id}/score", a.updateScore)
	r.Get("/participants/{id}/scores", a.scoreHistory)

	r.Post("/tokens", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, a.hub.CreateRegisterToken())
	})

	// POST /register {"token":"...","name":"Ada","kind":"individual","eventSlug":"hack-2025"}
	r.Post("/register", a.register)

	// POST /events {"type":"round:change","eventSlug":"hack-2025","round":2,"status":"active"}
	r.Post("/events", a.broadcast)

	return r
}

// warm loads the hub from the store on first use. Failure leaves the hub
// empty; later writes still work.
func (a *API) warm(r *http.Request) {
	if err := a.hub.LoadFromDBIfEmpty(r.Context()); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("hub warm-up failed")
	}
}

type participantRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	EventSlug string `json:"eventSlug"`
	// Score is optional; without it an existing participant keeps its points.
	Score     *int   `json:"score"`
}

func (a *API) upsertParticipant(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	kind, err := models.ParseKind(req.Kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Score != nil && *req.Score < 0 {
		http.Error(w, "score must not be negative", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	p := models.Participant{ID: req.ID, Name: req.Name, Kind: kind, EventSlug: req.EventSlug}
	if req.Score != nil {
		p.Score = *req.Score
	}

	a.warm(r)
	if a.store != nil {
		if req.Score != nil {
			p, err = a.store.UpsertParticipant(r.Context(), p)
		} else {
			p, err = a.store.UpdateParticipant(r.Context(), p)
		}
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Str("participant_id", req.ID).Msg("persist participant")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	if req.Score != nil {
		writeJSON(w, http.StatusOK, a.hub.UpsertParticipant(p))
		return
	}
	writeJSON(w, http.StatusOK, a.hub.UpdateParticipant(p))
}

// getParticipant reads the store when there is one, so the answer holds
// across instances.
func (a *API) getParticipant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if a.store != nil {
		p, err := a.store.GetParticipant(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "participant not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, p)
		return
	}
	a.warm(r)
	p, ok := a.hub.Participant(id)
	if !ok {
		http.Error(w, "participant not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) removeParticipant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a.warm(r)
	if a.store != nil {
		if err := a.store.DeleteParticipant(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "participant not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		a.hub.RemoveParticipant(id)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !a.hub.RemoveParticipant(id) {
		http.Error(w, "participant not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) updateScore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Delta  int    `json:"delta"`
		Source string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	a.warm(r)
	if a.store != nil {
		p, err := a.store.AddScore(r.Context(), id, req.Delta, req.Source)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "participant not found", http.StatusNotFound)
				return
			}
			zerolog.Ctx(r.Context()).Error().Err(err).Str("participant_id", id).Msg("persist score")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		a.hub.UpdateScore(id, req.Delta)
		writeJSON(w, http.StatusAccepted, p)
		return
	}

	if _, ok := a.hub.Participant(id); !ok {
		http.Error(w, "participant not found", http.StatusNotFound)
		return
	}
	a.hub.UpdateScore(id, req.Delta)
	p, _ := a.hub.Participant(id)
	writeJSON(w, http.StatusAccepted, p)
}

func (a *API) scoreHistory(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		http.Error(w, "score history needs a database", http.StatusNotImplemented)
		return
	}
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil {
			limit = v
		}
	}
	events, err := a.store.ListScoreEvents(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token     string `json:"token"`
		Name      string `json:"name"`
		Kind      string `json:"kind"`
		EventSlug string `json:"eventSlug"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(req.Name)
	if req.Token == "" || name == "" {
		http.Error(w, "token and name required", http.StatusBadRequest)
		return
	}
	kind, err := models.ParseKind(req.Kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.warm(r)
	p, err := a.hub.RegisterWithToken(req.Token, name, kind, req.EventSlug)
	switch {
	case errors.Is(err, hub.ErrTokenNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, hub.ErrTokenUsed):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, hub.ErrTokenExpired):
		http.Error(w, err.Error(), http.StatusGone)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if a.store != nil {
		if _, err := a.store.UpsertParticipant(r.Context(), p); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Str("participant_id", p.ID).Msg("persist registration")
			a.hub.RemoveParticipant(p.ID)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) broadcast(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	ev, err := hub.DecodeControlEvent(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.hub.Broadcast(ev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"type": ev.EventType()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
