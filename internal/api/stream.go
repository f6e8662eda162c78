package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/uvabd17/liveleaderboard/internal/hub"
)

var errSlowClient = errors.New("client send buffer full")

// stream serves Server-Sent Events: a snapshot on connect, then every payload
// for the requested event. Payloads are dropped for a client that cannot keep
// up; the next snapshot or leaderboard event catches it up.
func (a *API) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	a.warm(r)

	buf := a.cfg.Hub.SendBuffer
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan []byte, buf)
	done := make(chan struct{})
	var once sync.Once
	unsubscribe := a.hub.Subscribe(hub.SubscriberFuncs{
		SendFunc: func(b []byte) error {
			select {
			case ch <- b:
				return nil
			default:
				return errSlowClient
			}
		},
		CloseFunc: func() { once.Do(func() { close(done) }) },
	}, r.URL.Query().Get("eventSlug"))
	defer unsubscribe()

	log := zerolog.Ctx(r.Context())
	log.Debug().Str("event_slug", r.URL.Query().Get("eventSlug")).Msg("stream opened")

	// send a comment to open stream
	_, _ = w.Write([]byte(": ok\n\n"))
	flusher.Flush()

	heartbeat := a.cfg.Hub.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case b := <-ch:
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(b)
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
