package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// handlerLogs returns the request_id of every line the handler logged.
func handlerLogs(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	var ids []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["message"] == "handled" {
			ids = append(ids, entry["request_id"].(string))
		}
	}
	return ids
}

func TestRequestID(t *testing.T) {
	var buf bytes.Buffer
	h := RequestID(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("handled")
		_, ok := w.(http.Flusher)
		assert.True(t, ok, "writer must stay flushable")
	}))

	t.Run("generates an id", func(t *testing.T) {
		buf.Reset()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		id := rec.Header().Get("X-Request-ID")
		assert.NotEmpty(t, id)
		assert.Equal(t, []string{id}, handlerLogs(t, &buf))
	})

	t.Run("keeps the caller's id", func(t *testing.T) {
		buf.Reset()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
		assert.Equal(t, []string{"abc"}, handlerLogs(t, &buf))
	})
}
