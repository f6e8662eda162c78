package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewWriter(t *testing.T) {
	t.Run("parses level", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewWriter(&buf, "WARN")
		assert.Equal(t, zerolog.WarnLevel, l.GetLevel())

		l.Info().Msg("hidden")
		assert.Empty(t, buf.String())
		l.Warn().Msg("shown")
		assert.Contains(t, buf.String(), `"message":"shown"`)
	})

	t.Run("falls back to info", func(t *testing.T) {
		assert.Equal(t, zerolog.InfoLevel, NewWriter(&bytes.Buffer{}, "loud").GetLevel())
		assert.Equal(t, zerolog.InfoLevel, NewWriter(&bytes.Buffer{}, "").GetLevel())
	})
}
