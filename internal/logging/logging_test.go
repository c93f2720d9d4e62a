package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	t.Run("json at warn", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Setup("WARN", FormatJSON, &buf))

		log.Info().Msg("hidden")
		log.Warn().Str("chain_id", "0x14a33").Msg("shown")

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, `"chain_id":"0x14a33"`)
		assert.Contains(t, out, `"level":"warn"`)
	})

	t.Run("console default", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Setup("", "", &buf))
		log.Info().Msg("hello")
		assert.Contains(t, buf.String(), "hello")
		assert.NotContains(t, buf.String(), `"message"`)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		assert.Error(t, Setup("loud", FormatJSON, nil))
		assert.Error(t, Setup("info", "xml", nil))
	})
}
