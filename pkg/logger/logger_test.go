package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	log, err := New(&Config{Level: "debug"})
	require.NoError(t, err)
	assert.NotNil(t, log)

	_, err = New(&Config{Level: "not-a-level"})
	assert.Error(t, err)

	// Nil config falls back to defaults.
	log, err = New(nil)
	require.NoError(t, err)
	assert.NotNil(t, log)
}

func TestNewComponentLogger(t *testing.T) {
	log, err := NewComponentLogger("permissions", &Config{Level: "info"})
	require.NoError(t, err)
	assert.NotNil(t, log)
}

func TestSetDebug(t *testing.T) {
	log, err := New(&Config{Level: "info"})
	require.NoError(t, err)

	log.SetDebug(true)
	assert.Equal(t, zerolog.DebugLevel, log.logger.GetLevel())

	log.SetDebug(false)
	assert.Equal(t, zerolog.InfoLevel, log.logger.GetLevel())
}

func TestNewTestLoggerDiscards(t *testing.T) {
	log := NewTestLogger()

	// Must not panic or emit anywhere.
	log.Info().Str("k", "v").Msg("dropped")
	log.Error().Msg("dropped")
}
