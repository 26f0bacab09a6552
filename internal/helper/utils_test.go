package helper

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filing-rag/internal/config"
)

func TestGenerateUUID(t *testing.T) {
	a, err := GenerateUUID()
	require.NoError(t, err)
	b, err := GenerateUUID()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	_, err = uuid.Parse(a)
	assert.NoError(t, err)
}

func TestCreateFolder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "indexes", "filing")
	require.NoError(t, CreateFolder(dir))
	assert.DirExists(t, dir)
}

func TestSetupLogger(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	SetupLogger(config.LogConfig{Level: "warn"}, &buf)
	log.Info().Msg("hidden")
	log.Warn().Str("entity", "AAPL").Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"entity":"AAPL"`)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}
