package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/config"
)

func TestNewWritesConsoleAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "guardian.log")
	var console bytes.Buffer

	log, err := New(config.LogConfig{Level: "debug", File: path, MaxSizeMB: 1}, &console)
	require.NoError(t, err)
	log.WithField("pending_id", "p1").Info("submitted")
	require.NoError(t, log.Close())

	assert.Contains(t, console.String(), "pending_id=p1")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "submitted")
}

func TestNewDefaultsLevel(t *testing.T) {
	var console bytes.Buffer
	log, err := New(config.LogConfig{Level: "nonsense"}, &console)
	require.NoError(t, err)
	log.Debug("hidden")
	log.Info("shown")
	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "shown")
	assert.NoError(t, log.Close())
}

func TestOrDiscard(t *testing.T) {
	assert.NotNil(t, OrDiscard(nil))
}
