package udlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLog remplace le logger global le temps d'un test
func captureLog(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})
	return &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://m.example.org/index.php?module=API&token_auth=xxx",
		RedactURL("https://m.example.org/index.php?token_auth=abc&module=API"))
	assert.Equal(t, "https://api.crossref.org/works?mailto=xxx",
		RedactURL("https://api.crossref.org/works?mailto=ops@udsm.ac.tz"))
	// sans secret l'url n'est pas réencodée
	assert.Equal(t, "https://ojs/api?b=2&a=1", RedactURL("https://ojs/api?b=2&a=1"))
}

func TestUpstreamAttempt(t *testing.T) {
	buf := captureLog(t)
	u := NewUpstream("matomo")

	u.Attempt("POST", "https://m/index.php?token_auth=abc", 0, 200, 20*time.Millisecond)
	entry := lastEntry(t, buf)
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "matomo", entry["source"])
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "https://m/index.php?token_auth=xxx", entry["url"])
	assert.EqualValues(t, 200, entry["status"])
	assert.Equal(t, "upstream request", entry["message"])

	u.Attempt("GET", "https://m/", 1, 200, SlowRequest)
	entry = lastEntry(t, buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "slow upstream request", entry["message"])
	assert.EqualValues(t, 1, entry["attempt"])
}

func TestUpstreamRetryAndFailed(t *testing.T) {
	buf := captureLog(t)
	u := NewUpstream("ojs")

	u.Retry("https://ojs/api?apiToken=s", 2, time.Second, errors.New("ojs: HTTP 503"))
	entry := lastEntry(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "ojs: HTTP 503", entry["error"])
	assert.Equal(t, "https://ojs/api?apiToken=xxx", entry["url"])
	assert.EqualValues(t, 2, entry["attempt"])

	u.Failed("https://ojs/api", 3, errors.New("ojs: HTTP 503"))
	entry = lastEntry(t, buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "upstream request failed", entry["message"])
	assert.EqualValues(t, 3, entry["attempts"])
}
