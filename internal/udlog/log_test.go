package udlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"udsmanalytics/internal/udconfig"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyslog struct {
	got []string
}

func (f *fakeSyslog) record(prio, m string) error {
	f.got = append(f.got, prio+" "+m)
	return nil
}

func (f *fakeSyslog) Debug(m string) error   { return f.record("debug", m) }
func (f *fakeSyslog) Info(m string) error    { return f.record("info", m) }
func (f *fakeSyslog) Warning(m string) error { return f.record("warning", m) }
func (f *fakeSyslog) Err(m string) error     { return f.record("err", m) }
func (f *fakeSyslog) Crit(m string) error    { return f.record("crit", m) }

func TestSyslogLevelWriter(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	defer zerolog.SetGlobalLevel(prev)

	fake := &fakeSyslog{}
	logger := zerolog.New(zerolog.MultiLevelWriter(&SyslogLevelWriter{Writer: fake})).Level(zerolog.TraceLevel)

	logger.Trace().Msg("a")
	logger.Info().Msg("b")
	logger.Warn().Msg("c")
	logger.Error().Msg("d")
	logger.Log().Msg("e")

	require.Len(t, fake.got, 5)
	assert.True(t, strings.HasPrefix(fake.got[0], "debug "))
	assert.True(t, strings.HasPrefix(fake.got[1], "info "))
	assert.True(t, strings.HasPrefix(fake.got[2], "warning "))
	assert.True(t, strings.HasPrefix(fake.got[3], "err "))
	// sans niveau: info
	assert.True(t, strings.HasPrefix(fake.got[4], "info "))
	assert.Contains(t, fake.got[3], `"message":"d"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("WARN"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.TraceLevel, ParseLevel("trace"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" warning "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("whatever"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
}

func TestInitLoggerFile(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logfile := filepath.Join(t.TempDir(), "logs", "app.log")
	InitLogger(udconfig.LoggerConfig{
		Level: "info",
		File: udconfig.LoggerFileConfig{
			Enable:  true,
			Path:    logfile,
			MaxSize: 1,
		},
	}, true)

	log.Info().Msg("hello file")

	data, err := os.ReadFile(logfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello file")
	assert.Contains(t, string(data), "Logger initialized")
}
