package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLoggingState() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	isTerminalFn = func(int) bool { return false }
}

func TestInitSetsLevelAndComponent(t *testing.T) {
	t.Cleanup(resetLoggingState)

	var buf bytes.Buffer
	initWithWriter(Config{Level: "debug", Component: "gate"}, &buf)

	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	log.Debug().Msg("hello")
	var event map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &event))
	assert.Equal(t, "gate", event["component"])
	assert.Equal(t, "hello", event["message"])
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"WARNING": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestSelectWriterAutoFallsBackToJSON(t *testing.T) {
	t.Cleanup(resetLoggingState)
	isTerminalFn = func(int) bool { return false }

	w := selectWriter("auto", os.Stderr)
	assert.Equal(t, os.Stderr, w)

	_, isConsole := selectWriter("console", os.Stderr).(zerolog.ConsoleWriter)
	assert.True(t, isConsole)
}
