package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{out: &buf, level: WARN, component: "test"}

	l.Debug("dropped %d", 1)
	l.Info("dropped %d", 2)
	l.Warn("kept %d", 3)
	l.Error("kept %d", 4)

	out := buf.String()
	require.NotContains(t, out, "dropped")
	require.Contains(t, out, "kept 3")
	require.Contains(t, out, "kept 4")
	require.Contains(t, out, "[test]")
}

func TestSanitizeRedactsSecrets(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`authorization: Bearer abc123xyz`, "abc123xyz"},
		{`"api_key": "sk-verysecretvalue"`, "sk-verysecretvalue"},
		{`password=hunter2`, "hunter2"},
	}
	for _, tc := range cases {
		out := Sanitize(tc.in)
		require.NotContains(t, out, tc.want, "input %q leaked", tc.in)
		require.Contains(t, out, "[REDACTED]")
	}
}

func TestSanitizeLeavesOrdinaryLinesAlone(t *testing.T) {
	line := "transport: connected to ws://127.0.0.1:8765/ws"
	require.Equal(t, line, Sanitize(line))
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, DEBUG, ParseLevel("debug"))
	require.Equal(t, WARN, ParseLevel("warning"))
	require.Equal(t, ERROR, ParseLevel("error"))
	require.Equal(t, INFO, ParseLevel(""))
	require.Equal(t, INFO, ParseLevel("bogus"))
}
