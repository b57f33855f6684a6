package sdjournal

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbrock/sdjournal/internal/nativesock"
)

type capture struct {
	entries [][]string
	err     error
}

func (c *capture) send(fields [][]byte) error {
	var e []string
	for _, f := range fields {
		e = append(e, string(f))
	}
	c.entries = append(c.entries, e)
	return c.err
}

func captured(opts *HandlerOptions) (*Handler, *capture) {
	h := NewHandler(opts)
	c := &capture{}
	h.send = c.send
	return h, c
}

func TestHandlerWritesStructuredEntry(t *testing.T) {
	h, c := captured(&HandlerOptions{
		Identifier: "myapp",
		Fields:     map[string]string{"component": "api"},
	})
	logger := slog.New(h)

	logger.Warn("disk low", "free-bytes", 1024, slog.Group("req", "id", "r1", "user.name", "ann"))

	require.Len(t, c.entries, 1)
	assert.Equal(t, []string{
		"MESSAGE=disk low",
		"PRIORITY=4",
		"SYSLOG_IDENTIFIER=myapp",
		"COMPONENT=api",
		"FREE_BYTES=1024",
		"REQ_ID=r1",
		"REQ_USER_NAME=ann",
	}, c.entries[0])
}

func TestHandlerGroupsAndAttrs(t *testing.T) {
	h, c := captured(nil)
	logger := slog.New(h).With("session", "s1").WithGroup("http").With("method", "GET")

	logger.Info("request", "status", 200, slog.Group("", "inline", true))

	require.Len(t, c.entries, 1)
	assert.Equal(t, []string{
		"MESSAGE=request",
		"PRIORITY=6",
		"SESSION=s1",
		"HTTP_METHOD=GET",
		"HTTP_STATUS=200",
		"HTTP_INLINE=true",
	}, c.entries[0])

	// WithAttrs copies; the parent is unchanged.
	slog.New(h).Info("plain")
	assert.Equal(t, []string{"MESSAGE=plain", "PRIORITY=6"}, c.entries[1])
}

func TestHandlerSourceAndLevel(t *testing.T) {
	h, c := captured(&HandlerOptions{AddSource: true, Level: slog.LevelDebug})
	logger := slog.New(h)

	logger.Debug("trace")
	require.Len(t, c.entries, 1)
	e := strings.Join(c.entries[0], "\n")
	assert.Contains(t, e, "PRIORITY=7")
	assert.Contains(t, e, "CODE_FILE=")
	assert.Contains(t, e, "handler_test.go")
	assert.Contains(t, e, "CODE_FUNC=")

	quiet, qc := captured(nil)
	assert.False(t, quiet.Enabled(context.Background(), slog.LevelDebug))
	slog.New(quiet).Debug("dropped")
	assert.Empty(t, qc.entries)
}

func TestHandlerTimeValues(t *testing.T) {
	h, c := captured(nil)
	at := time.Date(2024, 3, 1, 12, 0, 0, 5, time.UTC)
	slog.New(h).Info("tick", "at", at)
	assert.Contains(t, c.entries[0], "AT=2024-03-01T12:00:00.000000005Z")
}

func TestHandlerReturnsSendError(t *testing.T) {
	h, c := captured(nil)
	c.err = errors.New("socket gone")
	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "x", 0))
	assert.EqualError(t, err, "socket gone")
}

func TestHandlerNamespaceUsesSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "sdjournal")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "socket")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	require.NoError(t, err)
	defer conn.Close()
	t.Setenv(nativesock.EnvSocket, path)

	logger := slog.New(NewHandler(&HandlerOptions{Namespace: "audit"}))
	logger.Error("failed", "trace", "line1\nline2")

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	fields, err := nativesock.Decode(buf[:n])
	require.NoError(t, err)
	var got []string
	for _, f := range fields {
		got = append(got, string(f))
	}
	assert.Equal(t, []string{"MESSAGE=failed", "PRIORITY=3", "TRACE=line1\nline2"}, got)
}

func TestFieldName(t *testing.T) {
	cases := map[string]string{
		"message":  "MESSAGE",
		"user.id":  "USER_ID",
		"_private": "PRIVATE",
		"2fa":      "ATTR_2FA",
		"":         "ATTR_",
		"Ünicode":  "NICODE",
	}
	for in, want := range cases {
		got := fieldName(in)
		assert.Equal(t, want, got, in)
		assert.True(t, ValidFieldName(got), got)
	}
	assert.Len(t, fieldName(strings.Repeat("a", 100)), 64)
}

func TestPriorityMapping(t *testing.T) {
	assert.Equal(t, Debug, priority(slog.LevelDebug))
	assert.Equal(t, Info, priority(slog.LevelInfo))
	assert.Equal(t, Notice, priority(slog.LevelInfo+2))
	assert.Equal(t, Warning, priority(slog.LevelWarn))
	assert.Equal(t, ErrorLevel, priority(slog.LevelError+4))
}

func TestSendValidates(t *testing.T) {
	assert.ErrorIs(t, Send("hi", Info, map[string]string{"bad name": "x"}), ErrInvalidField)
	assert.ErrorIs(t, LogRawRecord(), ErrRange)
	assert.ErrorIs(t, LogMessage(Info, "a\x00b"), ErrNul)
}

func TestSendReachesJournald(t *testing.T) {
	if !journal.Enabled() {
		t.Skip("journald socket not available")
	}
	assert.NoError(t, LogMessage(Debug, "sdjournal test %d"))
	assert.NoError(t, LogRawRecord("MESSAGE=sdjournal raw test", "PRIORITY=7"))
	assert.NoError(t, Send("sdjournal send test", Debug, map[string]string{
		"SDJOURNAL_TEST": "1",
		"MESSAGE":        "ignored",
	}))
}
