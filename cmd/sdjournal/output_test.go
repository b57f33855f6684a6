package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbrock/sdjournal/pkg/id128"
	"github.com/mbrock/sdjournal/pkg/sdjournal"
)

func sampleEntry() *sdjournal.Entry {
	return &sdjournal.Entry{
		Cursor:    "s=abc;i=1",
		Realtime:  time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC),
		Monotonic: 1500 * time.Millisecond,
		BootID:    id128.MustParse("0b1a2c3d4e5f60718293a4b5c6d7e8f9"),
		Fields: []sdjournal.Field{
			{Name: "MESSAGE", Value: "disk full"},
			{Name: "PRIORITY", Value: "3"},
			{Name: "_HOSTNAME", Value: "box"},
			{Name: "SYSLOG_IDENTIFIER", Value: "df"},
			{Name: "_PID", Value: "42"},
			{Name: "TAG", Value: "a"},
			{Name: "TAG", Value: "b"},
			{Name: "BLOB", Value: "\xff\x00"},
		},
	}
}

func render(t *testing.T, format string, color bool) string {
	t.Helper()
	var buf bytes.Buffer
	p := newPrinter(&buf, format, color)
	p.loc = time.UTC
	require.NoError(t, p.print(sampleEntry()))
	return buf.String()
}

func TestShortOutput(t *testing.T) {
	assert.Equal(t, "Mar 01 12:00:05 box df[42]: disk full\n", render(t, "short", false))
	assert.Equal(t, "Mar 01 12:00:05 box df[42]: "+ansiBoldRed+"disk full"+ansiReset+"\n", render(t, "short", true))
}

func TestCatOutput(t *testing.T) {
	assert.Equal(t, "disk full\n", render(t, "cat", false))
}

func TestVerboseOutput(t *testing.T) {
	out := render(t, "verbose", false)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	assert.Equal(t, "Fri 2024-03-01 12:00:05.000000 UTC [s=abc;i=1]", lines[0])
	assert.Contains(t, lines, "    MESSAGE=disk full")
	assert.Contains(t, lines, "    BLOB=[2 bytes of binary data]")
}

func TestJSONOutput(t *testing.T) {
	var obj map[string]any
	require.NoError(t, json.Unmarshal([]byte(render(t, "json", false)), &obj))

	assert.Equal(t, "disk full", obj["MESSAGE"])
	assert.Equal(t, "1709294405000000", obj["__REALTIME_TIMESTAMP"])
	assert.Equal(t, "1500000", obj["__MONOTONIC_TIMESTAMP"])
	assert.Equal(t, "0b1a2c3d4e5f60718293a4b5c6d7e8f9", obj["_BOOT_ID"])
	assert.Equal(t, []any{"a", "b"}, obj["TAG"])
	assert.Equal(t, []any{float64(255), float64(0)}, obj["BLOB"])
}

func TestLevelColor(t *testing.T) {
	assert.Equal(t, ansiBoldRed, levelColor(sdjournal.Emergency))
	assert.Equal(t, ansiYellow, levelColor(sdjournal.Warning))
	assert.Equal(t, ansiBold, levelColor(sdjournal.Notice))
	assert.Empty(t, levelColor(sdjournal.Info))
}

func TestParseSince(t *testing.T) {
	loc := time.FixedZone("X", 2*3600)
	now := time.Date(2024, 3, 10, 15, 30, 0, 0, loc)

	cases := map[string]time.Time{
		"now":                  now,
		"today":                time.Date(2024, 3, 10, 0, 0, 0, 0, loc),
		"yesterday":            time.Date(2024, 3, 9, 0, 0, 0, 0, loc),
		"-90m":                 now.Add(-90 * time.Minute),
		"2024-03-01":           time.Date(2024, 3, 1, 0, 0, 0, 0, loc),
		"2024-03-01 08:15":     time.Date(2024, 3, 1, 8, 15, 0, 0, loc),
		"2024-03-01 08:15:30":  time.Date(2024, 3, 1, 8, 15, 30, 0, loc),
		"2024-03-01T08:15:30Z": time.Date(2024, 3, 1, 8, 15, 30, 0, time.UTC),
	}
	for in, want := range cases {
		got, err := parseSince(in, now)
		if assert.NoError(t, err, in) {
			assert.True(t, want.Equal(got), "%s: got %v want %v", in, got, want)
		}
	}

	_, err := parseSince("last tuesday", now)
	assert.Error(t, err)
	_, err = parseSince("-forever", now)
	assert.Error(t, err)
}

func TestCursorFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "cursor")

	c, err := readCursorFile(path)
	require.NoError(t, err)
	assert.Empty(t, c)

	require.NoError(t, writeCursorFile(path, "s=1;i=2"))
	c, err = readCursorFile(path)
	require.NoError(t, err)
	assert.Equal(t, "s=1;i=2", c)

	// An empty cursor leaves the file alone.
	require.NoError(t, writeCursorFile(path, ""))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "s=1;i=2\n", string(data))
}

func TestCursorFilePath(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/state")
	defer func() { cursorFileFlag = "" }()

	cursorFileFlag = "web"
	assert.Equal(t, "/state/sdjournal/cursors/web", cursorFilePath())
	cursorFileFlag = "/tmp/c"
	assert.Equal(t, "/tmp/c", cursorFilePath())
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.5 KiB", humanBytes(1536))
	assert.Equal(t, "8.0 MiB", humanBytes(8<<20))
}
