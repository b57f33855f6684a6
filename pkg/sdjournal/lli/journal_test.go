//go:build linux && cgo

package lli

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/mbrock/sdjournal/internal/fixture"
	"github.com/mbrock/sdjournal/pkg/id128"
)

func openFixture(t *testing.T) *Journal {
	t.Helper()
	j, err := OpenFiles([]string{fixture.Write(t)})
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestNextWalksEveryEntry(t *testing.T) {
	j := openFixture(t)
	for i := 0; i < fixture.Count; i++ {
		m, err := j.Next()
		require.NoError(t, err)
		require.True(t, m.Done(), "entry %d: %v", i, m)

		d, err := j.Data("MESSAGE")
		require.NoError(t, err)
		assert.Equal(t, "MESSAGE="+fixture.Message(i), string(d))
	}
	m, err := j.Next()
	require.NoError(t, err)
	assert.True(t, m.EOF())
	assert.Equal(t, "eof", m.String())
}

func TestPreviousFromTail(t *testing.T) {
	j := openFixture(t)
	require.NoError(t, j.SeekTail())

	m, err := j.Previous()
	require.NoError(t, err)
	require.True(t, m.Done())
	d, err := j.Data("SEQ")
	require.NoError(t, err)
	assert.Equal(t, "SEQ=29", string(d))
}

// After SeekHead, libsystemd only reports EOF for Previous once Next has
// landed on the first entry (systemd issue 17662). SeekTail mirrors it.
func TestPreviousAfterSeekHeadNeedsNext(t *testing.T) {
	j := openFixture(t)
	require.NoError(t, j.SeekHead())
	m, err := j.Next()
	require.NoError(t, err)
	require.True(t, m.Done())
	d, err := j.Data("SEQ")
	require.NoError(t, err)
	require.Equal(t, "SEQ=0", string(d))

	m, err = j.Previous()
	require.NoError(t, err)
	assert.True(t, m.EOF(), "%v", m)
}

func TestNextAfterSeekTailNeedsPrevious(t *testing.T) {
	j := openFixture(t)
	require.NoError(t, j.SeekTail())
	m, err := j.Previous()
	require.NoError(t, err)
	require.True(t, m.Done())

	m, err = j.Next()
	require.NoError(t, err)
	assert.True(t, m.EOF(), "%v", m)
}

func TestSkipMovement(t *testing.T) {
	j := openFixture(t)

	m, err := j.NextSkip(5)
	require.NoError(t, err)
	assert.Equal(t, Movement{Requested: 5, Actual: 5}, m)
	assert.True(t, m.Done())
	d, err := j.Data("SEQ")
	require.NoError(t, err)
	assert.Equal(t, "SEQ=4", string(d))

	m, err = j.NextSkip(1000)
	require.NoError(t, err)
	assert.True(t, m.Limited(), "got %v", m)
	assert.Equal(t, fixture.Count-5, m.Actual)
	assert.Equal(t, "limited(25)", m.String())

	m, err = j.PreviousSkip(2)
	require.NoError(t, err)
	assert.True(t, m.Done())
	d, err = j.Data("SEQ")
	require.NoError(t, err)
	assert.Equal(t, "SEQ=27", string(d))

	_, err = j.NextSkip(-1)
	assert.ErrorIs(t, err, ErrRange)
	_, err = j.PreviousSkip(-1)
	assert.ErrorIs(t, err, ErrRange)
}

func TestMissingFieldIsENOENT(t *testing.T) {
	j := openFixture(t)
	_, err := j.Next()
	require.NoError(t, err)

	_, err = j.Data("NOT_THERE")
	require.Error(t, err)
	assert.ErrorIs(t, err, unix.ENOENT)

	var sdErr *Error
	require.True(t, errors.As(err, &sdErr))
	assert.Equal(t, "sd_journal_get_data", sdErr.Op)
}

func TestDataBeforeFirstNextFails(t *testing.T) {
	j := openFixture(t)
	_, err := j.Data("MESSAGE")
	assert.Error(t, err)
}

func TestBinaryDataIsReturnedByLength(t *testing.T) {
	j := openFixture(t)
	_, err := j.Next()
	require.NoError(t, err)

	d, err := j.Data("BLOB")
	require.NoError(t, err)
	assert.Equal(t, append([]byte("BLOB="), fixture.Blob...), d)
}

func TestEnumerateDataAndRestart(t *testing.T) {
	j := openFixture(t)
	_, err := j.Next()
	require.NoError(t, err)

	collect := func(next func() ([]byte, error)) []string {
		var out []string
		for {
			d, err := next()
			if err == io.EOF {
				return out
			}
			require.NoError(t, err)
			out = append(out, string(d))
		}
	}

	first := collect(j.EnumerateData)
	assert.Contains(t, first, "MESSAGE="+fixture.Message(0))
	assert.Contains(t, first, "SYSLOG_IDENTIFIER=fixture")

	// Exhausted until restarted.
	_, err = j.EnumerateData()
	assert.Equal(t, io.EOF, err)

	require.NoError(t, j.RestartData())
	assert.ElementsMatch(t, first, collect(j.EnumerateAvailableData))
}

func TestCursorRoundTrip(t *testing.T) {
	j := openFixture(t)
	_, err := j.NextSkip(10)
	require.NoError(t, err)

	c, err := j.Cursor()
	require.NoError(t, err)
	assert.NotEmpty(t, c)

	ok, err := j.TestCursor(c)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, j.SeekHead())
	_, err = j.Next()
	require.NoError(t, err)
	ok, err = j.TestCursor(c)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, j.SeekCursor(c))
	_, err = j.Next()
	require.NoError(t, err)
	d, err := j.Data("SEQ")
	require.NoError(t, err)
	assert.Equal(t, "SEQ=9", string(d))

	assert.ErrorIs(t, j.SeekCursor("s=\x00"), ErrNul)
}

func TestTimestampsAndSeeking(t *testing.T) {
	j := openFixture(t)
	_, err := j.NextSkip(3)
	require.NoError(t, err)

	rt, err := j.RealtimeUsec()
	require.NoError(t, err)
	assert.Equal(t, uint64(fixture.Realtime(2).UnixMicro()), rt)

	mono, boot, err := j.MonotonicUsec()
	require.NoError(t, err)
	assert.Equal(t, uint64(fixture.Monotonic(2).Microseconds()), mono)
	assert.Equal(t, fixture.BootID, boot)

	require.NoError(t, j.SeekRealtimeUsec(uint64(fixture.Realtime(17).UnixMicro())))
	_, err = j.Next()
	require.NoError(t, err)
	d, err := j.Data("SEQ")
	require.NoError(t, err)
	assert.Equal(t, "SEQ=17", string(d))

	require.NoError(t, j.SeekMonotonicUsec(fixture.BootID, uint64(fixture.Monotonic(21).Microseconds())))
	_, err = j.Next()
	require.NoError(t, err)
	d, err = j.Data("SEQ")
	require.NoError(t, err)
	assert.Equal(t, "SEQ=21", string(d))
}

func TestCutoffs(t *testing.T) {
	j := openFixture(t)

	from, to, err := j.CutoffRealtimeUsec()
	require.NoError(t, err)
	assert.Equal(t, uint64(fixture.Realtime(0).UnixMicro()), from)
	assert.Equal(t, uint64(fixture.Realtime(fixture.Count-1).UnixMicro()), to)

	from, to, err = j.CutoffMonotonicUsec(fixture.BootID)
	require.NoError(t, err)
	assert.Equal(t, uint64(fixture.Monotonic(0).Microseconds()), from)
	assert.Equal(t, uint64(fixture.Monotonic(fixture.Count-1).Microseconds()), to)

	other, err := id128.Random()
	require.NoError(t, err)
	from, to, err = j.CutoffMonotonicUsec(other)
	require.NoError(t, err)
	assert.Zero(t, from)
	assert.Zero(t, to)
}

func countEntries(t *testing.T, j *Journal) int {
	t.Helper()
	require.NoError(t, j.SeekHead())
	n := 0
	for {
		m, err := j.Next()
		require.NoError(t, err)
		if m.EOF() {
			return n
		}
		n++
	}
}

func TestMatches(t *testing.T) {
	j := openFixture(t)

	require.NoError(t, j.AddMatch([]byte("_SYSTEMD_UNIT=beta.service")))
	assert.Equal(t, len(fixture.UnitEntries("beta.service")), countEntries(t, j))

	require.NoError(t, j.AddDisjunction())
	require.NoError(t, j.AddMatch([]byte("_SYSTEMD_UNIT=gamma.service")))
	assert.Equal(t,
		len(fixture.UnitEntries("beta.service"))+len(fixture.UnitEntries("gamma.service")),
		countEntries(t, j))

	require.NoError(t, j.FlushMatches())
	require.NoError(t, j.AddMatch([]byte("PRIORITY=3")))
	require.NoError(t, j.AddConjunction())
	require.NoError(t, j.AddMatch([]byte("SYSLOG_IDENTIFIER=fixture")))
	assert.Equal(t, 4, countEntries(t, j)) // SEQ 3, 11, 19, 27

	require.NoError(t, j.FlushMatches())
	assert.Equal(t, fixture.Count, countEntries(t, j))

	assert.Error(t, j.AddMatch([]byte("no equals sign")))
}

func TestEnumerateFields(t *testing.T) {
	j := openFixture(t)
	var names []string
	for {
		f, err := j.EnumerateFields()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, f)
	}
	for _, want := range []string{"MESSAGE", "PRIORITY", "SEQ", "BLOB", "COREDUMP_UNIT", "_SYSTEMD_UNIT"} {
		assert.Contains(t, names, want)
	}

	require.NoError(t, j.RestartFields())
	f, err := j.EnumerateFields()
	require.NoError(t, err)
	assert.NotEmpty(t, f)
}

func TestUniqueValues(t *testing.T) {
	j := openFixture(t)
	require.NoError(t, j.QueryUnique("_SYSTEMD_UNIT"))

	var values []string
	for {
		d, err := j.EnumerateUnique()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		values = append(values, string(d))
	}
	want := []string{"_SYSTEMD_UNIT=systemd-coredump@0.service"}
	for _, u := range fixture.Units {
		want = append(want, "_SYSTEMD_UNIT="+u)
	}
	assert.ElementsMatch(t, want, values)

	require.NoError(t, j.RestartUnique())
	d, err := j.EnumerateAvailableUnique()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(d, []byte("_SYSTEMD_UNIT=")))

	assert.ErrorIs(t, j.QueryUnique("A\x00B"), ErrNul)
}

func TestDataThreshold(t *testing.T) {
	j := openFixture(t)
	require.NoError(t, j.SetDataThreshold(4096))
	n, err := j.DataThreshold()
	require.NoError(t, err)
	assert.Equal(t, 4096, n)
	assert.ErrorIs(t, j.SetDataThreshold(-1), ErrRange)
}

func TestCatalogWithoutEntryIsENOENT(t *testing.T) {
	j := openFixture(t)
	_, err := j.Next()
	require.NoError(t, err)
	_, err = j.Catalog()
	assert.Error(t, err)

	id, err := id128.Random()
	require.NoError(t, err)
	_, err = CatalogForMessageID(id)
	assert.ErrorIs(t, err, unix.ENOENT)
}

func TestEventsAndFiles(t *testing.T) {
	j := openFixture(t)

	fd, err := j.FD()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, fd, 0)

	ev, err := j.Events()
	require.NoError(t, err)
	assert.NotZero(t, ev&unix.POLLIN)

	_, err = j.Timeout()
	require.NoError(t, err)

	e, err := j.Process()
	require.NoError(t, err)
	assert.Contains(t, []Event{EventNop, EventAppend, EventInvalidate}, e)

	e, err = j.Wait(0)
	require.NoError(t, err)
	assert.Contains(t, []Event{EventNop, EventAppend, EventInvalidate}, e)

	usage, err := j.Usage()
	require.NoError(t, err)
	assert.NotZero(t, usage)

	_, err = j.HasRuntimeFiles()
	require.NoError(t, err)
	_, err = j.HasPersistentFiles()
	require.NoError(t, err)
}

func TestOpenDirectory(t *testing.T) {
	path := fixture.Write(t)
	j, err := OpenDirectory(filepath.Dir(path), FullPath, AllUsers)
	require.NoError(t, err)
	defer j.Close()
	assert.Equal(t, fixture.Count, countEntries(t, j))

	_, err = OpenDirectory("/tmp/\x00", FullPath, AllUsers)
	assert.ErrorIs(t, err, ErrNul)
}

func TestOpenFilesRejectsNul(t *testing.T) {
	_, err := OpenFiles([]string{"ok.journal", "bad\x00.journal"})
	assert.ErrorIs(t, err, ErrNul)
}

func TestOpenFilesMissing(t *testing.T) {
	_, err := OpenFiles([]string{filepath.Join(t.TempDir(), "missing.journal")})
	assert.ErrorIs(t, err, unix.ENOENT)
}

func TestCloseIsFinal(t *testing.T) {
	j, err := OpenFiles([]string{fixture.Write(t)})
	require.NoError(t, err)
	require.NoError(t, j.Close())
	assert.ErrorIs(t, j.Close(), ErrClosed)

	_, err = j.Next()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = j.Data("MESSAGE")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, j.SeekHead(), ErrClosed)
}

func TestConcurrentCallsAreSerialized(t *testing.T) {
	j := openFixture(t)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := j.Next(); err != nil {
					t.Error(err)
					return
				}
				if _, err := j.Data("MESSAGE"); err != nil && !errors.Is(err, unix.EADDRNOTAVAIL) {
					t.Error(err)
					return
				}
				if i%10 == 0 {
					if err := j.SeekHead(); err != nil {
						t.Error(err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}

func TestFieldNameValidation(t *testing.T) {
	for _, ok := range []string{"MESSAGE", "_SYSTEMD_UNIT", "A1", "__REALTIME_TIMESTAMP"} {
		assert.True(t, ValidFieldName(ok), ok)
	}
	for _, bad := range []string{"", "message", "1ABC", "A-B", "A=B", strings.Repeat("A", 65)} {
		assert.False(t, ValidFieldName(bad), bad)
	}
}
