// Package sdjournal reads and writes the systemd journal through libsystemd.
//
// A Journal wraps one sd_journal handle. Movement (Next, Previous, seeking)
// changes which entry is current; per-entry accessors such as GetData and
// Realtime read that current entry. Cursors, Fields, FieldNames and
// UniqueValues expose the same traversal as range-over-func iterators.
//
// libsystemd has a long-standing quirk (systemd issue 17662): Previous right
// after SeekHead, or Next right after SeekTail, may land on an entry instead
// of reporting EOF. The binding forwards libsystemd's behaviour unchanged.
// Calling Next after SeekHead, or Previous after SeekTail, behaves as
// expected.
package sdjournal

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/mbrock/sdjournal/pkg/sdjournal/lli"
)

// Journal is an open journal. It is safe for concurrent use, but movement by
// one goroutine changes the current entry seen by every other.
type Journal struct {
	raw *lli.Journal
	log *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Journal at open time.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	dataThreshold int
	hasThreshold  bool
}

// WithLogger sets the logger used for debug output. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDataThreshold calls SetDataThreshold right after opening.
func WithDataThreshold(n int) Option {
	return func(o *options) {
		o.dataThreshold = n
		o.hasThreshold = true
	}
}

func newJournal(raw *lli.Journal, what string, opts []Option) (*Journal, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	j := &Journal{raw: raw, log: o.logger}
	if o.hasThreshold {
		if err := raw.SetDataThreshold(o.dataThreshold); err != nil {
			raw.Close()
			return nil, fmt.Errorf("set data threshold: %w", err)
		}
	}
	j.log.Debug("journal opened", slog.String("source", what))
	return j, nil
}

// Open opens the local journal.
func Open(files FileFlags, users UserFlags, opts ...Option) (*Journal, error) {
	raw, err := lli.Open(files, users)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return newJournal(raw, "local", opts)
}

// OpenNamespace opens the journal of a journald namespace.
func OpenNamespace(namespace string, ns NamespaceFlags, files FileFlags, users UserFlags, opts ...Option) (*Journal, error) {
	raw, err := lli.OpenNamespace(namespace, ns, files, users)
	if err != nil {
		return nil, fmt.Errorf("open journal namespace %q: %w", namespace, err)
	}
	return newJournal(raw, "namespace:"+namespace, opts)
}

// OpenAllNamespaces opens the journals of every namespace.
func OpenAllNamespaces(files FileFlags, users UserFlags, opts ...Option) (*Journal, error) {
	raw, err := lli.OpenAllNamespaces(files, users)
	if err != nil {
		return nil, fmt.Errorf("open all journal namespaces: %w", err)
	}
	return newJournal(raw, "all-namespaces", opts)
}

// OpenDirectory opens the journal files in a directory, or below an OS root
// with PathToOSRoot.
func OpenDirectory(path string, flags PathFlags, users UserFlags, opts ...Option) (*Journal, error) {
	raw, err := lli.OpenDirectory(path, flags, users)
	if err != nil {
		return nil, fmt.Errorf("open journal directory %s: %w", path, err)
	}
	return newJournal(raw, "directory:"+path, opts)
}

// OpenFiles opens exactly the given journal files.
func OpenFiles(paths []string, opts ...Option) (*Journal, error) {
	raw, err := lli.OpenFiles(paths)
	if err != nil {
		return nil, fmt.Errorf("open journal files: %w", err)
	}
	return newJournal(raw, fmt.Sprintf("files:%d", len(paths)), opts)
}

// Close releases the handle. Closing twice is harmless.
func (j *Journal) Close() error {
	j.closeOnce.Do(func() {
		j.closeErr = j.raw.Close()
		j.log.Debug("journal closed")
	})
	return j.closeErr
}

func (j *Journal) Next() (Movement, error)              { return j.raw.Next() }
func (j *Journal) Previous() (Movement, error)          { return j.raw.Previous() }
func (j *Journal) NextSkip(n int) (Movement, error)     { return j.raw.NextSkip(n) }
func (j *Journal) PreviousSkip(n int) (Movement, error) { return j.raw.PreviousSkip(n) }

func (j *Journal) SeekHead() error { return j.raw.SeekHead() }
func (j *Journal) SeekTail() error { return j.raw.SeekTail() }

// SeekCursor positions at the entry named by cursor. Call Next to make it
// current.
func (j *Journal) SeekCursor(cursor string) error { return j.raw.SeekCursor(cursor) }

// SeekRealtime positions at the first entry at or after t.
func (j *Journal) SeekRealtime(t time.Time) error {
	usec, err := realtimeUsec(t)
	if err != nil {
		return err
	}
	return j.raw.SeekRealtimeUsec(usec)
}

// SeekMonotonic positions at the first entry of boot at or after d since
// that boot started.
func (j *Journal) SeekMonotonic(boot ID128, d time.Duration) error {
	if d < 0 {
		return ErrTimestampRange
	}
	return j.raw.SeekMonotonicUsec(boot, uint64(d/time.Microsecond))
}

// AddMatch restricts traversal to entries with field=value. Matches on
// different fields are ANDed, on the same field ORed, until AddDisjunction
// or AddConjunction change the grouping.
func (j *Journal) AddMatch(field, value string) error {
	if !lli.ValidFieldName(field) {
		return fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	return j.raw.AddMatch([]byte(field + "=" + value))
}

// AddMatchRaw adds a complete "FIELD=value" match, value bytes as-is.
func (j *Journal) AddMatchRaw(data []byte) error { return j.raw.AddMatch(data) }

func (j *Journal) AddDisjunction() error { return j.raw.AddDisjunction() }
func (j *Journal) AddConjunction() error { return j.raw.AddConjunction() }
func (j *Journal) FlushMatches() error   { return j.raw.FlushMatches() }

// CutoffRealtime returns the time range covered by the journal. Both are
// the zero Time when the journal is empty.
func (j *Journal) CutoffRealtime() (from, to time.Time, err error) {
	f, t, err := j.raw.CutoffRealtimeUsec()
	if err != nil || (f == 0 && t == 0) {
		return time.Time{}, time.Time{}, err
	}
	if from, err = usecToTime(f); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to, err = usecToTime(t); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

// CutoffMonotonic returns the monotonic range covered for one boot. Both
// are zero when the journal has no entries of that boot.
func (j *Journal) CutoffMonotonic(boot ID128) (from, to time.Duration, err error) {
	f, t, err := j.raw.CutoffMonotonicUsec(boot)
	if err != nil {
		return 0, 0, err
	}
	if from, err = usecToDuration(f); err != nil {
		return 0, 0, err
	}
	if to, err = usecToDuration(t); err != nil {
		return 0, 0, err
	}
	return from, to, nil
}

func (j *Journal) SetDataThreshold(n int) error { return j.raw.SetDataThreshold(n) }
func (j *Journal) DataThreshold() (int, error)  { return j.raw.DataThreshold() }

// EnumerateFieldNames returns the next field name used in the journal, or
// io.EOF.
func (j *Journal) EnumerateFieldNames() (string, error) { return j.raw.EnumerateFields() }
func (j *Journal) RestartFieldNameEnumeration() error   { return j.raw.RestartFields() }

// QueryUniqueValues selects the field EnumerateUniqueValues walks.
func (j *Journal) QueryUniqueValues(field string) error { return j.raw.QueryUnique(field) }

// EnumerateUniqueValues returns the next distinct value of the queried
// field without the "FIELD=" prefix, or io.EOF.
func (j *Journal) EnumerateUniqueValues() (string, error) {
	d, err := j.raw.EnumerateUnique()
	if err != nil {
		return "", err
	}
	f, err := splitField(d)
	return f.Value, err
}

// EnumerateAvailableUniqueValues is EnumerateUniqueValues skipping values
// libsystemd cannot decode.
func (j *Journal) EnumerateAvailableUniqueValues() (string, error) {
	d, err := j.raw.EnumerateAvailableUnique()
	if err != nil {
		return "", err
	}
	f, err := splitField(d)
	return f.Value, err
}

func (j *Journal) RestartUniqueValueEnumeration() error { return j.raw.RestartUnique() }

// FD returns the inotify based descriptor to poll for changes.
func (j *Journal) FD() (int, error)        { return j.raw.FD() }
func (j *Journal) Events() (int, error)    { return j.raw.Events() }
func (j *Journal) Process() (Event, error) { return j.raw.Process() }

// Timeout returns the absolute CLOCK_MONOTONIC deadline libsystemd wants
// Process called by, and false when there is none.
func (j *Journal) Timeout() (time.Duration, bool, error) {
	usec, err := j.raw.Timeout()
	if err != nil {
		return 0, false, err
	}
	if usec == math.MaxUint64 {
		return 0, false, nil
	}
	d, err := usecToDuration(usec)
	return d, err == nil, err
}

// Wait blocks until the journal changes or timeout passes. A negative
// timeout waits forever. It is WaitContext without cancellation, so the
// handle is not locked while waiting and Close from another goroutine ends
// the wait with ErrClosed.
func (j *Journal) Wait(timeout time.Duration) (Event, error) {
	return j.WaitContext(context.Background(), timeout)
}

func (j *Journal) HasRuntimeFiles() (bool, error)    { return j.raw.HasRuntimeFiles() }
func (j *Journal) HasPersistentFiles() (bool, error) { return j.raw.HasPersistentFiles() }

// Usage returns the bytes used on disk by the opened journal files.
func (j *Journal) Usage() (uint64, error) { return j.raw.Usage() }

func realtimeUsec(t time.Time) (uint64, error) {
	usec := t.UnixMicro()
	if usec < 0 {
		return 0, ErrTimestampRange
	}
	return uint64(usec), nil
}

func usecToTime(usec uint64) (time.Time, error) {
	if usec > math.MaxInt64 {
		return time.Time{}, ErrTimestampRange
	}
	return time.UnixMicro(int64(usec)), nil
}

func usecToDuration(usec uint64) (time.Duration, error) {
	if usec > uint64(math.MaxInt64/int64(time.Microsecond)) {
		return 0, ErrTimestampRange
	}
	return time.Duration(usec) * time.Microsecond, nil
}
