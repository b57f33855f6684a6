package sdjournal

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Realtime is the wallclock time the current entry was received.
func (j *Journal) Realtime() (time.Time, error) {
	usec, err := j.raw.RealtimeUsec()
	if err != nil {
		return time.Time{}, err
	}
	return usecToTime(usec)
}

// Monotonic is the current entry's time since boot, and that boot's id.
func (j *Journal) Monotonic() (time.Duration, ID128, error) {
	usec, boot, err := j.raw.MonotonicUsec()
	if err != nil {
		return 0, boot, err
	}
	d, err := usecToDuration(usec)
	return d, boot, err
}

// CursorID returns the opaque cursor string of the current entry.
func (j *Journal) CursorID() (string, error) { return j.raw.Cursor() }

// CursorMatches reports whether the current entry is the one cursor names.
func (j *Journal) CursorMatches(cursor string) (bool, error) { return j.raw.TestCursor(cursor) }

// Catalog returns the explanatory catalog text for the current entry's
// MESSAGE_ID with field references filled in.
func (j *Journal) Catalog() (string, error) { return j.raw.Catalog() }

// GetData returns the value of field in the current entry. A missing field
// is an *Error wrapping ENOENT.
func (j *Journal) GetData(field string) (string, error) {
	v, err := j.GetDataBytes(field)
	return string(v), err
}

// GetDataBytes is GetData for binary values.
func (j *Journal) GetDataBytes(field string) ([]byte, error) {
	d, err := j.raw.Data(field)
	if err != nil {
		return nil, err
	}
	prefix := len(field) + 1
	if len(d) < prefix || string(d[:len(field)]) != field || d[len(field)] != '=' {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedDataFormat, truncate(d))
	}
	return d[prefix:], nil
}

// EnumerateFields returns the next field of the current entry, or io.EOF.
func (j *Journal) EnumerateFields() (Field, error) {
	d, err := j.raw.EnumerateData()
	if err != nil {
		return Field{}, err
	}
	return splitField(d)
}

// EnumerateAvailableFields is EnumerateFields skipping fields libsystemd
// cannot decode, such as payloads compressed with an unsupported algorithm.
func (j *Journal) EnumerateAvailableFields() (Field, error) {
	d, err := j.raw.EnumerateAvailableData()
	if err != nil {
		return Field{}, err
	}
	return splitField(d)
}

func (j *Journal) RestartFieldsEnumeration() error { return j.raw.RestartData() }

func truncate(b []byte) []byte {
	if len(b) > 64 {
		return b[:64]
	}
	return b
}

// Entry is a copy of one journal entry, detached from the journal.
type Entry struct {
	Cursor    string
	Realtime  time.Time
	Monotonic time.Duration
	BootID    ID128
	// Fields in the order libsystemd returned them. A field may repeat.
	Fields []Field
}

// Get returns the first value of name and whether it was present.
func (e *Entry) Get(name string) (string, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Value returns the first value of name or "".
func (e *Entry) Value(name string) string {
	v, _ := e.Get(name)
	return v
}

// Values returns every value of name.
func (e *Entry) Values(name string) []string {
	var out []string
	for _, f := range e.Fields {
		if f.Name == name {
			out = append(out, f.Value)
		}
	}
	return out
}

// Message is shorthand for Value("MESSAGE").
func (e *Entry) Message() string {
	return e.Value("MESSAGE")
}

// Priority parses PRIORITY, defaulting to Info when absent or malformed.
func (e *Entry) Priority() Level {
	if v, ok := e.Get("PRIORITY"); ok {
		if l, err := ParseLevel(v); err == nil {
			return l
		}
	}
	return Info
}

// Data returns the entry as "FIELD=value" items, suitable for writing it
// elsewhere.
func (e *Entry) Data() [][]byte {
	out := make([][]byte, 0, len(e.Fields))
	for _, f := range e.Fields {
		out = append(out, []byte(f.Name+"="+f.Value))
	}
	return out
}

// Entry snapshots the current entry. Fields libsystemd cannot decode are
// left out.
func (j *Journal) Entry() (*Entry, error) {
	e := &Entry{}
	var err error
	if e.Cursor, err = j.CursorID(); err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}
	if e.Realtime, err = j.Realtime(); err != nil {
		return nil, fmt.Errorf("realtime: %w", err)
	}
	if e.Monotonic, e.BootID, err = j.Monotonic(); err != nil {
		return nil, fmt.Errorf("monotonic: %w", err)
	}
	if err := j.RestartFieldsEnumeration(); err != nil {
		return nil, err
	}
	for {
		d, err := j.raw.EnumerateAvailableData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("enumerate data: %w", err)
		}
		i := bytes.IndexByte(d, '=')
		if i < 0 {
			j.log.Debug("skipping malformed data object", slog.String("op", "entry"), slog.Int("len", len(d)))
			continue
		}
		e.Fields = append(e.Fields, Field{Name: string(d[:i]), Value: string(d[i+1:])})
	}
	return e, nil
}

// Cursor is a view of the journal's current entry. Moving the journal
// moves every Cursor obtained from it; copy what you need with Entry.
type Cursor struct {
	j *Journal
}

// Cursor returns a view of the current entry.
func (j *Journal) Cursor() *Cursor {
	return &Cursor{j: j}
}

func (c *Cursor) Realtime() (time.Time, error)              { return c.j.Realtime() }
func (c *Cursor) Monotonic() (time.Duration, ID128, error)  { return c.j.Monotonic() }
func (c *Cursor) ID() (string, error)                       { return c.j.CursorID() }
func (c *Cursor) IDMatches(cursor string) (bool, error)     { return c.j.CursorMatches(cursor) }
func (c *Cursor) Catalog() (string, error)                  { return c.j.Catalog() }
func (c *Cursor) GetData(field string) (string, error)      { return c.j.GetData(field) }
func (c *Cursor) GetDataBytes(field string) ([]byte, error) { return c.j.GetDataBytes(field) }
func (c *Cursor) EnumerateFields() (Field, error)           { return c.j.EnumerateFields() }
func (c *Cursor) EnumerateAvailableFields() (Field, error)  { return c.j.EnumerateAvailableFields() }
func (c *Cursor) RestartFieldsEnumeration() error           { return c.j.RestartFieldsEnumeration() }
func (c *Cursor) Entry() (*Entry, error)                    { return c.j.Entry() }
