package lli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mbrock/sdjournal/internal/sderr"
	"github.com/mbrock/sdjournal/pkg/id128"
)

// Error is a negative errno reported by libsystemd, tagged with the name of
// the C function that returned it.
type Error = sderr.Error

// ID128 is re-exported for callers that only import lli.
type ID128 = id128.ID128

var (
	// ErrNul is returned when a string argument contains a NUL byte and
	// therefore cannot be passed to C.
	ErrNul = errors.New("sdjournal: string contains NUL byte")
	// ErrRange is returned for negative skip counts and other arguments
	// outside what the C API accepts.
	ErrRange = errors.New("sdjournal: argument out of range")
	// ErrClosed is returned by every method after Close.
	ErrClosed = errors.New("sdjournal: journal closed")
	// ErrUnexpectedDataFormat is returned when a data object does not have
	// the FIELD=value shape.
	ErrUnexpectedDataFormat = errors.New("sdjournal: unexpected data format")
	// ErrTimestampRange is returned when a timestamp cannot be represented
	// as microseconds since the epoch (or since boot).
	ErrTimestampRange = errors.New("sdjournal: timestamp out of range")
	// ErrUnsupported is returned by builds without cgo or outside Linux.
	ErrUnsupported = errors.New("sdjournal: libsystemd not available in this build")
	// ErrInvalidField is returned for field names journald would reject.
	ErrInvalidField = errors.New("sdjournal: invalid field name")
)

// FileFlags restrict which journal files sd_journal_open considers.
type FileFlags int

const (
	AllFiles         FileFlags = 0
	LocalOnly        FileFlags = 1 << 0 // SD_JOURNAL_LOCAL_ONLY
	RuntimeOnly      FileFlags = 1 << 1 // SD_JOURNAL_RUNTIME_ONLY
	LocalRuntimeOnly           = LocalOnly | RuntimeOnly
)

// UserFlags select system and/or user journals.
type UserFlags int

const (
	AllUsers             UserFlags = 0
	SystemOnly           UserFlags = 1 << 2 // SD_JOURNAL_SYSTEM
	CurrentUserOnly      UserFlags = 1 << 3 // SD_JOURNAL_CURRENT_USER
	CurrentUserAndSystem           = SystemOnly | CurrentUserOnly
)

// NamespaceFlags control namespace selection for OpenNamespace.
type NamespaceFlags int

const (
	SelectedNamespaceOnly    NamespaceFlags = 0
	DefaultNamespaceIncluded NamespaceFlags = 1 << 6 // SD_JOURNAL_INCLUDE_DEFAULT_NAMESPACE
)

// PathFlags control how OpenDirectory interprets its path.
type PathFlags int

const (
	FullPath     PathFlags = 0
	PathToOSRoot PathFlags = 1 << 4 // SD_JOURNAL_OS_ROOT
)

// Level is a syslog priority as stored in the PRIORITY field.
type Level int

const (
	Emergency Level = iota
	Alert
	Critical
	ErrorLevel
	Warning
	Notice
	Info
	Debug
)

var levelNames = [...]string{"emerg", "alert", "crit", "err", "warning", "notice", "info", "debug"}

func (l Level) String() string {
	if l < Emergency || l > Debug {
		return "Level(" + strconv.Itoa(int(l)) + ")"
	}
	return levelNames[l]
}

// Value is the bare digit stored in the journal, e.g. "6".
func (l Level) Value() string {
	return strconv.Itoa(int(l))
}

// PriorityField is the complete journal field, e.g. "PRIORITY=6".
func (l Level) PriorityField() string {
	return "PRIORITY=" + l.Value()
}

// ParseLevel accepts the syslog names journalctl accepts ("err", "warning",
// "info"...), a few common aliases, and the digits 0 through 7.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < int(Emergency) || n > int(Debug) {
			return 0, fmt.Errorf("priority %d: %w", n, ErrRange)
		}
		return Level(n), nil
	}
	for i, name := range levelNames {
		if s == name {
			return Level(i), nil
		}
	}
	switch s {
	case "emergency", "panic":
		return Emergency, nil
	case "critical":
		return Critical, nil
	case "error":
		return ErrorLevel, nil
	case "warn":
		return Warning, nil
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// Movement reports how far a Next/Previous call actually moved.
type Movement struct {
	Requested int
	Actual    int
}

// EOF reports that the cursor did not move at all.
func (m Movement) EOF() bool { return m.Actual == 0 }

// Limited reports a partial skip: some entries were passed but fewer than asked.
func (m Movement) Limited() bool { return m.Actual > 0 && m.Actual < m.Requested }

// Done reports that the full requested distance was covered.
func (m Movement) Done() bool { return m.Actual > 0 && m.Actual >= m.Requested }

func (m Movement) String() string {
	switch {
	case m.EOF():
		return "eof"
	case m.Limited():
		return "limited(" + strconv.Itoa(m.Actual) + ")"
	default:
		return "done"
	}
}

// Event is the result of Process and Wait.
type Event int

const (
	EventNop        Event = 0 // SD_JOURNAL_NOP
	EventAppend     Event = 1 // SD_JOURNAL_APPEND
	EventInvalidate Event = 2 // SD_JOURNAL_INVALIDATE
)

func (e Event) String() string {
	switch e {
	case EventNop:
		return "nop"
	case EventAppend:
		return "append"
	case EventInvalidate:
		return "invalidate"
	}
	return "Event(" + strconv.Itoa(int(e)) + ")"
}

// ValidFieldName reports whether journald would accept name as a field
// name: non-empty, at most 64 bytes, upper case letters, digits and
// underscores, not starting with a digit.
func ValidFieldName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	if name[0] >= '0' && name[0] <= '9' {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
			return false
		}
	}
	return true
}

func hasNul(s string) bool {
	return strings.IndexByte(s, 0) >= 0
}
