package sdjournal

import (
	"github.com/mbrock/sdjournal/pkg/id128"
	"github.com/mbrock/sdjournal/pkg/sdjournal/lli"
)

type (
	// Error is a negative errno reported by libsystemd. errors.Is works
	// against unix.Errno values and fs.ErrNotExist and friends.
	Error = lli.Error
	ID128 = id128.ID128

	Level          = lli.Level
	Movement       = lli.Movement
	Event          = lli.Event
	FileFlags      = lli.FileFlags
	UserFlags      = lli.UserFlags
	NamespaceFlags = lli.NamespaceFlags
	PathFlags      = lli.PathFlags
)

const (
	Emergency  = lli.Emergency
	Alert      = lli.Alert
	Critical   = lli.Critical
	ErrorLevel = lli.ErrorLevel
	Warning    = lli.Warning
	Notice     = lli.Notice
	Info       = lli.Info
	Debug      = lli.Debug

	AllFiles         = lli.AllFiles
	LocalOnly        = lli.LocalOnly
	RuntimeOnly      = lli.RuntimeOnly
	LocalRuntimeOnly = lli.LocalRuntimeOnly

	AllUsers             = lli.AllUsers
	SystemOnly           = lli.SystemOnly
	CurrentUserOnly      = lli.CurrentUserOnly
	CurrentUserAndSystem = lli.CurrentUserAndSystem

	SelectedNamespaceOnly    = lli.SelectedNamespaceOnly
	DefaultNamespaceIncluded = lli.DefaultNamespaceIncluded

	FullPath     = lli.FullPath
	PathToOSRoot = lli.PathToOSRoot

	EventNop        = lli.EventNop
	EventAppend     = lli.EventAppend
	EventInvalidate = lli.EventInvalidate
)

var (
	ErrNul                  = lli.ErrNul
	ErrRange                = lli.ErrRange
	ErrClosed               = lli.ErrClosed
	ErrUnexpectedDataFormat = lli.ErrUnexpectedDataFormat
	ErrTimestampRange       = lli.ErrTimestampRange
	ErrUnsupported          = lli.ErrUnsupported
	ErrInvalidField         = lli.ErrInvalidField
)

// ParseLevel accepts syslog priority names and the digits 0 to 7.
func ParseLevel(s string) (Level, error) {
	return lli.ParseLevel(s)
}

// ValidFieldName reports whether journald accepts name as a field name.
func ValidFieldName(name string) bool {
	return lli.ValidFieldName(name)
}

// Field is one FIELD=value item of an entry. Value holds the raw bytes,
// which need not be UTF-8.
type Field struct {
	Name  string
	Value string
}

func (f Field) String() string {
	return f.Name + "=" + f.Value
}

func splitField(data []byte) (Field, error) {
	for i, c := range data {
		if c == '=' {
			return Field{Name: string(data[:i]), Value: string(data[i+1:])}, nil
		}
	}
	return Field{}, ErrUnexpectedDataFormat
}
