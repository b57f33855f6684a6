package sdjournal

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mbrock/sdjournal/pkg/sdjournal/lli"
)

// LogMessage writes a plain message at level. The message is never used as
// a format string.
func LogMessage(level Level, msg string) error {
	return lli.Print(level, msg)
}

// LogRawRecord writes one entry made of complete "FIELD=value" items.
func LogRawRecord(fields ...string) error {
	data := make([][]byte, len(fields))
	for i, f := range fields {
		data[i] = []byte(f)
	}
	return lli.Sendv(data)
}

// Send writes message at level with extra fields from vars. MESSAGE and
// PRIORITY in vars are ignored; the arguments win. Fields are sent sorted
// by name so entries are reproducible.
func Send(message string, level Level, vars map[string]string) error {
	data := make([][]byte, 0, len(vars)+2)
	data = append(data, []byte("MESSAGE="+message), []byte(level.PriorityField()))

	names := make([]string, 0, len(vars))
	for name := range vars {
		if name == "MESSAGE" || name == "PRIORITY" {
			continue
		}
		if !lli.ValidFieldName(name) {
			return fmt.Errorf("send: %w: %q", ErrInvalidField, name)
		}
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		data = append(data, []byte(name+"="+vars[name]))
	}
	return lli.Sendv(data)
}

// CatalogForMessageID returns the catalog text for a MESSAGE_ID without
// field substitution.
func CatalogForMessageID(id ID128) (string, error) {
	return lli.CatalogForMessageID(id)
}

// fieldName turns an arbitrary key into a valid journal field name.
// Lower case is upper-cased, other invalid bytes become '_', leading
// underscores are stripped since those names are reserved for journald,
// and names that would start with a digit get an ATTR_ prefix.
func fieldName(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - 'a' + 'A')
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	name := strings.TrimLeft(b.String(), "_")
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "ATTR_" + name
	}
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
