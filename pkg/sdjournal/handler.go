package sdjournal

import (
	"context"
	"log/slog"
	"maps"
	"runtime"
	"slices"
	"strconv"
	"time"

	"github.com/mbrock/sdjournal/internal/nativesock"
	"github.com/mbrock/sdjournal/pkg/sdjournal/lli"
)

// HandlerOptions configure a Handler. The zero value logs Info and above
// to the default journald namespace.
type HandlerOptions struct {
	// Level is the minimum level logged.
	Level slog.Leveler

	// AddSource adds CODE_FILE, CODE_LINE and CODE_FUNC.
	AddSource bool

	// Identifier is sent as SYSLOG_IDENTIFIER when set.
	Identifier string

	// Fields are added to every entry. Names are normalised like attribute
	// keys.
	Fields map[string]string

	// Namespace sends to a journald namespace socket instead of the
	// default journal.
	Namespace string
}

// Handler is a slog.Handler writing each record as one structured journal
// entry. Attribute keys become upper case field names with invalid
// characters replaced by '_'; group names are joined to them with '_'.
type Handler struct {
	opts   HandlerOptions
	prefix string
	fixed  [][]byte
	send   func([][]byte) error
}

var _ slog.Handler = (*Handler)(nil)

// NewHandler returns a journal handler. opts may be nil.
func NewHandler(opts *HandlerOptions) *Handler {
	h := &Handler{}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.Level == nil {
		h.opts.Level = slog.LevelInfo
	}
	if h.opts.Namespace != "" {
		h.send = nativesock.New(nativesock.SocketPath(h.opts.Namespace)).Write
	} else {
		h.send = lli.Sendv
	}
	if h.opts.Identifier != "" {
		h.fixed = append(h.fixed, []byte("SYSLOG_IDENTIFIER="+h.opts.Identifier))
	}
	for _, name := range slices.Sorted(maps.Keys(h.opts.Fields)) {
		h.fixed = append(h.fixed, []byte(fieldName(name)+"="+h.opts.Fields[name]))
	}
	return h
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	data := make([][]byte, 0, 4+len(h.fixed)+r.NumAttrs())
	data = append(data,
		[]byte("MESSAGE="+r.Message),
		[]byte(priority(r.Level).PriorityField()),
	)
	if h.opts.AddSource && r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := frames.Next()
		data = append(data,
			[]byte("CODE_FILE="+f.File),
			[]byte("CODE_LINE="+strconv.Itoa(f.Line)),
			[]byte("CODE_FUNC="+f.Function),
		)
	}
	data = append(data, h.fixed...)
	r.Attrs(func(a slog.Attr) bool {
		data = appendAttr(data, h.prefix, a)
		return true
	})
	return h.send(data)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.fixed = append([][]byte(nil), h.fixed...)
	for _, a := range attrs {
		h2.fixed = appendAttr(h2.fixed, h.prefix, a)
	}
	return &h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "_"
	return &h2
}

func appendAttr(data [][]byte, prefix string, a slog.Attr) [][]byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return data
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "_"
		}
		for _, ga := range a.Value.Group() {
			data = appendAttr(data, prefix, ga)
		}
		return data
	}
	var value string
	switch a.Value.Kind() {
	case slog.KindTime:
		value = a.Value.Time().Format(time.RFC3339Nano)
	default:
		value = a.Value.String()
	}
	return append(data, []byte(fieldName(prefix+a.Key)+"="+value))
}

// priority maps slog levels onto syslog priorities. Levels between Info
// and Warn become Notice.
func priority(l slog.Level) Level {
	switch {
	case l >= slog.LevelError:
		return ErrorLevel
	case l >= slog.LevelWarn:
		return Warning
	case l > slog.LevelInfo:
		return Notice
	case l >= slog.LevelInfo:
		return Info
	default:
		return Debug
	}
}
