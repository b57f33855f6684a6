package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mbrock/sdjournal/pkg/sdjournal"
)

const (
	ansiReset     = "\x1b[0m"
	ansiBoldRed   = "\x1b[1;31m"
	ansiBold      = "\x1b[1m"
	ansiYellow    = "\x1b[33m"
	shortTimeForm = "Jan 02 15:04:05"
	verboseForm   = "Mon 2006-01-02 15:04:05.000000 MST"
)

// printer renders entries in one output format.
type printer struct {
	w      io.Writer
	format string
	color  bool
	loc    *time.Location
}

func newPrinter(w io.Writer, format string, color bool) *printer {
	return &printer{w: w, format: format, color: color, loc: time.Local}
}

func (p *printer) print(e *sdjournal.Entry) error {
	switch p.format {
	case "json":
		return p.json(e)
	case "cat":
		_, err := fmt.Fprintln(p.w, e.Message())
		return err
	case "verbose":
		return p.verbose(e)
	default:
		return p.short(e)
	}
}

// short mimics journalctl's default: time, host, identifier[pid]: message.
func (p *printer) short(e *sdjournal.Entry) error {
	var b strings.Builder
	b.WriteString(e.Realtime.In(p.loc).Format(shortTimeForm))
	if host, ok := e.Get("_HOSTNAME"); ok {
		b.WriteByte(' ')
		b.WriteString(host)
	}
	ident, ok := e.Get("SYSLOG_IDENTIFIER")
	if !ok {
		ident, ok = e.Get("_COMM")
	}
	if ok {
		b.WriteByte(' ')
		b.WriteString(ident)
		if pid, ok := e.Get("_PID"); ok {
			fmt.Fprintf(&b, "[%s]", pid)
		}
		b.WriteByte(':')
	}
	b.WriteByte(' ')

	msg := e.Message()
	if p.color {
		if c := levelColor(e.Priority()); c != "" {
			msg = c + msg + ansiReset
		}
	}
	b.WriteString(msg)
	_, err := fmt.Fprintln(p.w, b.String())
	return err
}

func levelColor(l sdjournal.Level) string {
	switch {
	case l <= sdjournal.ErrorLevel:
		return ansiBoldRed
	case l == sdjournal.Warning:
		return ansiYellow
	case l == sdjournal.Notice:
		return ansiBold
	default:
		return ""
	}
}

func (p *printer) verbose(e *sdjournal.Entry) error {
	if _, err := fmt.Fprintf(p.w, "%s [%s]\n", e.Realtime.In(p.loc).Format(verboseForm), e.Cursor); err != nil {
		return err
	}
	for _, f := range e.Fields {
		v := f.Value
		if !printable(v) {
			v = fmt.Sprintf("[%d bytes of binary data]", len(v))
		}
		if _, err := fmt.Fprintf(p.w, "    %s=%s\n", f.Name, v); err != nil {
			return err
		}
	}
	return nil
}

// json writes journalctl's export JSON: string values, arrays for repeated
// fields, and byte arrays for values that are not valid UTF-8.
func (p *printer) json(e *sdjournal.Entry) error {
	obj := map[string]any{
		"__CURSOR":              e.Cursor,
		"__REALTIME_TIMESTAMP":  strconv.FormatInt(e.Realtime.UnixMicro(), 10),
		"__MONOTONIC_TIMESTAMP": strconv.FormatInt(e.Monotonic.Microseconds(), 10),
		"_BOOT_ID":              e.BootID.String(),
	}
	for _, f := range e.Fields {
		v := jsonValue(f.Value)
		switch prev := obj[f.Name].(type) {
		case nil:
			obj[f.Name] = v
		case []any:
			obj[f.Name] = append(prev, v)
		default:
			if f.Name == "_BOOT_ID" {
				continue
			}
			obj[f.Name] = []any{prev, v}
		}
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(p.w, "%s\n", data)
	return err
}

func jsonValue(v string) any {
	if utf8.ValidString(v) {
		return v
	}
	out := make([]int, len(v))
	for i := 0; i < len(v); i++ {
		out[i] = int(v[i])
	}
	return out
}

func printable(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\t' {
			return false
		}
	}
	return true
}
