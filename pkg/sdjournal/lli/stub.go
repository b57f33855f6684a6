//go:build !linux || !cgo

// Package lli is a low-level binding of libsystemd's sd-journal API.
//
// This build has no cgo or is not running on Linux. Opening a journal fails
// with ErrUnsupported; Print and Sendv still work through journald's native
// socket protocol.
package lli

import (
	"bytes"
	"strconv"

	"github.com/coreos/go-systemd/v22/journal"
)

// Journal is never successfully constructed in this build.
type Journal struct{}

func Open(FileFlags, UserFlags) (*Journal, error) { return nil, ErrUnsupported }

func OpenNamespace(string, NamespaceFlags, FileFlags, UserFlags) (*Journal, error) {
	return nil, ErrUnsupported
}

func OpenAllNamespaces(FileFlags, UserFlags) (*Journal, error) { return nil, ErrUnsupported }

func OpenDirectory(string, PathFlags, UserFlags) (*Journal, error) { return nil, ErrUnsupported }

func OpenFiles([]string) (*Journal, error) { return nil, ErrUnsupported }

func CatalogForMessageID(ID128) (string, error) { return "", ErrUnsupported }

func (*Journal) Close() error                                { return ErrClosed }
func (*Journal) Next() (Movement, error)                     { return Movement{}, ErrUnsupported }
func (*Journal) Previous() (Movement, error)                 { return Movement{}, ErrUnsupported }
func (*Journal) NextSkip(int) (Movement, error)              { return Movement{}, ErrUnsupported }
func (*Journal) PreviousSkip(int) (Movement, error)          { return Movement{}, ErrUnsupported }
func (*Journal) SeekHead() error                             { return ErrUnsupported }
func (*Journal) SeekTail() error                             { return ErrUnsupported }
func (*Journal) SeekMonotonicUsec(ID128, uint64) error       { return ErrUnsupported }
func (*Journal) SeekRealtimeUsec(uint64) error               { return ErrUnsupported }
func (*Journal) SeekCursor(string) error                     { return ErrUnsupported }
func (*Journal) AddMatch([]byte) error                       { return ErrUnsupported }
func (*Journal) AddDisjunction() error                       { return ErrUnsupported }
func (*Journal) AddConjunction() error                       { return ErrUnsupported }
func (*Journal) FlushMatches() error                         { return ErrUnsupported }
func (*Journal) RealtimeUsec() (uint64, error)               { return 0, ErrUnsupported }
func (*Journal) MonotonicUsec() (uint64, ID128, error)       { return 0, ID128{}, ErrUnsupported }
func (*Journal) Cursor() (string, error)                     { return "", ErrUnsupported }
func (*Journal) TestCursor(string) (bool, error)             { return false, ErrUnsupported }
func (*Journal) CutoffRealtimeUsec() (uint64, uint64, error) { return 0, 0, ErrUnsupported }
func (*Journal) CutoffMonotonicUsec(ID128) (uint64, uint64, error) {
	return 0, 0, ErrUnsupported
}
func (*Journal) Data(string) ([]byte, error)             { return nil, ErrUnsupported }
func (*Journal) EnumerateData() ([]byte, error)          { return nil, ErrUnsupported }
func (*Journal) EnumerateAvailableData() ([]byte, error) { return nil, ErrUnsupported }
func (*Journal) RestartData() error                      { return ErrUnsupported }
func (*Journal) SetDataThreshold(int) error              { return ErrUnsupported }
func (*Journal) DataThreshold() (int, error)             { return 0, ErrUnsupported }
func (*Journal) EnumerateFields() (string, error)        { return "", ErrUnsupported }
func (*Journal) RestartFields() error                    { return ErrUnsupported }
func (*Journal) QueryUnique(string) error                { return ErrUnsupported }
func (*Journal) EnumerateUnique() ([]byte, error)        { return nil, ErrUnsupported }
func (*Journal) EnumerateAvailableUnique() ([]byte, error) {
	return nil, ErrUnsupported
}
func (*Journal) RestartUnique() error              { return ErrUnsupported }
func (*Journal) Catalog() (string, error)          { return "", ErrUnsupported }
func (*Journal) FD() (int, error)                  { return -1, ErrUnsupported }
func (*Journal) Events() (int, error)              { return 0, ErrUnsupported }
func (*Journal) Timeout() (uint64, error)          { return 0, ErrUnsupported }
func (*Journal) Process() (Event, error)           { return EventNop, ErrUnsupported }
func (*Journal) Wait(uint64) (Event, error)        { return EventNop, ErrUnsupported }
func (*Journal) HasRuntimeFiles() (bool, error)    { return false, ErrUnsupported }
func (*Journal) HasPersistentFiles() (bool, error) { return false, ErrUnsupported }
func (*Journal) Usage() (uint64, error)            { return 0, ErrUnsupported }

// Print sends message through journald's native socket.
func Print(level Level, message string) error {
	if hasNul(message) {
		return ErrNul
	}
	return journal.Send(message, journal.Priority(level), nil)
}

// Sendv sends one structured entry through journald's native socket.
func Sendv(fields [][]byte) error {
	if len(fields) == 0 {
		return ErrRange
	}
	var message string
	priority := journal.PriInfo
	vars := make(map[string]string, len(fields))
	for _, f := range fields {
		name, value, ok := bytes.Cut(f, []byte{'='})
		if !ok || !ValidFieldName(string(name)) {
			return ErrInvalidField
		}
		switch string(name) {
		case "MESSAGE":
			message = string(value)
		case "PRIORITY":
			n, err := strconv.Atoi(string(value))
			if err != nil || n < int(Emergency) || n > int(Debug) {
				return ErrRange
			}
			priority = journal.Priority(n)
		default:
			vars[string(name)] = string(value)
		}
	}
	return journal.Send(message, priority, vars)
}
