//go:build linux && cgo

// Package lli is a low-level binding of libsystemd's sd-journal API.
//
// Each method on Journal forwards to exactly one sd_journal_* function. Go
// strings are copied into NUL-terminated C strings, negative return values
// become *Error, and memory handed out by libsystemd is released before the
// method returns. Data is returned as raw "FIELD=value" bytes.
package lli

/*
#cgo pkg-config: libsystemd
#include <stdlib.h>
#include <stdint.h>
#include <string.h>
#include <systemd/sd-journal.h>
#include <systemd/sd-id128.h>

static int go_sd_journal_open_all_namespaces(sd_journal **ret, int flags) {
	return sd_journal_open_namespace(ret, NULL, flags | SD_JOURNAL_ALL_NAMESPACES);
}

static int go_sd_journal_seek_monotonic_usec(sd_journal *j, const uint8_t *boot, uint64_t usec) {
	sd_id128_t id;
	memcpy(id.bytes, boot, 16);
	return sd_journal_seek_monotonic_usec(j, id, usec);
}

static int go_sd_journal_get_monotonic_usec(sd_journal *j, uint64_t *usec, uint8_t *boot) {
	sd_id128_t id;
	int r = sd_journal_get_monotonic_usec(j, usec, &id);
	if (r < 0)
		return r;
	memcpy(boot, id.bytes, 16);
	return r;
}

static int go_sd_journal_get_cutoff_monotonic_usec(sd_journal *j, const uint8_t *boot, uint64_t *from, uint64_t *to) {
	sd_id128_t id;
	memcpy(id.bytes, boot, 16);
	return sd_journal_get_cutoff_monotonic_usec(j, id, from, to);
}

static int go_sd_journal_get_catalog_for_message_id(const uint8_t *msgid, char **text) {
	sd_id128_t id;
	memcpy(id.bytes, msgid, 16);
	return sd_journal_get_catalog_for_message_id(id, text);
}
*/
import "C"

import (
	"io"
	"runtime"
	"sync"
	"unsafe"

	"github.com/mbrock/sdjournal/internal/sderr"
)

// Journal is an open sd_journal handle. It is safe for concurrent use; calls
// are serialized because libsystemd handles are not thread-safe.
type Journal struct {
	mu      sync.Mutex
	j       *C.sd_journal
	cleanup runtime.Cleanup
}

func wrap(j *C.sd_journal) *Journal {
	jr := &Journal{j: j}
	jr.cleanup = runtime.AddCleanup(jr, func(p *C.sd_journal) {
		C.sd_journal_close(p)
	}, j)
	return jr
}

func cstring(s string) (*C.char, error) {
	if hasNul(s) {
		return nil, ErrNul
	}
	return C.CString(s), nil
}

func idptr(id *ID128) *C.uint8_t {
	return (*C.uint8_t)(unsafe.Pointer(&id[0]))
}

// Open opens the local journal files (sd_journal_open).
func Open(files FileFlags, users UserFlags) (*Journal, error) {
	var j *C.sd_journal
	r := C.sd_journal_open(&j, C.int(int(files)|int(users)))
	if err := sderr.Check("sd_journal_open", int(r)); err != nil {
		return nil, err
	}
	return wrap(j), nil
}

// OpenNamespace opens the journal of one namespace
// (sd_journal_open_namespace).
func OpenNamespace(namespace string, ns NamespaceFlags, files FileFlags, users UserFlags) (*Journal, error) {
	cns, err := cstring(namespace)
	if err != nil {
		return nil, err
	}
	defer C.free(unsafe.Pointer(cns))

	var j *C.sd_journal
	r := C.sd_journal_open_namespace(&j, cns, C.int(int(ns)|int(files)|int(users)))
	if err := sderr.Check("sd_journal_open_namespace", int(r)); err != nil {
		return nil, err
	}
	return wrap(j), nil
}

// OpenAllNamespaces opens the journals of every namespace.
func OpenAllNamespaces(files FileFlags, users UserFlags) (*Journal, error) {
	var j *C.sd_journal
	r := C.go_sd_journal_open_all_namespaces(&j, C.int(int(files)|int(users)))
	if err := sderr.Check("sd_journal_open_namespace", int(r)); err != nil {
		return nil, err
	}
	return wrap(j), nil
}

// OpenDirectory opens the journal files found in path
// (sd_journal_open_directory). With PathToOSRoot, path is the root of an
// OS tree and /var/log/journal and /run/log/journal below it are used.
func OpenDirectory(path string, flags PathFlags, users UserFlags) (*Journal, error) {
	cpath, err := cstring(path)
	if err != nil {
		return nil, err
	}
	defer C.free(unsafe.Pointer(cpath))

	var j *C.sd_journal
	r := C.sd_journal_open_directory(&j, cpath, C.int(int(flags)|int(users)))
	if err := sderr.Check("sd_journal_open_directory", int(r)); err != nil {
		return nil, err
	}
	return wrap(j), nil
}

// OpenFiles opens exactly the given journal files (sd_journal_open_files).
func OpenFiles(paths []string) (*Journal, error) {
	cpaths := make([]*C.char, len(paths)+1)
	defer func() {
		for _, p := range cpaths {
			if p != nil {
				C.free(unsafe.Pointer(p))
			}
		}
	}()
	for i, p := range paths {
		cp, err := cstring(p)
		if err != nil {
			return nil, err
		}
		cpaths[i] = cp
	}

	var j *C.sd_journal
	r := C.sd_journal_open_files(&j, &cpaths[0], 0)
	if err := sderr.Check("sd_journal_open_files", int(r)); err != nil {
		return nil, err
	}
	return wrap(j), nil
}

// Close releases the handle. A second Close returns ErrClosed.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.j == nil {
		return ErrClosed
	}
	j.cleanup.Stop()
	C.sd_journal_close(j.j)
	j.j = nil
	return nil
}

// acquire locks the handle. The caller must unlock on success.
func (j *Journal) acquire() error {
	j.mu.Lock()
	if j.j == nil {
		j.mu.Unlock()
		return ErrClosed
	}
	return nil
}

func (j *Journal) Next() (Movement, error) {
	if err := j.acquire(); err != nil {
		return Movement{}, err
	}
	defer j.mu.Unlock()
	r := C.sd_journal_next(j.j)
	if err := sderr.Check("sd_journal_next", int(r)); err != nil {
		return Movement{}, err
	}
	return Movement{Requested: 1, Actual: int(r)}, nil
}

func (j *Journal) Previous() (Movement, error) {
	if err := j.acquire(); err != nil {
		return Movement{}, err
	}
	defer j.mu.Unlock()
	r := C.sd_journal_previous(j.j)
	if err := sderr.Check("sd_journal_previous", int(r)); err != nil {
		return Movement{}, err
	}
	return Movement{Requested: 1, Actual: int(r)}, nil
}

// NextSkip advances up to n entries.
func (j *Journal) NextSkip(n int) (Movement, error) {
	if n < 0 {
		return Movement{}, ErrRange
	}
	if err := j.acquire(); err != nil {
		return Movement{}, err
	}
	defer j.mu.Unlock()
	r := C.sd_journal_next_skip(j.j, C.uint64_t(n))
	if err := sderr.Check("sd_journal_next_skip", int(r)); err != nil {
		return Movement{}, err
	}
	return Movement{Requested: n, Actual: int(r)}, nil
}

// PreviousSkip moves back up to n entries.
func (j *Journal) PreviousSkip(n int) (Movement, error) {
	if n < 0 {
		return Movement{}, ErrRange
	}
	if err := j.acquire(); err != nil {
		return Movement{}, err
	}
	defer j.mu.Unlock()
	r := C.sd_journal_previous_skip(j.j, C.uint64_t(n))
	if err := sderr.Check("sd_journal_previous_skip", int(r)); err != nil {
		return Movement{}, err
	}
	return Movement{Requested: n, Actual: int(r)}, nil
}

// SeekHead positions before the first entry. Note that libsystemd may
// return entries from Previous right after SeekHead (systemd issue 17662);
// call Next to reach the first entry.
func (j *Journal) SeekHead() error {
	if err := j.acquire(); err != nil {
		return err
	}
	defer j.mu.Unlock()
	return sderr.Check("sd_journal_seek_head", int(C.sd_journal_seek_head(j.j)))
}

// SeekTail positions after the last entry. The same caveat as SeekHead
// applies with the directions swapped.
func (j *Journal) SeekTail() error {
	if err := j.acquire(); err != nil {
		return err
	}
	defer j.mu.Unlock()
	return sderr.Check("sd_journal_seek_tail", int(C.sd_journal_seek_tail(j.j)))
}

func (j *Journal) SeekMonotonicUsec(boot ID128, usec uint64) error {
	if err := j.acquire(); err != nil {
		return err
	}
	defer j.mu.Unlock()
	r := C.go_sd_journal_seek_monotonic_usec(j.j, idptr(&boot), C.uint64_t(usec))
	return sderr.Check("sd_journal_seek_monotonic_usec", int(r))
}

func (j *Journal) SeekRealtimeUsec(usec uint64) error {
	if err := j.acquire(); err != nil {
		return err
	}
	defer j.mu.Unlock()
	r := C.sd_journal_seek_realtime_usec(j.j, C.uint64_t(usec))
	return sderr.Check("sd_journal_seek_realtime_usec", int(r))
}

func (j *Journal) SeekCursor(cursor string) error {
	cc, err := cstring(cursor)
	if err != nil {
		return err
	}
	defer C.free(unsafe.Pointer(cc))
	if err := j.acquire(); err != nil {
		return err
	}
	defer j.mu.Unlock()
	return sderr.Check("sd_journal_seek_cursor", int(C.sd_journal_seek_cursor(j.j, cc)))
}

// AddMatch adds a "FIELD=value" match. The value may be binary.
func (j *Journal) AddMatch(data []byte) error {
	if err := j.acquire(); err != nil {
		return err
	}
	defer j.mu.Unlock()
	var p unsafe.Pointer
	if len(data) > 0 {
		p = unsafe.Pointer(&data[0])
	}
	r := C.sd_journal_add_match(j.j, p, C.size_t(len(data)))
	return sderr.Check("sd_journal_add_match", int(r))
}

func (j *Journal) AddDisjunction() error {
	if err := j.acquire(); err != nil {
		return err
	}
	defer j.mu.Unlock()
	return sderr.Check("sd_journal_add_disjunction", int(C.sd_journal_add_disjunction(j.j)))
}

func (j *Journal) AddConjunction() error {
	if err := j.acquire(); err != nil {
		return err
	}
	defer j.mu.Unlock()
	return sderr.Check("sd_journal_add_conjunction", int(C.sd_journal_add_conjunction(j.j)))
}

func (j *Journal) FlushMatches() error {
	if err := j.acquire(); err != nil {
		return err
	}
	defer j.mu.Unlock()
	C.sd_journal_flush_matches(j.j)
	return nil
}

// RealtimeUsec is the wallclock timestamp of the current entry.
func (j *Journal) RealtimeUsec() (uint64, error) {
	if err := j.acquire(); err != nil {
		return 0, err
	}
	defer j.mu.Unlock()
	var usec C.uint64_t
	r := C.sd_journal_get_realtime_usec(j.j, &usec)
	if err := sderr.Check("sd_journal_get_realtime_usec", int(r)); err != nil {
		return 0, err
	}
	return uint64(usec), nil
}

// MonotonicUsec is the monotonic timestamp of the current entry together
// with the boot it is relative to.
func (j *Journal) MonotonicUsec() (uint64, ID128, error) {
	var boot ID128
	if err := j.acquire(); err != nil {
		return 0, boot, err
	}
	defer j.mu.Unlock()
	var usec C.uint64_t
	r := C.go_sd_journal_get_monotonic_usec(j.j, &usec, idptr(&boot))
	if err := sderr.Check("sd_journal_get_monotonic_usec", int(r)); err != nil {
		return 0, boot, err
	}
	return uint64(usec), boot, nil
}

func (j *Journal) Cursor() (string, error) {
	if err := j.acquire(); err != nil {
		return "", err
	}
	defer j.mu.Unlock()
	var c *C.char
	r := C.sd_journal_get_cursor(j.j, &c)
	if err := sderr.Check("sd_journal_get_cursor", int(r)); err != nil {
		return "", err
	}
	defer C.free(unsafe.Pointer(c))
	return C.GoString(c), nil
}

// TestCursor reports whether the current entry is at cursor.
func (j *Journal) TestCursor(cursor string) (bool, error) {
	cc, err := cstring(cursor)
	if err != nil {
		return false, err
	}
	defer C.free(unsafe.Pointer(cc))
	if err := j.acquire(); err != nil {
		return false, err
	}
	defer j.mu.Unlock()
	r := C.sd_journal_test_cursor(j.j, cc)
	if err := sderr.Check("sd_journal_test_cursor", int(r)); err != nil {
		return false, err
	}
	return r > 0, nil
}

// CutoffRealtimeUsec returns the oldest and newest wallclock timestamps in
// the journal. Both are zero when there are no entries.
func (j *Journal) CutoffRealtimeUsec() (from, to uint64, err error) {
	if err := j.acquire(); err != nil {
		return 0, 0, err
	}
	defer j.mu.Unlock()
	var f, t C.uint64_t
	r := C.sd_journal_get_cutoff_realtime_usec(j.j, &f, &t)
	if err := sderr.Check("sd_journal_get_cutoff_realtime_usec", int(r)); err != nil {
		return 0, 0, err
	}
	if r == 0 {
		return 0, 0, nil
	}
	return uint64(f), uint64(t), nil
}

// CutoffMonotonicUsec is CutoffRealtimeUsec for one boot.
func (j *Journal) CutoffMonotonicUsec(boot ID128) (from, to uint64, err error) {
	if err := j.acquire(); err != nil {
		return 0, 0, err
	}
	defer j.mu.Unlock()
	var f, t C.uint64_t
	r := C.go_sd_journal_get_cutoff_monotonic_usec(j.j, idptr(&boot), &f, &t)
	if err := sderr.Check("sd_journal_get_cutoff_monotonic_usec", int(r)); err != nil {
		return 0, 0, err
	}
	if r == 0 {
		return 0, 0, nil
	}
	return uint64(f), uint64(t), nil
}

// Data returns the "FIELD=value" data object of field in the current entry.
// A missing field is ENOENT.
func (j *Journal) Data(field string) ([]byte, error) {
	cf, err := cstring(field)
	if err != nil {
		return nil, err
	}
	defer C.free(unsafe.Pointer(cf))
	if err := j.acquire(); err != nil {
		return nil, err
	}
	defer j.mu.Unlock()
	var d unsafe.Pointer
	var n C.size_t
	r := C.sd_journal_get_data(j.j, cf, &d, &n)
	if err := sderr.Check("sd_journal_get_data", int(r)); err != nil {
		return nil, err
	}
	return C.GoBytes(d, C.int(n)), nil
}

// EnumerateData returns the next data object of the current entry, or
// io.EOF after the last one.
func (j *Journal) EnumerateData() ([]byte, error) {
	if err := j.acquire(); err != nil {
		return nil, err
	}
	defer j.mu.Unlock()
	var d unsafe.Pointer
	var n C.size_t
	r := C.sd_journal_enumerate_data(j.j, &d, &n)
	if err := sderr.Check("sd_journal_enumerate_data", int(r)); err != nil {
		return nil, err
	}
	if r == 0 {
		return nil, io.EOF
	}
	return C.GoBytes(d, C.int(n)), nil
}

// EnumerateAvailableData is EnumerateData but silently skips data objects
// that cannot be read (unsupported compression and similar).
func (j *Journal) EnumerateAvailableData() ([]byte, error) {
	if err := j.acquire(); err != nil {
		return nil, err
	}
	defer j.mu.Unlock()
	var d unsafe.Pointer
	var n C.size_t
	r := C.sd_journal_enumerate_available_data(j.j, &d, &n)
	if err := sderr.Check("sd_journal_enumerate_available_data", int(r)); err != nil {
		return nil, err
	}
	if r == 0 {
		return nil, io.EOF
	}
	return C.GoBytes(d, C.int(n)), nil
}

func (j *Journal) RestartData() error {
	if err := j.acquire(); err != nil {
		return err
	}
	defer j.mu.Unlock()
	C.sd_journal_restart_data(j.j)
	return nil
}

// SetDataThreshold limits how many bytes of a compressed data object are
// decompressed. Zero means unlimited.
func (j *Journal) SetDataThreshold(n int) error {
	if n < 0 {
		return ErrRange
	}
	if err := j.acquire(); err != nil {
		return err
	}
	defer j.mu.Unlock()
	r := C.sd_journal_set_data_threshold(j.j, C.size_t(n))
	return sderr.Check("sd_journal_set_data_threshold", int(r))
}

func (j *Journal) DataThreshold() (int, error) {
	if err := j.acquire(); err != nil {
		return 0, err
	}
	defer j.mu.Unlock()
	var n C.size_t
	r := C.sd_journal_get_data_threshold(j.j, &n)
	if err := sderr.Check("sd_journal_get_data_threshold", int(r)); err != nil {
		return 0, err
	}
	return int(n), nil
}

// EnumerateFields returns the next field name used anywhere in the
// journal, or io.EOF.
func (j *Journal) EnumerateFields() (string, error) {
	if err := j.acquire(); err != nil {
		return "", err
	}
	defer j.mu.Unlock()
	var f *C.char
	r := C.sd_journal_enumerate_fields(j.j, &f)
	if err := sderr.Check("sd_journal_enumerate_fields", int(r)); err != nil {
		return "", err
	}
	if r == 0 {
		return "", io.EOF
	}
	return C.GoString(f), nil
}

func (j *Journal) RestartFields() error {
	if err := j.acquire(); err != nil {
		return err
	}
	defer j.mu.Unlock()
	C.sd_journal_restart_fields(j.j)
	return nil
}

// QueryUnique prepares EnumerateUnique to walk the values of field.
func (j *Journal) QueryUnique(field string) error {
	cf, err := cstring(field)
	if err != nil {
		return err
	}
	defer C.free(unsafe.Pointer(cf))
	if err := j.acquire(); err != nil {
		return err
	}
	defer j.mu.Unlock()
	return sderr.Check("sd_journal_query_unique", int(C.sd_journal_query_unique(j.j, cf)))
}

// EnumerateUnique returns the next "FIELD=value" object of the queried
// field, or io.EOF.
func (j *Journal) EnumerateUnique() ([]byte, error) {
	if err := j.acquire(); err != nil {
		return nil, err
	}
	defer j.mu.Unlock()
	var d unsafe.Pointer
	var n C.size_t
	r := C.sd_journal_enumerate_unique(j.j, &d, &n)
	if err := sderr.Check("sd_journal_enumerate_unique", int(r)); err != nil {
		return nil, err
	}
	if r == 0 {
		return nil, io.EOF
	}
	return C.GoBytes(d, C.int(n)), nil
}

func (j *Journal) EnumerateAvailableUnique() ([]byte, error) {
	if err := j.acquire(); err != nil {
		return nil, err
	}
	defer j.mu.Unlock()
	var d unsafe.Pointer
	var n C.size_t
	r := C.sd_journal_enumerate_available_unique(j.j, &d, &n)
	if err := sderr.Check("sd_journal_enumerate_available_unique", int(r)); err != nil {
		return nil, err
	}
	if r == 0 {
		return nil, io.EOF
	}
	return C.GoBytes(d, C.int(n)), nil
}

func (j *Journal) RestartUnique() error {
	if err := j.acquire(); err != nil {
		return err
	}
	defer j.mu.Unlock()
	C.sd_journal_restart_unique(j.j)
	return nil
}

// Catalog returns the catalog text for the MESSAGE_ID of the current
// entry, with its fields substituted.
func (j *Journal) Catalog() (string, error) {
	if err := j.acquire(); err != nil {
		return "", err
	}
	defer j.mu.Unlock()
	var text *C.char
	r := C.sd_journal_get_catalog(j.j, &text)
	if err := sderr.Check("sd_journal_get_catalog", int(r)); err != nil {
		return "", err
	}
	defer C.free(unsafe.Pointer(text))
	return C.GoString(text), nil
}

// CatalogForMessageID looks up the unsubstituted catalog text for id.
func CatalogForMessageID(id ID128) (string, error) {
	var text *C.char
	r := C.go_sd_journal_get_catalog_for_message_id(idptr(&id), &text)
	if err := sderr.Check("sd_journal_get_catalog_for_message_id", int(r)); err != nil {
		return "", err
	}
	defer C.free(unsafe.Pointer(text))
	return C.GoString(text), nil
}

// FD returns a file descriptor that becomes readable when the journal
// changes. It stays owned by the journal.
func (j *Journal) FD() (int, error) {
	if err := j.acquire(); err != nil {
		return -1, err
	}
	defer j.mu.Unlock()
	r := C.sd_journal_get_fd(j.j)
	if err := sderr.Check("sd_journal_get_fd", int(r)); err != nil {
		return -1, err
	}
	return int(r), nil
}

// Events returns the poll(2) event mask to wait for on FD.
func (j *Journal) Events() (int, error) {
	if err := j.acquire(); err != nil {
		return 0, err
	}
	defer j.mu.Unlock()
	r := C.sd_journal_get_events(j.j)
	if err := sderr.Check("sd_journal_get_events", int(r)); err != nil {
		return 0, err
	}
	return int(r), nil
}

// Timeout returns the absolute CLOCK_MONOTONIC deadline in microseconds
// for the next poll, or math.MaxUint64 for none.
func (j *Journal) Timeout() (uint64, error) {
	if err := j.acquire(); err != nil {
		return 0, err
	}
	defer j.mu.Unlock()
	var usec C.uint64_t
	r := C.sd_journal_get_timeout(j.j, &usec)
	if err := sderr.Check("sd_journal_get_timeout", int(r)); err != nil {
		return 0, err
	}
	return uint64(usec), nil
}

// Process must be called after FD became readable.
func (j *Journal) Process() (Event, error) {
	if err := j.acquire(); err != nil {
		return EventNop, err
	}
	defer j.mu.Unlock()
	r := C.sd_journal_process(j.j)
	if err := sderr.Check("sd_journal_process", int(r)); err != nil {
		return EventNop, err
	}
	return Event(r), nil
}

// Wait blocks until the journal changes or timeout microseconds pass.
// math.MaxUint64 waits forever. The handle stays locked while waiting, so
// Close blocks until Wait returns; poll FD instead when another goroutine
// may close the journal.
func (j *Journal) Wait(timeout uint64) (Event, error) {
	if err := j.acquire(); err != nil {
		return EventNop, err
	}
	defer j.mu.Unlock()
	r := C.sd_journal_wait(j.j, C.uint64_t(timeout))
	if err := sderr.Check("sd_journal_wait", int(r)); err != nil {
		return EventNop, err
	}
	return Event(r), nil
}

func (j *Journal) HasRuntimeFiles() (bool, error) {
	if err := j.acquire(); err != nil {
		return false, err
	}
	defer j.mu.Unlock()
	r := C.sd_journal_has_runtime_files(j.j)
	if err := sderr.Check("sd_journal_has_runtime_files", int(r)); err != nil {
		return false, err
	}
	return r > 0, nil
}

func (j *Journal) HasPersistentFiles() (bool, error) {
	if err := j.acquire(); err != nil {
		return false, err
	}
	defer j.mu.Unlock()
	r := C.sd_journal_has_persistent_files(j.j)
	if err := sderr.Check("sd_journal_has_persistent_files", int(r)); err != nil {
		return false, err
	}
	return r > 0, nil
}

// Usage returns the disk space used by all opened journal files, in bytes.
func (j *Journal) Usage() (uint64, error) {
	if err := j.acquire(); err != nil {
		return 0, err
	}
	defer j.mu.Unlock()
	var n C.uint64_t
	r := C.sd_journal_get_usage(j.j, &n)
	if err := sderr.Check("sd_journal_get_usage", int(r)); err != nil {
		return 0, err
	}
	return uint64(n), nil
}
