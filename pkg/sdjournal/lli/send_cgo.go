//go:build linux && cgo

package lli

/*
#include <stdlib.h>
#include <sys/uio.h>
#include <systemd/sd-journal.h>

static int go_sd_journal_print(int priority, const char *msg) {
	return sd_journal_print(priority, "%s", msg);
}
*/
import "C"

import (
	"unsafe"

	"github.com/mbrock/sdjournal/internal/sderr"
)

// Print logs message at level (sd_journal_print). The message is never
// interpreted as a format string.
func Print(level Level, message string) error {
	cm, err := cstring(message)
	if err != nil {
		return err
	}
	defer C.free(unsafe.Pointer(cm))
	return sderr.Check("sd_journal_print", int(C.go_sd_journal_print(C.int(level), cm)))
}

// Sendv submits one structured entry (sd_journal_sendv). Each element is a
// complete "FIELD=value" item; values may contain any bytes, newlines
// included.
func Sendv(fields [][]byte) error {
	if len(fields) == 0 {
		return ErrRange
	}
	iovs := unsafe.Slice((*C.struct_iovec)(C.calloc(C.size_t(len(fields)), C.size_t(unsafe.Sizeof(C.struct_iovec{})))), len(fields))
	defer C.free(unsafe.Pointer(&iovs[0]))

	bufs := make([]unsafe.Pointer, 0, len(fields))
	defer func() {
		for _, b := range bufs {
			C.free(b)
		}
	}()
	for i, f := range fields {
		b := C.CBytes(f)
		bufs = append(bufs, b)
		iovs[i].iov_base = b
		iovs[i].iov_len = C.size_t(len(f))
	}
	r := C.sd_journal_sendv(&iovs[0], C.int(len(fields)))
	return sderr.Check("sd_journal_sendv", int(r))
}
