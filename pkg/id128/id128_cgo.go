//go:build linux && cgo

package id128

/*
#cgo pkg-config: libsystemd
#include <stdint.h>
#include <string.h>
#include <systemd/sd-id128.h>

static int go_sd_id128_get_machine(uint8_t *out) {
	sd_id128_t id;
	int r = sd_id128_get_machine(&id);
	if (r < 0)
		return r;
	memcpy(out, id.bytes, 16);
	return r;
}

static int go_sd_id128_get_boot(uint8_t *out) {
	sd_id128_t id;
	int r = sd_id128_get_boot(&id);
	if (r < 0)
		return r;
	memcpy(out, id.bytes, 16);
	return r;
}

static int go_sd_id128_get_invocation(uint8_t *out) {
	sd_id128_t id;
	int r = sd_id128_get_invocation(&id);
	if (r < 0)
		return r;
	memcpy(out, id.bytes, 16);
	return r;
}

static int go_sd_id128_randomize(uint8_t *out) {
	sd_id128_t id;
	int r = sd_id128_randomize(&id);
	if (r < 0)
		return r;
	memcpy(out, id.bytes, 16);
	return r;
}
*/
import "C"

import (
	"unsafe"

	"github.com/mbrock/sdjournal/internal/sderr"
)

func cbytes(id *ID128) *C.uint8_t {
	return (*C.uint8_t)(unsafe.Pointer(&id[0]))
}

func machineID() (ID128, error) {
	var id ID128
	r := C.go_sd_id128_get_machine(cbytes(&id))
	if err := sderr.Check("sd_id128_get_machine", int(r)); err != nil {
		return Null, err
	}
	return id, nil
}

func bootID() (ID128, error) {
	var id ID128
	r := C.go_sd_id128_get_boot(cbytes(&id))
	if err := sderr.Check("sd_id128_get_boot", int(r)); err != nil {
		return Null, err
	}
	return id, nil
}

func invocationID() (ID128, error) {
	var id ID128
	r := C.go_sd_id128_get_invocation(cbytes(&id))
	if err := sderr.Check("sd_id128_get_invocation", int(r)); err != nil {
		return Null, err
	}
	return id, nil
}

func random() (ID128, error) {
	var id ID128
	r := C.go_sd_id128_randomize(cbytes(&id))
	if err := sderr.Check("sd_id128_randomize", int(r)); err != nil {
		return Null, err
	}
	return id, nil
}
