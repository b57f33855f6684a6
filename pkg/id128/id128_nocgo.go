//go:build !linux || !cgo

package id128

import (
	"crypto/rand"
	"os"
	"strings"

	"github.com/mbrock/sdjournal/internal/sderr"
	"golang.org/x/sys/unix"
)

func readID(op, path string) (ID128, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Null, &sderr.Error{Op: op, Errno: unix.ENOENT}
	}
	id, err := Parse(strings.TrimSpace(string(b)))
	if err != nil || id.IsNull() {
		return Null, &sderr.Error{Op: op, Errno: unix.EINVAL}
	}
	return id, nil
}

func machineID() (ID128, error) {
	return readID("sd_id128_get_machine", "/etc/machine-id")
}

func bootID() (ID128, error) {
	return readID("sd_id128_get_boot", "/proc/sys/kernel/random/boot_id")
}

func invocationID() (ID128, error) {
	v := os.Getenv("INVOCATION_ID")
	if v == "" {
		return Null, &sderr.Error{Op: "sd_id128_get_invocation", Errno: unix.ENXIO}
	}
	id, err := Parse(v)
	if err != nil {
		return Null, &sderr.Error{Op: "sd_id128_get_invocation", Errno: unix.EINVAL}
	}
	return id, nil
}

func random() (ID128, error) {
	var id ID128
	if _, err := rand.Read(id[:]); err != nil {
		return Null, err
	}
	// Version 4, variant DCE like sd_id128_randomize.
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id, nil
}
