// Package id128 binds the sd-id128 part of libsystemd.
//
// An ID128 is the 128-bit identifier systemd uses for machines, boots,
// invocations, journal files and message catalog entries. On Linux with cgo
// the machine, boot and invocation ids come from libsystemd; other builds read
// the same sources libsystemd reads (/etc/machine-id, the kernel boot_id and
// $INVOCATION_ID).
package id128

import (
	"encoding/hex"
	"errors"

	"github.com/mbrock/sdjournal/internal/sderr"
)

// ID128 is a 128-bit identifier (like sd_id128_t)
type ID128 [16]byte

// Null is the all-zero id (SD_ID128_NULL).
var Null ID128

// Error is returned when libsystemd reports a negative errno.
type Error = sderr.Error

// ErrInvalid is returned by Parse for strings that are neither 32 hex
// characters nor a 36 character UUID.
var ErrInvalid = errors.New("id128: invalid id")

// Parse accepts the plain 32 hex character form used by journald
// ("MESSAGE_ID=fc2e22bc6ee647b6b90729ab34a250b1") and the dashed UUID form.
func Parse(s string) (ID128, error) {
	var id ID128
	switch len(s) {
	case 32:
	case 36:
		if s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
			return Null, ErrInvalid
		}
		s = s[0:8] + s[9:13] + s[14:18] + s[19:23] + s[24:]
	default:
		return Null, ErrInvalid
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return Null, ErrInvalid
	}
	return id, nil
}

// MustParse is like Parse but panics on malformed input. Intended for
// well-known message ids declared as package variables.
func MustParse(s string) ID128 {
	id, err := Parse(s)
	if err != nil {
		panic("id128: MustParse(" + s + "): " + err.Error())
	}
	return id
}

// String formats the id the way sd_id128_to_string does.
func (id ID128) String() string {
	return hex.EncodeToString(id[:])
}

// UUIDString formats the id as 8-4-4-4-12.
func (id ID128) UUIDString() string {
	s := id.String()
	return s[0:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:]
}

// IsNull reports whether every byte is zero.
func (id ID128) IsNull() bool {
	return id == Null
}

// MarshalText implements encoding.TextMarshaler.
func (id ID128) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID128) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MachineID returns the id of the local machine (sd_id128_get_machine).
func MachineID() (ID128, error) {
	return machineID()
}

// BootID returns the id of the current boot (sd_id128_get_boot).
func BootID() (ID128, error) {
	return bootID()
}

// InvocationID returns the invocation id of the unit the caller runs in
// (sd_id128_get_invocation). Outside of a unit this fails with ENXIO.
func InvocationID() (ID128, error) {
	return invocationID()
}

// Random returns a random v4 UUID style id (sd_id128_randomize).
func Random() (ID128, error) {
	return random()
}
