// Package fixture produces the deterministic journal used by tests and by
// cmd/devtools/fixture-journal.
package fixture

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mbrock/sdjournal/pkg/id128"
	"github.com/mbrock/sdjournal/pkg/journalfile"
)

var (
	MachineID = id128.MustParse("5e3f1c0a9b2d4e6f8a7b6c5d4e3f2a1b")
	BootID    = id128.MustParse("0b1a2c3d4e5f60718293a4b5c6d7e8f9")
	// Epoch is the realtime timestamp of the first entry. Entry i is
	// Epoch + i seconds, with monotonic time i+1 seconds.
	Epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

// Count is the number of entries Entries returns.
const Count = 30

// Units are cycled through as _SYSTEMD_UNIT.
var Units = []string{"alpha.service", "beta.service", "gamma.service"}

// CoredumpMessageID marks the one systemd-coredump style entry.
const CoredumpMessageID = "fc2e22bc6ee647b6b90729ab34a250b1"

// Blob is the binary BLOB value of entry 0.
var Blob = []byte{0x00, 0x01, 0xfe, 0xff, '\n'}

// Message returns the MESSAGE of entry i.
func Message(i int) string {
	return fmt.Sprintf("fixture message %d", i)
}

// Realtime returns the realtime timestamp of entry i.
func Realtime(i int) time.Time {
	return Epoch.Add(time.Duration(i) * time.Second)
}

// Monotonic returns the monotonic timestamp of entry i.
func Monotonic(i int) time.Duration {
	return time.Duration(i+1) * time.Second
}

// Entries returns the fixture entries in order.
//
// Every entry has MESSAGE, PRIORITY (i mod 8), SYSLOG_IDENTIFIER, SEQ and
// _SYSTEMD_UNIT. Entry 0 also carries BLOB. Entry Count-1 is a coredump
// report for Units[0] logged by PID 1's coredump handler, so that unit
// matching has to follow more than _SYSTEMD_UNIT.
func Entries() []journalfile.Entry {
	out := make([]journalfile.Entry, 0, Count)
	for i := 0; i < Count; i++ {
		out = append(out, entry(i))
	}
	return out
}

func entry(i int) journalfile.Entry {
	data := journalfile.Fields(
		"MESSAGE", Message(i),
		"PRIORITY", fmt.Sprint(i%8),
		"SYSLOG_IDENTIFIER", "fixture",
		"SEQ", fmt.Sprint(i),
		"_BOOT_ID", BootID.String(),
		"_MACHINE_ID", MachineID.String(),
	)
	if i == Count-1 {
		data = append(data, journalfile.Fields(
			"MESSAGE_ID", CoredumpMessageID,
			"_UID", "0",
			"COREDUMP_UNIT", Units[0],
			"_SYSTEMD_UNIT", "systemd-coredump@0.service",
		)...)
	} else {
		data = append(data, []byte("_SYSTEMD_UNIT="+Units[i%len(Units)]))
	}
	if i == 0 {
		data = append(data, append([]byte("BLOB="), Blob...))
	}
	return journalfile.Entry{
		Realtime:  Realtime(i),
		Monotonic: Monotonic(i),
		BootID:    BootID,
		Data:      data,
	}
}

// Append appends entry i (normally Count or later) to the fixture file at
// path, the way a running journald would while a reader follows it.
func Append(path string, i int) error {
	jf, err := journalfile.OpenAppend(path, Options())
	if err != nil {
		return err
	}
	if err := jf.Append(entry(i)); err != nil {
		jf.Close()
		return err
	}
	return jf.Close()
}

// Options are the journalfile options fixtures are written with.
func Options() journalfile.Options {
	return journalfile.Options{MachineID: MachineID, BootID: BootID}
}

// Write writes the fixture to a fresh directory and returns the file path.
// The file name ends in .journal so OpenDirectory picks it up.
func Write(tb testing.TB) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "system.journal")
	if err := journalfile.WriteFile(path, Options(), Entries()); err != nil {
		tb.Fatalf("write fixture journal: %v", err)
	}
	return path
}

// UnitEntries returns the indexes of entries whose _SYSTEMD_UNIT is unit.
func UnitEntries(unit string) []int {
	var idx []int
	for i := 0; i < Count-1; i++ {
		if Units[i%len(Units)] == unit {
			idx = append(idx, i)
		}
	}
	return idx
}
