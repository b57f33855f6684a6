package sdjournal

import (
	"fmt"
	"strings"
)

// CoredumpMessageID is the MESSAGE_ID systemd-coredump logs crashes with.
const CoredumpMessageID = "fc2e22bc6ee647b6b90729ab34a250b1"

// AddUnitMatch restricts traversal to entries about unit, the way
// journalctl -u does: messages logged by the unit, coredumps of its
// processes, and messages systemd logged about it.
//
// The expression is closed with AddConjunction, so matches added afterwards
// narrow it further instead of widening it.
func (j *Journal) AddUnitMatch(unit string) error {
	return j.AddUnitMatches(unit)
}

// AddUnitMatches is AddUnitMatch for entries about any of units.
func (j *Journal) AddUnitMatches(units ...string) error {
	first := true
	for _, unit := range units {
		if unit == "" || strings.ContainsRune(unit, 0) {
			return fmt.Errorf("unit match: %w: %q", ErrInvalidField, unit)
		}
		for _, group := range unitGroups(unit) {
			if !first {
				if err := j.AddDisjunction(); err != nil {
					return fmt.Errorf("unit match: %w", err)
				}
			}
			first = false
			for _, m := range group {
				if err := j.AddMatch(m.Name, m.Value); err != nil {
					return fmt.Errorf("unit match %s: %w", m, err)
				}
			}
		}
		j.log.Debug("unit match added", "unit", unit)
	}
	if first {
		return nil
	}
	if err := j.AddConjunction(); err != nil {
		return fmt.Errorf("unit match: %w", err)
	}
	return nil
}

func unitGroups(unit string) [][]Field {
	return [][]Field{
		{{"_SYSTEMD_UNIT", unit}},
		{{"MESSAGE_ID", CoredumpMessageID}, {"_UID", "0"}, {"COREDUMP_UNIT", unit}},
		{{"_PID", "1"}, {"UNIT", unit}},
		{{"_UID", "0"}, {"OBJECT_SYSTEMD_UNIT", unit}},
	}
}
