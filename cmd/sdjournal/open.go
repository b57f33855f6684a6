package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mbrock/sdjournal/internal/config"
	"github.com/mbrock/sdjournal/pkg/sdjournal"
)

// openJournal opens the journal selected by flags and config and adds the
// configured matches.
func openJournal() *sdjournal.Journal {
	opts := []sdjournal.Option{sdjournal.WithLogger(log)}
	if cfg.DataThreshold > 0 {
		opts = append(opts, sdjournal.WithDataThreshold(cfg.DataThreshold))
	}

	var j *sdjournal.Journal
	var err error
	switch {
	case len(fileFlags) > 0:
		j, err = sdjournal.OpenFiles(fileFlags, opts...)
	case cfg.Directory != "":
		j, err = sdjournal.OpenDirectory(cfg.Directory, sdjournal.FullPath, userFlagsFromCLI(), opts...)
	case cfg.Namespace == "*":
		j, err = sdjournal.OpenAllNamespaces(fileFlagsFromCLI(), userFlagsFromCLI(), opts...)
	case cfg.Namespace != "":
		j, err = sdjournal.OpenNamespace(cfg.Namespace, sdjournal.SelectedNamespaceOnly, fileFlagsFromCLI(), userFlagsFromCLI(), opts...)
	default:
		j, err = sdjournal.Open(fileFlagsFromCLI(), userFlagsFromCLI(), opts...)
	}
	if err != nil {
		fatal("%v", err)
	}

	if err := addMatches(j, unitFlags, cfg.Matches); err != nil {
		j.Close()
		fatal("%v", err)
	}
	return j
}

// addMatches adds unit expressions first, since they close their own
// group, then the plain field matches.
func addMatches(j *sdjournal.Journal, units, matches []string) error {
	if len(units) > 0 {
		if err := j.AddUnitMatches(units...); err != nil {
			return err
		}
	}
	for _, m := range matches {
		f, err := config.ParseMatch(m)
		if err != nil {
			return err
		}
		if err := j.AddMatch(f.Name, f.Value); err != nil {
			return fmt.Errorf("match %s: %w", m, err)
		}
	}
	return nil
}

// parseSince accepts an absolute time, a date, "today", "yesterday", "now"
// or a negative duration relative to now.
func parseSince(s string, now time.Time) (time.Time, error) {
	switch s {
	case "now":
		return now, nil
	case "today":
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
	case "yesterday":
		y, m, d := now.Date()
		return time.Date(y, m, d-1, 0, 0, 0, 0, now.Location()), nil
	}
	if strings.HasPrefix(s, "-") {
		d, err := time.ParseDuration(s[1:])
		if err != nil {
			return time.Time{}, fmt.Errorf("since %q: %w", s, err)
		}
		return now.Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("since %q: unrecognised time", s)
}

// readCursorFile returns the stored cursor, or "" when the file does not
// exist yet.
func readCursorFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read cursor file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func writeCursorFile(path, cursor string) error {
	if path == "" || cursor == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write cursor file: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(cursor+"\n"), 0o644); err != nil {
		return fmt.Errorf("write cursor file: %w", err)
	}
	return os.Rename(tmp, path)
}
