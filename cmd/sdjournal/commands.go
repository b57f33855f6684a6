package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/mbrock/sdjournal/internal/config"
	"github.com/mbrock/sdjournal/internal/dirs"
	"github.com/mbrock/sdjournal/internal/nativesock"
	"github.com/mbrock/sdjournal/internal/units"
	"github.com/mbrock/sdjournal/pkg/id128"
	"github.com/mbrock/sdjournal/pkg/journalfile"
	"github.com/mbrock/sdjournal/pkg/sdjournal"
)

func stdoutPrinter() *printer {
	color := cfg.Output == "short" && term.IsTerminal(int(os.Stdout.Fd()))
	return newPrinter(os.Stdout, cfg.Output, color)
}

// cursorFilePath puts bare names under the state directory.
func cursorFilePath() string {
	if cursorFileFlag == "" || strings.ContainsRune(cursorFileFlag, filepath.Separator) {
		return cursorFileFlag
	}
	return filepath.Join(dirs.StateDir(), "cursors", cursorFileFlag)
}

// visit calls fn for each entry selected by the positioning flags and
// returns the last cursor seen. limit caps the number of entries; 0 means
// no cap.
func visit(ctx context.Context, j *sdjournal.Journal, limit int, fn func(*sdjournal.Entry) error) (string, error) {
	after, err := readCursorFile(cursorFilePath())
	if err != nil {
		return "", err
	}
	if after != "" {
		entries, last, err := j.Poll(ctx, after)
		if err != nil {
			return last, err
		}
		if limit > 0 && len(entries) > limit {
			entries = entries[len(entries)-limit:]
		}
		for _, e := range entries {
			if err := fn(e); err != nil {
				return last, err
			}
		}
		return last, nil
	}

	var since time.Time
	if sinceFlag != "" {
		if since, err = parseSince(sinceFlag, time.Now()); err != nil {
			return "", err
		}
	}

	walk := j.Cursors()
	switch {
	case reverseFlag:
		if cursorFlag != "" {
			err = j.SeekCursor(cursorFlag)
		} else {
			err = j.SeekTail()
		}
		walk = j.CursorsReverse()
	case cursorFlag != "":
		err = j.SeekCursor(cursorFlag)
	case !since.IsZero():
		err = j.SeekRealtime(since)
	case limit > 0:
		err = seekLast(j, limit)
	}
	if err != nil {
		return "", err
	}

	var last string
	n := 0
	for c, err := range walk {
		if err != nil {
			return last, err
		}
		e, err := c.Entry()
		if err != nil {
			return last, err
		}
		if reverseFlag && !since.IsZero() && e.Realtime.Before(since) {
			break
		}
		if err := fn(e); err != nil {
			return last, err
		}
		last = e.Cursor
		if n++; limit > 0 && n >= limit {
			break
		}
		if ctx.Err() != nil {
			return last, ctx.Err()
		}
	}
	return last, nil
}

// seekLast positions the journal so that Next returns the n-th entry from
// the end.
func seekLast(j *sdjournal.Journal, n int) error {
	if err := j.SeekTail(); err != nil {
		return err
	}
	m, err := j.PreviousSkip(n)
	if err != nil || m.EOF() {
		return err
	}
	// Step back once more so the forward walk starts on this entry.
	m, err = j.Previous()
	if err != nil {
		return err
	}
	if m.EOF() {
		return j.SeekHead()
	}
	return nil
}

func cmdShow() {
	j := openJournal()
	defer j.Close()

	p := stdoutPrinter()
	last, err := visit(context.Background(), j, cfg.Lines, p.print)
	if err != nil {
		fatal("%v", err)
	}
	if err := writeCursorFile(cursorFilePath(), last); err != nil {
		fatal("%v", err)
	}
}

func cmdFollow() {
	j := openJournal()
	defer j.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lines := cfg.Lines
	if lines == 0 {
		lines = 10
	}
	p := stdoutPrinter()
	last, err := visit(ctx, j, lines, p.print)
	if err != nil && ctx.Err() == nil {
		fatal("%v", err)
	}
	if last == "" && cursorFlag == "" && sinceFlag == "" {
		// Nothing shown; start after the current tail.
		if err := j.SeekTail(); err != nil {
			fatal("%v", err)
		}
		if _, err := j.Previous(); err != nil {
			fatal("%v", err)
		}
	}

	for e, err := range j.Follow(ctx) {
		if err != nil {
			log.Warn("follow stopped", "error", err)
			break
		}
		if err := p.print(e); err != nil {
			fatal("%v", err)
		}
		last = e.Cursor
	}
	if err := writeCursorFile(cursorFilePath(), last); err != nil {
		fatal("%v", err)
	}
}

func cmdFields() {
	j := openJournal()
	defer j.Close()

	for name, err := range j.FieldNames() {
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println(name)
	}
}

func cmdUnique(field string) {
	j := openJournal()
	defer j.Close()

	values, err := j.UniqueValues(field)
	if err != nil {
		fatal("query %s: %v", field, err)
	}
	for v, err := range values {
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println(v)
	}
}

func cmdUnits() {
	j := openJournal()
	defer j.Close()

	values, err := j.UniqueValues("_SYSTEMD_UNIT")
	if err != nil {
		fatal("query units: %v", err)
	}
	var names []string
	for v, err := range values {
		if err != nil {
			fatal("%v", err)
		}
		names = append(names, v)
	}
	if len(names) == 0 {
		fmt.Println("no units in journal")
		return
	}

	ctx := context.Background()
	client, err := units.Connect(ctx, userFlag)
	if err != nil {
		// Still useful without a service manager.
		log.Warn("unit states unavailable", "error", err)
		for _, n := range names {
			fmt.Println(n)
		}
		return
	}
	defer client.Close()

	states, err := client.States(ctx, names)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("%-40s %-10s %-10s %-8s %s\n", "UNIT", "ACTIVE", "SUB", "PID", "SINCE")
	for _, s := range states {
		since := "-"
		if !s.Since.IsZero() {
			since = s.Since.Format(time.DateTime)
		}
		active, sub := s.ActiveState, s.SubState
		if !s.Loaded() {
			active, sub = "not-found", "-"
		}
		fmt.Printf("%-40s %-10s %-10s %-8d %s\n", s.Name, active, sub, s.MainPID, since)
	}
}

func cmdUsage() {
	j := openJournal()
	defer j.Close()

	bytes, err := j.Usage()
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("disk usage: %s\n", humanBytes(bytes))

	from, to, err := j.CutoffRealtime()
	switch {
	case err != nil:
		fatal("%v", err)
	case from.IsZero():
		fmt.Println("entries:    none")
	default:
		fmt.Printf("entries:    %s to %s\n", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	runtime, err := j.HasRuntimeFiles()
	if err != nil {
		fatal("%v", err)
	}
	persistent, err := j.HasPersistentFiles()
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("runtime:    %t\npersistent: %t\n", runtime, persistent)
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func cmdCatalog(messageID string) {
	id, err := id128.Parse(messageID)
	if err != nil {
		fatal("%v", err)
	}
	text, err := sdjournal.CatalogForMessageID(id)
	if errors.Is(err, syscall.ENOENT) {
		fatal("no catalog entry for %s", id)
	}
	if err != nil {
		fatal("%v", err)
	}
	fmt.Print(text)
	if !strings.HasSuffix(text, "\n") {
		fmt.Println()
	}
}

func cmdID() {
	machine, err := id128.MachineID()
	if err != nil {
		fatal("machine id: %v", err)
	}
	fmt.Printf("machine:    %s\n", machine)

	boot, err := id128.BootID()
	if err != nil {
		fatal("boot id: %v", err)
	}
	fmt.Printf("boot:       %s\n", boot)

	if inv, err := id128.InvocationID(); err == nil {
		fmt.Printf("invocation: %s\n", inv)
	}
}

func cmdPrint(msg string) {
	level, err := sdjournal.ParseLevel(priorityFlag)
	if err != nil {
		fatal("%v", err)
	}
	if cfg.Namespace != "" {
		sendToNamespace([][]byte{[]byte("MESSAGE=" + msg), []byte(level.PriorityField())})
		return
	}
	if err := sdjournal.LogMessage(level, msg); err != nil {
		fatal("%v", err)
	}
}

func cmdSend(items []string) {
	if cfg.Namespace != "" {
		fields := make([][]byte, len(items))
		for i, it := range items {
			fields[i] = []byte(it)
		}
		sendToNamespace(fields)
		return
	}
	if err := sdjournal.LogRawRecord(items...); err != nil {
		fatal("%v", err)
	}
}

func sendToNamespace(fields [][]byte) {
	sink := nativesock.New(nativesock.SocketPath(cfg.Namespace))
	defer sink.Close()
	if err := sink.Write(fields); err != nil {
		fatal("%v", err)
	}
}

func cmdExport(path string) {
	j := openJournal()
	defer j.Close()

	opts := journalfile.Options{CompressThreshold: compressFlag}
	if id, err := id128.MachineID(); err == nil {
		opts.MachineID = id
	}
	out, err := journalfile.Create(path, opts)
	if err != nil {
		fatal("%v", err)
	}

	n, err := exportEntries(context.Background(), j, out, cfg.Lines)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fatal("export: %v", err)
	}
	log.Info("exported entries", "count", n, "path", path)
}

// exportEntries appends the entries visit selects to out.
func exportEntries(ctx context.Context, j *sdjournal.Journal, out *journalfile.File, limit int) (int, error) {
	n := 0
	_, err := visit(ctx, j, limit, func(e *sdjournal.Entry) error {
		n++
		return out.Append(journalfile.Entry{
			Realtime:  e.Realtime,
			Monotonic: e.Monotonic,
			BootID:    e.BootID,
			Data:      e.Data(),
		})
	})
	return n, err
}

// cmdConfig prints the effective configuration, flags and environment
// included, or saves it over the loaded file.
func cmdConfig(args []string, loaded string) {
	switch {
	case len(args) == 0:
		data, err := yaml.Marshal(cfg)
		if err != nil {
			fatal("%v", err)
		}
		os.Stdout.Write(data)
	case len(args) == 1 && args[0] == "save":
		path, err := saveConfig(cfg, loaded)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println(path)
	default:
		fatal("usage: sdjournal config [save]")
	}
}

// saveConfig writes c to the file it was loaded from, or to the default
// location when there was none, and returns the path written.
func saveConfig(c *config.Config, loaded string) (string, error) {
	path := loaded
	if path == "" {
		path = config.DefaultPath()
	}
	if err := c.Save(path); err != nil {
		return "", fmt.Errorf("save config: %w", err)
	}
	log.Info("config saved", "path", path)
	return path, nil
}
