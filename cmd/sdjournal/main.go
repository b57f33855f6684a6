// sdjournal - query and write the systemd journal
//
// Usage:
//
//	sdjournal [flags] [show]          Print entries
//	sdjournal follow                  Print new entries as they arrive
//	sdjournal fields                  List field names
//	sdjournal unique FIELD            List the values of FIELD
//	sdjournal units                   Units seen in the journal, with their state
//	sdjournal usage                   Disk usage and time range
//	sdjournal catalog MESSAGE_ID      Catalog text for a message id
//	sdjournal id                      Machine and boot id
//	sdjournal print [-p LEVEL] MSG    Log a message
//	sdjournal send FIELD=VALUE...     Log a structured entry
//	sdjournal export FILE             Copy matching entries into a journal file
//	sdjournal config [save]           Show or save the effective configuration
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/mbrock/sdjournal/internal/config"
	"github.com/mbrock/sdjournal/pkg/sdjournal"
)

// Global flags
var (
	directoryFlag  string
	fileFlags      []string
	namespaceFlag  string
	systemFlag     bool
	userFlag       bool
	localFlag      bool
	runtimeFlag    bool
	matchFlags     []string
	unitFlags      []string
	linesFlag      int
	reverseFlag    bool
	cursorFlag     string
	cursorFileFlag string
	sinceFlag      string
	outputFlag     string
	priorityFlag   string
	compressFlag   int
	logLevelFlag   string
	thresholdFlag  int
)

var (
	cfg *config.Config
	log *slog.Logger
)

func main() {
	flag.StringVarP(&directoryFlag, "directory", "D", "", "Read journal files from directory")
	flag.StringArrayVar(&fileFlags, "file", nil, "Read this journal file (can be repeated)")
	flag.StringVar(&namespaceFlag, "namespace", "", "Use a journald namespace (\"*\" for all)")
	flag.BoolVar(&systemFlag, "system", false, "Only system journal files")
	flag.BoolVar(&userFlag, "user", false, "Only the current user's journal files; user manager for units")
	flag.BoolVar(&localFlag, "local", false, "Only files generated on this machine")
	flag.BoolVar(&runtimeFlag, "runtime", false, "Only volatile files under /run")
	flag.StringArrayVarP(&matchFlags, "match", "m", nil, "Match FIELD=VALUE (can be repeated)")
	flag.StringArrayVarP(&unitFlags, "unit", "u", nil, "Entries about a unit (can be repeated)")
	flag.IntVarP(&linesFlag, "lines", "n", 0, "Show the last N entries (0 = all; follow defaults to 10)")
	flag.BoolVarP(&reverseFlag, "reverse", "r", false, "Newest entries first")
	flag.StringVarP(&cursorFlag, "cursor", "c", "", "Start at the entry named by a cursor")
	flag.StringVar(&cursorFileFlag, "cursor-file", "", "Resume after the cursor stored in FILE and store the last cursor there")
	flag.StringVar(&sinceFlag, "since", "", "Start at a time: RFC 3339, \"2006-01-02 15:04:05\", today, yesterday or -DURATION")
	flag.StringVarP(&outputFlag, "output", "o", "", "Output: short, json, cat, verbose")
	flag.StringVarP(&priorityFlag, "priority", "p", "info", "Priority for print")
	flag.IntVar(&compressFlag, "compress", 0, "Compress payloads of at least N bytes in export (0 = off)")
	flag.StringVar(&logLevelFlag, "log-level", "", "Diagnostic log level: debug, info, warn, error")
	flag.IntVar(&thresholdFlag, "data-threshold", 0, "Largest field size to decompress (0 = libsystemd default)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `sdjournal - query and write the systemd journal

Usage:
  sdjournal [flags] [show]          Print entries
  sdjournal follow                  Print new entries as they arrive
  sdjournal fields                  List field names
  sdjournal unique FIELD            List the values of FIELD
  sdjournal units [--user]          Units seen in the journal, with their state
  sdjournal usage                   Disk usage and time range
  sdjournal catalog MESSAGE_ID      Catalog text for a message id
  sdjournal id                      Machine and boot id
  sdjournal print [-p LEVEL] MSG    Log a message
  sdjournal send FIELD=VALUE...     Log a structured entry
  sdjournal export FILE             Copy matching entries into a journal file
  sdjournal config [save]           Show or save the effective configuration

Flags:
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	var path string
	var err error
	cfg, path, err = config.Load()
	if err != nil {
		fatal("%v", err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		fatal("%v", err)
	}

	log = newLogger(cfg.LogLevel)
	slog.SetDefault(log)
	if path != "" {
		log.Debug("config loaded", "path", path)
	}

	args := flag.Args()
	cmd := "show"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "show":
		cmdShow()
	case "follow":
		cmdFollow()
	case "fields":
		cmdFields()
	case "unique":
		if len(args) != 1 {
			fatal("usage: sdjournal unique FIELD")
		}
		cmdUnique(args[0])
	case "units":
		cmdUnits()
	case "usage":
		cmdUsage()
	case "catalog":
		if len(args) != 1 {
			fatal("usage: sdjournal catalog MESSAGE_ID")
		}
		cmdCatalog(args[0])
	case "id":
		cmdID()
	case "print":
		if len(args) == 0 {
			fatal("usage: sdjournal print [-p LEVEL] MESSAGE")
		}
		cmdPrint(strings.Join(args, " "))
	case "send":
		if len(args) == 0 {
			fatal("usage: sdjournal send FIELD=VALUE...")
		}
		cmdSend(args)
	case "export":
		if len(args) != 1 {
			fatal("usage: sdjournal export FILE")
		}
		cmdExport(args[0])
	case "config":
		cmdConfig(args, path)
	default:
		fatal("unknown command: %s", cmd)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// applyFlags lays explicitly set flags over the loaded config.
func applyFlags(c *config.Config) {
	if flag.CommandLine.Changed("directory") {
		c.Directory = directoryFlag
	}
	if flag.CommandLine.Changed("namespace") {
		c.Namespace = namespaceFlag
	}
	if flag.CommandLine.Changed("output") {
		c.Output = outputFlag
	}
	if flag.CommandLine.Changed("lines") {
		c.Lines = linesFlag
	}
	if flag.CommandLine.Changed("log-level") {
		c.LogLevel = logLevelFlag
	}
	if flag.CommandLine.Changed("data-threshold") {
		c.DataThreshold = thresholdFlag
	}
	c.Matches = append(c.Matches, matchFlags...)
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func fileFlagsFromCLI() sdjournal.FileFlags {
	var f sdjournal.FileFlags
	if localFlag {
		f |= sdjournal.LocalOnly
	}
	if runtimeFlag {
		f |= sdjournal.RuntimeOnly
	}
	return f
}

func userFlagsFromCLI() sdjournal.UserFlags {
	var u sdjournal.UserFlags
	if systemFlag {
		u |= sdjournal.SystemOnly
	}
	if userFlag {
		u |= sdjournal.CurrentUserOnly
	}
	return u
}
