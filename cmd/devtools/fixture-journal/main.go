// fixture-journal writes the deterministic test journal to a file so it can
// be inspected with journalctl --file or sdjournal --file.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/mbrock/sdjournal/internal/fixture"
	"github.com/mbrock/sdjournal/pkg/journalfile"
)

func main() {
	out := flag.StringP("output", "o", "fixture.journal", "Journal file to create")
	compress := flag.Int("compress", 0, "Compress payloads of at least N bytes (0 = off)")
	flag.Parse()

	opts := fixture.Options()
	opts.CompressThreshold = *compress
	if err := journalfile.WriteFile(*out, opts, fixture.Entries()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created %s with %d entries\n", *out, fixture.Count)
}
