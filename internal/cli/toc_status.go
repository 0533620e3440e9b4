package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/mrlokans/kobotoc/internal/config"
	"github.com/mrlokans/kobotoc/internal/entities"
)

// TocStatusCommand reports whether the chapter lists of library books match
// the device
type TocStatusCommand struct {
	tocOptions
}

// NewTocStatusCommand creates a new TocStatusCommand
func NewTocStatusCommand() *TocStatusCommand {
	return &TocStatusCommand{}
}

// ParseFlags parses command line flags
func (cmd *TocStatusCommand) ParseFlags(args []string) error {
	cfg := config.NewConfig()
	fs := flag.NewFlagSet("toc-status", flag.ExitOnError)
	cmd.register(fs, cfg)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s toc-status [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Compare the table of contents of calibre library books with the copies\n")
		fmt.Fprintf(os.Stderr, "on a Kobo eReader and the chapters recorded in its database.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Check every book in the library:\n")
		fmt.Fprintf(os.Stderr, "  %s toc-status\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Check two books against a device mounted elsewhere:\n")
		fmt.Fprintf(os.Stderr, "  %s toc-status -ids 12,40 -mount /Volumes/KOBOeReader -verbose\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	cmd.finish(fs)

	if _, err := cmd.ids(); err != nil {
		return err
	}
	return nil
}

// Run executes the status check
func (cmd *TocStatusCommand) Run() error {
	fmt.Println("📚 Kobo ToC Status")
	fmt.Println("==================")
	fmt.Printf("📁 Library: %s\n", cmd.LibraryPath)
	fmt.Printf("📁 Device DB: %s\n", cmd.KoboDBPath)

	ids, err := cmd.ids()
	if err != nil {
		return err
	}

	session, err := cmd.open()
	if err != nil {
		return err
	}
	defer session.Close()

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Println("\n🔍 Checking books...")
	result, err := session.service.Check(ctx, ids)
	if err != nil {
		return err
	}

	printSummary(result.Statuses, cmd.Verbose)
	if result.ReportFile != "" {
		fmt.Printf("\n📝 Report saved: %s\n", result.ReportFile)
	}

	session.cleanup(cmd.Retention)
	return nil
}

func printSummary(statuses []entities.BookToCStatus, verbose bool) {
	if len(statuses) == 0 {
		fmt.Println("ℹ️  No books found in the library")
		return
	}

	fmt.Println("\n=== Books ===")
	counts := make(map[entities.TocClassification]int)
	rebuildable := 0
	for i, s := range statuses {
		printStatus(i+1, s, verbose)
		counts[s.Classification]++
		if s.NeedsRebuild() {
			rebuildable++
		}
	}

	fmt.Println("\n=== Summary ===")
	fmt.Printf("📚 Books checked: %d\n", len(statuses))
	fmt.Printf("✅ Matching: %d\n", counts[entities.TocOK])
	fmt.Printf("🔧 Can be rebuilt: %d\n", rebuildable)
	if n := counts[entities.TocNeedsFileUpdate]; n > 0 {
		fmt.Printf("📤 Need the device file updated: %d\n", n)
	}
	if n := counts[entities.TocNotImported]; n > 0 {
		fmt.Printf("📥 Not yet imported on the device: %d\n", n)
	}
}
