package cli

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mrlokans/kobotoc/internal/config"
	"github.com/mrlokans/kobotoc/internal/services"
)

// TocUpdateCommand rebuilds the chapter rows of device books whose database
// entries no longer match the book file
type TocUpdateCommand struct {
	tocOptions
	Yes    bool
	DryRun bool

	in io.Reader
}

// NewTocUpdateCommand creates a new TocUpdateCommand
func NewTocUpdateCommand() *TocUpdateCommand {
	return &TocUpdateCommand{in: os.Stdin}
}

// ParseFlags parses command line flags
func (cmd *TocUpdateCommand) ParseFlags(args []string) error {
	cfg := config.NewConfig()
	fs := flag.NewFlagSet("toc-update", flag.ExitOnError)
	cmd.register(fs, cfg)
	fs.BoolVar(&cmd.Yes, "yes", false, "Rebuild without asking for confirmation")
	fs.BoolVar(&cmd.DryRun, "dry-run", false, "Show what would be rebuilt without making changes")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s toc-update [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Check books like toc-status, then rewrite the chapter rows in the Kobo\n")
		fmt.Fprintf(os.Stderr, "database for every book whose rows do not match the file on the device.\n\n")
		fmt.Fprintf(os.Stderr, "Eject the device cleanly afterwards so the database is flushed.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Preview which books would be rebuilt:\n")
		fmt.Fprintf(os.Stderr, "  %s toc-update -dry-run\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Rebuild one book working on a copy of the device database:\n")
		fmt.Fprintf(os.Stderr, "  %s toc-update -ids 12 -copy -yes\n", os.Args[0])
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

// Run executes the check and the rebuild
func (cmd *TocUpdateCommand) Run() error {
	fmt.Println("📚 Kobo ToC Update")
	fmt.Println("==================")

	if cmd.DryRun {
		fmt.Println("🔍 DRY RUN MODE - No changes will be made")
		fmt.Println()
	}

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

	fmt.Println("🔍 Checking books...")
	check, err := session.service.Check(ctx, ids)
	if err != nil {
		return err
	}

	candidates := check.Rebuildable()
	if len(candidates) == 0 {
		printSummary(check.Statuses, cmd.Verbose)
		fmt.Println("\n✅ Nothing to rebuild")
		return nil
	}

	fmt.Printf("\n🔧 %d books can be rebuilt:\n", len(candidates))
	for i, s := range candidates {
		printStatus(i+1, s, cmd.Verbose)
	}

	if cmd.DryRun {
		fmt.Println("\n✅ Dry run complete. Use without -dry-run to rebuild.")
		return nil
	}

	if !cmd.Yes && !confirm(cmd.in, "\nRebuild the chapters of these books? [y/N]: ") {
		fmt.Println("ℹ️  Nothing changed")
		return nil
	}

	fmt.Printf("\n💾 Writing to device database: %s\n", cmd.KoboDBPath)
	result, err := session.service.Update(ctx, candidates)
	printUpdateResult(result)
	if err != nil {
		return err
	}

	session.cleanup(cmd.Retention)
	return nil
}

func confirm(in io.Reader, prompt string) bool {
	fmt.Print(prompt)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func printUpdateResult(result services.UpdateResult) {
	fmt.Println("\n=== Update Summary ===")
	fmt.Printf("📚 Books rebuilt: %d\n", len(result.Updated))
	for _, u := range result.Updated {
		fmt.Printf("  ✅ \"%s\": %d chapters", u.Status.Book.Title, u.Result.Chapters)
		if u.Result.ManifestEntries > 0 {
			fmt.Printf(", %d manifest entries", u.Result.ManifestEntries)
		}
		if u.Result.DuplicatesSkipped > 0 {
			fmt.Printf(", %d repeated entries skipped", u.Result.DuplicatesSkipped)
		}
		if u.Result.BookmarkWritten {
			fmt.Printf(", reading location kept")
		}
		fmt.Println()
	}

	if len(result.Failed) > 0 {
		fmt.Printf("\n⚠️  %d books could not be rebuilt:\n", len(result.Failed))
		for _, f := range result.Failed {
			fmt.Printf("  ❌ %s\n", f.Error())
		}
	}
}
