package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/gorm"

	"github.com/mrlokans/kobotoc/internal/audit"
	"github.com/mrlokans/kobotoc/internal/config"
	"github.com/mrlokans/kobotoc/internal/database"
	auditRepo "github.com/mrlokans/kobotoc/internal/database/audit"
	"github.com/mrlokans/kobotoc/internal/database/sync"
	"github.com/mrlokans/kobotoc/internal/entities"
)

// TocHistoryCommand lists recorded status checks and rebuilds
type TocHistoryCommand struct {
	DatabasePath  string
	BookContentID string
	EventType     string
	Limit         int
	Offset        int
}

// NewTocHistoryCommand creates a new TocHistoryCommand
func NewTocHistoryCommand() *TocHistoryCommand {
	return &TocHistoryCommand{}
}

// ParseFlags parses command line flags
func (cmd *TocHistoryCommand) ParseFlags(args []string) error {
	cfg := config.NewConfig()
	fs := flag.NewFlagSet("toc-history", flag.ExitOnError)
	fs.StringVar(&cmd.DatabasePath, "db", cfg.Database.Path, "Path to the local database for audit events and progress")
	fs.StringVar(&cmd.BookContentID, "book", "", "Only show events for this device content ID")
	fs.StringVar(&cmd.EventType, "type", "", "Only show events of this type (toc_check or toc_update)")
	fs.IntVar(&cmd.Limit, "limit", 20, "Maximum number of events to show")
	fs.IntVar(&cmd.Offset, "offset", 0, "Number of events to skip")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s toc-history [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Show the last status and update batches and the audit events they recorded.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Show recent rebuilds:\n")
		fmt.Fprintf(os.Stderr, "  %s toc-history -type toc_update\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Show everything recorded for one book:\n")
		fmt.Fprintf(os.Stderr, "  %s toc-history -book file:///mnt/onboard/Author/Book.epub\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	switch entities.AuditEventType(cmd.EventType) {
	case "", entities.AuditEventTocCheck, entities.AuditEventTocUpdate:
	default:
		return fmt.Errorf("unknown event type %q", cmd.EventType)
	}
	return nil
}

// history is what toc-history prints.
type history struct {
	batches []entities.SyncProgress
	events  []entities.AuditEvent
	total   int64
}

func (cmd *TocHistoryCommand) load(db *gorm.DB) (history, error) {
	var h history

	for _, t := range []entities.SyncType{entities.SyncTypeToCStatus, entities.SyncTypeToCUpdate} {
		p, err := sync.NewRepository(db, t).GetSyncProgress()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return h, fmt.Errorf("failed to read %s progress: %w", t, err)
		}
		h.batches = append(h.batches, *p)
	}

	service := audit.NewService(auditRepo.NewRepository(db))
	if cmd.BookContentID != "" {
		events, err := service.GetBookHistory(cmd.BookContentID)
		if err != nil {
			return h, fmt.Errorf("failed to read history of %s: %w", cmd.BookContentID, err)
		}
		h.events = events
		h.total = int64(len(events))
		return h, nil
	}

	events, total, err := service.GetEvents(entities.AuditEventType(cmd.EventType), cmd.Limit, cmd.Offset)
	if err != nil {
		return h, fmt.Errorf("failed to read audit events: %w", err)
	}
	h.events = events
	h.total = total
	return h, nil
}

// Run prints the history
func (cmd *TocHistoryCommand) Run() error {
	absDBPath, err := filepath.Abs(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for database: %w", err)
	}

	db, err := database.NewDatabase(absDBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	h, err := cmd.load(db.DB)
	if err != nil {
		return err
	}

	fmt.Println("📜 Kobo ToC History")
	fmt.Println("===================")

	fmt.Println("\n=== Last batches ===")
	if len(h.batches) == 0 {
		fmt.Println("ℹ️  No batch has run yet")
	}
	for _, p := range h.batches {
		printBatch(p)
	}

	fmt.Println("\n=== Events ===")
	if len(h.events) == 0 {
		fmt.Println("ℹ️  No events recorded")
		return nil
	}
	for _, e := range h.events {
		printEvent(e)
	}
	if shown := int64(cmd.Offset + len(h.events)); cmd.BookContentID == "" && shown < h.total {
		fmt.Printf("\n... %d more, use -offset %d to continue\n", h.total-shown, shown)
	}
	return nil
}

func printBatch(p entities.SyncProgress) {
	if !p.Done() {
		fmt.Printf("⏳ %s: running since %s, %d/%d done (current: %s)\n",
			p.SyncType, p.StartedAt.Format("2006-01-02 15:04"), p.Processed, p.TotalItems, p.CurrentItem)
		return
	}

	icon := "✅"
	if p.Status == entities.SyncStatusFailed {
		icon = "❌"
	}
	finished := p.UpdatedAt
	if p.CompletedAt != nil {
		finished = *p.CompletedAt
	}
	fmt.Printf("%s %s: %s at %s, %d succeeded, %d failed\n",
		icon, p.SyncType, p.Status, finished.Format("2006-01-02 15:04"), p.Succeeded, p.Failed)
	if p.Error != "" {
		fmt.Printf("   %s\n", p.Error)
	}
}

func printEvent(e entities.AuditEvent) {
	icon := "✅"
	switch e.Status {
	case entities.AuditStatusPartial:
		icon = "⚠️ "
	case entities.AuditStatusFailed:
		icon = "❌"
	}
	fmt.Printf("%s %s %s\n", e.CreatedAt.Format("2006-01-02 15:04"), icon, e.Description)
	if e.BookContentID != "" {
		fmt.Printf("   📁 %s\n", e.BookContentID)
	}
	if e.ErrorMsg != "" {
		fmt.Printf("   %s\n", e.ErrorMsg)
	}
}
