package cli

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mrlokans/kobotoc/internal/audit"
	"github.com/mrlokans/kobotoc/internal/calibre"
	"github.com/mrlokans/kobotoc/internal/config"
	"github.com/mrlokans/kobotoc/internal/database"
	auditRepo "github.com/mrlokans/kobotoc/internal/database/audit"
	"github.com/mrlokans/kobotoc/internal/database/sync"
	"github.com/mrlokans/kobotoc/internal/entities"
	"github.com/mrlokans/kobotoc/internal/kobo"
	"github.com/mrlokans/kobotoc/internal/services"
	"github.com/mrlokans/kobotoc/internal/tocstatus"
)

// tocOptions are the flags shared by the ToC commands. Defaults come from
// the environment.
type tocOptions struct {
	BookIDs      string
	DatabasePath string
	KoboDBPath   string
	MountPath    string
	LibraryPath  string
	AuditDir     string
	CopyOnWrite  bool
	EPUBForKEPUB bool
	Retention    int
	Verbose      bool
}

func (o *tocOptions) register(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&o.BookIDs, "ids", "", "Comma-separated library book IDs (all books if empty)")
	fs.StringVar(&o.DatabasePath, "db", cfg.Database.Path, "Path to the local database for audit events and progress")
	fs.StringVar(&o.KoboDBPath, "kobo-db", cfg.Kobo.DBPath, "Path to KoboReader.sqlite")
	fs.StringVar(&o.MountPath, "mount", cfg.Kobo.MountPath, "Mount point of the Kobo eReader")
	fs.StringVar(&o.LibraryPath, "library", cfg.Calibre.LibraryPath, "Path to the calibre library")
	fs.StringVar(&o.AuditDir, "report", cfg.Audit.Dir, "Directory for JSON status reports (empty disables reports)")
	fs.BoolVar(&o.CopyOnWrite, "copy", cfg.Kobo.CopyOnWrite, "Work on a copy of the device database and copy it back when done")
	fs.BoolVar(&o.EPUBForKEPUB, "epub-for-kepub", cfg.Kobo.EPUBForKEPUB, "Compare a library EPUB when the device has a KEPUB")
	fs.IntVar(&o.Retention, "retention-days", cfg.Audit.RetentionDays, "Days to keep audit events and reports (0 keeps everything)")
	fs.BoolVar(&o.Verbose, "verbose", false, "Show chapter details for every book")
}

// finish derives the device database path from -mount unless -kobo-db was
// given.
func (o *tocOptions) finish(fs *flag.FlagSet) {
	kobodb := false
	mount := false
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "kobo-db":
			kobodb = true
		case "mount":
			mount = true
		}
	})
	if mount && !kobodb {
		o.KoboDBPath = config.KoboDatabasePath(o.MountPath)
	}
}

func (o *tocOptions) ids() ([]int, error) {
	return parseBookIDs(o.BookIDs)
}

func parseBookIDs(s string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid book ID %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// tocSession holds everything a ToC command opens. Close releases it.
type tocSession struct {
	service *services.TocService
	store   *kobo.Store
	library *calibre.Library
	db      *database.Database
}

func (o *tocOptions) open() (*tocSession, error) {
	absDBPath, err := filepath.Abs(o.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for database: %w", err)
	}

	db, err := database.NewDatabase(absDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	store, err := kobo.OpenStore(kobo.StoreConfig{DBPath: o.KoboDBPath, CopyOnWrite: o.CopyOnWrite})
	if err != nil {
		db.Close()
		return nil, err
	}

	library, err := calibre.OpenLibrary(o.LibraryPath)
	if err != nil {
		store.Close()
		db.Close()
		return nil, err
	}

	evaluator := tocstatus.NewEvaluator(
		kobo.NewLocator(store, o.MountPath),
		library,
		store,
		tocstatus.EPUBOpener,
		tocstatus.Options{AllowEPUBForKEPUB: o.EPUBForKEPUB},
	)

	deps := services.TocServiceDeps{
		Library:        library,
		Evaluator:      evaluator,
		Device:         store,
		CheckProgress:  sync.NewRepository(db.DB, entities.SyncTypeToCStatus),
		UpdateProgress: sync.NewRepository(db.DB, entities.SyncTypeToCUpdate),
		Audit:          audit.NewService(auditRepo.NewRepository(db.DB)),
	}
	if o.AuditDir != "" {
		deps.Reports = audit.NewAuditor(o.AuditDir)
	}

	return &tocSession{
		service: services.NewTocService(deps),
		store:   store,
		library: library,
		db:      db,
	}, nil
}

func (s *tocSession) Close() {
	s.library.Close()
	s.store.Close()
	s.db.Close()
}

func (s *tocSession) cleanup(retentionDays int) {
	if err := s.service.Cleanup(time.Duration(retentionDays) * 24 * time.Hour); err != nil {
		fmt.Printf("⚠️  Cleanup failed: %v\n", err)
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func statusIcon(c entities.TocClassification) string {
	switch c {
	case entities.TocOK:
		return "✅"
	case entities.TocNeedsDatabaseRebuild, entities.TocNeedsFileUpdate:
		return "🔧"
	case entities.TocNotImported:
		return "📥"
	case entities.TocLibraryDRM, entities.TocDeviceDRM:
		return "🔒"
	default:
		return "❌"
	}
}

func printStatus(i int, s entities.BookToCStatus, verbose bool) {
	fmt.Printf("%d. %s \"%s\"", i, statusIcon(s.Classification), s.Book.Title)
	if s.Book.Authors != "" {
		fmt.Printf(" by %s", s.Book.Authors)
	}
	fmt.Printf("\n   %s\n", s.Comment())
	if s.Detail != "" {
		fmt.Printf("   %s\n", s.Detail)
	}
	if s.BookmarkError != "" {
		fmt.Printf("   ⚠️  Reading location not kept: %s\n", s.BookmarkError)
	}

	if !verbose {
		return
	}
	if s.BookContentID != "" {
		fmt.Printf("   📁 %s (%s)\n", s.BookContentID, s.SubFormat)
	}
	fmt.Printf("   Chapters: library %d, device file %d, device database %d\n",
		len(s.LibraryChapters), len(s.DeviceFileChapters), len(s.DeviceDBChapters))
	if s.FileMismatch != nil {
		fmt.Printf("   File mismatch: %s\n", s.FileMismatch)
	}
	if s.DBMismatch != nil {
		fmt.Printf("   Database mismatch: %s\n", s.DBMismatch)
	}
}
