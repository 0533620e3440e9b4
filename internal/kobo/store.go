// Package kobo reads and rewrites the synthetic chapter rows a Kobo device
// keeps in its KoboReader.sqlite content store.
//
// Reads go through a read-only connection held by Store. Writes happen in
// an Update session which holds the process-wide device lock for its whole
// duration, including the copy-back of a copy-on-write working file.
package kobo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrBookNotFound   = errors.New("book not found in device database")
	ErrNothingToWrite = errors.New("no chapters to write")
)

// deviceLock serialises every write session against any device store in
// this process.
var deviceLock sync.Mutex

// StoreConfig locates the device database.
type StoreConfig struct {
	// DBPath is the real location of KoboReader.sqlite.
	DBPath string
	// CopyOnWrite works on a temporary copy and copies it back once the
	// session succeeds.
	CopyOnWrite bool
}

// Store is an open device database.
type Store struct {
	cfg StoreConfig
	db  *sql.DB
}

// OpenStore opens the device database for reading.
func OpenStore(cfg StoreConfig) (*Store, error) {
	if _, err := os.Stat(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("device database not found at %s: %w", cfg.DBPath, err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open device database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open device database: %w", err)
	}

	return &Store{cfg: cfg, db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the real location of the device database.
func (s *Store) Path() string {
	return s.cfg.DBPath
}

// Update runs fn with a Writer on a dedicated write connection. The device
// lock is held until the connection is closed and, in copy-on-write mode,
// the working copy has been copied back. Nothing is copied back when fn
// returns an error. The copy-back replaces the file, so reads after a
// copy-on-write session need a freshly opened Store.
func (s *Store) Update(ctx context.Context, fn func(w *Writer) error) error {
	deviceLock.Lock()
	defer deviceLock.Unlock()

	workPath := s.cfg.DBPath
	if s.cfg.CopyOnWrite {
		tmpDir, err := os.MkdirTemp("", "kobotoc-*")
		if err != nil {
			return fmt.Errorf("failed to create working directory: %w", err)
		}
		defer os.RemoveAll(tmpDir)

		workPath = filepath.Join(tmpDir, filepath.Base(s.cfg.DBPath))
		if err := copyFile(s.cfg.DBPath, workPath); err != nil {
			return fmt.Errorf("failed to copy device database: %w", err)
		}
		log.Printf("Working on device database copy %s", workPath)
	}

	db, err := sql.Open("sqlite3", workPath+"?_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open device database for writing: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := ctx.Err(); err != nil {
		db.Close()
		return err
	}

	fnErr := fn(&Writer{db: db})
	closeErr := db.Close()
	if fnErr != nil {
		return fnErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close device database: %w", closeErr)
	}

	if s.cfg.CopyOnWrite {
		if err := copyFile(workPath, s.cfg.DBPath); err != nil {
			return fmt.Errorf("failed to copy device database back: %w", err)
		}
		log.Printf("Copied device database back to %s", s.cfg.DBPath)
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
