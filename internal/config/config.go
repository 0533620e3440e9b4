package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Database
		Kobo
		Calibre
		Audit
	}

	Database struct {
		Path string
	}
	Kobo struct {
		MountPath   string
		DBPath      string // defaults to <MountPath>/.kobo/KoboReader.sqlite
		CopyOnWrite bool   // work on a temporary copy and copy it back
		// EPUBForKEPUB lets a library EPUB be compared against a KEPUB on
		// the device.
		EPUBForKEPUB bool
	}
	Calibre struct {
		LibraryPath string
	}
	Audit struct {
		Dir           string
		RetentionDays int // Days to keep audit events (default: 30)
	}
)

// NewConfig reads configuration from the environment. A .env file in the
// working directory is loaded first when present.
func NewConfig() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env: %v", err)
	}
	return newConfig(viper.New())
}

func newConfig(v *viper.Viper) *Config {
	v.AutomaticEnv()
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("kobo_mount_path", DefaultKoboMountPath)
	v.SetDefault("kobo_db_path", "")
	v.SetDefault("kobo_db_copy", false)
	v.SetDefault("kobo_epub_for_kepub", true)
	v.SetDefault("calibre_library_path", defaultCalibreLibraryPath())
	v.SetDefault("audit_dir", "./audit")
	v.SetDefault("audit_retention_days", 30)

	mount := v.GetString("KOBO_MOUNT_PATH")
	koboDB := v.GetString("KOBO_DB_PATH")
	if koboDB == "" {
		koboDB = KoboDatabasePath(mount)
	}

	return &Config{
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Kobo: Kobo{
			MountPath:    mount,
			DBPath:       koboDB,
			CopyOnWrite:  v.GetBool("KOBO_DB_COPY"),
			EPUBForKEPUB: v.GetBool("KOBO_EPUB_FOR_KEPUB"),
		},
		Calibre: Calibre{
			LibraryPath: expandHome(v.GetString("CALIBRE_LIBRARY_PATH")),
		},
		Audit: Audit{
			Dir:           v.GetString("AUDIT_DIR"),
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
	}
}

// KoboDatabasePath returns the device database location under a mount.
func KoboDatabasePath(mount string) string {
	return filepath.Join(mount, KoboDatabaseDir, KoboDatabaseFile)
}

func defaultCalibreLibraryPath() string {
	return filepath.Join("~", DefaultCalibreLibraryDir)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
