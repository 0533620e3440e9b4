package config

// Default paths
const (
	// DefaultDatabasePath is the default path for the local application
	// database holding audit events and progress
	DefaultDatabasePath = "./kobotoc.db"

	// DefaultKoboMountPath is where the device is usually mounted
	DefaultKoboMountPath = "/media/KOBOeReader"

	// DefaultCalibreLibraryDir is the library folder name under the home
	// directory
	DefaultCalibreLibraryDir = "Calibre Library"

	KoboDatabaseDir  = ".kobo"
	KoboDatabaseFile = "KoboReader.sqlite"
)
