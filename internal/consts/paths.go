package consts

import (
	"os"
	"path/filepath"
)

const (
	PackratDirName = ".packrat"
	ConfigFileName = "config.yaml"
	ArchiveDBName  = "archives.db"
	PagesDirName   = "pages"
)

func PackratHomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, PackratDirName)
}

func DefaultConfigPath() string {
	return filepath.Join(PackratHomeDir(), ConfigFileName)
}

func DefaultArchiveDBPath() string {
	return filepath.Join(PackratHomeDir(), ArchiveDBName)
}

// DefaultPagesDir is where archived web pages are written as markdown.
func DefaultPagesDir() string {
	return filepath.Join(PackratHomeDir(), PagesDirName)
}
