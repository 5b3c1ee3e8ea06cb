// Package home manages the examscan home directory layout: configuration,
// uploaded scans, and exported results.
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the examscan home directory.
	DefaultDirName = ".examscan"

	// UploadsDirName is the subdirectory for uploaded scan files.
	UploadsDirName = "uploads"

	// ExportsDirName is the subdirectory for exported question data.
	ExportsDirName = "exports"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the examscan home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.examscan).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// UploadsPath returns the path to the uploads directory.
func (d *Dir) UploadsPath() string {
	return filepath.Join(d.path, UploadsDirName)
}

// ExportsPath returns the path to the exports directory.
func (d *Dir) ExportsPath() string {
	return filepath.Join(d.path, ExportsDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they
// don't exist.
func (d *Dir) EnsureExists() error {
	for _, p := range []string{d.UploadsPath(), d.ExportsPath()} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", p, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home
// directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// DocumentUploadsDir returns the uploads directory for one document.
func (d *Dir) DocumentUploadsDir(documentID string) string {
	return filepath.Join(d.UploadsPath(), documentID)
}

// EnsureDocumentUploadsDir creates the uploads directory for a document.
func (d *Dir) EnsureDocumentUploadsDir(documentID string) error {
	return os.MkdirAll(d.DocumentUploadsDir(documentID), 0o755)
}

// ExportPath returns the export file path for a document.
func (d *Dir) ExportPath(documentID string) string {
	return filepath.Join(d.ExportsPath(), documentID+".json")
}
