package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the relayout home directory.
	DefaultDirName = ".relayout"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	uploadsDirName = "uploads"
	imagesDirName  = "images"
	outputsDirName = "outputs"
)

// Dir represents the relayout home directory structure:
//
//	<home>/config.yaml
//	<home>/uploads/<document>.pdf
//	<home>/images/<document>/page_0001.png
//	<home>/outputs/<document>_page_<n>_{inside,outside}.json
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.relayout).
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

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and its fixed subdirectories.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.UploadsDir(), filepath.Join(d.path, imagesDirName), d.OutputsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Base(dir), err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// UploadsDir returns the directory holding uploaded PDFs.
func (d *Dir) UploadsDir() string {
	return filepath.Join(d.path, uploadsDirName)
}

// UploadPath returns the stored PDF path for a document.
func (d *Dir) UploadPath(docID string) string {
	return filepath.Join(d.UploadsDir(), docID+".pdf")
}

// ImagesDir returns the directory for page images of a document.
func (d *Dir) ImagesDir(docID string) string {
	return filepath.Join(d.path, imagesDirName, docID)
}

// EnsureImagesDir creates the page image directory for a document.
func (d *Dir) EnsureImagesDir(docID string) error {
	return os.MkdirAll(d.ImagesDir(docID), 0o755)
}

// PageImagePath returns the path to a page image with the given extension.
// Page numbers are 1-indexed.
func (d *Dir) PageImagePath(docID string, pageNum int, ext string) string {
	return filepath.Join(d.ImagesDir(docID), fmt.Sprintf("page_%04d.%s", pageNum, ext))
}

// FindPageImage returns the stored image for a page, whatever its format.
func (d *Dir) FindPageImage(docID string, pageNum int) (string, error) {
	matches, err := filepath.Glob(filepath.Join(d.ImagesDir(docID), fmt.Sprintf("page_%04d.*", pageNum)))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", os.ErrNotExist
	}
	return matches[0], nil
}

// OutputsDir returns the directory for comparison output files.
func (d *Dir) OutputsDir() string {
	return filepath.Join(d.path, outputsDirName)
}
