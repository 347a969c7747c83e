// Package fs lays out a project structure as an empty skeleton on an
// in-memory filesystem and exports it as a zip archive.
package fs

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/santiagomed/scaff/tree"
	"github.com/spf13/afero"
)

// FileSystem wraps the Afero Fs interface
type FileSystem struct {
	Fs afero.Fs
}

// NewMemoryFileSystem creates a new in-memory file system
func NewMemoryFileSystem() *FileSystem {
	return &FileSystem{
		Fs: afero.NewMemMapFs(),
	}
}

// FileOperation represents a single file operation
type FileOperation struct {
	Operation string `json:"operation"`
	Path      string `json:"path"`
}

const (
	OpCreateDir  = "CREATE_DIR"
	OpCreateFile = "CREATE_FILE"
)

// Operations lists the operations that lay out root, parents first.
func Operations(root *tree.Node) []FileOperation {
	var ops []FileOperation
	tree.Walk(root, func(p string, _ int, n *tree.Node) {
		op := OpCreateFile
		if n.IsDir() {
			op = OpCreateDir
		}
		ops = append(ops, FileOperation{Operation: op, Path: p})
	})
	return ops
}

// Materialize creates an empty skeleton of root.
func (fs *FileSystem) Materialize(root *tree.Node) error {
	if root == nil {
		return fmt.Errorf("no tree to materialize")
	}
	return fs.ExecuteFileOperations(Operations(root))
}

// ExecuteFileOperations performs a series of file operations
func (fs *FileSystem) ExecuteFileOperations(operations []FileOperation) error {
	for _, op := range operations {
		if err := fs.ExecuteFileOperation(op); err != nil {
			return fmt.Errorf("error executing operation %s on %s: %w", op.Operation, op.Path, err)
		}
	}
	return nil
}

// ExecuteFileOperation performs a single file operation
func (fs *FileSystem) ExecuteFileOperation(op FileOperation) error {
	switch op.Operation {
	case OpCreateDir:
		return fs.Fs.MkdirAll(op.Path, 0755)
	case OpCreateFile:
		return fs.CreateFile(op.Path)
	default:
		return fmt.Errorf("unknown operation: %s", op.Operation)
	}
}

// CreateFile creates a new empty file and its parent directories
func (fs *FileSystem) CreateFile(p string) error {
	dir := path.Dir(p)
	if err := fs.Fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating directory %s: %w", dir, err)
	}

	f, err := fs.Fs.Create(p)
	if err != nil {
		return fmt.Errorf("error creating file %s: %w", p, err)
	}
	return f.Close()
}

// IsDir checks if a path is a directory
func (fs *FileSystem) IsDir(p string) bool {
	info, err := fs.Fs.Stat(p)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// WriteZip writes everything under dir to w as a zip archive.
func (fs *FileSystem) WriteZip(w io.Writer, dir string) error {
	zipWriter := zip.NewWriter(w)

	entries := 0
	err := afero.Walk(fs.Fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		zipPath := filepath.ToSlash(p)
		if info.IsDir() {
			if _, err := zipWriter.Create(zipPath + "/"); err != nil {
				return fmt.Errorf("error creating zip entry for directory %s: %w", zipPath, err)
			}
			entries++
			return nil
		}

		writer, err := zipWriter.Create(zipPath)
		if err != nil {
			return fmt.Errorf("error creating zip entry for file %s: %w", zipPath, err)
		}

		file, err := fs.Fs.Open(p)
		if err != nil {
			return fmt.Errorf("error opening file %s: %w", p, err)
		}
		defer file.Close()

		if _, err := io.Copy(writer, file); err != nil {
			return fmt.Errorf("error writing file %s to zip: %w", p, err)
		}
		entries++
		return nil
	})
	if err != nil {
		return fmt.Errorf("error walking file system: %w", err)
	}

	if entries == 0 {
		return fmt.Errorf("no files to zip")
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("error closing zip writer: %w", err)
	}
	return nil
}

// ExportZip writes an empty skeleton of root to w as a zip archive.
func ExportZip(w io.Writer, root *tree.Node) error {
	fs := NewMemoryFileSystem()
	if err := fs.Materialize(root); err != nil {
		return err
	}
	return fs.WriteZip(w, root.Name)
}
