// Package storage provides sandboxed file operations for lodemill.
// All cache writes are restricted to the configured cache directory to
// prevent path traversal escaping it.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Sandbox provides sandboxed file operations within a base directory of a
// filesystem. It prevents path traversal by ensuring all paths resolve
// within the sandbox.
type Sandbox struct {
	fs      afero.Fs
	baseDir string
}

// NewSandbox creates a new Sandbox rooted at baseDir on the given
// filesystem. The base directory is created if it doesn't exist.
func NewSandbox(fs afero.Fs, baseDir string) (*Sandbox, error) {
	cleaned := filepath.Clean(baseDir)
	if err := fs.MkdirAll(cleaned, 0o750); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}
	return &Sandbox{fs: fs, baseDir: cleaned}, nil
}

// BaseDir returns the sandbox base directory.
func (s *Sandbox) BaseDir() string {
	return s.baseDir
}

// ResolvePath resolves a relative path within the sandbox.
// Returns an error if the path would escape the sandbox or is absolute.
func (s *Sandbox) ResolvePath(relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		return "", fmt.Errorf("path escapes sandbox: %s (absolute paths not allowed)", relativePath)
	}

	full := filepath.Join(s.baseDir, filepath.Clean(relativePath))
	if full != s.baseDir && !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes sandbox: %s", relativePath)
	}
	return full, nil
}

// Exists checks if a path exists within the sandbox.
func (s *Sandbox) Exists(relativePath string) (bool, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return false, err
	}
	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return false, fmt.Errorf("checking path: %w", err)
	}
	return exists, nil
}

// MkdirAll creates a directory and all parents within the sandbox.
func (s *Sandbox) MkdirAll(relativePath string) error {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return nil
}

// ReadFile reads a file from within the sandbox.
func (s *Sandbox) ReadFile(relativePath string) ([]byte, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Open opens a file within the sandbox for reading.
func (s *Sandbox) Open(relativePath string) (afero.File, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return f, nil
}

// Remove removes a file or empty directory within the sandbox.
func (s *Sandbox) Remove(relativePath string) error {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(path); err != nil {
		return fmt.Errorf("removing path: %w", err)
	}
	return nil
}

// Stat returns file info for a path within the sandbox.
func (s *Sandbox) Stat(relativePath string) (os.FileInfo, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}
	info, err := s.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("getting file info: %w", err)
	}
	return info, nil
}

// Size returns the size of a file within the sandbox.
func (s *Sandbox) Size(relativePath string) (int64, error) {
	info, err := s.Stat(relativePath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Walk walks the file tree within the sandbox, calling fn for each file or
// directory with a sandbox-relative path.
func (s *Sandbox) Walk(relativePath string, fn filepath.WalkFunc) error {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}
	return afero.Walk(s.fs, path, func(walkPath string, info os.FileInfo, err error) error {
		relPath, relErr := filepath.Rel(s.baseDir, walkPath)
		if relErr != nil {
			relPath = walkPath
		}
		return fn(relPath, info, err)
	})
}

// AtomicWrite writes data to a file atomically within the sandbox: a
// temporary file in the target directory, then a rename.
func (s *Sandbox) AtomicWrite(relativePath string, data []byte) error {
	targetPath, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}

	dir := filepath.Dir(targetPath)
	if err := s.fs.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	tempPath := filepath.Join(dir, tempName(relativePath))
	if err := afero.WriteFile(s.fs, tempPath, data, 0o640); err != nil {
		return fmt.Errorf("writing temporary file: %w", err)
	}

	if err := s.fs.Rename(tempPath, targetPath); err != nil {
		s.fs.Remove(tempPath)
		return fmt.Errorf("renaming to target: %w", err)
	}
	return nil
}

// AtomicWriteReader writes data from a reader to a file atomically within
// the sandbox.
func (s *Sandbox) AtomicWriteReader(relativePath string, r io.Reader) error {
	targetPath, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}

	dir := filepath.Dir(targetPath)
	if err := s.fs.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	tempPath := filepath.Join(dir, tempName(relativePath))
	tempFile, err := s.fs.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}

	_, copyErr := io.Copy(tempFile, r)
	closeErr := tempFile.Close()

	if copyErr != nil {
		s.fs.Remove(tempPath)
		return fmt.Errorf("writing to temporary file: %w", copyErr)
	}
	if closeErr != nil {
		s.fs.Remove(tempPath)
		return fmt.Errorf("closing temporary file: %w", closeErr)
	}

	if err := s.fs.Rename(tempPath, targetPath); err != nil {
		s.fs.Remove(tempPath)
		return fmt.Errorf("renaming to target: %w", err)
	}
	return nil
}

// tempName builds a unique temporary file name alongside the target.
func tempName(relativePath string) string {
	return fmt.Sprintf(".%s.%s.tmp", filepath.Base(relativePath), randomHex(8))
}

// randomHex generates a random hex string of the specified length.
func randomHex(n int) string {
	buf := make([]byte, n/2+1)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", os.Getpid())
	}
	return hex.EncodeToString(buf)[:n]
}
