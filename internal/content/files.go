package content

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gitscribe/internal/config"
	"gitscribe/pkg/logging"
)

// ErrNotFound is returned when a requested file does not exist.
var ErrNotFound = errors.New("file not found")

// Entry is one node in a workspace file listing.
type Entry struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	IsDir    bool    `json:"is_dir"`
	Size     int64   `json:"size,omitempty"`
	Children []Entry `json:"children,omitempty"`
}

// FileService exposes workspace file operations under a validated root.
// Every path argument is client-supplied and goes through ValidatePath;
// the service holds no per-session state, the workspace path comes with
// each call.
type FileService struct {
	cfg config.ContentConfig
}

// NewFileService builds a file service with the given content rules.
func NewFileService(cfg config.ContentConfig) *FileService {
	return &FileService{cfg: cfg}
}

func (s *FileService) hidden(name string) bool {
	for _, h := range s.cfg.HiddenFolders {
		if name == h {
			return true
		}
	}
	return false
}

func (s *FileService) allowedExtension(name string) bool {
	if len(s.cfg.AllowedExtensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range s.cfg.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// List walks the workspace tree, skipping hidden folders and files whose
// extension is not exposed. Directories sort before files, both
// alphabetically.
func (s *FileService) List(workspacePath string) ([]Entry, error) {
	return s.listDir(workspacePath, "")
}

func (s *FileService) listDir(root, rel string) ([]Entry, error) {
	entries, err := os.ReadDir(filepath.Join(root, rel))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", rel, err)
	}

	var out []Entry
	for _, e := range entries {
		childRel := filepath.ToSlash(filepath.Join(rel, e.Name()))
		if e.IsDir() {
			if s.hidden(e.Name()) {
				continue
			}
			children, err := s.listDir(root, childRel)
			if err != nil {
				return nil, err
			}
			out = append(out, Entry{Name: e.Name(), Path: childRel, IsDir: true, Children: children})
			continue
		}
		if !s.allowedExtension(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{Name: e.Name(), Path: childRel, Size: info.Size()})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDir != out[j].IsDir {
			return out[i].IsDir
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Read returns the content of one workspace file.
func (s *FileService) Read(workspacePath, relPath string) ([]byte, error) {
	abs, err := ValidatePath(relPath, workspacePath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", relPath, err)
	}
	return data, nil
}

// Write stores content at relPath, creating parent directories as needed.
func (s *FileService) Write(workspacePath, relPath string, data []byte) error {
	abs, err := ValidatePath(relPath, workspacePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", relPath, err)
	}
	logging.Debug("Content", "Wrote %d bytes to %s", len(data), relPath)
	return nil
}

// Delete removes a file or an entire directory subtree.
func (s *FileService) Delete(workspacePath, relPath string) error {
	abs, err := ValidatePath(relPath, workspacePath)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting %s: %w", relPath, err)
	}
	if info.IsDir() {
		return os.RemoveAll(abs)
	}
	return os.Remove(abs)
}

// Mkdir creates a folder inside the workspace.
func (s *FileService) Mkdir(workspacePath, relPath string) error {
	abs, err := ValidatePath(relPath, workspacePath)
	if err != nil {
		return err
	}
	return os.MkdirAll(abs, 0o755)
}

// Rename moves a file within the workspace.
func (s *FileService) Rename(workspacePath, fromRel, toRel string) error {
	from, err := ValidatePath(fromRel, workspacePath)
	if err != nil {
		return err
	}
	to, err := ValidatePath(toRel, workspacePath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(from); errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	return os.Rename(from, to)
}
