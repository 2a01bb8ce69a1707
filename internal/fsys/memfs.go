package fsys

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Mem implements FileSystem in memory for tests. Safe for concurrent use
// so executor tests can run the real worker pool against it.
type Mem struct {
	mu    sync.Mutex
	files map[string]*memFile
	dirs  map[string]bool

	// FailCopy lists source paths whose copy should fail, keyed to the
	// error to return. Lets tests inject per-operation I/O failures.
	FailCopy map[string]error

	// FailDelete lists paths whose deletion should fail.
	FailDelete map[string]error
}

type memFile struct {
	size    int64
	modTime time.Time
	content []byte
}

func NewMem() *Mem {
	return &Mem{
		files:      make(map[string]*memFile),
		dirs:       make(map[string]bool),
		FailCopy:   make(map[string]error),
		FailDelete: make(map[string]error),
	}
}

// AddFile seeds a file, creating parent directories implicitly.
func (m *Mem) AddFile(path string, size int64, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	m.files[path] = &memFile{size: size, modTime: modTime}
	m.addDirsLocked(filepath.Dir(path))
}

// AddFileContent seeds a file with explicit bytes.
func (m *Mem) AddFileContent(path string, content []byte, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	m.files[path] = &memFile{size: int64(len(content)), modTime: modTime, content: content}
	m.addDirsLocked(filepath.Dir(path))
}

func (m *Mem) addDirsLocked(dir string) {
	for dir != "" && dir != "." && dir != "/" && dir != string(filepath.Separator) {
		m.dirs[dir] = true
		dir = filepath.Dir(dir)
	}
	m.dirs["/"] = true
}

func (m *Mem) DirectoryExists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirs[filepath.Clean(path)]
}

func (m *Mem) FileExists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[filepath.Clean(path)]
	return ok
}

func (m *Mem) CreateDirectory(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addDirsLocked(filepath.Clean(path))
	return nil
}

func (m *Mem) CopyFile(ctx context.Context, src, dst string, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	src, dst = filepath.Clean(src), filepath.Clean(dst)
	if err, ok := m.FailCopy[src]; ok {
		return err
	}
	f, ok := m.files[src]
	if !ok {
		return fmt.Errorf("source not found: %s: %w", src, os.ErrNotExist)
	}
	if _, exists := m.files[dst]; exists && !overwrite {
		return fmt.Errorf("destination exists: %s: %w", dst, os.ErrExist)
	}
	if !m.dirs[filepath.Dir(dst)] {
		return fmt.Errorf("directory not found: %s: %w", filepath.Dir(dst), os.ErrNotExist)
	}
	cp := *f
	m.files[dst] = &cp
	return nil
}

func (m *Mem) MoveFile(ctx context.Context, src, dst string) error {
	if err := m.CopyFile(ctx, src, dst, true); err != nil {
		return err
	}
	return m.DeleteFile(src)
}

func (m *Mem) DeleteFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err, ok := m.FailDelete[path]; ok {
		return err
	}
	if _, ok := m.files[path]; !ok {
		return fmt.Errorf("file not found: %s: %w", path, os.ErrNotExist)
	}
	delete(m.files, path)
	return nil
}

func (m *Mem) RemoveDirectoryIfEmpty(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if !m.dirs[path] {
		return false, nil
	}
	prefix := path + string(filepath.Separator)
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			return false, nil
		}
	}
	for d := range m.dirs {
		if strings.HasPrefix(d, prefix) {
			return false, nil
		}
	}
	delete(m.dirs, path)
	return true, nil
}

func (m *Mem) EnumerateFiles(ctx context.Context, root string) ([]FileInfo, []error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	root = filepath.Clean(root)
	prefix := root + string(filepath.Separator)
	var files []FileInfo
	for p, f := range m.files {
		if p == root || strings.HasPrefix(p, prefix) {
			files = append(files, FileInfo{Path: p, Size: f.size, ModTime: f.modTime})
		}
	}
	// Deterministic ordering for tests.
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (m *Mem) GetFileInfo(path string) (FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	f, ok := m.files[path]
	if !ok {
		return FileInfo{}, fmt.Errorf("file not found: %s: %w", path, os.ErrNotExist)
	}
	return FileInfo{Path: path, Size: f.size, ModTime: f.modTime}, nil
}

// Paths returns every file path currently present, sorted. Test helper.
func (m *Mem) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
