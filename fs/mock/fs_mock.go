package mock

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	iofs "io/fs"

	"golang.org/x/exp/slices"
)

type MockFile struct {
	Data    []byte
	ModTime time.Time
}

type mockDirEntry struct {
	info *mockFileInfo
}

func (m *mockDirEntry) Name() string                 { return m.info.name }
func (m *mockDirEntry) IsDir() bool                  { return m.info.IsDir() }
func (m *mockDirEntry) Type() iofs.FileMode          { return m.info.mode.Type() }
func (m *mockDirEntry) Info() (iofs.FileInfo, error) { return m.info, nil }

type mockFileInfo struct {
	name    string
	mode    os.FileMode
	size    int64
	modTime time.Time
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() os.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.mode.IsDir() }
func (m *mockFileInfo) Sys() interface{}   { return nil }

// MockFileSystem implements the FileSystem interface for testing. Directories
// are implied by the files they contain and can also be created explicitly.
type MockFileSystem struct {
	Files map[string]*MockFile
	Dirs  map[string]bool

	// MkdirCalls records every MkdirAll path in call order.
	MkdirCalls []string
	// Errors injects failures keyed by "op:path", e.g. "mkdir:/out/a".
	Errors map[string]error
}

func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		Files:  make(map[string]*MockFile),
		Dirs:   make(map[string]bool),
		Errors: make(map[string]error),
	}
}

// AddFile creates or replaces a file with the given content and mtime.
func (m *MockFileSystem) AddFile(name string, data []byte, modTime time.Time) {
	m.Files[filepath.Clean(name)] = &MockFile{Data: data, ModTime: modTime}
}

// Touch sets the mtime of an existing file, creating an empty one if needed.
func (m *MockFileSystem) Touch(name string, modTime time.Time) {
	name = filepath.Clean(name)
	if f, ok := m.Files[name]; ok {
		f.ModTime = modTime
		return
	}
	m.AddFile(name, nil, modTime)
}

func (m *MockFileSystem) injected(op, name string) error {
	return m.Errors[op+":"+filepath.Clean(name)]
}

func (m *MockFileSystem) ReadFile(filename string) ([]byte, error) {
	if err := m.injected("read", filename); err != nil {
		return nil, err
	}
	if file, ok := m.Files[filepath.Clean(filename)]; ok {
		return file.Data, nil
	}
	return nil, &os.PathError{Op: "open", Path: filename, Err: os.ErrNotExist}
}

func (m *MockFileSystem) MkdirAll(path string, perm os.FileMode) error {
	path = filepath.Clean(path)
	m.MkdirCalls = append(m.MkdirCalls, path)
	if err := m.injected("mkdir", path); err != nil {
		return err
	}
	if _, ok := m.Files[path]; ok {
		return &os.PathError{Op: "mkdir", Path: path, Err: os.ErrExist}
	}
	for p := path; ; p = filepath.Dir(p) {
		m.Dirs[p] = true
		if parent := filepath.Dir(p); parent == p {
			break
		}
	}
	return nil
}

func (m *MockFileSystem) isDir(name string) bool {
	if m.Dirs[name] {
		return true
	}
	prefix := name + string(filepath.Separator)
	if name == string(filepath.Separator) {
		prefix = name
	}
	for p := range m.Files {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	for p := range m.Dirs {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func (m *MockFileSystem) Stat(name string) (os.FileInfo, error) {
	name = filepath.Clean(name)
	if err := m.injected("stat", name); err != nil {
		return nil, err
	}
	if file, ok := m.Files[name]; ok {
		return &mockFileInfo{
			name:    filepath.Base(name),
			mode:    0644,
			size:    int64(len(file.Data)),
			modTime: file.ModTime,
		}, nil
	}
	if m.isDir(name) {
		return &mockFileInfo{name: filepath.Base(name), mode: os.ModeDir | 0755}, nil
	}
	return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
}

// WalkDir visits root and everything below it in lexical order, honouring
// fs.SkipDir and fs.SkipAll the way filepath.WalkDir does.
func (m *MockFileSystem) WalkDir(root string, fn iofs.WalkDirFunc) error {
	root = filepath.Clean(root)
	if !m.isDir(root) {
		if _, ok := m.Files[root]; !ok {
			return fn(root, nil, &os.PathError{Op: "lstat", Path: root, Err: os.ErrNotExist})
		}
	}

	nodes := map[string]bool{root: true}
	under := func(p string) bool {
		return p == root || strings.HasPrefix(p, root+string(filepath.Separator)) || root == string(filepath.Separator)
	}
	addParents := func(p string) {
		for d := filepath.Dir(p); under(d) && !nodes[d]; d = filepath.Dir(d) {
			nodes[d] = true
		}
	}
	for p := range m.Files {
		if under(p) {
			nodes[p] = true
			addParents(p)
		}
	}
	for p := range m.Dirs {
		if under(p) {
			nodes[p] = true
			addParents(p)
		}
	}

	paths := make([]string, 0, len(nodes))
	for p := range nodes {
		paths = append(paths, p)
	}
	slices.SortFunc(paths, comparePaths)

	var skipped []string
	for _, p := range paths {
		if isSkipped(p, skipped) {
			continue
		}
		info, err := m.Stat(p)
		if err != nil {
			if err := fn(p, nil, err); err != nil && err != iofs.SkipDir {
				if err == iofs.SkipAll {
					return nil
				}
				return err
			}
			continue
		}
		entry := &mockDirEntry{info: info.(*mockFileInfo)}
		if err := fn(p, entry, nil); err != nil {
			switch {
			case err == iofs.SkipAll:
				return nil
			case err == iofs.SkipDir && entry.IsDir():
				skipped = append(skipped, p)
			case err == iofs.SkipDir:
				skipped = append(skipped, filepath.Dir(p))
			default:
				return err
			}
		}
	}
	return nil
}

// comparePaths orders paths the way a depth-first walk over sorted
// directory listings visits them: a directory's children come before its
// later siblings, so "a/x.tex" precedes "a.tex".
func comparePaths(a, b string) int {
	as := strings.Split(a, string(filepath.Separator))
	bs := strings.Split(b, string(filepath.Separator))
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := strings.Compare(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return len(as) - len(bs)
}

func isSkipped(p string, skipped []string) bool {
	for _, s := range skipped {
		if strings.HasPrefix(p, s+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
