package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/brimdata/docpipe/dperr"
)

type FileSystem struct {
	perm   os.FileMode
	mu     sync.Mutex
	exists map[string]struct{}
}

var _ Engine = (*FileSystem)(nil)

func NewFileSystem() *FileSystem {
	return &FileSystem{
		perm:   0666,
		exists: make(map[string]struct{}),
	}
}

func (f *FileSystem) Get(_ context.Context, u *URI) (io.ReadCloser, error) {
	r, err := os.Open(u.Filepath())
	if err != nil {
		return nil, wrapfileError(u, err)
	}
	return r, nil
}

// Put writes to a temporary file that is renamed over the target on Close
// so readers never see a partial file.
func (f *FileSystem) Put(_ context.Context, u *URI) (io.WriteCloser, error) {
	path := u.Filepath()
	if err := f.checkPath(path); err != nil {
		return nil, wrapfileError(u, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, wrapfileError(u, err)
	}
	return &atomicFile{File: tmp, path: path, perm: f.perm}, nil
}

func (f *FileSystem) Delete(_ context.Context, u *URI) error {
	return wrapfileError(u, os.Remove(u.Filepath()))
}

// Exists reports whether u names a regular file.  Directories, like S3
// prefixes, are not objects and are seen only through List.
func (f *FileSystem) Exists(_ context.Context, u *URI) (bool, error) {
	info, err := os.Stat(u.Filepath())
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, wrapfileError(u, err)
	}
	return !info.IsDir(), nil
}

func (f *FileSystem) List(_ context.Context, u *URI) ([]Info, error) {
	entries, err := os.ReadDir(u.Filepath())
	if err != nil {
		return nil, wrapfileError(u, err)
	}
	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, Info{
			Name: e.Name(),
			Size: info.Size(),
		})
	}
	return infos, nil
}

func (f *FileSystem) checkPath(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.exists[dir]; ok {
		return nil
	}
	err := os.MkdirAll(dir, 0755)
	if os.IsExist(err) {
		err = nil
	}
	if err == nil {
		f.exists[dir] = struct{}{}
	}
	return err
}

func wrapfileError(uri *URI, err error) error {
	if os.IsNotExist(err) {
		return dperr.E(dperr.NamespaceError, dperr.NamespaceNotFound, "%s: file does not exist", uri)
	}
	return err
}

type atomicFile struct {
	*os.File
	path string
	perm os.FileMode
}

func (a *atomicFile) Close() error {
	if err := a.File.Close(); err != nil {
		os.Remove(a.File.Name())
		return err
	}
	if err := os.Chmod(a.File.Name(), a.perm); err != nil {
		os.Remove(a.File.Name())
		return err
	}
	return os.Rename(a.File.Name(), a.path)
}
