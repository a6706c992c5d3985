package chunk

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"
)

// FS exposes the remote database as an fs.FS holding exactly one read-only
// file. The SQLite VFS opens the database through this interface, so every
// page read the engine performs flows through the chunk store.
type FS struct {
	reader  *Reader
	name    string
	modTime time.Time
}

// NewFS wraps reader as a filesystem serving the file under name.
func NewFS(reader *Reader, name string) *FS {
	return &FS{reader: reader, name: name, modTime: time.Now()}
}

// Name returns the served file name.
func (f *FS) Name() string { return f.name }

// Open implements fs.FS.
func (f *FS) Open(name string) (fs.File, error) {
	cleaned := strings.TrimPrefix(path.Clean("/"+name), "/")
	if cleaned != f.name {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return &file{fs: f}, nil
}

type file struct {
	fs  *FS
	off int64
}

func (f *file) Read(p []byte) (int, error) {
	n, err := f.fs.reader.ReadAt(p, f.off)
	f.off += int64(n)
	return n, err
}

func (f *file) ReadAt(p []byte, off int64) (int, error) {
	return f.fs.reader.ReadAt(p, off)
}

func (f *file) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = f.off + offset
	case io.SeekEnd:
		next = f.fs.reader.Size() + offset
	default:
		return 0, fmt.Errorf("invalid seek whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("negative seek position")
	}
	f.off = next
	return next, nil
}

func (f *file) Stat() (fs.FileInfo, error) {
	return fileInfo{name: f.fs.name, size: f.fs.reader.Size(), modTime: f.fs.modTime}, nil
}

func (f *file) Close() error { return nil }

type fileInfo struct {
	name    string
	size    int64
	modTime time.Time
}

func (fi fileInfo) Name() string       { return fi.name }
func (fi fileInfo) Size() int64        { return fi.size }
func (fi fileInfo) Mode() fs.FileMode  { return 0o444 }
func (fi fileInfo) ModTime() time.Time { return fi.modTime }
func (fi fileInfo) IsDir() bool        { return false }
func (fi fileInfo) Sys() any           { return nil }
