// Package fsx is the filesystem abstraction the DiskManager consumes,
// kept as a thin seam over os so tests can stay byte-exact against real
// files while leaving DiskManager itself free of direct os calls.
package fsx

import (
	"os"
	"path/filepath"
)

// Filesystem is the minimal surface DiskManager needs.
type Filesystem interface {
	OpenReadWrite(path string) (File, error)
	Exists(path string) bool
	EnsureDir(path string) error
	Remove(path string) error
}

// File is a seekable, truncatable byte store — the subset of *os.File the
// disk manager exercises.
type File interface {
	ReadAt(buf []byte, off int64) (int, error)
	WriteAt(buf []byte, off int64) (int, error)
	Truncate(size int64) error
	Length() (int64, error)
	Close() error
}

// OS is the real, os-backed Filesystem. It is the only implementation
// shipped: the testable properties are byte-exact against real files, so an
// in-memory double would not exercise what the tests check.
type OS struct{}

func (OS) OpenReadWrite(path string) (File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return osFile{f}, nil
}

func (OS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OS) EnsureDir(path string) error {
	return os.MkdirAll(filepath.Clean(path), 0o755)
}

func (OS) Remove(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

type osFile struct{ f *os.File }

func (o osFile) ReadAt(buf []byte, off int64) (int, error)  { return o.f.ReadAt(buf, off) }
func (o osFile) WriteAt(buf []byte, off int64) (int, error) { return o.f.WriteAt(buf, off) }
func (o osFile) Truncate(size int64) error                  { return o.f.Truncate(size) }
func (o osFile) Close() error                               { return o.f.Close() }

func (o osFile) Length() (int64, error) {
	fi, err := o.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
