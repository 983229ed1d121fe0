package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is the error returned by injected faults without their own Err.
var ErrInjected = errors.New("fs: injected fault")

// BadRange is a byte range of an image that cannot be read or written,
// e.g. a damaged sector of a memory card.
type BadRange struct {
	Off int64
	Len int64
}

func (r BadRange) overlaps(off int64, n int) bool {
	return off < r.Off+r.Len && r.Off < off+int64(n)
}

// Fault describes how files matching a rule misbehave.
type Fault struct {
	FailAfterBytes int64 // writes past this many bytes to the file fail; -1 disables
	FailReads      bool
	FailOnSync     bool
	FailOnClose    bool
	Bad            []BadRange
	Err            error // defaults to ErrInjected
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

type faultRule struct {
	substr string
	fault  Fault
}

// FaultyFS wraps a FileSystem and injects failures into the files it opens.
// Rules match by substring of the path; the most recently added match wins.
type FaultyFS struct {
	FS FileSystem

	mu      sync.Mutex
	rules   []faultRule
	limit   int64 // bytes across all files, -1 for none
	written int64
}

// NewFaultyFS wraps fsys, or Default if nil.
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{FS: fsys, limit: -1}
}

// GetWritten returns the bytes written through this FS so far.
func (f *FaultyFS) GetWritten() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written
}

// SetLimit makes writes fail once limit bytes have been written through
// this FS, across all files.
func (f *FaultyFS) SetLimit(limit int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = limit
}

// AddRule applies fault to files whose path contains substr.
func (f *FaultyFS) AddRule(substr string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, faultRule{substr: substr, fault: fault})
}

func (f *FaultyFS) faultFor(name string) Fault {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.rules) - 1; i >= 0; i-- {
		if strings.Contains(name, f.rules[i].substr) {
			return f.rules[i].fault
		}
	}
	return Fault{FailAfterBytes: -1}
}

// charge books n written bytes against the global limit.
func (f *FaultyFS) charge(n int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.limit >= 0 && f.written+int64(n) > f.limit {
		return false
	}
	f.written += int64(n)
	return true
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fs: f, fault: f.faultFor(name)}, nil
}

func (f *FaultyFS) Remove(name string) error              { return f.FS.Remove(name) }
func (f *FaultyFS) Rename(oldpath, newpath string) error  { return f.FS.Rename(oldpath, newpath) }
func (f *FaultyFS) Stat(name string) (os.FileInfo, error) { return f.FS.Stat(name) }
func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}
func (f *FaultyFS) ReadDir(name string) ([]os.DirEntry, error) { return f.FS.ReadDir(name) }

type faultyFile struct {
	File
	fs    *FaultyFS
	fault Fault

	mu      sync.Mutex
	written int64
}

func (ff *faultyFile) bad(off int64, n int) bool {
	for _, r := range ff.fault.Bad {
		if r.overlaps(off, n) {
			return true
		}
	}
	return false
}

func (ff *faultyFile) ReadAt(p []byte, off int64) (int, error) {
	if ff.fault.FailReads || ff.bad(off, len(p)) {
		return 0, ff.fault.err()
	}
	return ff.File.ReadAt(p, off)
}

func (ff *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	if ff.bad(off, len(p)) {
		return 0, ff.fault.err()
	}

	ff.mu.Lock()
	over := ff.fault.FailAfterBytes >= 0 && ff.written+int64(len(p)) > ff.fault.FailAfterBytes
	ff.mu.Unlock()
	if over || !ff.fs.charge(len(p)) {
		return 0, ff.fault.err()
	}

	n, err := ff.File.WriteAt(p, off)
	ff.mu.Lock()
	ff.written += int64(n)
	ff.mu.Unlock()
	return n, err
}

func (ff *faultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return ff.fault.err()
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Close() error {
	if ff.fault.FailOnClose {
		_ = ff.File.Close()
		return ff.fault.err()
	}
	return ff.File.Close()
}
