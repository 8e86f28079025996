package fs

import (
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrInjected is returned by injected faults that carry no error of their own.
var ErrInjected = errors.New("fs: injected fault")

// Fault describes how files matching a rule fail.
type Fault struct {
	// FailAfterBytes fails writes that would take the file past this many bytes.
	// Zero disables the limit.
	FailAfterBytes int64

	FailOnSync  bool
	FailOnClose bool

	// FailOnRename fails renames onto a matching name, such as publishing a
	// finished blob.
	FailOnRename bool

	Err error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

// FaultyFS wraps a FileSystem and injects faults into files whose name contains
// a rule's pattern. When several rules match, the longest pattern wins.
type FaultyFS struct {
	FS FileSystem

	mu     sync.Mutex
	rules  map[string]Fault
	syncs  int
	faults int
}

// NewFaultyFS wraps fsys, or Default if nil.
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{FS: fsys, rules: make(map[string]Fault)}
}

// AddRule injects fault into files whose name contains pattern.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = fault
}

// ClearRules removes all rules. Files opened earlier keep their fault.
func (f *FaultyFS) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.rules)
}

// Syncs returns the number of successful syncs.
func (f *FaultyFS) Syncs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncs
}

// Faults returns the number of injected failures.
func (f *FaultyFS) Faults() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.faults
}

func (f *FaultyFS) match(name string) (Fault, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var (
		best    Fault
		bestLen = -1
	)
	for pattern, rule := range f.rules {
		if len(pattern) > bestLen && strings.Contains(name, pattern) {
			best, bestLen = rule, len(pattern)
		}
	}
	return best, bestLen >= 0
}

func (f *FaultyFS) inject(fault Fault) error {
	f.mu.Lock()
	f.faults++
	f.mu.Unlock()
	return fault.err()
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	fault, _ := f.match(name)
	return &faultyFile{File: file, fs: f, fault: fault}, nil
}

func (f *FaultyFS) Remove(name string) error {
	return f.FS.Remove(name)
}

func (f *FaultyFS) Rename(oldpath, newpath string) error {
	if fault, ok := f.match(newpath); ok && fault.FailOnRename {
		return f.inject(fault)
	}
	return f.FS.Rename(oldpath, newpath)
}

func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}

func (f *FaultyFS) ReadDir(name string) ([]os.DirEntry, error) {
	return f.FS.ReadDir(name)
}

type faultyFile struct {
	File
	fs    *FaultyFS
	fault Fault

	mu   sync.Mutex
	size int64 // highest offset written
}

func (ff *faultyFile) admit(off int64, n int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	end := off + int64(n)
	if ff.fault.FailAfterBytes > 0 && end > ff.fault.FailAfterBytes {
		return ff.fs.inject(ff.fault)
	}
	ff.size = max(ff.size, end)
	return nil
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	ff.mu.Lock()
	off := ff.size
	ff.mu.Unlock()
	if err := ff.admit(off, len(p)); err != nil {
		return 0, err
	}
	return ff.File.Write(p)
}

func (ff *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	if err := ff.admit(off, len(p)); err != nil {
		return 0, err
	}
	return ff.File.WriteAt(p, off)
}

func (ff *faultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return ff.fs.inject(ff.fault)
	}
	if err := ff.File.Sync(); err != nil {
		return err
	}
	ff.fs.mu.Lock()
	ff.fs.syncs++
	ff.fs.mu.Unlock()
	return nil
}

func (ff *faultyFile) Close() error {
	err := ff.File.Close()
	if ff.fault.FailOnClose {
		return ff.fs.inject(ff.fault)
	}
	return err
}
