package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const backupTimeFormat = "20060102T150405.000"

// RotatingFile is an io.Writer over a log file that is renamed aside once it grows
// past maxSize. Backups beyond maxBackups or older than maxAge are removed.
type RotatingFile struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	size       int64
	maxSize    int64
	maxBackups int
	maxAge     time.Duration
	now        func() time.Time
}

// OpenRotatingFile opens path for appending. A maxSizeMB of zero disables rotation.
func OpenRotatingFile(path string, maxSizeMB, maxBackups, maxAgeDays int) (*RotatingFile, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	f := &RotatingFile{
		path:       path,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		maxAge:     time.Duration(maxAgeDays) * 24 * time.Hour,
		now:        time.Now,
	}
	if err := f.open(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RotatingFile) open() error {
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	f.file = file
	f.size = info.Size()
	return nil
}

// Write appends p, rotating first when p would push the file past its size limit.
func (f *RotatingFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return 0, os.ErrClosed
	}
	if f.maxSize > 0 && f.size > 0 && f.size+int64(len(p)) > f.maxSize {
		if err := f.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := f.file.Write(p)
	f.size += int64(n)
	return n, err
}

// Rotate forces a rotation.
func (f *RotatingFile) Rotate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rotate()
}

func (f *RotatingFile) rotate() error {
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	backup := f.path + "." + f.now().UTC().Format(backupTimeFormat)
	if err := os.Rename(f.path, backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}
	f.prune()
	return f.open()
}

// prune removes surplus and expired backups. Backup names sort by creation time.
func (f *RotatingFile) prune() {
	backups, err := filepath.Glob(f.path + ".*")
	if err != nil {
		return
	}
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))

	for i, path := range backups {
		if f.maxBackups > 0 && i >= f.maxBackups {
			os.Remove(path)
			continue
		}
		if f.maxAge <= 0 {
			continue
		}
		if info, err := os.Stat(path); err == nil && f.now().Sub(info.ModTime()) > f.maxAge {
			os.Remove(path)
		}
	}
}

// Close closes the underlying file.
func (f *RotatingFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
