package logging

import (
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// FileWriter appends to a file under an exclusive flock per write.
type FileWriter struct {
	path    string
	mu      sync.Mutex
	file    *os.File
	dropped atomic.Int64
}

// NewFileWriter returns a writer for path. The file is opened on first use.
func NewFileWriter(path string) *FileWriter {
	return &FileWriter{path: path}
}

// Write implements io.Writer. It always reports success; failed writes are
// counted in Dropped.
func (w *FileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			w.dropped.Add(1)
			return len(p), nil
		}
		w.file = f
	}

	fd := int(w.file.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		w.dropped.Add(1)
		return len(p), nil
	}
	_, err := w.file.Write(p)
	_ = unix.Flock(fd, unix.LOCK_UN)

	if err != nil {
		w.dropped.Add(1)
		// Reopen next time in case the file was rotated away.
		w.file.Close()
		w.file = nil
	}
	return len(p), nil
}

// Dropped returns the number of writes that did not reach the file.
func (w *FileWriter) Dropped() int64 {
	return w.dropped.Load()
}

// Path returns the log file path.
func (w *FileWriter) Path() string {
	return w.path
}

// Close closes the underlying file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
