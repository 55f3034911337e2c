package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// RotatingWriter is a size-based rotating log file. Backups are numbered
// file.1 (newest) through file.N; anything beyond maxBackups is removed.
type RotatingWriter struct {
	filename    string
	maxSize     int64 // bytes
	maxBackups  int
	compress    bool
	mu          sync.Mutex
	currentFile *os.File
	currentSize int64
}

// NewRotatingWriter creates a new rotating writer
func NewRotatingWriter(filename string, maxSizeBytes int64, maxBackups int, compress bool) (*RotatingWriter, error) {
	// Ensure directory exists
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	return &RotatingWriter{
		filename:    filename,
		maxSize:     maxSizeBytes,
		maxBackups:  maxBackups,
		compress:    compress,
		currentFile: file,
		currentSize: info.Size(),
	}, nil
}

// Write writes data to the log file, rotating first if it would exceed maxSize
func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentSize > 0 && w.currentSize+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err = w.currentFile.Write(p)
	w.currentSize += int64(n)
	return n, err
}

// Close closes the current log file
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile != nil {
		err := w.currentFile.Close()
		w.currentFile = nil
		return err
	}
	return nil
}

// backupName returns the path of backup number n
func (w *RotatingWriter) backupName(n int) string {
	name := fmt.Sprintf("%s.%d", w.filename, n)
	if w.compress {
		name += ".gz"
	}
	return name
}

// rotate shifts backups up by one and starts a fresh file
func (w *RotatingWriter) rotate() error {
	if err := w.currentFile.Close(); err != nil {
		return err
	}

	if w.maxBackups > 0 {
		os.Remove(w.backupName(w.maxBackups))
		for i := w.maxBackups - 1; i >= 1; i-- {
			src := w.backupName(i)
			if _, err := os.Stat(src); err == nil {
				if err := os.Rename(src, w.backupName(i+1)); err != nil {
					return err
				}
			}
		}

		first := fmt.Sprintf("%s.1", w.filename)
		if err := os.Rename(w.filename, first); err != nil {
			return err
		}
		if w.compress {
			if err := compressFile(first); err != nil {
				return err
			}
		}
	} else if err := os.Remove(w.filename); err != nil && !os.IsNotExist(err) {
		return err
	}

	file, err := os.OpenFile(w.filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	w.currentFile = file
	w.currentSize = 0
	return nil
}

// compressFile gzips filename into filename.gz and removes the original
func compressFile(filename string) error {
	src, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(filename + ".gz")
	if err != nil {
		return err
	}
	defer dst.Close()

	gzw := gzip.NewWriter(dst)
	if _, err := io.Copy(gzw, src); err != nil {
		gzw.Close()
		return err
	}
	if err := gzw.Close(); err != nil {
		return err
	}

	return os.Remove(filename)
}
