package filestore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"live-quiz-service/internal/domain"
)

// maxLineSize bounds a single record. Longer lines are refused on write and skipped on read.
const maxLineSize = 4 << 20

// Log is a newline-delimited JSON file holding one record per line.
// A single Log serialises its own writers; readers see whole lines only.
type Log[T any] struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

func NewLog[T any](path string, logger *slog.Logger) *Log[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log[T]{path: path, logger: logger}
}

func (l *Log[T]) Path() string {
	return l.path
}

// Append writes records at the end of the file in one write and syncs it.
func (l *Log[T]) Append(records ...T) error {
	if len(records) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := encode(records)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", l.path, err)
	}
	defer f.Close()

	// A torn tail from an earlier crash must not swallow the next record.
	torn, err := endsMidLine(f)
	if err != nil {
		return fmt.Errorf("checking %s: %w", l.path, err)
	}
	if torn {
		data = append([]byte{'\n'}, data...)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("appending to %s: %w", l.path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", l.path, err)
	}
	return f.Close()
}

// ReadAll parses every line. Lines that do not decode are logged and skipped.
func (l *Log[T]) ReadAll() ([]T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readAllLocked()
}

// OverwriteAll replaces the whole file through a temp file and rename.
func (l *Log[T]) OverwriteAll(records []T) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.overwriteAllLocked(records)
}

// Rewrite reads all records, applies fn and writes the result back while holding the lock.
func (l *Log[T]) Rewrite(fn func([]T) ([]T, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.readAllLocked()
	if err != nil {
		return err
	}
	updated, err := fn(records)
	if err != nil {
		return err
	}
	return l.overwriteAllLocked(updated)
}

func (l *Log[T]) readAllLocked() ([]T, error) {
	records := make([]T, 0)
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", l.path, err)
	}
	defer f.Close()

	reader := bufio.NewReaderSize(f, 64*1024)
	lineNo := 0
	for {
		raw, oversized, err := readLine(reader)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", l.path, err)
		}
		lineNo++
		if oversized {
			l.logger.Warn("skipping oversized record", "file", l.path, "line", lineNo, "limit", maxLineSize)
			continue
		}
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}
		var record T
		if err := json.Unmarshal(line, &record); err != nil {
			l.logger.Warn("skipping unparsable record", "file", l.path, "line", lineNo, "error", err)
			continue
		}
		records = append(records, record)
	}
}

// readLine returns the next line, newline included. A line longer than
// maxLineSize is drained without being buffered and reported as oversized.
// io.EOF is returned only once nothing is left to read.
func readLine(r *bufio.Reader) ([]byte, bool, error) {
	var line []byte
	oversized := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > maxLineSize+1 {
				oversized = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch {
		case err == nil:
			return line, oversized, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(line) == 0 && !oversized {
				return nil, false, io.EOF
			}
			return line, oversized, nil
		default:
			return nil, false, err
		}
	}
}

func (l *Log[T]) overwriteAllLocked(records []T) error {
	data, err := encode(records)
	if err != nil {
		return err
	}
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("syncing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		cleanup()
		return fmt.Errorf("replacing %s: %w", l.path, err)
	}
	return nil
}

func encode[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("encoding record: %w", err)
		}
		if len(line) > maxLineSize {
			return nil, fmt.Errorf("%w: record of %d bytes exceeds %d", domain.ErrValidation, len(line), maxLineSize)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func endsMidLine(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return last[0] != '\n', nil
}
