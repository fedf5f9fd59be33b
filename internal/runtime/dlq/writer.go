// Package dlq implements the append-only dead-letter log. Records are JSONL,
// one terminal failure per line, written by a single synchronized writer and
// fsynced so a crash never leaves a partial record visible to readers.
package dlq

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/drblury/packflow/internal/runtime/envelope"
	"github.com/drblury/packflow/internal/runtime/jsoncodec"
)

// Writer appends records to a JSONL dead-letter log.
type Writer struct {
	mu   sync.Mutex
	path string
	file *os.File
	now  func() time.Time
}

// NewWriter opens (creating if needed) the dead-letter log at path.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dlq log: %w", err)
	}
	return &Writer{path: path, file: file, now: time.Now}, nil
}

// Append writes one record. The record's TS is stamped here so every line
// carries the write time, not the failure-detection time.
func (w *Writer) Append(record envelope.DLQRecordV1) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("dlq log %s is closed", w.path)
	}

	record.TS = w.now().UTC().Format(time.RFC3339)
	line, err := jsoncodec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode dlq record: %w", err)
	}
	line = append(line, '\n')

	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("append dlq record: %w", err)
	}
	return w.file.Sync()
}

// Path returns the log file location.
func (w *Writer) Path() string {
	return w.path
}

// Close syncs and closes the log. Further appends fail.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	w.file = nil
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

// ReadAll decodes every record in the log at path. Missing files yield an
// empty slice; the status API uses this for read-only inspection.
func ReadAll(path string) ([]envelope.DLQRecordV1, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var records []envelope.DLQRecordV1
	start := 0
	for i := 0; i <= len(data); i++ {
		if i != len(data) && data[i] != '\n' {
			continue
		}
		line := data[start:i]
		start = i + 1
		if len(line) == 0 {
			continue
		}
		var record envelope.DLQRecordV1
		if err := jsoncodec.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("decode dlq record: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}
