package slotfs

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// AppendJSONL marshals v and appends it as one line to path, creating
// the file (and its parent directory) if needed. Writes are flushed
// before returning so line boundaries are durable for readers that
// iterate by offset.
func AppendJSONL(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	return f.Sync()
}

// Touch creates path (and its parent directory) if it does not already exist.
func Touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// CountLines returns the number of newline-terminated lines in path, or
// (0, false) if the file does not exist.
func CountLines(path string) (int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	count := 0
	reader := bufio.NewReader(f)
	for {
		_, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return count, true
		}
		count++
	}
	return count, true
}

// LineReader iterates a JSONL file from a starting offset (line index),
// matching the dispatcher's "stream from last processed line" contract.
type LineReader struct {
	file   *os.File
	reader *bufio.Reader
	index  int
}

// OpenLineReader opens path for line-indexed reading, skipping the
// first `offset` lines.
func OpenLineReader(path string, offset int) (*LineReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	lr := &LineReader{file: f, reader: bufio.NewReader(f)}
	for lr.index < offset {
		if _, err := lr.reader.ReadString('\n'); err != nil {
			break
		}
		lr.index++
	}
	return lr, nil
}

// Next returns the next line (without its trailing newline) and its
// zero-based index, or ok=false at EOF.
func (lr *LineReader) Next() (line string, index int, ok bool) {
	raw, err := lr.reader.ReadString('\n')
	if raw == "" && err != nil {
		return "", 0, false
	}
	idx := lr.index
	lr.index++
	trimmed := raw
	if len(trimmed) > 0 && trimmed[len(trimmed)-1] == '\n' {
		trimmed = trimmed[:len(trimmed)-1]
	}
	if err != nil && err != io.EOF {
		return trimmed, idx, true
	}
	if err == io.EOF && trimmed == "" {
		return "", 0, false
	}
	return trimmed, idx, true
}

// Close releases the underlying file handle.
func (lr *LineReader) Close() error {
	return lr.file.Close()
}
