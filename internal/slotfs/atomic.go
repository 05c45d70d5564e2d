package slotfs

import (
	"encoding/json"
	"fmt"
	"os"
)

// WriteJSON serializes v and writes it to path via write-to-temp-then-
// rename, so readers never observe a partially written document.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// ReadJSON reads and unmarshals path into v. A missing file or
// malformed content is treated as "absent" (ok=false), never an error:
// callers must tolerate ENOENT and partial/corrupt documents per
// spec.md §4.1.
func ReadJSON(path string, v any) (ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false
	}
	return true
}

// ReadOffset reads a decimal text offset file, returning 0 when the
// file is missing or unparsable (spec.md §6 {channel}_queue.offset).
func ReadOffset(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(string(data), "%d", &n); err != nil || n < 0 {
		return 0
	}
	return n
}

// WriteOffset atomically writes a decimal text offset file.
func WriteOffset(path string, value int) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(fmt.Sprintf("%d", value)), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
