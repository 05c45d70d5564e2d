// Package slotid validates slot identifiers and resolves them to
// filesystem paths that are guaranteed to stay inside the slots root.
package slotid

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var pattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ErrInvalid is returned when a slot id fails the character-class check
// or would resolve outside the slots root.
type ErrInvalid struct {
	SlotID string
	Reason string
}

func (e *ErrInvalid) Error() string {
	return fmt.Sprintf("invalid slot_id %q: %s", e.SlotID, e.Reason)
}

// Validate checks that id matches the allowed character class. It does
// not touch the filesystem.
func Validate(id string) error {
	if id == "" || !pattern.MatchString(id) {
		return &ErrInvalid{SlotID: id, Reason: "use alnum, dot, underscore, dash"}
	}
	return nil
}

// Resolve validates id and joins it under root, rejecting any
// resolution that escapes root (e.g. via ".." components).
func Resolve(root, id string) (string, error) {
	if err := Validate(id); err != nil {
		return "", err
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve slots root: %w", err)
	}
	absRoot = filepath.Clean(absRoot)
	candidate := filepath.Clean(filepath.Join(absRoot, id))
	rel, err := filepath.Rel(absRoot, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &ErrInvalid{SlotID: id, Reason: "slot path escapes slots root"}
	}
	return candidate, nil
}
