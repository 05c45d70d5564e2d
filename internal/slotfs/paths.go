// Package slotfs implements the on-disk slot layout: atomic JSON
// documents, append-only JSONL logs, and the snapshot the supervisor
// assembles from them (spec.md §3 C1-C2).
package slotfs

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/engyne/nodecore/internal/slotid"
)

// Paths is the fixed set of filenames inside one slot directory
// (spec.md §3 SlotPaths).
type Paths struct {
	SlotID     string
	Root       string
	ConfigPath string
	StatePath  string
	StatusPath string
	LeadsPath  string
	PidPath    string
	RunMeta    string
}

const (
	configFilename  = "slot_config.yml"
	stateFilename   = "slot_state.json"
	statusFilename  = "status.json"
	leadsFilename   = "leads.jsonl"
	pidFilename     = "slot_state.pid"
	runMetaFilename = "run_meta.json"
)

// Resolve validates slotID and builds its Paths under slotsRoot,
// rejecting any resolution that would escape slotsRoot.
func Resolve(slotsRoot, slotID string) (Paths, error) {
	root, err := slotid.Resolve(slotsRoot, slotID)
	if err != nil {
		return Paths{}, err
	}
	return Paths{
		SlotID:     slotID,
		Root:       root,
		ConfigPath: filepath.Join(root, configFilename),
		StatePath:  filepath.Join(root, stateFilename),
		StatusPath: filepath.Join(root, statusFilename),
		LeadsPath:  filepath.Join(root, leadsFilename),
		PidPath:    filepath.Join(root, pidFilename),
		RunMeta:    filepath.Join(root, runMetaFilename),
	}, nil
}

// EnsureRoot creates slotsRoot if it does not already exist.
func EnsureRoot(slotsRoot string) error {
	return os.MkdirAll(slotsRoot, 0o755)
}

// EnsureSlotDir creates the slot's own directory if needed.
func (p Paths) EnsureSlotDir() error {
	return os.MkdirAll(p.Root, 0o755)
}

// List enumerates slotsRoot's immediate subdirectories, deterministically
// ordered by slot id, skipping any entry whose name is not a valid slot id.
func List(slotsRoot string) ([]Paths, error) {
	if err := EnsureRoot(slotsRoot); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(slotsRoot)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]Paths, 0, len(names))
	for _, name := range names {
		paths, err := Resolve(slotsRoot, name)
		if err != nil {
			continue
		}
		out = append(out, paths)
	}
	return out, nil
}
