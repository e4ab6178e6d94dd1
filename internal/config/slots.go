package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// MaxSlots is the largest camera grid camgrid manages.
const MaxSlots = 18

// Slot is one camera position in the grid. Slots are immutable once
// applied; a settings change replaces the whole list.
type Slot struct {
	Index int    `toml:"index" json:"index"`
	URL   string `toml:"url" json:"url"`
	Name  string `toml:"name" json:"name"`
}

// Grid describes the dashboard layout.
type Grid struct {
	Columns int `toml:"columns" json:"columns"`
	Rows    int `toml:"rows" json:"rows"`
}

// SlotsFile is the on-disk slot configuration.
type SlotsFile struct {
	Version   int       `toml:"version" json:"version"`
	Grid      Grid      `toml:"grid" json:"grid"`
	Slots     []Slot    `toml:"slots" json:"slots"`
	UpdatedAt time.Time `toml:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// SlotStore loads and persists the slot configuration file. Safe for
// concurrent use: API handlers and the file watcher share one store.
type SlotStore struct {
	path string

	mu   sync.Mutex
	file *SlotsFile
}

// NewSlotStore creates a store for the given path, defaulting to
// "slots.toml" in the working directory.
func NewSlotStore(path string) *SlotStore {
	if path == "" {
		path = "slots.toml"
	}
	return &SlotStore{
		path: path,
		file: &SlotsFile{
			Version: 1,
			Grid:    Grid{Columns: 2, Rows: 2},
		},
	}
}

// Path returns the backing file path.
func (s *SlotStore) Path() string { return s.path }

// Load reads the slot file from disk. A missing file is not an error; the
// store keeps its empty defaults.
func (s *SlotStore) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read slots config: %w", err)
	}

	var file SlotsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse slots config: %w", err)
	}
	if file.Version == 0 {
		file.Version = 1
	}
	if err := ValidateSlots(&file); err != nil {
		return err
	}
	s.mu.Lock()
	s.file = &file
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the current slot configuration.
func (s *SlotStore) Get() SlotsFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *s.file
	out.Slots = make([]Slot, len(s.file.Slots))
	copy(out.Slots, s.file.Slots)
	return out
}

// Replace validates and persists a wholesale replacement configuration.
// The lock spans the disk write so concurrent replacements cannot land
// out of order.
func (s *SlotStore) Replace(file SlotsFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if file.Version == 0 {
		file.Version = 1
	}
	if err := ValidateSlots(&file); err != nil {
		return err
	}
	file.UpdatedAt = time.Now().UTC()

	sort.Slice(file.Slots, func(i, j int) bool { return file.Slots[i].Index < file.Slots[j].Index })

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode slots config: %w", err)
	}

	// Write via a temp file in the same directory so a crash mid-write
	// never leaves a truncated config.
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".slots-*.toml")
	if err != nil {
		return fmt.Errorf("write slots config: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write slots config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write slots config: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write slots config: %w", err)
	}

	s.file = &file
	return nil
}

// LoadSlotsFile reads and validates a slot file without a store. Used by
// the watcher's fresh-load path and the validate command.
func LoadSlotsFile(path string) (SlotsFile, error) {
	store := NewSlotStore(path)
	if err := store.Load(); err != nil {
		return SlotsFile{}, err
	}
	return store.Get(), nil
}

// ValidateSlots checks structural invariants of a slot configuration:
// at most MaxSlots entries, indices unique and in range, grid large enough
// to place every slot, URLs parseable when present.
func ValidateSlots(file *SlotsFile) error {
	if len(file.Slots) > MaxSlots {
		return fmt.Errorf("too many slots: %d (max %d)", len(file.Slots), MaxSlots)
	}

	if file.Grid.Columns <= 0 || file.Grid.Rows <= 0 {
		return fmt.Errorf("grid dimensions must be positive, got %dx%d", file.Grid.Columns, file.Grid.Rows)
	}
	if cells := file.Grid.Columns * file.Grid.Rows; cells > MaxSlots {
		return fmt.Errorf("grid %dx%d exceeds %d cells", file.Grid.Columns, file.Grid.Rows, MaxSlots)
	}

	seen := make(map[int]bool, len(file.Slots))
	for _, slot := range file.Slots {
		if slot.Index < 0 || slot.Index >= MaxSlots {
			return fmt.Errorf("slot index %d out of range 0..%d", slot.Index, MaxSlots-1)
		}
		if seen[slot.Index] {
			return fmt.Errorf("duplicate slot index %d", slot.Index)
		}
		seen[slot.Index] = true

		if slot.Index >= file.Grid.Columns*file.Grid.Rows {
			return fmt.Errorf("slot index %d does not fit grid %dx%d", slot.Index, file.Grid.Columns, file.Grid.Rows)
		}

		if slot.URL == "" {
			continue
		}
		u, err := url.Parse(slot.URL)
		if err != nil {
			return fmt.Errorf("slot %d: invalid url: %w", slot.Index, err)
		}
		if u.Scheme == "" {
			return fmt.Errorf("slot %d: url %q has no scheme", slot.Index, slot.URL)
		}
	}
	return nil
}

// IsManifestURL reports whether a slot URL points at an adaptive-bitrate
// manifest rather than a raw transport the sink can attach natively.
func IsManifestURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return strings.HasSuffix(strings.ToLower(u.Path), ".m3u8")
	default:
		return false
	}
}
