// Package screenshot manages screen captures pulled from devices and keeps
// only the most recent ones per device.
package screenshot

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// DefaultRetain is how many captures are kept per device.
const DefaultRetain = 10

const stampLayout = "20060102T150405.000"

// Store names and prunes capture files in a directory.
type Store struct {
	dir    string
	retain int
	now    func() time.Time
}

// New returns a Store rooted at dir. retain <= 0 selects DefaultRetain.
func New(dir string, retain int) *Store {
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &Store{dir: dir, retain: retain, now: time.Now}
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// Path returns a new, timestamped capture path for deviceID.
func (s *Store) Path(deviceID string) string {
	name := fmt.Sprintf("%s_%s.png", deviceID, s.now().UTC().Format(stampLayout))
	return filepath.Join(s.dir, name)
}

// List returns deviceID's captures, newest first.
func (s *Store) List(deviceID string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list screenshots: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || captureOwner(e.Name()) != deviceID {
			continue
		}
		files = append(files, filepath.Join(s.dir, e.Name()))
	}
	slices.Sort(files)
	slices.Reverse(files)
	return files, nil
}

// captureOwner returns the device ID of a "<id>_<stamp>.png" file name, or ""
// when name is not a capture. IDs may themselves contain underscores.
func captureOwner(name string) string {
	base, ok := strings.CutSuffix(name, ".png")
	if !ok {
		return ""
	}
	i := strings.LastIndexByte(base, '_')
	if i <= 0 {
		return ""
	}
	if _, err := time.Parse(stampLayout, base[i+1:]); err != nil {
		return ""
	}
	return base[:i]
}

// Latest returns deviceID's newest capture, or "" when there is none.
func (s *Store) Latest(deviceID string) (string, error) {
	files, err := s.List(deviceID)
	if err != nil || len(files) == 0 {
		return "", err
	}
	return files[0], nil
}

// Prune deletes all but deviceID's newest captures and returns how many
// files were removed.
func (s *Store) Prune(deviceID string) (int, error) {
	files, err := s.List(deviceID)
	if err != nil || len(files) <= s.retain {
		return 0, err
	}
	removed := 0
	for _, f := range files[s.retain:] {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove %s: %w", f, err)
		}
		removed++
	}
	return removed, nil
}
