package screenshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/tvbridge/internal/testutil"
)

func writeCaptures(t *testing.T, s *Store, clock *testutil.Clock, deviceID string, n int) []string {
	t.Helper()
	var paths []string
	for range n {
		p := s.Path(deviceID)
		require.NoError(t, os.WriteFile(p, []byte("png"), 0o600))
		paths = append(paths, p)
		clock.Advance(time.Second)
	}
	return paths
}

func TestPruneKeepsNewest(t *testing.T) {
	clock := testutil.NewClock()
	s := New(t.TempDir(), 3)
	s.now = clock.Now

	paths := writeCaptures(t, s, clock, "living-room", 5)
	other := writeCaptures(t, s, clock, "bedroom", 2)

	removed, err := s.Prune("living-room")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	left, err := s.List("living-room")
	require.NoError(t, err)
	assert.Equal(t, []string{paths[4], paths[3], paths[2]}, left)

	for _, p := range other {
		assert.FileExists(t, p)
	}
}

func TestListMatchesExactDevice(t *testing.T) {
	clock := testutil.NewClock()
	s := New(t.TempDir(), 1)
	s.now = clock.Now

	den := writeCaptures(t, s, clock, "den", 2)
	den2 := writeCaptures(t, s, clock, "den_2", 2)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "den_notes.png"), []byte("png"), 0o600))

	latest, err := s.Latest("den")
	require.NoError(t, err)
	assert.Equal(t, den[1], latest)

	removed, err := s.Prune("den")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.FileExists(t, den[1])
	assert.NoFileExists(t, den[0])
	for _, p := range den2 {
		assert.FileExists(t, p)
	}

	left, err := s.List("den_2")
	require.NoError(t, err)
	assert.Equal(t, []string{den2[1], den2[0]}, left)
}

func TestCaptureOwner(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"den_20260101T000000.000.png", "den"},
		{"den_2_20260101T000000.000.png", "den_2"},
		{"den_notes.png", ""},
		{"den_20260101T000000.000.jpg", ""},
		{"_20260101T000000.000.png", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, captureOwner(tc.name))
		})
	}
}

func TestDefaultRetain(t *testing.T) {
	s := New(t.TempDir(), 0)
	assert.Equal(t, DefaultRetain, s.retain)
}

func TestLatestAndMissingDir(t *testing.T) {
	clock := testutil.NewClock()
	s := New(filepath.Join(t.TempDir(), "absent"), 2)
	s.now = clock.Now

	latest, err := s.Latest("tv")
	require.NoError(t, err)
	assert.Empty(t, latest)

	require.NoError(t, os.MkdirAll(s.Dir(), 0o755))
	paths := writeCaptures(t, s, clock, "tv", 2)
	latest, err = s.Latest("tv")
	require.NoError(t, err)
	assert.Equal(t, paths[1], latest)
}
