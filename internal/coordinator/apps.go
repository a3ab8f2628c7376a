package coordinator

import (
	"maps"
	"slices"
	"strings"
)

// DefaultApps maps friendly source names to packages.
func DefaultApps() map[string]string {
	return map[string]string{
		"ISG":     "com.linknlink.app.device.isg",
		"YouTube": "com.google.android.youtube",
		"Netflix": "com.netflix.mediaclient",
		"Spotify": "com.spotify.music",
	}
}

// AppMap resolves friendly source names to packages and back.
type AppMap struct {
	byName map[string]string // lower-cased name -> package
	byPkg  map[string]string // package -> display name
	names  []string
}

// NewAppMap builds an AppMap from display name -> package.
func NewAppMap(apps map[string]string) *AppMap {
	a := &AppMap{
		byName: make(map[string]string, len(apps)),
		byPkg:  make(map[string]string, len(apps)),
	}
	for name, pkg := range apps {
		a.byName[strings.ToLower(name)] = pkg
		a.byPkg[pkg] = name
	}
	a.names = slices.Sorted(maps.Keys(apps))
	return a
}

// Resolve returns the package for a friendly name (case-insensitive), or
// target unchanged when it is not a known name.
func (a *AppMap) Resolve(target string) string {
	if pkg, ok := a.byName[strings.ToLower(strings.TrimSpace(target))]; ok {
		return pkg
	}
	return strings.TrimSpace(target)
}

// NameFor returns the friendly name of pkg, or "" when unmapped.
func (a *AppMap) NameFor(pkg string) string {
	return a.byPkg[pkg]
}

// Names returns the friendly names in sorted order.
func (a *AppMap) Names() []string {
	return slices.Clone(a.names)
}
