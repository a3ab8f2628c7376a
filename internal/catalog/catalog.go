// Package catalog holds the named shell commands tvbridge sends to devices.
// The defaults are embedded; deployments may override individual entries.
package catalog

import (
	_ "embed"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed commands.yaml
var rawCommands []byte

// Probe names.
const (
	ProbeSentinel           = "sentinel"
	ProbeCheckConnection    = "check_connection"
	ProbePowerState         = "power_state"
	ProbeDisplayState       = "display_state"
	ProbeWifiState          = "wifi_state"
	ProbeWifiSSID           = "wifi_ssid"
	ProbeIPAddress          = "ip_address"
	ProbeVolumeState        = "volume_state"
	ProbeVolumeFallback     = "volume_state_fallback"
	ProbeCurrentApp         = "current_app"
	ProbeCurrentAppFallback = "current_app_fallback"
	ProbePlaybackState      = "playback_state"
	ProbeDeviceModel        = "device_model"
	ProbeDeviceBrand        = "device_brand"
	ProbeAndroidVersion     = "android_version"
	ProbeInstalledApps      = "installed_apps"
)

// Control names.
const (
	ControlPowerOn         = "power_on"
	ControlPowerOff        = "power_off"
	ControlPowerToggle     = "power_toggle"
	ControlWifiEnable      = "wifi_enable"
	ControlWifiDisable     = "wifi_disable"
	ControlKeyEvent        = "key_event"
	ControlVolumeSet       = "volume_set"
	ControlVolumeUp        = "volume_up"
	ControlVolumeDown      = "volume_down"
	ControlVolumeMute      = "volume_mute"
	ControlStartComponent  = "start_component"
	ControlResolveActivity = "resolve_activity"
	ControlStartLauncher   = "start_launcher"
	ControlMonkeyLaunch    = "monkey_launch"
	ControlForceStop       = "force_stop"
	ControlReboot          = "reboot"
	ControlScreencap       = "screencap"
	ControlRemoveFile      = "remove_file"
)

var requiredProbes = []string{
	ProbeSentinel, ProbeCheckConnection, ProbePowerState, ProbeDisplayState,
	ProbeWifiState, ProbeWifiSSID, ProbeIPAddress, ProbeVolumeState,
	ProbeVolumeFallback, ProbeCurrentApp, ProbeCurrentAppFallback,
	ProbePlaybackState, ProbeDeviceModel, ProbeDeviceBrand,
	ProbeAndroidVersion, ProbeInstalledApps,
}

var requiredControls = []string{
	ControlPowerOn, ControlPowerOff, ControlPowerToggle, ControlWifiEnable,
	ControlWifiDisable, ControlKeyEvent, ControlVolumeSet, ControlVolumeUp,
	ControlVolumeDown, ControlVolumeMute, ControlStartComponent,
	ControlResolveActivity, ControlStartLauncher, ControlMonkeyLaunch,
	ControlForceStop, ControlReboot, ControlScreencap, ControlRemoveFile,
}

// Overrides replaces or adds catalog entries. It is decoded from the
// "commands" section of a device's configuration.
type Overrides struct {
	Probes  map[string]string `mapstructure:"probes" yaml:"probes"`
	Control map[string]string `mapstructure:"control" yaml:"control"`
	Debug   map[string]string `mapstructure:"debug" yaml:"debug"`
	Keys    map[string]int    `mapstructure:"keys" yaml:"keys"`
}

// Empty reports whether o changes nothing.
func (o Overrides) Empty() bool {
	return len(o.Probes) == 0 && len(o.Control) == 0 && len(o.Debug) == 0 && len(o.Keys) == 0
}

// Catalog is an immutable set of named commands. It has no mutators; use
// WithOverrides to derive a modified copy.
type Catalog struct {
	probes  map[string]string
	control map[string]string
	debug   map[string]string
	keys    map[string]int
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default returns the embedded catalog, parsed on first use.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = Parse(rawCommands)
	})
	return defaultCat, defaultErr
}

// Parse decodes a catalog document and checks that every required command
// is present.
func Parse(data []byte) (*Catalog, error) {
	var f Overrides
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse yaml: %w", err)
	}
	c := &Catalog{
		probes:  nonNil(f.Probes),
		control: nonNil(f.Control),
		debug:   nonNil(f.Debug),
		keys:    lowerKeys(f.Keys),
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// WithOverrides returns a copy of c with o applied. c is left untouched.
func (c *Catalog) WithOverrides(o Overrides) (*Catalog, error) {
	out := &Catalog{
		probes:  maps.Clone(c.probes),
		control: maps.Clone(c.control),
		debug:   maps.Clone(c.debug),
		keys:    maps.Clone(c.keys),
	}
	maps.Copy(out.probes, o.Probes)
	maps.Copy(out.control, o.Control)
	maps.Copy(out.debug, o.Debug)
	maps.Copy(out.keys, lowerKeys(o.Keys))
	if err := out.validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// Probe returns the read command called name, formatted with args when given.
func (c *Catalog) Probe(name string, args ...any) string {
	return format(c.probes[name], args)
}

// Control returns the write command called name, formatted with args when given.
func (c *Catalog) Control(name string, args ...any) string {
	return format(c.control[name], args)
}

// Debug returns the diagnostic command called name.
func (c *Catalog) Debug(name string) (string, bool) {
	cmd, ok := c.debug[name]
	return cmd, ok
}

// DebugNames lists the diagnostic commands in sorted order.
func (c *Catalog) DebugNames() []string {
	return slices.Sorted(maps.Keys(c.debug))
}

// KeyCode resolves a key name such as "home" or "BACK" to its Android keycode.
func (c *Catalog) KeyCode(name string) (int, bool) {
	code, ok := c.keys[strings.ToLower(strings.TrimSpace(name))]
	return code, ok
}

// KeyNames lists the named keys in sorted order.
func (c *Catalog) KeyNames() []string {
	return slices.Sorted(maps.Keys(c.keys))
}

func (c *Catalog) validate() error {
	var missing []string
	for _, name := range requiredProbes {
		if strings.TrimSpace(c.probes[name]) == "" {
			missing = append(missing, "probes."+name)
		}
	}
	for _, name := range requiredControls {
		if strings.TrimSpace(c.control[name]) == "" {
			missing = append(missing, "control."+name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("catalog: missing commands: %s", strings.Join(missing, ", "))
	}
	return nil
}

func format(tmpl string, args []any) string {
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func lowerKeys(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}
