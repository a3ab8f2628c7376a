package devicelink

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/HerbHall/tvbridge/pkg/models"
)

// Power is the parsed display power state.
type Power struct {
	State    models.PowerState `json:"state"`
	ScreenOn bool              `json:"screen_on"`
}

// Wifi is the parsed radio and association state.
type Wifi struct {
	Enabled   bool   `json:"enabled"`
	Connected bool   `json:"connected"`
	SSID      string `json:"ssid,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
}

// Volume is the music stream volume.
type Volume struct {
	Level int  `json:"level"`
	Max   int  `json:"max"`
	Muted bool `json:"muted"`
}

var (
	wakefulnessRe  = regexp.MustCompile(`mWakefulness=(\w+)`)
	screenOnRe     = regexp.MustCompile(`mScreenOn=(true|false)`)
	displayStateRe = regexp.MustCompile(`\bstate=(ON|OFF|DOZE_SUSPEND|DOZE|ON_SUSPEND|VR)\b`)
	screenStateRe  = regexp.MustCompile(`(?:mScreenState|mGlobalDisplayState)=(ON|OFF|DOZE_SUSPEND|DOZE|ON_SUSPEND|VR)\b`)

	quotedSSIDRe = regexp.MustCompile(`(?:^|[\s,{])SSID:\s*"([^"]*)"`)
	bareSSIDRe   = regexp.MustCompile(`(?:^|[\s,{])SSID:\s*([^",\s][^,]*)`)
	inetRe       = regexp.MustCompile(`inet (\d{1,3}(?:\.\d{1,3}){3})`)

	volumeRangeRe = regexp.MustCompile(`volume is (\d+) in range \[(\d+)\.\.(\d+)\]`)
	volumeMaxRe   = regexp.MustCompile(`Max:\s*(\d+)`)
	volumeCurRe   = regexp.MustCompile(`Current:[^\n]*?\)\s*:\s*(\d+)`)
	mutedRe       = regexp.MustCompile(`(?i)muted?[:=]\s*(true|false)`)

	componentRe   = regexp.MustCompile(`\b([a-zA-Z][\w]*(?:\.[\w]+)+)/([\w.$]+)`)
	playbackRe    = regexp.MustCompile(`PlaybackState \{state=(\d+)`)
	targetRe      = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)+(?:/[A-Za-z0-9_.$]+)?$`)
	packageLineRe = regexp.MustCompile(`^package:([\w.]+)`)
)

// ParsePower reads "dumpsys power" or "dumpsys display" output. The
// wakefulness line decides the state; explicit screen evidence (mScreenOn,
// a Display state=, mScreenState) decides the screen flag and stands in for
// the state when wakefulness is absent. It reports false when nothing matched.
func ParsePower(out string) (Power, bool) {
	var (
		state        models.PowerState
		displayState models.PowerState
		screenKnown  bool
		screenOn     bool
	)

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		if m := wakefulnessRe.FindStringSubmatch(line); m != nil && state == "" {
			state = wakefulnessState(m[1])
		}
		if m := screenOnRe.FindStringSubmatch(line); m != nil {
			screenKnown = true
			screenOn = m[1] == "true"
			continue
		}
		m := screenStateRe.FindStringSubmatch(line)
		if m == nil && displayContext(lines, i) {
			m = displayStateRe.FindStringSubmatch(line)
		}
		if m != nil && displayState == "" {
			displayState = displayPower(m[1])
			if !screenKnown {
				screenKnown = true
				screenOn = displayState == models.PowerOn
			}
		}
	}

	if state == "" {
		state = displayState
	}
	if state == "" {
		return Power{}, false
	}
	if !screenKnown {
		screenOn = state == models.PowerOn
	}
	return Power{State: state, ScreenOn: screenOn}, true
}

func wakefulnessState(v string) models.PowerState {
	switch strings.ToLower(v) {
	case "awake":
		return models.PowerOn
	case "asleep":
		return models.PowerOff
	case "dreaming", "dozing":
		return models.PowerStandby
	}
	return ""
}

func displayPower(v string) models.PowerState {
	switch v {
	case "ON", "VR", "ON_SUSPEND":
		return models.PowerOn
	case "OFF":
		return models.PowerOff
	}
	return models.PowerStandby
}

// displayContext reports whether line i, or the nearest non-blank line above
// it, mentions a Display.
func displayContext(lines []string, i int) bool {
	if strings.Contains(lines[i], "Display") {
		return true
	}
	for j := i - 1; j >= 0; j-- {
		if strings.TrimSpace(lines[j]) == "" {
			continue
		}
		return strings.Contains(lines[j], "Display")
	}
	return false
}

// ParseWifiEnabled reads "settings get global wifi_on". Values 1 and 2
// (enabled, enabled in airplane mode) mean on; 0 and 3 mean off.
func ParseWifiEnabled(out string) (enabled, ok bool) {
	switch strings.ToLower(strings.TrimSpace(out)) {
	case "1", "2", "enabled", "true":
		return true, true
	case "0", "3", "disabled", "false":
		return false, true
	}
	return false, false
}

// ParseSSID extracts the associated network name, ignoring placeholders.
func ParseSSID(out string) (string, bool) {
	var ssid string
	if m := quotedSSIDRe.FindStringSubmatch(out); m != nil {
		ssid = m[1]
	} else if m := bareSSIDRe.FindStringSubmatch(out); m != nil {
		ssid = m[1]
	}
	ssid = strings.TrimSpace(ssid)
	switch strings.ToLower(ssid) {
	case "", "<unknown ssid>", "null", "<none>":
		return "", false
	}
	return ssid, true
}

// ParseIPAddress returns the first non-loopback IPv4 address in "ip addr" output.
func ParseIPAddress(out string) (string, bool) {
	for _, m := range inetRe.FindAllStringSubmatch(out, -1) {
		if !strings.HasPrefix(m[1], "127.") {
			return m[1], true
		}
	}
	return "", false
}

// ParseVolume reads either "cmd media_session volume --get" or the
// STREAM_MUSIC block of "dumpsys audio".
func ParseVolume(out string) (Volume, bool) {
	muted := false
	if m := mutedRe.FindStringSubmatch(out); m != nil {
		muted = strings.EqualFold(m[1], "true")
	}

	if m := volumeRangeRe.FindStringSubmatch(out); m != nil {
		level, _ := strconv.Atoi(m[1])
		maxLevel, _ := strconv.Atoi(m[3])
		return Volume{Level: level, Max: maxLevel, Muted: muted}, true
	}

	cur := volumeCurRe.FindStringSubmatch(out)
	if cur == nil {
		return Volume{}, false
	}
	level, _ := strconv.Atoi(cur[1])
	maxLevel := models.DefaultVolumeMax
	if m := volumeMaxRe.FindStringSubmatch(out); m != nil {
		maxLevel, _ = strconv.Atoi(m[1])
	}
	return Volume{Level: level, Max: maxLevel, Muted: muted}, true
}

// ParseCurrentApp returns the package of the first activity component in
// window or activity manager output.
func ParseCurrentApp(out string) (string, bool) {
	m := componentRe.FindStringSubmatch(out)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseComponent reads "cmd package resolve-activity --brief" output and
// returns the "pkg/activity" component it resolved to.
func ParseComponent(out string) (string, bool) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if !targetRe.MatchString(last) || !strings.Contains(last, "/") {
		return "", false
	}
	return last, true
}

// ParsePlayback summarises media sessions: "playing" if any session plays,
// otherwise the first session's state. No sessions means "idle".
func ParsePlayback(out string) string {
	states := playbackRe.FindAllStringSubmatch(out, -1)
	if len(states) == 0 {
		return "idle"
	}
	for _, m := range states {
		if m[1] == "3" {
			return "playing"
		}
	}
	switch states[0][1] {
	case "2":
		return "paused"
	case "1":
		return "stopped"
	case "6", "8":
		return "buffering"
	}
	return "idle"
}

// ParsePackages reads "pm list packages" output into a sorted list.
func ParsePackages(out string) []string {
	var pkgs []string
	for _, line := range strings.Split(out, "\n") {
		if m := packageLineRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			pkgs = append(pkgs, m[1])
		}
	}
	slices.Sort(pkgs)
	return slices.Compact(pkgs)
}

// ValidTarget reports whether s is a package name or "pkg/activity" component.
func ValidTarget(s string) bool {
	return targetRe.MatchString(s)
}
