package coordinator

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/HerbHall/tvbridge/internal/devicelink"
	"github.com/HerbHall/tvbridge/pkg/models"
)

var _ DeviceLink = (*fakeLink)(nil)

// fakeLink is a scripted DeviceLink. Probe sequences are consumed in order
// and the last entry repeats; an empty sequence reads as unknown.
type fakeLink struct {
	mu sync.Mutex

	connected  bool
	connectOK  bool
	connectErr error
	checkOK    bool
	commandOK  bool

	// When block is set, CheckConnection signals entered and waits on block.
	block   chan struct{}
	entered chan struct{}

	power    []devicelink.Power
	wifi     *devicelink.Wifi
	volume   *devicelink.Volume
	app      string
	playback string
	info     *models.DeviceInfo
	apps     []string

	connects    int
	disconnects int
	checks      int
	infoReads   int
	appsReads   int
	calls       []string
	volumeSet   []int
	started     []string
	removed     []string
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		connectOK: true,
		checkOK:   true,
		commandOK: true,
		power:     []devicelink.Power{{State: models.PowerOn, ScreenOn: true}},
		wifi:      &devicelink.Wifi{Enabled: true, Connected: true, SSID: "HomeNet", IPAddress: "192.168.1.50"},
		volume:    &devicelink.Volume{Level: 8, Max: 15},
		app:       "com.google.android.youtube",
		playback:  "playing",
		info:      &models.DeviceInfo{Model: "X96", Brand: "Amlogic", AndroidVersion: "11"},
		apps:      []string{"com.google.android.youtube", "com.netflix.mediaclient"},
	}
}

func (f *fakeLink) set(fn func(f *fakeLink)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeLink) record(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.commandOK
}

func (f *fakeLink) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeLink) Connect(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	f.connected = f.connectOK
	return f.connectOK
}

func (f *fakeLink) Disconnect(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
}

func (f *fakeLink) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeLink) CheckConnection(context.Context) bool {
	f.mu.Lock()
	f.checks++
	block, entered, ok := f.block, f.entered, f.checkOK
	f.mu.Unlock()

	if block != nil {
		entered <- struct{}{}
		<-block
	}
	return ok
}

func (f *fakeLink) LastConnectError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectOK {
		return nil
	}
	return f.connectErr
}

func (f *fakeLink) PowerState(context.Context) devicelink.Reading[devicelink.Power] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.power) == 0 {
		return devicelink.Unknown[devicelink.Power](errors.New("no power"))
	}
	p := f.power[0]
	if len(f.power) > 1 {
		f.power = f.power[1:]
	}
	return devicelink.Known(p)
}

func (f *fakeLink) WifiState(context.Context) devicelink.Reading[devicelink.Wifi] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wifi == nil {
		return devicelink.Unknown[devicelink.Wifi](errors.New("no wifi"))
	}
	return devicelink.Known(*f.wifi)
}

func (f *fakeLink) VolumeState(context.Context) devicelink.Reading[devicelink.Volume] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.volume == nil {
		return devicelink.Unknown[devicelink.Volume](errors.New("no volume"))
	}
	return devicelink.Known(*f.volume)
}

func (f *fakeLink) CurrentApp(context.Context) devicelink.Reading[string] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.app == "" {
		return devicelink.Unknown[string](errors.New("no app"))
	}
	return devicelink.Known(f.app)
}

func (f *fakeLink) PlaybackState(context.Context) devicelink.Reading[string] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return devicelink.Known(f.playback)
}

func (f *fakeLink) DeviceInfo(context.Context) devicelink.Reading[models.DeviceInfo] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoReads++
	if f.info == nil {
		return devicelink.Unknown[models.DeviceInfo](errors.New("no info"))
	}
	return devicelink.Known(*f.info)
}

func (f *fakeLink) InstalledApps(context.Context) devicelink.Reading[[]string] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appsReads++
	if f.apps == nil {
		return devicelink.Unknown[[]string](errors.New("no apps"))
	}
	return devicelink.Known(append([]string(nil), f.apps...))
}

func (f *fakeLink) SetPowerState(_ context.Context, on bool) bool {
	if !f.record("set_power") {
		return false
	}
	state := models.PowerOff
	if on {
		state = models.PowerOn
	}
	f.set(func(f *fakeLink) { f.power = []devicelink.Power{{State: state, ScreenOn: on}} })
	return true
}

func (f *fakeLink) SendPowerCommand(context.Context, bool) bool { return f.record("power_key") }
func (f *fakeLink) SetWifiState(context.Context, bool) bool     { return f.record("wifi") }

func (f *fakeLink) SetVolume(_ context.Context, level int) bool {
	f.set(func(f *fakeLink) { f.volumeSet = append(f.volumeSet, level) })
	return f.record("volume")
}

func (f *fakeLink) VolumeStep(context.Context, bool) bool { return f.record("volume_step") }
func (f *fakeLink) ToggleMute(context.Context) bool       { return f.record("mute") }
func (f *fakeLink) SendKey(context.Context, int) bool     { return f.record("key") }

func (f *fakeLink) StartApp(_ context.Context, target string) bool {
	f.set(func(f *fakeLink) {
		f.started = append(f.started, target)
		f.app = target
	})
	return f.record("start_app")
}

func (f *fakeLink) RestartISG(context.Context) bool { return f.record("restart_isg") }

func (f *fakeLink) Reboot(ctx context.Context) bool {
	ok := f.record("reboot")
	f.Disconnect(ctx)
	return ok
}

func (f *fakeLink) TakeScreenshot(context.Context) (string, bool) {
	return "/sdcard/tvbridge_screenshot_1.png", f.record("screencap")
}

func (f *fakeLink) RemoveRemote(_ context.Context, remote string) bool {
	f.set(func(f *fakeLink) { f.removed = append(f.removed, remote) })
	return true
}

func (f *fakeLink) PullFile(_ context.Context, _, local string) bool {
	if !f.record("pull") {
		return false
	}
	return os.WriteFile(local, []byte("png"), 0o600) == nil
}

func (f *fakeLink) RunDebug(_ context.Context, name string) (string, error) {
	f.record("debug " + name)
	return "ok " + name, nil
}
