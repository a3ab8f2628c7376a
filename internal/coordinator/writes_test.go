package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/tvbridge/internal/devicelink"
	"github.com/HerbHall/tvbridge/internal/screenshot"
	"github.com/HerbHall/tvbridge/pkg/models"
)

func commandEvents(h *harness) []CommandEvent {
	var out []CommandEvent
	for _, e := range h.bus.Events() {
		if ce, ok := e.Payload.(CommandEvent); ok {
			out = append(out, ce)
		}
	}
	return out
}

func TestCommandConnectsFirst(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.c.SendKey(context.Background(), 4))
	assert.Equal(t, 1, h.link.connects)
	assert.Equal(t, []string{"key"}, h.link.Calls())

	events := commandEvents(h)
	require.Len(t, events, 1)
	assert.Equal(t, CommandEvent{DeviceID: "living-room", Command: "key", Argument: "4", OK: true}, events[0])
	assert.Len(t, h.c.refresh, 1, "commands request a refresh")
}

func TestCommandFailsWhenUnreachable(t *testing.T) {
	h := newHarness(t)
	h.link.set(func(f *fakeLink) { f.connectOK = false })

	assert.False(t, h.c.SendKey(context.Background(), 4))
	assert.Empty(t, h.link.Calls())

	events := commandEvents(h)
	require.Len(t, events, 1)
	assert.False(t, events[0].OK)
	assert.Equal(t, 1, h.c.Snapshot().ErrorCount)
}

func TestSetPowerRereadsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, _ = h.c.Tick(ctx)

	require.True(t, h.c.SetPower(ctx, false))
	snap := h.c.Snapshot()
	assert.Equal(t, models.PowerOff, snap.PowerState)
	assert.False(t, snap.ScreenOn)
}

func TestQuickSetPower(t *testing.T) {
	tests := []struct {
		name  string
		seq   []devicelink.Power
		on    bool
		want  bool
		final models.PowerState
	}{
		{
			name:  "reaches target on third poll",
			seq:   []devicelink.Power{{State: models.PowerOff}, {State: models.PowerOff}, {State: models.PowerOn, ScreenOn: true}},
			on:    true,
			want:  true,
			final: models.PowerOn,
		},
		{
			name:  "standby satisfies off",
			seq:   []devicelink.Power{{State: models.PowerStandby}},
			on:    false,
			want:  true,
			final: models.PowerStandby,
		},
		{
			name:  "never reaches target",
			seq:   []devicelink.Power{{State: models.PowerOff}},
			on:    true,
			want:  false,
			final: models.PowerOff,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.link.set(func(f *fakeLink) { f.power = tc.seq })

			assert.Equal(t, tc.want, h.c.QuickSetPower(context.Background(), tc.on))
			assert.Equal(t, tc.final, h.c.Snapshot().PowerState)
		})
	}
}

func TestSetVolumeClamps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.c.SetVolume(ctx, 40)
	h.c.SetVolume(ctx, -3)
	h.c.SetVolumePercent(ctx, 50)

	assert.Equal(t, []int{15, 0, 8}, h.link.volumeSet)
}

func TestSetVolumeWithoutReportedRange(t *testing.T) {
	h := newHarness(t)
	h.link.volume = &devicelink.Volume{Level: 5, Max: 0}
	ctx := context.Background()

	snap, err := h.c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.VolumeMax)
	assert.Zero(t, snap.VolumePercentage)

	h.c.SetVolume(ctx, 12)
	h.c.SetVolume(ctx, -3)
	h.c.SetVolumePercent(ctx, 50)

	assert.Equal(t, []int{12, 0, 8}, h.link.volumeSet)
}

func TestStartAppResolvesFriendlyName(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.c.StartApp(context.Background(), "netflix"))
	assert.Equal(t, []string{"com.netflix.mediaclient"}, h.link.started)

	snap := h.c.Snapshot()
	assert.Equal(t, "com.netflix.mediaclient", snap.CurrentApp)
	assert.Equal(t, "Netflix", snap.CurrentSource)
}

func TestRebootMarksDisconnected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, _ = h.c.Tick(ctx)

	require.True(t, h.c.Reboot(ctx))
	snap := h.c.Snapshot()
	assert.False(t, snap.IsConnected)
	assert.Equal(t, models.ConnDisconnected, snap.ConnectionState)
}

func TestTakeScreenshot(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, func(o *Options) { o.Screenshots = screenshot.New(dir, 2) })

	path, err := h.c.TakeScreenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	_, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/sdcard/tvbridge_screenshot_1.png"}, h.link.removed)
}

func TestTakeScreenshotWithoutStore(t *testing.T) {
	h := newHarness(t)
	_, err := h.c.TakeScreenshot(context.Background())
	assert.ErrorIs(t, err, ErrNoScreenshotStore)
}

func TestTakeScreenshotCaptureFails(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Screenshots = screenshot.New(t.TempDir(), 2) })
	h.link.set(func(f *fakeLink) { f.commandOK = false })

	_, err := h.c.TakeScreenshot(context.Background())
	assert.ErrorIs(t, err, ErrScreenshotFailed)
	assert.Empty(t, h.link.removed)
}

func TestDisconnectDoesNotCountError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, _ = h.c.Tick(ctx)

	h.c.Disconnect(ctx)
	snap := h.c.Snapshot()
	assert.Equal(t, models.ConnDisconnected, snap.ConnectionState)
	assert.Zero(t, snap.ErrorCount)

	require.True(t, h.c.Reconnect(ctx))
	assert.Equal(t, models.ConnHealthy, h.c.Snapshot().ConnectionState)
}

func TestRunDebug(t *testing.T) {
	h := newHarness(t)
	out, err := h.c.RunDebug(context.Background(), "uptime")
	require.NoError(t, err)
	assert.Equal(t, "ok uptime", out)

	h.link.set(func(f *fakeLink) {
		f.connected = false
		f.connectOK = false
	})
	_, err = h.c.RunDebug(context.Background(), "uptime")
	assert.ErrorIs(t, err, devicelink.ErrNotConnected)
}
