package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/HerbHall/tvbridge/pkg/models"
	"github.com/HerbHall/tvbridge/pkg/plugin"
)

func TestNewStoreUsable(t *testing.T) {
	db := NewStore(t)
	if err := db.DB().PingContext(context.Background()); err != nil {
		t.Fatalf("PingContext: %v", err)
	}
}

func TestMockBusDeliversAndRecords(t *testing.T) {
	bus := NewMockBus()
	var got []string
	bus.Subscribe("devices.power.changed", func(_ context.Context, e plugin.Event) {
		got = append(got, e.Source)
	})
	bus.SubscribeAll(func(_ context.Context, e plugin.Event) {
		got = append(got, "all:"+e.Topic)
	})

	_ = bus.Publish(context.Background(), plugin.Event{Topic: "devices.power.changed", Source: "devices"})
	bus.PublishAsync(context.Background(), plugin.Event{Topic: "other", Source: "x"})

	if len(bus.Events()) != 2 {
		t.Fatalf("Events len = %d, want 2", len(bus.Events()))
	}
	want := []string{"devices", "all:devices.power.changed", "all:other"}
	if len(got) != len(want) {
		t.Fatalf("deliveries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	bus.Reset()
	if len(bus.Events()) != 0 {
		t.Error("Reset did not clear events")
	}
}

func TestClockAdvance(t *testing.T) {
	c := NewClock()
	start := c.Now()
	c.Advance(15 * time.Minute)
	if got := c.Now().Sub(start); got != 15*time.Minute {
		t.Errorf("advanced %v, want 15m", got)
	}
}

func TestFakeTransportScript(t *testing.T) {
	ctx := context.Background()
	f := NewFakeTransport().On("getprop ro.product.model", "first\n", "second\n")
	f.Fail("reboot", errors.New("closed"))

	if out, _ := f.Shell(ctx, "s", "echo 'abc'"); out != "abc\n" {
		t.Errorf("echo = %q, want abc", out)
	}
	a, _ := f.Shell(ctx, "s", "getprop ro.product.model")
	b, _ := f.Shell(ctx, "s", "getprop ro.product.model")
	c, _ := f.Shell(ctx, "s", "getprop ro.product.model")
	if a != "first\n" || b != "second\n" || c != "second\n" {
		t.Errorf("sequence = %q %q %q", a, b, c)
	}
	if _, err := f.Shell(ctx, "s", "reboot"); err == nil {
		t.Error("expected scripted failure")
	}
	if f.Count("getprop ro.product.model") != 3 {
		t.Errorf("Count = %d, want 3", f.Count("getprop ro.product.model"))
	}
}

func TestFakeTransportHang(t *testing.T) {
	f := NewFakeTransport().Hang("dumpsys power")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.Shell(ctx, "s", "dumpsys power"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestNewSnapshotFixture(t *testing.T) {
	s := NewSnapshot("tv", WithPower(models.PowerOff), WithVolume(3, 30, true))
	if s.PowerState != models.PowerOff || s.ScreenOn {
		t.Errorf("power = %s screen=%v", s.PowerState, s.ScreenOn)
	}
	if s.VolumePercentage != 10 {
		t.Errorf("VolumePercentage = %v, want 10", s.VolumePercentage)
	}
}
