package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/HerbHall/tvbridge/internal/adb"
	"github.com/HerbHall/tvbridge/internal/catalog"
	"github.com/HerbHall/tvbridge/internal/config"
	"github.com/HerbHall/tvbridge/internal/devicelink"
	"github.com/HerbHall/tvbridge/internal/discovery"
	"github.com/HerbHall/tvbridge/internal/testutil"
)

type stubPinger struct {
	res   *discovery.PingResult
	hosts []string
}

func (p *stubPinger) Ping(_ context.Context, host string) (*discovery.PingResult, error) {
	p.hosts = append(p.hosts, host)
	return p.res, nil
}

func newLink(t *testing.T, f *testutil.FakeTransport) *devicelink.Link {
	t.Helper()
	l, err := devicelink.New(f, devicelink.Options{Host: "192.168.1.50", Timeout: time.Second})
	if err != nil {
		t.Fatalf("devicelink.New: %v", err)
	}
	return l
}

func TestValidateReportsDevice(t *testing.T) {
	c, err := catalog.Default()
	if err != nil {
		t.Fatal(err)
	}
	f := testutil.NewFakeTransport().
		On(c.Probe(catalog.ProbeDeviceModel), "SHIELD Android TV").
		On(c.Probe(catalog.ProbeWifiState), "0")

	var out bytes.Buffer
	pinger := &stubPinger{}
	if err := validate(context.Background(), &out, newLink(t, f), "192.168.1.50", pinger); err != nil {
		t.Fatalf("validate: %v", err)
	}

	for _, want := range []string{"Validating 192.168.1.50:5555", "connect:  ok", "model:    SHIELD Android TV", "enabled=false"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
	if len(pinger.hosts) != 0 {
		t.Error("pinged a reachable device")
	}
}

func TestValidateFailurePings(t *testing.T) {
	f := testutil.NewFakeTransport()
	f.ConnectErr = adb.ErrRefused

	var out bytes.Buffer
	pinger := &stubPinger{res: &discovery.PingResult{Host: "192.168.1.50", Reachable: true, PacketsSent: 3, PacketsRecv: 3}}
	err := validate(context.Background(), &out, newLink(t, f), "192.168.1.50", pinger)
	if err == nil {
		t.Fatal("expected validation error")
	}

	for _, want := range []string{"connect:  FAILED", "reason:   refused", "network debugging", "ADB is not answering"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
	if len(pinger.hosts) != 1 || pinger.hosts[0] != "192.168.1.50" {
		t.Errorf("pinged %v, want [192.168.1.50]", pinger.hosts)
	}
}

func TestPrintDevices(t *testing.T) {
	found := []discovery.Device{
		{Name: "adb-1", Host: "shield.local", Address: "192.168.1.60", Port: 37123, Service: "_adb-tls-connect._tcp"},
	}

	var table bytes.Buffer
	if err := printDevices(&table, found, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(table.String(), "192.168.1.60:37123") || !strings.Contains(table.String(), "SERIAL") {
		t.Errorf("table output = %q", table.String())
	}

	var js bytes.Buffer
	if err := printDevices(&js, found, true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(js.String(), `"address": "192.168.1.60"`) {
		t.Errorf("json output = %q", js.String())
	}

	var empty bytes.Buffer
	if err := printDevices(&empty, nil, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(empty.String(), "No ADB devices") {
		t.Errorf("empty output = %q", empty.String())
	}
}

func TestNewLoggerHonorsLevel(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Viper().Set("logging.level", "warn")
	logger, err := newLogger(cfg, false)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	if logger.Core().Enabled(-1) {
		t.Error("debug enabled at warn level")
	}

	cfg.Viper().Set("logging.level", "loud")
	if _, err := newLogger(cfg, false); err == nil {
		t.Error("expected error for unknown level")
	}
}
