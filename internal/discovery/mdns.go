// Package discovery finds Android TV boxes on the local network and checks
// whether a configured host answers at all.
package discovery

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"

	"github.com/HerbHall/tvbridge/internal/adb"
)

// Services are the mDNS service types adbd advertises: wireless debugging
// pairing-free connect, and legacy TCP mode.
var Services = []string{
	"_adb-tls-connect._tcp",
	"_adb._tcp",
}

// DefaultTimeout bounds each service query.
const DefaultTimeout = 3 * time.Second

// Device is one ADB endpoint announced over mDNS.
type Device struct {
	Name    string   `json:"name"`
	Host    string   `json:"host"`
	Address string   `json:"address"`
	Port    int      `json:"port"`
	Service string   `json:"service"`
	Info    []string `json:"info,omitempty"`
}

// Serial returns the adb serial for the endpoint.
func (d Device) Serial() string { return adb.Serial(d.Address, d.Port) }

// QueryFunc runs one mDNS query, sending entries to params.Entries until it
// returns.
type QueryFunc func(ctx context.Context, params *mdns.QueryParam) error

// Scanner queries mDNS for ADB services.
type Scanner struct {
	query    QueryFunc
	timeout  time.Duration
	services []string
	logger   *zap.Logger
}

// NewScanner creates a scanner that waits timeout per service type.
func NewScanner(logger *zap.Logger, timeout time.Duration) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Scanner{
		query:    mdns.QueryContext,
		timeout:  timeout,
		services: Services,
		logger:   logger,
	}
}

// Scan queries every service type and returns the endpoints found, one per
// address and port, sorted by address. It fails only when every query failed.
func (s *Scanner) Scan(ctx context.Context) ([]Device, error) {
	found := make(map[string]Device)
	var errs []error

	for _, svc := range s.services {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		devices, err := s.queryService(ctx, svc)
		if err != nil {
			s.logger.Debug("mDNS query failed", zap.String("service", svc), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", svc, err))
			continue
		}
		for _, d := range devices {
			if _, dup := found[d.Serial()]; !dup {
				found[d.Serial()] = d
			}
		}
	}
	if len(errs) == len(s.services) {
		return nil, errors.Join(errs...)
	}

	out := make([]Device, 0, len(found))
	for _, d := range found {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Device) int {
		return cmp.Or(cmp.Compare(a.Address, b.Address), cmp.Compare(a.Port, b.Port))
	})
	s.logger.Debug("mDNS scan complete", zap.Int("devices_found", len(out)))
	return out, nil
}

func (s *Scanner) queryService(ctx context.Context, service string) ([]Device, error) {
	entries := make(chan *mdns.ServiceEntry, 16)

	var devices []Device
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			if d, ok := toDevice(entry, service); ok {
				devices = append(devices, d)
			}
		}
	}()

	params := mdns.DefaultParams(service)
	params.Timeout = s.timeout
	params.Entries = entries
	params.DisableIPv6 = true

	err := s.query(ctx, params)
	close(entries)
	wg.Wait()
	return devices, err
}

func toDevice(entry *mdns.ServiceEntry, service string) (Device, bool) {
	if entry == nil || entry.Port <= 0 {
		return Device{}, false
	}
	ip := extractIP(entry)
	if ip == "" {
		return Device{}, false
	}
	host := strings.TrimSuffix(entry.Host, ".")
	if host == "" {
		host = ip
	}
	return Device{
		Name:    instanceName(entry.Name, service),
		Host:    host,
		Address: ip,
		Port:    entry.Port,
		Service: service,
		Info:    entry.InfoFields,
	}, true
}

func extractIP(entry *mdns.ServiceEntry) string {
	for _, ip := range []net.IP{entry.AddrV4, entry.Addr} {
		if ip != nil && !ip.IsUnspecified() {
			return ip.String()
		}
	}
	return ""
}

// instanceName strips the service and domain from a full instance name,
// e.g. "adb-1234._adb-tls-connect._tcp.local." becomes "adb-1234".
func instanceName(full, service string) string {
	if name, _, ok := strings.Cut(full, "."+service); ok {
		return name
	}
	return strings.TrimSuffix(full, ".")
}
