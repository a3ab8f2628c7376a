package discovery

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// PingResult summarizes an ICMP reachability check.
type PingResult struct {
	Host        string        `json:"host"`
	Reachable   bool          `json:"reachable"`
	PacketsSent int           `json:"packets_sent"`
	PacketsRecv int           `json:"packets_recv"`
	AvgRTT      time.Duration `json:"avg_rtt"`
	Error       string        `json:"error,omitempty"`
}

// Pinger checks whether a host answers ICMP echo.
type Pinger interface {
	Ping(ctx context.Context, host string) (*PingResult, error)
}

// ICMPPinger pings with pro-bing. Unprivileged UDP pings are used except on
// Windows, which only supports raw sockets.
type ICMPPinger struct {
	timeout time.Duration
	count   int
}

// NewICMPPinger creates a pinger sending count echoes within timeout.
func NewICMPPinger(timeout time.Duration, count int) *ICMPPinger {
	return &ICMPPinger{timeout: timeout, count: max(count, 1)}
}

// Ping returns an error only when the pinger cannot be created; an
// unreachable host is a result with Reachable false.
func (p *ICMPPinger) Ping(ctx context.Context, host string) (*PingResult, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, fmt.Errorf("ping: host is required")
	}
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return nil, fmt.Errorf("create pinger: %w", err)
	}
	pinger.Count = p.count
	pinger.Timeout = p.timeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case runErr := <-done:
		stats := pinger.Statistics()
		res := &PingResult{
			Host:        host,
			PacketsSent: stats.PacketsSent,
			PacketsRecv: stats.PacketsRecv,
			AvgRTT:      stats.AvgRtt,
			Reachable:   runErr == nil && stats.PacketsRecv > 0,
		}
		switch {
		case runErr != nil:
			res.Error = runErr.Error()
		case !res.Reachable:
			res.Error = "all packets lost"
		}
		return res, nil

	case <-ctx.Done():
		pinger.Stop()
		return &PingResult{Host: host, Error: "ping cancelled"}, nil
	}
}
