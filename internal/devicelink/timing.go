package devicelink

import (
	"context"
	"time"
)

// Timing holds the settle delays used by multi-step commands. Devices differ
// in how quickly they apply a key press, so every delay is configurable.
type Timing struct {
	PowerSettle   time.Duration `mapstructure:"power_settle"`
	ToggleSettle  time.Duration `mapstructure:"toggle_settle"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	WifiSettle    time.Duration `mapstructure:"wifi_settle"`
	RestartSettle time.Duration `mapstructure:"restart_settle"`
}

// DefaultTiming returns delays that suit most Android TV boxes.
func DefaultTiming() Timing {
	return Timing{
		PowerSettle:   800 * time.Millisecond,
		ToggleSettle:  600 * time.Millisecond,
		RetryDelay:    800 * time.Millisecond,
		WifiSettle:    3 * time.Second,
		RestartSettle: time.Second,
	}
}

// Sleep waits for d or until ctx ends, reporting whether the full delay elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
