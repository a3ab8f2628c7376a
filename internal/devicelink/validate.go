package devicelink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/tvbridge/pkg/models"
)

// Reason categorises why a device could not be validated.
type Reason string

const (
	ReasonTimeout      Reason = "timeout"
	ReasonRefused      Reason = "refused"
	ReasonUnauthorized Reason = "unauthorized"
	ReasonNetwork      Reason = "network"
	ReasonUnknown      Reason = "unknown"
)

// ReasonFor maps a link error onto a Reason.
func ReasonFor(err error) Reason {
	switch {
	case errors.Is(err, ErrTimeout):
		return ReasonTimeout
	case errors.Is(err, ErrTransportRefused):
		return ReasonRefused
	case errors.Is(err, ErrUnauthorized):
		return ReasonUnauthorized
	case errors.Is(err, ErrUnreachable):
		return ReasonNetwork
	}
	return ReasonUnknown
}

// ValidationError explains a failed validation in terms an operator can act on.
type ValidationError struct {
	Serial string
	Reason Reason
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("cannot connect to %s: %s", e.Serial, e.Hint())
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Hint is the remediation for the failure.
func (e *ValidationError) Hint() string {
	switch e.Reason {
	case ReasonTimeout:
		return "the device did not answer in time; check that it is powered on and on the same network"
	case ReasonRefused:
		return "connection refused; enable network debugging (ADB over network) on the device and check the port"
	case ReasonUnauthorized:
		return "debugging not authorized; accept the \"Allow network debugging\" prompt on the TV"
	case ReasonNetwork:
		return "host unreachable; check the IP address and network routing"
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// ValidationReport summarises a device that accepted a connection.
type ValidationReport struct {
	Serial      string            `json:"serial"`
	ConnectTime time.Duration     `json:"connect_time"`
	Info        models.DeviceInfo `json:"info"`
	Power       models.PowerState `json:"power"`
	Wifi        *Wifi             `json:"wifi,omitempty"`
	Echo        string            `json:"echo,omitempty"`
}

// Validate connects l, reads identity, power, and Wi-Fi, then disconnects. It
// returns a *ValidationError when the device cannot be reached.
func Validate(ctx context.Context, l *Link) (*ValidationReport, error) {
	start := time.Now()
	if !l.Connect(ctx) {
		err := l.LastConnectError()
		return nil, &ValidationError{Serial: l.Serial(), Reason: ReasonFor(err), Err: err}
	}
	defer l.Disconnect(ctx)

	report := &ValidationReport{
		Serial:      l.Serial(),
		ConnectTime: time.Since(start),
		Power:       models.PowerUnknown,
	}
	if info, ok := l.DeviceInfo(ctx).Get(); ok {
		report.Info = info
	}
	if p, ok := l.PowerState(ctx).Get(); ok {
		report.Power = p.State
	}
	if w, ok := l.WifiState(ctx).Get(); ok {
		report.Wifi = &w
	}
	if out, err := l.RunDebug(ctx, "test_echo"); err == nil {
		report.Echo = out
	}
	return report, nil
}
