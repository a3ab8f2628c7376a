package devicelink

import (
	"context"
	"errors"
	"fmt"

	"github.com/HerbHall/tvbridge/internal/adb"
)

var (
	// ErrNotConnected is returned for any command issued without a verified connection.
	ErrNotConnected = errors.New("devicelink: not connected")

	// ErrTimeout is returned when a command exceeds the link timeout.
	ErrTimeout = errors.New("devicelink: command timed out")

	// ErrTransportRefused means the device actively refused the ADB connection.
	ErrTransportRefused = errors.New("devicelink: connection refused")

	// ErrUnreachable means the host could not be reached on the network.
	ErrUnreachable = errors.New("devicelink: host unreachable")

	// ErrUnauthorized means the device has not accepted this host's debugging key.
	ErrUnauthorized = errors.New("devicelink: debugging not authorized")

	// ErrSentinelMismatch means the connection opened but the echo round-trip
	// did not come back intact.
	ErrSentinelMismatch = errors.New("devicelink: echo verification failed")

	// ErrInvalidTarget is returned for package or component names that are not
	// safe to pass to the device shell.
	ErrInvalidTarget = errors.New("devicelink: invalid package or component")
)

// classify maps transport failures onto the link's error taxonomy, keeping
// the original error in the chain.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, adb.ErrTimedOut):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, adb.ErrRefused):
		return fmt.Errorf("%w: %w", ErrTransportRefused, err)
	case errors.Is(err, adb.ErrUnreachable):
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	case errors.Is(err, adb.ErrUnauthorized):
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case errors.Is(err, adb.ErrOffline):
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	return err
}
