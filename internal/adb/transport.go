// Package adb talks to Android devices through the adb command-line client.
package adb

import (
	"context"
	"errors"
	"net"
	"strconv"
)

// Transport-level failures. Callers classify them into link errors.
var (
	ErrRefused      = errors.New("adb: connection refused")
	ErrUnreachable  = errors.New("adb: host unreachable")
	ErrUnauthorized = errors.New("adb: device unauthorized")
	ErrOffline      = errors.New("adb: device offline")
	ErrTimedOut     = errors.New("adb: timed out")
)

// Transport is the remote-shell primitive a device link is built on. All
// methods must honor ctx cancellation.
type Transport interface {
	Connect(ctx context.Context, serial string) error
	Disconnect(ctx context.Context, serial string) error
	Shell(ctx context.Context, serial, command string) (string, error)
	Pull(ctx context.Context, serial, remote, local string) error
}

// Serial returns the network serial adb uses for host and port.
func Serial(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
