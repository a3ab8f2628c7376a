package adb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func stubTransport(out string, err error) (*CLITransport, *[][]string) {
	var calls [][]string
	t := NewCLITransport("adb", zap.NewNop())
	t.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, append([]string{name}, args...))
		return []byte(out), err
	}
	return t, &calls
}

func TestSerial(t *testing.T) {
	assert.Equal(t, "192.168.1.50:5555", Serial("192.168.1.50", 5555))
	assert.Equal(t, "[fe80::1]:5555", Serial("fe80::1", 5555))
}

func TestConnectClassification(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		wantErr error
		wantOK  bool
	}{
		{"connected", "connected to 192.168.1.50:5555\n", nil, true},
		{"already", "already connected to 192.168.1.50:5555\n", nil, true},
		{"refused", "failed to connect to '192.168.1.50:5555': Connection refused\n", ErrRefused, false},
		{"no route", "failed to connect to 192.168.1.50:5555: No route to host\n", ErrUnreachable, false},
		{"timeout", "failed to connect to 192.168.1.50:5555: Connection timed out\n", ErrTimedOut, false},
		{"auth", "failed to authenticate to 192.168.1.50:5555\n", ErrUnauthorized, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr, calls := stubTransport(tc.out, nil)
			err := tr.Connect(context.Background(), "192.168.1.50:5555")
			if tc.wantOK {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tc.wantErr)
			}
			assert.Equal(t, []string{"adb", "connect", "192.168.1.50:5555"}, (*calls)[0])
		})
	}
}

func TestConnectUnknownFailure(t *testing.T) {
	tr, _ := stubTransport("cannot resolve host 'tv.local'\n", nil)
	err := tr.Connect(context.Background(), "tv.local:5555")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot resolve host")
}

func TestShellPassesCommandThrough(t *testing.T) {
	tr, calls := stubTransport("mWakefulness=Awake\n", nil)
	out, err := tr.Shell(context.Background(), "10.0.0.2:5555", "dumpsys power | grep mWakefulness")
	require.NoError(t, err)
	assert.Equal(t, "mWakefulness=Awake\n", out)
	assert.Equal(t, []string{"adb", "-s", "10.0.0.2:5555", "shell", "dumpsys power | grep mWakefulness"}, (*calls)[0])
}

func TestShellDeviceErrors(t *testing.T) {
	tests := []struct {
		out  string
		want error
	}{
		{"error: device offline", ErrOffline},
		{"error: device '10.0.0.2:5555' not found", ErrOffline},
		{"error: device unauthorized.\nThis adb server's $ADB_VENDOR_KEYS is not set", ErrUnauthorized},
	}
	for _, tc := range tests {
		tr, _ := stubTransport(tc.out, errors.New("exit status 1"))
		_, err := tr.Shell(context.Background(), "10.0.0.2:5555", "echo hi")
		assert.ErrorIs(t, err, tc.want, tc.out)
	}
}

func TestShellHonorsContext(t *testing.T) {
	tr, _ := stubTransport("", nil)
	tr.run = func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := tr.Shell(ctx, "10.0.0.2:5555", "sleep 100")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPullFailure(t *testing.T) {
	tr, calls := stubTransport("adb: error: failed to stat remote object '/sdcard/x.png'", errors.New("exit status 1"))
	err := tr.Pull(context.Background(), "10.0.0.2:5555", "/sdcard/x.png", "/tmp/x.png")
	require.Error(t, err)
	assert.Equal(t, []string{"adb", "-s", "10.0.0.2:5555", "pull", "/sdcard/x.png", "/tmp/x.png"}, (*calls)[0])
}
