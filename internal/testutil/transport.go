package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/HerbHall/tvbridge/internal/adb"
)

var _ adb.Transport = (*FakeTransport)(nil)

// FakeTransport is a scripted adb.Transport. Unscripted "echo X" commands
// echo X back so sentinel round-trips succeed by default; any other
// unscripted command returns empty output.
type FakeTransport struct {
	mu         sync.Mutex
	responses  map[string][]string
	errors     map[string]error
	hang       map[string]bool
	ConnectErr error
	PullErr    error
	EchoBroken bool
	calls      []string
	pulls      [][2]string
}

// NewFakeTransport returns a transport that accepts every connection.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		responses: make(map[string][]string),
		errors:    make(map[string]error),
		hang:      make(map[string]bool),
	}
}

// On scripts the outputs for command. Successive calls consume outs in order
// and the last one repeats.
func (f *FakeTransport) On(command string, outs ...string) *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[command] = outs
	delete(f.errors, command)
	return f
}

// Fail makes command return err.
func (f *FakeTransport) Fail(command string, err error) *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[command] = err
	return f
}

// Hang makes command block until its context ends.
func (f *FakeTransport) Hang(command string) *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hang[command] = true
	return f
}

func (f *FakeTransport) Connect(_ context.Context, serial string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "connect "+serial)
	return f.ConnectErr
}

func (f *FakeTransport) Disconnect(_ context.Context, serial string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "disconnect "+serial)
	return nil
}

func (f *FakeTransport) Shell(ctx context.Context, _ string, command string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	hang := f.hang[command] || (f.EchoBroken && strings.HasPrefix(command, "echo "))
	err := f.errors[command]
	outs, scripted := f.responses[command]
	if scripted && len(outs) > 1 {
		f.responses[command] = outs[1:]
	}
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	if scripted && len(outs) > 0 {
		return outs[0], nil
	}
	if arg, ok := strings.CutPrefix(command, "echo "); ok {
		return strings.Trim(arg, "'\"") + "\n", nil
	}
	return "", nil
}

func (f *FakeTransport) Pull(_ context.Context, _ string, remote, local string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "pull "+remote)
	f.pulls = append(f.pulls, [2]string{remote, local})
	return f.PullErr
}

// Calls returns every operation in order: "connect <serial>",
// "disconnect <serial>", "pull <remote>", or the shell command itself.
func (f *FakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Count returns how many times command (or operation) was issued.
func (f *FakeTransport) Count(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == command {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls but keeps the script.
func (f *FakeTransport) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.pulls = nil
}
