package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HerbHall/tvbridge/internal/adb"
	"github.com/HerbHall/tvbridge/internal/devicelink"
	"github.com/HerbHall/tvbridge/internal/discovery"
)

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	host := fs.String("host", "", "device IP address or hostname (required)")
	port := fs.Int("port", devicelink.DefaultPort, "ADB port")
	timeout := fs.Duration("timeout", devicelink.DefaultTimeout, "per-command timeout")
	adbPath := fs.String("adb", "adb", "path to the adb binary")
	ping := fs.Bool("ping", true, "ping the host when it cannot be reached over ADB")
	debug := fs.Bool("debug", false, "log every adb call")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *host == "" {
		fmt.Fprintln(os.Stderr, "error: --host is required")
		fs.Usage()
		os.Exit(1)
	}

	logger := cliLogger(*debug)
	link, err := devicelink.New(adb.NewCLITransport(*adbPath, logger), devicelink.Options{
		Host:    *host,
		Port:    *port,
		Timeout: *timeout,
		Logger:  logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var pinger discovery.Pinger
	if *ping {
		pinger = discovery.NewICMPPinger(3*time.Second, 3)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := validate(ctx, os.Stdout, link, *host, pinger); err != nil {
		os.Exit(1)
	}
}

// validate prints a report for the device behind link. On failure it prints
// the remediation hint and, when pinger is set, whether the host answers
// ICMP at all.
func validate(ctx context.Context, w io.Writer, link *devicelink.Link, host string, pinger discovery.Pinger) error {
	fmt.Fprintf(w, "Validating %s\n", link.Serial())

	report, err := devicelink.Validate(ctx, link)
	if err != nil {
		fmt.Fprintf(w, "  connect:  FAILED\n")
		var verr *devicelink.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(w, "  reason:   %s\n", verr.Reason)
			fmt.Fprintf(w, "  hint:     %s\n", verr.Hint())
		} else {
			fmt.Fprintf(w, "  error:    %v\n", err)
		}
		if pinger != nil {
			printPing(ctx, w, pinger, host)
		}
		return err
	}

	fmt.Fprintf(w, "  connect:  ok (%s)\n", report.ConnectTime.Round(time.Millisecond))
	fmt.Fprintf(w, "  model:    %s\n", report.Info.Model)
	fmt.Fprintf(w, "  brand:    %s\n", report.Info.Brand)
	fmt.Fprintf(w, "  android:  %s\n", report.Info.AndroidVersion)
	fmt.Fprintf(w, "  power:    %s\n", report.Power)
	if report.Wifi != nil {
		fmt.Fprintf(w, "  wifi:     enabled=%t connected=%t ssid=%q ip=%s\n",
			report.Wifi.Enabled, report.Wifi.Connected, report.Wifi.SSID, report.Wifi.IPAddress)
	} else {
		fmt.Fprintf(w, "  wifi:     unknown\n")
	}
	if report.Echo != "" {
		fmt.Fprintf(w, "  echo:     %s\n", report.Echo)
	}
	return nil
}

func printPing(ctx context.Context, w io.Writer, pinger discovery.Pinger, host string) {
	res, err := pinger.Ping(ctx, host)
	switch {
	case err != nil:
		fmt.Fprintf(w, "  ping:     %v\n", err)
	case res.Reachable:
		fmt.Fprintf(w, "  ping:     reachable (%d/%d, avg %s); the host is up but ADB is not answering\n",
			res.PacketsRecv, res.PacketsSent, res.AvgRTT.Round(time.Microsecond))
	default:
		fmt.Fprintf(w, "  ping:     no reply (%s)\n", res.Error)
	}
}
