package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/HerbHall/tvbridge/internal/discovery"
)

func runDiscover(args []string) {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	timeout := fs.Duration("timeout", discovery.DefaultTimeout, "time to wait per service type")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	debug := fs.Bool("debug", false, "log mDNS queries")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	found, err := discovery.NewScanner(cliLogger(*debug), *timeout).Scan(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "discover failed: %v\n", err)
		os.Exit(1)
	}
	if err := printDevices(os.Stdout, found, *asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "discover failed: %v\n", err)
		os.Exit(1)
	}
}

func printDevices(w io.Writer, found []discovery.Device, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(found)
	}
	if len(found) == 0 {
		_, err := fmt.Fprintln(w, "No ADB devices announced on the network.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERIAL\tHOST\tNAME\tSERVICE")
	for _, d := range found {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Serial(), d.Host, d.Name, d.Service)
	}
	return tw.Flush()
}
