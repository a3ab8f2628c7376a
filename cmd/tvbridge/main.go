package main

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/tvbridge/internal/config"
	"github.com/HerbHall/tvbridge/internal/version"
)

const usage = `tvbridge controls Android TV boxes over ADB.

Usage:
  tvbridge [serve] [--config path] [--debug]
  tvbridge validate --host ip [--port 5555]
  tvbridge discover [--timeout 3s]
  tvbridge backup [--output file] [--config path]
  tvbridge restore --input file [--data-dir dir] [--force]
  tvbridge version
`

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		runServe(args)
	case "validate":
		runValidate(args)
	case "discover":
		runDiscover(args)
	case "backup":
		runBackup(args)
	case "restore":
		runRestore(args)
	case "version":
		fmt.Println(version.Info())
	case "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
}

// newLogger builds the production logger from logging.level and
// logging.format, or a development logger when debug is set.
func newLogger(cfg *config.ViperConfig, debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	if err := zc.Level.UnmarshalText([]byte(cfg.GetString("logging.level"))); err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	if cfg.GetString("logging.format") == "console" {
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return zc.Build()
}

// cliLogger is the logger for one-shot commands: silent unless debug.
func cliLogger(debug bool) *zap.Logger {
	if !debug {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}
