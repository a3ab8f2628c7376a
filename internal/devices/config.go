package devices

import (
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/tvbridge/internal/catalog"
	"github.com/HerbHall/tvbridge/internal/coordinator"
	"github.com/HerbHall/tvbridge/internal/devicelink"
)

// Config is the "modules.devices" section.
type Config struct {
	Defaults    Defaults            `mapstructure:"defaults"`
	Boxes       []BoxConfig         `mapstructure:"boxes"`
	Apps        []AppConfig         `mapstructure:"apps"`
	Commands    catalog.Overrides   `mapstructure:"commands"`
	Timing      *devicelink.Timing  `mapstructure:"timing"`
	Settle      *coordinator.Settle `mapstructure:"settle"`
	Screenshots ScreenshotConfig    `mapstructure:"screenshots"`
	RateLimit   RateLimitConfig     `mapstructure:"rate_limit"`
}

// Defaults apply to every box that does not override them.
type Defaults struct {
	Port               int           `mapstructure:"port"`
	Timeout            time.Duration `mapstructure:"timeout"`
	ScanInterval       time.Duration `mapstructure:"scan_interval"`
	InfoInterval       time.Duration `mapstructure:"info_interval"`
	AppsInterval       time.Duration `mapstructure:"apps_interval"`
	ReconnectThreshold int           `mapstructure:"reconnect_threshold"`
	ISGPackage         string        `mapstructure:"isg_package"`
}

// BoxConfig is one TV box.
type BoxConfig struct {
	ID           string        `mapstructure:"id"`
	Name         string        `mapstructure:"name"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ScanInterval time.Duration `mapstructure:"scan_interval"`
}

// AppConfig maps a friendly source name to a package. A list keeps the
// display name's case, which map keys would lose.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Package string `mapstructure:"package"`
}

// ScreenshotConfig controls local capture storage.
type ScreenshotConfig struct {
	Dir    string `mapstructure:"dir"`
	Retain int    `mapstructure:"retain"`
}

// RateLimitConfig bounds command requests across all boxes.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// boxID derives an identifier from a host when none is configured.
func boxID(host string) string {
	return strings.NewReplacer(".", "-", ":", "-").Replace(host)
}

// normalize fills box-level gaps from the defaults and checks identity.
func (c *Config) normalize() error {
	if c.Defaults.Port == 0 {
		c.Defaults.Port = devicelink.DefaultPort
	}
	seen := make(map[string]bool, len(c.Boxes))
	for i := range c.Boxes {
		b := &c.Boxes[i]
		b.Host = strings.TrimSpace(b.Host)
		if b.Host == "" {
			return fmt.Errorf("boxes[%d]: host is required", i)
		}
		if b.ID == "" {
			b.ID = boxID(b.Host)
		}
		if seen[b.ID] {
			return fmt.Errorf("boxes[%d]: duplicate id %q", i, b.ID)
		}
		seen[b.ID] = true
		if b.Port == 0 {
			b.Port = c.Defaults.Port
		}
		if b.Port < 1 || b.Port > 65535 {
			return fmt.Errorf("box %q: port %d out of range", b.ID, b.Port)
		}
		if b.Timeout == 0 {
			b.Timeout = c.Defaults.Timeout
		}
		if b.ScanInterval == 0 {
			b.ScanInterval = c.Defaults.ScanInterval
		}
		if b.Name == "" {
			b.Name = b.ID
		}
	}
	return nil
}

// appMap returns the configured sources merged over the built-in ones.
func (c *Config) appMap() map[string]string {
	apps := coordinator.DefaultApps()
	for _, a := range c.Apps {
		if a.Name != "" && a.Package != "" {
			apps[a.Name] = a.Package
		}
	}
	return apps
}
