// Package config loads tvbridge configuration with viper and exposes it to
// modules through the plugin.Config interface.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/HerbHall/tvbridge/pkg/plugin"
)

// EnvPrefix prefixes every environment override, e.g. TVBRIDGE_SERVER_PORT.
const EnvPrefix = "TVBRIDGE"

var _ plugin.Config = (*ViperConfig)(nil)

// ViperConfig adapts a *viper.Viper to plugin.Config. A nil viper behaves as
// an empty configuration.
type ViperConfig struct {
	v *viper.Viper
}

// New wraps v.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

func (c *ViperConfig) GetString(key string) string          { return c.v.GetString(key) }
func (c *ViperConfig) GetInt(key string) int                { return c.v.GetInt(key) }
func (c *ViperConfig) GetBool(key string) bool              { return c.v.GetBool(key) }
func (c *ViperConfig) GetFloat64(key string) float64        { return c.v.GetFloat64(key) }
func (c *ViperConfig) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }
func (c *ViperConfig) IsSet(key string) bool                { return c.v.IsSet(key) }

func (c *ViperConfig) GetStringMapString(key string) map[string]string {
	return c.v.GetStringMapString(key)
}

// Sub returns the section at key with defaults, file values, and
// environment overrides already resolved. Missing sections yield an empty
// config.
func (c *ViperConfig) Sub(key string) plugin.Config {
	sub := viper.New()
	prefix := strings.ToLower(key) + "."
	for _, k := range c.v.AllKeys() {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			sub.Set(rest, c.v.Get(k))
		}
	}
	return New(sub)
}

// Unmarshal decodes the whole configuration into target using mapstructure tags.
func (c *ViperConfig) Unmarshal(target any) error {
	return c.v.Unmarshal(target)
}

// Viper exposes the wrapped instance for callers that need raw access.
func (c *ViperConfig) Viper() *viper.Viper { return c.v }

// Load reads configuration from path, or from tvbridge.yaml in the working
// directory and /etc/tvbridge when path is empty. A missing default file is
// not an error; defaults and TVBRIDGE_* environment variables still apply.
func Load(path string) (*ViperConfig, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tvbridge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tvbridge")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return New(v), nil
}

// SetDefaults registers every default tvbridge relies on.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8470)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.path", "tvbridge.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("adb.path", "adb")

	v.SetDefault("modules.devices.enabled", true)
	v.SetDefault("modules.devices.defaults.port", 5555)
	v.SetDefault("modules.devices.defaults.timeout", "15s")
	v.SetDefault("modules.devices.defaults.scan_interval", "60s")
	v.SetDefault("modules.devices.defaults.info_interval", "15m")
	v.SetDefault("modules.devices.defaults.apps_interval", "1h")
	v.SetDefault("modules.devices.defaults.reconnect_threshold", 3)
	v.SetDefault("modules.devices.screenshots.dir", "screenshots")
	v.SetDefault("modules.devices.screenshots.retain", 10)
	v.SetDefault("modules.devices.rate_limit.rps", 5.0)
	v.SetDefault("modules.devices.rate_limit.burst", 10)

	v.SetDefault("modules.history.enabled", true)
	v.SetDefault("modules.history.retention", "720h")

	v.SetDefault("modules.mqtt.enabled", false)
	v.SetDefault("modules.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("modules.mqtt.client_id", "tvbridge")
	v.SetDefault("modules.mqtt.topic_prefix", "tvbridge")
	v.SetDefault("modules.mqtt.qos", 1)
}
