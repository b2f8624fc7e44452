// Package config loads kiln configuration from configs/config.yml, KILN_*
// environment variables and the Settings table.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string

	DBPath        string
	DBBusyTimeout time.Duration

	SerialDevice string
	SerialBaud   int

	PVMargin          int
	Tick              time.Duration
	ResendAfter       time.Duration
	FiringLogInterval int // seconds
	IdleLogInterval   int // seconds

	SocketPath string
	StatusPath string

	HTTPPort     string
	MetricsPort  string
	CommandRPS   float64
	CommandBurst int
}

var defaults = map[string]any{
	"log.level":            "info",
	"db.path":              "kiln.db",
	"db.busy_timeout":      "1s",
	"serial.device":        "/dev/ttyUSB0",
	"serial.baud":          2400,
	"control.pv_margin":    5,
	"control.tick":         "1s",
	"control.resend_after": "2s",
	"log_interval.firing":  5,
	"log_interval.idle":    60,
	"ipc.socket":           "/run/kiln/control.sock",
	"ipc.status":           "/dev/shm/kiln_status",
	"http.port":            "8080",
	"http.command_rps":     1.0,
	"http.command_burst":   3,
	"metrics.port":         "9100",
}

// Load reads config.yml from the given search paths (configs and /etc/kiln
// when none are given). A missing file is not an error: defaults and the
// environment still apply.
func Load(v *viper.Viper, paths ...string) (Config, error) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	if len(paths) == 0 {
		paths = []string{"configs", "/etc/kiln"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("KILN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v), nil
}

// FromViper snapshots the current values of v.
func FromViper(v *viper.Viper) Config {
	return Config{
		LogLevel:          v.GetString("log.level"),
		DBPath:            v.GetString("db.path"),
		DBBusyTimeout:     v.GetDuration("db.busy_timeout"),
		SerialDevice:      v.GetString("serial.device"),
		SerialBaud:        v.GetInt("serial.baud"),
		PVMargin:          v.GetInt("control.pv_margin"),
		Tick:              v.GetDuration("control.tick"),
		ResendAfter:       v.GetDuration("control.resend_after"),
		FiringLogInterval: v.GetInt("log_interval.firing"),
		IdleLogInterval:   v.GetInt("log_interval.idle"),
		SocketPath:        v.GetString("ipc.socket"),
		StatusPath:        v.GetString("ipc.status"),
		HTTPPort:          v.GetString("http.port"),
		MetricsPort:       v.GetString("metrics.port"),
		CommandRPS:        v.GetFloat64("http.command_rps"),
		CommandBurst:      v.GetInt("http.command_burst"),
	}
}

// Settings table keys that override the file.
const (
	SettingDevice            = "device"
	SettingBaud              = "baud"
	SettingPVMargin          = "pv_margin"
	SettingFiringLogInterval = "firing_log_interval"
	SettingIdleLogInterval   = "idle_log_interval"
)

// ApplySettings overlays values from the Settings table. Unknown names are
// ignored; unparsable values are reported and leave the field unchanged.
func (c *Config) ApplySettings(settings map[string]string) error {
	var errs []error
	atoi := func(name string, dst *int) {
		raw, ok := settings[name]
		if !ok {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			errs = append(errs, fmt.Errorf("setting %s=%q: %w", name, raw, err))
			return
		}
		*dst = n
	}

	if d, ok := settings[SettingDevice]; ok && strings.TrimSpace(d) != "" {
		c.SerialDevice = strings.TrimSpace(d)
	}
	atoi(SettingBaud, &c.SerialBaud)
	atoi(SettingPVMargin, &c.PVMargin)
	atoi(SettingFiringLogInterval, &c.FiringLogInterval)
	atoi(SettingIdleLogInterval, &c.IdleLogInterval)
	return errors.Join(errs...)
}

// Watch calls onChange with a fresh snapshot whenever the config file changes.
func Watch(v *viper.Viper, onChange func(Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		onChange(FromViper(v))
	})
	v.WatchConfig()
}
