package config

import (
	"github.com/spf13/viper"

	"github.com/ardnew/usb2sock/bridge"
	"github.com/ardnew/usb2sock/fanout"
)

// Default values.
const (
	DefaultListen            = "127.0.0.1:18080"
	DefaultMetricsListen     = "127.0.0.1:9464"
	DefaultPyroscopeEndpoint = "http://localhost:4040"
	DefaultVendorID          = 0x2ca3
	DefaultProductID         = 0x001f
)

// DefaultProfileTypes are collected when Pyroscope is enabled.
var DefaultProfileTypes = []string{
	"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines",
}

// USB backends.
const (
	BackendLibusb = "libusb"
	BackendUsbfs  = "usbfs"
)

// defaults lists every key with its default value. Keys must be known to
// viper for environment overrides to reach Unmarshal.
var defaults = map[string]any{
	"listen":                DefaultListen,
	"backlog":               fanout.DefaultBacklog,
	"max_clients":           fanout.DefaultCapacity,
	"frame_size":            bridge.DefaultFrameSize,
	"usb.backend":           BackendLibusb,
	"usb.vendor_id":         DefaultVendorID,
	"usb.product_id":        DefaultProductID,
	"usb.configuration":     bridge.DefaultConfiguration,
	"usb.io_timeout_ms":     int(bridge.DefaultIOTimeout.Milliseconds()),
	"usb.handshake_timeout": bridge.DefaultHandshakeTimeout,
	"usb.handshake_token":   string(bridge.DefaultToken),
	"usb.debug":             bridge.DefaultDebug,
	"backoff.no_device":     bridge.DefaultBackoff,
	"backoff.no_signal":     bridge.DefaultBackoff,
	"hotplug":               true,
	"logging.level":         "warn",
	"logging.format":        "text",
	"metrics.enabled":       false,
	"metrics.listen":        DefaultMetricsListen,

	"profiling.cpu_profile":             "",
	"profiling.heap_profile":            "",
	"profiling.pprof":                   false,
	"profiling.pyroscope.enabled":       false,
	"profiling.pyroscope.endpoint":      DefaultPyroscopeEndpoint,
	"profiling.pyroscope.profile_types": DefaultProfileTypes,
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"listen":        "listen",
	"max-clients":   "max_clients",
	"usb-backend":   "usb.backend",
	"vendor-id":     "usb.vendor_id",
	"product-id":    "usb.product_id",
	"io-timeout-ms": "usb.io_timeout_ms",
	"usb-debug":     "usb.debug",
	"hotplug":       "hotplug",
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"metrics":       "metrics.enabled",
	"metrics-addr":  "metrics.listen",
	"cpu-profile":   "profiling.cpu_profile",
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Default returns the configuration with every key at its default. No
// file or environment is consulted.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic("config: invalid defaults: " + err.Error())
	}
	return cfg
}
