package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ardnew/usb2sock/bridge"
	"github.com/ardnew/usb2sock/pkg"
	"github.com/ardnew/usb2sock/usb"
)

// EnvPrefix prefixes every environment override, e.g. USB2SOCK_USB_DEBUG.
const EnvPrefix = "USB2SOCK"

// Config represents the usb2sock configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (USB2SOCK_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Listen is the TCP address clients connect to
	Listen string `mapstructure:"listen" validate:"required,hostname_port" yaml:"listen"`

	// Backlog is the listen queue length
	Backlog int `mapstructure:"backlog" validate:"gte=1,lte=4096" yaml:"backlog"`

	// MaxClients bounds the number of connected clients
	MaxClients int `mapstructure:"max_clients" validate:"gte=1,lte=65536" yaml:"max_clients"`

	// FrameSize is the bulk read buffer size in bytes
	FrameSize int `mapstructure:"frame_size" validate:"gte=512,lte=16777216" yaml:"frame_size"`

	// USB selects and drives the streaming device
	USB USBConfig `mapstructure:"usb" yaml:"usb"`

	// Backoff holds the fixed retry intervals
	Backoff BackoffConfig `mapstructure:"backoff" yaml:"backoff"`

	// Hotplug enables the kernel hotplug hint where available
	Hotplug bool `mapstructure:"hotplug" yaml:"hotplug"`

	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Profiling configures CPU, heap, pprof and Pyroscope profiling
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// USBConfig identifies the device and tunes its transfers.
type USBConfig struct {
	// Backend selects the transport: "libusb" (gousb) or "usbfs" (direct
	// kernel ioctls, Linux only)
	Backend string `mapstructure:"backend" validate:"oneof=libusb usbfs" yaml:"backend"`

	// VendorID and ProductID identify the device.
	// Hex strings ("0x2ca3") and integers are both accepted.
	VendorID  uint16 `mapstructure:"vendor_id" validate:"required" yaml:"vendor_id"`
	ProductID uint16 `mapstructure:"product_id" validate:"required" yaml:"product_id"`

	// Configuration is set when the device reports itself unconfigured
	Configuration int `mapstructure:"configuration" validate:"gte=1,lte=255" yaml:"configuration"`

	// IOTimeoutMS is the bulk read timeout in milliseconds
	IOTimeoutMS int `mapstructure:"io_timeout_ms" validate:"gte=1,lte=60000" yaml:"io_timeout_ms"`

	// HandshakeTimeout bounds the handshake write
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" validate:"gt=0" yaml:"handshake_timeout"`

	// HandshakeToken is written once per session to start the stream
	HandshakeToken string `mapstructure:"handshake_token" validate:"required,max=64" yaml:"handshake_token"`

	// Debug is the libusb log level, 0 (none) to 4 (debug).
	// LIBUSB_DEBUG in the environment takes precedence inside libusb.
	Debug int `mapstructure:"debug" validate:"gte=0,lte=4" yaml:"debug"`
}

// BackoffConfig holds the fixed waits between retries.
type BackoffConfig struct {
	// NoDevice is the wait between scans while no session is running
	NoDevice time.Duration `mapstructure:"no_device" validate:"gt=0" yaml:"no_device"`

	// NoSignal is the wait after a read that timed out with no data
	NoSignal time.Duration `mapstructure:"no_signal" validate:"gt=0" yaml:"no_signal"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: debug, info, warn, error (case-insensitive, normalized to lowercase)
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn warning error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
}

// MetricsConfig contains Prometheus metrics server configuration.
type MetricsConfig struct {
	// Enabled starts the /metrics endpoint
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Listen is the metrics HTTP address
	Listen string `mapstructure:"listen" validate:"required_if=Enabled true,omitempty,hostname_port" yaml:"listen"`
}

// ProfilingConfig controls runtime profiling. Everything is off by default.
type ProfilingConfig struct {
	// CPUProfile receives a CPU profile covering the whole run
	CPUProfile string `mapstructure:"cpu_profile" yaml:"cpu_profile"`

	// HeapProfile receives a heap snapshot at exit
	HeapProfile string `mapstructure:"heap_profile" yaml:"heap_profile"`

	// PProf mounts /debug/pprof on the metrics listener and requires
	// metrics.enabled
	PProf bool `mapstructure:"pprof" yaml:"pprof"`

	// Pyroscope pushes continuous profiles to a Pyroscope server
	Pyroscope PyroscopeConfig `mapstructure:"pyroscope" yaml:"pyroscope"`
}

// PyroscopeConfig configures continuous profiling.
type PyroscopeConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true,omitempty,url" yaml:"endpoint"`

	// ProfileTypes lists the profiles to collect
	ProfileTypes []string `mapstructure:"profile_types" validate:"dive,oneof=cpu alloc_objects alloc_space inuse_objects inuse_space goroutines mutex_count mutex_duration block_count block_duration" yaml:"profile_types"`
}

// Load loads configuration from defaults, file, environment, and flags.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//   - flags: Command-line flags to bind by key (nil for none)
//
// A missing config file is not an error.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if found {
		pkg.LogDebug(pkg.ComponentConfig, "config file loaded", "path", v.ConfigFileUsed())
	}

	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	return decode(v)
}

// decode unmarshals and validates the merged view of v.
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	cfg.USB.Backend = strings.ToLower(cfg.USB.Backend)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags and cross-field rules.
func Validate(cfg *Config) error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return err
	}
	if cfg.Profiling.PProf && !cfg.Metrics.Enabled {
		return errors.New("profiling.pprof requires metrics.enabled")
	}
	return nil
}

// BridgeOptions converts cfg into supervisor options.
func (c *Config) BridgeOptions() bridge.Options {
	return bridge.Options{
		Identity:         c.Identity(),
		Configuration:    c.USB.Configuration,
		FrameSize:        c.FrameSize,
		IOTimeout:        time.Duration(c.USB.IOTimeoutMS) * time.Millisecond,
		HandshakeTimeout: c.USB.HandshakeTimeout,
		Token:            []byte(c.USB.HandshakeToken),
		Debug:            c.USB.Debug,
		NoDeviceBackoff:  c.Backoff.NoDevice,
		NoSignalBackoff:  c.Backoff.NoSignal,
	}
}

// Identity returns the configured device identity.
func (c *Config) Identity() usb.Identity {
	return usb.Identity{Vendor: c.USB.VendorID, Product: c.USB.ProductID}
}

// SaveConfig writes cfg to path as YAML, creating the parent directory.
// An existing file is only replaced when force is set.
func SaveConfig(cfg *Config, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the USB2SOCK_ prefix and underscores
	// Example: USB2SOCK_USB_IO_TIMEOUT_MS=500
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	// Default location: $XDG_CONFIG_HOME/usb2sock/config.yaml
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// bindFlags binds each flag named in flagKeys to its config key.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		durationDecodeHook(),
	)
}

// durationDecodeHook converts bare numbers to time.Duration. Integers are
// taken as nanoseconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "usb2sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "usb2sock")
}
