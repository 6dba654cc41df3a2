// Package commands implements the usb2sock command line.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ardnew/usb2sock/config"
	"github.com/ardnew/usb2sock/pkg"
	"github.com/ardnew/usb2sock/usb"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd runs the bridge when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "usb2sock",
	Short: "Bridge a USB bulk video stream to TCP clients",
	Long: `usb2sock reads the video stream of an attached USB device over its bulk
endpoints and writes every byte, unmodified, to each connected TCP client.

Point a player at the listen address, e.g. in VLC open the network stream
tcp/h264://127.0.0.1:18080. Clients stay connected while the device is
unplugged and replugged.

Use "usb2sock [command] --help" for more information about a command.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
	RunE:              runBridge,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/usb2sock/config.yaml)")
	pf.String("usb-backend", config.BackendLibusb, "USB transport: libusb, usbfs")
	pf.Uint16("vendor-id", config.DefaultVendorID, "USB vendor ID of the streaming device")
	pf.Uint16("product-id", config.DefaultProductID, "USB product ID of the streaming device")
	pf.Int("usb-debug", 2, "libusb log level, 0 (none) to 4 (debug)")
	pf.String("log-level", "warn", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text, json")

	f := rootCmd.Flags()
	f.String("listen", config.DefaultListen, "TCP listen address")
	f.Int("max-clients", 1024, "maximum number of connected clients")
	f.Int("io-timeout-ms", 250, "bulk read timeout in milliseconds")
	f.Bool("hotplug", true, "use kernel hotplug notifications to cut reconnect latency")
	f.Bool("metrics", false, "serve Prometheus metrics")
	f.String("metrics-addr", config.DefaultMetricsListen, "Prometheus metrics listen address")
	f.String("cpu-profile", "", "write a CPU profile to this file")

	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads configuration with cmd's flags bound on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newTransport opens the configured USB backend.
func newTransport(cfg *config.Config) (usb.Transport, error) {
	if cfg.USB.Backend == config.BackendUsbfs {
		return usb.NewUsbfs(cfg.USB.Debug)
	}
	tr, err := usb.NewGoUSB(cfg.USB.Debug)
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// setupLogging applies the logging section before any command runs.
func setupLogging(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	level, err := pkg.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	format, err := pkg.ParseLogFormat(cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("logging.format: %w", err)
	}
	pkg.SetLogLevel(level)
	pkg.SetLogFormat(format)
	return nil
}
