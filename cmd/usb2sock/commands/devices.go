package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ardnew/usb2sock/config"
	"github.com/ardnew/usb2sock/pkg"
	"github.com/ardnew/usb2sock/usb"
)

var devicesOutput string

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List attached USB devices",
	Long: `List attached USB devices and mark the configured streaming device.

For the streaming device, the configuration is read without changing it
and the streaming interface and bulk endpoints that would be used are
shown. No interface is claimed.`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

func init() {
	devicesCmd.Flags().StringVarP(&devicesOutput, "output", "o", "table", "output format: table, json, yaml")
}

// deviceRow is one listed device.
type deviceRow struct {
	Bus       int    `json:"bus" yaml:"bus"`
	Address   int    `json:"address" yaml:"address"`
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Target    bool   `json:"target" yaml:"target"`
	Interface *int   `json:"interface,omitempty" yaml:"interface,omitempty"`
	In        string `json:"in,omitempty" yaml:"in,omitempty"`
	Out       string `json:"out,omitempty" yaml:"out,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

type deviceList []deviceRow

func (l deviceList) Headers() []string {
	return []string{"Bus", "Addr", "ID", "Name", "Target", "Stream"}
}

func (l deviceList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, d := range l {
		target, stream := "", ""
		if d.Target {
			target = "*"
			switch {
			case d.Error != "":
				stream = d.Error
			case d.Interface != nil:
				stream = fmt.Sprintf("iface %d in %s out %s", *d.Interface, d.In, d.Out)
			}
		}
		rows = append(rows, []string{
			fmt.Sprintf("%03d", d.Bus),
			fmt.Sprintf("%03d", d.Address),
			d.ID,
			d.Name,
			target,
			stream,
		})
	}
	return rows
}

func runDevices(cmd *cobra.Command, _ []string) error {
	format, err := parseFormat(devicesOutput)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	tr, err := newTransport(cfg)
	if err != nil {
		return fmt.Errorf("usb backend %s: %w", cfg.USB.Backend, err)
	}
	defer tr.Close()

	list, err := listDevices(tr, cfg)
	if err != nil {
		return err
	}
	return printValue(cmd.OutOrStdout(), format, list)
}

// listDevices enumerates tr and inspects each device matching cfg.
func listDevices(tr usb.Transport, cfg *config.Config) (deviceList, error) {
	devs, err := tr.Devices()
	if err != nil && len(devs) == 0 {
		return nil, err
	}
	if err != nil {
		pkg.LogWarn(pkg.ComponentUSB, "device list incomplete", pkg.ErrorAttrs(err)...)
	}

	names := loadNames()
	id := cfg.Identity()

	list := make(deviceList, 0, len(devs))
	for _, dev := range devs {
		row := deviceRow{
			Bus:     dev.Bus,
			Address: dev.Address,
			ID:      fmt.Sprintf("%04x:%04x", dev.Vendor, dev.Product),
			Target:  id.Matches(dev),
		}
		if names != nil {
			row.Name = names.Describe(dev.Vendor, dev.Product)
		}
		if row.Target {
			inspect(tr, dev, cfg.USB.Configuration, &row)
		}
		list = append(list, row)
	}
	return list, nil
}

// inspect resolves the streaming endpoints of dev into row without
// changing the device's configuration.
func inspect(tr usb.Transport, dev usb.DeviceInfo, want int, row *deviceRow) {
	h, err := tr.Open(dev)
	if err != nil {
		row.Error = err.Error()
		return
	}
	defer h.Close()

	n, err := h.ActiveConfig()
	if err != nil || n == 0 {
		n = want
	}
	desc, err := h.ConfigDesc(n)
	if err != nil {
		row.Error = err.Error()
		return
	}
	ep, err := usb.ResolveEndpoints(desc)
	if err != nil {
		row.Error = err.Error()
		return
	}
	row.Interface = &ep.Interface
	row.In = fmt.Sprintf("0x%02x", uint8(ep.In.Address))
	row.Out = fmt.Sprintf("0x%02x", uint8(ep.Out.Address))
}
