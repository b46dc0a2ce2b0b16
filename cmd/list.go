package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"serial-logterm/pkg/serial"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
)

var (
	listDetails bool
	listFormat  string

	// listPorts enumerates ports with USB details.
	listPorts = serial.GetDetailedPortsList
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available serial ports",
	Long: `List all available serial ports on the system.

This command scans the system for available serial ports and displays
them in a formatted list. On different platforms:
  - Windows: Lists COM ports
  - Linux: Lists /dev/tty* devices
  - macOS: Lists /dev/cu.* and /dev/tty.* devices`,
	Aliases: []string{"ls", "ports"},
	Args:    cobra.NoArgs,
	RunE:    runList,
}

func init() {
	listCmd.Flags().BoolVarP(&listDetails, "details", "d", false, "show detailed port information")
	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table, csv, json)")
}

func runList(cmd *cobra.Command, _ []string) error {
	portInfos, err := listPorts()
	if err != nil {
		return fmt.Errorf("error listing ports: %w", err)
	}

	out := cmd.OutOrStdout()
	switch listFormat {
	case "csv":
		return printPortsCSV(out, portInfos)
	case "json":
		return printPortsJSON(out, portInfos)
	case "table":
		printPortsTable(out, portInfos)
		return nil
	default:
		return fmt.Errorf("unknown format %q", listFormat)
	}
}

func printPortsTable(out io.Writer, portInfos []serial.PortInfo) {
	if len(portInfos) == 0 {
		fmt.Fprintln(out, "No serial ports found.")
		return
	}
	fmt.Fprintf(out, "Found %d serial port(s):\n", len(portInfos))

	for _, portInfo := range portInfos {
		fmt.Fprintf(out, "  %s", portInfo.Name)
		if listDetails && portInfo.IsUSB {
			fmt.Fprint(out, " [USB]")
			if portInfo.VID != "" || portInfo.PID != "" {
				fmt.Fprintf(out, " VID:%s PID:%s", portInfo.VID, portInfo.PID)
			}
			if portInfo.Product != "" {
				fmt.Fprintf(out, " - %s", portInfo.Product)
			}
			if portInfo.SerialNumber != "" {
				fmt.Fprintf(out, " (SN: %s)", portInfo.SerialNumber)
			}
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, "\nUse 'serial-logterm connect <port>' to connect, e.g. 'serial-logterm connect 3' for COM3.")
}

type portRow struct {
	Port string `csv:"port"`
}

type portDetailRow struct {
	Port         string `csv:"port"`
	IsUSB        bool   `csv:"is_usb"`
	VID          string `csv:"vid"`
	PID          string `csv:"pid"`
	Product      string `csv:"product"`
	SerialNumber string `csv:"serial_number"`
}

func printPortsCSV(out io.Writer, portInfos []serial.PortInfo) error {
	if listDetails {
		rows := make([]portDetailRow, 0, len(portInfos))
		for _, p := range portInfos {
			rows = append(rows, portDetailRow{
				Port:         p.Name,
				IsUSB:        p.IsUSB,
				VID:          p.VID,
				PID:          p.PID,
				Product:      p.Product,
				SerialNumber: p.SerialNumber,
			})
		}
		return gocsv.Marshal(rows, out)
	}

	rows := make([]portRow, 0, len(portInfos))
	for _, p := range portInfos {
		rows = append(rows, portRow{Port: p.Name})
	}
	return gocsv.Marshal(rows, out)
}

func printPortsJSON(out io.Writer, portInfos []serial.PortInfo) error {
	if portInfos == nil {
		portInfos = []serial.PortInfo{}
	}
	var v any = portInfos
	if !listDetails {
		names := make([]string, 0, len(portInfos))
		for _, p := range portInfos {
			names = append(names, p.Name)
		}
		v = names
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
