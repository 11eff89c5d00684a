package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/briandowns/spinner"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"PhotoTransfer/pkg/device"
)

var mediaType string

func init() {
	mediaCmd.Flags().StringVarP(&mediaType, "type", "t", "", "only list 'photo' or 'video' items")
}

var devicesCmd = &cobra.Command{
	Use:     "devices",
	Aliases: []string{"ls"},
	Short:   "List attached phones",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		defer s.Close()

		stop := startSpinner("Scanning for devices... ")
		devices := s.svc.ScanDevices(cmd.Context())
		stop()
		if jsonOutput {
			NewJSONReporter(os.Stdout).Emit("devices", devices)
			return nil
		}
		if len(devices) == 0 {
			fmt.Println(colorWarn("No devices found."), "Run 'phototransfer prereqs' to check the required tools.")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"ID", "Name", "Type", "Manufacturer", "Storage", "Photos"})
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, d := range devices {
			table.Append([]string{d.ID, d.Name, string(d.Type), d.Manufacturer, storage(d), photoCount(d)})
		}
		table.Render()
		return nil
	},
}

var mediaCmd = &cobra.Command{
	Use:   "media <device-id>",
	Short: "List the photos and videos of a phone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		defer s.Close()

		stop := startSpinner("Reading media... ")
		s.svc.ScanDevices(cmd.Context())
		items, err := s.svc.ListMedia(cmd.Context(), args[0])
		stop()
		if err != nil {
			return err
		}
		items = filterMedia(items, mediaType)

		if jsonOutput {
			NewJSONReporter(os.Stdout).Emit("media", items)
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"ID", "Name", "Type", "Size", "Date"})
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, item := range items {
			table.Append([]string{item.ID, item.Name, string(item.Type), humanize.Bytes(item.Size), item.Date})
		}
		table.SetFooter([]string{"", strconv.Itoa(len(items)) + " items", "", humanize.Bytes(totalSize(items)), ""})
		table.Render()
		return nil
	},
}

// startSpinner shows a spinner on stderr while a slow listing runs. It is a
// no-op for JSON output and when stderr is not a terminal.
func startSpinner(msg string) (stop func()) {
	if jsonOutput || !term.IsTerminal(int(os.Stderr.Fd())) {
		return func() {}
	}
	sp := spinner.New(spinner.CharSets[38], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	sp.Prefix = color.BlueString("   • " + msg)
	sp.Start()
	return sp.Stop
}

func filterMedia(items []device.MediaItem, kind string) []device.MediaItem {
	if kind == "" {
		return items
	}
	return lo.Filter(items, func(item device.MediaItem, _ int) bool {
		return string(item.Type) == kind
	})
}

func totalSize(items []device.MediaItem) uint64 {
	return lo.SumBy(items, func(item device.MediaItem) uint64 { return item.Size })
}

func storage(d device.Device) string {
	if d.StorageTotal == 0 {
		return "-"
	}
	return humanize.Bytes(d.StorageUsed) + " / " + humanize.Bytes(d.StorageTotal)
}

func photoCount(d device.Device) string {
	if d.PhotoCount == 0 {
		return "-"
	}
	return strconv.FormatUint(uint64(d.PhotoCount), 10)
}
