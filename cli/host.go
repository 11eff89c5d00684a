package main

import (
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"PhotoTransfer/internal/backend"
	"PhotoTransfer/internal/platform"
	"PhotoTransfer/pkg/engine"
)

func init() {
	destinationCmd.Flags().Bool("set", false, "store the --dest folder as the default (needs remember_settings)")
}

var prereqsCmd = &cobra.Command{
	Use:   "prereqs",
	Short: "Check the tools phone discovery relies on",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		report := backend.CheckPrereqs(backend.NewExecRunner(cfg.CommandTimeout()), cfg.Destination)
		if jsonOutput {
			NewJSONReporter(os.Stdout).Emit("prereqs", report)
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Check", "Status", "Details"})
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetAutoWrapText(false)
		for _, c := range report.Checks {
			table.Append([]string{c.Name, statusLabel(c.Status), c.Details})
		}
		table.Render()

		for _, c := range report.Checks {
			if c.Status == backend.StatusOK || len(c.RemediationSteps) == 0 {
				continue
			}
			fmt.Printf("\n%s\n", c.Name)
			for _, step := range c.RemediationSteps {
				fmt.Printf("  - %s\n", step)
			}
		}
		fmt.Printf("\nOverall: %s (%s)\n", statusLabel(report.OverallStatus), report.OS)
		return nil
	},
}

func statusLabel(status string) string {
	switch status {
	case backend.StatusOK:
		return colorOK(status)
	case backend.StatusWarn:
		return colorWarn(status)
	default:
		return colorFail(status)
	}
}

var destinationCmd = &cobra.Command{
	Use:   "destination",
	Short: "Print the folder transfers are copied to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if set, _ := cmd.Flags().GetBool("set"); set {
			if err := mgr.SetDestination(cfg.Destination); err != nil {
				return err
			}
			if !cfg.RememberSettings {
				log.Warn("remember_settings is off, the destination was not saved")
			}
		}
		if jsonOutput {
			NewJSONReporter(os.Stdout).Emit("destination", map[string]string{"path": cfg.Destination})
			return nil
		}
		fmt.Println(cfg.Destination)
		return nil
	},
}

var openCmd = &cobra.Command{
	Use:   "open [path]",
	Short: "Open a folder in the file manager (default: the destination)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path = cfg.Destination
		}
		return platform.OpenFolder(path)
	},
}

var hashCmd = &cobra.Command{
	Use:   "hash <file>...",
	Short: "Print the SHA-256 of files, as used to verify copies",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			sum, err := engine.HashFile(path)
			if err != nil {
				return err
			}
			if jsonOutput {
				NewJSONReporter(os.Stdout).Emit("hash", map[string]string{"path": path, "sha256": sum})
				continue
			}
			fmt.Printf("%s  %s\n", sum, path)
		}
		return nil
	},
}
