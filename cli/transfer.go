package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/caarlos0/ctrlc"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"PhotoTransfer/pkg/device"
	"PhotoTransfer/pkg/engine"
)

func init() {
	transferCmd.Flags().Bool("organize", false, "sort copies into YYYY/MM/DD folders by capture date")
	transferCmd.Flags().StringP("type", "t", "", "with no item ids, only copy 'photo' or 'video' items")
	viper.BindPFlag("organize_by_date", transferCmd.Flags().Lookup("organize"))
}

// reporter is the engine.Sink the transfer command renders progress with
type reporter interface {
	engine.Sink
	Finish(summary *engine.Summary, err error)
}

var transferCmd = &cobra.Command{
	Use:   "transfer <device-id> [item-id...]",
	Short: "Copy media from a phone",
	Long: `Copy media from a phone to the destination folder.

With no item ids every photo and video of the phone is copied. Files that
already exist at the destination are kept and the copy gets a numbered name.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		s.svc.ScanDevices(ctx)
		req := engine.Request{
			DeviceID:       args[0],
			ItemIDs:        args[1:],
			Destination:    s.cfg.Destination,
			OrganizeByDate: s.cfg.OrganizeByDate,
		}
		if len(req.ItemIDs) == 0 {
			items, err := s.svc.ListMedia(ctx, req.DeviceID)
			if err != nil {
				return err
			}
			kind, _ := cmd.Flags().GetString("type")
			req.ItemIDs = lo.Map(filterMedia(items, kind), func(item device.MediaItem, _ int) string {
				return item.ID
			})
		}

		var rep reporter
		if jsonOutput {
			jr := NewJSONReporter(os.Stdout)
			jr.Emit("start", req)
			rep = jr
		} else {
			fmt.Printf("Copying %d items from %s to %s\n", len(req.ItemIDs), req.DeviceID, req.Destination)
			rep = NewConsoleReporter(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
		}

		var (
			summary *engine.Summary
			runErr  error
		)
		done := make(chan struct{})
		if err := ctrlc.Default.Run(ctx, func() error {
			defer close(done)
			summary, runErr = s.svc.Transfer(ctx, req, rep)
			return runErr
		}); err != nil && errors.As(err, &ctrlc.ErrorCtrlC{}) {
			log.Warn("Stopping after the current item...")
			cancel()
			<-done
		}

		rep.Finish(summary, runErr)
		if runErr != nil {
			return errSilent
		}
		if summary.Failed > 0 {
			return fmt.Errorf("%d of %d items failed", summary.Failed, summary.Total)
		}
		return nil
	},
}

// errSilent fails the command after the reporter already explained why
var errSilent = errors.New("")
