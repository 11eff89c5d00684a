package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/apex/log"
	"github.com/caarlos0/ctrlc"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"PhotoTransfer/internal/adapters/api"
	"PhotoTransfer/internal/backend"
	"PhotoTransfer/internal/core"
)

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from config, 127.0.0.1:8484)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and event stream",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		defer s.Close()

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = s.cfg.APIAddr()
		}
		if !verbose {
			gin.SetMode(gin.ReleaseMode)
		}

		runner := backend.NewExecRunner(s.cfg.CommandTimeout())
		server := api.NewServer(addr, log.Log, s.svc,
			api.WithPrereqProvider(func(dest string) interface{} {
				return backend.CheckPrereqs(runner, dest)
			}),
			api.WithConfigProvider(func() interface{} {
				return s.cfg
			}),
			api.WithDestinationProvider(func() string {
				return s.cfg.Destination
			}),
		)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		s.svc.ScanDevices(ctx)
		if s.cfg.Watch.Enabled {
			go func() {
				if err := s.svc.Watch(ctx, core.WatchOptions{
					Interval: s.cfg.WatchInterval(),
					Paths:    backend.WatchPaths(),
				}); err != nil {
					log.WithError(err).Warn("[CLI] serve: device watcher stopped")
				}
			}()
		}

		err = ctrlc.Default.Run(ctx, func() error {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		server.Shutdown()
		if errors.As(err, &ctrlc.ErrorCtrlC{}) {
			return nil
		}
		return err
	},
}
