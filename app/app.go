package app

import (
	"context"
	"embed"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/multi"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"PhotoTransfer/app/services"
	"PhotoTransfer/internal/backend"
	"PhotoTransfer/internal/config"
	"PhotoTransfer/internal/core"
)

//go:embed all:frontend_dist
var assets embed.FS

// prereqInterval is how often the prerequisite checks rerun while the app is open
const prereqInterval = 30 * time.Second

// App struct holds the application state and services
type App struct {
	cancel          context.CancelFunc
	config          *config.Manager
	service         *core.Service
	deviceService   *services.DeviceService
	transferService *services.TransferService
	systemService   *services.SystemService
	configService   *services.ConfigService
	prereqService   *services.PrereqService
	logService      *services.LogService
	notifier        *services.Notifier
	logger          log.Interface
}

// NewApp wires the services around a core.Service built from the config file
// at configPath
func NewApp(configPath string) (*App, error) {
	logService := services.NewLogService()
	logger := &log.Logger{
		Handler: multi.New(cli.New(os.Stderr), logService),
		Level:   log.InfoLevel,
	}

	mgr := config.NewManager(configPath, logger)
	cfg := mgr.Get()
	composite, err := backend.Build(cfg.BackendOptions(logger))
	if err != nil {
		return nil, err
	}
	svc, err := core.NewService(composite, core.Options{
		CacheSize: cfg.Cache.MaxDevices,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	// Services are bound before OnStartup hands out the Wails context
	ctx := context.Background()
	return &App{
		config:          mgr,
		service:         svc,
		deviceService:   services.NewDeviceService(ctx, svc, logger),
		transferService: services.NewTransferService(ctx, svc, mgr, logger),
		systemService:   services.NewSystemService(logger),
		configService:   services.NewConfigService(mgr, logger),
		prereqService:   services.NewPrereqService(ctx, backend.NewExecRunner(cfg.CommandTimeout()), mgr, logger),
		logService:      logService,
		notifier:        services.NewNotifier(svc, mgr, logger),
		logger:          logger,
	}, nil
}

// OnStartup is called when the app starts
func (a *App) OnStartup(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.deviceService.SetContext(ctx)
	a.transferService.SetContext(ctx)
	a.prereqService.SetContext(ctx)
	a.logService.SetContext(ctx)
	a.logger.Info("[App] OnStartup: services initialized")

	go a.prereqService.Poll(runCtx, prereqInterval)

	cfg := a.config.Get()
	go func() {
		a.service.ScanDevices(runCtx)
		if !cfg.Watch.Enabled {
			return
		}
		if err := a.service.Watch(runCtx, core.WatchOptions{
			Interval: cfg.WatchInterval(),
			Paths:    backend.WatchPaths(),
		}); err != nil {
			a.logger.WithError(err).Warn("[App] OnStartup: device watcher stopped")
		}
	}()
}

// OnShutdown is called when the app is shutting down
func (a *App) OnShutdown(ctx context.Context) {
	a.logger.Info("[App] OnShutdown: shutting down...")
	if a.cancel != nil {
		a.cancel()
	}
	// Cancels any running transfer
	a.service.Close()
	a.logger.Info("[App] OnShutdown: shutdown complete")
}

// Run starts the Wails application
func Run(configPath string) error {
	a, err := NewApp(configPath)
	if err != nil {
		return err
	}

	return wails.Run(&options.App{
		Title:  "PhotoTransfer",
		Width:  1024,
		Height: 768,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 27, G: 38, B: 54, A: 1},
		OnStartup:        a.OnStartup,
		OnShutdown:       a.OnShutdown,
		Bind: []interface{}{
			a.deviceService,
			a.transferService,
			a.systemService,
			a.configService,
			a.prereqService,
			a.logService,
		},
	})
}
