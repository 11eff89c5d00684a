package main

import (
	"github.com/apex/log"

	"PhotoTransfer/internal/backend"
	"PhotoTransfer/internal/config"
	"PhotoTransfer/internal/core"
)

// session holds what one command invocation works with
type session struct {
	mgr *config.Manager
	cfg *config.Config
	svc *core.Service
}

func newSession() (*session, error) {
	mgr, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	composite, err := backend.Build(cfg.BackendOptions(log.Log))
	if err != nil {
		return nil, err
	}
	svc, err := core.NewService(composite, core.Options{
		CacheSize: cfg.Cache.MaxDevices,
		Logger:    log.Log,
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"config":   mgr.Path(),
		"backends": cfg.Backends,
		"demo":     cfg.Demo,
	}).Debug("[CLI] session ready")
	return &session{mgr: mgr, cfg: cfg, svc: svc}, nil
}

func (s *session) Close() {
	s.svc.Close()
}
