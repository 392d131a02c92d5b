package main

import (
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mmeshcher/shipper-client/internal/backend"
	"github.com/mmeshcher/shipper-client/internal/config"
	"github.com/mmeshcher/shipper-client/internal/logger"
	"github.com/mmeshcher/shipper-client/internal/orderfilter"
	"github.com/mmeshcher/shipper-client/internal/service"
	"github.com/mmeshcher/shipper-client/internal/session"
)

// app собирает зависимости команд после разбора флагов.
type app struct {
	cfg     *config.Config
	envFile string
	out     io.Writer

	logger  *zap.Logger
	store   session.Store
	svc     *service.Service
	closers []io.Closer
}

func newApp(out io.Writer) *app {
	return &app{
		cfg:    config.Default(),
		out:    out,
		logger: zap.NewNop(),
	}
}

func (a *app) init() error {
	if err := a.cfg.Resolve(a.envFile); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	log, err := logger.New(a.cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger initialization error: %w", err)
	}
	a.logger = log

	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}

	store, err := a.openStore()
	if err != nil {
		return fmt.Errorf("session store initialization error: %w", err)
	}
	a.store = store

	client := backend.NewClient(a.cfg.BackendURL, store, a.logger,
		backend.WithTimeout(a.cfg.RequestTimeout),
		backend.WithProbeTimeout(a.cfg.ProbeTimeout))
	a.svc = service.NewService(client, store, orderfilter.NewReconciler(loc, a.logger), a.logger)
	return nil
}

func (a *app) openStore() (session.Store, error) {
	if a.cfg.SessionStore == config.SessionStorePostgres {
		store, err := session.NewPostgresStore(a.cfg.DatabaseURI, a.cfg.InstallationID, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		return store, nil
	}
	return session.NewFileStore(a.cfg.SessionFile), nil
}

func (a *app) close() {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i].Close())
	}
	if err != nil {
		a.logger.Warn("close resources", zap.Error(err))
	}
	_ = a.logger.Sync()
}
