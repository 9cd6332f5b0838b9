// Package app wires the daemon together: configuration with hot reload,
// logging, storage, the tracked pipeline runs, and the control-plane,
// schedule, and notification services.
package app

import (
	"context"
	"fmt"
	"sync"

	"livescout/internal/config"
	"livescout/internal/eventbus"
	"livescout/internal/jobs"
	"livescout/internal/notify"
	"livescout/internal/renderer"
	"livescout/internal/schedule"
	"livescout/internal/server"
	"livescout/internal/store"
	logx "livescout/pkg/logx"
)

type Options struct {
	ConfigPath string
	// Renderer is the browser-automation engine. When nil, pipeline runs
	// fail fast with a clear message; the API and stores still work.
	Renderer renderer.Renderer
}

type App struct {
	mgr    *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	st      store.Store
	bus     eventbus.Bus
	r       renderer.Renderer
	tracker *jobs.Tracker

	srv      *server.Service
	sched    *schedule.Service
	notifier *notify.Service

	cancelWatch context.CancelFunc
	wg          sync.WaitGroup
}

func New(opts Options) (*App, error) {
	mgr := config.NewManager(opts.ConfigPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validate(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logSvc, err := logx.NewService(cfg.Logging)
	if err != nil {
		return nil, err
	}
	log := logSvc.Logger()
	mgr.SetLogger(log.With(logx.String("comp", "config")))
	mgr.SetValidator(validate)

	stCfg, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(stCfg, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	r := opts.Renderer
	if r == nil {
		r = renderer.Unavailable("no engine linked into this binary")
	}

	jobTimeout, err := buildJobTimeout(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		mgr:    mgr,
		logSvc: logSvc,
		log:    log.With(logx.String("comp", "app")),
		st:     st,
		bus:    eventbus.New(),
		r:      r,
	}
	a.tracker = jobs.New(st, log, a.bus, jobTimeout)

	a.srv = server.New(buildServer(cfg), server.Deps{
		Jobs:          a.tracker,
		Store:         st,
		Discover:      a.runDiscover,
		Verify:        a.runVerify,
		OutreachOne:   a.runOutreachOne,
		OutreachBatch: a.runOutreachBatch,
	}, log)

	a.sched = schedule.New(buildSchedule(cfg), a.scheduledVerify, a.scheduledDiscover, log)

	a.notifier, err = notify.New(buildNotify(cfg), a.bus, log)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Store exposes persistence for embedding binaries.
func (a *App) Store() store.Store { return a.st }

// ServerAddr reports the control plane's bound address ("" when disabled).
func (a *App) ServerAddr() string { return a.srv.Addr() }

func (a *App) Start(ctx context.Context) error {
	// Jobs a previous process never finished can't finish now.
	if n, err := a.tracker.Recover(ctx); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	} else if n > 0 {
		a.log.Info("marked interrupted jobs", logx.Int("count", n))
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	a.cancelWatch = cancel
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.mgr.Watch(watchCtx)
	}()
	sub := a.mgr.Subscribe(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-watchCtx.Done():
				a.mgr.Unsubscribe(sub)
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(watchCtx, cfg)
			}
		}
	}()

	a.srv.Start(ctx)
	a.sched.Start(ctx)
	a.notifier.Start()

	sdNotifyReady(a.log)
	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) {
	sdNotifyStopping(a.log)

	if a.cancelWatch != nil {
		a.cancelWatch()
	}
	a.sched.Stop(ctx)
	a.srv.Stop(ctx)
	a.notifier.Stop()
	a.tracker.Close()
	a.wg.Wait()

	if err := a.st.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	a.log.Info("stopped")
	_ = a.logSvc.Close()
}

// applyConfig reacts to a hot reload. Storage driver changes need a restart;
// everything else reconfigures in place.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	if err := a.logSvc.Apply(cfg.Logging); err != nil {
		a.log.Warn("logging reconfigure failed", logx.Err(err))
	}
	a.srv.Reconfigure(ctx, buildServer(cfg))
	a.sched.Apply(ctx, buildSchedule(cfg))
	a.log.Info("configuration applied")
}
