package app

import (
	"context"

	"livescout/internal/discovery"
	"livescout/internal/outreach"
	"livescout/internal/qualify"
	"livescout/internal/server"
	logx "livescout/pkg/logx"
)

// Pipeline entry points. Components are built per run from the live config so
// a hot reload takes effect on the next run without restarting anything.

func (a *App) runDiscover(ctx context.Context, req server.DiscoverRequest) (any, error) {
	cfg, err := buildDiscovery(a.mgr.Get())
	if err != nil {
		return nil, err
	}
	if req.TargetCount > 0 {
		cfg.TargetCount = req.TargetCount
	}
	if req.Concurrency > 0 {
		cfg.Concurrency = req.Concurrency
	}
	if req.FollowerThreshold > 0 {
		cfg.FollowerThreshold = req.FollowerThreshold
	}
	pool := discovery.New(cfg, a.r, a.st, a.log, a.bus)
	stats, err := pool.Run(ctx)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (a *App) runVerify(ctx context.Context) (any, error) {
	cfg, err := buildQualify(a.mgr.Get())
	if err != nil {
		return nil, err
	}
	stats, err := qualify.New(cfg, a.r, a.st, a.log, a.bus).Run(ctx)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (a *App) runOutreachOne(ctx context.Context, id, lang string) error {
	cfg, err := buildOutreach(a.mgr.Get())
	if err != nil {
		return err
	}
	return outreach.New(cfg, a.r, a.st, a.log, a.bus).Send(ctx, id, lang)
}

func (a *App) runOutreachBatch(ctx context.Context, lang string) (any, error) {
	cfg, err := buildOutreach(a.mgr.Get())
	if err != nil {
		return nil, err
	}
	stats, err := outreach.New(cfg, a.r, a.st, a.log, a.bus).SendBatch(ctx, lang)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Timer-driven runs submit tracked jobs, so they show up in the job listing
// exactly like API-driven ones.

func (a *App) scheduledVerify(ctx context.Context) error {
	rec, err := a.tracker.Submit(ctx, "verify", func(ctx context.Context) (any, error) {
		return a.runVerify(ctx)
	})
	if err != nil {
		return err
	}
	a.log.Debug("scheduled qualification submitted", logx.String("job", rec.ID))
	return nil
}

func (a *App) scheduledDiscover(ctx context.Context) error {
	rec, err := a.tracker.Submit(ctx, "discover", func(ctx context.Context) (any, error) {
		return a.runDiscover(ctx, server.DiscoverRequest{})
	})
	if err != nil {
		return err
	}
	a.log.Debug("scheduled discovery submitted", logx.String("job", rec.ID))
	return nil
}
