package app

import (
	"context"
	"time"

	"livescout/internal/config"
	"livescout/internal/discovery"
	"livescout/internal/notify"
	"livescout/internal/outreach"
	"livescout/internal/qualify"
	"livescout/internal/schedule"
	"livescout/internal/server"
	"livescout/internal/store"
)

// The build funcs translate the string-duration config file into typed
// component configs. They double as the hot-reload validator: a config
// revision that fails any of them is rejected before commit.

func buildStore(cfg *config.Config) (store.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return store.Config{}, err
	}
	path := cfg.Storage.Path
	if path == "" {
		path = "livescout.db"
	}
	return store.Config{Driver: cfg.Storage.Driver, Path: path, BusyTimeout: busy}, nil
}

func buildRendererTimeouts(cfg *config.Config) (nav, sel time.Duration, err error) {
	nav, err = config.ParseDurationOrDefault("renderer.nav_timeout", cfg.Renderer.NavTimeout, 30*time.Second)
	if err != nil {
		return 0, 0, err
	}
	sel, err = config.ParseDurationOrDefault("renderer.selector_timeout", cfg.Renderer.SelectorTimeout, 3*time.Second)
	if err != nil {
		return 0, 0, err
	}
	return nav, sel, nil
}

func buildDiscovery(cfg *config.Config) (discovery.Config, error) {
	nav, sel, err := buildRendererTimeouts(cfg)
	if err != nil {
		return discovery.Config{}, err
	}
	pause, err := config.ParseDurationField("discovery.scroll_pause", cfg.Discovery.ScrollPause)
	if err != nil {
		return discovery.Config{}, err
	}
	return discovery.Config{
		Feeds:             cfg.Discovery.Feeds,
		TargetCount:       cfg.Discovery.TargetCount,
		Concurrency:       cfg.Discovery.Concurrency,
		FollowerThreshold: cfg.Discovery.FollowerThreshold,
		ScrollRounds:      cfg.Discovery.ScrollRounds,
		ScrollPause:       pause,
		SeedCap:           cfg.Discovery.SeedCap,
		Denylist:          cfg.Discovery.Denylist,
		NavTimeout:        nav,
		SelectorTimeout:   sel,
	}, nil
}

func buildQualify(cfg *config.Config) (qualify.Config, error) {
	nav, sel, err := buildRendererTimeouts(cfg)
	if err != nil {
		return qualify.Config{}, err
	}
	result, err := config.ParseDurationField("qualify.result_timeout", cfg.Qualify.ResultTimeout)
	if err != nil {
		return qualify.Config{}, err
	}
	return qualify.Config{
		PortalURL:       cfg.Qualify.PortalURL,
		BatchMax:        cfg.Qualify.BatchMax,
		ResultTimeout:   result,
		NavTimeout:      nav,
		SelectorTimeout: sel,
	}, nil
}

func buildOutreach(cfg *config.Config) (outreach.Config, error) {
	nav, sel, err := buildRendererTimeouts(cfg)
	if err != nil {
		return outreach.Config{}, err
	}
	delay, err := config.ParseDurationField("outreach.send_delay", cfg.Outreach.SendDelay)
	if err != nil {
		return outreach.Config{}, err
	}
	return outreach.Config{
		Lang:            cfg.Outreach.Lang,
		SendDelay:       delay,
		RetryMax:        cfg.Outreach.RetryMax,
		NavTimeout:      nav,
		SelectorTimeout: sel,
	}, nil
}

func buildJobTimeout(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("jobs.timeout", cfg.Jobs.Timeout, 10*time.Minute)
}

func buildServer(cfg *config.Config) server.Config {
	return server.Config{
		Enabled: cfg.Server.Enabled,
		Address: cfg.Server.Address,
	}
}

func buildSchedule(cfg *config.Config) schedule.Config {
	return schedule.Config{
		Enabled:      cfg.Schedule.Enabled,
		VerifyCron:   cfg.Schedule.VerifyCron,
		DiscoverCron: cfg.Schedule.DiscoverCron,
		Timezone:     cfg.Schedule.Timezone,
	}
}

func buildNotify(cfg *config.Config) notify.Config {
	return notify.Config{
		Enabled: cfg.Notify.Enabled,
		Token:   cfg.Notify.Token,
		ChatID:  cfg.Notify.ChatID,
	}
}

// validate is installed as the config manager's hot-reload validator.
func validate(ctx context.Context, cfg *config.Config) error {
	if _, err := buildStore(cfg); err != nil {
		return err
	}
	if _, err := buildDiscovery(cfg); err != nil {
		return err
	}
	if _, err := buildQualify(cfg); err != nil {
		return err
	}
	if _, err := buildOutreach(cfg); err != nil {
		return err
	}
	if _, err := buildJobTimeout(cfg); err != nil {
		return err
	}
	return nil
}
