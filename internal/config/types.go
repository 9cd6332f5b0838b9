package config

import (
	logx "livescout/pkg/logx"
)

// Config is the whole daemon configuration.
//
// Duration-valued fields are strings ("30s", "5m") parsed with
// ParseDurationField so a bad value is reported with its config path.
type Config struct {
	Logging   logx.Config     `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Renderer  RendererConfig  `json:"renderer"`
	Discovery DiscoveryConfig `json:"discovery"`
	Qualify   QualifyConfig   `json:"qualify"`
	Outreach  OutreachConfig  `json:"outreach"`
	Jobs      JobsConfig      `json:"jobs"`
	Server    ServerConfig    `json:"server"`
	Schedule  ScheduleConfig  `json:"schedule"`
	Notify    NotifyConfig    `json:"notify"`
}

// StorageConfig selects the persistence driver.
//
// Driver values:
//   - "file": JSON snapshot files, merge-then-atomic-rename
//   - "sqlite": SQLite database file
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"`
}

// RendererConfig bounds the waits of the browser-automation collaborator.
// The engine itself is supplied by the embedding binary.
type RendererConfig struct {
	NavTimeout      string `json:"nav_timeout"`
	SelectorTimeout string `json:"selector_timeout"`
}

type DiscoveryConfig struct {
	Feeds             []string `json:"feeds"`
	TargetCount       int      `json:"target_count"`
	Concurrency       int      `json:"concurrency"`
	FollowerThreshold int64    `json:"follower_threshold"`
	ScrollRounds      int      `json:"scroll_rounds"`
	ScrollPause       string   `json:"scroll_pause"`
	SeedCap           int      `json:"seed_cap"`
	Denylist          []string `json:"denylist"`
}

type QualifyConfig struct {
	PortalURL     string `json:"portal_url"`
	BatchMax      int    `json:"batch_max"`
	ResultTimeout string `json:"result_timeout"`
}

type OutreachConfig struct {
	Lang      string `json:"lang"`
	SendDelay string `json:"send_delay"`
	RetryMax  int    `json:"retry_max"`
}

type JobsConfig struct {
	Timeout string `json:"timeout"`
}

type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

type ScheduleConfig struct {
	Enabled      bool   `json:"enabled"`
	VerifyCron   string `json:"verify_cron"`
	DiscoverCron string `json:"discover_cron"`
	Timezone     string `json:"timezone"`
}

type NotifyConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
}
