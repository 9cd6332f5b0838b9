package discovery

import (
	"errors"
	"time"
)

// ErrNoCandidates is the terminal error for a run whose seed phase collected
// nothing: every feed failed or yielded only denylisted handles.
var ErrNoCandidates = errors.New("discovery: no candidates collected")

// Config tunes one discovery run.
type Config struct {
	// Feeds are the live-feed category URLs scanned during seeding.
	Feeds []string
	// TargetCount caps how many seeded handles go to the detail phase.
	TargetCount int
	// Concurrency is the detail-phase worker count. Each worker owns an
	// isolated rendering session.
	Concurrency int
	// FollowerThreshold rejects candidates below this parsed follower count.
	FollowerThreshold int64

	ScrollRounds int
	ScrollPause  time.Duration
	// SeedCap stops seeding (per feed and globally) once this many unique
	// handles are collected.
	SeedCap int
	// Denylist adds reserved handles on top of the built-in ones.
	Denylist []string

	ProfileURLFormat string

	NavTimeout      time.Duration
	SelectorTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.TargetCount <= 0 {
		c.TargetCount = 30
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.ScrollRounds <= 0 {
		c.ScrollRounds = 10
	}
	if c.ScrollPause <= 0 {
		c.ScrollPause = 1500 * time.Millisecond
	}
	if c.SeedCap <= 0 {
		c.SeedCap = 50
	}
	if c.ProfileURLFormat == "" {
		c.ProfileURLFormat = "https://www.tiktok.com/@%s"
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.SelectorTimeout <= 0 {
		c.SelectorTimeout = 3 * time.Second
	}
	return c
}

// Stats summarizes one run for the job record and operator logs.
type Stats struct {
	Seeded   int `json:"seeded"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed"`
}
