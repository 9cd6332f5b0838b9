// Package schedule runs the pipeline on a timer so pending candidates drain
// without operator action.
package schedule

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "livescout/pkg/logx"
)

type Config struct {
	Enabled bool
	// VerifyCron is the spec for periodic qualification runs. 5-field and
	// 6-field (seconds) specs plus @every descriptors are accepted.
	VerifyCron string
	// DiscoverCron optionally schedules discovery runs too.
	DiscoverCron string
	Timezone     string
}

// RunFunc launches one pipeline run; errors are logged, not propagated, since
// a failed scheduled run should not take the schedule down.
type RunFunc func(ctx context.Context) error

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	verify   RunFunc
	discover RunFunc

	parser cron.Parser
	c      *cron.Cron
}

func New(cfg Config, verify, discover RunFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg,
		log:      log.With(logx.String("comp", "schedule")),
		verify:   verify,
		discover: discover,
		parser:   cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Apply swaps config during hot reload; the cron instance restarts when any
// scheduling input changed.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.c != nil
	s.cfg = cfg
	s.mu.Unlock()

	if prev == cfg {
		return
	}
	if running {
		s.Stop(ctx)
	}
	if cfg.Enabled {
		s.Start(ctx)
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}

	loc := s.loadLocation()
	clog := cronLogger{s.log}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		// A slow run must never stack on top of itself.
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	entries := 0
	if spec := strings.TrimSpace(s.cfg.VerifyCron); spec != "" && s.verify != nil {
		if _, err := c.AddFunc(spec, s.wrap("verify", s.verify)); err != nil {
			s.log.Error("bad verify cron spec", logx.String("spec", spec), logx.Err(err))
		} else {
			entries++
		}
	}
	if spec := strings.TrimSpace(s.cfg.DiscoverCron); spec != "" && s.discover != nil {
		if _, err := c.AddFunc(spec, s.wrap("discover", s.discover)); err != nil {
			s.log.Error("bad discover cron spec", logx.String("spec", spec), logx.Err(err))
		} else {
			entries++
		}
	}
	if entries == 0 {
		s.log.Warn("schedule enabled but no valid cron specs")
		return
	}

	c.Start()
	s.c = c
	s.log.Info("schedule started", logx.Int("entries", entries), logx.String("tz", loc.String()))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
		s.log.Info("schedule stopped")
	case <-ctx.Done():
	}
}

func (s *Service) wrap(name string, fn RunFunc) func() {
	return func() {
		start := time.Now()
		s.log.Info("scheduled run starting", logx.String("run", name))
		if err := fn(context.Background()); err != nil {
			s.log.Error("scheduled run failed", logx.String("run", name), logx.Err(err))
			return
		}
		s.log.Info("scheduled run finished", logx.String("run", name), logx.Duration("dur", time.Since(start)))
	}
}

func (s *Service) loadLocation() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("unknown timezone, using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// cronLogger adapts logx to cron's logging interface.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug(msg, logx.Any("detail", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error(msg, logx.Err(err), logx.Any("detail", kv))
}
