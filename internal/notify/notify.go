// Package notify pushes job results to the operator over Telegram. It is
// outbound-only: the bot never polls for commands, it just reports terminal
// job transitions picked up from the event bus.
package notify

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"livescout/internal/eventbus"
	"livescout/internal/store"
	logx "livescout/pkg/logx"
)

type Config struct {
	Enabled bool
	Token   string
	ChatID  int64
}

type Service struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	send func(text string) error

	mu      sync.Mutex
	unsub   func()
	running bool
	wg      sync.WaitGroup
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{cfg: cfg, log: log.With(logx.String("comp", "notify")), bus: bus}
	if !cfg.Enabled {
		return s, nil
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("notify: telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("notify: chat id is empty")
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	chat := tele.ChatID(cfg.ChatID)
	s.send = func(text string) error {
		_, err := bot.Send(chat, text)
		return err
	}
	return s, nil
}

// newWithSender wires a custom send func; used by tests.
func newWithSender(cfg Config, bus eventbus.Bus, send func(string) error, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log, bus: bus, send: send}
}

func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || !s.cfg.Enabled || s.bus == nil || s.send == nil {
		return
	}
	ch, unsub := s.bus.Subscribe(16)
	s.unsub = unsub
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for ev := range ch {
			if ev.Type != eventbus.TypeJobFinished {
				continue
			}
			rec, ok := ev.Data.(store.JobRecord)
			if !ok {
				continue
			}
			if err := s.send(formatJob(rec)); err != nil {
				s.log.Warn("telegram send failed", logx.String("job", rec.ID), logx.Err(err))
			}
		}
	}()
	s.log.Info("notify started", logx.Int64("chat_id", s.cfg.ChatID))
}

func (s *Service) Stop() {
	s.mu.Lock()
	unsub := s.unsub
	s.unsub = nil
	s.running = false
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	s.wg.Wait()
}

func formatJob(rec store.JobRecord) string {
	icon := "✅"
	if rec.Status != store.JobSuccess {
		icon = "❌"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s job %s", icon, rec.Kind, rec.Status)
	if !rec.StartedAt.IsZero() && !rec.FinishedAt.IsZero() {
		fmt.Fprintf(&b, " in %s", rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond))
	}
	if info := strings.TrimSpace(rec.ExitInfo); info != "" {
		if len(info) > 300 {
			info = truncate(info, 300) + "…"
		}
		fmt.Fprintf(&b, "\n%s", info)
	}
	return b.String()
}

// truncate cuts s to at most n bytes without splitting a rune; exit info
// often carries non-ASCII reason text.
func truncate(s string, n int) string {
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
