package discovery

import (
	"context"
	"regexp"
	"strings"
	"time"

	"livescout/internal/renderer"
	logx "livescout/pkg/logx"
)

// handleRe pulls the account handle out of profile and live links.
var handleRe = regexp.MustCompile(`/@([^/?#]+)`)

// builtin reserved routes that render as /@-style links but are not accounts.
var builtinDenylist = map[string]bool{
	"live":      true,
	"foryou":    true,
	"following": true,
	"explore":   true,
}

// seed walks the configured feeds, scrolling and harvesting handles until
// the seed cap is reached. A feed that fails to load is skipped; ordering of
// first sight is preserved so the detail phase processes the freshest live
// accounts first.
func (p *Pool) seed(ctx context.Context, sess renderer.Session) ([]string, error) {
	cfg := p.cfg
	deny := make(map[string]bool, len(cfg.Denylist))
	for _, d := range cfg.Denylist {
		deny[strings.ToLower(strings.TrimSpace(d))] = true
	}

	var order []string

feeds:
	for _, feed := range cfg.Feeds {
		if err := ctx.Err(); err != nil {
			return order, err
		}
		page, err := sess.Navigate(ctx, feed, cfg.NavTimeout)
		if err != nil {
			p.log.Warn("feed navigation failed; skipping", logx.String("feed", feed), logx.Err(err))
			continue
		}
		p.log.Debug("seeding feed", logx.String("feed", feed))

		for round := 0; round < cfg.ScrollRounds; round++ {
			if err := ctx.Err(); err != nil {
				return order, err
			}
			if err := page.ScrollToBottom(ctx); err != nil {
				p.log.Debug("scroll failed", logx.String("feed", feed), logx.Err(err))
				break
			}
			sleep(ctx, cfg.ScrollPause)

			links, err := page.QueryAll(ctx, "a")
			if err != nil {
				p.log.Debug("link query failed", logx.String("feed", feed), logx.Err(err))
				continue
			}
			for _, el := range links {
				href, err := el.Attribute(ctx, "href")
				if err != nil || href == "" {
					continue
				}
				id, ok := extractHandle(href)
				if !ok || !p.admit(id, deny) {
					continue
				}
				order = append(order, id)
				if len(order) >= cfg.SeedCap {
					break feeds
				}
			}
		}
	}

	if len(order) > cfg.TargetCount {
		order = order[:cfg.TargetCount]
	}
	return order, nil
}

func extractHandle(href string) (string, bool) {
	m := handleRe.FindStringSubmatch(href)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// admit applies dedup and the denylist. The dedup set lives on the Pool
// instance, scoped to one run; it is not process state.
func (p *Pool) admit(id string, deny map[string]bool) bool {
	lower := strings.ToLower(id)
	if builtinDenylist[lower] || deny[lower] {
		return false
	}
	// Official platform accounts and auto-generated handles are never
	// outreach targets.
	if strings.Contains(lower, "tiktok") || strings.HasPrefix(lower, "user") {
		return false
	}
	if _, dup := p.seen[id]; dup {
		return false
	}
	p.seen[id] = struct{}{}
	return true
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
