package discovery

import (
	"context"
	"strings"
	"time"

	"livescout/internal/renderer"
)

// Profile page probes. The platform renames these attributes regularly, so
// each field carries an ordered fallback list: the first selector yielding a
// non-empty value wins, and a total miss leaves the default in place rather
// than failing the candidate.
var (
	nicknameSelectors = []string{
		`[data-e2e="user-subtitle"]`,
		`h1[data-e2e="user-title"]`,
		`h2[data-e2e="user-title"]`,
		`[data-e2e="user-page-nickname"]`,
	}
	followerSelectors = []string{
		`[data-e2e="followers-count"]`,
		`[data-e2e="followers"] strong`,
	}
	likeSelectors = []string{
		`[data-e2e="likes-count"]`,
		`[data-e2e="likes"] strong`,
	}
)

// firstText runs an ordered selector-fallback chain: try each selector under
// its own bounded wait, return the first non-empty text, or "" on total miss.
func firstText(ctx context.Context, page renderer.Page, selectors []string, timeout time.Duration) string {
	for _, sel := range selectors {
		if ctx.Err() != nil {
			return ""
		}
		el, err := page.WaitFor(ctx, sel, timeout)
		if err != nil {
			continue
		}
		txt, err := el.Text(ctx)
		if err != nil {
			continue
		}
		if s := strings.TrimSpace(txt); s != "" {
			return s
		}
	}
	return ""
}

// profileFields is the raw extraction result; counts stay strings here so
// the caller decides how "-" and other placeholders filter.
type profileFields struct {
	nickname  string
	followers string
	likes     string
}

func extractProfile(ctx context.Context, page renderer.Page, selTimeout time.Duration) profileFields {
	return profileFields{
		nickname:  firstText(ctx, page, nicknameSelectors, selTimeout),
		followers: firstText(ctx, page, followerSelectors, selTimeout),
		likes:     firstText(ctx, page, likeSelectors, selTimeout),
	}
}
