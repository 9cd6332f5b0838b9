package discovery

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livescout/internal/renderer"
	"livescout/internal/renderer/renderertest"
	"livescout/internal/store"
	logx "livescout/pkg/logx"
)

// seedOnlyRenderer serves the first session (seeding) normally and refuses
// every later one, simulating a browser that dies after the feed walk.
type seedOnlyRenderer struct {
	renderer.Renderer
	opened atomic.Int32
}

func (r *seedOnlyRenderer) NewSession(ctx context.Context) (renderer.Session, error) {
	if r.opened.Add(1) > 1 {
		return nil, errors.New("browser gone")
	}
	return r.Renderer.NewSession(ctx)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "scout.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func feedPage(handles ...string) *renderertest.Page {
	p := renderertest.NewPage()
	els := make([]*renderertest.Element, 0, len(handles))
	for _, h := range handles {
		els = append(els, renderertest.Link("https://www.tiktok.com/@"+h+"/live"))
	}
	p.SetElements("a", els...)
	return p
}

func profilePage(nickname, followers, likes string) *renderertest.Page {
	p := renderertest.NewPage()
	if nickname != "" {
		p.SetElements(`[data-e2e="user-subtitle"]`, renderertest.TextEl(nickname))
	}
	p.SetElements(`[data-e2e="followers-count"]`, renderertest.TextEl(followers))
	p.SetElements(`[data-e2e="likes-count"]`, renderertest.TextEl(likes))
	return p
}

func testConfig(feed string) Config {
	return Config{
		Feeds:             []string{feed},
		FollowerThreshold: 100,
		ScrollRounds:      1,
		ScrollPause:       time.Millisecond,
		SelectorTimeout:   10 * time.Millisecond,
		NavTimeout:        time.Second,
	}
}

func TestPoolThresholdFilter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := renderertest.New()
	f.AddPage("https://www.tiktok.com/live", feedPage("anna", "bert", "cleo"))
	f.AddPage("https://www.tiktok.com/@anna", profilePage("Anna", "200", "1.2K"))
	f.AddPage("https://www.tiktok.com/@bert", profilePage("Bert", "50", "300"))
	f.AddPage("https://www.tiktok.com/@cleo", profilePage("Cleo", "-", "-"))

	st := newTestStore(t)
	pool := New(testConfig("https://www.tiktok.com/live"), f, st, logx.Nop(), nil)

	stats, err := pool.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Seeded)
	assert.Equal(t, 1, stats.Accepted)
	assert.Equal(t, 2, stats.Rejected)
	assert.Equal(t, 0, stats.Failed)

	got, err := store.CandidatesByStatus(ctx, st, store.StatusPending)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "anna", got[0].ID)
	assert.Equal(t, "Anna", got[0].Nickname)
	assert.Equal(t, int64(200), got[0].Followers)
	assert.Equal(t, int64(1200), got[0].Likes)
	assert.False(t, got[0].AddedAt.IsZero())
}

func TestPoolFetchFailureDoesNotStopOthers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := renderertest.New()
	f.AddPage("https://www.tiktok.com/live", feedPage("good1", "broken", "good2"))
	f.AddPage("https://www.tiktok.com/@good1", profilePage("One", "5K", "10K"))
	f.AddPage("https://www.tiktok.com/@good2", profilePage("Two", "3.5K", "8K"))
	f.FailNavigation("https://www.tiktok.com/@broken", errors.New("net::ERR_CONNECTION_RESET"))

	st := newTestStore(t)
	pool := New(testConfig("https://www.tiktok.com/live"), f, st, logx.Nop(), nil)

	stats, err := pool.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Accepted)
	assert.Equal(t, 1, stats.Failed)

	got, err := store.CandidatesByStatus(ctx, st, store.StatusPending)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestPoolNoCandidates(t *testing.T) {
	t.Parallel()

	f := renderertest.New()
	f.AddPage("https://www.tiktok.com/live", renderertest.NewPage())

	pool := New(testConfig("https://www.tiktok.com/live"), f, newTestStore(t), logx.Nop(), nil)
	_, err := pool.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestPoolMissingNicknameFallsBackToHandle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := renderertest.New()
	f.AddPage("https://www.tiktok.com/live", feedPage("noname"))
	f.AddPage("https://www.tiktok.com/@noname", profilePage("", "1M", "2M"))

	st := newTestStore(t)
	pool := New(testConfig("https://www.tiktok.com/live"), f, st, logx.Nop(), nil)

	_, err := pool.Run(ctx)
	require.NoError(t, err)

	got, err := st.Candidates(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "noname", got[0].Nickname)
}

func TestPoolEachWorkerOwnsASession(t *testing.T) {
	t.Parallel()

	f := renderertest.New()
	f.AddPage("https://www.tiktok.com/live", feedPage("h1", "h2", "h3", "h4"))
	for _, h := range []string{"h1", "h2", "h3", "h4"} {
		f.AddPage("https://www.tiktok.com/@"+h, profilePage(h, "1K", "1K"))
	}

	cfg := testConfig("https://www.tiktok.com/live")
	cfg.Concurrency = 2
	pool := New(cfg, f, newTestStore(t), logx.Nop(), nil)

	_, err := pool.Run(context.Background())
	require.NoError(t, err)

	// One seed session plus one per worker.
	assert.Equal(t, 3, f.Sessions())
}

func TestPoolAllWorkerSessionsFailIsAnError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := renderertest.New()
	f.AddPage("https://www.tiktok.com/live", feedPage("h1", "h2", "h3"))

	cfg := testConfig("https://www.tiktok.com/live")
	cfg.Concurrency = 2
	st := newTestStore(t)
	pool := New(cfg, &seedOnlyRenderer{Renderer: f}, st, logx.Nop(), nil)

	stats, err := pool.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser gone")

	// Every seeded handle is accounted for as failed, none silently dropped.
	assert.Equal(t, 3, stats.Seeded)
	assert.Equal(t, 0, stats.Accepted)
	assert.Equal(t, 3, stats.Failed)

	got, err := st.Candidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
