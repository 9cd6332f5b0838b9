package qualify

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livescout/internal/renderer"
	"livescout/internal/renderer/renderertest"
	"livescout/internal/store"
	logx "livescout/pkg/logx"
)

const portalURL = "https://backstage.test/invite"

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "scout.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// portalPage builds the invitation page: entry button, textarea, and a next
// button whose click reveals the given result rows.
func portalPage(rows ...string) *renderertest.Page {
	p := renderertest.NewPage()
	p.SetElements(addHostButton, renderertest.TextEl("Add Host"))
	p.SetElements(inviteTextarea, renderertest.TextEl(""))
	p.SetElements(nextButtonSelectors[0], renderertest.TextEl("다음"))
	p.OnClick = func(p *renderertest.Page, sel string) {
		if sel != nextButtonSelectors[0] {
			return
		}
		p.SetElements(resultsBody, renderertest.TextEl(""))
		els := make([]*renderertest.Element, len(rows))
		for i, r := range rows {
			els[i] = renderertest.TextEl(r)
		}
		p.SetElements(resultsRows, els...)
	}
	return p
}

func testCfg() Config {
	return Config{
		PortalURL:       portalURL,
		ResultTimeout:   50 * time.Millisecond,
		SelectorTimeout: 10 * time.Millisecond,
		NavTimeout:      time.Second,
	}
}

func seedPending(t *testing.T, st store.Store, ids ...string) {
	t.Helper()
	recs := make([]store.Candidate, len(ids))
	for i, id := range ids {
		recs[i] = store.Candidate{ID: id, Status: store.StatusPending, AddedAt: time.Now()}
	}
	require.NoError(t, st.UpsertCandidates(context.Background(), recs...))
}

func statusByID(t *testing.T, st store.Store) map[string]store.Candidate {
	t.Helper()
	all, err := st.Candidates(context.Background())
	require.NoError(t, err)
	out := map[string]store.Candidate{}
	for _, c := range all {
		out[c.ID] = c
	}
	return out
}

func TestMatcherClassifiesBatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := renderertest.New()
	f.AddPage(portalURL, portalPage(
		"kim.host  김호스트  사용 가능",
		"lee_live  이라이브  부적격",
	))

	st := newTestStore(t)
	seedPending(t, st, "kim.host", "lee_live", "parkq")

	stats, err := New(testCfg(), f, st, logx.Nop(), nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 1, stats.Batches)
	assert.Equal(t, 1, stats.Available)
	assert.Equal(t, 1, stats.Unavailable)
	assert.Equal(t, 1, stats.Unmatched)

	got := statusByID(t, st)
	assert.Equal(t, store.StatusAvailable, got["kim.host"].Status)
	assert.False(t, got["kim.host"].VerifiedAt.IsZero())
	assert.Equal(t, store.StatusUnavailable, got["lee_live"].Status)
	assert.Equal(t, "ineligible", got["lee_live"].Reason)
	// Ids the portal never echoed stay pending for the next run.
	assert.Equal(t, store.StatusPending, got["parkq"].Status)
}

func TestMatcherSubmitsNewlineJoinedBlock(t *testing.T) {
	t.Parallel()

	page := portalPage("a  사용 가능", "b  사용 가능")
	f := renderertest.New()
	f.AddPage(portalURL, page)

	st := newTestStore(t)
	seedPending(t, st, "a", "b")

	_, err := New(testCfg(), f, st, logx.Nop(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a\nb", page.Filled(inviteTextarea))
	assert.Contains(t, page.Clicks(), addHostButton)
}

func TestMatcherLoginRedirectAborts(t *testing.T) {
	t.Parallel()

	page := portalPage()
	page.Redirect = "https://backstage.test/login?next=invite"
	f := renderertest.New()
	f.AddPage(portalURL, page)

	st := newTestStore(t)
	seedPending(t, st, "x")

	_, err := New(testCfg(), f, st, logx.Nop(), nil).Run(context.Background())
	assert.ErrorIs(t, err, renderer.ErrNotAuthenticated)

	got := statusByID(t, st)
	assert.Equal(t, store.StatusPending, got["x"].Status)
}

func TestMatcherStructuralFailureNoPartialCommit(t *testing.T) {
	t.Parallel()

	// The next-button click reveals nothing, so the result wait times out.
	page := renderertest.NewPage()
	page.SetElements(addHostButton, renderertest.TextEl("Add Host"))
	page.SetElements(inviteTextarea, renderertest.TextEl(""))
	page.SetElements(nextButtonSelectors[0], renderertest.TextEl("Next"))

	f := renderertest.New()
	f.AddPage(portalURL, page)

	st := newTestStore(t)
	seedPending(t, st, "x", "y")

	stats, err := New(testCfg(), f, st, logx.Nop(), nil).Run(context.Background())
	require.Error(t, err)
	var sErr *renderer.StructuralError
	assert.ErrorAs(t, err, &sErr)
	assert.Equal(t, 0, stats.Batches)

	got := statusByID(t, st)
	assert.Equal(t, store.StatusPending, got["x"].Status)
	assert.Equal(t, store.StatusPending, got["y"].Status)
}

func TestMatcherBatchesLargeQueues(t *testing.T) {
	t.Parallel()

	page := portalPage()
	var submits int
	page.OnClick = func(p *renderertest.Page, sel string) {
		if sel != nextButtonSelectors[0] {
			return
		}
		submits++
		p.SetElements(resultsBody, renderertest.TextEl(""))
		// Every submitted id comes back available; rows are keyed so any
		// batch split still attributes correctly.
		p.SetElements(resultsRows,
			renderertest.TextEl("c1 사용 가능"),
			renderertest.TextEl("c2 사용 가능"),
			renderertest.TextEl("c3 사용 가능"),
		)
	}
	f := renderertest.New()
	f.AddPage(portalURL, page)

	st := newTestStore(t)
	seedPending(t, st, "c1", "c2", "c3")

	cfg := testCfg()
	cfg.BatchMax = 2
	stats, err := New(cfg, f, st, logx.Nop(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Batches)
	assert.Equal(t, 2, submits)
	assert.Equal(t, 3, stats.Available)
}

func TestMatchIDPrefersLongestID(t *testing.T) {
	t.Parallel()

	ids := []string{"ann", "anna"}
	id, ok := matchID("anna  Example  부적격", ids)
	require.True(t, ok)
	assert.Equal(t, "anna", id)

	id, ok = matchID("ann  Example  사용 가능", ids)
	require.True(t, ok)
	assert.Equal(t, "ann", id)

	_, ok = matchID("totally unrelated row", ids)
	assert.False(t, ok)
}

func TestClassifyPrecedenceAndLocales(t *testing.T) {
	t.Parallel()
	cases := []struct {
		row  string
		want verdict
	}{
		{"계정 사용 가능", verdictAvailable},
		{"Account is available", verdictAvailable},
		{"부적격 계정", verdictIneligible},
		{"이미 에이전시에 바인딩됨", verdictBound},
		{"bound to another agency", verdictBound},
		{"자격 없음", verdictNotQualified},
		{"status: pending review", verdictUnknown},
		// Precedence: available wins when a row carries both.
		{"사용 가능 (이전: 부적격)", verdictAvailable},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classify(tc.row), tc.row)
	}
}
