package notify

import (
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livescout/internal/eventbus"
	"livescout/internal/store"
	logx "livescout/pkg/logx"
)

type capture struct {
	mu   sync.Mutex
	msgs []string
}

func (c *capture) send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, text)
	return nil
}

func (c *capture) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func TestNotifyReportsFinishedJobs(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	sink := &capture{}
	svc := newWithSender(Config{Enabled: true, ChatID: 42}, bus, sink.send, logx.Nop())
	svc.Start()
	defer svc.Stop()

	now := time.Now()
	bus.Publish(eventbus.Event{Type: eventbus.TypeJobStarted, Data: store.JobRecord{ID: "j1"}})
	bus.Publish(eventbus.Event{Type: eventbus.TypeJobFinished, Data: store.JobRecord{
		ID: "j1", Kind: "discover", Status: store.JobSuccess,
		StartedAt: now, FinishedAt: now.Add(3 * time.Second),
		ExitInfo: `{"accepted":12}`,
	}})

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.all()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	msgs := sink.all()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "discover job success")
	assert.Contains(t, msgs[0], "3s")
	assert.Contains(t, msgs[0], `"accepted":12`)
}

func TestNotifyDisabledIgnoresEvents(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	sink := &capture{}
	svc := newWithSender(Config{Enabled: false}, bus, sink.send, logx.Nop())
	svc.Start()
	defer svc.Stop()

	bus.Publish(eventbus.Event{Type: eventbus.TypeJobFinished, Data: store.JobRecord{ID: "j1"}})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sink.all())
}

func TestFormatJobFailure(t *testing.T) {
	t.Parallel()

	msg := formatJob(store.JobRecord{
		Kind:     "verify",
		Status:   store.JobError,
		ExitInfo: "portal session expired",
	})
	assert.Contains(t, msg, "❌")
	assert.Contains(t, msg, "verify job error")
	assert.Contains(t, msg, "portal session expired")
}

func TestFormatJobTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	// 299 ASCII bytes followed by a 3-byte Hangul rune puts byte 300 inside
	// the rune, so a byte-indexed cut would emit invalid UTF-8.
	info := strings.Repeat("a", 299) + strings.Repeat("사용 가능 부적격 ", 40)
	msg := formatJob(store.JobRecord{
		Kind:     "verify",
		Status:   store.JobError,
		ExitInfo: info,
	})
	assert.True(t, utf8.ValidString(msg))
	assert.Contains(t, msg, "…")
	assert.Less(t, len(msg), len(info))
}
