package hooks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/INLOpen/stampdb/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a HookListener that appends its name to a shared log.
type recorder struct {
	name     string
	priority int
	async    bool
	err      error
	delay    time.Duration
	do       func(event HookEvent)

	mu  *sync.Mutex
	log *[]string
}

func (r *recorder) OnEvent(ctx context.Context, event HookEvent) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.do != nil {
		r.do(event)
	}
	if r.log != nil {
		r.mu.Lock()
		*r.log = append(*r.log, r.name)
		r.mu.Unlock()
	}
	return r.err
}

func (r *recorder) Priority() int { return r.priority }
func (r *recorder) IsAsync() bool { return r.async }

type callLog struct {
	mu    sync.Mutex
	names []string
}

func (c *callLog) listener(name string, priority int) *recorder {
	return &recorder{name: name, priority: priority, mu: &c.mu, log: &c.names}
}

func (c *callLog) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}

func TestNewHookManager(t *testing.T) {
	m, ok := NewHookManager(nil).(*DefaultHookManager)
	require.True(t, ok)
	assert.NotNil(t, m.listeners)
	assert.NotNil(t, m.logger)
}

func TestRegister_PriorityOrder(t *testing.T) {
	m := NewHookManager(nil).(*DefaultHookManager)
	var calls callLog
	m.Register(EventPreAppend, calls.listener("p10", 10))
	m.Register(EventPreAppend, calls.listener("p1", 1))
	m.Register(EventPreAppend, calls.listener("p5", 5))
	m.Register(EventPreAppend, calls.listener("p5-late", 5))

	var names []string
	for _, item := range m.listeners[EventPreAppend] {
		names = append(names, item.listener.(*recorder).name)
	}
	assert.Equal(t, []string{"p1", "p5", "p5-late", "p10"}, names)
}

func TestTrigger_PreEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("runs synchronously in priority order", func(t *testing.T) {
		m := NewHookManager(nil)
		var calls callLog
		m.Register(EventPreCheckpoint, calls.listener("second", 2))
		m.Register(EventPreCheckpoint, calls.listener("first", 1))
		async := calls.listener("async-ignored", 3)
		async.async = true
		m.Register(EventPreCheckpoint, async)

		require.NoError(t, m.Trigger(ctx, NewPreCheckpointEvent(PreCheckpointPayload{Pending: 4})))
		assert.Equal(t, []string{"first", "second", "async-ignored"}, calls.snapshot())
	})

	t.Run("first error cancels and stops the chain", func(t *testing.T) {
		m := NewHookManager(nil)
		var calls callLog
		veto := errors.New("veto")
		failing := calls.listener("failing", 2)
		failing.err = veto
		m.Register(EventPreDelete, calls.listener("ok", 1))
		m.Register(EventPreDelete, failing)
		m.Register(EventPreDelete, calls.listener("never", 3))

		ts := 7.0
		err := m.Trigger(ctx, NewPreDeleteEvent(PreDeletePayload{Time: &ts}))
		require.ErrorIs(t, err, veto)
		assert.Contains(t, err.Error(), "PreDelete")
		assert.Equal(t, []string{"ok", "failing"}, calls.snapshot())
	})

	t.Run("listeners can rewrite the payload", func(t *testing.T) {
		m := NewHookManager(nil)
		rec := core.Record{Time: 1, Cells: []core.Cell{core.IntCell(1)}}
		m.Register(EventPreAppend, &recorder{do: func(event HookEvent) {
			p := event.Payload().(PreAppendPayload)
			p.Record.Cells[0] = core.IntCell(42)
			p.Record.Time = 2
		}})

		require.NoError(t, m.Trigger(ctx, NewPreAppendEvent(PreAppendPayload{Record: &rec})))
		v, ok := rec.Cells[0].ValueInt64()
		require.True(t, ok)
		assert.Equal(t, int64(42), v)
		assert.Equal(t, 2.0, rec.Time)
	})

	t.Run("query bounds are adjustable", func(t *testing.T) {
		m := NewHookManager(nil)
		m.Register(EventPreQuery, &recorder{do: func(event HookEvent) {
			p := event.Payload().(PreQueryPayload)
			*p.End = 5
		}})
		start, end := 0.0, 100.0
		require.NoError(t, m.Trigger(ctx, NewPreQueryEvent(PreQueryPayload{Start: &start, End: &end})))
		assert.Equal(t, 5.0, end)
	})

	t.Run("no listeners is a no-op", func(t *testing.T) {
		assert.NoError(t, NewHookManager(nil).Trigger(ctx, NewPreCloseEvent(EngineLifecyclePayload{Path: "x"})))
	})
}

func TestTrigger_PostEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("errors are logged not returned", func(t *testing.T) {
		m := NewHookManager(nil)
		var calls callLog
		failing := calls.listener("failing", 1)
		failing.err = errors.New("boom")
		m.Register(EventPostCompaction, failing)
		m.Register(EventPostCompaction, calls.listener("after", 2))

		err := m.Trigger(ctx, NewPostCompactionEvent(PostCompactionPayload{BytesBefore: 10, BytesAfter: 5}))
		require.NoError(t, err)
		assert.Equal(t, []string{"failing", "after"}, calls.snapshot())
	})

	t.Run("async listeners run in the background", func(t *testing.T) {
		m := NewHookManager(nil)
		var calls callLog
		signal := make(chan HookEvent, 1)
		m.Register(EventPostAppend, &recorder{async: true, priority: 1, do: func(e HookEvent) { signal <- e }})
		m.Register(EventPostAppend, calls.listener("sync", 2))

		require.NoError(t, m.Trigger(ctx, NewPostAppendEvent(PostAppendPayload{Position: 3, Pending: 1})))
		assert.Equal(t, []string{"sync"}, calls.snapshot())

		select {
		case e := <-signal:
			assert.Equal(t, EventPostAppend, e.Type())
			assert.Equal(t, 3, e.Payload().(PostAppendPayload).Position)
		case <-time.After(time.Second):
			t.Fatal("async listener was not called")
		}
		m.Stop()
	})
}

func TestStop_WaitsForAsyncListeners(t *testing.T) {
	m := NewHookManager(nil)
	var done atomic.Bool
	delay := 50 * time.Millisecond
	m.Register(EventPostBackup, &recorder{
		async: true,
		delay: delay,
		do:    func(HookEvent) { done.Store(true) },
	})

	start := time.Now()
	require.NoError(t, m.Trigger(context.Background(), NewPostBackupEvent(PostBackupPayload{Source: "a.csv"})))
	m.Stop()

	assert.True(t, done.Load())
	assert.GreaterOrEqual(t, time.Since(start), delay)
}

func BenchmarkTrigger_PreAppend(b *testing.B) {
	m := NewHookManager(nil)
	for i := 0; i < 10; i++ {
		m.Register(EventPreAppend, &recorder{priority: i})
	}
	rec := core.Record{Time: 1, Cells: []core.Cell{core.FloatCell(1.5)}}
	event := NewPreAppendEvent(PreAppendPayload{Record: &rec})
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.Trigger(ctx, event)
	}
}
