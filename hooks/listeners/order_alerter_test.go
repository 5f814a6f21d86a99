package listeners

import (
	"context"
	"testing"

	"github.com/INLOpen/stampdb/core"
	"github.com/INLOpen/stampdb/hooks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutOfOrderAlerterListener(t *testing.T) {
	listener := NewOutOfOrderAlerterListener(nil)
	ctx := context.Background()

	require.NoError(t, listener.OnEvent(ctx, hooks.NewPostOpenEvent(hooks.PostOpenPayload{Records: 3, MaxTime: 10})))

	appendAt := func(ts float64) {
		ev := hooks.NewPostAppendEvent(hooks.PostAppendPayload{Record: core.Record{Time: ts}})
		require.NoError(t, listener.OnEvent(ctx, ev))
	}

	appendAt(11)
	assert.Equal(t, int64(0), listener.OutOfOrderCount())

	appendAt(5)
	assert.Equal(t, int64(1), listener.OutOfOrderCount())

	appendAt(11)
	assert.Equal(t, int64(1), listener.OutOfOrderCount(), "equal timestamps are not out of order")

	appendAt(12)
	appendAt(11.5)
	assert.Equal(t, int64(2), listener.OutOfOrderCount())
}

func TestOutOfOrderAlerterListener_EmptyOpen(t *testing.T) {
	listener := NewOutOfOrderAlerterListener(nil)
	ctx := context.Background()

	require.NoError(t, listener.OnEvent(ctx, hooks.NewPostOpenEvent(hooks.PostOpenPayload{})))
	ev := hooks.NewPostAppendEvent(hooks.PostAppendPayload{Record: core.Record{Time: -100}})
	require.NoError(t, listener.OnEvent(ctx, ev))
	assert.Equal(t, int64(0), listener.OutOfOrderCount())
}
