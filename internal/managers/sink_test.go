package managers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chrissnell/riverprofile/internal/network"
	"github.com/chrissnell/riverprofile/internal/profile"
	"github.com/chrissnell/riverprofile/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memorySink struct {
	name   string
	mu     sync.Mutex
	heads  []network.SegmentID
	runs   []string
	fail   map[network.SegmentID]bool
	closed bool
}

func (m *memorySink) Name() string { return m.name }

func (m *memorySink) WriteProfile(_ context.Context, p *profile.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[p.Head] {
		return errors.New("disk full")
	}
	m.heads = append(m.heads, p.Head)
	return nil
}

func (m *memorySink) Close() error {
	m.closed = true
	return nil
}

type recordingSink struct {
	memorySink
}

func (r *recordingSink) RecordRun(_ context.Context, d *types.Diagnostics) error {
	r.runs = append(r.runs, d.RunID)
	return nil
}

func TestSinkManagerFanOut(t *testing.T) {
	ctx := context.Background()
	a := &memorySink{name: "a"}
	b := &recordingSink{memorySink{name: "b", fail: map[network.SegmentID]bool{2: true}}}

	m := NewSinkManagerWith(ctx, zap.NewNop().Sugar(), a, b)
	for head := network.SegmentID(1); head <= 5; head++ {
		require.NoError(t, m.Submit(ctx, &profile.Profile{Head: head}))
	}

	d := &types.Diagnostics{RunID: "run-1"}
	require.NoError(t, m.Close(ctx, d))

	assert.Equal(t, []network.SegmentID{1, 2, 3, 4, 5}, a.heads, "each sink sees profiles in submission order")
	assert.Equal(t, []network.SegmentID{1, 3, 4, 5}, b.heads)
	assert.Equal(t, []string{"run-1"}, b.runs)
	assert.Equal(t, 1, m.Errors())
	assert.Equal(t, 1, d.SinkErrors)
	assert.True(t, a.closed)
	assert.True(t, b.closed)

	assert.ErrorIs(t, m.Submit(ctx, &profile.Profile{Head: 6}), ErrManagerClosed)
	assert.ErrorIs(t, m.Close(ctx, nil), ErrManagerClosed)
}

func TestSinkManagerWithoutSinks(t *testing.T) {
	ctx := context.Background()
	m := NewSinkManagerWith(ctx, zap.NewNop().Sugar())
	require.NoError(t, m.Submit(ctx, &profile.Profile{Head: 1}))
	assert.NoError(t, m.Close(ctx, nil))
}

func TestSinkManagerSubmitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocked := make(chan struct{})
	s := &blockingSink{release: blocked}
	m := NewSinkManagerWith(context.Background(), zap.NewNop().Sugar(), s)

	cancel()
	var err error
	// fill the pipeline until Submit observes the canceled context
	for i := 0; i < 100 && err == nil; i++ {
		err = m.Submit(ctx, &profile.Profile{Head: network.SegmentID(i)})
	}
	assert.ErrorIs(t, err, context.Canceled)

	close(blocked)
	assert.NoError(t, m.Close(context.Background(), nil))
}

func TestSinkManagerDrainsQueueAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gate := make(chan struct{})
	s := &contextSink{gate: gate}
	m := NewSinkManagerWith(ctx, zap.NewNop().Sugar(), s)

	for head := network.SegmentID(1); head <= 3; head++ {
		require.NoError(t, m.Submit(ctx, &profile.Profile{Head: head}))
	}
	cancel()
	close(gate)

	d := &types.Diagnostics{RunID: "run-1"}
	require.NoError(t, m.Close(context.WithoutCancel(ctx), d))
	assert.Equal(t, []network.SegmentID{1, 2, 3}, s.heads)
	assert.Zero(t, d.SinkErrors)
}

// contextSink fails writes whose context is done, like the database and object store sinks
type contextSink struct {
	gate  chan struct{}
	heads []network.SegmentID
}

func (c *contextSink) Name() string { return "context" }

func (c *contextSink) WriteProfile(ctx context.Context, p *profile.Profile) error {
	<-c.gate
	if err := ctx.Err(); err != nil {
		return err
	}
	c.heads = append(c.heads, p.Head)
	return nil
}

func (c *contextSink) Close() error { return nil }

type blockingSink struct {
	release chan struct{}
}

func (b *blockingSink) Name() string { return "blocking" }

func (b *blockingSink) WriteProfile(context.Context, *profile.Profile) error {
	<-b.release
	return nil
}

func (b *blockingSink) Close() error { return nil }
