package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/nodepipe/internal/node"
	"github.com/vk/nodepipe/internal/scheduler"
	"github.com/vk/nodepipe/internal/testutil"
)

type emitted struct {
	event   string
	payload map[string]any
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []emitted
	err    error
}

func (f *fakeEmitter) Emit(event string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emitted{event: event, payload: args[0].(map[string]any)})
	return f.err
}

func TestReporter_NodeTransition(t *testing.T) {
	out := &fakeEmitter{}
	r := &Reporter{out: out}
	n, err := node.NewMeta("align sample_a")
	require.NoError(t, err)

	r.NodeTransition(context.Background(), scheduler.Event{Node: n, From: node.Running, To: node.Failed, Err: errors.New("exit 1")})

	require.Len(t, out.events, 1)
	assert.Equal(t, EventNodeState, out.events[0].event)
	assert.Equal(t, map[string]any{
		"node":  "align sample_a",
		"from":  "running",
		"to":    "failed",
		"error": "exit 1",
	}, out.events[0].payload)
}

func TestReporter_EmitErrorIsLogged(t *testing.T) {
	out := &fakeEmitter{err: errors.New("disconnected")}
	r := &Reporter{out: out}
	n, err := node.NewMeta("m")
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		r.NodeTransition(context.Background(), scheduler.Event{Node: n, From: node.Pending, To: node.Running})
	})
}

func TestReporter_WithScheduler(t *testing.T) {
	out := &fakeEmitter{}
	r := &Reporter{out: out}
	tracker := testutil.NewTracker()

	bad, err := node.New("bad", tracker.Sleeper("bad", time.Millisecond, errors.New("boom")))
	require.NoError(t, err)
	after, err := node.NewMeta("after", bad)
	require.NoError(t, err)

	res, err := scheduler.New(scheduler.WithObserver(r), scheduler.WithTempRoot(t.TempDir())).
		Run(context.Background(), []*node.Node{after}, 1)
	require.NoError(t, err)
	r.Done(context.Background(), res)

	last := out.events[len(out.events)-1]
	assert.Equal(t, EventPipelineDone, last.event)
	assert.Equal(t, false, last.payload["succeeded"])
	assert.Equal(t, []string{"bad"}, last.payload["failed"])
	assert.Equal(t, []string{"after"}, last.payload["skipped"])
	// running, failed, skipped
	assert.Len(t, out.events, 4)
}

func TestDial_InvalidURL(t *testing.T) {
	_, err := Dial(context.Background(), "not a url", "/")
	assert.Error(t, err)
}
