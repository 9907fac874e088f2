// Package notify streams scheduler progress to a socket.io server.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/nodepipe/internal/ctxlog"
	"github.com/vk/nodepipe/internal/scheduler"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

const (
	// EventNodeState is emitted for every node transition.
	EventNodeState = "node_state"
	// EventPipelineDone is emitted once when the run ends.
	EventPipelineDone = "pipeline_done"

	connectTimeout = 15 * time.Second
)

// emitter is the part of *socket.Socket the reporter needs.
type emitter interface {
	Emit(event string, args ...any) error
}

// Reporter forwards node transitions as socket.io events. It implements
// scheduler.Observer.
type Reporter struct {
	out   emitter
	close func()
}

// Dial connects to a socket.io server and returns a reporter bound to
// namespace. It waits for the connection to be acknowledged.
func Dial(ctx context.Context, rawURL, namespace string) (*Reporter, error) {
	logger := ctxlog.FromContext(ctx).With("url", rawURL, "namespace", namespace)
	logger.Info("Connecting progress reporter.")

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid socket.io URL %q: scheme and host are required", rawURL)
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)

	connectChan := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Progress reporter connected.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})
	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &Reporter{out: io, close: func() { io.Disconnect() }}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(connectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", connectTimeout)
	}
}

// NodeTransition implements scheduler.Observer.
func (r *Reporter) NodeTransition(ctx context.Context, ev scheduler.Event) {
	payload := map[string]any{
		"node": ev.Node.Description(),
		"from": ev.From.String(),
		"to":   ev.To.String(),
	}
	if ev.Err != nil {
		payload["error"] = ev.Err.Error()
	}
	if ev.UpToDate {
		payload["up_to_date"] = true
	}
	if err := r.out.Emit(EventNodeState, payload); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to emit progress event.", "event", EventNodeState, "error", err)
	}
}

// Done emits the final summary of a run.
func (r *Reporter) Done(ctx context.Context, res *scheduler.Result) {
	payload := map[string]any{
		"succeeded": res.Succeeded,
		"failed":    descriptions(res.FailedNodes()),
		"skipped":   descriptions(res.SkippedNodes()),
	}
	if err := r.out.Emit(EventPipelineDone, payload); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to emit progress event.", "event", EventPipelineDone, "error", err)
	}
}

// Close disconnects from the server.
func (r *Reporter) Close() {
	if r.close != nil {
		r.close()
	}
}
