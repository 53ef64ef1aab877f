// Package bridge correlates asynchronous capability calls over the message
// channel. Outbound calls get a unique call id and a pending slot that the
// matching tool_result resolves; inbound requests are executed locally and
// answered on the same id. Each direction is fire-and-forget at the transport
// level, so correlation and timeout live entirely here.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"voco/internal/logging"
	"voco/internal/observability"
	"voco/internal/protocol"
)

// ErrCallTimeout rejects a pending call whose result never arrived.
var ErrCallTimeout = errors.New("capability call timed out")

// errorPrefix marks a failed execution travelling inside a tool_result
// output, matching the convention the agent process uses.
const errorPrefix = "Error:"

// expiredMemory bounds how many timed-out call ids we remember, purely so a
// late result can be logged as "late" instead of "unknown".
const (
	expiredMemorySize = 512
	expiredMemoryTTL  = 5 * time.Minute
)

// Sender transmits a wire message. *transport.Transport satisfies it.
type Sender interface {
	Send(protocol.Message) error
}

// Executor runs a named capability locally. Implemented by capability.Local.
type Executor interface {
	Execute(ctx context.Context, name string, input map[string]interface{}) (interface{}, error)
}

// Result is the terminal outcome of a dispatched call. Exactly one of Output
// and Err is meaningful.
type Result struct {
	Output interface{}
	Err    error
}

type pendingCall struct {
	capability string
	started    time.Time
	result     chan Result
	timer      *time.Timer
}

// Options configures a Bridge.
type Options struct {
	// CallTimeout bounds every dispatched call. Zero means 15s.
	CallTimeout time.Duration
	// Executor answers inbound capability requests. Nil rejects them.
	Executor Executor
	Metrics  *observability.Metrics
}

// Bridge owns the pending-call table for both call directions.
type Bridge struct {
	sender   Sender
	timeout  time.Duration
	executor Executor
	log      *logging.Logger
	metrics  *observability.Metrics

	mu      sync.Mutex
	pending map[string]*pendingCall
	expired *expirable.LRU[string, string]
}

// New creates a bridge that transmits through sender.
func New(sender Sender, opts Options) *Bridge {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 15 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.Nop()
	}
	return &Bridge{
		sender:   sender,
		timeout:  opts.CallTimeout,
		executor: opts.Executor,
		log:      logging.ForComponent("bridge"),
		metrics:  opts.Metrics,
		pending:  make(map[string]*pendingCall),
		expired:  expirable.NewLRU[string, string](expiredMemorySize, nil, expiredMemoryTTL),
	}
}

// Dispatch sends a capability request and returns its call id together with
// a channel that yields exactly one Result: the correlated tool_result, or
// ErrCallTimeout when none arrives in time. The channel is buffered, so the
// caller may abandon it.
func (b *Bridge) Dispatch(capability string, input map[string]interface{}) (string, <-chan Result, error) {
	id := uuid.NewString()
	call := &pendingCall{
		capability: capability,
		started:    time.Now(),
		result:     make(chan Result, 1),
	}

	b.mu.Lock()
	b.pending[id] = call
	call.timer = time.AfterFunc(b.timeout, func() { b.expire(id) })
	b.mu.Unlock()
	b.metrics.PendingCalls.Inc()

	if err := b.sender.Send(protocol.NewToolUsage(id, capability, input)); err != nil {
		b.remove(id)
		return "", nil, fmt.Errorf("dispatch %s: %w", capability, err)
	}
	b.metrics.CallsDispatched.Inc()
	b.log.Debug("dispatched %s call %s", capability, id)
	return id, call.result, nil
}

// Call dispatches and waits for the result, honoring ctx cancellation. The
// pending slot stays registered on cancellation so a late result is still
// consumed instead of leaking a warning.
func (b *Bridge) Call(ctx context.Context, capability string, input map[string]interface{}) (interface{}, error) {
	_, ch, err := b.Dispatch(capability, input)
	if err != nil {
		return nil, err
	}
	select {
	case res := <-ch:
		return res.Output, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve completes the pending call with an output value. Unknown ids are
// ignored.
func (b *Bridge) Resolve(callID string, output interface{}) {
	b.settle(callID, Result{Output: output})
}

// Reject completes the pending call with an error. Unknown ids are ignored.
func (b *Bridge) Reject(callID string, err error) {
	b.settle(callID, Result{Err: err})
}

func (b *Bridge) settle(callID string, res Result) {
	call, ok := b.remove(callID)
	if !ok {
		if capability, wasExpired := b.expired.Get(callID); wasExpired {
			b.log.Info("late result for expired %s call %s", capability, callID)
		} else {
			b.log.Warn("result for unknown call %s", callID)
		}
		return
	}
	b.metrics.CallDuration.Observe(time.Since(call.started).Seconds())
	call.result <- res
}

func (b *Bridge) expire(callID string) {
	call, ok := b.remove(callID)
	if !ok {
		return
	}
	b.expired.Add(callID, call.capability)
	b.metrics.CallTimeouts.Inc()
	b.log.Warn("%s call %s timed out after %s", call.capability, callID, b.timeout)
	call.result <- Result{Err: fmt.Errorf("%w: %s", ErrCallTimeout, call.capability)}
}

// remove detaches the pending slot and stops its timer. The second return
// reports whether the id was pending; at most one caller ever gets true,
// which is what makes resolution exactly-once.
func (b *Bridge) remove(callID string) (*pendingCall, bool) {
	b.mu.Lock()
	call, ok := b.pending[callID]
	if ok {
		delete(b.pending, callID)
	}
	b.mu.Unlock()
	if !ok {
		return nil, false
	}
	call.timer.Stop()
	b.metrics.PendingCalls.Dec()
	return call, true
}

// PendingCount reports how many dispatched calls are still awaiting results.
func (b *Bridge) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// HandleMessage feeds an inbound message into the bridge. Only tool_result
// and tool_usage are consumed; everything else returns false so the caller
// can route it elsewhere.
func (b *Bridge) HandleMessage(msg protocol.Message) bool {
	switch m := msg.(type) {
	case protocol.ToolResult:
		b.handleResult(m)
		return true
	case protocol.ToolUsage:
		go b.handleUsage(m)
		return true
	default:
		return false
	}
}

func (b *Bridge) handleResult(res protocol.ToolResult) {
	if s, ok := res.Output.(string); ok && strings.HasPrefix(s, errorPrefix) {
		msg := strings.TrimSpace(strings.TrimPrefix(s, errorPrefix))
		b.Reject(res.CallID, errors.New(msg))
		return
	}
	b.Resolve(res.CallID, res.Output)
}

// handleUsage executes an inbound capability request and answers it with a
// tool_result on the same call id. Failures travel as "Error: <message>".
func (b *Bridge) handleUsage(req protocol.ToolUsage) {
	var output interface{}
	if b.executor == nil {
		output = fmt.Sprintf("%s capability %q is not available", errorPrefix, req.ToolName)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		result, err := b.executor.Execute(ctx, req.ToolName, req.InputData)
		if err != nil {
			b.log.Warn("capability %s failed: %v", req.ToolName, err)
			output = fmt.Sprintf("%s %s", errorPrefix, err.Error())
		} else {
			output = result
		}
	}
	if err := b.sender.Send(protocol.NewToolResult(req.CallID, output)); err != nil {
		b.log.Error("send result for call %s: %v", req.CallID, err)
	}
}
