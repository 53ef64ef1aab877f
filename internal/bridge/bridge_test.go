package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voco/internal/protocol"
)

// captureSender records every message handed to Send.
type captureSender struct {
	mu   sync.Mutex
	sent []protocol.Message
	ch   chan protocol.Message
}

func newCaptureSender() *captureSender {
	return &captureSender{ch: make(chan protocol.Message, 16)}
}

func (s *captureSender) Send(msg protocol.Message) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	s.ch <- msg
	return nil
}

func (s *captureSender) last() protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return nil
	}
	return s.sent[len(s.sent)-1]
}

type failingSender struct{}

func (failingSender) Send(protocol.Message) error { return errors.New("wire is down") }

func TestDispatchResolve(t *testing.T) {
	sender := newCaptureSender()
	b := New(sender, Options{CallTimeout: time.Second})

	id, ch, err := b.Dispatch("read_file", map[string]interface{}{"path": "main.go"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Equal(t, 1, b.PendingCount())

	usage, ok := sender.last().(protocol.ToolUsage)
	require.True(t, ok)
	require.Equal(t, id, usage.CallID)
	require.Equal(t, "read_file", usage.ToolName)

	b.Resolve(id, "package main")
	select {
	case res := <-ch:
		require.NoError(t, res.Err)
		require.Equal(t, "package main", res.Output)
	case <-time.After(time.Second):
		t.Fatal("result not delivered")
	}
	require.Equal(t, 0, b.PendingCount())
}

func TestDistinctCallIDs(t *testing.T) {
	b := New(newCaptureSender(), Options{CallTimeout: time.Second})

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, _, err := b.Dispatch("exists", nil)
		require.NoError(t, err)
		require.False(t, seen[id], "call id repeated")
		seen[id] = true
	}
}

func TestResolveIsExactlyOnce(t *testing.T) {
	b := New(newCaptureSender(), Options{CallTimeout: time.Second})

	id, ch, err := b.Dispatch("read_file", nil)
	require.NoError(t, err)

	b.Resolve(id, "first")
	b.Resolve(id, "second")
	b.Reject(id, errors.New("too late"))

	res := <-ch
	require.NoError(t, res.Err)
	require.Equal(t, "first", res.Output)

	select {
	case extra := <-ch:
		t.Fatalf("second delivery: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnknownCallIDIsNoOp(t *testing.T) {
	b := New(newCaptureSender(), Options{CallTimeout: time.Second})

	// Must not panic or disturb unrelated pending calls.
	b.Resolve("never-dispatched", "output")
	b.Reject("never-dispatched", errors.New("nope"))

	id, ch, err := b.Dispatch("list_dir", nil)
	require.NoError(t, err)
	b.Resolve("some-other-id", "stray")
	require.Equal(t, 1, b.PendingCount())

	b.Resolve(id, "ok")
	res := <-ch
	require.Equal(t, "ok", res.Output)
}

func TestCallTimeout(t *testing.T) {
	b := New(newCaptureSender(), Options{CallTimeout: 30 * time.Millisecond})

	id, ch, err := b.Dispatch("read_file", nil)
	require.NoError(t, err)

	select {
	case res := <-ch:
		require.ErrorIs(t, res.Err, ErrCallTimeout)
	case <-time.After(time.Second):
		t.Fatal("timeout never fired")
	}
	require.Equal(t, 0, b.PendingCount())

	// A result arriving after expiry is ignored.
	b.Resolve(id, "late")
	select {
	case extra := <-ch:
		t.Fatalf("late delivery: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatchSendFailure(t *testing.T) {
	b := New(failingSender{}, Options{CallTimeout: time.Second})

	_, _, err := b.Dispatch("read_file", nil)
	require.Error(t, err)
	require.Equal(t, 0, b.PendingCount())
}

func TestCallHonorsContext(t *testing.T) {
	b := New(newCaptureSender(), Options{CallTimeout: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := b.Call(ctx, "run_terminal_command", map[string]interface{}{"command": "sleep 60"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandleMessageRoutesToolResult(t *testing.T) {
	sender := newCaptureSender()
	b := New(sender, Options{CallTimeout: time.Second})

	id, ch, err := b.Dispatch("read_file", nil)
	require.NoError(t, err)

	consumed := b.HandleMessage(protocol.ToolResult{
		Type: protocol.TypeToolResult, CallID: id, Output: "contents",
	})
	require.True(t, consumed)
	res := <-ch
	require.Equal(t, "contents", res.Output)

	require.False(t, b.HandleMessage(protocol.Status{Type: protocol.TypeStatus}))
}

func TestErrorOutputRejects(t *testing.T) {
	b := New(newCaptureSender(), Options{CallTimeout: time.Second})

	id, ch, err := b.Dispatch("read_file", nil)
	require.NoError(t, err)

	b.HandleMessage(protocol.ToolResult{
		Type: protocol.TypeToolResult, CallID: id, Output: "Error: file not found",
	})
	res := <-ch
	require.EqualError(t, res.Err, "file not found")
}

type echoExecutor struct{}

func (echoExecutor) Execute(_ context.Context, name string, input map[string]interface{}) (interface{}, error) {
	if name == "boom" {
		return nil, errors.New("exploded")
	}
	return input["text"], nil
}

func TestHandleUsageAnswersWithResult(t *testing.T) {
	sender := newCaptureSender()
	b := New(sender, Options{CallTimeout: time.Second, Executor: echoExecutor{}})

	b.HandleMessage(protocol.ToolUsage{
		Type: protocol.TypeToolUsage, ToolName: "echo",
		InputData: map[string]interface{}{"text": "hi"}, CallID: "c1",
	})

	select {
	case msg := <-sender.ch:
		res, ok := msg.(protocol.ToolResult)
		require.True(t, ok)
		require.Equal(t, "c1", res.CallID)
		require.Equal(t, "hi", res.Output)
	case <-time.After(time.Second):
		t.Fatal("no tool_result sent")
	}
}

func TestHandleUsageReportsExecutionError(t *testing.T) {
	sender := newCaptureSender()
	b := New(sender, Options{CallTimeout: time.Second, Executor: echoExecutor{}})

	b.HandleMessage(protocol.ToolUsage{
		Type: protocol.TypeToolUsage, ToolName: "boom", CallID: "c2",
	})

	select {
	case msg := <-sender.ch:
		res := msg.(protocol.ToolResult)
		require.Equal(t, "c2", res.CallID)
		require.Equal(t, "Error: exploded", res.Output)
	case <-time.After(time.Second):
		t.Fatal("no tool_result sent")
	}
}
