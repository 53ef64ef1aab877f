// Package client composes the transport, call bridge, timeline store and
// optional side services into one session client. Construction wires the
// pieces together first; subscriptions are registered before anything can
// fire, so no event ever races initialization.
package client

import (
	"context"
	"fmt"

	promclient "github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"voco/internal/bridge"
	"voco/internal/capability"
	"voco/internal/config"
	"voco/internal/console"
	"voco/internal/inspect"
	"voco/internal/logging"
	"voco/internal/observability"
	"voco/internal/protocol"
	"voco/internal/timeline"
	"voco/internal/transport"
)

const eventBuffer = 256

// Client is one logical session against the agent process.
type Client struct {
	cfg      config.Config
	log      *logging.Logger
	registry *promclient.Registry

	transport *transport.Transport
	bridge    *bridge.Bridge
	store     *timeline.Store
	remote    *capability.Remote
	renderer  *console.Renderer
	inspect   *inspect.Server

	events   chan protocol.Message
	statuses chan transport.Status
	done     chan struct{}
}

// New builds a client from configuration. renderer may be nil for headless
// use.
func New(cfg config.Config, renderer *console.Renderer) (*Client, error) {
	cfg = cfg.WithDefaults()

	registry := promclient.NewRegistry()
	metrics, err := observability.New(registry)
	if err != nil {
		return nil, err
	}

	executor, err := capability.NewLocal(cfg.WorkspaceRoot, cfg.CommandTimeout)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}

	c := &Client{
		cfg:      cfg,
		log:      logging.ForComponent("client"),
		registry: registry,
		store:    timeline.NewStore(metrics),
		renderer: renderer,
		events:   make(chan protocol.Message, eventBuffer),
		statuses: make(chan transport.Status, 16),
		done:     make(chan struct{}),
	}

	c.transport = transport.New(transport.Config{
		Endpoint:      cfg.Endpoint(),
		ReconnectBase: cfg.ReconnectBase,
		ReconnectMax:  cfg.ReconnectMax,
	}, metrics)
	c.bridge = bridge.New(c.transport, bridge.Options{
		CallTimeout: cfg.CallTimeout,
		Executor:    executor,
		Metrics:     metrics,
	})
	c.remote = capability.NewRemote(c.bridge)

	c.transport.OnStatus(func(s transport.Status) {
		select {
		case c.statuses <- s:
		case <-c.done:
		}
	})
	c.transport.OnMessage(func(msg protocol.Message) {
		select {
		case c.events <- msg:
		case <-c.done:
		}
	})

	if cfg.InspectEnabled {
		c.inspect = inspect.New(cfg.InspectPort, c.store, registry)
	}
	return c, nil
}

// Store exposes the session store for read access.
func (c *Client) Store() *timeline.Store { return c.store }

// Remote exposes the typed facade for capabilities executed by the peer.
func (c *Client) Remote() *capability.Remote { return c.remote }

// Gatherer exposes the metrics registry.
func (c *Client) Gatherer() promclient.Gatherer { return c.registry }

// Run connects and processes events until ctx is cancelled. All session
// mutation happens on the single loop goroutine; callbacks only enqueue.
func (c *Client) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(c.done)
		defer c.transport.Close()
		if err := c.transport.Connect(); err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case status := <-c.statuses:
				c.store.SetConnState(string(status))
				c.render()
			case msg := <-c.events:
				if !c.bridge.HandleMessage(msg) {
					c.store.Apply(msg)
				}
				c.render()
			}
		}
	})

	if c.inspect != nil {
		g.Go(c.inspect.Start)
		g.Go(func() error {
			<-ctx.Done()
			return c.inspect.Shutdown(context.Background())
		})
	}

	return g.Wait()
}

func (c *Client) render() {
	if c.renderer != nil {
		c.renderer.Render(c.store.Snapshot())
	}
}

// SendText submits typed input and echoes it locally.
func (c *Client) SendText(text string) error {
	c.store.AddUserMessage(text)
	c.render()
	return c.transport.Send(protocol.NewTextInput(text))
}

// ApprovePlan accepts the pending plan.
func (c *Client) ApprovePlan() error {
	c.store.SetPlanApproved(true)
	c.render()
	return c.transport.Send(protocol.NewControl(protocol.TypeApprovePlan))
}

// RejectPlan declines the pending plan.
func (c *Client) RejectPlan() error {
	c.store.SetPlanApproved(false)
	c.render()
	return c.transport.Send(protocol.NewControl(protocol.TypeRejectPlan))
}

// StopGeneration asks the agent to stop the current response. Advisory:
// already dispatched capability calls are not retracted.
func (c *Client) StopGeneration() error {
	return c.transport.Send(protocol.NewControl(protocol.TypeStopGeneration))
}

// StartRecording opens the microphone on the agent side.
func (c *Client) StartRecording() error {
	c.store.SetRecording(true)
	c.render()
	return c.transport.Send(protocol.NewControl(protocol.TypeStartRecording))
}

// StopRecording closes the microphone.
func (c *Client) StopRecording() error {
	c.store.SetRecording(false)
	c.render()
	return c.transport.Send(protocol.NewControl(protocol.TypeStopRecording))
}

// ToggleTTS switches speech output.
func (c *Client) ToggleTTS(enabled bool) error {
	c.store.SetTTSEnabled(enabled)
	c.render()
	return c.transport.Send(protocol.NewToggleTTS(enabled))
}
