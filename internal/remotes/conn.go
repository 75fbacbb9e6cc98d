package remotes

import (
	"context"
	"sync"

	"github.com/Shopify/touchbuttons/internal/layout"
	"github.com/Shopify/touchbuttons/internal/metrics"

	"github.com/pkg/errors"
)

var ErrConnClosed = errors.New("remotes: connection closed")

// Remote is the client's view of the two touch button endpoints.
type Remote interface {
	GetConfig(ctx context.Context, buttonName string) (layout.ButtonConfig, bool, error)
	SetConfig(buttonName string, config layout.ButtonConfig) error
}

// Handler answers requests on behalf of the calling user.
type Handler interface {
	HandleGetConfig(ctx context.Context, identity Identity, buttonName string) (layout.ButtonConfig, bool, error)
	HandleSetConfig(ctx context.Context, identity Identity, buttonName string, config layout.ButtonConfig) error
}

// Conn is one client connection. Requests are queued in send order and served by
// a single server worker, so a user's messages are applied in receipt order.
type Conn struct {
	identity Identity
	requests chan *Request

	closed    chan struct{}
	closeOnce sync.Once

	finished   chan struct{}
	finishOnce sync.Once
}

func MakeConn(identity Identity, backlog int) *Conn {
	return &Conn{
		identity: identity,
		requests: make(chan *Request, backlog),
		closed:   make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (c *Conn) Identity() Identity {
	return c.identity
}

func (c *Conn) GetConfig(ctx context.Context, buttonName string) (layout.ButtonConfig, bool, error) {
	req := MakeGetConfigRequest(buttonName)
	if err := c.send(ctx, req); err != nil {
		return layout.ButtonConfig{}, false, err
	}
	select {
	case resp := <-req.reply:
		return resp.Config, resp.Found, resp.Err
	case <-ctx.Done():
		return layout.ButtonConfig{}, false, ctx.Err()
	case <-c.finished:
		select {
		case resp := <-req.reply:
			return resp.Config, resp.Found, resp.Err
		default:
			return layout.ButtonConfig{}, false, ErrConnClosed
		}
	}
}

// SetConfig queues a fire-and-forget update. Only local failures are reported.
func (c *Conn) SetConfig(buttonName string, config layout.ButtonConfig) error {
	return c.send(context.Background(), MakeSetConfigRequest(buttonName, config))
}

func (c *Conn) send(ctx context.Context, req *Request) error {
	req.Identity = c.identity
	if err := req.Validate(); err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	select {
	case c.requests <- req:
		metrics.Incr("remotes.requests", []string{"endpoint:" + req.Endpoint.String()})
		return nil
	case <-c.closed:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new requests. Already queued requests are still served.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

// Requests is the server side of the queue.
func (c *Conn) Requests() <-chan *Request {
	return c.requests
}

// Finish is called by the serving worker once the queue is drained after Close.
func (c *Conn) Finish() {
	c.finishOnce.Do(func() { close(c.finished) })
}

func (c *Conn) Finished() <-chan struct{} {
	return c.finished
}

// Dispatch runs req against h and replies when the endpoint expects it.
func Dispatch(ctx context.Context, h Handler, req *Request) error {
	switch req.Endpoint {
	case GetConfigEndpoint:
		cfg, found, err := h.HandleGetConfig(ctx, req.Identity, req.ButtonName)
		if err != nil {
			req.Reply(MakeErrorResponse(err))
			return err
		}
		req.Reply(MakeServerResponse(cfg, found))
		return nil
	case SetConfigEndpoint:
		return h.HandleSetConfig(ctx, req.Identity, req.ButtonName, req.Config)
	default:
		err := errors.Wrapf(ErrMalformedRequest, "unknown endpoint %d", int(req.Endpoint))
		req.Reply(MakeErrorResponse(err))
		return err
	}
}
