package remotes

import (
	"strings"

	"github.com/Shopify/touchbuttons/internal/layout"

	"github.com/pkg/errors"
)

// ErrMalformedRequest is returned by the transport's schema check; such requests never reach a Handler.
var ErrMalformedRequest = errors.New("remotes: malformed request")

type requestEndpointEnum int

const (
	GetConfigEndpoint requestEndpointEnum = iota
	SetConfigEndpoint
)

func (e requestEndpointEnum) String() string {
	switch e {
	case GetConfigEndpoint:
		return "getTouchButtonConfig"
	case SetConfigEndpoint:
		return "setTouchButtonConfig"
	}
	return "unknown"
}

type Request struct {
	Endpoint   requestEndpointEnum
	ButtonName string
	Config     layout.ButtonConfig

	// Stamped by the Conn that queued the request, never taken from the payload.
	Identity Identity

	reply chan *Response
}

func MakeGetConfigRequest(buttonName string) *Request {
	return &Request{Endpoint: GetConfigEndpoint, ButtonName: buttonName, reply: make(chan *Response, 1)}
}

func MakeSetConfigRequest(buttonName string, config layout.ButtonConfig) *Request {
	return &Request{Endpoint: SetConfigEndpoint, ButtonName: buttonName, Config: config}
}

// ExpectsReply is true for request/response endpoints.
func (r *Request) ExpectsReply() bool {
	return r.reply != nil
}

// Validate is the schema check applied before dispatch.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.ButtonName) == "" {
		return errors.Wrap(ErrMalformedRequest, "button name is required")
	}
	switch r.Endpoint {
	case GetConfigEndpoint:
		return nil
	case SetConfigEndpoint:
		if !r.Config.IsFinite() {
			return errors.Wrapf(ErrMalformedRequest, "config for %s has non-finite components", r.ButtonName)
		}
		return nil
	}
	return errors.Wrapf(ErrMalformedRequest, "unknown endpoint %d", int(r.Endpoint))
}
