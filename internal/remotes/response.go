package remotes

import "github.com/Shopify/touchbuttons/internal/layout"

type Response struct {
	Config layout.ButtonConfig
	Found  bool
	Err    error
}

func MakeServerResponse(config layout.ButtonConfig, found bool) *Response {
	return &Response{Config: config, Found: found}
}

func MakeErrorResponse(err error) *Response {
	return &Response{Err: err}
}

// Reply delivers resp to the caller waiting on r. Replies to fire-and-forget requests are dropped.
func (r *Request) Reply(resp *Response) {
	if !r.ExpectsReply() {
		return
	}
	select {
	case r.reply <- resp:
	default:
	}
}
