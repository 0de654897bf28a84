package worker

import (
	"context"
	"net"
	"sync"

	"github.com/valyala/fasthttp"

	"github.com/mmgwasm/mmgwasm/errors"
	"github.com/mmgwasm/mmgwasm/mesh"
)

const remeshPath = "/remesh"

// Server exposes a session as a remote worker over HTTP. One endpoint:
// POST /remesh with a JSON Request body. Jobs run one at a time: the
// handler is invoked concurrently per connection, but the session's
// engine instance is single-threaded.
type Server struct {
	ses *mesh.Session
	srv *fasthttp.Server

	mu sync.Mutex // serializes run against the shared session
}

// NewServer wraps a session. The caller keeps ownership of the session.
func NewServer(ses *mesh.Session) *Server {
	s := &Server{ses: ses}
	s.srv = &fasthttp.Server{
		Handler: s.handle,
		Name:    "mmgwasm-worker",
	}
	return s
}

// Serve accepts connections from the listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

// ListenAndServe binds addr and serves until Shutdown.
func (s *Server) ListenAndServe(addr string) error { return s.srv.ListenAndServe(addr) }

// Shutdown stops accepting connections and waits for in-flight jobs.
func (s *Server) Shutdown() error { return s.srv.Shutdown() }

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	if string(ctx.Path()) != remeshPath {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	if !ctx.IsPost() {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}

	req, err := ParseRequest(ctx.PostBody())
	if err != nil {
		writeResponse(ctx, fasthttp.StatusBadRequest, &Response{Err: err.Error()})
		return
	}
	// RequestCtx carries the connection's context, so a dropped client
	// cancels the foreign call chain.
	s.mu.Lock()
	resp := run(ctx, s.ses, req)
	s.mu.Unlock()
	writeResponse(ctx, fasthttp.StatusOK, resp)
}

func writeResponse(ctx *fasthttp.RequestCtx, status int, resp *Response) {
	body, err := resp.Marshal()
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// Client talks to a remote worker server.
type Client struct {
	addr string
	hc   *fasthttp.Client
}

// NewClient creates a client for the given host:port.
func NewClient(addr string) *Client {
	return &Client{addr: addr, hc: &fasthttp.Client{}}
}

// NewClientDial creates a client with a custom dialer. Tests use this
// with an in-memory listener.
func NewClientDial(addr string, dial fasthttp.DialFunc) *Client {
	return &Client{addr: addr, hc: &fasthttp.Client{Dial: dial}}
}

// Remesh sends one job and waits for the response.
func (c *Client) Remesh(ctx context.Context, req *Request) (*Response, error) {
	body, err := req.Marshal()
	if err != nil {
		return nil, err
	}

	hreq := fasthttp.AcquireRequest()
	hresp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(hreq)
	defer fasthttp.ReleaseResponse(hresp)

	hreq.SetRequestURI("http://" + c.addr + remeshPath)
	hreq.Header.SetMethod(fasthttp.MethodPost)
	hreq.Header.SetContentType("application/json")
	hreq.SetBody(body)

	if deadline, ok := ctx.Deadline(); ok {
		err = c.hc.DoDeadline(hreq, hresp, deadline)
	} else {
		err = c.hc.Do(hreq, hresp)
	}
	if err != nil {
		return nil, errors.New(errors.PhaseSerialize, errors.KindEngineFailure).
			Cause(err).Detail("worker request to %s", c.addr).Build()
	}

	status := hresp.StatusCode()
	if status != fasthttp.StatusOK && status != fasthttp.StatusBadRequest {
		return nil, errors.New(errors.PhaseSerialize, errors.KindEngineFailure).
			Detail("worker returned status %d", status).Build()
	}
	return ParseResponse(hresp.Body())
}
