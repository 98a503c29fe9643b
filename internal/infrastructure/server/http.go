package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type HTTPServer struct {
	addr    string
	handler http.Handler
	srv     *http.Server

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

var _ Server = (*HTTPServer)(nil)

func NewHTTPServer(addr string, handler http.Handler) *HTTPServer {
	return &HTTPServer{
		addr:    addr,
		handler: handler,
		srv: &http.Server{
			Handler:     handler,
			ReadTimeout: 15 * time.Second,
			// no WriteTimeout: event streams stay open
			IdleTimeout: 60 * time.Second,
		},
		ready: make(chan struct{}),
	}
}

// Start listens on the configured address and serves until Stop.
func (h *HTTPServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.listener = ln
	h.mu.Unlock()
	close(h.ready)

	var eg errgroup.Group
	eg.Go(func() error {
		err := h.srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return eg.Wait()
}

// Ready is closed once the listener is bound.
func (h *HTTPServer) Ready() <-chan struct{} {
	return h.ready
}

// Addr returns the bound address, or the configured one before Start.
func (h *HTTPServer) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.addr
}

func (h *HTTPServer) Stop(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}
