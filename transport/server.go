// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/shaderlive"
)

// MaxShaderSize bounds the body of a POST /shader request.
const MaxShaderSize = 1 << 20

// clientQueue is the number of notifications buffered per client. A slow
// client loses notifications beyond it.
const clientQueue = 16

type client struct {
	conn *websocket.Conn
	send chan Notification
}

// Server exposes a session over HTTP:
//
//	GET  /ws      websocket, JSON Message in, JSON Notification out
//	POST /shader  raw WGSL body, answered with 202 Accepted
//
// Server is safe for concurrent use.
type Server struct {
	handler Handler
	mux     *http.ServeMux

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewServer returns a Server forwarding inbound messages to h.
func NewServer(h Handler) *Server {
	s := &Server{
		handler: h,
		mux:     http.NewServeMux(),
		clients: make(map[*client]struct{}),
	}
	// Editors and local tools often send no Origin; accept every origin.
	s.mux.Handle("GET /ws", websocket.Server{
		Handler:   s.serveConn,
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
	})
	s.mux.HandleFunc("POST /shader", s.servePost)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) servePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxShaderSize))
	if err != nil {
		http.Error(w, "shader too large or unreadable", http.StatusRequestEntityTooLarge)
		return
	}
	code, err := DecodeSource(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.handler.HandleMessage(UpdateShader(code))
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) serveConn(ws *websocket.Conn) {
	log := shaderlive.Logger()
	c := &client{conn: ws, send: make(chan Notification, clientQueue)}
	s.register(c)
	defer s.unregister(c)
	log.Debug("transport: client connected", "remote", ws.Request().RemoteAddr)

	go func() {
		for n := range c.send {
			if err := websocket.JSON.Send(ws, n); err != nil {
				log.Debug("transport: send failed", "err", err)
				ws.Close()
				return
			}
		}
	}()

	for {
		var m Message
		err := websocket.JSON.Receive(ws, &m)
		if err != nil {
			var syntax *json.SyntaxError
			var typ *json.UnmarshalTypeError
			if errors.As(err, &syntax) || errors.As(err, &typ) {
				log.Warn("transport: malformed message", "err", err)
				continue
			}
			if !errors.Is(err, io.EOF) {
				log.Debug("transport: receive failed", "err", err)
			}
			return
		}
		if m.Command == "" {
			log.Warn("transport: message without command")
			continue
		}
		s.handler.HandleMessage(m)
	}
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
	c.conn.Close()
}

// Notify queues n for every connected client. It never blocks.
func (s *Server) Notify(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- n:
		default:
			shaderlive.Logger().Debug("transport: client queue full; notification dropped", "command", n.Command)
		}
	}
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) closeClients() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c.conn)
	}
	s.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

// Serve listens on addr and serves until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: listen: %w", err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled, then shuts down and
// disconnects websocket clients. ln is closed on return.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	shaderlive.Logger().Info("transport: listening", "addr", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("transport: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.closeClients()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	})
	return g.Wait()
}
