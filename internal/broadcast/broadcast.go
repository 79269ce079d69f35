// Package broadcast serves the daemon's Unix-domain socket: one goroutine
// per connected client, push-only (the daemon never reads from a client
// after its initial_state handshake), with a write deadline on every
// message so one stalled client can never back up delivery to the rest.
// Adapted from the daemon's old request/response accept loop, generalized
// from "answer the next request" to "push every tick to every listener."
package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/ngrantham/pausewatch/internal/protocol"
)

// writeTimeout bounds how long a single client write may block before the
// connection is dropped as unresponsive.
const writeTimeout = 2 * time.Second

// Server accepts client connections on a Unix socket and pushes sample
// messages to all of them.
type Server struct {
	path     string
	listener net.Listener
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[net.Conn]struct{}

	initialState func() protocol.InitialStateMessage
}

// New binds the Unix socket at path, removing any stale socket left behind
// by a prior, uncleanly-terminated run. initialState is called once per new
// connection to produce the synchronous handshake message.
func New(path string, logger *slog.Logger, initialState func() protocol.InitialStateMessage) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	_ = os.Remove(path)
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket %s: %w", path, err)
	}
	if err := os.Chmod(path, 0700); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket %s: %w", path, err)
	}
	return &Server{
		path:         path,
		listener:     listener,
		logger:       logger,
		clients:      make(map[net.Conn]struct{}),
		initialState: initialState,
	}, nil
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if isClosedErr(err) {
				return
			}
			s.logger.Error("accept error", "error", err)
			continue
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	if s.initialState != nil {
		msg := s.initialState()
		if err := writeMessage(conn, msg); err != nil {
			s.logger.Debug("failed to send initial_state", "error", err)
			return
		}
	}

	// The protocol is push-only: block here reading (and discarding) so a
	// client disconnect is detected and the connection is cleaned up,
	// without requiring the client to send anything.
	buf := make([]byte, 1)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}

// Broadcast pushes msg to every connected client, dropping (and closing)
// any client whose write doesn't complete within writeTimeout.
func (s *Server) Broadcast(msg protocol.SampleMessage) {
	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := writeMessage(c, msg); err != nil {
			s.logger.Debug("dropping unresponsive client", "error", err)
			s.mu.Lock()
			delete(s.clients, c)
			s.mu.Unlock()
			_ = c.Close()
		}
	}
}

// ClientCount returns the number of currently-connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close stops accepting connections and closes every client connection.
func (s *Server) Close() error {
	err := s.listener.Close()
	s.mu.Lock()
	for c := range s.clients {
		_ = c.Close()
	}
	s.clients = make(map[net.Conn]struct{})
	s.mu.Unlock()
	_ = os.Remove(s.path)
	return err
}

func writeMessage(conn net.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err = conn.Write(append(data, '\n'))
	return err
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
