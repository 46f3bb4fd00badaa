// Package httpserver accepts connections and answers one GET or PUT per
// connection.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyprienhm/http-file-exchange/internal/codec"
	"github.com/cyprienhm/http-file-exchange/internal/config"
	"github.com/cyprienhm/http-file-exchange/internal/transport"
)

var ErrServerClosed = errors.New("httpserver: server closed")

// FileStore is what the GET and PUT handlers read from and write to.
type FileStore interface {
	Get(target string) ([]byte, error)
	Put(target string, body []byte) (created bool, err error)
}

type Server struct {
	cfg      config.Config
	store    FileStore
	codec    *codec.Codec
	receiver transport.Receiver
	logger   *log.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   atomic.Bool
	conns    sync.WaitGroup
}

func New(cfg config.Config, store FileStore, logger *log.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(os.Stderr, "server: ", log.LstdFlags)
	}
	receiver := transport.NewReceiver(cfg)
	receiver.HonorContentLength = true
	return &Server{
		cfg:      cfg,
		store:    store,
		codec:    codec.New(cfg),
		receiver: receiver,
		logger:   logger,
	}, nil
}

// ListenAndServe binds addr on all interfaces and serves until ctx is
// cancelled or Close is called.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("httpserver: failed to bind to %s: %w", addr, err)
	}
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()
	return s.Serve(l)
}

// Serve runs the accept loop on l. By default each connection is read,
// answered and closed before the next one is accepted.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()
	defer s.conns.Wait()

	s.logger.Printf("listening on %s, serving %s", l.Addr(), s.cfg.StaticRoot)

	var backoff time.Duration
	for {
		connection, err := l.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("httpserver: listener closed: %w", err)
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			s.logger.Printf("error accepting connection: %v; retrying in %v", err, backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if s.cfg.Concurrent {
			s.conns.Add(1)
			go func() {
				defer s.conns.Done()
				s.serveConn(connection)
			}()
			continue
		}
		s.serveConn(connection)
	}
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops the accept loop. In-flight connections finish.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Swap(true) {
		return nil
	}
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) serveConn(connection net.Conn) {
	defer connection.Close()
	remote := connection.RemoteAddr()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("%s: panic serving connection: %v", remote, r)
			s.sendHTTPResponse(connection, serverError())
		}
	}()
	s.logger.Printf("received incoming connection from %s", remote)

	data, reads, err := s.receiver.Receive(connection)
	if err != nil {
		s.logger.Printf("%s: could not read request: %v", remote, err)
		s.sendHTTPResponse(connection, serverError())
		return
	}
	s.logger.Printf("%s: read %d bytes in %d reads", remote, len(data), reads)

	request, err := codec.ParseRequest(data)
	if err != nil {
		s.logger.Printf("%s: %v", remote, err)
		s.sendHTTPResponse(connection, serverError())
		return
	}
	s.logger.Printf("%s: %s %s", remote, request.Method, request.Target)

	response := s.processRequest(request)
	s.sendHTTPResponse(connection, response)
}

func (s *Server) sendHTTPResponse(connection net.Conn, response httpResponse) {
	toSend := s.codec.BuildResponse(response.status, response.reason, response.body, response.headers...)
	if err := transport.Send(connection, toSend, s.cfg.WriteTimeout); err != nil {
		s.logger.Printf("%s: could not send %d response: %v", connection.RemoteAddr(), response.status, err)
		return
	}
	s.logger.Printf("%s: sent %d %s", connection.RemoteAddr(), response.status, response.reason)
}
