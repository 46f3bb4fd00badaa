// Package httpclient sends one GET or PUT over a fresh TCP connection and
// reads the response until the server closes.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/cyprienhm/http-file-exchange/internal/codec"
	"github.com/cyprienhm/http-file-exchange/internal/config"
	"github.com/cyprienhm/http-file-exchange/internal/files"
	"github.com/cyprienhm/http-file-exchange/internal/httpconstants"
	"github.com/cyprienhm/http-file-exchange/internal/transport"
)

var (
	ErrConnection        = errors.New("httpclient: connection error")
	ErrFileNotFound      = errors.New("httpclient: file not found")
	ErrUnsupportedMethod = errors.New("httpclient: unsupported method")
)

type Client struct {
	cfg      config.Config
	store    *files.Store
	codec    *codec.Codec
	receiver transport.Receiver
	logger   *log.Logger

	// OnRequest, if set, sees the request preamble before it is sent and
	// again with sent set once the request is fully written.
	OnRequest func(preamble []byte, sent bool)
}

func New(cfg config.Config, logger *log.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := files.NewStore(cfg.StaticRoot)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		cfg:      cfg,
		store:    store,
		codec:    codec.New(cfg),
		receiver: transport.NewReceiver(cfg),
		logger:   logger,
	}, nil
}

// Do performs one exchange with host:port. For PUT the body is the local
// file named by target under the client's static root; it must exist
// before anything is dialed.
func (c *Client) Do(ctx context.Context, host string, port int, method, target string) (*codec.Response, error) {
	method = strings.ToUpper(method)
	if method != httpconstants.METHOD_GET && method != httpconstants.METHOD_PUT {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	preamble, err := c.codec.BuildRequest(method, target, host, nil)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if method == httpconstants.METHOD_PUT {
		f, err := c.store.Open(target)
		if err != nil {
			if errors.Is(err, files.ErrNotFound) || errors.Is(err, files.ErrOutsideRoot) {
				return nil, fmt.Errorf("%w: %v", ErrFileNotFound, err)
			}
			return nil, err
		}
		defer f.Close()
		body = f
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	connection, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, addr, err)
	}
	defer connection.Close()
	stop := context.AfterFunc(ctx, func() { connection.Close() })
	defer stop()

	if c.OnRequest != nil {
		c.OnRequest(preamble, false)
	}
	if err := c.send(connection, preamble, body); err != nil {
		return nil, wrapConn(ctx, err)
	}
	if c.OnRequest != nil {
		c.OnRequest(preamble, true)
	}

	data, reads, err := c.receiver.Receive(connection)
	if err != nil {
		return nil, wrapConn(ctx, err)
	}
	c.logger.Printf("received %d bytes in %d reads from %s", len(data), reads, addr)
	return codec.ParseResponse(data)
}

func (c *Client) send(connection net.Conn, preamble []byte, body io.Reader) error {
	if err := transport.Send(connection, preamble, c.cfg.WriteTimeout); err != nil {
		return err
	}
	if body != nil {
		n, err := transport.SendFrom(connection, body, c.cfg.BufferSize, c.cfg.WriteTimeout)
		if err != nil {
			return err
		}
		c.logger.Printf("sent %d body bytes", n)
	}
	return transport.CloseWrite(connection)
}

func wrapConn(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ErrConnection, ctxErr)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}
