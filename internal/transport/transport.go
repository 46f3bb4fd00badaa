// Package transport moves whole messages over a stream.
//
// A message ends when the peer closes its write side. The receiver keeps
// reading until it sees EOF, never until the bytes merely look complete.
package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cyprienhm/http-file-exchange/internal/codec"
	"github.com/cyprienhm/http-file-exchange/internal/config"
	"github.com/cyprienhm/http-file-exchange/internal/httpconstants"
)

var ErrMessageTooLarge = errors.New("transport: message too large")

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// HalfCloser is a stream whose send direction can be shut on its own.
// *net.TCPConn and *net.UnixConn implement it.
type HalfCloser interface {
	CloseWrite() error
}

type Receiver struct {
	BufferSize int
	Timeout    time.Duration
	MaxSize    int
	// HonorContentLength stops reading once the headers and a declared
	// Content-Length body are in, without waiting for EOF.
	HonorContentLength bool
}

func NewReceiver(cfg config.Config) Receiver {
	return Receiver{
		BufferSize: cfg.BufferSize,
		Timeout:    cfg.ReadTimeout,
		MaxSize:    cfg.MaxMessageSize,
	}
}

// Receive accumulates reads from r until EOF. reads counts the reads that
// returned data.
func (rc Receiver) Receive(r io.Reader) (data []byte, reads int, err error) {
	size := rc.BufferSize
	if size <= 0 {
		size = config.DEFAULT_BUFFER_SIZE
	}
	buffer := make([]byte, size)
	dl, canDeadline := r.(readDeadliner)
	want := -1
	headersSeen := false

	for {
		if canDeadline && rc.Timeout > 0 {
			if err := dl.SetReadDeadline(time.Now().Add(rc.Timeout)); err != nil {
				return data, reads, fmt.Errorf("transport: set read deadline: %w", err)
			}
		}
		n, err := r.Read(buffer)
		if n > 0 {
			reads++
			prev := len(data)
			data = append(data, buffer[:n]...)
			if rc.MaxSize > 0 && len(data) > rc.MaxSize {
				return data, reads, fmt.Errorf("%w: more than %d bytes", ErrMessageTooLarge, rc.MaxSize)
			}
			if rc.HonorContentLength && !headersSeen {
				// only the new bytes, plus enough overlap for a split terminator
				from := max(0, prev-len(httpconstants.HEADER_END)+1)
				if end := codec.HeaderEnd(data[from:]); end >= 0 {
					headersSeen = true
					want = declaredLength(data[:from+end])
				}
			}
			if want >= 0 && len(data) >= want {
				return data[:want], reads, nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return data, reads, nil
			}
			return data, reads, fmt.Errorf("transport: read: %w", err)
		}
	}
}

// declaredLength returns the full message length implied by a
// Content-Length header in head, or -1 if there is none. head ends with
// the header terminator.
func declaredLength(head []byte) int {
	headers, err := codec.ParseHeaders(head)
	if err != nil {
		return -1
	}
	n, ok, err := codec.ContentLength(headers)
	if !ok || err != nil {
		return -1
	}
	return len(head) + n
}

// Send writes data in full, applying timeout when w supports deadlines.
func Send(w io.Writer, data []byte, timeout time.Duration) error {
	if err := setWriteDeadline(w, timeout); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// SendFrom copies src to w through a buffer of bufferSize bytes.
func SendFrom(w io.Writer, src io.Reader, bufferSize int, timeout time.Duration) (int64, error) {
	if bufferSize <= 0 {
		bufferSize = config.DEFAULT_BUFFER_SIZE
	}
	if err := setWriteDeadline(w, timeout); err != nil {
		return 0, err
	}
	// hide any ReaderFrom/WriterTo so the copy really goes chunk by chunk
	n, err := io.CopyBuffer(struct{ io.Writer }{w}, struct{ io.Reader }{src}, make([]byte, bufferSize))
	if err != nil {
		return n, fmt.Errorf("transport: write: %w", err)
	}
	return n, nil
}

// CloseWrite half-closes w when possible. Streams without a send-only
// shutdown are left as they are.
func CloseWrite(w io.Writer) error {
	hc, ok := w.(HalfCloser)
	if !ok {
		return nil
	}
	if err := hc.CloseWrite(); err != nil {
		return fmt.Errorf("transport: close write: %w", err)
	}
	return nil
}

func setWriteDeadline(w io.Writer, timeout time.Duration) error {
	dl, ok := w.(writeDeadliner)
	if !ok || timeout <= 0 {
		return nil
	}
	if err := dl.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("transport: set write deadline: %w", err)
	}
	return nil
}
