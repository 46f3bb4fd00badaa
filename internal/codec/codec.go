// Package codec turns requests and responses into HTTP/1.1 bytes and back.
//
// Messages carry no Content-Length of their own: a body runs from the
// blank line after the headers to the end of the stream. Nothing here
// touches a socket.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cyprienhm/http-file-exchange/internal/config"
	"github.com/cyprienhm/http-file-exchange/internal/httpconstants"
)

var (
	ErrInvalidArgument   = errors.New("codec: invalid argument")
	ErrMalformedRequest  = errors.New("codec: malformed request")
	ErrMalformedResponse = errors.New("codec: malformed response")
)

type Header struct {
	Name  string
	Value string
}

type Request struct {
	Method  string
	Target  string
	Proto   string
	Headers []Header
	Body    []byte
}

type Response struct {
	Proto      string
	StatusCode int
	Reason     string
	Headers    []Header
	Body       []byte
}

func (r *Request) Header(name string) (string, bool) {
	return lookup(r.Headers, name)
}

func (r *Response) Header(name string) (string, bool) {
	return lookup(r.Headers, name)
}

func lookup(headers []Header, name string) (string, bool) {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// Codec builds messages for one endpoint.
type Codec struct {
	Proto      string
	ServerName string
	Now        func() time.Time
}

func New(cfg config.Config) *Codec {
	return &Codec{
		Proto:      cfg.Proto,
		ServerName: cfg.ServerName,
		Now:        time.Now,
	}
}

// BuildRequest returns "METHOD target PROTO\r\nHost: host\r\n\r\n" followed by body.
func (c *Codec) BuildRequest(method, target, host string, body []byte) ([]byte, error) {
	if method == "" || target == "" || host == "" {
		return nil, fmt.Errorf("%w: method, target and host must be non-empty", ErrInvalidArgument)
	}
	if strings.ContainsAny(target, " \r\n") {
		return nil, fmt.Errorf("%w: target %q contains whitespace", ErrInvalidArgument, target)
	}

	var toSend bytes.Buffer
	toSend.WriteString(strings.ToUpper(method))
	toSend.WriteString(" ")
	toSend.WriteString(target)
	toSend.WriteString(" ")
	toSend.WriteString(c.Proto)
	toSend.WriteString(httpconstants.CRLF)
	writeHeader(&toSend, httpconstants.HEADER_HOST, host)
	toSend.WriteString(httpconstants.CRLF)
	toSend.Write(body)
	return toSend.Bytes(), nil
}

// BuildResponse returns a status line, the Date, Server and Connection
// headers, any extra headers, a blank line and then body.
func (c *Codec) BuildResponse(status int, reason string, body []byte, extra ...Header) []byte {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	var toSend bytes.Buffer
	toSend.WriteString(c.Proto)
	toSend.WriteString(" ")
	toSend.WriteString(strconv.Itoa(status))
	toSend.WriteString(" ")
	toSend.WriteString(reason)
	toSend.WriteString(httpconstants.CRLF)
	writeHeader(&toSend, httpconstants.HEADER_DATE, now().UTC().Format(httpconstants.DATE_FORMAT))
	writeHeader(&toSend, httpconstants.HEADER_SERVER, c.ServerName)
	writeHeader(&toSend, httpconstants.HEADER_CONNECTION, httpconstants.CONNECTION_CLOSE)
	for _, h := range extra {
		writeHeader(&toSend, h.Name, h.Value)
	}
	toSend.WriteString(httpconstants.CRLF)
	toSend.Write(body)
	return toSend.Bytes()
}

func writeHeader(b *bytes.Buffer, name, value string) {
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString(httpconstants.CRLF)
}

// ParseRequest splits a fully received request into its parts.
func ParseRequest(data []byte) (*Request, error) {
	startLine, headers, body, err := split(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	tokens := strings.Fields(startLine)
	if len(tokens) < 2 {
		return nil, fmt.Errorf("%w: start line %q", ErrMalformedRequest, startLine)
	}
	req := &Request{
		Method:  tokens[0],
		Target:  tokens[1],
		Headers: headers,
		Body:    body,
	}
	if len(tokens) > 2 {
		req.Proto = tokens[2]
	}
	return req, nil
}

// ParseResponse splits a fully received response into its parts. The
// reason phrase is everything after the status code.
func ParseResponse(data []byte) (*Response, error) {
	startLine, headers, body, err := split(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	proto, rest, found := strings.Cut(startLine, " ")
	if !found || proto == "" {
		return nil, fmt.Errorf("%w: status line %q", ErrMalformedResponse, startLine)
	}
	code, reason, _ := strings.Cut(rest, " ")
	status, err := strconv.Atoi(code)
	if err != nil || status < 100 || status > 999 {
		return nil, fmt.Errorf("%w: status code %q", ErrMalformedResponse, code)
	}
	return &Response{
		Proto:      proto,
		StatusCode: status,
		Reason:     reason,
		Headers:    headers,
		Body:       body,
	}, nil
}

func split(data []byte) (string, []Header, []byte, error) {
	head, body, found := bytes.Cut(data, []byte(httpconstants.HEADER_END))
	if !found {
		return "", nil, nil, errors.New("no header terminator")
	}
	lines := strings.Split(string(head), httpconstants.CRLF)
	var headers []Header
	for _, headerLine := range lines[1:] {
		headerKey, headerValue, found := strings.Cut(headerLine, ":")
		if !found {
			continue
		}
		headers = append(headers, Header{
			Name:  strings.TrimSpace(headerKey),
			Value: strings.TrimSpace(headerValue),
		})
	}
	if len(body) == 0 {
		body = nil
	}
	return lines[0], headers, body, nil
}

// HeaderEnd reports the offset just past the blank line ending the
// headers, or -1 when the terminator has not arrived yet.
func HeaderEnd(data []byte) int {
	i := bytes.Index(data, []byte(httpconstants.HEADER_END))
	if i < 0 {
		return -1
	}
	return i + len(httpconstants.HEADER_END)
}

// ContentLength reads an optional Content-Length header. ok is false when
// the header is absent.
func ContentLength(headers []Header) (n int, ok bool, err error) {
	v, ok := lookup(headers, httpconstants.HEADER_CONTENT_LENGTH)
	if !ok {
		return 0, false, nil
	}
	n, err = strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, true, fmt.Errorf("invalid Content-Length %q", v)
	}
	return n, true, nil
}

// ParseHeaders parses only the header block of a partially received
// message. data must contain the terminator.
func ParseHeaders(data []byte) ([]Header, error) {
	_, headers, _, err := split(data)
	return headers, err
}
