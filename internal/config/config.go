// Package config holds the tunables shared by the client and server drivers.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/cyprienhm/http-file-exchange/internal/httpconstants"
)

const DEFAULT_BUFFER_SIZE = 1024
const DEFAULT_STATIC_DIR = "static"
const DEFAULT_SERVER_NAME = "Go HTTP Socket Server"

type Config struct {
	// Proto is written on every start line.
	Proto string
	// BufferSize is the size of each socket read and each file chunk sent.
	BufferSize int
	// StaticRoot is the directory GET/PUT targets resolve under.
	StaticRoot string
	// ServerName goes into the Server response header.
	ServerName string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration // 0 blocks until the peer closes
	WriteTimeout time.Duration

	// MaxMessageSize caps a received message, 0 means unlimited.
	MaxMessageSize int
	// Concurrent serves each accepted connection on its own goroutine.
	Concurrent bool
}

func Default() Config {
	return Config{
		Proto:      httpconstants.HTTP_VER,
		BufferSize: DEFAULT_BUFFER_SIZE,
		StaticRoot: DEFAULT_STATIC_DIR,
		ServerName: DEFAULT_SERVER_NAME,
	}
}

func (c Config) Validate() error {
	if c.Proto == "" {
		return errors.New("config: empty protocol version")
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("config: buffer size must be positive, got %d", c.BufferSize)
	}
	if c.StaticRoot == "" {
		return errors.New("config: empty static root")
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return errors.New("config: negative timeout")
	}
	if c.MaxMessageSize < 0 {
		return fmt.Errorf("config: negative max message size %d", c.MaxMessageSize)
	}
	return nil
}
