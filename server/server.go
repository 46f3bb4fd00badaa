package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cyprienhm/http-file-exchange/internal/config"
	"github.com/cyprienhm/http-file-exchange/internal/files"
	"github.com/cyprienhm/http-file-exchange/internal/httpserver"
)

func main() {
	cfg := config.Default()
	flag.StringVar(&cfg.StaticRoot, "static", cfg.StaticRoot, "directory GET and PUT targets resolve under")
	flag.IntVar(&cfg.BufferSize, "buffer", cfg.BufferSize, "socket read size in bytes")
	flag.DurationVar(&cfg.ReadTimeout, "timeout", cfg.ReadTimeout, "per-read deadline, 0 waits forever")
	flag.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "response write deadline, 0 waits forever")
	flag.IntVar(&cfg.MaxMessageSize, "max-size", cfg.MaxMessageSize, "largest accepted request in bytes, 0 for no limit")
	flag.BoolVar(&cfg.Concurrent, "concurrent", cfg.Concurrent, "serve connections in parallel")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <port>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	port, err := strconv.Atoi(flag.Arg(0))
	if err != nil || port < 0 || port > 65535 {
		fmt.Println("Invalid port:", flag.Arg(0))
		os.Exit(2)
	}

	logger := log.New(os.Stderr, "server: ", log.LstdFlags)
	store, err := files.NewStore(cfg.StaticRoot)
	if err != nil {
		logger.Fatal(err)
	}
	server, err := httpserver.New(cfg, store, logger)
	if err != nil {
		logger.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = server.ListenAndServe(ctx, net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil && !errors.Is(err, httpserver.ErrServerClosed) {
		logger.Fatal(err)
	}
	logger.Println("shut down")
}
