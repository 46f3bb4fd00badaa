package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/cyprienhm/http-file-exchange/internal/config"
	"github.com/cyprienhm/http-file-exchange/internal/httpclient"
)

func main() {
	cfg := config.Default()
	verbose := flag.Bool("v", false, "log transfer details to stderr")
	flag.StringVar(&cfg.StaticRoot, "static", cfg.StaticRoot, "directory PUT payloads are read from")
	flag.IntVar(&cfg.BufferSize, "buffer", cfg.BufferSize, "transfer chunk size in bytes")
	flag.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "connect timeout, 0 for the system default")
	flag.DurationVar(&cfg.ReadTimeout, "timeout", cfg.ReadTimeout, "per-read deadline, 0 waits forever")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <host> <port> <GET|PUT> <filename>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 4 {
		flag.Usage()
		os.Exit(2)
	}
	host, method, filename := flag.Arg(0), flag.Arg(2), flag.Arg(3)
	port, err := strconv.Atoi(flag.Arg(1))
	if err != nil {
		fmt.Println("Invalid port:", flag.Arg(1))
		os.Exit(2)
	}

	var logger *log.Logger
	if *verbose {
		logger = log.New(os.Stderr, "client: ", log.LstdFlags)
	}
	client, err := httpclient.New(cfg, logger)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	client.OnRequest = func(preamble []byte, sent bool) {
		if sent {
			fmt.Println("request sent")
			return
		}
		fmt.Println("Ready to send the following HTTP request:")
		fmt.Println(string(preamble))
	}

	response, err := client.Do(context.Background(), host, port, method, filename)
	if err != nil {
		fmt.Println("Request failed:", err)
		os.Exit(1)
	}
	fmt.Printf("%s %d %s\n", response.Proto, response.StatusCode, response.Reason)
	os.Stdout.Write(response.Body)
}
