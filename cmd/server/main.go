// File: cmd/server/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Command server is the demonstration HTTP/1.1 image-transform server:
// a poll(2) reactor plus a fixed worker pool, wired together per
// spec.md §6.
//
// Grounded on original_source/src/main.cpp for the overall shape
// (listen on a fixed port, a worker pool, an accept loop that spawns
// one detached pipeline per connection, SIGTERM stops the reactor) and
// on the teacher's server/hioload.go for the Config/DefaultConfig
// idiom, scoped down to what this server actually needs.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/corvid-labs/reactorhttp/internal/async"
	"github.com/corvid-labs/reactorhttp/internal/bufpool"
	"github.com/corvid-labs/reactorhttp/internal/httpserver"
	"github.com/corvid-labs/reactorhttp/internal/ioctx"
	"github.com/corvid-labs/reactorhttp/internal/ioops"
	"github.com/corvid-labs/reactorhttp/internal/reactor"
	"github.com/corvid-labs/reactorhttp/internal/workerpool"
)

// Config holds the server's startup parameters. There is no config
// file and no environment variable is consumed, per spec.md §6.
type Config struct {
	Port          int
	NumWorkers    int
	ReadBufSize   int
	BufPoolDepth  int
	ListenBacklog int
}

// DefaultConfig matches the reference's compile-time constants: port
// 8080, an 8-thread pool.
func DefaultConfig() *Config {
	return &Config{
		Port:          8080,
		NumWorkers:    8,
		ReadBufSize:   64 * 1024,
		BufPoolDepth:  64,
		ListenBacklog: 1024,
	}
}

func main() {
	cfg := DefaultConfig()
	if err := run(cfg); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func run(cfg *Config) error {
	r, err := reactor.New()
	if err != nil {
		return err
	}
	defer r.Close()
	ctx := ioctx.New(r)

	sock, err := ioops.NewListeningSocket()
	if err != nil {
		return err
	}
	if err := sock.Bind(cfg.Port); err != nil {
		return err
	}
	if err := sock.Listen(cfg.ListenBacklog); err != nil {
		return err
	}
	defer sock.Close()

	pool := workerpool.New(cfg.NumWorkers)
	defer pool.Close()

	buffers := bufpool.NewSimpleBytePool(cfg.BufPoolDepth, cfg.ReadBufSize)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("server: SIGTERM received, stopping reactor")
		r.Stop()
	}()

	log.Printf("server: listening on :%d", cfg.Port)
	async.StartDetached(acceptLoop(ctx, pool, buffers, sock))

	r.Run()
	return nil
}

// acceptLoop repeatedly accepts a connection and starts a detached
// pipeline for it, looping until the reactor stops (at which point
// AsyncAccept completes *stopped* and the loop ends without error).
func acceptLoop(ctx *ioctx.Context, pool *workerpool.Pool, buffers bufpool.BytePool, sock *ioops.ListeningSocket) async.Operation[struct{}] {
	var step func() async.Operation[struct{}]
	step = func() async.Operation[struct{}] {
		return async.LetValue(ioops.AsyncAccept(ctx, sock), func(conn *ioops.Connection) async.Operation[struct{}] {
			async.StartDetached(httpserver.HandleConnection(ctx, pool, buffers, conn))
			return step()
		})
	}
	return async.LetStopped(async.LetError(step(), func(err error) async.Operation[struct{}] {
		log.Printf("server: accept loop error: %v", err)
		return async.JustStopped[struct{}]()
	}), func() async.Operation[struct{}] {
		return async.Just(struct{}{})
	})
}
