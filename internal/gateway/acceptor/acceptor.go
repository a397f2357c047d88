// Package acceptor binds the IMAP listening socket and hands each accepted
// connection to a fresh session engine running on its own goroutine.
package acceptor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Handler processes one accepted connection to completion and closes it.
// *session.Engine.Serve satisfies this.
type Handler func(conn net.Conn)

// Acceptor owns the listening socket and the per-remote-address accept rate
// limiter. One worker goroutine is spawned per accepted connection; there is
// no shared mutable state between those workers beyond the limiter itself
// and whatever the Handler closes over (the upstream client).
type Acceptor struct {
	addr    string
	handler Handler
	limiter *rateLimiter

	listener net.Listener
	wg       sync.WaitGroup
	active   int64
}

// New builds an Acceptor. maxPerMinute bounds accepted connections per
// remote address in a one-minute fixed window; zero disables the limiter.
func New(addr string, handler Handler, maxPerMinute int) *Acceptor {
	return &Acceptor{
		addr:    addr,
		handler: handler,
		limiter: newRateLimiter(maxPerMinute, time.Minute),
	}
}

// ActiveConnections returns the number of connections currently being
// served. Used by the health/status server.
func (a *Acceptor) ActiveConnections() int {
	return int(atomic.LoadInt64(&a.active))
}

// Run binds the listening socket and accepts connections until ctx is
// cancelled or a fatal accept error occurs. It blocks until then.
func (a *Acceptor) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("acceptor: listen %s: %w", a.addr, err)
	}
	a.listener = ln
	slog.Info("acceptor listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				a.wg.Wait()
				return nil
			}
			return fmt.Errorf("acceptor: accept: %w", err)
		}

		remoteHost, _, splitErr := net.SplitHostPort(conn.RemoteAddr().String())
		if splitErr != nil {
			remoteHost = conn.RemoteAddr().String()
		}
		if !a.limiter.Allow(remoteHost) {
			slog.Warn("connection rejected by rate limiter", "remote", remoteHost)
			conn.Close()
			continue
		}

		a.wg.Add(1)
		atomic.AddInt64(&a.active, 1)
		go func() {
			defer a.wg.Done()
			defer atomic.AddInt64(&a.active, -1)
			a.handler(conn)
		}()
	}
}

// Stop closes the listening socket, causing Run's Accept loop to return.
func (a *Acceptor) Stop() {
	if a.listener != nil {
		a.listener.Close()
	}
}
