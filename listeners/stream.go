// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package listeners

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
)

// stream is the accept loop and shutdown shared by the listeners which carry mqtt
// directly over a net.Listener byte stream.
type stream struct {
	sync.Mutex
	id      string       // the internal id of the listener
	address string       // the configured address to bind to
	listen  net.Listener // accepts new connections once initialized
	log     *slog.Logger // server logger
	end     uint32       // set once the listener is closing
}

// ID returns the id of the listener.
func (l *stream) ID() string {
	return l.id
}

// Address returns the bound address once listening, and the configured address before.
func (l *stream) Address() string {
	if l.listen != nil {
		return l.listen.Addr().String()
	}
	return l.address
}

// Serve hands each accepted connection to establish on its own goroutine until the
// listener is closed.
func (l *stream) Serve(establish EstablishFn) {
	for {
		if atomic.LoadUint32(&l.end) == 1 {
			return
		}

		conn, err := l.listen.Accept()
		if err != nil {
			return
		}

		if atomic.LoadUint32(&l.end) == 1 {
			_ = conn.Close()
			return
		}

		go func() {
			if err := establish(l.id, conn); err != nil && l.log != nil {
				l.log.Debug("connection ended", "listener", l.id, "error", err)
			}
		}()
	}
}

// shut stops accepting connections. The clients of the listener are closed by the
// first call only, which is the one returning true.
func (l *stream) shut(closeClients CloseFn) bool {
	l.Lock()
	defer l.Unlock()

	first := atomic.CompareAndSwapUint32(&l.end, 0, 1)
	if first {
		closeClients(l.id)
	}

	if l.listen != nil {
		_ = l.listen.Close()
	}

	return first
}
