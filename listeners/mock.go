// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package listeners

import (
	"errors"
	"log/slog"
	"net"
	"sync"
)

// ErrMockListen is returned by Init when a mock listener is set to fail.
var ErrMockListen = errors.New("listen failure")

// MockEstablisher is a function signature which can be used in testing.
func MockEstablisher(id string, c net.Conn) error {
	return nil
}

// MockCloser is a function signature which can be used in testing.
func MockCloser(id string) {}

// MockListener is a mock listener for establishing client connections. Connections
// are injected with Dial, which returns the peer end of an in-memory pipe.
type MockListener struct {
	sync.RWMutex
	id        string        // the id of the listener
	address   string        // the network address the listener binds to
	establish EstablishFn   // the establish handler passed to Serve
	serving   chan struct{} // closed once Serve has been called
	done      chan struct{} // closed when the listener is closed
	Serving   bool          // indicate the listener is serving
	Listening bool          // indicate the listener is listening
	ErrListen bool          // throw an error on listen
}

// NewMockListener returns a new instance of MockListener.
func NewMockListener(id, address string) *MockListener {
	return &MockListener{
		id:      id,
		address: address,
		serving: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Serve serves the mock listener until it is closed.
func (l *MockListener) Serve(establisher EstablishFn) {
	l.Lock()
	l.Serving = true
	l.establish = establisher
	close(l.serving)
	l.Unlock()

	<-l.done
}

// Dial connects a new in-memory client to the listener, running the establish
// handler on a goroutine. The returned channel receives the handler's result.
func (l *MockListener) Dial() (net.Conn, <-chan error) {
	<-l.serving

	l.RLock()
	establish := l.establish
	l.RUnlock()

	server, client := net.Pipe()
	errs := make(chan error, 1)
	go func() {
		errs <- establish(l.id, server)
	}()

	return client, errs
}

// Init initializes the listener.
func (l *MockListener) Init(log *slog.Logger) error {
	if l.ErrListen {
		return ErrMockListen
	}

	l.Lock()
	defer l.Unlock()
	l.Listening = true
	return nil
}

// ID returns the id of the mock listener.
func (l *MockListener) ID() string {
	return l.id
}

// Address returns the address of the listener.
func (l *MockListener) Address() string {
	return l.address
}

// Protocol returns the address of the listener.
func (l *MockListener) Protocol() string {
	return "mock"
}

// Close closes the mock listener.
func (l *MockListener) Close(closer CloseFn) {
	l.Lock()
	defer l.Unlock()
	l.Serving = false
	closer(l.id)
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}

// IsServing indicates whether the mock listener is serving.
func (l *MockListener) IsServing() bool {
	l.RLock()
	defer l.RUnlock()
	return l.Serving
}

// IsListening indicates whether the mock listener is listening.
func (l *MockListener) IsListening() bool {
	l.RLock()
	defer l.RUnlock()
	return l.Listening
}
