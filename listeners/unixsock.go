// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: jason@zgwit.com

package listeners

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
)

// ErrNotSocket indicates the unix listener path is taken by something other than a socket.
var ErrNotSocket = errors.New("path exists and is not a socket")

// UnixSock is a listener for establishing client connections on a unix domain socket.
// The socket file is created on Init and removed on Close.
type UnixSock struct {
	stream
}

// NewUnixSock initialises and returns a new UnixSock listener, listening on a socket path.
func NewUnixSock(config Config) *UnixSock {
	return &UnixSock{
		stream: stream{
			id:      config.ID,
			address: config.Address,
		},
	}
}

// Protocol returns the protocol of the listener.
func (l *UnixSock) Protocol() string {
	return "unix"
}

// Init listens on the socket path. A socket file left behind by an earlier run is
// replaced, but any other file at the path is an error.
func (l *UnixSock) Init(log *slog.Logger) error {
	l.log = log

	fi, err := os.Lstat(l.address)
	switch {
	case err == nil && fi.Mode().Type() != fs.ModeSocket:
		return fmt.Errorf("%s: %w", l.address, ErrNotSocket)
	case err == nil:
		if err := os.Remove(l.address); err != nil {
			return err
		}
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}

	l.listen, err = net.Listen("unix", l.address)
	return err
}

// Close closes the listener and any client connections, and removes the socket file.
func (l *UnixSock) Close(closeClients CloseFn) {
	if l.shut(closeClients) && l.listen != nil {
		_ = os.Remove(l.address)
	}
}
