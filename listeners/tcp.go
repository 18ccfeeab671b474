// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package listeners

import (
	"crypto/tls"
	"log/slog"
	"net"
)

// TCP is a listener for establishing client connections on basic TCP protocol,
// optionally wrapped in TLS.
type TCP struct { // [MQTT-4.2.0-1]
	stream
	tlsConfig *tls.Config
}

// NewTCP initialises and returns a new TCP listener, listening on an address.
func NewTCP(config Config) *TCP {
	return &TCP{
		stream: stream{
			id:      config.ID,
			address: config.Address,
		},
		tlsConfig: config.TLSConfig,
	}
}

// Protocol returns the protocol of the listener.
func (l *TCP) Protocol() string {
	return "tcp"
}

// Init binds the listener to its address.
func (l *TCP) Init(log *slog.Logger) error {
	l.log = log

	var err error
	if l.tlsConfig != nil {
		l.listen, err = tls.Listen("tcp", l.address, l.tlsConfig)
	} else {
		l.listen, err = net.Listen("tcp", l.address)
	}

	return err
}

// Close closes the listener and any client connections.
func (l *TCP) Close(closeClients CloseFn) {
	l.shut(closeClients)
}
