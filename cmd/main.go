// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/mochi-mqtt/conduit"
	"github.com/mochi-mqtt/conduit/config"
	"github.com/mochi-mqtt/conduit/hooks/auth"
	"github.com/mochi-mqtt/conduit/listeners"
)

type flags struct {
	tcpAddr    string
	wsAddr     string
	infoAddr   string
	configFile string
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("conduit", flag.ContinueOnError)
	fs.StringVar(&f.tcpAddr, "tcp", ":1883", "network address for TCP listener")
	fs.StringVar(&f.wsAddr, "ws", ":1882", "network address for Websocket listener")
	fs.StringVar(&f.infoAddr, "info", ":8080", "network address for web info dashboard listener")
	fs.StringVar(&f.configFile, "config", "", "path to a yaml or json config file, overrides the listener flags")
	err := fs.Parse(args)
	return f, err
}

// newServer builds a server from the config file if one is given, or an
// allow-all server listening on the flag addresses otherwise.
func newServer(f flags) (*mqtt.Server, error) {
	if f.configFile != "" {
		opts, err := config.FromFile(f.configFile)
		if err != nil {
			return nil, err
		}
		return mqtt.New(opts), nil
	}

	server := mqtt.New(nil)
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, err
	}

	if err := server.AddListener(listeners.NewTCP(listeners.Config{
		Type:    listeners.TypeTCP,
		ID:      "t1",
		Address: f.tcpAddr,
	})); err != nil {
		return nil, err
	}

	if err := server.AddListener(listeners.NewWebsocket(listeners.Config{
		Type:    listeners.TypeWS,
		ID:      "ws1",
		Address: f.wsAddr,
	})); err != nil {
		return nil, err
	}

	if err := server.AddListener(listeners.NewHTTPStats(listeners.Config{
		Type:    listeners.TypeSysInfo,
		ID:      "stats",
		Address: f.infoAddr,
	}, server.Info)); err != nil {
		return nil, err
	}

	return server, nil
}

// run serves until ctx is cancelled, then closes the server.
func run(ctx context.Context, server *mqtt.Server) error {
	if err := server.Serve(); err != nil {
		_ = server.Close()
		return err
	}

	<-ctx.Done()
	server.Log.Warn("caught signal, stopping...")
	return server.Close()
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	server, err := newServer(f)
	if err != nil {
		slog.Default().Error("failed to configure server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, server); err != nil {
		server.Log.Error("server stopped", "error", err)
		os.Exit(1)
	}
	server.Log.Info("main.go finished")
}
