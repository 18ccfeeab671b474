// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package mqtt provides an MQTT v3.1.1 connection server: a streaming packet codec, a
// per-connection protocol state machine, and hooks through which the embedding
// application authenticates clients and receives their messages.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mochi-mqtt/conduit/listeners"
	"github.com/mochi-mqtt/conduit/packets"
	"github.com/mochi-mqtt/conduit/system"
)

const (
	Version                       = "1.0.0" // the current server version.
	defaultSysTopicInterval int64 = 1       // the interval between sys info updates in seconds
	defaultAckTimeout       int64 = 1000    // milliseconds to wait for a qos acknowledgement
	defaultMaxRetries             = 8       // resends of an unacknowledged qos packet
	defaultConnectTimeout   int64 = 10      // seconds a new connection may take to send connect
	maxPacketID                   = math.MaxUint16
)

var (
	ErrListenerIDExists = errors.New("listener id already exists") // a listener with the same id already exists
	ErrClientNotFound   = errors.New("client not found")           // no connected client has the requested id
	ErrServerClosed     = errors.New("server closed")              // the server has already been closed
)

// Capabilities indicates the capabilities and features provided by the server.
type Capabilities struct {
	MaximumClients    int64           `yaml:"maximum_clients" json:"maximum_clients"`         // maximum number of connected clients
	MaximumPacketID   uint16          `yaml:"maximum_packet_id" json:"maximum_packet_id"`     // highest outbound packet id before wrapping to 1
	MaximumPacketSize uint32          `yaml:"maximum_packet_size" json:"maximum_packet_size"` // largest inbound packet accepted, 0 is unlimited
	MaximumQos        byte            `yaml:"maximum_qos" json:"maximum_qos"`                 // maximum qos value granted to subscriptions
	Compatibilities   Compatibilities `yaml:"compatibilities" json:"compatibilities"`         // compatibility modes the server provides
}

// NewDefaultServerCapabilities defines the default features and capabilities provided by the server.
func NewDefaultServerCapabilities() *Capabilities {
	return &Capabilities{
		MaximumClients:  math.MaxInt64,
		MaximumPacketID: maxPacketID,
		MaximumQos:      2,
	}
}

// Compatibilities provides flags for using compatibility modes.
type Compatibilities struct {
	RestoreSysInfoOnRestart bool `yaml:"restore_sys_info_on_restart" json:"restore_sys_info_on_restart"` // restore system info counters from store as if server never stopped
}

// Options contains configurable options for the server.
type Options struct {
	// Listeners specifies any listeners which should be dynamically added on serve. Used when setting listeners by config.
	Listeners []listeners.Config `yaml:"listeners" json:"listeners"`

	// Hooks specifies any hooks which should be dynamically added on serve. Used when setting hooks by config.
	Hooks []HookLoadConfig `yaml:"-" json:"-"`

	// Capabilities defines the server features and behaviour. If you only wish to modify
	// several of these values, set them explicitly - e.g.
	// 	server.Options.Capabilities.MaximumQos = 1
	Capabilities *Capabilities `yaml:"capabilities" json:"capabilities"`

	// ClientNetReadBufferSize specifies the size of the buffer each client reads the network into.
	ClientNetReadBufferSize int `yaml:"client_net_read_buffer_size" json:"client_net_read_buffer_size"`

	// Logger specifies a custom configured implementation of log/slog to override
	// the servers default logger configuration. If you wish to change the log level
	// of the default logger, you can do so by setting:
	// 	level := new(slog.LevelVar)
	// 	server := mqtt.New(&mqtt.Options{
	// 		Logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})),
	// 	})
	// 	level.Set(slog.LevelDebug)
	Logger *slog.Logger `yaml:"-" json:"-"`

	// SysTopicResendInterval specifies the interval between sys info updates in seconds.
	SysTopicResendInterval int64 `yaml:"sys_topic_resend_interval" json:"sys_topic_resend_interval"`

	// AckTimeout is how long, in milliseconds, to wait for each acknowledgement of a qos
	// handshake before resending.
	AckTimeout int64 `yaml:"ack_timeout" json:"ack_timeout"`

	// MaxRetries is the number of resends of an unacknowledged qos packet before the
	// delivery fails. A negative value disables resending.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// ConnectTimeout is how long, in seconds, a new connection has to send its connect
	// packet. A negative value disables the deadline.
	ConnectTimeout int64 `yaml:"connect_timeout" json:"connect_timeout"`
}

// Server is an MQTT connection server. It should be created with server.New()
// in order to ensure all the internal fields are correctly populated.
type Server struct {
	Options   *Options             // configurable server options
	Listeners *listeners.Listeners // listeners are network interfaces which listen for new connections
	Clients   *Clients             // clients which are currently connected
	Info      *system.Info         // values about the server commonly known as $SYS topics
	Log       *slog.Logger         // structured logger
	sysTicker *time.Ticker         // interval ticker for updating system info
	done      chan bool            // indicate that the server is ending
	closed    uint32               // ensure the server is only closed once
	hooks     *Hooks               // hooks contains hooks for extra functionality such as auth and persistent storage
}

// New returns a new instance of the server. Optional parameters can be specified
// to override some default settings (see Options).
func New(opts *Options) *Server {
	if opts == nil {
		opts = new(Options)
	}

	opts.ensureDefaults()

	return &Server{
		done:      make(chan bool),
		Clients:   NewClients(),
		Listeners: listeners.New(),
		sysTicker: time.NewTicker(time.Second * time.Duration(opts.SysTopicResendInterval)),
		Options:   opts,
		Info: &system.Info{
			Version: Version,
			Started: time.Now().Unix(),
		},
		Log: opts.Logger,
		hooks: &Hooks{
			Log: opts.Logger,
		},
	}
}

// ensureDefaults ensures that the server starts with sane default values, if none are provided.
func (o *Options) ensureDefaults() {
	if o.Capabilities == nil {
		o.Capabilities = NewDefaultServerCapabilities()
	}

	if o.Capabilities.MaximumClients == 0 {
		o.Capabilities.MaximumClients = math.MaxInt64
	}

	if o.Capabilities.MaximumPacketID == 0 {
		o.Capabilities.MaximumPacketID = maxPacketID
	}

	if o.Capabilities.MaximumQos > byte(packets.ExactlyOnce) {
		o.Capabilities.MaximumQos = byte(packets.ExactlyOnce)
	}

	if o.SysTopicResendInterval == 0 {
		o.SysTopicResendInterval = defaultSysTopicInterval
	}

	if o.ClientNetReadBufferSize == 0 {
		o.ClientNetReadBufferSize = 1024 * 2
	}

	if o.AckTimeout == 0 {
		o.AckTimeout = defaultAckTimeout
	}

	if o.MaxRetries == 0 {
		o.MaxRetries = defaultMaxRetries
	}

	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}

	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
}

// NewClient returns a new Client instance, populated with all the required values and
// references to be used with the server.
func (s *Server) NewClient(c net.Conn, listener string) *Client {
	cl := newClient(c, &ops{
		options: s.Options,
		info:    s.Info,
		hooks:   s.hooks,
		log:     s.Log,
		clients: s.Clients,
	})

	cl.Net.Listener = listener
	return cl
}

// AddHook attaches a new Hook to the server. Ideally, this should be called
// before the server is started with s.Serve().
func (s *Server) AddHook(hook Hook, config any) error {
	nl := s.Log.With("hook", hook.ID())
	hook.SetOpts(nl, &HookOptions{
		Capabilities: s.Options.Capabilities,
	})

	s.Log.Info("added hook", "hook", hook.ID())
	return s.hooks.Add(hook, config)
}

// AddHooksFromConfig adds hooks to the server which were specified in the hooks config (usually from a config file).
func (s *Server) AddHooksFromConfig(hooks []HookLoadConfig) error {
	for _, h := range hooks {
		if err := s.AddHook(h.Hook, h.Config); err != nil {
			return err
		}
	}
	return nil
}

// AddListener adds a new network listener to the server, for receiving incoming client connections.
func (s *Server) AddListener(l listeners.Listener) error {
	if _, ok := s.Listeners.Get(l.ID()); ok {
		return ErrListenerIDExists
	}

	nl := s.Log.With(slog.String("listener", l.ID()))
	err := l.Init(nl)
	if err != nil {
		return err
	}

	s.Listeners.Add(l)

	s.Log.Info("attached listener", "id", l.ID(), "protocol", l.Protocol(), "address", l.Address())
	return nil
}

// AddListenersFromConfig adds listeners to the server which were specified in the listeners config (usually from a config file).
func (s *Server) AddListenersFromConfig(configs []listeners.Config) error {
	for _, conf := range configs {
		var l listeners.Listener
		switch strings.ToLower(conf.Type) {
		case listeners.TypeTCP:
			l = listeners.NewTCP(conf)
		case listeners.TypeWS:
			l = listeners.NewWebsocket(conf)
		case listeners.TypeUnix:
			l = listeners.NewUnixSock(conf)
		case listeners.TypeHealthCheck:
			l = listeners.NewHTTPHealthCheck(conf)
		case listeners.TypeSysInfo:
			l = listeners.NewHTTPStats(conf, s.Info)
		case listeners.TypeMock:
			l = listeners.NewMockListener(conf.ID, conf.Address)
		default:
			s.Log.Error("listener type unavailable by config", "listener", conf.Type)
			continue
		}
		if err := s.AddListener(l); err != nil {
			return err
		}
	}
	return nil
}

// Serve starts the event loops responsible for establishing client connections
// on all attached listeners, updating the system info, and starting all hooks.
func (s *Server) Serve() error {
	if atomic.LoadUint32(&s.closed) == 1 {
		return ErrServerClosed
	}

	s.Log.Info("mochi mqtt starting", "version", Version)
	defer s.Log.Info("mochi mqtt server started")

	if len(s.Options.Listeners) > 0 {
		err := s.AddListenersFromConfig(s.Options.Listeners)
		if err != nil {
			return err
		}
	}

	if len(s.Options.Hooks) > 0 {
		err := s.AddHooksFromConfig(s.Options.Hooks)
		if err != nil {
			return err
		}
	}

	if s.hooks.Provides(
		StoredClients,
		StoredMessages,
		StoredSysInfo,
	) {
		err := s.readStore()
		if err != nil {
			return err
		}
	}

	go s.eventLoop()                            // spin up event loop for updating system info and closing server.
	s.Listeners.ServeAll(s.EstablishConnection) // start listening on all listeners.
	s.updateSysInfo()
	s.hooks.OnStarted()

	return nil
}

// eventLoop loops forever, refreshing the system info at each tick.
func (s *Server) eventLoop() {
	s.Log.Debug("system event loop started")
	defer s.Log.Debug("system event loop halted")

	for {
		select {
		case <-s.done:
			s.sysTicker.Stop()
			return
		case <-s.sysTicker.C:
			s.updateSysInfo()
		}
	}
}

// updateSysInfo refreshes the runtime values of the system info and passes a copy to
// the hooks.
func (s *Server) updateSysInfo() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	now := time.Now().Unix()
	atomic.StoreInt64(&s.Info.MemoryAlloc, int64(m.HeapInuse))
	atomic.StoreInt64(&s.Info.Threads, int64(runtime.NumGoroutine()))
	atomic.StoreInt64(&s.Info.Time, now)
	atomic.StoreInt64(&s.Info.Uptime, now-atomic.LoadInt64(&s.Info.Started))

	s.hooks.OnSysInfoTick(s.Info.Clone())
}

// EstablishConnection establishes a new client when a listener accepts a new connection.
func (s *Server) EstablishConnection(listener string, c net.Conn) error {
	cl := s.NewClient(c, listener)
	return s.attachClient(cl)
}

// attachClient reads from the client until the connection ends, then stops it. The
// returned error is the reason the connection ended, nil for a clean disconnect.
func (s *Server) attachClient(cl *Client) error {
	s.Listeners.ClientsWg.Add(1)
	defer s.Listeners.ClientsWg.Done()

	err := cl.Read()
	cl.Stop(err)

	if errors.Is(err, ErrClientDisconnect) {
		return nil
	}

	return fmt.Errorf("client %q: %w", cl.ID, err)
}

// PublishToClient sends a message to a connected client, blocking until the qos
// handshake completes.
func (s *Server) PublishToClient(ctx context.Context, clientID string, msg packets.Message) error {
	cl, ok := s.Clients.Get(clientID)
	if !ok {
		return ErrClientNotFound
	}

	return cl.Publish(ctx, msg)
}

// DisconnectClient stops a connected client with the given reason.
func (s *Server) DisconnectClient(clientID string, err error) error {
	cl, ok := s.Clients.Get(clientID)
	if !ok {
		return ErrClientNotFound
	}

	cl.Stop(err)
	return nil
}

// Close attempts to gracefully shut down the server, all listeners, clients, and stores.
func (s *Server) Close() error {
	if !atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		return ErrServerClosed
	}

	close(s.done)
	s.Log.Info("gracefully stopping server")
	s.Listeners.CloseAll(s.closeListenerClients)
	s.hooks.OnStopped()
	if err := s.hooks.Stop(); err != nil {
		s.Log.Error("failed to stop hooks", "error", err)
	}

	s.Log.Info("mochi mqtt server stopped")
	return nil
}

// closeListenerClients closes all clients on the specified listener.
func (s *Server) closeListenerClients(listener string) {
	clients := s.Clients.GetByListener(listener)
	for _, cl := range clients {
		cl.Stop(packets.ErrServerShuttingDown)
	}
}

// readStore reads in any data from the persistent datastore (if applicable).
func (s *Server) readStore() error {
	if s.hooks.Provides(StoredClients) {
		clients, err := s.hooks.StoredClients()
		if err != nil {
			return fmt.Errorf("failed to load clients; %w", err)
		}
		s.Log.Info("found clients from previous run in store", "len", len(clients))
	}

	if s.hooks.Provides(StoredMessages) {
		messages, err := s.hooks.StoredMessages()
		if err != nil {
			return fmt.Errorf("load inflight; %w", err)
		}
		s.Log.Info("found undelivered messages from previous run in store", "len", len(messages))
	}

	if s.hooks.Provides(StoredSysInfo) {
		sysInfo, err := s.hooks.StoredSysInfo()
		if err != nil {
			return fmt.Errorf("load server info; %w", err)
		}
		s.loadServerInfo(sysInfo.Info)
		s.Log.Debug("loaded $SYS info from store")
	}

	return nil
}

// loadServerInfo restores server info from the datastore. Gauges describe the previous
// run and are never restored.
func (s *Server) loadServerInfo(v system.Info) {
	if !s.Options.Capabilities.Compatibilities.RestoreSysInfoOnRestart {
		return
	}

	atomic.StoreInt64(&s.Info.BytesReceived, v.BytesReceived)
	atomic.StoreInt64(&s.Info.BytesSent, v.BytesSent)
	atomic.StoreInt64(&s.Info.ClientsMaximum, v.ClientsMaximum)
	atomic.StoreInt64(&s.Info.ClientsTotal, v.ClientsTotal)
	atomic.StoreInt64(&s.Info.ClientsDisconnected, v.ClientsDisconnected)
	atomic.StoreInt64(&s.Info.MessagesReceived, v.MessagesReceived)
	atomic.StoreInt64(&s.Info.MessagesSent, v.MessagesSent)
	atomic.StoreInt64(&s.Info.MessagesDropped, v.MessagesDropped)
	atomic.StoreInt64(&s.Info.PacketsReceived, v.PacketsReceived)
	atomic.StoreInt64(&s.Info.PacketsSent, v.PacketsSent)
	atomic.StoreInt64(&s.Info.InflightDropped, v.InflightDropped)
	atomic.StoreInt64(&s.Info.Subscriptions, v.Subscriptions)
}
