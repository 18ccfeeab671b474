// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co, thedevop, dgduncan

package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mochi-mqtt/conduit/hooks/storage"
	"github.com/mochi-mqtt/conduit/packets"
	"github.com/mochi-mqtt/conduit/system"
)

const (
	SetOptions byte = iota
	OnSysInfoTick
	OnStarted
	OnStopped
	OnConnectAuthenticate
	OnACLCheck
	OnConnect
	OnSessionEstablished
	OnDisconnect
	OnPacketRead
	OnPacketSent
	OnSubscribe
	OnUnsubscribe
	OnPublish
	OnPublishDropped
	OnQosPublish
	OnQosComplete
	OnQosDropped
	StoredClients
	StoredMessages
	StoredSysInfo
)

var (
	// ErrInvalidConfigType indicates a different Type of config value was expected to what was received.
	ErrInvalidConfigType = errors.New("invalid config type provided")
)

// ConnectDetails contains the values a client presented in its Connect packet,
// along with where it connected from. It lives for the duration of the session.
type ConnectDetails struct {
	ClientID     string           `json:"client_id"`
	Clean        bool             `json:"clean"`
	Keepalive    uint16           `json:"keepalive"`
	UsernameFlag bool             `json:"username_flag"`
	Username     string           `json:"username"`
	PasswordFlag bool             `json:"password_flag"`
	Password     []byte           `json:"-"`
	Will         *packets.Message `json:"will,omitempty"`
	Remote       string           `json:"remote"`
	Listener     string           `json:"listener"`
}

// newConnectDetails builds the connect details for a decoded connect packet.
func newConnectDetails(pk *packets.ConnectPacket, remote, listener string) ConnectDetails {
	return ConnectDetails{
		ClientID:     pk.ClientIdentifier,
		Clean:        pk.CleanSession,
		Keepalive:    pk.Keepalive,
		UsernameFlag: pk.UsernameFlag,
		Username:     pk.Username,
		PasswordFlag: pk.PasswordFlag,
		Password:     pk.Password,
		Will:         pk.Will,
		Remote:       remote,
		Listener:     listener,
	}
}

// Authorization is the outcome of a connect authentication check. A Code other than
// packets.CodeConnectionAccepted rejects the connection with that connack return code.
type Authorization struct {
	Code           packets.Code
	SessionPresent bool
}

// Accepted returns true if the authorization admits the client.
func (a Authorization) Accepted() bool {
	return a.Code == packets.CodeConnectionAccepted
}

// Hook provides an interface of handlers for different events which occur
// during the lifecycle of a connection.
type Hook interface {
	ID() string
	Provides(b byte) bool
	Init(config any) error
	Stop() error
	SetOpts(l *slog.Logger, o *HookOptions)
	OnStarted()
	OnStopped()
	OnSysInfoTick(*system.Info)
	OnConnectAuthenticate(cl *Client, details ConnectDetails) Authorization
	OnACLCheck(cl *Client, topic string, write bool) bool
	OnConnect(cl *Client, details ConnectDetails) error
	OnSessionEstablished(cl *Client, details ConnectDetails)
	OnDisconnect(cl *Client, err error)
	OnPacketRead(cl *Client, pk packets.Packet)           // triggers when a packet is decoded, before it is processed
	OnPacketSent(cl *Client, pk packets.Packet, b []byte) // triggers when packet bytes have been written to the client
	OnSubscribe(cl *Client, pk *packets.SubscribePacket, codes []byte) []byte
	OnUnsubscribe(cl *Client, pk *packets.UnsubscribePacket)
	OnPublish(cl *Client, pk *packets.PublishPacket)
	OnPublishDropped(cl *Client, pk *packets.PublishPacket)
	OnQosPublish(cl *Client, pk *packets.PublishPacket, sent int64, resends int)
	OnQosComplete(cl *Client, pk *packets.PublishPacket)
	OnQosDropped(cl *Client, pk *packets.PublishPacket)
	StoredClients() ([]storage.Client, error)
	StoredMessages() ([]storage.Message, error)
	StoredSysInfo() (storage.SystemInfo, error)
}

// HookOptions contains values which are inherited from the server on initialisation.
type HookOptions struct {
	Capabilities *Capabilities
}

// HookLoadConfig contains the hook and configuration as loaded from a configuration (usually file).
type HookLoadConfig struct {
	Hook   Hook
	Config any
}

// Hooks is a slice of Hook interfaces to be called in sequence.
type Hooks struct {
	Log        *slog.Logger // a logger for the hook (from the server)
	internal   atomic.Value // a slice of []Hook
	qty        int64        // the number of hooks in use
	sync.Mutex              // a mutex for locking when adding hooks
}

// Len returns the number of hooks added.
func (h *Hooks) Len() int64 {
	return atomic.LoadInt64(&h.qty)
}

// Provides returns true if any one hook provides any of the requested hook methods.
func (h *Hooks) Provides(b ...byte) bool {
	for _, hook := range h.GetAll() {
		for _, hb := range b {
			if hook.Provides(hb) {
				return true
			}
		}
	}

	return false
}

// Add adds and initializes a new hook.
func (h *Hooks) Add(hook Hook, config any) error {
	h.Lock()
	defer h.Unlock()

	err := hook.Init(config)
	if err != nil {
		return fmt.Errorf("failed initialising %s hook: %w", hook.ID(), err)
	}

	i, ok := h.internal.Load().([]Hook)
	if !ok {
		i = []Hook{}
	}

	i = append(i, hook)
	h.internal.Store(i)
	atomic.AddInt64(&h.qty, 1)

	return nil
}

// GetAll returns a slice of all the hooks.
func (h *Hooks) GetAll() []Hook {
	i, ok := h.internal.Load().([]Hook)
	if !ok {
		return []Hook{}
	}

	return i
}

// Stop indicates all attached hooks to gracefully end. Hooks are stopped
// concurrently, and the first error encountered is returned.
func (h *Hooks) Stop() error {
	var g errgroup.Group
	for _, hook := range h.GetAll() {
		hook := hook
		g.Go(func() error {
			h.log().Info("stopping hook", "hook", hook.ID())
			if err := hook.Stop(); err != nil {
				h.log().Debug("problem stopping hook", "error", err, "hook", hook.ID())
				return fmt.Errorf("stop %s hook: %w", hook.ID(), err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (h *Hooks) log() *slog.Logger {
	if h.Log == nil {
		return slog.Default()
	}
	return h.Log
}

// OnSysInfoTick is called when the server system info values are refreshed.
func (h *Hooks) OnSysInfoTick(sys *system.Info) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnSysInfoTick) {
			hook.OnSysInfoTick(sys)
		}
	}
}

// OnStarted is called when the server has successfully started.
func (h *Hooks) OnStarted() {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnStarted) {
			hook.OnStarted()
		}
	}
}

// OnStopped is called when the server has successfully stopped.
func (h *Hooks) OnStopped() {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnStopped) {
			hook.OnStopped()
		}
	}
}

// OnConnect is called when a new client connects, before authentication. Returning
// a packets.Code error rejects the connection with that return code; any other
// error rejects it as server unavailable.
func (h *Hooks) OnConnect(cl *Client, details ConnectDetails) error {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnConnect) {
			if err := hook.OnConnect(cl, details); err != nil {
				return err
			}
		}
	}

	return nil
}

// OnSessionEstablished is called when a new client has been accepted and the
// connack has been sent.
func (h *Hooks) OnSessionEstablished(cl *Client, details ConnectDetails) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnSessionEstablished) {
			hook.OnSessionEstablished(cl, details)
		}
	}
}

// OnDisconnect is called once when a client connection ends, for any reason.
func (h *Hooks) OnDisconnect(cl *Client, err error) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnDisconnect) {
			hook.OnDisconnect(cl, err)
		}
	}
}

// OnPacketRead is called when a packet has been decoded from a client.
func (h *Hooks) OnPacketRead(cl *Client, pk packets.Packet) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnPacketRead) {
			hook.OnPacketRead(cl, pk)
		}
	}
}

// OnPacketSent is called when a packet has been written to a client.
func (h *Hooks) OnPacketSent(cl *Client, pk packets.Packet, b []byte) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnPacketSent) {
			hook.OnPacketSent(cl, pk, b)
		}
	}
}

// OnSubscribe is called when a client subscribes to one or more filters. The codes
// are the default suback return codes, index-aligned with the requested filters; each
// hook may return a replacement set. A replacement of the wrong length is ignored.
func (h *Hooks) OnSubscribe(cl *Client, pk *packets.SubscribePacket, codes []byte) []byte {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnSubscribe) {
			next := hook.OnSubscribe(cl, pk, codes)
			if len(next) != len(codes) {
				h.log().Warn("ignoring suback codes of wrong length", "hook", hook.ID(), "client", cl.ID)
				continue
			}
			codes = next
		}
	}

	return codes
}

// OnUnsubscribe is called when a client unsubscribes from one or more filters.
func (h *Hooks) OnUnsubscribe(cl *Client, pk *packets.UnsubscribePacket) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnUnsubscribe) {
			hook.OnUnsubscribe(cl, pk)
		}
	}
}

// OnPublish is called when a client has published a message and the delivery
// handshake for its qos has completed.
func (h *Hooks) OnPublish(cl *Client, pk *packets.PublishPacket) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnPublish) {
			hook.OnPublish(cl, pk)
		}
	}
}

// OnPublishDropped is called when an inbound message is discarded, either because
// the client was not permitted to publish to the topic, or because the qos 2
// release never arrived.
func (h *Hooks) OnPublishDropped(cl *Client, pk *packets.PublishPacket) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnPublishDropped) {
			hook.OnPublishDropped(cl, pk)
		}
	}
}

// OnQosPublish is called when an outbound qos > 0 publish is sent or resent.
func (h *Hooks) OnQosPublish(cl *Client, pk *packets.PublishPacket, sent int64, resends int) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnQosPublish) {
			hook.OnQosPublish(cl, pk, sent, resends)
		}
	}
}

// OnQosComplete is called when the delivery handshake of an outbound qos > 0 publish completes.
func (h *Hooks) OnQosComplete(cl *Client, pk *packets.PublishPacket) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnQosComplete) {
			hook.OnQosComplete(cl, pk)
		}
	}
}

// OnQosDropped is called when an outbound qos > 0 publish is abandoned without
// completing its handshake.
func (h *Hooks) OnQosDropped(cl *Client, pk *packets.PublishPacket) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnQosDropped) {
			hook.OnQosDropped(cl, pk)
		}
	}
}

// StoredClients returns all clients from the first hook which provides a store.
func (h *Hooks) StoredClients() (v []storage.Client, err error) {
	for _, hook := range h.GetAll() {
		if hook.Provides(StoredClients) {
			v, err := hook.StoredClients()
			if err != nil {
				h.log().Error("failed to load clients", "error", err, "hook", hook.ID())
				return v, err
			}

			if len(v) > 0 {
				return v, nil
			}
		}
	}

	return
}

// StoredMessages returns all journaled in-flight messages from the first hook
// which provides a store.
func (h *Hooks) StoredMessages() (v []storage.Message, err error) {
	for _, hook := range h.GetAll() {
		if hook.Provides(StoredMessages) {
			v, err := hook.StoredMessages()
			if err != nil {
				h.log().Error("failed to load messages", "error", err, "hook", hook.ID())
				return v, err
			}

			if len(v) > 0 {
				return v, nil
			}
		}
	}

	return
}

// StoredSysInfo returns a set of system info values.
func (h *Hooks) StoredSysInfo() (v storage.SystemInfo, err error) {
	for _, hook := range h.GetAll() {
		if hook.Provides(StoredSysInfo) {
			v, err := hook.StoredSysInfo()
			if err != nil {
				h.log().Error("failed to load $SYS info", "error", err, "hook", hook.ID())
				return v, err
			}

			if v.Version != "" {
				return v, nil
			}
		}
	}

	return
}

// OnConnectAuthenticate is called when a client attempts to connect. The first hook
// to accept the client wins. If no hook accepts, the last rejection is returned, or
// not authorized if no hook gave a reason. An implementation of this method MUST be
// used to allow access to the server (see hooks/auth).
func (h *Hooks) OnConnectAuthenticate(cl *Client, details ConnectDetails) Authorization {
	out := Authorization{Code: packets.ErrNotAuthorized}
	for _, hook := range h.GetAll() {
		if hook.Provides(OnConnectAuthenticate) {
			auth := hook.OnConnectAuthenticate(cl, details)
			if auth.Accepted() {
				return auth
			}

			if auth.Code.Code != 0 {
				out = auth
			}
		}
	}

	return out
}

// OnACLCheck is called when a client attempts to publish or subscribe to a topic filter.
// Access is granted if any hook allows it, or if no hook provides an acl check.
func (h *Hooks) OnACLCheck(cl *Client, topic string, write bool) bool {
	checked := false
	for _, hook := range h.GetAll() {
		if hook.Provides(OnACLCheck) {
			checked = true
			if ok := hook.OnACLCheck(cl, topic, write); ok {
				return true
			}
		}
	}

	return !checked
}

// HookBase provides a set of default methods for each hook. It should be embedded in
// all hooks.
type HookBase struct {
	Hook
	Log  *slog.Logger
	Opts *HookOptions
}

// ID returns the ID of the hook.
func (h *HookBase) ID() string {
	return "base"
}

// Provides indicates which methods a hook provides. The default is none - this method
// should be overridden by the embedding hook.
func (h *HookBase) Provides(b byte) bool {
	return false
}

// Init performs any pre-start initializations for the hook, such as connecting to databases
// or opening files.
func (h *HookBase) Init(config any) error {
	return nil
}

// SetOpts is called by the server to propagate internal values and generally should
// not be called manually.
func (h *HookBase) SetOpts(l *slog.Logger, opts *HookOptions) {
	h.Log = l
	h.Opts = opts
}

// Stop is called to gracefully shut down the hook.
func (h *HookBase) Stop() error {
	return nil
}

func (h *HookBase) OnStarted() {}

func (h *HookBase) OnStopped() {}

func (h *HookBase) OnSysInfoTick(*system.Info) {}

// OnConnectAuthenticate rejects all clients.
func (h *HookBase) OnConnectAuthenticate(cl *Client, details ConnectDetails) Authorization {
	return Authorization{Code: packets.ErrNotAuthorized}
}

// OnACLCheck denies all access.
func (h *HookBase) OnACLCheck(cl *Client, topic string, write bool) bool {
	return false
}

func (h *HookBase) OnConnect(cl *Client, details ConnectDetails) error {
	return nil
}

func (h *HookBase) OnSessionEstablished(cl *Client, details ConnectDetails) {}

func (h *HookBase) OnDisconnect(cl *Client, err error) {}

func (h *HookBase) OnPacketRead(cl *Client, pk packets.Packet) {}

func (h *HookBase) OnPacketSent(cl *Client, pk packets.Packet, b []byte) {}

// OnSubscribe returns the codes unchanged.
func (h *HookBase) OnSubscribe(cl *Client, pk *packets.SubscribePacket, codes []byte) []byte {
	return codes
}

func (h *HookBase) OnUnsubscribe(cl *Client, pk *packets.UnsubscribePacket) {}

func (h *HookBase) OnPublish(cl *Client, pk *packets.PublishPacket) {}

func (h *HookBase) OnPublishDropped(cl *Client, pk *packets.PublishPacket) {}

func (h *HookBase) OnQosPublish(cl *Client, pk *packets.PublishPacket, sent int64, resends int) {}

func (h *HookBase) OnQosComplete(cl *Client, pk *packets.PublishPacket) {}

func (h *HookBase) OnQosDropped(cl *Client, pk *packets.PublishPacket) {}

func (h *HookBase) StoredClients() (v []storage.Client, err error) {
	return
}

func (h *HookBase) StoredMessages() (v []storage.Message, err error) {
	return
}

func (h *HookBase) StoredSysInfo() (v storage.SystemInfo, err error) {
	return
}
