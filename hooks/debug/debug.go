// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package debug

import (
	"fmt"
	"log/slog"
	"strings"

	mqtt "github.com/mochi-mqtt/conduit"
	"github.com/mochi-mqtt/conduit/hooks/storage"
	"github.com/mochi-mqtt/conduit/packets"
	"github.com/mochi-mqtt/conduit/system"
)

// Options contains configuration settings for the debug output.
type Options struct {
	ShowPacketData bool `yaml:"show_packet_data" json:"show_packet_data"` // include decoded packet data (default false)
	ShowPings      bool `yaml:"show_pings" json:"show_pings"`             // show ping requests and responses (default false)
	ShowPasswords  bool `yaml:"show_passwords" json:"show_passwords"`     // show connecting user passwords (default false)
}

// Hook is a debugging hook which logs additional low-level information from the server.
type Hook struct {
	mqtt.HookBase
	config *Options
	Log    *slog.Logger
}

// ID returns the ID of the hook.
func (h *Hook) ID() string {
	return "debug"
}

// Provides indicates that this hook observes every event. It takes no part in
// authentication or acl decisions.
func (h *Hook) Provides(b byte) bool {
	return b != mqtt.OnConnectAuthenticate && b != mqtt.OnACLCheck
}

// Init is called when the hook is initialized.
func (h *Hook) Init(config any) error {
	if _, ok := config.(*Options); !ok && config != nil {
		return mqtt.ErrInvalidConfigType
	}

	if config == nil {
		config = new(Options)
	}

	h.config = config.(*Options)

	return nil
}

// SetOpts is called when the hook receives inheritable server parameters.
func (h *Hook) SetOpts(l *slog.Logger, opts *mqtt.HookOptions) {
	h.Log = l
	h.Log.Debug("", "method", "SetOpts")
}

// Stop is called when the hook is stopped.
func (h *Hook) Stop() error {
	h.Log.Debug("", "method", "Stop")
	return nil
}

// OnStarted is called when the server starts.
func (h *Hook) OnStarted() {
	h.Log.Debug("", "method", "OnStarted")
}

// OnStopped is called when the server stops.
func (h *Hook) OnStopped() {
	h.Log.Debug("", "method", "OnStopped")
}

// OnSysInfoTick is called when the server refreshes its system info.
func (h *Hook) OnSysInfoTick(info *system.Info) {
	h.Log.Debug("", "method", "OnSysInfoTick", "clients_connected", info.ClientsConnected, "inflight", info.Inflight)
}

// OnSessionEstablished is called when a client has been accepted.
func (h *Hook) OnSessionEstablished(cl *mqtt.Client, details mqtt.ConnectDetails) {
	h.Log.Debug("", "method", "OnSessionEstablished", "client", cl.ID, "remote", details.Remote, "listener", details.Listener)
}

// OnDisconnect is called when a client connection ends.
func (h *Hook) OnDisconnect(cl *mqtt.Client, err error) {
	h.Log.Debug("", "method", "OnDisconnect", "client", cl.ID, "error", err)
}

// OnPacketRead is called when a new packet is received from a client.
func (h *Hook) OnPacketRead(cl *mqtt.Client, pk packets.Packet) {
	if h.isPing(pk) {
		return
	}

	h.Log.Debug(fmt.Sprintf("%s << %s", strings.ToUpper(packets.PacketNames[pk.Type()]), cl.ID), "m", h.packetMeta(pk))
}

// OnPacketSent is called when a packet is sent to a client.
func (h *Hook) OnPacketSent(cl *mqtt.Client, pk packets.Packet, b []byte) {
	if h.isPing(pk) {
		return
	}

	h.Log.Debug(fmt.Sprintf("%s >> %s", strings.ToUpper(packets.PacketNames[pk.Type()]), cl.ID), "m", h.packetMeta(pk))
}

// OnPublish is called when a client's message has been accepted.
func (h *Hook) OnPublish(cl *mqtt.Client, pk *packets.PublishPacket) {
	h.Log.Debug("published", "client", cl.ID, "m", h.packetMeta(pk))
}

// OnPublishDropped is called when a client's message has been discarded.
func (h *Hook) OnPublishDropped(cl *mqtt.Client, pk *packets.PublishPacket) {
	h.Log.Debug("publish dropped", "client", cl.ID, "m", h.packetMeta(pk))
}

// OnQosPublish is called when a publish packet with Qos is issued to a client.
func (h *Hook) OnQosPublish(cl *mqtt.Client, pk *packets.PublishPacket, sent int64, resends int) {
	h.Log.Debug("inflight out", "resends", resends, "m", h.packetMeta(pk))
}

// OnQosComplete is called when the Qos flow for a message has been completed.
func (h *Hook) OnQosComplete(cl *mqtt.Client, pk *packets.PublishPacket) {
	h.Log.Debug("inflight complete", "m", h.packetMeta(pk))
}

// OnQosDropped is called the Qos flow for a message expires.
func (h *Hook) OnQosDropped(cl *mqtt.Client, pk *packets.PublishPacket) {
	h.Log.Debug("inflight dropped", "m", h.packetMeta(pk))
}

// StoredClients is called when the server restores clients from a store.
func (h *Hook) StoredClients() (v []storage.Client, err error) {
	h.Log.Debug("", "method", "StoredClients")
	return v, nil
}

// StoredMessages is called when the server restores inflight messages from a store.
func (h *Hook) StoredMessages() (v []storage.Message, err error) {
	h.Log.Debug("", "method", "StoredMessages")
	return v, nil
}

// StoredSysInfo is called when the server restores system info from a store.
func (h *Hook) StoredSysInfo() (v storage.SystemInfo, err error) {
	h.Log.Debug("", "method", "StoredSysInfo")
	return v, nil
}

func (h *Hook) isPing(pk packets.Packet) bool {
	t := pk.Type()
	return (t == packets.Pingreq || t == packets.Pingresp) && !h.config.ShowPings
}

// packetMeta adds additional type-specific metadata to the debug logs.
func (h *Hook) packetMeta(pk packets.Packet) map[string]any {
	m := map[string]any{}
	switch p := pk.(type) {
	case *packets.ConnectPacket:
		m["id"] = p.ClientIdentifier
		m["clean"] = p.CleanSession
		m["keepalive"] = p.Keepalive
		m["username"] = p.Username
		if h.config.ShowPasswords {
			m["password"] = string(p.Password)
		}
		if p.Will != nil {
			m["will_topic"] = p.Will.TopicName
			m["will_payload"] = string(p.Will.Payload)
		}
	case *packets.ConnackPacket:
		m["session_present"] = p.SessionPresent
		m["code"] = int(p.ReturnCode)
	case *packets.PublishPacket:
		m["topic"] = p.TopicName
		m["payload"] = string(p.Payload)
		m["raw"] = p.Payload
		m["qos"] = int(p.Qos)
		m["dup"] = p.Dup
		m["retain"] = p.Retain
		m["id"] = p.PacketID
	case *packets.PubackPacket, *packets.PubrecPacket, *packets.PubrelPacket, *packets.PubcompPacket, *packets.UnsubackPacket:
		m["id"], _ = packets.PacketID(pk)
	case *packets.SubscribePacket:
		f := map[string]int{}
		for _, v := range p.Subscriptions {
			f[v.Filter] = int(v.Qos)
		}
		m["id"] = p.PacketID
		m["filters"] = f
	case *packets.UnsubscribePacket:
		m["id"] = p.PacketID
		m["filters"] = p.Filters
	case *packets.SubackPacket:
		r := []int{}
		for _, v := range p.ReturnCodes {
			r = append(r, int(v))
		}
		m["id"] = p.PacketID
		m["codes"] = r
	}

	if h.config.ShowPacketData {
		m["packet"] = pk
	}

	return m
}
