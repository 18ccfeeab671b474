// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package debug

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	mqtt "github.com/mochi-mqtt/conduit"
	"github.com/mochi-mqtt/conduit/packets"
	"github.com/mochi-mqtt/conduit/system"
)

func newHook(t *testing.T, opts *Options) (*Hook, *bytes.Buffer) {
	t.Helper()
	buf := new(bytes.Buffer)
	h := new(Hook)
	h.SetOpts(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), new(mqtt.HookOptions))
	require.NoError(t, h.Init(opts))
	buf.Reset()
	return h, buf
}

func TestID(t *testing.T) {
	require.Equal(t, "debug", new(Hook).ID())
}

func TestProvides(t *testing.T) {
	h := new(Hook)
	require.True(t, h.Provides(mqtt.OnPacketRead))
	require.True(t, h.Provides(mqtt.StoredSysInfo))
	require.False(t, h.Provides(mqtt.OnConnectAuthenticate))
	require.False(t, h.Provides(mqtt.OnACLCheck))
}

func TestInitBadConfig(t *testing.T) {
	h := new(Hook)
	require.ErrorIs(t, h.Init(map[string]any{}), mqtt.ErrInvalidConfigType)
}

func TestOnPacketReadConnect(t *testing.T) {
	h, buf := newHook(t, &Options{ShowPasswords: true})
	cl := &mqtt.Client{ID: "zen"}

	pk := packets.NewConnectPacket("zen")
	pk.Username = "mochi"
	pk.Password = []byte("melon")
	pk.Will = &packets.Message{TopicName: "lwt", Payload: []byte("bye")}
	h.OnPacketRead(cl, pk)

	out := buf.String()
	require.Contains(t, out, "CONNECT << zen")
	require.Contains(t, out, "password:melon")
	require.Contains(t, out, "will_topic:lwt")
}

func TestOnPacketReadHidesPasswords(t *testing.T) {
	h, buf := newHook(t, nil)
	pk := packets.NewConnectPacket("zen")
	pk.Password = []byte("melon")
	h.OnPacketRead(&mqtt.Client{ID: "zen"}, pk)
	require.NotContains(t, buf.String(), "melon")
}

func TestOnPacketSentSkipsPings(t *testing.T) {
	h, buf := newHook(t, nil)
	h.OnPacketSent(&mqtt.Client{ID: "zen"}, new(packets.PingrespPacket), []byte{0xd0, 0})
	require.Empty(t, buf.String())

	h, buf = newHook(t, &Options{ShowPings: true})
	h.OnPacketSent(&mqtt.Client{ID: "zen"}, new(packets.PingrespPacket), []byte{0xd0, 0})
	require.Contains(t, buf.String(), "PINGRESP >> zen")
}

func TestPacketMeta(t *testing.T) {
	h, _ := newHook(t, &Options{ShowPacketData: true})

	m := h.packetMeta(&packets.PublishPacket{
		Message:  packets.Message{TopicName: "a/b", Payload: []byte("hi"), Qos: packets.AtLeastOnce},
		PacketID: 7,
	})
	require.Equal(t, "a/b", m["topic"])
	require.Equal(t, uint16(7), m["id"])
	require.Equal(t, 1, m["qos"])
	require.NotNil(t, m["packet"])

	m = h.packetMeta(&packets.PubrelPacket{PacketID: 9})
	require.Equal(t, uint16(9), m["id"])

	m = h.packetMeta(&packets.SubscribePacket{
		PacketID:      3,
		Subscriptions: []packets.Subscription{{Filter: "a/#", Qos: packets.ExactlyOnce}},
	})
	require.Equal(t, map[string]int{"a/#": 2}, m["filters"])

	m = h.packetMeta(&packets.SubackPacket{PacketID: 3, ReturnCodes: []byte{0, 0x80}})
	require.Equal(t, []int{0, 0x80}, m["codes"])

	m = h.packetMeta(&packets.ConnackPacket{SessionPresent: true, ReturnCode: 5})
	require.Equal(t, 5, m["code"])
}

func TestEvents(t *testing.T) {
	h, buf := newHook(t, nil)
	cl := &mqtt.Client{ID: "zen"}
	pk := &packets.PublishPacket{Message: packets.Message{TopicName: "a"}}

	h.OnStarted()
	h.OnStopped()
	h.OnSysInfoTick(new(system.Info))
	h.OnSessionEstablished(cl, mqtt.ConnectDetails{})
	h.OnDisconnect(cl, errors.New("test"))
	h.OnPublish(cl, pk)
	h.OnPublishDropped(cl, pk)
	h.OnQosPublish(cl, pk, 0, 1)
	h.OnQosComplete(cl, pk)
	h.OnQosDropped(cl, pk)
	require.NoError(t, h.Stop())

	out := buf.String()
	for _, s := range []string{"OnStarted", "OnStopped", "OnSysInfoTick", "OnDisconnect", "inflight out", "inflight dropped", "publish dropped"} {
		require.Contains(t, out, s)
	}
}

func TestStored(t *testing.T) {
	h, _ := newHook(t, nil)

	clients, err := h.StoredClients()
	require.NoError(t, err)
	require.Empty(t, clients)

	messages, err := h.StoredMessages()
	require.NoError(t, err)
	require.Empty(t, messages)

	info, err := h.StoredSysInfo()
	require.NoError(t, err)
	require.Empty(t, info.Version)
}
