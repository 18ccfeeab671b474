// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package redis

import (
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	mqtt "github.com/mochi-mqtt/conduit"
	"github.com/mochi-mqtt/conduit/hooks/storage"
	"github.com/mochi-mqtt/conduit/packets"
	"github.com/mochi-mqtt/conduit/system"
)

var (
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	client = &mqtt.Client{
		ID: "test",
		Net: mqtt.ClientConnection{
			Remote:   "test.addr",
			Listener: "listener",
		},
		Details: mqtt.ConnectDetails{
			ClientID:  "test",
			Username:  "username",
			Keepalive: 30,
			Remote:    "test.addr",
			Listener:  "listener",
		},
	}

	pkq = &packets.PublishPacket{
		Message:  packets.Message{TopicName: "a/b/c", Payload: []byte("hello"), Qos: packets.AtLeastOnce},
		PacketID: 2,
	}
)

func newServer(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func newHook(t *testing.T) (*Hook, *miniredis.Miniredis) {
	t.Helper()
	s := newServer(t)

	h := new(Hook)
	h.SetOpts(logger, nil)
	err := h.Init(&Options{
		Options: &redis.Options{
			Addr: s.Addr(),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Stop() })

	return h, s
}

func TestID(t *testing.T) {
	h := new(Hook)
	require.Equal(t, "redis-db", h.ID())
}

func TestProvides(t *testing.T) {
	h := new(Hook)
	require.True(t, h.Provides(mqtt.OnSessionEstablished))
	require.True(t, h.Provides(mqtt.OnDisconnect))
	require.True(t, h.Provides(mqtt.OnQosPublish))
	require.True(t, h.Provides(mqtt.OnQosComplete))
	require.True(t, h.Provides(mqtt.OnQosDropped))
	require.True(t, h.Provides(mqtt.OnSysInfoTick))
	require.True(t, h.Provides(mqtt.StoredClients))
	require.True(t, h.Provides(mqtt.StoredMessages))
	require.True(t, h.Provides(mqtt.StoredSysInfo))
	require.False(t, h.Provides(mqtt.OnACLCheck))
	require.False(t, h.Provides(mqtt.OnConnectAuthenticate))
}

func TestHKey(t *testing.T) {
	h, _ := newHook(t)
	require.Equal(t, defaultHPrefix+"test", h.hKey("test"))
}

func TestInitBadConfig(t *testing.T) {
	h := new(Hook)
	h.SetOpts(logger, nil)

	err := h.Init(map[string]any{})
	require.ErrorIs(t, err, mqtt.ErrInvalidConfigType)
}

func TestInitBadAddr(t *testing.T) {
	h := new(Hook)
	h.SetOpts(logger, nil)

	err := h.Init(&Options{
		Options: &redis.Options{
			Addr:       "127.0.0.1:1",
			MaxRetries: -1,
		},
	})
	require.Error(t, err)
	_ = h.Stop()
}

func TestInitCustomPrefix(t *testing.T) {
	s := newServer(t)
	h := new(Hook)
	h.SetOpts(logger, nil)
	err := h.Init(&Options{HPrefix: "x-", Options: &redis.Options{Addr: s.Addr()}})
	require.NoError(t, err)
	defer h.Stop()

	h.OnSessionEstablished(client, client.Details)
	require.True(t, s.Exists("x-"+storage.ClientKey))
}

func TestStopNotOpen(t *testing.T) {
	h := new(Hook)
	require.NoError(t, h.Stop())
}

func TestOnSessionEstablishedThenOnDisconnect(t *testing.T) {
	h, s := newHook(t)

	h.OnSessionEstablished(client, client.Details)

	row := s.HGet(h.hKey(storage.ClientKey), storage.ClientID(client.ID))
	r := new(storage.Client)
	require.NoError(t, r.UnmarshalBinary([]byte(row)))
	require.Equal(t, client.ID, r.ID)
	require.Equal(t, "username", r.Username)
	require.Equal(t, "test.addr", r.Remote)
	require.Equal(t, "listener", r.Listener)

	h.OnDisconnect(client, packets.ErrSessionTakenOver)
	require.NotEmpty(t, s.HGet(h.hKey(storage.ClientKey), storage.ClientID(client.ID)))

	h.OnDisconnect(client, errors.New("gone"))
	require.Empty(t, s.HGet(h.hKey(storage.ClientKey), storage.ClientID(client.ID)))
}

func TestOnQosPublishThenComplete(t *testing.T) {
	h, s := newHook(t)

	h.OnQosPublish(client, pkq, 100, 1)

	row := s.HGet(h.hKey(storage.InflightKey), storage.InflightID(client.ID, pkq.PacketID))
	r := new(storage.Message)
	require.NoError(t, r.UnmarshalBinary([]byte(row)))
	require.Equal(t, "a/b/c", r.TopicName)
	require.Equal(t, []byte("hello"), r.Payload)
	require.Equal(t, int64(100), r.Sent)
	require.Equal(t, 1, r.Resends)

	h.OnQosComplete(client, pkq)
	require.Empty(t, s.HGet(h.hKey(storage.InflightKey), storage.InflightID(client.ID, pkq.PacketID)))
}

func TestOnQosDropped(t *testing.T) {
	h, _ := newHook(t)

	h.OnQosPublish(client, pkq, 100, 0)
	h.OnQosDropped(client, pkq)

	messages, err := h.StoredMessages()
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestOnSysInfoTick(t *testing.T) {
	h, _ := newHook(t)

	h.OnSysInfoTick(&system.Info{Version: "2.0.0", BytesReceived: 100})

	r, err := h.StoredSysInfo()
	require.NoError(t, err)
	require.Equal(t, storage.SysInfoKey, r.ID)
	require.Equal(t, "2.0.0", r.Version)
	require.Equal(t, int64(100), r.BytesReceived)
}

func TestStoredSysInfoEmpty(t *testing.T) {
	h, _ := newHook(t)

	r, err := h.StoredSysInfo()
	require.NoError(t, err)
	require.Empty(t, r.ID)
}

func TestStoredClients(t *testing.T) {
	h, s := newHook(t)

	h.OnSessionEstablished(client, client.Details)
	h.OnSessionEstablished(&mqtt.Client{ID: "other"}, mqtt.ConnectDetails{})
	s.HSet(h.hKey(storage.ClientKey), storage.ClientID("bad"), "{")

	clients, err := h.StoredClients()
	require.NoError(t, err)
	require.Len(t, clients, 2)
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	require.Equal(t, "other", clients[0].ID)
	require.Equal(t, "test", clients[1].ID)
}

func TestStoredMessages(t *testing.T) {
	h, _ := newHook(t)

	h.OnQosPublish(client, pkq, 100, 0)
	h.OnQosPublish(client, &packets.PublishPacket{Message: packets.Message{TopicName: "d", Qos: packets.ExactlyOnce}, PacketID: 3}, 100, 0)

	messages, err := h.StoredMessages()
	require.NoError(t, err)
	require.Len(t, messages, 2)
	sort.Slice(messages, func(i, j int) bool { return messages[i].PacketID < messages[j].PacketID })
	require.Equal(t, uint16(2), messages[0].PacketID)
	require.Equal(t, packets.ExactlyOnce, messages[1].Qos)
}

func TestServerGone(t *testing.T) {
	h, s := newHook(t)
	s.SetError("unavailable")

	h.OnSessionEstablished(client, client.Details)
	h.OnDisconnect(client, nil)
	h.OnQosPublish(client, pkq, 0, 0)
	h.OnQosComplete(client, pkq)
	h.OnSysInfoTick(new(system.Info))

	_, err := h.StoredClients()
	require.Error(t, err)
	_, err = h.StoredMessages()
	require.Error(t, err)
	_, err = h.StoredSysInfo()
	require.Error(t, err)
}

func TestNoDB(t *testing.T) {
	h := new(Hook)
	h.SetOpts(logger, nil)

	h.OnSessionEstablished(client, client.Details)
	h.OnDisconnect(client, nil)
	h.OnQosPublish(client, pkq, 0, 0)
	h.OnQosComplete(client, pkq)
	h.OnQosDropped(client, pkq)
	h.OnSysInfoTick(new(system.Info))

	_, err := h.StoredClients()
	require.ErrorIs(t, err, storage.ErrDBFileNotOpen)
	_, err = h.StoredMessages()
	require.ErrorIs(t, err, storage.ErrDBFileNotOpen)
	_, err = h.StoredSysInfo()
	require.ErrorIs(t, err, storage.ErrDBFileNotOpen)
}
