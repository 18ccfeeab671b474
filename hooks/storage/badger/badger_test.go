// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package badger

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	badgerdb "github.com/dgraph-io/badger/v4"
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

func newHook(t *testing.T) *Hook {
	t.Helper()
	h := new(Hook)
	h.SetOpts(logger, nil)
	err := h.Init(&Options{Path: filepath.Join(t.TempDir(), "badger")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Stop() })
	return h
}

func TestID(t *testing.T) {
	h := new(Hook)
	require.Equal(t, "badger-db", h.ID())
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

func TestInitBadConfig(t *testing.T) {
	h := new(Hook)
	h.SetOpts(logger, nil)

	err := h.Init(map[string]any{})
	require.ErrorIs(t, err, mqtt.ErrInvalidConfigType)
}

func TestInitDefaults(t *testing.T) {
	h := newHook(t)
	require.Equal(t, int64(defaultGcInterval), h.config.GcInterval)
	require.Equal(t, defaultGcDiscardRatio, h.config.GcDiscardRatio)
	require.NotNil(t, h.config.Options)
}

func TestInitBadDiscardRatio(t *testing.T) {
	h := new(Hook)
	h.SetOpts(logger, nil)
	err := h.Init(&Options{Path: filepath.Join(t.TempDir(), "badger"), GcDiscardRatio: 1.5, GcInterval: 1})
	require.NoError(t, err)
	defer h.Stop()
	require.Equal(t, defaultGcDiscardRatio, h.config.GcDiscardRatio)
}

func TestLoggerMethods(t *testing.T) {
	h := new(Hook)
	h.SetOpts(logger, nil)
	h.Errorf("error %s\n", "a")
	h.Warningf("warning %s\n", "b")
	h.Infof("info %s\n", "c")
	h.Debugf("debug %s\n", "d")
}

func TestStopNotOpen(t *testing.T) {
	h := new(Hook)
	require.NoError(t, h.Stop())
}

func TestOnSessionEstablishedThenOnDisconnect(t *testing.T) {
	h := newHook(t)

	h.OnSessionEstablished(client, client.Details)

	r := new(storage.Client)
	require.NoError(t, h.getKv(storage.ClientID(client.ID), r))
	require.Equal(t, client.ID, r.ID)
	require.Equal(t, storage.ClientKey, r.T)
	require.Equal(t, "username", r.Username)
	require.Equal(t, "test.addr", r.Remote)
	require.Equal(t, "listener", r.Listener)
	require.Equal(t, uint16(30), r.Keepalive)

	h.OnDisconnect(client, packets.ErrSessionTakenOver)
	require.NoError(t, h.getKv(storage.ClientID(client.ID), new(storage.Client)))

	h.OnDisconnect(client, errors.New("gone"))
	err := h.getKv(storage.ClientID(client.ID), new(storage.Client))
	require.ErrorIs(t, err, badgerdb.ErrKeyNotFound)
}

func TestOnQosPublishThenComplete(t *testing.T) {
	h := newHook(t)

	h.OnQosPublish(client, pkq, 100, 1)

	r := new(storage.Message)
	require.NoError(t, h.getKv(storage.InflightID(client.ID, pkq.PacketID), r))
	require.Equal(t, "a/b/c", r.TopicName)
	require.Equal(t, []byte("hello"), r.Payload)
	require.Equal(t, int64(100), r.Sent)
	require.Equal(t, 1, r.Resends)
	require.Equal(t, packets.AtLeastOnce, r.Qos)

	h.OnQosComplete(client, pkq)
	err := h.getKv(storage.InflightID(client.ID, pkq.PacketID), new(storage.Message))
	require.ErrorIs(t, err, badgerdb.ErrKeyNotFound)
}

func TestOnQosDropped(t *testing.T) {
	h := newHook(t)

	h.OnQosPublish(client, pkq, 100, 0)
	h.OnQosDropped(client, pkq)

	messages, err := h.StoredMessages()
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestOnSysInfoTick(t *testing.T) {
	h := newHook(t)

	info := &system.Info{Version: "2.0.0", BytesReceived: 100}
	h.OnSysInfoTick(info)

	r, err := h.StoredSysInfo()
	require.NoError(t, err)
	require.Equal(t, storage.SysInfoKey, r.ID)
	require.Equal(t, "2.0.0", r.Version)
	require.Equal(t, int64(100), r.BytesReceived)
}

func TestStoredSysInfoEmpty(t *testing.T) {
	h := newHook(t)

	r, err := h.StoredSysInfo()
	require.NoError(t, err)
	require.Empty(t, r.ID)
}

func TestStoredClients(t *testing.T) {
	h := newHook(t)

	h.OnSessionEstablished(client, client.Details)
	h.OnSessionEstablished(&mqtt.Client{ID: "other"}, mqtt.ConnectDetails{})
	h.OnQosPublish(client, pkq, 100, 0)

	clients, err := h.StoredClients()
	require.NoError(t, err)
	require.Len(t, clients, 2)
	require.Equal(t, "other", clients[0].ID)
	require.Equal(t, "test", clients[1].ID)
}

func TestStoredMessages(t *testing.T) {
	h := newHook(t)

	h.OnSessionEstablished(client, client.Details)
	h.OnQosPublish(client, pkq, 100, 0)
	h.OnQosPublish(client, &packets.PublishPacket{Message: packets.Message{TopicName: "d", Qos: packets.ExactlyOnce}, PacketID: 3}, 100, 0)

	messages, err := h.StoredMessages()
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, uint16(2), messages[0].PacketID)
	require.Equal(t, packets.ExactlyOnce, messages[1].Qos)
}

func TestStoredBadData(t *testing.T) {
	h := newHook(t)

	err := h.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(storage.ClientID("bad")), []byte("{"))
	})
	require.NoError(t, err)

	_, err = h.StoredClients()
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
