// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package storage

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/mochi-mqtt/conduit/packets"
	"github.com/mochi-mqtt/conduit/system"
)

const (
	SysInfoKey  = "SYS" // unique key to denote server system information in a store
	InflightKey = "IFM" // unique key to denote inflight messages in a store
	ClientKey   = "CL"  // unique key to denote clients in a store
)

var (
	// ErrDBFileNotOpen indicates that the file database (e.g. bolt/badger) wasn't open for reading.
	ErrDBFileNotOpen = errors.New("db file not open")
)

// Serializable is an interface for objects that can be serialized and deserialized.
type Serializable interface {
	UnmarshalBinary([]byte) error
	MarshalBinary() (data []byte, err error)
}

// ClientID returns the store key for a client.
func ClientID(client string) string {
	return ClientKey + "_" + client
}

// InflightID returns the store key for an inflight message sent to a client.
func InflightID(client string, packetID uint16) string {
	return InflightKey + "_" + client + ":" + strconv.Itoa(int(packetID))
}

// Client is a storable representation of a connected MQTT client.
type Client struct {
	Will      *packets.Message `json:"will,omitempty"` // will topic and payload data if applicable
	ID        string           `json:"id"`             // the client id / storage key
	T         string           `json:"t"`              // the data type (client)
	Remote    string           `json:"remote"`         // the remote address of the client
	Listener  string           `json:"listener"`       // the listener the client connected on
	Username  string           `json:"username"`       // the username of the client
	Connected int64            `json:"connected"`      // the time the client connected in unixtime
	Keepalive uint16           `json:"keepalive"`      // the keepalive the client requested
	Clean     bool             `json:"clean"`          // if the client requested a clean session
}

// MarshalBinary encodes the values into a json string.
func (d Client) MarshalBinary() (data []byte, err error) {
	return json.Marshal(d)
}

// UnmarshalBinary decodes a json string into a struct.
func (d *Client) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, d)
}

// Message is a storable representation of an outbound qos publish which is awaiting
// acknowledgement.
type Message struct {
	Payload   []byte      `json:"payload"`              // the message payload
	T         string      `json:"t,omitempty"`          // the data type
	ID        string      `json:"id,omitempty"`         // the storage key
	Client    string      `json:"client,omitempty"`     // the client id the message is for
	TopicName string      `json:"topic_name,omitempty"` // the topic the message was sent to
	Sent      int64       `json:"sent,omitempty"`       // the last time the message was sent in unixtime
	Resends   int         `json:"resends,omitempty"`    // the number of times the message has been resent
	PacketID  uint16      `json:"packet_id,omitempty"`  // the packet id of the message
	Qos       packets.Qos `json:"qos"`                  // the qos the message was sent with
	Retain    bool        `json:"retain,omitempty"`     // the retain flag of the message
	Dup       bool        `json:"dup,omitempty"`        // the dup flag of the last send
}

// NewMessage returns a storable representation of a publish sent to a client.
func NewMessage(client string, pk *packets.PublishPacket, sent int64, resends int) Message {
	return Message{
		ID:        InflightID(client, pk.PacketID),
		T:         InflightKey,
		Client:    client,
		TopicName: pk.TopicName,
		Payload:   append([]byte{}, pk.Payload...),
		Sent:      sent,
		Resends:   resends,
		PacketID:  pk.PacketID,
		Qos:       pk.Qos,
		Retain:    pk.Retain,
		Dup:       pk.Dup,
	}
}

// MarshalBinary encodes the values into a json string.
func (d Message) MarshalBinary() (data []byte, err error) {
	return json.Marshal(d)
}

// UnmarshalBinary decodes a json string into a struct.
func (d *Message) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, d)
}

// ToPacket converts a storage.Message to a publish packet.
func (d *Message) ToPacket() *packets.PublishPacket {
	pk := &packets.PublishPacket{
		Message: packets.Message{
			TopicName: d.TopicName,
			Payload:   d.Payload,
			Retain:    d.Retain,
			Qos:       d.Qos,
		},
		Dup:      d.Dup,
		PacketID: d.PacketID,
	}

	// Return a deep copy of the packet data otherwise the slices will
	// continue pointing at the values from the storage packet.
	return pk.Copy()
}

// SystemInfo is a storable representation of the system information values.
type SystemInfo struct {
	system.Info        // embed the system info struct
	T           string `json:"t"`  // the data type
	ID          string `json:"id"` // the storage key
}

// MarshalBinary encodes the values into a json string.
func (d SystemInfo) MarshalBinary() (data []byte, err error) {
	return json.Marshal(d)
}

// UnmarshalBinary decodes a json string into a struct.
func (d *SystemInfo) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, d)
}
