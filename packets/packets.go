// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

import (
	"strconv"
)

// All of the valid packet types and their packet identifier.
const (
	Reserved byte = iota // 0 - we use this in packet tests to indicate special-test or all packets.
	Connect              // 1
	Connack              // 2
	Publish              // 3
	Puback               // 4
	Pubrec               // 5
	Pubrel               // 6
	Pubcomp              // 7
	Subscribe            // 8
	Suback               // 9
	Unsubscribe          // 10
	Unsuback             // 11
	Pingreq              // 12
	Pingresp             // 13
	Disconnect           // 14
)

// PacketNames is a map of packet bytes to human-readable names, for easier debugging.
var PacketNames = map[byte]string{
	0:  "Reserved",
	1:  "Connect",
	2:  "Connack",
	3:  "Publish",
	4:  "Puback",
	5:  "Pubrec",
	6:  "Pubrel",
	7:  "Pubcomp",
	8:  "Subscribe",
	9:  "Suback",
	10: "Unsubscribe",
	11: "Unsuback",
	12: "Pingreq",
	13: "Pingresp",
	14: "Disconnect",
}

const (
	// ProtocolName is the only protocol name accepted in a connect packet.
	ProtocolName = "MQTT"

	// ProtocolLevel is the protocol level of MQTT v3.1.1.
	ProtocolLevel byte = 4

	// MaxRemainingLength is the largest value the remaining length field can carry.
	MaxRemainingLength = 268435455

	// MaxFieldLength is the largest length-prefixed string or byte field.
	MaxFieldLength = 65535
)

// Qos is the quality of service level of a message or subscription.
type Qos byte

const (
	AtMostOnce  Qos = 0
	AtLeastOnce Qos = 1
	ExactlyOnce Qos = 2
)

// Valid returns true if the qos is one of the three delivery levels.
func (q Qos) Valid() bool {
	return q <= ExactlyOnce
}

// String returns the qos level as a number.
func (q Qos) String() string {
	return strconv.Itoa(int(q))
}

// Message is an application message, as carried by a publish or a will.
type Message struct {
	TopicName string `json:"topic" yaml:"topic"`
	Payload   []byte `json:"payload" yaml:"payload"`
	Retain    bool   `json:"retain" yaml:"retain"`
	Qos       Qos    `json:"qos" yaml:"qos"`
}

// Packet is an MQTT control packet. The set of implementations is closed; every
// variant lives in this package.
type Packet interface {
	// Type returns the control packet type.
	Type() byte

	// Header returns the fixed header flags the packet is encoded with.
	Header() FixedHeader

	encode(w *Writer) error
	decode(fh FixedHeader, r *Reader) error
}

// newPacket returns an empty packet for the given control packet type.
func newPacket(t byte) (Packet, error) {
	switch t {
	case Connect:
		return new(ConnectPacket), nil
	case Connack:
		return new(ConnackPacket), nil
	case Publish:
		return new(PublishPacket), nil
	case Puback:
		return new(PubackPacket), nil
	case Pubrec:
		return new(PubrecPacket), nil
	case Pubrel:
		return new(PubrelPacket), nil
	case Pubcomp:
		return new(PubcompPacket), nil
	case Subscribe:
		return new(SubscribePacket), nil
	case Suback:
		return new(SubackPacket), nil
	case Unsubscribe:
		return new(UnsubscribePacket), nil
	case Unsuback:
		return new(UnsubackPacket), nil
	case Pingreq:
		return new(PingreqPacket), nil
	case Pingresp:
		return new(PingrespPacket), nil
	case Disconnect:
		return new(DisconnectPacket), nil
	default:
		return nil, ErrInvalidPacketType
	}
}

// PacketID returns the packet identifier of pk, and false if the packet
// type does not carry one.
func PacketID(pk Packet) (uint16, bool) {
	switch p := pk.(type) {
	case *PublishPacket:
		return p.PacketID, p.Qos > AtMostOnce
	case *PubackPacket:
		return p.PacketID, true
	case *PubrecPacket:
		return p.PacketID, true
	case *PubrelPacket:
		return p.PacketID, true
	case *PubcompPacket:
		return p.PacketID, true
	case *SubscribePacket:
		return p.PacketID, true
	case *SubackPacket:
		return p.PacketID, true
	case *UnsubscribePacket:
		return p.PacketID, true
	case *UnsubackPacket:
		return p.PacketID, true
	default:
		return 0, false
	}
}
