// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

import (
	"fmt"
)

// DefaultKeepalive is the keepalive requested by NewConnectPacket.
const DefaultKeepalive uint16 = 60

// ConnectPacket contains the values of an MQTT CONNECT packet.
type ConnectPacket struct {
	ClientIdentifier string   `json:"clientId"`
	CleanSession     bool     `json:"clean"`
	Keepalive        uint16   `json:"keepalive"`
	UsernameFlag     bool     `json:"usernameFlag"`
	Username         string   `json:"username"`
	PasswordFlag     bool     `json:"passwordFlag"`
	Password         []byte   `json:"password"`
	Will             *Message `json:"will,omitempty"`
}

// NewConnectPacket returns a connect packet for clientID with the default
// keepalive. A session is only requested to persist if the client identifies
// itself.
func NewConnectPacket(clientID string) *ConnectPacket {
	return &ConnectPacket{
		ClientIdentifier: clientID,
		CleanSession:     clientID == "",
		Keepalive:        DefaultKeepalive,
	}
}

// Type returns the packet type.
func (pk *ConnectPacket) Type() byte { return Connect }

// Header returns the fixed header of the packet.
func (pk *ConnectPacket) Header() FixedHeader { return FixedHeader{Type: Connect} }

func (pk *ConnectPacket) flags() byte {
	flags := encodeBool(pk.CleanSession)<<1 | encodeBool(pk.PasswordFlag)<<6 | encodeBool(pk.UsernameFlag)<<7
	if pk.Will != nil {
		flags |= 1<<2 | byte(pk.Will.Qos)<<3 | encodeBool(pk.Will.Retain)<<5
	}
	return flags
}

func (pk *ConnectPacket) encode(w *Writer) error {
	if pk.Will != nil && !pk.Will.Qos.Valid() {
		return ErrInvalidQos
	}

	_ = w.WriteString(ProtocolName)
	_ = w.WriteByte(ProtocolLevel)
	_ = w.WriteByte(pk.flags())
	w.WriteUint16(pk.Keepalive)

	if err := w.WriteString(pk.ClientIdentifier); err != nil {
		return err
	}

	if pk.Will != nil {
		if err := w.WriteString(pk.Will.TopicName); err != nil {
			return err
		}

		if err := w.WriteBytes(pk.Will.Payload); err != nil {
			return err
		}
	}

	if pk.UsernameFlag {
		if err := w.WriteString(pk.Username); err != nil {
			return err
		}
	}

	if pk.PasswordFlag {
		if err := w.WriteBytes(pk.Password); err != nil {
			return err
		}
	}

	return nil
}

func (pk *ConnectPacket) decode(_ FixedHeader, r *Reader) error {
	name, err := r.ReadString()
	if err != nil || name != ProtocolName {
		return ErrInvalidProtocolName // [MQTT-3.1.2-1]
	}

	level, err := r.ReadByte()
	if err != nil || level != ProtocolLevel {
		return ErrInvalidProtocolLevel // [MQTT-3.1.2-2]
	}

	flags, err := r.ReadByte()
	if err != nil {
		return malformed(ErrMalformedFlags, err)
	}

	if flags&0x01 > 0 {
		return ErrProtocolViolationReservedBit // [MQTT-3.1.2-3]
	}

	pk.CleanSession = 1&(flags>>1) > 0
	willFlag := 1&(flags>>2) > 0
	willQos := Qos(3 & (flags >> 3))
	willRetain := 1&(flags>>5) > 0
	pk.PasswordFlag = 1&(flags>>6) > 0
	pk.UsernameFlag = 1&(flags>>7) > 0

	if !willQos.Valid() {
		return ErrInvalidQos // [MQTT-3.1.2-14]
	}

	if !willFlag && (willQos > 0 || willRetain) {
		return ErrProtocolViolationWillFlags // [MQTT-3.1.2-13] [MQTT-3.1.2-15]
	}

	if pk.Keepalive, err = r.ReadUint16(); err != nil {
		return malformed(ErrMalformedKeepalive, err)
	}

	if pk.ClientIdentifier, err = r.ReadString(); err != nil {
		return err
	}

	if willFlag {
		will := &Message{Qos: willQos, Retain: willRetain}
		if will.TopicName, err = r.ReadString(); err != nil {
			return malformed(ErrMalformedWillTopic, err)
		}

		if will.Payload, err = r.ReadBytes(); err != nil {
			return malformed(ErrMalformedWillPayload, err)
		}
		pk.Will = will
	}

	if pk.UsernameFlag {
		if pk.Username, err = r.ReadString(); err != nil {
			return malformed(ErrMalformedUsername, err)
		}
	}

	if pk.PasswordFlag {
		if pk.Password, err = r.ReadBytes(); err != nil {
			return malformed(ErrMalformedPassword, err)
		}
	}

	return nil
}

// malformed wraps a primitive read failure with the field that failed.
func malformed(field Code, err error) error {
	return fmt.Errorf("%w: %w", field, err)
}
