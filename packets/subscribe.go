// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

// Subscription is a topic filter and the maximum qos requested for it.
type Subscription struct {
	Filter string `json:"filter" yaml:"filter"`
	Qos    Qos    `json:"qos" yaml:"qos"`
}

// SubscribePacket contains the values of an MQTT SUBSCRIBE packet.
type SubscribePacket struct {
	PacketID      uint16         `json:"packetId"`
	Subscriptions []Subscription `json:"subscriptions"`
}

// Type returns the packet type.
func (pk *SubscribePacket) Type() byte { return Subscribe }

// Header returns the fixed header of the packet. Subscribe flags are fixed at qos 1. [MQTT-3.8.1-1]
func (pk *SubscribePacket) Header() FixedHeader {
	return FixedHeader{Type: Subscribe, Qos: AtLeastOnce}
}

func (pk *SubscribePacket) encode(w *Writer) error {
	if pk.PacketID == 0 {
		return ErrProtocolViolationNoPacketID // [MQTT-2.3.1-1]
	}

	if len(pk.Subscriptions) == 0 {
		return ErrProtocolViolationNoFilters // [MQTT-3.8.3-3]
	}

	w.WriteUint16(pk.PacketID)
	for _, sub := range pk.Subscriptions {
		if !sub.Qos.Valid() {
			return ErrInvalidQos
		}

		if err := w.WriteString(sub.Filter); err != nil {
			return err
		}
		_ = w.WriteByte(byte(sub.Qos))
	}

	return nil
}

func (pk *SubscribePacket) decode(_ FixedHeader, r *Reader) error {
	var err error
	if pk.PacketID, err = r.ReadUint16(); err != nil {
		return malformed(ErrMalformedPacketID, err)
	}

	if pk.PacketID == 0 {
		return ErrProtocolViolationNoPacketID
	}

	for r.Remaining() > 0 {
		var sub Subscription
		if sub.Filter, err = r.ReadString(); err != nil {
			return malformed(ErrMalformedTopic, err)
		}

		qos, err := r.ReadByte()
		if err != nil {
			return malformed(ErrMalformedQos, err)
		}

		if qos&0xFC > 0 {
			return ErrMalformedQos // [MQTT-3.8.3-4] reserved bits
		}

		sub.Qos = Qos(qos)
		if !sub.Qos.Valid() {
			return ErrInvalidQos
		}

		pk.Subscriptions = append(pk.Subscriptions, sub)
	}

	if len(pk.Subscriptions) == 0 {
		return ErrProtocolViolationNoFilters // [MQTT-3.8.3-3]
	}

	return nil
}

// SubackPacket contains the values of an MQTT SUBACK packet.
type SubackPacket struct {
	PacketID    uint16 `json:"packetId"`
	ReturnCodes []byte `json:"returnCodes"`
}

// Type returns the packet type.
func (pk *SubackPacket) Type() byte { return Suback }

// Header returns the fixed header of the packet.
func (pk *SubackPacket) Header() FixedHeader { return FixedHeader{Type: Suback} }

func (pk *SubackPacket) encode(w *Writer) error {
	w.WriteUint16(pk.PacketID)
	for _, code := range pk.ReturnCodes {
		if !validSubackCode(code) {
			return ErrMalformedReturnCode
		}
		_ = w.WriteByte(code)
	}

	return nil
}

func (pk *SubackPacket) decode(_ FixedHeader, r *Reader) error {
	var err error
	if pk.PacketID, err = decodePacketID(r); err != nil {
		return err
	}

	for r.Remaining() > 0 {
		code, _ := r.ReadByte()
		if !validSubackCode(code) {
			return ErrMalformedReturnCode // [MQTT-3.9.3-2]
		}
		pk.ReturnCodes = append(pk.ReturnCodes, code)
	}

	return nil
}
