// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

// PubackPacket contains the values of an MQTT PUBACK packet.
type PubackPacket struct {
	PacketID uint16 `json:"packetId"`
}

// PubrecPacket contains the values of an MQTT PUBREC packet.
type PubrecPacket struct {
	PacketID uint16 `json:"packetId"`
}

// PubrelPacket contains the values of an MQTT PUBREL packet.
type PubrelPacket struct {
	PacketID uint16 `json:"packetId"`
}

// PubcompPacket contains the values of an MQTT PUBCOMP packet.
type PubcompPacket struct {
	PacketID uint16 `json:"packetId"`
}

// UnsubackPacket contains the values of an MQTT UNSUBACK packet.
type UnsubackPacket struct {
	PacketID uint16 `json:"packetId"`
}

func (pk *PubackPacket) Type() byte { return Puback }
func (pk *PubrecPacket) Type() byte { return Pubrec }
func (pk *PubrelPacket) Type() byte { return Pubrel }
func (pk *PubcompPacket) Type() byte { return Pubcomp }
func (pk *UnsubackPacket) Type() byte { return Unsuback }

func (pk *PubackPacket) Header() FixedHeader { return FixedHeader{Type: Puback} }
func (pk *PubrecPacket) Header() FixedHeader { return FixedHeader{Type: Pubrec} }
func (pk *PubcompPacket) Header() FixedHeader { return FixedHeader{Type: Pubcomp} }
func (pk *UnsubackPacket) Header() FixedHeader { return FixedHeader{Type: Unsuback} }

// Header returns the fixed header of the packet. Pubrel flags are fixed at qos 1. [MQTT-3.6.1-1]
func (pk *PubrelPacket) Header() FixedHeader {
	return FixedHeader{Type: Pubrel, Qos: AtLeastOnce}
}

func (pk *PubackPacket) encode(w *Writer) error { w.WriteUint16(pk.PacketID); return nil }
func (pk *PubrecPacket) encode(w *Writer) error { w.WriteUint16(pk.PacketID); return nil }
func (pk *PubrelPacket) encode(w *Writer) error { w.WriteUint16(pk.PacketID); return nil }
func (pk *PubcompPacket) encode(w *Writer) error { w.WriteUint16(pk.PacketID); return nil }
func (pk *UnsubackPacket) encode(w *Writer) error { w.WriteUint16(pk.PacketID); return nil }

func (pk *PubackPacket) decode(_ FixedHeader, r *Reader) (err error) {
	pk.PacketID, err = decodePacketID(r)
	return
}

func (pk *PubrecPacket) decode(_ FixedHeader, r *Reader) (err error) {
	pk.PacketID, err = decodePacketID(r)
	return
}

func (pk *PubrelPacket) decode(_ FixedHeader, r *Reader) (err error) {
	pk.PacketID, err = decodePacketID(r)
	return
}

func (pk *PubcompPacket) decode(_ FixedHeader, r *Reader) (err error) {
	pk.PacketID, err = decodePacketID(r)
	return
}

func (pk *UnsubackPacket) decode(_ FixedHeader, r *Reader) (err error) {
	pk.PacketID, err = decodePacketID(r)
	return
}

// decodePacketID reads the packet identifier of an acknowledgement.
func decodePacketID(r *Reader) (uint16, error) {
	id, err := r.ReadUint16()
	if err != nil {
		return 0, malformed(ErrMalformedPacketID, err)
	}
	return id, nil
}
