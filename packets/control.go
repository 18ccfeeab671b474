// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

// PingreqPacket is an MQTT PINGREQ packet. It has no payload.
type PingreqPacket struct{}

// PingrespPacket is an MQTT PINGRESP packet. It has no payload.
type PingrespPacket struct{}

// DisconnectPacket is an MQTT DISCONNECT packet. It has no payload.
type DisconnectPacket struct{}

func (pk *PingreqPacket) Type() byte { return Pingreq }
func (pk *PingrespPacket) Type() byte { return Pingresp }
func (pk *DisconnectPacket) Type() byte { return Disconnect }

func (pk *PingreqPacket) Header() FixedHeader { return FixedHeader{Type: Pingreq} }
func (pk *PingrespPacket) Header() FixedHeader { return FixedHeader{Type: Pingresp} }
func (pk *DisconnectPacket) Header() FixedHeader { return FixedHeader{Type: Disconnect} }

func (pk *PingreqPacket) encode(_ *Writer) error { return nil }
func (pk *PingrespPacket) encode(_ *Writer) error { return nil }
func (pk *DisconnectPacket) encode(_ *Writer) error { return nil }

func (pk *PingreqPacket) decode(_ FixedHeader, _ *Reader) error { return nil }
func (pk *PingrespPacket) decode(_ FixedHeader, _ *Reader) error { return nil }
func (pk *DisconnectPacket) decode(_ FixedHeader, _ *Reader) error { return nil }
