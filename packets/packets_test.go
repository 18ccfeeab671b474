// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2023 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

import (
	"bytes"
	"testing"

	"github.com/jinzhu/copier"
	"github.com/stretchr/testify/require"
)

const pkInfo = "packet type %v, %s"

var packetList = []byte{
	Connect,
	Connack,
	Publish,
	Puback,
	Pubrec,
	Pubrel,
	Pubcomp,
	Subscribe,
	Suback,
	Unsubscribe,
	Unsuback,
	Pingreq,
	Pingresp,
	Disconnect,
}

func TestNewPacket(t *testing.T) {
	for _, pkt := range packetList {
		pk, err := newPacket(pkt)
		require.NoError(t, err)
		require.Equal(t, pkt, pk.Type())
		require.Equal(t, pkt, pk.Header().Type)
		require.Contains(t, PacketNames, pkt)
	}

	_, err := newPacket(Reserved)
	require.ErrorIs(t, err, ErrInvalidPacketType)
	_, err = newPacket(15)
	require.ErrorIs(t, err, ErrInvalidPacketType)
}

func TestPacketEncode(t *testing.T) {
	for _, pkt := range packetList {
		require.Contains(t, TPacketData, pkt)
		for _, wanted := range TPacketData[pkt] {
			t.Run(wanted.Desc, func(t *testing.T) {
				if wanted.Packet == nil || wanted.Group == "decode" {
					return
				}

				buf := new(bytes.Buffer)
				err := EncodeTo(buf, wanted.Packet)
				if wanted.FailFirst != nil {
					require.ErrorIs(t, err, wanted.FailFirst, pkInfo, pkt, wanted.Desc)
					require.Equal(t, 0, buf.Len(), pkInfo, pkt, wanted.Desc)
					return
				}

				require.NoError(t, err, pkInfo, pkt, wanted.Desc)
				require.Equal(t, wanted.RawBytes, buf.Bytes(), pkInfo, pkt, wanted.Desc)
			})
		}
	}
}

func TestPacketDecode(t *testing.T) {
	for _, pkt := range packetList {
		require.Contains(t, TPacketData, pkt)
		for _, wanted := range TPacketData[pkt] {
			t.Run(wanted.Desc, func(t *testing.T) {
				pks, err := NewDecoder().Decode(wanted.RawBytes)
				if wanted.Expect != nil {
					require.ErrorIs(t, err, wanted.Expect, pkInfo, pkt, wanted.Desc)
					require.Empty(t, pks, pkInfo, pkt, wanted.Desc)
					return
				}

				require.NoError(t, err, pkInfo, pkt, wanted.Desc)
				require.Len(t, pks, 1, pkInfo, pkt, wanted.Desc)
				require.Equal(t, wanted.Packet, pks[0], pkInfo, pkt, wanted.Desc)
			})
		}
	}
}

func TestPacketRoundTrip(t *testing.T) {
	for _, pkt := range packetList {
		for _, wanted := range TPacketData[pkt] {
			if wanted.Packet == nil || wanted.Group != "" {
				continue
			}

			b, err := Encode(wanted.Packet)
			require.NoError(t, err, pkInfo, pkt, wanted.Desc)

			pk, err := ReadPacket(bytes.NewReader(b))
			require.NoError(t, err, pkInfo, pkt, wanted.Desc)
			require.Equal(t, wanted.Packet, pk, pkInfo, pkt, wanted.Desc)
		}
	}
}

func TestEncodeForcedFlags(t *testing.T) {
	tt := []struct {
		pk   Packet
		want byte
	}{
		{pk: &PubrelPacket{PacketID: 1}, want: Pubrel<<4 | 0x02},
		{pk: &SubscribePacket{PacketID: 1, Subscriptions: []Subscription{{Filter: "a"}}}, want: Subscribe<<4 | 0x02},
		{pk: &UnsubscribePacket{PacketID: 1, Filters: []string{"a"}}, want: Unsubscribe<<4 | 0x02},
		{pk: &PubackPacket{PacketID: 1}, want: Puback << 4},
		{pk: &PingreqPacket{}, want: Pingreq << 4},
	}

	for _, tx := range tt {
		b, err := Encode(tx.pk)
		require.NoError(t, err)
		require.Equal(t, tx.want, b[0])
	}
}

func TestEncodeIndependentBuffers(t *testing.T) {
	a, err := Encode(&PubackPacket{PacketID: 1})
	require.NoError(t, err)
	b, err := Encode(&PubackPacket{PacketID: 2})
	require.NoError(t, err)

	require.Equal(t, []byte{Puback << 4, 2, 0, 1}, a)
	require.Equal(t, []byte{Puback << 4, 2, 0, 2}, b)
}

func TestEncodeConnectWillInvalidQos(t *testing.T) {
	pk := NewConnectPacket("zen")
	pk.Will = &Message{TopicName: "lwt", Qos: 3}
	_, err := Encode(pk)
	require.ErrorIs(t, err, ErrInvalidQos)
}

func TestNewConnectPacket(t *testing.T) {
	pk := NewConnectPacket("")
	require.True(t, pk.CleanSession)
	require.Equal(t, DefaultKeepalive, pk.Keepalive)

	pk = NewConnectPacket("zen")
	require.False(t, pk.CleanSession)
	require.Equal(t, "zen", pk.ClientIdentifier)
}

func TestConnectCredentialCombinations(t *testing.T) {
	for _, user := range []bool{false, true} {
		for _, pass := range []bool{false, true} {
			pk := NewConnectPacket("zen")
			pk.UsernameFlag = user
			pk.PasswordFlag = pass
			if user {
				pk.Username = "mochi"
			}
			if pass {
				pk.Password = []byte("secret")
			}

			b, err := Encode(pk)
			require.NoError(t, err)

			out, err := ReadPacket(bytes.NewReader(b))
			require.NoError(t, err)
			require.Equal(t, pk, out)
		}
	}
}

func TestPublishLimits(t *testing.T) {
	for _, id := range []uint16{1, 65535} {
		for _, qos := range []Qos{AtLeastOnce, ExactlyOnce} {
			pk := &PublishPacket{Message: Message{TopicName: "a/b", Qos: qos, Payload: []byte("x")}, PacketID: id}
			b, err := Encode(pk)
			require.NoError(t, err)

			out, err := ReadPacket(bytes.NewReader(b))
			require.NoError(t, err)
			require.Equal(t, pk, out)
		}
	}

	pk := &PublishPacket{Message: Message{TopicName: string(bytes.Repeat([]byte{'a'}, MaxFieldLength))}}
	b, err := Encode(pk)
	require.NoError(t, err)
	out, err := ReadPacket(bytes.NewReader(b))
	require.NoError(t, err)
	require.Equal(t, pk, out)

	pk.TopicName += "a"
	_, err = Encode(pk)
	require.ErrorIs(t, err, ErrValueOutOfRange)
}

func TestConnectWillPayloadLimits(t *testing.T) {
	pk := NewConnectPacket("zen")
	pk.Will = &Message{TopicName: "lwt", Payload: bytes.Repeat([]byte{1}, MaxFieldLength), Qos: ExactlyOnce, Retain: true}
	b, err := Encode(pk)
	require.NoError(t, err)

	out, err := ReadPacket(bytes.NewReader(b))
	require.NoError(t, err)
	require.Equal(t, pk, out)

	pk.Will.Payload = append(pk.Will.Payload, 1)
	_, err = Encode(pk)
	require.ErrorIs(t, err, ErrValueOutOfRange)
}

func TestPacketID(t *testing.T) {
	id, ok := PacketID(&PublishPacket{PacketID: 3, Message: Message{Qos: AtLeastOnce}})
	require.True(t, ok)
	require.Equal(t, uint16(3), id)

	_, ok = PacketID(&PublishPacket{})
	require.False(t, ok)

	id, ok = PacketID(&PubrelPacket{PacketID: 9})
	require.True(t, ok)
	require.Equal(t, uint16(9), id)

	_, ok = PacketID(&PingreqPacket{})
	require.False(t, ok)
}

func TestPublishCopy(t *testing.T) {
	pk := TPacketData[Publish].Get(TPublishQos1).Packet.(*PublishPacket)
	var src PublishPacket
	require.NoError(t, copier.CopyWithOption(&src, pk, copier.Option{DeepCopy: true}))

	cp := src.Copy()
	require.Equal(t, &src, cp)

	cp.Payload[0] = 'j'
	require.NotEqual(t, src.Payload, cp.Payload)
}

func TestQos(t *testing.T) {
	require.True(t, AtMostOnce.Valid())
	require.True(t, ExactlyOnce.Valid())
	require.False(t, Qos(3).Valid())
	require.Equal(t, "2", ExactlyOnce.String())
}
