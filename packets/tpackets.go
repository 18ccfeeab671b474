// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

// TPacketCase contains data for cross-checking the encoding and decoding
// of packets and expected scenarios.
type TPacketCase struct {
	RawBytes  []byte // the bytes that make the packet
	Group     string // a group that should run the test, blank for all
	Desc      string // a description of the test
	FailFirst error  // expected fail result when encoding the packet
	Packet    Packet // the packet that is expected
	Expect    error  // expected fail result when decoding the raw bytes
	Primary   bool   // primary is a test that should be run using readPackets
	Case      byte   // the identifying byte of the case
}

// TPacketCases is a slice of TPacketCase.
type TPacketCases []TPacketCase

// Get returns a case matching a given T byte.
func (f TPacketCases) Get(b byte) TPacketCase {
	for _, v := range f {
		if v.Case == b {
			return v
		}
	}

	return TPacketCase{}
}

const (
	TConnectMqtt311 byte = iota
	TConnectClean
	TConnectUserPass
	TConnectUserOnly
	TConnectPassOnly
	TConnectUserPassLWT
	TConnectEmptyClientID
	TConnectInvalidProtocolName
	TConnectInvalidProtocolLevel
	TConnectInvalidReservedBit
	TConnectInvalidWillQos
	TConnectInvalidWillFlags
	TConnectInvalidClientIDNul
	TConnectMalKeepalive
	TConnectMalWillTopic
	TConnectMalPassword
	TConnackAcceptedNoSession
	TConnackAcceptedSessionExists
	TConnackNotAuthorized
	TConnackInvalidReturnCode
	TConnackMalSessionPresent
	TPublishNoPayload
	TPublishBasic
	TPublishQos1
	TPublishQos2Dup
	TPublishRetain
	TPublishMaxPacketID
	TPublishInvalidQos
	TPublishNoPacketID
	TPublishMalTopic
	TPublishInvalidTopicUTF8
	TPuback
	TPubackZero
	TPubackMalPacketID
	TPubrec
	TPubrel
	TPubcomp
	TSubscribe
	TSubscribeMany
	TSubscribeNoFilters
	TSubscribeInvalidQos
	TSubscribeMalQosReserved
	TSuback
	TSubackFailure
	TSubackInvalidCode
	TUnsubscribe
	TUnsubscribeMany
	TUnsubscribeNoFilters
	TUnsuback
	TPingreq
	TPingresp
	TDisconnect
	TDisconnectSurplus
)

// TPacketData contains individual encoding and decoding scenarios for each packet type.
var TPacketData = map[byte]TPacketCases{
	Connect: {
		{
			Case:    TConnectMqtt311,
			Desc:    "mqtt v3.1.1",
			Primary: true,
			RawBytes: []byte{
				Connect << 4, 15, // Fixed header
				0, 4, // Protocol Name - MSB+LSB
				'M', 'Q', 'T', 'T', // Protocol Name
				4,     // Protocol Level
				0,     // Packet Flags
				0, 60, // Keepalive
				0, 3, // Client ID - MSB+LSB
				'z', 'e', 'n', // Client ID "zen"
			},
			Packet: &ConnectPacket{
				Keepalive:        60,
				ClientIdentifier: "zen",
			},
		},
		{
			Case:    TConnectClean,
			Desc:    "clean session",
			Primary: true,
			RawBytes: []byte{
				Connect << 4, 15,
				0, 4, 'M', 'Q', 'T', 'T',
				4,
				2, // Packet Flags - clean session
				0, 45,
				0, 3, 'z', 'e', 'n',
			},
			Packet: &ConnectPacket{
				CleanSession:     true,
				Keepalive:        45,
				ClientIdentifier: "zen",
			},
		},
		{
			Case:    TConnectUserPass,
			Desc:    "username and password",
			Primary: true,
			RawBytes: []byte{
				Connect << 4, 28,
				0, 4, 'M', 'Q', 'T', 'T',
				4,
				194, // Packet Flags - username, password, clean
				0, 20,
				0, 3, 'z', 'e', 'n',
				0, 5, 'm', 'o', 'c', 'h', 'i', // Username
				0, 4, ',', '.', '/', ';', // Password
			},
			Packet: &ConnectPacket{
				CleanSession:     true,
				Keepalive:        20,
				ClientIdentifier: "zen",
				UsernameFlag:     true,
				Username:         "mochi",
				PasswordFlag:     true,
				Password:         []byte(",./;"),
			},
		},
		{
			Case: TConnectUserOnly,
			Desc: "username only",
			RawBytes: []byte{
				Connect << 4, 22,
				0, 4, 'M', 'Q', 'T', 'T',
				4,
				128, // Packet Flags - username
				0, 20,
				0, 3, 'z', 'e', 'n',
				0, 5, 'm', 'o', 'c', 'h', 'i',
			},
			Packet: &ConnectPacket{
				Keepalive:        20,
				ClientIdentifier: "zen",
				UsernameFlag:     true,
				Username:         "mochi",
			},
		},
		{
			Case: TConnectPassOnly,
			Desc: "password only",
			RawBytes: []byte{
				Connect << 4, 21,
				0, 4, 'M', 'Q', 'T', 'T',
				4,
				64, // Packet Flags - password
				0, 20,
				0, 3, 'z', 'e', 'n',
				0, 4, ',', '.', '/', ';',
			},
			Packet: &ConnectPacket{
				Keepalive:        20,
				ClientIdentifier: "zen",
				PasswordFlag:     true,
				Password:         []byte(",./;"),
			},
		},
		{
			Case:    TConnectUserPassLWT,
			Desc:    "username and password and will",
			Primary: true,
			RawBytes: []byte{
				Connect << 4, 43,
				0, 4, 'M', 'Q', 'T', 'T',
				4,
				206, // Packet Flags - username, password, will qos 1, will, clean
				0, 120,
				0, 3, 'z', 'e', 'n',
				0, 3, 'l', 'w', 't', // Will Topic
				0, 8, 'n', 'o', 't', ' ', 'a', 'g', 'a', 'i', // Will Payload
				0, 5, 'm', 'o', 'c', 'h', 'i',
				0, 4, ',', '.', '/', ';',
			},
			Packet: &ConnectPacket{
				CleanSession:     true,
				Keepalive:        120,
				ClientIdentifier: "zen",
				UsernameFlag:     true,
				Username:         "mochi",
				PasswordFlag:     true,
				Password:         []byte(",./;"),
				Will: &Message{
					TopicName: "lwt",
					Payload:   []byte("not agai"),
					Qos:       AtLeastOnce,
				},
			},
		},
		{
			Case: TConnectEmptyClientID,
			Desc: "empty client id",
			RawBytes: []byte{
				Connect << 4, 12,
				0, 4, 'M', 'Q', 'T', 'T',
				4,
				2,
				0, 60,
				0, 0, // Client ID - empty
			},
			Packet: &ConnectPacket{
				CleanSession: true,
				Keepalive:    60,
			},
		},
		{
			Case:   TConnectInvalidProtocolName,
			Desc:   "invalid protocol name",
			Group:  "decode",
			Expect: ErrInvalidProtocolName,
			RawBytes: []byte{
				Connect << 4, 17,
				0, 6, 'M', 'Q', 'I', 's', 'd', 'p',
				3,
				0,
				0, 30,
				0, 3, 'z', 'e', 'n',
			},
		},
		{
			Case:   TConnectInvalidProtocolLevel,
			Desc:   "invalid protocol level",
			Group:  "decode",
			Expect: ErrInvalidProtocolLevel,
			RawBytes: []byte{
				Connect << 4, 15,
				0, 4, 'M', 'Q', 'T', 'T',
				5,
				0,
				0, 30,
				0, 3, 'z', 'e', 'n',
			},
		},
		{
			Case:   TConnectInvalidReservedBit,
			Desc:   "reserved bit set",
			Group:  "decode",
			Expect: ErrProtocolViolationReservedBit,
			RawBytes: []byte{
				Connect << 4, 15,
				0, 4, 'M', 'Q', 'T', 'T',
				4,
				1,
				0, 30,
				0, 3, 'z', 'e', 'n',
			},
		},
		{
			Case:   TConnectInvalidWillQos,
			Desc:   "will qos 3",
			Group:  "decode",
			Expect: ErrInvalidQos,
			RawBytes: []byte{
				Connect << 4, 15,
				0, 4, 'M', 'Q', 'T', 'T',
				4,
				28, // will flag, will qos 3
				0, 30,
				0, 3, 'z', 'e', 'n',
			},
		},
		{
			Case:   TConnectInvalidWillFlags,
			Desc:   "will retain without will flag",
			Group:  "decode",
			Expect: ErrProtocolViolationWillFlags,
			RawBytes: []byte{
				Connect << 4, 15,
				0, 4, 'M', 'Q', 'T', 'T',
				4,
				32, // will retain only
				0, 30,
				0, 3, 'z', 'e', 'n',
			},
		},
		{
			Case:   TConnectInvalidClientIDNul,
			Desc:   "client id contains nul",
			Group:  "decode",
			Expect: ErrMalformedString,
			RawBytes: []byte{
				Connect << 4, 15,
				0, 4, 'M', 'Q', 'T', 'T',
				4,
				0,
				0, 30,
				0, 3, 'z', 0, 'n',
			},
		},
		{
			Case:   TConnectMalKeepalive,
			Desc:   "malformed keepalive",
			Group:  "decode",
			Expect: ErrMalformedKeepalive,
			RawBytes: []byte{
				Connect << 4, 9,
				0, 4, 'M', 'Q', 'T', 'T',
				4,
				0,
				0,
			},
		},
		{
			Case:   TConnectMalWillTopic,
			Desc:   "malformed will topic",
			Group:  "decode",
			Expect: ErrMalformedWillTopic,
			RawBytes: []byte{
				Connect << 4, 17,
				0, 4, 'M', 'Q', 'T', 'T',
				4,
				4, // will flag
				0, 30,
				0, 3, 'z', 'e', 'n',
				0, 9,
			},
		},
		{
			Case:   TConnectMalPassword,
			Desc:   "malformed password",
			Group:  "decode",
			Expect: ErrMalformedPassword,
			RawBytes: []byte{
				Connect << 4, 17,
				0, 4, 'M', 'Q', 'T', 'T',
				4,
				64,
				0, 30,
				0, 3, 'z', 'e', 'n',
				0, 4,
			},
		},
	},
	Connack: {
		{
			Case:    TConnackAcceptedNoSession,
			Desc:    "accepted, no session",
			Primary: true,
			RawBytes: []byte{
				Connack << 4, 2, // fixed header
				0, // No existing session
				0, // Return Code
			},
			Packet: &ConnackPacket{},
		},
		{
			Case:    TConnackAcceptedSessionExists,
			Desc:    "accepted, session exists",
			Primary: true,
			RawBytes: []byte{
				Connack << 4, 2,
				1, // Session present
				0,
			},
			Packet: &ConnackPacket{SessionPresent: true},
		},
		{
			Case: TConnackNotAuthorized,
			Desc: "not authorized",
			RawBytes: []byte{
				Connack << 4, 2,
				0,
				5,
			},
			Packet: &ConnackPacket{ReturnCode: ErrNotAuthorized.Code},
		},
		{
			Case:      TConnackInvalidReturnCode,
			Desc:      "invalid return code",
			Group:     "invalid",
			Expect:    ErrMalformedReturnCode,
			FailFirst: ErrMalformedReturnCode,
			RawBytes: []byte{
				Connack << 4, 2,
				0,
				6,
			},
			Packet: &ConnackPacket{ReturnCode: 6},
		},
		{
			Case:   TConnackMalSessionPresent,
			Desc:   "malformed session present flags",
			Group:  "decode",
			Expect: ErrMalformedSessionPresent,
			RawBytes: []byte{
				Connack << 4, 2,
				2,
				0,
			},
		},
	},
	Publish: {
		{
			Case:    TPublishNoPayload,
			Desc:    "no payload",
			Primary: true,
			RawBytes: []byte{
				Publish << 4, 7, // Fixed header
				0, 5, // Topic Name - LSB+MSB
				'a', '/', 'b', '/', 'c', // Topic Name
			},
			Packet: &PublishPacket{
				Message: Message{TopicName: "a/b/c"},
			},
		},
		{
			Case:    TPublishBasic,
			Desc:    "mqtt v3.1.1",
			Primary: true,
			RawBytes: []byte{
				Publish << 4, 18,
				0, 5, 'a', '/', 'b', '/', 'c',
				'h', 'e', 'l', 'l', 'o', ' ', 'm', 'o', 'c', 'h', 'i', // Payload
			},
			Packet: &PublishPacket{
				Message: Message{
					TopicName: "a/b/c",
					Payload:   []byte("hello mochi"),
				},
			},
		},
		{
			Case:    TPublishQos1,
			Desc:    "qos:1, packet id",
			Primary: true,
			RawBytes: []byte{
				Publish<<4 | 1<<1, 20,
				0, 5, 'a', '/', 'b', '/', 'c',
				0, 7, // Packet ID - LSB+MSB
				'h', 'e', 'l', 'l', 'o', ' ', 'm', 'o', 'c', 'h', 'i',
			},
			Packet: &PublishPacket{
				Message: Message{
					TopicName: "a/b/c",
					Payload:   []byte("hello mochi"),
					Qos:       AtLeastOnce,
				},
				PacketID: 7,
			},
		},
		{
			Case: TPublishQos2Dup,
			Desc: "qos:2, dup, packet id",
			RawBytes: []byte{
				Publish<<4 | 1<<3 | 2<<1, 14,
				0, 5, 'a', '/', 'b', '/', 'c',
				0, 1,
				'm', 'o', 'c', 'h', 'i',
			},
			Packet: &PublishPacket{
				Message: Message{
					TopicName: "a/b/c",
					Payload:   []byte("mochi"),
					Qos:       ExactlyOnce,
				},
				Dup:      true,
				PacketID: 1,
			},
		},
		{
			Case: TPublishRetain,
			Desc: "retain",
			RawBytes: []byte{
				Publish<<4 | 1, 12,
				0, 5, 'a', '/', 'b', '/', 'c',
				'm', 'o', 'c', 'h', 'i',
			},
			Packet: &PublishPacket{
				Message: Message{
					TopicName: "a/b/c",
					Payload:   []byte("mochi"),
					Retain:    true,
				},
			},
		},
		{
			Case: TPublishMaxPacketID,
			Desc: "max packet id",
			RawBytes: []byte{
				Publish<<4 | 1<<1, 5,
				0, 1, 'a',
				255, 255,
			},
			Packet: &PublishPacket{
				Message:  Message{TopicName: "a", Qos: AtLeastOnce},
				PacketID: 65535,
			},
		},
		{
			Case:      TPublishInvalidQos,
			Desc:      "qos 3",
			Group:     "invalid",
			Expect:    ErrInvalidQos,
			FailFirst: ErrInvalidQos,
			RawBytes: []byte{
				Publish<<4 | 3<<1, 5,
				0, 1, 'a',
				0, 1,
			},
			Packet: &PublishPacket{
				Message:  Message{TopicName: "a", Qos: 3},
				PacketID: 1,
			},
		},
		{
			Case:      TPublishNoPacketID,
			Desc:      "qos 1 with zero packet id",
			Group:     "invalid",
			Expect:    ErrProtocolViolationNoPacketID,
			FailFirst: ErrProtocolViolationNoPacketID,
			RawBytes: []byte{
				Publish<<4 | 1<<1, 5,
				0, 1, 'a',
				0, 0,
			},
			Packet: &PublishPacket{
				Message: Message{TopicName: "a", Qos: AtLeastOnce},
			},
		},
		{
			Case:   TPublishMalTopic,
			Desc:   "malformed topic",
			Group:  "decode",
			Expect: ErrMalformedTopic,
			RawBytes: []byte{
				Publish << 4, 3,
				0, 5, 'a',
			},
		},
		{
			Case:      TPublishInvalidTopicUTF8,
			Desc:      "invalid topic utf-8",
			Group:     "invalid",
			Expect:    ErrMalformedString,
			FailFirst: ErrMalformedString,
			RawBytes: []byte{
				Publish << 4, 4,
				0, 2, 0xed, 0xa0,
			},
			Packet: &PublishPacket{
				Message: Message{TopicName: string([]byte{0xed, 0xa0})},
			},
		},
	},
	Puback: {
		{
			Case:    TPuback,
			Desc:    "puback",
			Primary: true,
			RawBytes: []byte{
				Puback << 4, 2, // Fixed header
				0, 7, // Packet ID - LSB+MSB
			},
			Packet: &PubackPacket{PacketID: 7},
		},
		{
			Case: TPubackZero,
			Desc: "puback packet id 0",
			RawBytes: []byte{
				Puback << 4, 2,
				0, 0,
			},
			Packet: &PubackPacket{},
		},
		{
			Case:   TPubackMalPacketID,
			Desc:   "malformed packet id",
			Group:  "decode",
			Expect: ErrMalformedPacketID,
			RawBytes: []byte{
				Puback << 4, 1,
				0,
			},
		},
	},
	Pubrec: {
		{
			Case:    TPubrec,
			Desc:    "pubrec",
			Primary: true,
			RawBytes: []byte{
				Pubrec << 4, 2,
				0, 7,
			},
			Packet: &PubrecPacket{PacketID: 7},
		},
	},
	Pubrel: {
		{
			Case:    TPubrel,
			Desc:    "pubrel",
			Primary: true,
			RawBytes: []byte{
				Pubrel<<4 | 1<<1, 2, // Fixed header, qos 1
				0, 7,
			},
			Packet: &PubrelPacket{PacketID: 7},
		},
	},
	Pubcomp: {
		{
			Case:    TPubcomp,
			Desc:    "pubcomp",
			Primary: true,
			RawBytes: []byte{
				Pubcomp << 4, 2,
				0, 7,
			},
			Packet: &PubcompPacket{PacketID: 7},
		},
	},
	Subscribe: {
		{
			Case:    TSubscribe,
			Desc:    "subscribe",
			Primary: true,
			RawBytes: []byte{
				Subscribe<<4 | 1<<1, 10, // Fixed header
				0, 15, // Packet ID - LSB+MSB
				0, 5, // Topic Name - LSB+MSB
				'a', '/', 'b', '/', 'c', // Topic Name
				0, // QoS
			},
			Packet: &SubscribePacket{
				PacketID: 15,
				Subscriptions: []Subscription{
					{Filter: "a/b/c"},
				},
			},
		},
		{
			Case: TSubscribeMany,
			Desc: "many",
			RawBytes: []byte{
				Subscribe<<4 | 1<<1, 30,
				0, 15,
				0, 3, 'a', '/', 'b',
				0,
				0, 11, 'd', '/', 'e', '/', 'f', '/', 'g', '/', 'h', '/', 'i',
				1,
				0, 5, 'x', '/', 'y', '/', 'z',
				2,
			},
			Packet: &SubscribePacket{
				PacketID: 15,
				Subscriptions: []Subscription{
					{Filter: "a/b", Qos: AtMostOnce},
					{Filter: "d/e/f/g/h/i", Qos: AtLeastOnce},
					{Filter: "x/y/z", Qos: ExactlyOnce},
				},
			},
		},
		{
			Case:      TSubscribeNoFilters,
			Desc:      "no filters",
			Group:     "invalid",
			Expect:    ErrProtocolViolationNoFilters,
			FailFirst: ErrProtocolViolationNoFilters,
			RawBytes: []byte{
				Subscribe<<4 | 1<<1, 2,
				0, 15,
			},
			Packet: &SubscribePacket{PacketID: 15},
		},
		{
			Case:      TSubscribeInvalidQos,
			Desc:      "requested qos 3",
			Group:     "invalid",
			Expect:    ErrInvalidQos,
			FailFirst: ErrInvalidQos,
			RawBytes: []byte{
				Subscribe<<4 | 1<<1, 6,
				0, 15,
				0, 1, 'a',
				3,
			},
			Packet: &SubscribePacket{
				PacketID:      15,
				Subscriptions: []Subscription{{Filter: "a", Qos: 3}},
			},
		},
		{
			Case:   TSubscribeMalQosReserved,
			Desc:   "qos reserved bits set",
			Group:  "decode",
			Expect: ErrMalformedQos,
			RawBytes: []byte{
				Subscribe<<4 | 1<<1, 6,
				0, 15,
				0, 1, 'a',
				0x41,
			},
		},
	},
	Suback: {
		{
			Case:    TSuback,
			Desc:    "suback",
			Primary: true,
			RawBytes: []byte{
				Suback << 4, 5, // Fixed header
				0, 15, // Packet ID
				0, 1, 2, // Return Codes
			},
			Packet: &SubackPacket{
				PacketID:    15,
				ReturnCodes: []byte{0, 1, 2},
			},
		},
		{
			Case: TSubackFailure,
			Desc: "suback with failure",
			RawBytes: []byte{
				Suback << 4, 4,
				0, 15,
				0x80, 1,
			},
			Packet: &SubackPacket{
				PacketID:    15,
				ReturnCodes: []byte{ErrSubscriptionFailure.Code, 1},
			},
		},
		{
			Case:      TSubackInvalidCode,
			Desc:      "invalid return code",
			Group:     "invalid",
			Expect:    ErrMalformedReturnCode,
			FailFirst: ErrMalformedReturnCode,
			RawBytes: []byte{
				Suback << 4, 3,
				0, 15,
				3,
			},
			Packet: &SubackPacket{
				PacketID:    15,
				ReturnCodes: []byte{3},
			},
		},
	},
	Unsubscribe: {
		{
			Case:    TUnsubscribe,
			Desc:    "unsubscribe",
			Primary: true,
			RawBytes: []byte{
				Unsubscribe<<4 | 1<<1, 9, // Fixed header
				0, 15, // Packet ID
				0, 5, 'a', '/', 'b', '/', 'c',
			},
			Packet: &UnsubscribePacket{
				PacketID: 15,
				Filters:  []string{"a/b/c"},
			},
		},
		{
			Case: TUnsubscribeMany,
			Desc: "unsubscribe many",
			RawBytes: []byte{
				Unsubscribe<<4 | 1<<1, 14,
				0, 15,
				0, 5, 'a', '/', 'b', '/', 'c',
				0, 3, 'x', '/', '#',
			},
			Packet: &UnsubscribePacket{
				PacketID: 15,
				Filters:  []string{"a/b/c", "x/#"},
			},
		},
		{
			Case:      TUnsubscribeNoFilters,
			Desc:      "no filters",
			Group:     "invalid",
			Expect:    ErrProtocolViolationNoFilters,
			FailFirst: ErrProtocolViolationNoFilters,
			RawBytes: []byte{
				Unsubscribe<<4 | 1<<1, 2,
				0, 15,
			},
			Packet: &UnsubscribePacket{PacketID: 15},
		},
	},
	Unsuback: {
		{
			Case:    TUnsuback,
			Desc:    "unsuback",
			Primary: true,
			RawBytes: []byte{
				Unsuback << 4, 2,
				0, 15,
			},
			Packet: &UnsubackPacket{PacketID: 15},
		},
	},
	Pingreq: {
		{
			Case:     TPingreq,
			Desc:     "ping request",
			Primary:  true,
			RawBytes: []byte{Pingreq << 4, 0},
			Packet:   &PingreqPacket{},
		},
	},
	Pingresp: {
		{
			Case:     TPingresp,
			Desc:     "ping response",
			Primary:  true,
			RawBytes: []byte{Pingresp << 4, 0},
			Packet:   &PingrespPacket{},
		},
	},
	Disconnect: {
		{
			Case:     TDisconnect,
			Desc:     "disconnect",
			Primary:  true,
			RawBytes: []byte{Disconnect << 4, 0},
			Packet:   &DisconnectPacket{},
		},
		{
			Case:     TDisconnectSurplus,
			Desc:     "surplus bytes",
			Group:    "decode",
			Expect:   ErrMalformedSurplusBytes,
			RawBytes: []byte{Disconnect << 4, 1, 0},
		},
	},
}
