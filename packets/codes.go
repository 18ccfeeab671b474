// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

// Code contains a return code and reason string for a response or failure.
type Code struct {
	Reason string
	Code   byte
}

// String returns the readable reason for a code.
func (c Code) String() string {
	return c.Reason
}

// Error returns the readable reason for a code.
func (c Code) Error() string {
	return c.Reason
}

var (
	// QosCodes indicates the suback return codes for each granted qos.
	QosCodes = map[Qos]Code{
		AtMostOnce:  CodeGrantedQos0,
		AtLeastOnce: CodeGrantedQos1,
		ExactlyOnce: CodeGrantedQos2,
	}

	CodeSuccess     = Code{Code: 0x00, Reason: "success"}
	CodeDisconnect  = Code{Code: 0x00, Reason: "disconnected"}
	CodeGrantedQos0 = Code{Code: 0x00, Reason: "granted qos 0"}
	CodeGrantedQos1 = Code{Code: 0x01, Reason: "granted qos 1"}
	CodeGrantedQos2 = Code{Code: 0x02, Reason: "granted qos 2"}

	// Connack return codes.
	CodeConnectionAccepted                  = Code{Code: 0x00, Reason: "connection accepted"}
	ErrUnacceptableProtocolVersion          = Code{Code: 0x01, Reason: "unacceptable protocol version"}
	ErrIdentifierRejected                   = Code{Code: 0x02, Reason: "identifier rejected"}
	ErrServerUnavailable                    = Code{Code: 0x03, Reason: "server unavailable"}
	ErrBadUsernameOrPassword                = Code{Code: 0x04, Reason: "bad username or password"}
	ErrNotAuthorized                        = Code{Code: 0x05, Reason: "not authorized"}
	ErrSubscriptionFailure                  = Code{Code: 0x80, Reason: "subscription failure"}
	ErrUnspecifiedError                     = Code{Code: 0x80, Reason: "unspecified error"}
	ErrMalformedPacket                      = Code{Code: 0x81, Reason: "malformed packet"}
	ErrMalformedFlags                       = Code{Code: 0x81, Reason: "malformed packet: flags"}
	ErrMalformedKeepalive                   = Code{Code: 0x81, Reason: "malformed packet: keepalive"}
	ErrMalformedPacketID                    = Code{Code: 0x81, Reason: "malformed packet: packet identifier"}
	ErrMalformedTopic                       = Code{Code: 0x81, Reason: "malformed packet: topic"}
	ErrMalformedWillTopic                   = Code{Code: 0x81, Reason: "malformed packet: will topic"}
	ErrMalformedWillPayload                 = Code{Code: 0x81, Reason: "malformed packet: will message"}
	ErrMalformedUsername                    = Code{Code: 0x81, Reason: "malformed packet: username"}
	ErrMalformedPassword                    = Code{Code: 0x81, Reason: "malformed packet: password"}
	ErrMalformedQos                         = Code{Code: 0x81, Reason: "malformed packet: qos"}
	ErrMalformedReturnCode                  = Code{Code: 0x81, Reason: "malformed packet: return code"}
	ErrMalformedSessionPresent              = Code{Code: 0x81, Reason: "malformed packet: session present"}
	ErrMalformedOffsetUintOutOfRange        = Code{Code: 0x81, Reason: "malformed packet: offset uint out of range"}
	ErrMalformedOffsetBytesOutOfRange       = Code{Code: 0x81, Reason: "malformed packet: offset bytes out of range"}
	ErrMalformedOffsetByteOutOfRange        = Code{Code: 0x81, Reason: "malformed packet: offset byte out of range"}
	ErrMalformedSurplusBytes                = Code{Code: 0x81, Reason: "malformed packet: surplus bytes"}
	ErrMalformedString                      = Code{Code: 0x81, Reason: "malformed packet: invalid utf-8 string"}
	ErrMalformedVariableByteInteger         = Code{Code: 0x81, Reason: "malformed packet: variable byte integer out of range"}
	ErrIncompletePacket                     = Code{Code: 0x81, Reason: "malformed packet: incomplete packet"}
	ErrInvalidPacketType                    = Code{Code: 0x82, Reason: "protocol violation: invalid packet type"}
	ErrInvalidProtocolName                  = Code{Code: 0x82, Reason: "protocol violation: protocol name"}
	ErrInvalidProtocolLevel                 = Code{Code: 0x82, Reason: "protocol violation: protocol level"}
	ErrInvalidQos                           = Code{Code: 0x82, Reason: "protocol violation: qos out of range"}
	ErrProtocolViolation                    = Code{Code: 0x82, Reason: "protocol violation"}
	ErrProtocolViolationReservedBit         = Code{Code: 0x82, Reason: "protocol violation: reserved bit not 0"}
	ErrProtocolViolationWillFlags           = Code{Code: 0x82, Reason: "protocol violation: will qos or retain without will flag"}
	ErrProtocolViolationNoPacketID          = Code{Code: 0x82, Reason: "protocol violation: missing packet id"}
	ErrProtocolViolationNoFilters           = Code{Code: 0x82, Reason: "protocol violation: must contain at least one filter"}
	ErrProtocolViolationSecondConnect       = Code{Code: 0x82, Reason: "protocol violation: second connect packet"}
	ErrProtocolViolationRequireFirstConnect = Code{Code: 0x82, Reason: "protocol violation: first packet must be connect"}
	ErrProtocolViolationUnexpectedPacket    = Code{Code: 0x82, Reason: "protocol violation: unexpected packet"}
	ErrValueOutOfRange                      = Code{Code: 0x83, Reason: "value out of range"}
	ErrDecoderFailed                        = Code{Code: 0x83, Reason: "decoder failed"}
	ErrKeepAliveTimeout                     = Code{Code: 0x8D, Reason: "keep alive timeout"}
	ErrSessionTakenOver                     = Code{Code: 0x8E, Reason: "session takeover"}
	ErrPacketIdentifierInUse                = Code{Code: 0x91, Reason: "packet identifier in use"}
	ErrServerShuttingDown                   = Code{Code: 0x8B, Reason: "server shutting down"}
	ErrPacketTooLarge                       = Code{Code: 0x95, Reason: "packet too large"}
	ErrQuotaExceeded                        = Code{Code: 0x97, Reason: "quota exceeded"}

	// ConnackCodes indexes the connack return codes by their wire byte.
	ConnackCodes = map[byte]Code{
		0x00: CodeConnectionAccepted,
		0x01: ErrUnacceptableProtocolVersion,
		0x02: ErrIdentifierRejected,
		0x03: ErrServerUnavailable,
		0x04: ErrBadUsernameOrPassword,
		0x05: ErrNotAuthorized,
	}
)

// validSubackCode returns true if b is a return code permitted in a suback.
func validSubackCode(b byte) bool {
	return b <= byte(ExactlyOnce) || b == ErrSubscriptionFailure.Code
}
