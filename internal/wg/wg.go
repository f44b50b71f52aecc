// Package wg holds WireGuard wire-format constants and message
// classification shared by the obfuscation transform and diagnostics.
package wg

// WireGuard message types, first byte of the UDP payload.
const (
	TypeHandshakeInit = 0x01
	TypeHandshakeResp = 0x02
	TypeCookie        = 0x03
	TypeData          = 0x04
)

// Exact on-wire lengths of the fixed-size handshake messages.
const (
	LenHandshakeInit = 148
	LenHandshakeResp = 92
	LenCookie        = 64

	// MinMessageLen is the length of an empty-payload data message
	// (keepalive), the smallest valid WireGuard message.
	MinMessageLen = 32

	// MacLen is the size of the mac1/mac2 fields in handshake messages.
	// mac2 is the trailing MacLen bytes of the message.
	MacLen = 16
)

// ObfsMarker is set on the type byte of a handshake message whose mac2
// field carries randomized filler and must be zeroed on receipt. The low
// nibble keeps the real message type.
const ObfsMarker = 0x10

// Kind is the classified message kind of a buffer.
type Kind int

const (
	Unknown Kind = iota
	HandshakeInit
	HandshakeResp
	Cookie
	Data
)

func (k Kind) String() string {
	switch k {
	case HandshakeInit:
		return "handshake_init"
	case HandshakeResp:
		return "handshake_resp"
	case Cookie:
		return "cookie"
	case Data:
		return "data"
	case Unknown:
		return "unknown"
	}
	return "invalid"
}

// Classify inspects the type byte and total length of buf. The marker bit
// is ignored so obfuscation-tagged handshake messages classify the same as
// untagged ones. Handshake types whose length does not match the fixed
// wire size yield Unknown.
func Classify(buf []byte) Kind {
	if len(buf) == 0 {
		return Unknown
	}
	switch buf[0] & 0x0F {
	case TypeHandshakeInit:
		if len(buf) != LenHandshakeInit {
			return Unknown
		}
		return HandshakeInit
	case TypeHandshakeResp:
		if len(buf) != LenHandshakeResp {
			return Unknown
		}
		return HandshakeResp
	case TypeCookie:
		return Cookie
	case TypeData:
		return Data
	default:
		return Unknown
	}
}

// IsHandshake reports whether k carries a mac2 field.
func IsHandshake(k Kind) bool {
	return k == HandshakeInit || k == HandshakeResp
}

// Mac2Offset returns the offset of the mac2 field for a message of the
// given length. Valid only for handshake messages.
func Mac2Offset(msgLen int) int {
	return msgLen - MacLen
}
