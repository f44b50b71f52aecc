package obfs

import "errors"

var (
	// ErrCorruptPacket is returned by Decode when the recovered padding
	// length is inconsistent with the datagram size. The datagram must be
	// dropped, never partially repaired.
	ErrCorruptPacket = errors.New("corrupt obfuscated datagram")

	// ErrBufferTooSmall is returned by Encode when the buffer lacks the
	// spare capacity for padding insertion. The message is left untouched.
	ErrBufferTooSmall = errors.New("buffer too small for padding insertion")

	// ErrEntropyExhausted is returned when the host entropy source fails.
	// The packet is dropped rather than padded with weak randomness.
	ErrEntropyExhausted = errors.New("entropy source exhausted")

	ErrKeyTooShort = errors.New("obfuscation key must be at least 4 bytes")
)

// Verdict is the outcome of a transform, routed by the host pipeline.
type Verdict int

const (
	// VerdictUnchanged means the buffer did not match a recognized
	// pattern and passes through verbatim. Not an error.
	VerdictUnchanged Verdict = iota

	// VerdictModified means the buffer was transformed in place to the
	// Result's Length.
	VerdictModified

	// VerdictDrop means the packet must not be transmitted (keepalive
	// suppression). A policy outcome, not a failure.
	VerdictDrop

	// VerdictReject means the packet failed validation and must be
	// discarded.
	VerdictReject
)

func (v Verdict) String() string {
	switch v {
	case VerdictUnchanged:
		return "unchanged"
	case VerdictModified:
		return "modified"
	case VerdictDrop:
		return "drop"
	case VerdictReject:
		return "reject"
	}
	return "invalid"
}

// Result reports the verdict of a transform. Length is the number of valid
// bytes left in the buffer after the call; it is meaningful for
// VerdictUnchanged and VerdictModified.
type Result struct {
	Verdict Verdict
	Length  int
}

// Obfuscator transforms datagrams in place to evade DPI detection.
// Implementations are stateless per packet: concurrent calls on independent
// buffers are safe.
type Obfuscator interface {
	// Name returns the obfuscator identifier
	Name() string

	// Encode obfuscates the message in buf[:n] in place. buf must have at
	// least Overhead() bytes of capacity beyond n; if it does not, no byte
	// is mutated and ErrBufferTooSmall is returned.
	Encode(buf []byte, n int) (Result, error)

	// Decode removes the obfuscation layer from the datagram in buf[:n]
	// in place, restoring the original message.
	Decode(buf []byte, n int) (Result, error)

	// Overhead returns maximum bytes added by obfuscation
	Overhead() int
}

// NewFunc is a constructor function for creating obfuscators
type NewFunc func(key []byte) (Obfuscator, error)

// Registry maps obfuscator names to constructor functions
var Registry = map[string]NewFunc{
	"none":   NewNoneObfuscator,
	"wgobfs": NewWGObfsObfuscator,
}

// New creates an obfuscator by name with the given key
func New(name string, key []byte) (Obfuscator, error) {
	fn, ok := Registry[name]
	if !ok {
		return nil, errors.New("unknown obfuscator: " + name)
	}
	return fn(key)
}
