package obfs

import (
	"crypto/rand"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/chacha20"

	"wgobfs/internal/wg"
)

// Padding policy. Small messages get a wide prefix range, large ones a
// narrow range, so total datagram-size variance stays bounded without
// making small packets disproportionately larger.
const (
	// MinPadLen is the smallest padding prefix Encode inserts, and the
	// smallest datagram Decode accepts.
	MinPadLen = 4

	// MaxPadLen is the widest padding prefix; also the Encode overhead.
	MaxPadLen = 32

	// NarrowMaxPadLen caps the prefix for messages longer than LargeCutoff.
	NarrowMaxPadLen = 8

	// LargeCutoff is the message length above which the narrow range applies.
	LargeCutoff = 200
)

// headerLen bytes at the front of every WireGuard message (type, reserved,
// counter) are XOR-masked. They look distinct on the wire otherwise.
const headerLen = 16

// keepaliveDropThreshold: an empty keepalive is dropped when the first
// keystream byte exceeds it, P = 205/256, roughly 0.8. Periodic fixed-size
// keepalives are a strong DPI fingerprint; WireGuard tolerates losing them.
const keepaliveDropThreshold = 50

// WGObfs obfuscates WireGuard datagrams with a keyed, per-packet keystream:
// the all-zero mac2 of handshake messages is replaced with keystream bytes,
// the 16-byte message header is XOR-masked, and a random-length prefix is
// inserted whose first byte carries the masked prefix length.
//
// Every transform is stateless and derivable from the packet alone, so
// packet loss or reordering never desynchronizes a peer.
type WGObfs struct {
	key [chacha20.KeySize]byte

	// Padding range policy, see package constants for defaults.
	MinPad       byte
	MaxPad       byte
	NarrowMaxPad byte
	LargeCutoff  int

	// DropKeepalives enables probabilistic suppression of empty-payload
	// data messages before encoding.
	DropKeepalives bool

	// Rand is the host entropy source for padding. Defaults to crypto/rand.
	Rand io.Reader
}

// NewWGObfs creates the WireGuard datagram obfuscator with the default
// padding policy. The key is stretched once; it is never logged or retained
// in its original form.
func NewWGObfs(key []byte) (*WGObfs, error) {
	if len(key) < 4 {
		return nil, ErrKeyTooShort
	}
	return &WGObfs{
		key:            deriveKey(key),
		MinPad:         MinPadLen,
		MaxPad:         MaxPadLen,
		NarrowMaxPad:   NarrowMaxPadLen,
		LargeCutoff:    LargeCutoff,
		DropKeepalives: true,
		Rand:           rand.Reader,
	}, nil
}

// NewWGObfsObfuscator adapts NewWGObfs to the registry constructor shape.
func NewWGObfsObfuscator(key []byte) (Obfuscator, error) {
	return NewWGObfs(key)
}

func (o *WGObfs) Name() string {
	return "wgobfs"
}

func (o *WGObfs) Overhead() int {
	return int(o.MaxPad)
}

// maxPadFor returns the top of the padding range for a message of length n.
func (o *WGObfs) maxPadFor(n int) byte {
	if n > o.LargeCutoff {
		return o.NarrowMaxPad
	}
	return o.MaxPad
}

// Encode obfuscates the WireGuard message in buf[:n] in place and reports
// the new datagram length. Messages shorter than the minimum WireGuard
// message or of unrecognized kind pass through untouched. Empty keepalives
// may be dropped. buf needs Overhead() spare bytes beyond n; without them
// nothing is mutated.
func (o *WGObfs) Encode(buf []byte, n int) (Result, error) {
	if n < wg.MinMessageLen {
		return Result{Verdict: VerdictUnchanged, Length: n}, nil
	}
	kind := wg.Classify(buf[:n])
	if kind == wg.Unknown {
		return Result{Verdict: VerdictUnchanged, Length: n}, nil
	}

	if o.DropKeepalives && o.shouldDropKeepalive(buf[:n], kind) {
		return Result{Verdict: VerdictDrop}, nil
	}

	maxPad := o.maxPadFor(n)
	if len(buf) < n+int(maxPad) {
		return Result{Verdict: VerdictUnchanged, Length: n}, ErrBufferTooSmall
	}

	padLen, filler, err := randPadLen(o.Rand, o.MinPad, maxPad)
	if err != nil {
		return Result{Verdict: VerdictReject}, err
	}

	o.randomizeTag(buf[:n], kind)

	// Seed from the trailing 8 bytes of the finalized message: the tail
	// does not move when the prefix is inserted, so Decode recomputes the
	// identical keystream before it knows the padding length.
	ks := o.keystream(buf[n-seedLen : n])
	for i := 0; i < headerLen; i++ {
		buf[i] ^= ks[i]
	}

	L := int(padLen)
	copy(buf[L:n+L], buf[:n])
	filler[0] = padLen ^ ks[headerLen]
	copy(buf[:L], filler[:L])

	return Result{Verdict: VerdictModified, Length: n + L}, nil
}

// Decode inverts Encode on the datagram in buf[:n] in place, restoring the
// original WireGuard message. Datagrams whose recovered padding length is
// inconsistent with their size are rejected, never partially repaired.
func (o *WGObfs) Decode(buf []byte, n int) (Result, error) {
	// The prefix adds at least MinPadLen bytes, and the keystream seed
	// needs a full tail.
	if n < MinPadLen || n < seedLen {
		return Result{Verdict: VerdictReject}, ErrCorruptPacket
	}

	ks := o.keystream(buf[n-seedLen : n])
	L := int(buf[0] ^ ks[headerLen])
	if L+wg.MinMessageLen > n {
		return Result{Verdict: VerdictReject}, ErrCorruptPacket
	}

	m := n - L
	copy(buf[:m], buf[L:n])
	for i := 0; i < headerLen; i++ {
		buf[i] ^= ks[i]
	}
	restoreTag(buf[:m])

	return Result{Verdict: VerdictModified, Length: m}, nil
}

// randomizeTag overwrites the all-zero mac2 field of a handshake message
// with keystream bytes and marks the type byte. A mac2 whose first 4 bytes
// are non-zero holds a real cookie mac and is left alone; that heuristic is
// shared with peers, do not strengthen or weaken it.
func (o *WGObfs) randomizeTag(msg []byte, kind wg.Kind) {
	if !wg.IsHandshake(kind) {
		return
	}
	off := wg.Mac2Offset(len(msg))
	if binary.LittleEndian.Uint32(msg[off:]) != 0 {
		return
	}

	// Bytes 8..16 are committed plaintext header data: a packet-specific
	// but deterministic seed.
	ks := o.keystream(msg[seedLen : 2*seedLen])
	copy(msg[off:off+wg.MacLen], ks[:wg.MacLen])
	msg[0] |= wg.ObfsMarker
}

// restoreTag zeroes the mac2 field of a marked handshake message and clears
// the marker from the type byte. The exact structural inverse of
// randomizeTag; needs no key.
func restoreTag(msg []byte) {
	switch {
	case msg[0] == wg.TypeHandshakeInit|wg.ObfsMarker && len(msg) == wg.LenHandshakeInit,
		msg[0] == wg.TypeHandshakeResp|wg.ObfsMarker && len(msg) == wg.LenHandshakeResp:
		off := wg.Mac2Offset(len(msg))
		clear(msg[off : off+wg.MacLen])
	}
	msg[0] &= 0x0F
}

// shouldDropKeepalive decides whether an empty-payload data message is
// suppressed instead of transmitted. The decision is keyed off the packet
// itself, so it is deterministic per packet yet uniform across traffic.
func (o *WGObfs) shouldDropKeepalive(msg []byte, kind wg.Kind) bool {
	if kind != wg.Data || len(msg) != wg.MinMessageLen {
		return false
	}
	ks := o.keystream(msg[len(msg)-seedLen:])
	return ks[0] > keepaliveDropThreshold
}
