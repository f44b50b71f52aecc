package obfs

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"wgobfs/internal/wg"
)

func newTestObfs(t *testing.T, key string) *WGObfs {
	t.Helper()
	o, err := NewWGObfs([]byte(key))
	if err != nil {
		t.Fatalf("NewWGObfs: %v", err)
	}
	return o
}

// testMessage builds a plausible WireGuard message of the given kind:
// valid type byte, zero reserved bytes, random body, all-zero mac2 for
// handshake kinds.
func testMessage(t *testing.T, typ byte, length int) []byte {
	t.Helper()
	msg := make([]byte, length)
	if _, err := rand.Read(msg[4:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	msg[0] = typ
	if typ == wg.TypeHandshakeInit || typ == wg.TypeHandshakeResp {
		clear(msg[wg.Mac2Offset(length):])
	}
	return msg
}

// constReader feeds a fixed byte, making the padding length deterministic.
type constReader byte

func (c constReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(c)
	}
	return len(p), nil
}

// failReader simulates an exhausted entropy source.
type failReader struct{}

func (failReader) Read(p []byte) (int, error) {
	return 0, errors.New("no entropy")
}

func roundTrip(t *testing.T, o *WGObfs, msg []byte) {
	t.Helper()
	orig := bytes.Clone(msg)
	buf := make([]byte, len(msg)+o.Overhead())
	copy(buf, msg)

	res, err := o.Encode(buf, len(msg))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if res.Verdict != VerdictModified {
		t.Fatalf("Encode verdict = %v, want modified", res.Verdict)
	}
	added := res.Length - len(msg)
	if added < MinPadLen || added > MaxPadLen {
		t.Fatalf("Encode added %d bytes, want %d..%d", added, MinPadLen, MaxPadLen)
	}

	dec, err := o.Decode(buf, res.Length)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec.Verdict != VerdictModified {
		t.Fatalf("Decode verdict = %v, want modified", dec.Verdict)
	}
	if dec.Length != len(orig) {
		t.Fatalf("Decode length = %d, want %d", dec.Length, len(orig))
	}
	if !bytes.Equal(buf[:dec.Length], orig) {
		t.Fatalf("round trip mismatch for %d-byte message", len(orig))
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		typ    byte
		length int
	}{
		{"handshake init", wg.TypeHandshakeInit, wg.LenHandshakeInit},
		{"handshake resp", wg.TypeHandshakeResp, wg.LenHandshakeResp},
		{"cookie", wg.TypeCookie, wg.LenCookie},
		{"data keepalive", wg.TypeData, wg.MinMessageLen},
		{"data small", wg.TypeData, 80},
		{"data mid", wg.TypeData, 192},
		{"data large", wg.TypeData, 1420},
	}

	o := newTestObfs(t, "round-trip-key")
	o.DropKeepalives = false

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				roundTrip(t, o, testMessage(t, tt.typ, tt.length))
			}
		})
	}
}

func TestRoundTripNonZeroTag(t *testing.T) {
	o := newTestObfs(t, "cookie-mac-key")

	// A handshake init whose mac2 carries a real cookie mac must survive
	// the round trip without the tag being overwritten.
	msg := testMessage(t, wg.TypeHandshakeInit, wg.LenHandshakeInit)
	if _, err := rand.Read(msg[wg.Mac2Offset(len(msg)):]); err != nil {
		t.Fatal(err)
	}
	msg[wg.Mac2Offset(len(msg))] |= 1 // keep the guard word non-zero
	roundTrip(t, o, msg)
}

func TestRoundTripManyKeys(t *testing.T) {
	for _, key := range []string{"k-one", "k-two-longer", "third key with spaces"} {
		o := newTestObfs(t, key)
		o.DropKeepalives = false
		for i := 0; i < 20; i++ {
			roundTrip(t, o, testMessage(t, wg.TypeData, 64+i*13))
		}
	}
}

func TestEncodeLengthBounds(t *testing.T) {
	o := newTestObfs(t, "length-bounds-key")

	for i := 0; i < 200; i++ {
		msg := testMessage(t, wg.TypeData, 96)
		buf := make([]byte, len(msg)+o.Overhead())
		copy(buf, msg)
		res, err := o.Encode(buf, len(msg))
		if err != nil {
			t.Fatal(err)
		}
		added := res.Length - len(msg)
		if added < 4 || added > 32 {
			t.Fatalf("small message: pad %d outside [4,32]", added)
		}
	}

	for i := 0; i < 200; i++ {
		msg := testMessage(t, wg.TypeData, 400)
		buf := make([]byte, len(msg)+o.Overhead())
		copy(buf, msg)
		res, err := o.Encode(buf, len(msg))
		if err != nil {
			t.Fatal(err)
		}
		added := res.Length - len(msg)
		if added < 4 || added > 8 {
			t.Fatalf("large message: pad %d outside [4,8]", added)
		}
	}
}

func TestEncodeUnchanged(t *testing.T) {
	o := newTestObfs(t, "unchanged-key")

	tests := []struct {
		name string
		msg  []byte
	}{
		{"too short", testMessage(t, wg.TypeData, 16)},
		{"unknown type", testMessage(t, 0x07, 64)},
		{"init with bad length", testMessage(t, wg.TypeHandshakeInit, 100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := bytes.Clone(tt.msg)
			buf := make([]byte, len(tt.msg)+o.Overhead())
			copy(buf, tt.msg)
			res, err := o.Encode(buf, len(tt.msg))
			if err != nil {
				t.Fatal(err)
			}
			if res.Verdict != VerdictUnchanged || res.Length != len(orig) {
				t.Fatalf("got %v/%d, want unchanged/%d", res.Verdict, res.Length, len(orig))
			}
			if !bytes.Equal(buf[:len(orig)], orig) {
				t.Fatal("unchanged message was mutated")
			}
		})
	}
}

func TestEncodeBufferTooSmall(t *testing.T) {
	o := newTestObfs(t, "atomic-key")
	msg := testMessage(t, wg.TypeHandshakeInit, wg.LenHandshakeInit)
	orig := bytes.Clone(msg)

	res, err := o.Encode(msg, len(msg)) // no spare capacity
	if !errors.Is(err, ErrBufferTooSmall) {
		t.Fatalf("err = %v, want ErrBufferTooSmall", err)
	}
	if res.Verdict != VerdictUnchanged {
		t.Fatalf("verdict = %v, want unchanged", res.Verdict)
	}
	if !bytes.Equal(msg, orig) {
		t.Fatal("message mutated despite missing capacity")
	}
}

func TestEncodeEntropyExhausted(t *testing.T) {
	o := newTestObfs(t, "entropy-key")
	o.Rand = failReader{}

	msg := testMessage(t, wg.TypeData, 64)
	buf := make([]byte, len(msg)+o.Overhead())
	copy(buf, msg)

	res, err := o.Encode(buf, len(msg))
	if !errors.Is(err, ErrEntropyExhausted) {
		t.Fatalf("err = %v, want ErrEntropyExhausted", err)
	}
	if res.Verdict != VerdictReject {
		t.Fatalf("verdict = %v, want reject", res.Verdict)
	}
}

func TestDecodeCorruptRejection(t *testing.T) {
	o := newTestObfs(t, "corruption-key")

	msg := testMessage(t, wg.TypeHandshakeInit, wg.LenHandshakeInit)
	buf := make([]byte, len(msg)+o.Overhead())
	copy(buf, msg)
	res, err := o.Encode(buf, len(msg))
	if err != nil {
		t.Fatal(err)
	}

	// Truncating below paddingLen+32 must reject, never partially process.
	for _, n := range []int{1, 3, MinPadLen, 7, 16, 31} {
		trunc := bytes.Clone(buf[:n])
		dec, err := o.Decode(trunc, n)
		if !errors.Is(err, ErrCorruptPacket) {
			t.Fatalf("Decode(%d bytes) err = %v, want ErrCorruptPacket", n, err)
		}
		if dec.Verdict != VerdictReject {
			t.Fatalf("Decode(%d bytes) verdict = %v, want reject", n, dec.Verdict)
		}
	}

	// Flipping tail bytes desynchronizes the keystream seed; the recovered
	// padding length is then bogus for all but a sliver of values. Make it
	// deterministic by forcing an impossible length byte instead.
	forged := bytes.Clone(buf[:res.Length])
	ks := o.keystream(forged[res.Length-seedLen : res.Length])
	forged[0] = 0xFF ^ ks[headerLen] // L=255, 255+32 > datagram
	if _, err := o.Decode(forged, res.Length); !errors.Is(err, ErrCorruptPacket) {
		t.Fatalf("forged length byte: err = %v, want ErrCorruptPacket", err)
	}
}

func TestKeepaliveDropRate(t *testing.T) {
	const trials = 10000
	drops := 0

	for _, key := range []string{"drop-rate-key-a", "drop-rate-key-b"} {
		o := newTestObfs(t, key)
		for i := 0; i < trials/2; i++ {
			msg := testMessage(t, wg.TypeData, wg.MinMessageLen)
			buf := make([]byte, len(msg)+o.Overhead())
			copy(buf, msg)
			res, err := o.Encode(buf, len(msg))
			if err != nil {
				t.Fatal(err)
			}
			if res.Verdict == VerdictDrop {
				drops++
			}
		}
	}

	rate := float64(drops) / float64(trials)
	if rate < 0.77 || rate > 0.83 {
		t.Fatalf("keepalive drop rate = %.3f, want ~0.80", rate)
	}
}

func TestKeepaliveDropDisabled(t *testing.T) {
	o := newTestObfs(t, "no-drop-key")
	o.DropKeepalives = false

	for i := 0; i < 200; i++ {
		msg := testMessage(t, wg.TypeData, wg.MinMessageLen)
		buf := make([]byte, len(msg)+o.Overhead())
		copy(buf, msg)
		res, err := o.Encode(buf, len(msg))
		if err != nil {
			t.Fatal(err)
		}
		if res.Verdict == VerdictDrop {
			t.Fatal("keepalive dropped with suppression disabled")
		}
	}
}

func TestKeepaliveDropOnlyAppliesToKeepalives(t *testing.T) {
	o := newTestObfs(t, "selective-drop-key")

	// Larger data messages and handshakes are never dropped.
	for i := 0; i < 500; i++ {
		for _, m := range [][]byte{
			testMessage(t, wg.TypeData, 48),
			testMessage(t, wg.TypeHandshakeInit, wg.LenHandshakeInit),
		} {
			buf := make([]byte, len(m)+o.Overhead())
			copy(buf, m)
			res, err := o.Encode(buf, len(m))
			if err != nil {
				t.Fatal(err)
			}
			if res.Verdict == VerdictDrop {
				t.Fatalf("%d-byte type 0x%02x message dropped", len(m), m[0])
			}
		}
	}
}

func TestRandomizeTagIdempotent(t *testing.T) {
	o := newTestObfs(t, "idempotent-key")

	msg := testMessage(t, wg.TypeHandshakeInit, wg.LenHandshakeInit)
	off := wg.Mac2Offset(len(msg))

	o.randomizeTag(msg, wg.HandshakeInit)
	first := bytes.Clone(msg[off:])
	if bytes.Equal(first, make([]byte, wg.MacLen)) {
		t.Fatal("tag still zero after randomizeTag")
	}
	if msg[0]&wg.ObfsMarker == 0 {
		t.Fatal("marker bit not set")
	}

	o.randomizeTag(msg, wg.HandshakeInit)
	if !bytes.Equal(msg[off:], first) {
		t.Fatal("second randomizeTag changed the tag")
	}
}

func TestRestoreTag(t *testing.T) {
	o := newTestObfs(t, "restore-key")

	msg := testMessage(t, wg.TypeHandshakeResp, wg.LenHandshakeResp)
	orig := bytes.Clone(msg)

	o.randomizeTag(msg, wg.HandshakeResp)
	restoreTag(msg)
	if !bytes.Equal(msg, orig) {
		t.Fatal("restoreTag did not invert randomizeTag")
	}
}

func TestNonHandshakeTagUntouched(t *testing.T) {
	o := newTestObfs(t, "passthrough-key")
	o.Rand = constReader(10) // deterministic paddingLen = 10

	msg := testMessage(t, wg.TypeData, 96)
	orig := bytes.Clone(msg)
	buf := make([]byte, len(msg)+o.Overhead())
	copy(buf, msg)

	res, err := o.Encode(buf, len(msg))
	if err != nil {
		t.Fatal(err)
	}
	if res.Length != len(msg)+10 {
		t.Fatalf("length = %d, want %d", res.Length, len(msg)+10)
	}

	// Only bytes 0..15 are masked; everything after the header is moved
	// but byte-identical.
	if !bytes.Equal(buf[10+headerLen:res.Length], orig[headerLen:]) {
		t.Fatal("bytes beyond the header were modified")
	}
	if bytes.Equal(buf[10:10+headerLen], orig[:headerLen]) {
		t.Fatal("header was not masked")
	}
}

// The deterministic end-to-end scenario: a 148-byte handshake initiation
// with all-zero mac2, paddingLen forced to 10.
func TestHandshakeInitScenario(t *testing.T) {
	o := newTestObfs(t, "scenario-key-K")
	o.Rand = constReader(10)

	msg := testMessage(t, wg.TypeHandshakeInit, wg.LenHandshakeInit)
	orig := bytes.Clone(msg)
	buf := make([]byte, len(msg)+o.Overhead())
	copy(buf, msg)

	res, err := o.Encode(buf, len(msg))
	if err != nil {
		t.Fatal(err)
	}
	if res.Length != 158 {
		t.Fatalf("datagram length = %d, want 158", res.Length)
	}
	if bytes.Equal(buf[10:26], orig[:16]) {
		t.Fatal("header bytes not masked")
	}
	tag := buf[10+wg.Mac2Offset(len(orig)) : 10+len(orig)]
	if bytes.Equal(tag, make([]byte, wg.MacLen)) {
		t.Fatal("tag field still zero in encoded datagram")
	}

	// The first byte decodes to the padding length under the recomputed
	// keystream.
	ks := o.keystream(buf[res.Length-seedLen : res.Length])
	if L := buf[0] ^ ks[headerLen]; L != 10 {
		t.Fatalf("recovered padding length = %d, want 10", L)
	}

	dec, err := o.Decode(buf, res.Length)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Length != wg.LenHandshakeInit {
		t.Fatalf("decoded length = %d, want %d", dec.Length, wg.LenHandshakeInit)
	}
	if !bytes.Equal(buf[:dec.Length], orig) {
		t.Fatal("decoded message differs from the original, zero mac2 included")
	}
}

func TestNewWGObfsKeyTooShort(t *testing.T) {
	if _, err := NewWGObfs([]byte("abc")); !errors.Is(err, ErrKeyTooShort) {
		t.Fatalf("err = %v, want ErrKeyTooShort", err)
	}
}

func TestRegistry(t *testing.T) {
	for _, name := range []string{"none", "wgobfs"} {
		o, err := New(name, []byte("registry-key"))
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if o.Name() != name {
			t.Fatalf("Name() = %q, want %q", o.Name(), name)
		}
	}
	if _, err := New("bogus", []byte("k")); err == nil {
		t.Fatal("expected error for unknown obfuscator")
	}
}
