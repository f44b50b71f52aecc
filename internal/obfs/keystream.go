package obfs

import (
	"crypto/sha256"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// keystreamLen bytes of keystream are derived per packet: 16 for the
	// header mask or mac2 filler, one more for the padding length byte.
	keystreamLen = 32

	// seedLen is the number of packet bytes hashed into the keystream seed.
	seedLen = 8
)

type keystreamBlock [keystreamLen]byte

// deriveKey stretches the pre-shared key into a ChaCha20 key. Done once at
// construction, never per packet.
func deriveKey(psk []byte) [chacha20.KeySize]byte {
	var key [chacha20.KeySize]byte
	copy(key[:], pbkdf2.Key(psk, []byte("wgobfs-keystream"), 100_000, chacha20.KeySize, sha256.New))
	return key
}

// keystream derives a pseudorandom block from an 8-byte packet-local seed
// and the pre-shared key. The block is never reused across packets: reuse
// would create an XOR oracle between packets sharing a seed.
func (o *WGObfs) keystream(seed []byte) keystreamBlock {
	var nonce [chacha20.NonceSize]byte
	copy(nonce[:seedLen], seed)
	c, err := chacha20.NewUnauthenticatedCipher(o.key[:], nonce[:])
	if err != nil {
		// key and nonce sizes are fixed constants
		panic(err)
	}
	var ks keystreamBlock
	c.XORKeyStream(ks[:], ks[:])
	return ks
}
