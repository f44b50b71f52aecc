package obfs

import (
	"fmt"
	"io"
)

// randBlockLen random bytes are drawn per attempt. The block doubles as
// the padding filler, so it must cover the widest padding length.
const randBlockLen = 32

// randPadLen rejection-samples a padding length in [min, max] from blocks
// of raw random bytes, and returns the last block drawn so the caller can
// reuse its remaining bytes as filler. Zero is never returned.
//
// Termination is probabilistic, not bounded: each block misses a range of
// width w with probability (1-w/256)^32, below 0.53 even at the narrowest
// policy width (4..8), so a match is found within a handful of draws almost
// surely. Entropy exhaustion is propagated, never papered over.
func randPadLen(r io.Reader, min, max byte) (byte, [randBlockLen]byte, error) {
	var block [randBlockLen]byte
	for {
		if _, err := io.ReadFull(r, block[:]); err != nil {
			return 0, block, fmt.Errorf("%w: %v", ErrEntropyExhausted, err)
		}
		for _, b := range block {
			if b >= min && b <= max && b > 0 {
				return b, block, nil
			}
		}
	}
}
