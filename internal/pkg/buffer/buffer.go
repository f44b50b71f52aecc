package buffer

import (
	"sync"
)

// DatagramSize fits the largest UDP payload plus worst-case obfuscation
// overhead, so an encode never needs the buffer grown mid-transform.
const DatagramSize = 64*1024 + 128

var DPool = sync.Pool{
	New: func() any {
		b := make([]byte, DatagramSize)
		return &b
	},
}
