package obfs

// NoneObfuscator is a passthrough obfuscator that does nothing
// Used for plain relaying and testing
type NoneObfuscator struct{}

// NewNoneObfuscator creates a passthrough obfuscator
func NewNoneObfuscator(key []byte) (Obfuscator, error) {
	return &NoneObfuscator{}, nil
}

func (o *NoneObfuscator) Name() string {
	return "none"
}

func (o *NoneObfuscator) Encode(buf []byte, n int) (Result, error) {
	return Result{Verdict: VerdictUnchanged, Length: n}, nil
}

func (o *NoneObfuscator) Decode(buf []byte, n int) (Result, error) {
	return Result{Verdict: VerdictUnchanged, Length: n}, nil
}

func (o *NoneObfuscator) Overhead() int {
	return 0
}
