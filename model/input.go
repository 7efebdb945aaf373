package model

// Input spends a previously unspent output. A SameAsOutput input's
// effective features are resolved at validation time against the output it
// spends (§3).
type Input struct {
	Features   InputFeatures
	Commitment Commitment
}

// Output is a new unspent transaction output. Its serialised commitment is
// the MMR lookup key (§3).
type Output struct {
	Features   OutputFeatures
	Commitment Commitment
}

// LookupKey returns the serialised commitment used as the outputs MMR's
// lookup key.
func (o *Output) LookupKey() Commitment { return o.Commitment }

// Rangeproof is an opaque bulletproof byte string proving its paired
// output's value lies in [0, 2^64).
type Rangeproof struct {
	Proof []byte // len <= BulletproofLength
}
