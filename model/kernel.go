package model

// Kernel is the signed sum-carrier witnessing a transaction's balance (§3).
// Fee is always 0 for Coinbase kernels. LockHeight applies only to
// HeightLocked kernels; RelativeHeight only to NoRecentDuplicate kernels
// (width is protocol-version dependent, see serialize package and the Open
// Question in spec.md §9).
type Kernel struct {
	Features       KernelFeatures
	Fee            uint64
	LockHeight     uint64
	RelativeHeight uint64 // NoRecentDuplicate only; encoded as u16 or u64 by protocol version
	Excess         Commitment
	Signature      Signature
}

// IsCoinbase reports whether this kernel carries coinbase features.
func (k *Kernel) IsCoinbase() bool { return k.Features == KernelCoinbase }
