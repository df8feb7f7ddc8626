// Package primitive provides low level layout constants shared by the rest
// of this module.
//
// The original dash/primitive also shipped assembly-backed compare-and-swap
// helpers for pre-generics Go; this module targets a Go new enough that
// sync/atomic's generic Int32/Int64/Pointer types cover that need directly,
// so only the cache-line layout constants survive here.
package primitive

const (
	// CacheLine is the number of bytes on an Intel cache line (and
	// presumably others).
	CacheLine = 64
	// FalseShare is the number of bytes in a false sharing range for CPUs.
	// Intel will prefetch a second cache line when loading a first.
	FalseShare = 128
)
