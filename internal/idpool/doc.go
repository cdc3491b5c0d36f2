// Package idpool hands out counters from blocks granted by an authority.
//
// A Pool serves one (partition, namespace) counter space. The hot path is a
// single atomic add on the current block. When a block runs dry, one caller
// renews it through the authority while the others wait for the same
// result. Renewals can also start early, when the remaining counters of a
// block fall below a threshold, so the next block is usually in place before
// anyone needs it.
package idpool
