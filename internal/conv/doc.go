// Package conv provides checked integer conversions for values crossing
// between the layout's uint64 fields and the authority's uint32 keys.
package conv
