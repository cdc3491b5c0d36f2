// Package hash provides CRC32-Castagnoli checksums and the checksummed
// counter record persisted by file-backed authorities.
//
// A record is 12 bytes:
//
//	[ value (8 bytes, big-endian) | CRC32C of value (4 bytes, big-endian) ]
//
// A torn or damaged record fails ParseRecord with ErrChecksum.
package hash
